// Package store persists analysis runs, selection results, configuration
// versions, and price bars behind a driver-agnostic interface with SQLite
// and Postgres implementations.
package store

import (
	"context"
	"time"

	"github.com/dividendlab/screener-cli/internal/model"
)

// Store is the persistence contract for the screener.
//
// SaveRun enforces the one-run-per-calendar-day invariant: any existing run
// for the same date is deleted together with its child result rows, then
// the new run and its children are inserted, all inside one transaction so
// a concurrent reader never observes a day with a header but no children.
//
// Version rows are append-only; LatestVersion returns nil (no error) when
// no version of the kind exists yet.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run *model.Run, results []model.SelectionResult) (*model.Run, error)
	GetRun(ctx context.Context, id int64) (*model.Run, error)
	GetRunByDate(ctx context.Context, date time.Time) (*model.Run, error)
	LatestRun(ctx context.Context) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	Results(ctx context.Context, runID int64) ([]model.SelectionResult, error)
	TickerHistory(ctx context.Context, ticker string, limit int) ([]model.TickerHistoryEntry, error)

	// Config versions
	LatestVersion(ctx context.Context, kind model.VersionKind) (*model.ConfigVersion, error)
	InsertVersion(ctx context.Context, v model.ConfigVersion) error

	// Price bars
	UpsertBars(ctx context.Context, bars []model.PriceBar) (int, error)
	LastBarDate(ctx context.Context, ticker string, tf model.Timeframe) (time.Time, bool, error)
	Bars(ctx context.Context, ticker string, tf model.Timeframe, limit int) ([]model.PriceBar, error)
	DeleteBarsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// BarStore is the slice of Store the price manager depends on.
type BarStore interface {
	UpsertBars(ctx context.Context, bars []model.PriceBar) (int, error)
	LastBarDate(ctx context.Context, ticker string, tf model.Timeframe) (time.Time, bool, error)
	Bars(ctx context.Context, ticker string, tf model.Timeframe, limit int) ([]model.PriceBar, error)
	DeleteBarsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// VersionStore is the slice of Store the version service depends on.
type VersionStore interface {
	LatestVersion(ctx context.Context, kind model.VersionKind) (*model.ConfigVersion, error)
	InsertVersion(ctx context.Context, v model.ConfigVersion) error
}

// Dates and timestamps are marshaled to text explicitly so both drivers
// round-trip them identically.
const (
	dateFormat = "2006-01-02"
	timeFormat = time.RFC3339
)
