package model

import "time"

// VersionKind discriminates the two versioned configuration blobs.
type VersionKind string

const (
	VersionKindRules   VersionKind = "rules"
	VersionKindColumns VersionKind = "columns"
)

// ConfigVersion is an immutable, timestamped snapshot of a configuration
// blob. Versions are append-only: they are never mutated or deleted, so any
// past run stays interpretable after the live config changes.
type ConfigVersion struct {
	Kind        VersionKind `json:"kind"`
	Version     string      `json:"version"`
	Payload     []byte      `json:"payload"`
	Description string      `json:"description"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Run is one persisted analysis run. At most one run exists per calendar
// day; creating a second run for the same day replaces the first and its
// child result rows.
type Run struct {
	ID            int64     `json:"id"`
	RunDate       time.Time `json:"run_date"`
	SelectedCount int       `json:"selected_count"`
	RuleVersion   string    `json:"rule_version"`
	ColumnVersion string    `json:"column_version"`
	Notes         string    `json:"notes,omitempty"`
}

// SelectionResult is the persisted record for one surviving ticker.
type SelectionResult struct {
	RunID  int64  `json:"run_id"`
	Ticker string `json:"ticker"`

	// Serialized subsets of the feed row, keyed by the configured output
	// keys (not raw header names).
	SelectionPayload     map[string]string `json:"selection_payload"`
	InformationalPayload map[string]string `json:"informational_payload"`

	YieldGross     *float64 `json:"yield_gross"`
	YieldNet       *float64 `json:"yield_net"`
	CurrentPrice   *float64 `json:"current_price"`
	BreakevenPrice *float64 `json:"breakeven_price"`

	Oscillator1M *float64 `json:"oscillator_1m"`
	Oscillator1W *float64 `json:"oscillator_1w"`

	// SecondarySignalPassed is informational only: it never filters the
	// selection, it records whether either oscillator sat below the
	// threshold at run time.
	SecondarySignalPassed bool `json:"secondary_signal_passed"`

	// PriceError carries the reason enrichment failed for this ticker, so
	// partial-failure state is inspectable rather than log-only.
	PriceError string `json:"price_error,omitempty"`
}

// TickerHistoryEntry is one historical appearance of a ticker across runs,
// joined with the version labels active at that run.
type TickerHistoryEntry struct {
	RunID         int64     `json:"run_id"`
	RunDate       time.Time `json:"run_date"`
	RuleVersion   string    `json:"rule_version"`
	ColumnVersion string    `json:"column_version"`
	Result        SelectionResult
}
