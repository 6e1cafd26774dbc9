// Package prices maintains per-ticker daily price history and serves the
// derived aggregates the selection pipeline reads: weekly and monthly
// bars and their Stochastic Oscillator values.
package prices

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dividendlab/screener-cli/internal/indicator"
	"github.com/dividendlab/screener-cli/internal/model"
	"github.com/dividendlab/screener-cli/internal/store"
)

// Source fetches daily bars from the external price provider. A zero
// start means full history (the provider's bootstrap window, typically
// five years). An empty result with a nil error is valid no-data.
type Source interface {
	History(ctx context.Context, ticker string, start time.Time) ([]model.PriceBar, error)
}

// Config tunes lookbacks and retention. Zero fields fall back to the
// defaults below.
type Config struct {
	MonthlyLookback int
	WeeklyLookback  int
	MinBars         int
	RetentionDays   int
	Oscillator      indicator.Params
	OversoldBelow   float64
}

const (
	defaultMonthlyLookback = 60
	defaultWeeklyLookback  = 260
	defaultMinBars         = 60
	defaultRetentionDays   = 1825
	defaultOversoldBelow   = 30
)

func (c Config) withDefaults() Config {
	if c.MonthlyLookback <= 0 {
		c.MonthlyLookback = defaultMonthlyLookback
	}
	if c.WeeklyLookback <= 0 {
		c.WeeklyLookback = defaultWeeklyLookback
	}
	if c.MinBars <= 0 {
		c.MinBars = defaultMinBars
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = defaultRetentionDays
	}
	if c.Oscillator == (indicator.Params{}) {
		c.Oscillator = indicator.StoredHistoryParams
	}
	if c.OversoldBelow <= 0 {
		c.OversoldBelow = defaultOversoldBelow
	}
	return c
}

// Manager owns the stored daily history for the tickers the screen
// selects.
type Manager struct {
	store  store.BarStore
	source Source
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
}

func NewManager(st store.BarStore, src Source, cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:  st,
		source: src,
		cfg:    cfg.withDefaults(),
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Update refreshes daily history for one ticker. When bars already
// exist it fetches only the days after the newest stored bar; otherwise
// it bootstraps the provider's full history. Bars failing OHLC sanity
// checks are dropped individually.
func (m *Manager) Update(ctx context.Context, ticker string) (int, error) {
	var start time.Time
	last, ok, err := m.store.LastBarDate(ctx, ticker, model.TimeframeDaily)
	if err != nil {
		return 0, eris.Wrapf(err, "prices: last stored date for %s", ticker)
	}
	if ok {
		start = last.AddDate(0, 0, 1)
		m.log.Debug("updating daily history",
			zap.String("ticker", ticker),
			zap.Time("from", start))
	} else {
		m.log.Info("bootstrapping full daily history", zap.String("ticker", ticker))
	}

	fetched, err := m.source.History(ctx, ticker, start)
	if err != nil {
		return 0, eris.Wrapf(err, "prices: fetch daily history for %s", ticker)
	}

	valid := fetched[:0]
	for _, b := range fetched {
		b.Ticker = ticker
		b.Timeframe = model.TimeframeDaily
		if err := b.Validate(); err != nil {
			m.log.Warn("discarding invalid bar",
				zap.String("ticker", ticker),
				zap.Time("date", b.Date),
				zap.Error(err))
			continue
		}
		valid = append(valid, b)
	}
	if len(valid) == 0 {
		m.log.Debug("no new daily bars", zap.String("ticker", ticker))
		return 0, nil
	}

	n, err := m.store.UpsertBars(ctx, valid)
	if err != nil {
		return 0, eris.Wrapf(err, "prices: store daily bars for %s", ticker)
	}
	return n, nil
}

// UpdateAll refreshes every ticker, isolating per-ticker failures, then
// purges bars past the retention horizon. It returns the count of
// tickers that updated cleanly.
func (m *Manager) UpdateAll(ctx context.Context, tickers []string) (int, error) {
	updated := 0
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return updated, eris.Wrap(err, "prices: update all")
		}
		if _, err := m.Update(ctx, ticker); err != nil {
			m.log.Error("ticker update failed, continuing",
				zap.String("ticker", ticker),
				zap.Error(err))
			continue
		}
		updated++
	}

	if _, err := m.Cleanup(ctx); err != nil {
		m.log.Error("retention cleanup failed", zap.Error(err))
	}
	return updated, nil
}

// Cleanup deletes daily bars older than the retention horizon.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	cutoff := m.now().AddDate(0, 0, -m.cfg.RetentionDays)
	n, err := m.store.DeleteBarsBefore(ctx, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "prices: purge old bars")
	}
	if n > 0 {
		m.log.Info("purged bars past retention",
			zap.Int("deleted", n),
			zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Daily returns up to limit stored daily bars, oldest first.
func (m *Manager) Daily(ctx context.Context, ticker string, limit int) ([]model.PriceBar, error) {
	return m.store.Bars(ctx, ticker, model.TimeframeDaily, limit)
}

// Weekly derives up to limit weekly bars by resampling stored daily
// history. Weekly bars are never fetched or stored directly.
func (m *Manager) Weekly(ctx context.Context, ticker string, limit int) ([]model.PriceBar, error) {
	if limit <= 0 {
		limit = m.cfg.WeeklyLookback
	}
	daily, err := m.store.Bars(ctx, ticker, model.TimeframeDaily, limit*7)
	if err != nil {
		return nil, eris.Wrapf(err, "prices: daily slice for weekly %s", ticker)
	}
	return tail(Resample(daily, model.TimeframeWeekly, m.now()), limit), nil
}

// Monthly derives up to limit monthly bars by resampling stored daily
// history.
func (m *Manager) Monthly(ctx context.Context, ticker string, limit int) ([]model.PriceBar, error) {
	if limit <= 0 {
		limit = m.cfg.MonthlyLookback
	}
	daily, err := m.store.Bars(ctx, ticker, model.TimeframeDaily, limit*31)
	if err != nil {
		return nil, eris.Wrapf(err, "prices: daily slice for monthly %s", ticker)
	}
	return tail(Resample(daily, model.TimeframeMonthly, m.now()), limit), nil
}

// Stochastic computes the smoothed %D oscillator per timeframe. A
// timeframe with fewer aggregate bars than the configured minimum is
// absent from the result, never reported as zero.
func (m *Manager) Stochastic(ctx context.Context, ticker string) (map[model.Timeframe]float64, error) {
	out := map[model.Timeframe]float64{}

	monthly, err := m.Monthly(ctx, ticker, m.cfg.MonthlyLookback)
	if err != nil {
		return nil, err
	}
	if v, ok := m.oscillator(monthly); ok {
		out[model.TimeframeMonthly] = v
	}

	weekly, err := m.Weekly(ctx, ticker, m.cfg.WeeklyLookback)
	if err != nil {
		return nil, err
	}
	if v, ok := m.oscillator(weekly); ok {
		out[model.TimeframeWeekly] = v
	}
	return out, nil
}

// LastClose returns the most recent stored daily close.
func (m *Manager) LastClose(ctx context.Context, ticker string) (float64, bool, error) {
	bars, err := m.store.Bars(ctx, ticker, model.TimeframeDaily, 1)
	if err != nil {
		return 0, false, eris.Wrapf(err, "prices: last close for %s", ticker)
	}
	if len(bars) == 0 {
		return 0, false, nil
	}
	return bars[len(bars)-1].Close, true, nil
}

// Oversold reports whether the given oscillator value is below the
// configured threshold.
func (m *Manager) Oversold(value float64) bool {
	return value < m.cfg.OversoldBelow
}

func (m *Manager) oscillator(bars []model.PriceBar) (float64, bool) {
	if len(bars) < m.cfg.MinBars {
		return 0, false
	}
	_, d := indicator.Stochastic(bars, m.cfg.Oscillator)
	return d.Last()
}

func tail(bars []model.PriceBar, limit int) []model.PriceBar {
	if limit > 0 && len(bars) > limit {
		return bars[len(bars)-limit:]
	}
	return bars
}
