package prices

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dividendlab/screener-cli/internal/model"
)

type barKey struct {
	ticker string
	date   string
	tf     model.Timeframe
}

type memBarStore struct {
	bars map[barKey]model.PriceBar
}

func newMemBarStore() *memBarStore {
	return &memBarStore{bars: map[barKey]model.PriceBar{}}
}

func (m *memBarStore) UpsertBars(_ context.Context, bars []model.PriceBar) (int, error) {
	for _, b := range bars {
		m.bars[barKey{b.Ticker, b.Date.Format("2006-01-02"), b.Timeframe}] = b
	}
	return len(bars), nil
}

func (m *memBarStore) LastBarDate(_ context.Context, ticker string, tf model.Timeframe) (time.Time, bool, error) {
	var last time.Time
	found := false
	for k, b := range m.bars {
		if k.ticker == ticker && k.tf == tf && b.Date.After(last) {
			last = b.Date
			found = true
		}
	}
	return last, found, nil
}

func (m *memBarStore) Bars(_ context.Context, ticker string, tf model.Timeframe, limit int) ([]model.PriceBar, error) {
	var out []model.PriceBar
	for k, b := range m.bars {
		if k.ticker == ticker && k.tf == tf {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memBarStore) DeleteBarsBefore(_ context.Context, cutoff time.Time) (int, error) {
	n := 0
	for k, b := range m.bars {
		if b.Date.Before(cutoff) {
			delete(m.bars, k)
			n++
		}
	}
	return n, nil
}

type fakeSource struct {
	bars     map[string][]model.PriceBar
	err      map[string]error
	requests map[string]time.Time
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		bars:     map[string][]model.PriceBar{},
		err:      map[string]error{},
		requests: map[string]time.Time{},
	}
}

func (f *fakeSource) History(_ context.Context, ticker string, start time.Time) ([]model.PriceBar, error) {
	f.requests[ticker] = start
	if err := f.err[ticker]; err != nil {
		return nil, err
	}
	var out []model.PriceBar
	for _, b := range f.bars[ticker] {
		if start.IsZero() || !b.Date.Before(start) {
			out = append(out, b)
		}
	}
	return out, nil
}

func tradingDays(start time.Time, n int, base float64) []model.PriceBar {
	bars := make([]model.PriceBar, 0, n)
	d := start
	for len(bars) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			p := base + float64(len(bars))*0.1
			bars = append(bars, model.PriceBar{
				Date: d, Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 100,
			})
		}
		d = d.AddDate(0, 0, 1)
	}
	return bars
}

func newTestManager(t *testing.T, st *memBarStore, src Source, asOf time.Time) *Manager {
	t.Helper()
	m := NewManager(st, src, Config{}, nil)
	m.now = func() time.Time { return asOf }
	return m
}

func TestUpdateBootstrapsFullHistory(t *testing.T) {
	st := newMemBarStore()
	src := newFakeSource()
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	src.bars["KO"] = tradingDays(start, 5, 100)

	m := newTestManager(t, st, src, start.AddDate(0, 0, 30))
	n, err := m.Update(context.Background(), "KO")
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.True(t, src.requests["KO"].IsZero())

	stored, err := st.Bars(context.Background(), "KO", model.TimeframeDaily, 0)
	require.NoError(t, err)
	require.Len(t, stored, 5)
	require.Equal(t, model.TimeframeDaily, stored[0].Timeframe)
	require.Equal(t, "KO", stored[0].Ticker)
}

func TestUpdateFetchesDeltaOnly(t *testing.T) {
	st := newMemBarStore()
	src := newFakeSource()
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	src.bars["KO"] = tradingDays(start, 10, 100)

	m := newTestManager(t, st, src, start.AddDate(0, 0, 30))
	ctx := context.Background()

	_, err := m.Update(ctx, "KO")
	require.NoError(t, err)

	last, ok, err := st.LastBarDate(ctx, "KO", model.TimeframeDaily)
	require.NoError(t, err)
	require.True(t, ok)

	// Second update asks only for days after the newest stored bar.
	_, err = m.Update(ctx, "KO")
	require.NoError(t, err)
	require.Equal(t, last.AddDate(0, 0, 1), src.requests["KO"])

	stored, err := st.Bars(ctx, "KO", model.TimeframeDaily, 0)
	require.NoError(t, err)
	require.Len(t, stored, 10)
}

func TestUpdateDropsInvalidBars(t *testing.T) {
	st := newMemBarStore()
	src := newFakeSource()
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	good := tradingDays(start, 3, 100)
	bad := model.PriceBar{Date: start.AddDate(0, 0, 10), Open: 100, High: 90, Low: 110, Close: 100}
	src.bars["KO"] = append(good, bad)

	m := newTestManager(t, st, src, start.AddDate(0, 0, 30))
	n, err := m.Update(context.Background(), "KO")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestUpdateAllIsolatesFailures(t *testing.T) {
	st := newMemBarStore()
	src := newFakeSource()
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	src.bars["KO"] = tradingDays(start, 3, 100)
	src.bars["PG"] = tradingDays(start, 3, 150)
	src.err["BAD"] = errors.New("provider unavailable")

	m := newTestManager(t, st, src, start.AddDate(0, 0, 30))
	updated, err := m.UpdateAll(context.Background(), []string{"KO", "BAD", "PG"})
	require.NoError(t, err)
	require.Equal(t, 2, updated)

	stored, err := st.Bars(context.Background(), "PG", model.TimeframeDaily, 0)
	require.NoError(t, err)
	require.Len(t, stored, 3)
}

func TestUpdateAllPurgesOldBars(t *testing.T) {
	st := newMemBarStore()
	src := newFakeSource()
	asOf := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	old := model.PriceBar{
		Ticker: "KO", Date: asOf.AddDate(-6, 0, 0), Timeframe: model.TimeframeDaily,
		Open: 50, High: 51, Low: 49, Close: 50, Volume: 1,
	}
	_, err := st.UpsertBars(context.Background(), []model.PriceBar{old})
	require.NoError(t, err)

	m := newTestManager(t, st, src, asOf)
	_, err = m.UpdateAll(context.Background(), nil)
	require.NoError(t, err)

	stored, err := st.Bars(context.Background(), "KO", model.TimeframeDaily, 0)
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestWeeklyResampleFromStoredDaily(t *testing.T) {
	st := newMemBarStore()
	// Mon 2026-08-03 through the following Thu: one full week and a
	// partial one.
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	bars := tradingDays(start, 9, 100)
	for i := range bars {
		bars[i].Ticker = "KO"
		bars[i].Timeframe = model.TimeframeDaily
	}
	_, err := st.UpsertBars(context.Background(), bars)
	require.NoError(t, err)

	asOf := time.Date(2026, 8, 13, 0, 0, 0, 0, time.UTC)
	m := newTestManager(t, st, newFakeSource(), asOf)

	weekly, err := m.Weekly(context.Background(), "KO", 10)
	require.NoError(t, err)
	require.Len(t, weekly, 1)

	w := weekly[0]
	require.Equal(t, time.Date(2026, 8, 9, 0, 0, 0, 0, time.UTC), w.Date)
	require.Equal(t, model.TimeframeWeekly, w.Timeframe)
	require.Equal(t, bars[0].Open, w.Open)
	require.Equal(t, bars[4].Close, w.Close)
	require.Equal(t, bars[4].High, w.High)
	require.Equal(t, bars[0].Low, w.Low)
	require.Equal(t, int64(500), w.Volume)
}

func TestMonthlyResampleDropsCurrentMonth(t *testing.T) {
	st := newMemBarStore()
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := tradingDays(start, 65, 100) // June through August
	for i := range bars {
		bars[i].Ticker = "KO"
		bars[i].Timeframe = model.TimeframeDaily
	}
	_, err := st.UpsertBars(context.Background(), bars)
	require.NoError(t, err)

	asOf := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	m := newTestManager(t, st, newFakeSource(), asOf)

	monthly, err := m.Monthly(context.Background(), "KO", 12)
	require.NoError(t, err)
	require.Len(t, monthly, 2)
	require.Equal(t, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC), monthly[0].Date)
	require.Equal(t, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC), monthly[1].Date)
}

func TestStochasticAbsentWithoutEnoughHistory(t *testing.T) {
	st := newMemBarStore()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	bars := tradingDays(start, 20, 100)
	for i := range bars {
		bars[i].Ticker = "KO"
		bars[i].Timeframe = model.TimeframeDaily
	}
	_, err := st.UpsertBars(context.Background(), bars)
	require.NoError(t, err)

	m := newTestManager(t, st, newFakeSource(), start.AddDate(0, 2, 0))
	values, err := m.Stochastic(context.Background(), "KO")
	require.NoError(t, err)
	require.Empty(t, values)
}

func TestStochasticWeeklyOnlyWithMidHistory(t *testing.T) {
	st := newMemBarStore()
	// Around 70 weeks of daily history: enough weekly aggregates, far
	// too few monthly ones.
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	bars := tradingDays(start, 355, 100)
	for i := range bars {
		bars[i].Ticker = "KO"
		bars[i].Timeframe = model.TimeframeDaily
	}
	_, err := st.UpsertBars(context.Background(), bars)
	require.NoError(t, err)

	asOf := bars[len(bars)-1].Date.AddDate(0, 0, 10)
	m := newTestManager(t, st, newFakeSource(), asOf)

	values, err := m.Stochastic(context.Background(), "KO")
	require.NoError(t, err)
	require.NotContains(t, values, model.TimeframeMonthly)
	require.Contains(t, values, model.TimeframeWeekly)
	v := values[model.TimeframeWeekly]
	require.GreaterOrEqual(t, v, 0.0)
	require.LessOrEqual(t, v, 100.0)
}

func TestLastClose(t *testing.T) {
	st := newMemBarStore()
	m := newTestManager(t, st, newFakeSource(), time.Now())
	ctx := context.Background()

	_, ok, err := m.LastClose(ctx, "KO")
	require.NoError(t, err)
	require.False(t, ok)

	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	bars := tradingDays(start, 3, 100)
	for i := range bars {
		bars[i].Ticker = "KO"
		bars[i].Timeframe = model.TimeframeDaily
	}
	_, err = st.UpsertBars(ctx, bars)
	require.NoError(t, err)

	close, ok, err := m.LastClose(ctx, "KO")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bars[2].Close, close)
}

func TestOversoldThreshold(t *testing.T) {
	m := NewManager(newMemBarStore(), newFakeSource(), Config{}, nil)
	require.True(t, m.Oversold(29.9))
	require.False(t, m.Oversold(30))
	require.False(t, m.Oversold(55))
}
