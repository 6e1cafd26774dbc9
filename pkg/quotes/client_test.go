package quotes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryFullRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/history", r.URL.Path)
		assert.Equal(t, "KO", r.URL.Query().Get("ticker"))
		assert.Equal(t, "5y", r.URL.Query().Get("range"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		w.Write([]byte(`{"ticker":"KO","bars":[
			{"date":"2026-08-27","open":61,"high":62,"low":60.5,"close":61.2,"volume":1000},
			{"date":"2026-08-28","open":61.2,"high":61.9,"low":61,"close":61.5,"volume":900}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	bars, err := c.History(context.Background(), HistoryRequest{Ticker: "KO"})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2026-08-27", bars[0].Date)
	assert.Equal(t, 61.5, bars[1].Close)
}

func TestHistoryDeltaSendsStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-08-20", r.URL.Query().Get("start"))
		assert.Empty(t, r.URL.Query().Get("range"))
		w.Write([]byte(`{"ticker":"KO","bars":[]}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	start := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	bars, err := c.History(context.Background(), HistoryRequest{Ticker: "KO", Start: start})
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestHistoryRequiresTicker(t *testing.T) {
	c := NewClient()
	_, err := c.History(context.Background(), HistoryRequest{})
	require.Error(t, err)
}

func TestHistoryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.History(context.Background(), HistoryRequest{Ticker: "KO"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quote", r.URL.Path)
		w.Write([]byte(`{"ticker":"KO","price":61.5,"currency":"USD","as_of":"2026-08-28T20:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	q, err := c.Quote(context.Background(), "KO")
	require.NoError(t, err)
	assert.Equal(t, 61.5, q.Price)
	assert.Equal(t, "USD", q.Currency)
}

func TestRateLimitDelaysSecondCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ticker":"KO","bars":[]}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(20, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.History(context.Background(), HistoryRequest{Ticker: "KO"})
		require.NoError(t, err)
	}
	// Two waits at 20 rps is at least ~100ms.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
