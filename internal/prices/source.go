package prices

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dividendlab/screener-cli/internal/model"
	"github.com/dividendlab/screener-cli/internal/resilience"
	"github.com/dividendlab/screener-cli/pkg/quotes"
)

// QuoteSource adapts the provider client to the Source interface, adding
// a per-call timeout and transient-error retries.
type QuoteSource struct {
	client  quotes.Client
	retry   resilience.RetryConfig
	timeout time.Duration
	log     *zap.Logger
}

func NewQuoteSource(client quotes.Client, log *zap.Logger) *QuoteSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuoteSource{
		client:  client,
		retry:   resilience.DefaultRetryConfig(),
		timeout: 30 * time.Second,
		log:     log,
	}
}

func (s *QuoteSource) History(ctx context.Context, ticker string, start time.Time) ([]model.PriceBar, error) {
	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger(s.log, "quotes.history")

	raw, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]quotes.Bar, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.client.History(ctx, quotes.HistoryRequest{Ticker: ticker, Start: start})
	})
	if err != nil {
		return nil, err
	}

	bars := make([]model.PriceBar, 0, len(raw))
	for _, b := range raw {
		date, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			return nil, eris.Wrapf(err, "prices: provider bar date %q for %s", b.Date, ticker)
		}
		bars = append(bars, model.PriceBar{
			Ticker:    ticker,
			Date:      date,
			Timeframe: model.TimeframeDaily,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return bars, nil
}
