package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dividendlab/screener-cli/internal/cache"
	"github.com/dividendlab/screener-cli/internal/feed"
	"github.com/dividendlab/screener-cli/internal/indicator"
	"github.com/dividendlab/screener-cli/internal/pipeline"
	"github.com/dividendlab/screener-cli/internal/prices"
	"github.com/dividendlab/screener-cli/internal/store"
	"github.com/dividendlab/screener-cli/internal/version"
	"github.com/dividendlab/screener-cli/pkg/quotes"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "screener.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initFeedLoader() (feed.Loader, error) {
	opts := feed.Options{
		SkipRows:     cfg.Feed.SkipRows,
		TickerColumn: cfg.Feed.TickerColumn,
	}
	switch cfg.Feed.Format {
	case "csv":
		return &feed.CSVLoader{Path: cfg.Feed.Path, Options: opts}, nil
	case "xlsx":
		return &feed.XLSXLoader{Path: cfg.Feed.Path, SheetName: cfg.Feed.SheetName, Options: opts}, nil
	default:
		return nil, eris.Errorf("unsupported feed format: %s", cfg.Feed.Format)
	}
}

func initPricesManager(st store.Store) *prices.Manager {
	var clientOpts []quotes.Option
	if cfg.Quotes.BaseURL != "" {
		clientOpts = append(clientOpts, quotes.WithBaseURL(cfg.Quotes.BaseURL))
	}
	if cfg.Quotes.RateLimit > 0 {
		clientOpts = append(clientOpts, quotes.WithRateLimit(cfg.Quotes.RateLimit, cfg.Quotes.Burst))
	}
	if cfg.Quotes.TimeoutSecs > 0 {
		clientOpts = append(clientOpts, quotes.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Quotes.TimeoutSecs) * time.Second,
		}))
	}
	src := prices.NewQuoteSource(quotes.NewClient(clientOpts...), zap.L())

	return prices.NewManager(st, src, prices.Config{
		MonthlyLookback: cfg.Prices.MonthlyLookback,
		WeeklyLookback:  cfg.Prices.WeeklyLookback,
		MinBars:         cfg.Prices.MinBars,
		RetentionDays:   cfg.Prices.RetentionDays,
		Oscillator: indicator.Params{
			KPeriod:   cfg.Oscillator.Stored.KPeriod,
			DPeriod:   cfg.Oscillator.Stored.DPeriod,
			Smoothing: cfg.Oscillator.Stored.Smoothing,
		},
		OversoldBelow: cfg.Selection.OversoldBelow,
	}, zap.L())
}

// env bundles the collaborators every long-lived command needs.
type env struct {
	Store    store.Store
	Prices   *prices.Manager
	Versions *version.Service
	Cache    *cache.Cache
	Pipeline *pipeline.Pipeline
}

func (e *env) Close() {
	_ = e.Store.Close()
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	loader, err := initFeedLoader()
	if err != nil {
		st.Close()
		return nil, err
	}

	pm := initPricesManager(st)
	vs := version.NewService(st, zap.L())
	ch := cache.New(time.Duration(cfg.Cache.TTLSecs)*time.Second, zap.L())

	pl := pipeline.New(loader, st, pm, vs, ch, pipeline.Config{
		RulesPath:         cfg.Rules.RulesPath,
		ColumnsPath:       cfg.Rules.ColumnsPath,
		RetentionFactor:   cfg.Selection.RetentionFactor,
		TargetNetYield:    cfg.Selection.TargetNetYield,
		PersistEmpty:      cfg.Selection.PersistEmpty,
		EnrichConcurrency: cfg.Pipeline.EnrichConcurrency,
	}, zap.L())

	return &env{Store: st, Prices: pm, Versions: vs, Cache: ch, Pipeline: pl}, nil
}
