// Package pipeline orchestrates one full screening run: load the feed,
// filter it through the rule engine, refresh price history for the
// survivors, enrich them with yields and oscillator readings, stamp the
// configuration versions, and persist the result.
package pipeline

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dividendlab/screener-cli/internal/cache"
	"github.com/dividendlab/screener-cli/internal/feed"
	"github.com/dividendlab/screener-cli/internal/model"
	"github.com/dividendlab/screener-cli/internal/prices"
	"github.com/dividendlab/screener-cli/internal/screen"
	"github.com/dividendlab/screener-cli/internal/store"
	"github.com/dividendlab/screener-cli/internal/version"
)

// Config tunes a run.
type Config struct {
	RulesPath   string
	ColumnsPath string

	// RetentionFactor converts gross yield to net. Default 0.81.
	RetentionFactor float64
	// TargetNetYield is the net yield the break-even price solves for.
	// Default 0.05.
	TargetNetYield float64
	// PersistEmpty saves a zero-survivor run instead of skipping the
	// write.
	PersistEmpty bool
	// EnrichConcurrency bounds the per-ticker enrichment fan-out.
	// Default 4.
	EnrichConcurrency int
}

func (c Config) withDefaults() Config {
	if c.RetentionFactor <= 0 {
		c.RetentionFactor = 0.81
	}
	if c.TargetNetYield <= 0 {
		c.TargetNetYield = 0.05
	}
	if c.EnrichConcurrency <= 0 {
		c.EnrichConcurrency = 4
	}
	return c
}

// Pipeline wires the run's collaborators together.
type Pipeline struct {
	loader   feed.Loader
	store    store.Store
	prices   *prices.Manager
	versions *version.Service
	cache    *cache.Cache
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
}

func New(loader feed.Loader, st store.Store, pm *prices.Manager, vs *version.Service, ch *cache.Cache, cfg Config, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		loader:   loader,
		store:    st,
		prices:   pm,
		versions: vs,
		cache:    ch,
		cfg:      cfg.withDefaults(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one screening pass end to end and returns the persisted
// run with its results. Results are ordered by ticker ascending
// regardless of enrichment scheduling.
func (p *Pipeline) Run(ctx context.Context) (*model.Run, []model.SelectionResult, error) {
	rules, columns, err := p.loadConfigs()
	if err != nil {
		return nil, nil, err
	}

	_, rows, err := p.loader.Load(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: load feed")
	}
	p.log.Info("feed loaded", zap.Int("candidates", len(rows)))

	survivors := screen.New(rules).Select(rows)
	summary := screen.Summarize(rows, survivors)
	p.log.Info("selection complete",
		zap.Int("original", summary.OriginalCount),
		zap.Int("selected", summary.FilteredCount),
		zap.Float64("rate_pct", summary.SelectionRate))

	tickers := make([]string, 0, len(survivors))
	byTicker := make(map[string]model.Row, len(survivors))
	for _, row := range survivors {
		t := row.Ticker(columns.TickerColumn)
		if t == "" {
			continue
		}
		tickers = append(tickers, t)
		byTicker[t] = row
	}
	sort.Strings(tickers)

	if _, err := p.prices.UpdateAll(ctx, tickers); err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: update prices")
	}

	results, err := p.enrich(ctx, tickers, byTicker, columns)
	if err != nil {
		return nil, nil, err
	}

	ruleVersion, err := p.versions.Stamp(ctx, model.VersionKindRules, rules)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: stamp rule version")
	}
	columnVersion, err := p.versions.Stamp(ctx, model.VersionKindColumns, columns)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: stamp column version")
	}

	run := &model.Run{
		RunDate:       p.now(),
		SelectedCount: len(results),
		RuleVersion:   ruleVersion,
		ColumnVersion: columnVersion,
	}

	if len(results) == 0 && !p.cfg.PersistEmpty {
		p.log.Warn("no survivors and empty runs are not persisted, skipping save")
		return run, nil, nil
	}

	saved, err := p.store.SaveRun(ctx, run, results)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: save run")
	}
	if p.cache != nil {
		p.cache.InvalidatePrefix("runs:")
	}
	p.log.Info("run persisted",
		zap.Int64("run_id", saved.ID),
		zap.Int("selected", saved.SelectedCount),
		zap.String("rule_version", ruleVersion),
		zap.String("column_version", columnVersion))
	return saved, results, nil
}

func (p *Pipeline) loadConfigs() (*model.RuleSet, *model.ColumnSet, error) {
	rulesData, err := os.ReadFile(p.cfg.RulesPath)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: read rules file")
	}
	rules, err := model.ParseRuleSet(rulesData)
	if err != nil {
		return nil, nil, err
	}

	columnsData, err := os.ReadFile(p.cfg.ColumnsPath)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: read columns file")
	}
	columns, err := model.ParseColumnSet(columnsData)
	if err != nil {
		return nil, nil, err
	}
	return rules, columns, nil
}

func (p *Pipeline) enrich(ctx context.Context, tickers []string, byTicker map[string]model.Row, columns *model.ColumnSet) ([]model.SelectionResult, error) {
	results := make([]model.SelectionResult, len(tickers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.EnrichConcurrency)
	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			results[i] = p.enrichOne(ctx, ticker, byTicker[ticker], columns)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: enrich")
	}
	return results, nil
}

// enrichOne builds the persisted record for one survivor. Price-side
// failures are captured on the record instead of failing the run.
func (p *Pipeline) enrichOne(ctx context.Context, ticker string, row model.Row, columns *model.ColumnSet) model.SelectionResult {
	r := model.SelectionResult{
		Ticker:               ticker,
		SelectionPayload:     payload(row, columns.SelectionColumns),
		InformationalPayload: payload(row, columns.InformationalColumns),
	}

	var gross float64
	grossKnown := false
	if col, ok := columns.SelectionColumns["yield"]; ok {
		if v, ok := row.Get(col).Float(); ok {
			gross = v
			grossKnown = true
			r.YieldGross = &gross
			net := gross * p.cfg.RetentionFactor
			r.YieldNet = &net
		}
	}

	price, havePrice, err := p.prices.LastClose(ctx, ticker)
	if err != nil {
		r.PriceError = err.Error()
		return r
	}
	if havePrice {
		r.CurrentPrice = &price
		if grossKnown {
			// Annual net dividend repriced to the target net yield.
			breakeven := (gross / 100) * price * p.cfg.RetentionFactor / p.cfg.TargetNetYield
			r.BreakevenPrice = &breakeven
		}
	} else {
		r.PriceError = "no price history"
	}

	osc, err := p.prices.Stochastic(ctx, ticker)
	if err != nil {
		r.PriceError = err.Error()
		return r
	}
	if v, ok := osc[model.TimeframeMonthly]; ok {
		monthly := v
		r.Oscillator1M = &monthly
		r.SecondarySignalPassed = r.SecondarySignalPassed || p.prices.Oversold(v)
	}
	if v, ok := osc[model.TimeframeWeekly]; ok {
		weekly := v
		r.Oscillator1W = &weekly
		r.SecondarySignalPassed = r.SecondarySignalPassed || p.prices.Oversold(v)
	}
	return r
}

func payload(row model.Row, mapping map[string]string) map[string]string {
	out := make(map[string]string, len(mapping))
	for key, column := range mapping {
		out[key] = row.Get(column).String()
	}
	return out
}
