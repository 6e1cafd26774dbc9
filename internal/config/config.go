// Package config loads application configuration from file and
// environment and wires the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Feed       FeedConfig       `yaml:"feed" mapstructure:"feed"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Quotes     QuotesConfig     `yaml:"quotes" mapstructure:"quotes"`
	Prices     PricesConfig     `yaml:"prices" mapstructure:"prices"`
	Oscillator OscillatorConfig `yaml:"oscillator" mapstructure:"oscillator"`
	Selection  SelectionConfig  `yaml:"selection" mapstructure:"selection"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// FeedConfig points at the candidate-universe source.
type FeedConfig struct {
	Format       string `yaml:"format" mapstructure:"format"` // csv or xlsx
	Path         string `yaml:"path" mapstructure:"path"`
	SheetName    string `yaml:"sheet_name" mapstructure:"sheet_name"`
	SkipRows     int    `yaml:"skip_rows" mapstructure:"skip_rows"`
	TickerColumn string `yaml:"ticker_column" mapstructure:"ticker_column"`
}

// RulesConfig locates the live rule and column definitions.
type RulesConfig struct {
	RulesPath   string `yaml:"rules_path" mapstructure:"rules_path"`
	ColumnsPath string `yaml:"columns_path" mapstructure:"columns_path"`
}

// QuotesConfig configures the price provider client.
type QuotesConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PricesConfig tunes stored history and derived aggregates.
type PricesConfig struct {
	MonthlyLookback int `yaml:"monthly_lookback" mapstructure:"monthly_lookback"`
	WeeklyLookback  int `yaml:"weekly_lookback" mapstructure:"weekly_lookback"`
	MinBars         int `yaml:"min_bars" mapstructure:"min_bars"`
	RetentionDays   int `yaml:"retention_days" mapstructure:"retention_days"`
}

// OscillatorConfig holds Stochastic Oscillator windows. Stored applies
// to the monthly/weekly reads over persisted history; Legacy matches the
// faster windows the direct-feed path has always used.
type OscillatorConfig struct {
	Stored OscillatorParams `yaml:"stored" mapstructure:"stored"`
	Legacy OscillatorParams `yaml:"legacy" mapstructure:"legacy"`
}

// OscillatorParams is one %K/%D parameterization.
type OscillatorParams struct {
	KPeriod   int `yaml:"k_period" mapstructure:"k_period"`
	DPeriod   int `yaml:"d_period" mapstructure:"d_period"`
	Smoothing int `yaml:"smoothing" mapstructure:"smoothing"`
}

// SelectionConfig holds the enrichment economics.
type SelectionConfig struct {
	RetentionFactor float64 `yaml:"retention_factor" mapstructure:"retention_factor"`
	TargetNetYield  float64 `yaml:"target_net_yield" mapstructure:"target_net_yield"`
	OversoldBelow   float64 `yaml:"oversold_below" mapstructure:"oversold_below"`
	PersistEmpty    bool    `yaml:"persist_empty" mapstructure:"persist_empty"`
}

// PipelineConfig tunes the run orchestrator.
type PipelineConfig struct {
	EnrichConcurrency int `yaml:"enrich_concurrency" mapstructure:"enrich_concurrency"`
}

// CacheConfig tunes the in-memory result cache.
type CacheConfig struct {
	TTLSecs int `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCREENER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/screener.db")
	v.SetDefault("feed.format", "csv")
	v.SetDefault("feed.ticker_column", "Ticker")
	v.SetDefault("rules.rules_path", "rules.yaml")
	v.SetDefault("rules.columns_path", "columns.yaml")
	v.SetDefault("quotes.rate_limit", 5)
	v.SetDefault("quotes.burst", 2)
	v.SetDefault("quotes.timeout_secs", 30)
	v.SetDefault("prices.monthly_lookback", 60)
	v.SetDefault("prices.weekly_lookback", 260)
	v.SetDefault("prices.min_bars", 60)
	v.SetDefault("prices.retention_days", 1825)
	v.SetDefault("oscillator.stored.k_period", 36)
	v.SetDefault("oscillator.stored.d_period", 12)
	v.SetDefault("oscillator.stored.smoothing", 12)
	v.SetDefault("oscillator.legacy.k_period", 14)
	v.SetDefault("oscillator.legacy.d_period", 3)
	v.SetDefault("oscillator.legacy.smoothing", 3)
	v.SetDefault("selection.retention_factor", 0.81)
	v.SetDefault("selection.target_net_yield", 0.05)
	v.SetDefault("selection.oversold_below", 30)
	v.SetDefault("selection.persist_empty", true)
	v.SetDefault("pipeline.enrich_concurrency", 4)
	v.SetDefault("cache.ttl_secs", 300)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
