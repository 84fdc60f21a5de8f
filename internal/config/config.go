// Package config defines the top-level configuration for the trading
// platform and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantfold/tradecore/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADECORE_* environment variables.
type Config struct {
	Server        ServerConfig         `toml:"server"`
	WS            WSConfig             `toml:"ws"`
	Engine        EngineConfig         `toml:"engine"`
	Ledger        LedgerConfig         `toml:"ledger"`
	Postgres      PostgresConfig       `toml:"postgres"`
	Redis         RedisConfig          `toml:"redis"`
	S3            S3Config             `toml:"s3"`
	Archive       ArchiveConfig        `toml:"archive"`
	Notify        NotifyConfig         `toml:"notify"`
	Backtest      BacktestConfig       `toml:"backtest"`
	Subscriptions []SubscriptionConfig `toml:"subscriptions"`
	Mode          string               `toml:"mode"`
	LogLevel      string               `toml:"log_level"`
}

// ServerConfig holds the framed TCP request surface parameters.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// WSConfig holds the WebSocket observer endpoint parameters.
type WSConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// EngineConfig holds matching-engine parameters.
type EngineConfig struct {
	// TickInterval is the cadence of the live match loop.
	TickInterval duration `toml:"tick_interval"`
	// ReconcileTolerance is the quantity difference below which a ledger
	// position and a broker position are considered in sync.
	ReconcileTolerance float64 `toml:"reconcile_tolerance"`
}

// LedgerConfig holds account-ledger seeding parameters.
type LedgerConfig struct {
	StartingCash float64 `toml:"starting_cash"`
	Currency     string  `toml:"currency"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// BacktestConfig holds the replay data sources for a backtest run.
type BacktestConfig struct {
	Account string           `toml:"account"`
	Data    []DataFileConfig `toml:"data"`
}

// DataFileConfig points at one CSV file of market data for one symbol.
type DataFileConfig struct {
	Path   string `toml:"path"`
	Symbol string `toml:"symbol"`
	// Kind is "tick" or "candle".
	Kind string `toml:"kind"`
	// Unit and Period give the bar resolution for candle files.
	Unit   string `toml:"unit"`
	Period int    `toml:"period"`
}

// SubscriptionConfig describes one consolidator subscription.
type SubscriptionConfig struct {
	Symbol      string  `toml:"symbol"`
	SymbolCode  string  `toml:"symbol_code"`
	Vendor      string  `toml:"vendor"`
	BaseKind    string  `toml:"base_kind"`
	Market      string  `toml:"market"`
	CandleKind  string  `toml:"candle_kind"`
	Unit        string  `toml:"unit"`
	Period      int     `toml:"period"`
	FillForward bool    `toml:"fill_forward"`
	BrickSize   float64 `toml:"brick_size"`
}

// Subscription converts the TOML shape into the domain value.
func (s SubscriptionConfig) Subscription() domain.DataSubscription {
	code := s.SymbolCode
	if code == "" {
		code = s.Symbol
	}
	return domain.DataSubscription{
		SymbolName: s.Symbol,
		SymbolCode: code,
		Vendor:     domain.DataVendor(s.Vendor),
		Resolution: domain.Resolution{
			Unit:   domain.ResolutionUnit(s.Unit),
			Period: s.Period,
		},
		BaseKind: domain.BaseDataKind(s.BaseKind),
		Market:   domain.MarketType(s.Market),
		Candle:   domain.CandleKind(s.CandleKind),
	}
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "250ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:15555",
		},
		WS: WSConfig{
			Enabled: true,
			Port:    8000,
		},
		Engine: EngineConfig{
			TickInterval:       duration{250 * time.Millisecond},
			ReconcileTolerance: 1e-9,
		},
		Ledger: LedgerConfig{
			StartingCash: 100_000,
			Currency:     "USD",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tradecore",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradecore-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Cron:          "0 3 * * *",
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "order_rejected", "position_discrepancy", "position_closed"},
		},
		Backtest: BacktestConfig{
			Account: "backtest",
		},
		Mode:     string(domain.ModeBacktest),
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode, err := domain.ParseRunMode(c.Mode)
	if err != nil {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: backtest, live, live_paper)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Addr == "" {
		errs = append(errs, "server: addr must not be empty")
	}

	if c.WS.Enabled {
		if c.WS.Port <= 0 || c.WS.Port > 65535 {
			errs = append(errs, fmt.Sprintf("ws: port must be 1-65535, got %d", c.WS.Port))
		}
	}

	if c.Engine.TickInterval.Duration <= 0 {
		errs = append(errs, "engine: tick_interval must be > 0")
	}
	if c.Engine.ReconcileTolerance < 0 {
		errs = append(errs, "engine: reconcile_tolerance must be >= 0")
	}

	if c.Ledger.StartingCash <= 0 && c.Mode != string(domain.ModeLive) {
		errs = append(errs, "ledger: starting_cash must be > 0 for backtest and paper runs")
	}
	if c.Ledger.Currency == "" {
		errs = append(errs, "ledger: currency must not be empty")
	}

	// Postgres and Redis only matter for live runs; a backtest never dials
	// either, so skip their checks there.
	if err == nil && mode.IsLive() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if len(strings.Fields(c.Archive.Cron)) != 5 {
			errs = append(errs, fmt.Sprintf("archive: cron must have 5 fields, got %q", c.Archive.Cron))
		}
	}

	if err == nil && mode == domain.ModeBacktest {
		if len(c.Backtest.Data) == 0 {
			errs = append(errs, "backtest: at least one [[backtest.data]] file is required")
		}
		for i, d := range c.Backtest.Data {
			if d.Path == "" {
				errs = append(errs, fmt.Sprintf("backtest.data[%d]: path must not be empty", i))
			}
			if d.Symbol == "" {
				errs = append(errs, fmt.Sprintf("backtest.data[%d]: symbol must not be empty", i))
			}
			switch d.Kind {
			case "tick":
			case "candle":
				if d.Period < 1 || d.Unit == "" {
					errs = append(errs, fmt.Sprintf("backtest.data[%d]: candle files need unit and period", i))
				}
			default:
				errs = append(errs, fmt.Sprintf("backtest.data[%d]: kind must be tick or candle, got %q", i, d.Kind))
			}
		}
	}

	for i, s := range c.Subscriptions {
		if s.Symbol == "" {
			errs = append(errs, fmt.Sprintf("subscriptions[%d]: symbol must not be empty", i))
		}
		if s.Period < 1 {
			errs = append(errs, fmt.Sprintf("subscriptions[%d]: period must be >= 1", i))
		}
		switch domain.ResolutionUnit(s.Unit) {
		case domain.UnitTicks, domain.UnitSeconds, domain.UnitMinutes, domain.UnitHours, domain.UnitDays:
		default:
			errs = append(errs, fmt.Sprintf("subscriptions[%d]: unknown unit %q", i, s.Unit))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
