package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	s3blob "github.com/quantfold/tradecore/internal/blob/s3"
	"github.com/quantfold/tradecore/internal/bus"
	"github.com/quantfold/tradecore/internal/cache/redis"
	"github.com/quantfold/tradecore/internal/config"
	"github.com/quantfold/tradecore/internal/consolidator"
	"github.com/quantfold/tradecore/internal/domain"
	"github.com/quantfold/tradecore/internal/engine"
	"github.com/quantfold/tradecore/internal/feed"
	"github.com/quantfold/tradecore/internal/ledger"
	"github.com/quantfold/tradecore/internal/notify"
	"github.com/quantfold/tradecore/internal/pipeline"
	"github.com/quantfold/tradecore/internal/store/postgres"
)

// Dependencies bundles everything the run modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Mode domain.RunMode

	Bus    domain.EventBus
	Prices domain.PriceProvider

	// Replay is the backtest data source; nil in live modes.
	Replay *feed.Replay
	// PriceCache receives live prices; nil in backtest mode.
	PriceCache *redis.PriceCache
	// RunLock guards single-instance live trading; nil outside live mode.
	RunLock *redis.RunLock

	Ledgers       *ledger.Service
	Queue         *engine.Queue
	Engine        *engine.Engine
	Consolidators *consolidator.Registry

	// Persistence; nil in backtest mode.
	OrderStore    domain.OrderStore
	PositionStore domain.PositionHistoryStore
	// ColdStore is the S3 archiver; nil unless archiving is enabled.
	ColdStore pipeline.ColdStore

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode, err := domain.ParseRunMode(cfg.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Mode: mode}

	// --- Event bus and prices ---
	// A backtest stays in-process for determinism; live runs fan events out
	// through Redis and read reference prices from the shared cache.
	if mode.IsLive() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Bus = redis.NewEventBus(redisClient)
		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.Prices = deps.PriceCache
		deps.RunLock = redis.NewRunLock(redisClient)
	} else {
		deps.Bus = bus.NewMemory()
		deps.Replay = feed.NewReplay()
		deps.Prices = deps.Replay
	}

	// --- Ledgers and engine ---
	deps.Ledgers = ledger.NewService(ledger.ServiceConfig{
		StartingCash:       cfg.Ledger.StartingCash,
		Currency:           cfg.Ledger.Currency,
		ReconcileTolerance: cfg.Engine.ReconcileTolerance,
	}, deps.Bus, logger)
	deps.Queue = engine.NewQueue()
	deps.Engine = engine.New(deps.Ledgers, deps.Prices, deps.Bus, logger)

	// --- Consolidators ---
	deps.Consolidators = consolidator.NewRegistry(deps.Bus, logger)
	for _, sc := range cfg.Subscriptions {
		sub := sc.Subscription()
		opts := []consolidator.Option{consolidator.WithFillForward(sc.FillForward)}
		if sc.BrickSize > 0 {
			opts = append(opts, consolidator.WithBrickSize(sc.BrickSize))
		}
		if _, err := deps.Consolidators.Subscribe(sub, opts...); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: subscribe %s: %w", sc.Symbol, err)
		}
		// Backtest prices join on the trading code, data files on the name.
		if deps.Replay != nil {
			deps.Replay.MapSymbol(sub.SymbolName, sub.SymbolCode)
		}
	}

	// --- PostgreSQL (live modes only) ---
	if mode.IsLive() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.PositionStore = postgres.NewPositionHistoryStore(pool)
	}

	// --- S3 cold storage ---
	if cfg.Archive.Enabled && deps.OrderStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.ColdStore = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.OrderStore,
			deps.PositionStore,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// sliceProvider serves the consolidated bar history of every subscription as
// one JSON document, keyed by subscription.
type sliceProvider struct {
	registry *consolidator.Registry
}

func (p sliceProvider) ConsolidatedSlice(_ context.Context, _ string) ([]byte, error) {
	return json.Marshal(p.registry.Slice())
}
