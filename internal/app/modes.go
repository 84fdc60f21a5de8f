package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfold/tradecore/internal/domain"
	"github.com/quantfold/tradecore/internal/feed"
	"github.com/quantfold/tradecore/internal/ledger"
	"github.com/quantfold/tradecore/internal/notify"
	"github.com/quantfold/tradecore/internal/pipeline"
	"github.com/quantfold/tradecore/internal/server"
	"github.com/quantfold/tradecore/internal/server/ws"
)

// statusEvent is the engine heartbeat published on the status channel.
type statusEvent struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Pending int       `json:"pending"`
}

// BacktestMode replays the configured data files through the consolidators,
// ledgers, and matching engine on a synthetic clock. The request server runs
// alongside so strategies can submit orders while data is replayed; the run
// ends when the series is exhausted.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	for _, df := range a.cfg.Backtest.Data {
		var (
			points []domain.BaseData
			err    error
		)
		switch df.Kind {
		case "candle":
			res := domain.Resolution{Unit: domain.ResolutionUnit(df.Unit), Period: df.Period}
			points, err = feed.LoadCandlesFile(df.Path, df.Symbol, res)
		default:
			points, err = feed.LoadTicksFile(df.Path, df.Symbol)
		}
		if err != nil {
			return fmt.Errorf("app: load backtest data: %w", err)
		}
		deps.Replay.Load(points)
		a.logger.InfoContext(ctx, "backtest data loaded",
			slog.String("path", df.Path),
			slog.String("symbol", df.Symbol),
			slog.Int("points", len(points)),
		)
	}

	led, err := deps.Ledgers.GetOrInit(ctx, a.cfg.Backtest.Account)
	if err != nil {
		return fmt.Errorf("app: init backtest ledger: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	srv := server.New(
		server.Config{Addr: a.cfg.Server.Addr},
		deps.Queue,
		sliceProvider{deps.Consolidators},
		deps.Bus,
		a.logger,
	)
	g.Go(func() error {
		err := srv.Start(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("app: server: %w", err)
	})

	g.Go(func() error {
		defer cancel()
		return a.replayLoop(gctx, deps, led)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	for _, snap := range deps.Ledgers.Snapshots() {
		a.logger.Info("backtest result",
			slog.String("account", snap.Account),
			slog.Float64("cash_value", snap.CashValue),
			slog.Float64("booked_pnl", snap.BookedPnL),
			slog.Float64("open_pnl", snap.OpenPnL),
			slog.Int("open_positions", len(snap.Positions)),
			slog.Int("closed_positions", snap.ClosedCount),
		)
	}
	return nil
}

// replayLoop drives one data point at a time through the whole platform:
// consolidators first, then marks, then a match pass at the point's time.
func (a *App) replayLoop(ctx context.Context, deps *Dependencies, led *ledger.Ledger) error {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		p, ok := deps.Replay.Next()
		if !ok {
			break
		}

		deps.Consolidators.UpdateTime(ctx, p.Time())
		deps.Consolidators.Update(ctx, p)
		led.Mark(deps.Replay.Code(p.SymbolName()), p.Price())

		if pending := deps.Queue.TakeAll(); len(pending) > 0 {
			deps.Queue.Requeue(deps.Engine.Match(ctx, pending, p.Time()))
		}
		processed++
	}

	a.logger.InfoContext(ctx, "backtest replay finished", slog.Int("points", processed))
	return nil
}

// LiveMode runs against live data with real accounts. The Redis run lock
// guarantees at most one engine instance trades at a time.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	unlock, err := deps.RunLock.Acquire(ctx, "engine", 0)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	defer unlock()

	return a.runLive(ctx, deps)
}

// LivePaperMode runs against live data with paper accounts seeded from
// configured starting cash. No run lock: paper instances may coexist.
func (a *App) LivePaperMode(ctx context.Context, deps *Dependencies) error {
	return a.runLive(ctx, deps)
}

func (a *App) runLive(ctx context.Context, deps *Dependencies) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := server.New(
		server.Config{Addr: a.cfg.Server.Addr},
		deps.Queue,
		sliceProvider{deps.Consolidators},
		deps.Bus,
		a.logger,
	)
	g.Go(a.task(gctx, "server", srv.Start))

	if a.cfg.WS.Enabled {
		hub := ws.NewHub(deps.Bus, a.logger, ws.Config{Mode: deps.Mode})
		g.Go(a.task(gctx, "ws hub", hub.Run))

		mux := http.NewServeMux()
		mux.HandleFunc("/ws", hub.HandleWS)
		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.WS.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			err := httpSrv.ListenAndServe()
			if gctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: ws endpoint: %w", err)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
			return nil
		})
	}

	feeder := feed.NewPriceFeeder(deps.Bus, deps.PriceCache, deps.Consolidators, deps.Ledgers, a.logger)
	g.Go(a.task(gctx, "price feeder", feeder.Run))

	reconciler := ledger.NewReconciler(deps.Bus, deps.Ledgers, a.logger)
	g.Go(a.task(gctx, "reconciler", reconciler.Run))

	if deps.OrderStore != nil || deps.PositionStore != nil {
		recorder := pipeline.NewRecorder(deps.Bus, deps.OrderStore, deps.PositionStore, a.logger)
		var archiver *pipeline.Archiver
		if deps.ColdStore != nil {
			archiver = pipeline.NewArchiver(deps.ColdStore, a.cfg.Archive.RetentionDays, a.logger)
		}
		orchestrator := pipeline.NewOrchestrator(recorder, archiver, a.cfg.Archive.Cron, a.logger)
		g.Go(a.task(gctx, "pipeline", orchestrator.Run))
	}

	alerter := notify.NewAlerter(deps.Bus, deps.Notifier, a.logger)
	g.Go(a.task(gctx, "alerter", alerter.Run))

	g.Go(func() error {
		return a.engineLoop(gctx, deps)
	})

	return g.Wait()
}

// engineLoop is the live match loop: every tick it closes due time-based
// bars, runs a match pass over the pending set, and publishes a heartbeat.
func (a *App) engineLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Engine.TickInterval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "engine loop started", slog.Duration("tick_interval", interval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			now = now.UTC()
			deps.Consolidators.UpdateTime(ctx, now)

			remaining := 0
			if pending := deps.Queue.TakeAll(); len(pending) > 0 {
				survivors := deps.Engine.Match(ctx, pending, now)
				deps.Queue.Requeue(survivors)
				remaining = len(survivors)
			}

			if payload, err := json.Marshal(statusEvent{
				Type:    "engine_tick",
				At:      now,
				Pending: remaining,
			}); err == nil {
				_ = deps.Bus.Publish(ctx, domain.ChannelStatus, payload)
			}
		}
	}
}

// task wraps a run function so context cancellation counts as a clean exit
// and any other error is labelled with the task name.
func (a *App) task(ctx context.Context, name string, fn func(context.Context) error) func() error {
	return func() error {
		err := fn(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("app: %s: %w", name, err)
		}
		return nil
	}
}
