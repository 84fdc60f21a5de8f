package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/quantfold/tradecore/internal/domain"
)

// Reconciler consumes broker-reported account snapshots and folds them into
// the local ledgers. Discrepancy handling lives in
// Ledger.SynchronizeLivePosition; this type is only the bus plumbing.
type Reconciler struct {
	bus     domain.EventBus
	ledgers *Service
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(bus domain.EventBus, ledgers *Service, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		bus:     bus,
		ledgers: ledgers,
		logger:  logger.With(slog.String("component", "reconciler")),
	}
}

// Run consumes snapshots until the context ends.
func (r *Reconciler) Run(ctx context.Context) error {
	ch, err := r.bus.Subscribe(ctx, domain.ChannelBrokerAccounts)
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "reconciler started")
	defer r.logger.InfoContext(ctx, "reconciler stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, data)
		}
	}
}

func (r *Reconciler) handle(ctx context.Context, data []byte) {
	var snap domain.AccountSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.logger.DebugContext(ctx, "bad account snapshot", slog.String("error", err.Error()))
		return
	}
	if snap.Account == "" {
		return
	}

	led, err := r.ledgers.GetOrInit(ctx, snap.Account)
	if err != nil {
		r.logger.ErrorContext(ctx, "ledger init failed",
			slog.String("account", snap.Account),
			slog.String("error", err.Error()),
		)
		return
	}

	led.LiveAccountUpdates(snap.CashValue, snap.CashAvailable, snap.CashUsed)

	now := time.Now().UTC()
	for _, pos := range snap.Positions {
		if _, err := led.SynchronizeLivePosition(ctx, pos, now); err != nil {
			r.logger.WarnContext(ctx, "position sync failed",
				slog.String("account", snap.Account),
				slog.String("symbol_code", pos.SymbolCode),
				slog.String("error", err.Error()),
			)
		}
	}
}
