package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/quantfold/tradecore/internal/consolidator"
	"github.com/quantfold/tradecore/internal/domain"
	"github.com/quantfold/tradecore/internal/ledger"
)

// priceEvent is the JSON shape vendor adapters publish to "prices".
type priceEvent struct {
	SymbolCode string  `json:"symbol_code"`
	Symbol     string  `json:"symbol,omitempty"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume,omitempty"`
	Timestamp  string  `json:"timestamp,omitempty"`
}

// PriceSink receives every live price so the matching engine can read it
// back. The Redis price cache implements it.
type PriceSink interface {
	SetPrice(ctx context.Context, symbolCode string, price float64, ts time.Time) error
}

// PriceFeeder subscribes to the "prices" bus channel and fans each update
// into the price sink, the consolidators, and the open-position marks. It is
// the live-mode counterpart of the backtest replay loop.
type PriceFeeder struct {
	eventBus      domain.EventBus
	sink          PriceSink
	consolidators *consolidator.Registry
	ledgers       *ledger.Service
	logger        *slog.Logger
}

// NewPriceFeeder creates a PriceFeeder. The sink and registry may be nil when
// the corresponding consumer is not running.
func NewPriceFeeder(
	eventBus domain.EventBus,
	sink PriceSink,
	consolidators *consolidator.Registry,
	ledgers *ledger.Service,
	logger *slog.Logger,
) *PriceFeeder {
	return &PriceFeeder{
		eventBus:      eventBus,
		sink:          sink,
		consolidators: consolidators,
		ledgers:       ledgers,
		logger:        logger.With(slog.String("component", "price_feeder")),
	}
}

// Run consumes price updates until the context ends.
func (f *PriceFeeder) Run(ctx context.Context) error {
	ch, err := f.eventBus.Subscribe(ctx, "prices")
	if err != nil {
		return err
	}
	f.logger.InfoContext(ctx, "price feeder started")
	defer f.logger.InfoContext(ctx, "price feeder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := f.handle(ctx, data); err != nil {
				f.logger.DebugContext(ctx, "price update dropped",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
			}
		}
	}
}

func (f *PriceFeeder) handle(ctx context.Context, data []byte) error {
	var ev priceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}

	code := strings.TrimSpace(ev.SymbolCode)
	if code == "" || ev.Price <= 0 {
		return nil
	}
	symbol := ev.Symbol
	if symbol == "" {
		symbol = code
	}

	ts := time.Now().UTC()
	if ev.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, ev.Timestamp); err == nil {
			ts = t.UTC()
		}
	}

	if f.sink != nil {
		if err := f.sink.SetPrice(ctx, code, ev.Price, ts); err != nil {
			return err
		}
	}

	if f.consolidators != nil {
		f.consolidators.Update(ctx, domain.Tick{
			Symbol: symbol,
			At:     ts,
			Last:   ev.Price,
			Size:   ev.Volume,
		})
	}

	if f.ledgers != nil {
		for _, account := range f.ledgers.Accounts() {
			if l, err := f.ledgers.Get(account); err == nil {
				l.Mark(code, ev.Price)
			}
		}
	}

	return nil
}
