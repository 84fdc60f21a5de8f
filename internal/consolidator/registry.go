package consolidator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quantfold/tradecore/internal/domain"
)

// Registry owns one consolidator per data subscription and fans raw base
// data into them. Closed bars are published on the event bus under
// "bars:{symbol_code}".
type Registry struct {
	mu            sync.RWMutex
	consolidators map[string]*Consolidator
	bus           domain.EventBus
	logger        *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(bus domain.EventBus, logger *slog.Logger) *Registry {
	return &Registry{
		consolidators: make(map[string]*Consolidator),
		bus:           bus,
		logger:        logger.With(slog.String("component", "consolidator")),
	}
}

// Subscribe creates the consolidator for the subscription, or returns the
// existing one. A consolidator is never shared between subscriptions.
func (r *Registry) Subscribe(sub domain.DataSubscription, opts ...Option) (*Consolidator, error) {
	key := sub.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.consolidators[key]; ok {
		return c, nil
	}

	c, err := New(sub, opts...)
	if err != nil {
		return nil, fmt.Errorf("consolidator: subscribe %s: %w", key, err)
	}
	r.consolidators[key] = c
	return c, nil
}

// Get returns the consolidator for the subscription key.
func (r *Registry) Get(key string) (*Consolidator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.consolidators[key]
	return c, ok
}

// Update feeds one raw point into every consolidator tracking its symbol and
// publishes any bars that close.
func (r *Registry) Update(ctx context.Context, p domain.BaseData) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.consolidators {
		if c.Subscription().SymbolName != p.SymbolName() {
			continue
		}
		if _, closed := c.Update(p); closed != nil {
			r.publishBar(ctx, c.Subscription(), *closed)
		}
	}
}

// UpdateTime advances every time-based consolidator to now, closing bars
// whose window has passed even without new data.
func (r *Registry) UpdateTime(ctx context.Context, now time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.consolidators {
		if closed := c.UpdateTime(now); closed != nil {
			r.publishBar(ctx, c.Subscription(), *closed)
		}
	}
}

// WarmUp drives every registered consolidator over historical data so each
// holds depth closed bars before live processing starts.
func (r *Registry) WarmUp(ctx context.Context, provider domain.HistoricalProvider, end time.Time, depth int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for key, c := range r.consolidators {
		if err := c.WarmUp(ctx, provider, end, depth); err != nil {
			return fmt.Errorf("consolidator: warm up %s: %w", key, err)
		}
	}
	return nil
}

// Slice returns the consolidated history of every subscription, keyed by
// subscription key. It is the payload pushed to registered streamers.
func (r *Registry) Slice() map[string][]domain.Candle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]domain.Candle, len(r.consolidators))
	for key, c := range r.consolidators {
		out[key] = c.History()
	}
	return out
}

func (r *Registry) publishBar(ctx context.Context, sub domain.DataSubscription, bar domain.Candle) {
	if r.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.BarEvent{Subscription: sub, Bar: bar})
	if err != nil {
		r.logger.WarnContext(ctx, "marshal bar event failed", slog.String("error", err.Error()))
		return
	}

	channel := domain.ChannelBars + ":" + sub.SymbolCode
	if err := r.bus.Publish(ctx, channel, payload); err != nil {
		r.logger.WarnContext(ctx, "publish bar event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
