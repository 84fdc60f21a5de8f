// Package feed supplies market data to the platform: a deterministic replay
// source for backtests and a bus-driven price feeder for live runs.
package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quantfold/tradecore/internal/domain"
)

// Replay is a deterministic data source over a pre-loaded point series. It
// doubles as the historical provider for consolidator warm-up and as the
// reference-price provider for the matching engine: the price of a symbol is
// always the last point the backtest loop has consumed.
type Replay struct {
	mu     sync.Mutex
	points []domain.BaseData
	idx    int
	last   map[string]float64
	codes  map[string]string
}

// NewReplay creates an empty replay source.
func NewReplay() *Replay {
	return &Replay{
		last:  make(map[string]float64),
		codes: make(map[string]string),
	}
}

// MapSymbol registers the trading code a data file's symbol is keyed under.
// Orders and ledger positions carry the code, while raw points only carry the
// name; with a mapping in place consumed prices are retrievable under both.
func (r *Replay) MapSymbol(name, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code != "" && code != name {
		r.codes[name] = code
	}
}

// Code resolves a symbol name to its mapped trading code, or returns the name
// unchanged when no mapping was registered.
func (r *Replay) Code(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code, ok := r.codes[name]; ok {
		return code
	}
	return name
}

// Load adds points to the series and re-sorts the whole stream by time. Call
// it before the run starts.
func (r *Replay) Load(points []domain.BaseData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.points = append(r.points, points...)
	sort.SliceStable(r.points, func(i, j int) bool {
		return r.points[i].Time().Before(r.points[j].Time())
	})
}

// Next consumes the earliest unconsumed point. It returns false when the
// series is exhausted.
func (r *Replay) Next() (domain.BaseData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.idx >= len(r.points) {
		return nil, false
	}
	p := r.points[r.idx]
	r.idx++
	r.last[p.SymbolName()] = p.Price()
	if code, ok := r.codes[p.SymbolName()]; ok {
		r.last[code] = p.Price()
	}
	return p, true
}

// Len returns the total number of loaded points.
func (r *Replay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.points)
}

// ReferencePrice returns the price of the last consumed point for the symbol.
func (r *Replay) ReferencePrice(_ context.Context, symbolCode string, _ domain.Side) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	price, ok := r.last[symbolCode]
	if !ok {
		return 0, fmt.Errorf("feed: %s: %w", symbolCode, domain.ErrNoPrice)
	}
	return price, nil
}

// FetchHistorical returns the loaded points for the subscription's symbol
// within [from, to), ordered by time ascending. Consolidator warm-up over a
// replay source is fully deterministic.
func (r *Replay) FetchHistorical(_ context.Context, sub domain.DataSubscription, from, to time.Time) ([]domain.BaseData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.BaseData
	for _, p := range r.points {
		if p.SymbolName() != sub.SymbolName {
			continue
		}
		if p.Time().Before(from) || !p.Time().Before(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Compile-time interface checks.
var (
	_ domain.PriceProvider      = (*Replay)(nil)
	_ domain.HistoricalProvider = (*Replay)(nil)
)
