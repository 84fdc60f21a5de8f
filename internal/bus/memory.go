// Package bus provides the in-process event bus used in backtest mode.
// Delivery is synchronous per Publish call, which keeps simulations
// deterministic; live mode swaps in the Redis-backed bus instead.
package bus

import (
	"context"
	"strings"
	"sync"

	"github.com/quantfold/tradecore/internal/domain"
)

const subscriberBuffer = 128

// Memory is an in-process implementation of domain.EventBus. Subscriptions
// support the same glob-style channel patterns as the Redis bus ("*" suffix).
type Memory struct {
	mu   sync.RWMutex
	subs map[string][]*subscriber
}

type subscriber struct {
	pattern string
	ch      chan []byte
	done    <-chan struct{}
	once    sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// NewMemory creates an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]*subscriber)}
}

// Publish delivers the payload to every matching subscriber. A subscriber
// with a full buffer drops the event rather than blocking the publisher.
func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for pattern, subs := range m.subs {
		if !channelMatches(pattern, channel) {
			continue
		}
		for _, sub := range subs {
			select {
			case <-sub.done:
			case sub.ch <- payload:
			default:
			}
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published to channels matching the
// given pattern. The channel closes when ctx is cancelled.
func (m *Memory) Subscribe(ctx context.Context, pattern string) (<-chan []byte, error) {
	sub := &subscriber{
		pattern: pattern,
		ch:      make(chan []byte, subscriberBuffer),
		done:    ctx.Done(),
	}

	m.mu.Lock()
	m.subs[pattern] = append(m.subs[pattern], sub)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.remove(sub)
		sub.close()
	}()

	return sub.ch, nil
}

func (m *Memory) remove(sub *subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subs[sub.pattern]
	for i, s := range subs {
		if s == sub {
			m.subs[sub.pattern] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(m.subs[sub.pattern]) == 0 {
		delete(m.subs, sub.pattern)
	}
}

// channelMatches supports exact names and a trailing "*" wildcard, the only
// pattern shape the platform publishes with.
func channelMatches(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix)
	}
	return false
}

// Compile-time interface check.
var _ domain.EventBus = (*Memory)(nil)
