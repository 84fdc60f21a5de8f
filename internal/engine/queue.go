package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/tradecore/internal/domain"
)

// Queue is the mutex-guarded intake of pending orders feeding Match. It
// preserves submission order; orders returned from Match are put back ahead
// of anything submitted during evaluation.
type Queue struct {
	mu      sync.Mutex
	pending []*domain.Order
	index   map[string]*domain.Order
}

// NewQueue creates an empty order queue.
func NewQueue() *Queue {
	return &Queue{index: make(map[string]*domain.Order)}
}

// Submit enqueues a freshly created order. Missing IDs are assigned; a
// duplicate ID is refused.
func (q *Queue) Submit(o *domain.Order, now time.Time) error {
	if o.Quantity <= 0 && o.Type != domain.OrderTypeUpdateBrackets {
		return fmt.Errorf("engine: order quantity must be positive")
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.index[o.ID]; dup {
		return fmt.Errorf("engine: order %s: %w", o.ID, domain.ErrAlreadyExists)
	}

	o.State = domain.OrderStateCreated
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	q.pending = append(q.pending, o)
	q.index[o.ID] = o
	return nil
}

// Cancel removes a pending order, transitioning it to Cancelled. The caller
// emits the lifecycle event.
func (q *Queue) Cancel(id string, now time.Time) (*domain.Order, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	o, ok := q.index[id]
	if !ok {
		return nil, fmt.Errorf("engine: order %s: %w", id, domain.ErrNotFound)
	}

	if !o.Transition(domain.OrderStateCancelled, now) {
		return nil, fmt.Errorf("engine: order %s in state %s cannot be cancelled", id, o.State)
	}

	delete(q.index, id)
	for i, p := range q.pending {
		if p.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	return o, nil
}

// TakeAll removes and returns every pending order, oldest first.
func (q *Queue) TakeAll() []*domain.Order {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.pending
	q.pending = nil
	for _, o := range out {
		delete(q.index, o.ID)
	}
	return out
}

// Requeue puts surviving orders back at the front of the queue, ahead of
// anything submitted while Match was running.
func (q *Queue) Requeue(orders []*domain.Order) {
	if len(orders) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(orders, q.pending...)
	for _, o := range orders {
		q.index[o.ID] = o
	}
}

// Len returns the number of pending orders.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
