package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/tradecore/internal/domain"
)

func TestSubmitAssignsIDAndState(t *testing.T) {
	q := NewQueue()

	o := &domain.Order{Account: "A", SymbolCode: "ES", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 1}
	require.NoError(t, q.Submit(o, now))

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, domain.OrderStateCreated, o.State)
	assert.Equal(t, now, o.CreatedAt)
	assert.Equal(t, 1, q.Len())
}

func TestSubmitRefusesDuplicateID(t *testing.T) {
	q := NewQueue()

	a := &domain.Order{ID: "dup", Type: domain.OrderTypeMarket, Quantity: 1}
	b := &domain.Order{ID: "dup", Type: domain.OrderTypeMarket, Quantity: 2}

	require.NoError(t, q.Submit(a, now))
	assert.ErrorIs(t, q.Submit(b, now), domain.ErrAlreadyExists)
	assert.Equal(t, 1, q.Len())
}

func TestSubmitRejectsNonPositiveQuantity(t *testing.T) {
	q := NewQueue()

	assert.Error(t, q.Submit(&domain.Order{Type: domain.OrderTypeMarket}, now))
	assert.Error(t, q.Submit(&domain.Order{Type: domain.OrderTypeLimit, Quantity: -3}, now))

	// Bracket updates carry no quantity.
	assert.NoError(t, q.Submit(&domain.Order{Type: domain.OrderTypeUpdateBrackets}, now))
}

func TestCancelRemovesPendingOrder(t *testing.T) {
	q := NewQueue()

	o := &domain.Order{ID: "o-1", Type: domain.OrderTypeLimit, Quantity: 1}
	require.NoError(t, q.Submit(o, now))

	got, err := q.Cancel("o-1", now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateCancelled, got.State)
	assert.Equal(t, 0, q.Len())

	_, err = q.Cancel("o-1", now)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTakeAllPreservesSubmissionOrder(t *testing.T) {
	q := NewQueue()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Submit(&domain.Order{ID: id, Type: domain.OrderTypeMarket, Quantity: 1}, now))
	}

	taken := q.TakeAll()
	require.Len(t, taken, 3)
	assert.Equal(t, "a", taken[0].ID)
	assert.Equal(t, "b", taken[1].ID)
	assert.Equal(t, "c", taken[2].ID)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.TakeAll())
}

func TestRequeuePutsSurvivorsFirst(t *testing.T) {
	q := NewQueue()

	survivor := &domain.Order{ID: "survivor", Type: domain.OrderTypeLimit, Quantity: 1, State: domain.OrderStateAccepted}
	late := &domain.Order{ID: "late", Type: domain.OrderTypeMarket, Quantity: 1}
	require.NoError(t, q.Submit(late, now))

	q.Requeue([]*domain.Order{survivor})

	taken := q.TakeAll()
	require.Len(t, taken, 2)
	assert.Equal(t, "survivor", taken[0].ID)
	assert.Equal(t, "late", taken[1].ID)
}

func TestRequeuedOrderCanBeCancelled(t *testing.T) {
	q := NewQueue()

	o := &domain.Order{ID: "o-1", Type: domain.OrderTypeLimit, Quantity: 1}
	require.NoError(t, q.Submit(o, now))

	taken := q.TakeAll()
	q.Requeue(taken)

	_, err := q.Cancel("o-1", now)
	assert.NoError(t, err)
}
