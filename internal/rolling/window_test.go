package rolling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowAddAndAt(t *testing.T) {
	w := New[int](3)
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 3, w.Cap())

	w.Add(1)
	w.Add(2)
	w.Add(3)

	require.True(t, w.Full())

	v, ok := w.At(0)
	require.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = w.At(2)
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestWindowOverwriteOnFull(t *testing.T) {
	w := New[int](3)
	for i := 1; i <= 5; i++ {
		w.Add(i)
	}

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []int{5, 4, 3}, w.Values())

	_, ok := w.At(3)
	assert.False(t, ok, "evicted elements must not be reachable")
}

func TestWindowLatest(t *testing.T) {
	w := New[string](2)

	_, ok := w.Latest()
	assert.False(t, ok)

	w.Add("a")
	w.Add("b")

	v, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestWindowClampsCapacity(t *testing.T) {
	w := New[int](0)
	assert.Equal(t, 1, w.Cap())

	w.Add(7)
	w.Add(8)
	assert.Equal(t, []int{8}, w.Values())
}

func TestWindowReset(t *testing.T) {
	w := New[int](4)
	w.Add(1)
	w.Add(2)
	w.Reset()

	assert.Equal(t, 0, w.Len())
	_, ok := w.Latest()
	assert.False(t, ok)

	w.Add(9)
	assert.Equal(t, []int{9}, w.Values())
}
