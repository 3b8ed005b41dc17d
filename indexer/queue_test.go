package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PushPopOrder(t *testing.T) {
	q := NewQueue[int](3)
	assert.True(t, q.TryPush(1))
	assert.True(t, q.TryPush(2))
	assert.True(t, q.TryPush(3))

	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestQueue_FullRejectsPush(t *testing.T) {
	q := NewQueue[string](1)
	require.True(t, q.TryPush("a"))
	assert.False(t, q.TryPush("b"))

	_, ok := q.TryPop()
	require.True(t, ok)
	assert.True(t, q.TryPush("b"))
}

func TestQueue_EmptyPop(t *testing.T) {
	q := NewQueue[int](1)
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestQueue_CapacityOne(t *testing.T) {
	// The pipeline must work without any internal batching assumption.
	q := NewQueue[int](1)
	for i := 0; i < 100; i++ {
		require.True(t, q.TryPush(i))
		v, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 1, q.Cap())
}

func TestQueue_LenCap(t *testing.T) {
	q := NewQueue[int](10)
	assert.Equal(t, 10, q.Cap())
	q.TryPush(1)
	q.TryPush(2)
	assert.Equal(t, 2, q.Len())
}
