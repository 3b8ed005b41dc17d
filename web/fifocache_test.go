package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFifoCache_EvictsInInsertionOrder(t *testing.T) {
	c := NewFifoCache[string, int](2)
	c.Insert("a", 1)
	c.Insert("b", 2)

	// Reading "a" must not protect it; eviction is strictly FIFO.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Insert("c", 3)
	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
	assert.Equal(t, 2, c.Len())
}

func TestFifoCache_UpdateKeepsPosition(t *testing.T) {
	c := NewFifoCache[string, int](2)
	c.Insert("a", 1)
	c.Insert("b", 2)
	c.Insert("a", 10)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)

	// "a" is still the oldest entry and goes first.
	c.Insert("c", 3)
	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
}

func TestFifoCache_MissingKey(t *testing.T) {
	c := NewFifoCache[string, int](1)
	_, ok := c.Get("nope")
	assert.False(t, ok)
}
