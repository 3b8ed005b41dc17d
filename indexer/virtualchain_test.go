package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTipDistance_StaticWhenDisabled(t *testing.T) {
	c := newTipDistanceController(false, 10)
	assert.Equal(t, 0, c.distance)
	for i := 0; i < 20; i++ {
		c.observe(true, true)
	}
	assert.Equal(t, 0, c.distance)
}

func TestTipDistance_StartsAtTenWhenDynamic(t *testing.T) {
	c := newTipDistanceController(true, 10)
	assert.Equal(t, 10, c.distance)
}

func TestTipDistance_IncreasesAfterThreeReorgs(t *testing.T) {
	c := newTipDistanceController(true, 10)
	assert.False(t, c.observe(true, false))
	assert.False(t, c.observe(true, false))
	assert.True(t, c.observe(true, false))
	assert.Equal(t, 11, c.distance)

	// The triggering reorg was cleared from the window; the distance holds
	// until a fresh reorg joins the two remaining ones.
	assert.False(t, c.observe(false, false))
	assert.Equal(t, 11, c.distance)
	assert.True(t, c.observe(true, false))
	assert.Equal(t, 12, c.distance)
}

func TestTipDistance_DecreasesOnQuietWindowWhenSynced(t *testing.T) {
	window := 4
	c := newTipDistanceController(true, window)
	// One reorg, then quiet batches until the flag slides out.
	c.observe(true, true)
	for i := 0; i < window; i++ {
		c.observe(false, true)
	}
	assert.Equal(t, 9, c.distance)
}

func TestTipDistance_HoldsDecreaseForFullWindow(t *testing.T) {
	window := 3
	c := newTipDistanceController(true, window)
	// While the window is still filling, quiet synced batches leave the
	// distance alone.
	c.observe(false, true)
	assert.Equal(t, 10, c.distance)
	c.observe(false, true)
	assert.Equal(t, 10, c.distance)
	// The window is full and quiet: one decrease, after which the guard flag
	// makes the next decrease wait out a complete quiet window.
	c.observe(false, true)
	assert.Equal(t, 9, c.distance)
	c.observe(false, true)
	assert.Equal(t, 9, c.distance)
	c.observe(false, true)
	assert.Equal(t, 9, c.distance)
	c.observe(false, true)
	assert.Equal(t, 8, c.distance)
}

func TestTipDistance_NeverNegative(t *testing.T) {
	c := newTipDistanceController(true, 2)
	c.distance = 0
	for i := 0; i < 10; i++ {
		c.observe(false, true)
	}
	assert.Equal(t, 0, c.distance)
}

func TestTipDistance_NoDecreaseWhileUnsynced(t *testing.T) {
	c := newTipDistanceController(true, 2)
	for i := 0; i < 10; i++ {
		c.observe(false, false)
	}
	assert.Equal(t, 10, c.distance)
}
