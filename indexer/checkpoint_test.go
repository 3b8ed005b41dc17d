package indexer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supertypo/simply-kaspa-indexer/model"
)

func cp(origin CheckpointOrigin, hash string, blueScore uint64) CheckpointBlock {
	return CheckpointBlock{
		Origin:    origin,
		Hash:      model.MustParseHash(strings.Repeat(hash, 32)),
		BlueScore: blueScore,
	}
}

func TestCheckpointTracker_NoCandidateBeforeInterval(t *testing.T) {
	base := time.Now()
	tracker := newCheckpointTracker(true, true, 10, base)

	action, _ := tracker.observe(cp(OriginVcp, "aa", 1), base.Add(30*time.Second))
	assert.Equal(t, checkpointNone, action)
	assert.Nil(t, tracker.candidate)
}

func TestCheckpointTracker_VcpCandidateWaitsForStages(t *testing.T) {
	// A VCP candidate must not be saved until both the block processor and
	// the transaction processor have reported the same hash.
	base := time.Now()
	tracker := newCheckpointTracker(true, true, 10, base)
	at := base.Add(61 * time.Second)

	action, candidate := tracker.observe(cp(OriginVcp, "aa", 100), at)
	assert.Equal(t, checkpointNone, action)
	require.NotNil(t, candidate)

	// Blocks confirms the hash; transactions still missing.
	action, _ = tracker.observe(cp(OriginBlocks, "aa", 100), at)
	assert.Equal(t, checkpointNone, action)
	assert.True(t, tracker.okBlocks)
	assert.False(t, tracker.okTxs)

	// Transactions confirms: save.
	action, saved := tracker.observe(cp(OriginTransactions, "aa", 100), at)
	assert.Equal(t, checkpointSave, action)
	require.NotNil(t, saved)
	assert.Equal(t, cp(OriginVcp, "aa", 100).Hash, saved.Hash)
	assert.Nil(t, tracker.candidate)
}

func TestCheckpointTracker_ConfirmationsBeforeCandidateCount(t *testing.T) {
	// Hashes seen from Blocks before the candidate is selected still count.
	base := time.Now()
	tracker := newCheckpointTracker(true, false, 10, base)
	at := base.Add(61 * time.Second)

	tracker.observe(cp(OriginBlocks, "bb", 50), base.Add(10*time.Second))
	action, saved := tracker.observe(cp(OriginVcp, "bb", 50), at)
	assert.Equal(t, checkpointSave, action)
	require.NotNil(t, saved)
}

func TestCheckpointTracker_BlocksPrimaryWhenVcpDisabled(t *testing.T) {
	base := time.Now()
	tracker := newCheckpointTracker(false, false, 10, base)
	at := base.Add(61 * time.Second)

	action, saved := tracker.observe(cp(OriginBlocks, "cc", 10), at)
	assert.Equal(t, checkpointSave, action)
	require.NotNil(t, saved)
	assert.Equal(t, OriginBlocks, saved.Origin)
}

func TestCheckpointTracker_BlocksOriginNotCandidateWhenVcpEnabled(t *testing.T) {
	base := time.Now()
	tracker := newCheckpointTracker(true, false, 10, base)
	at := base.Add(61 * time.Second)

	// With VCP enabled, Blocks-origin hashes never become candidates.
	action, candidate := tracker.observe(cp(OriginBlocks, "dd", 10), at)
	assert.Equal(t, checkpointNone, action)
	assert.Nil(t, candidate)
}

func TestCheckpointTracker_FailsOnBlueScoreHeadroom(t *testing.T) {
	base := time.Now()
	netBps := 10
	tracker := newCheckpointTracker(true, false, netBps, base)
	at := base.Add(61 * time.Second)

	_, candidate := tracker.observe(cp(OriginVcp, "ee", 1000), at)
	require.NotNil(t, candidate)

	// The pipeline races far past the candidate without confirming it.
	headroom := uint64(checkpointFailedTimeout * netBps)
	action, failed := tracker.observe(cp(OriginBlocks, "ff", 1000+headroom+1), at.Add(time.Second))
	assert.Equal(t, checkpointFailed, action)
	require.NotNil(t, failed)
	assert.Nil(t, tracker.candidate)

	// The interval restarts; the very next report is not a candidate.
	action, candidate = tracker.observe(cp(OriginVcp, "aa", 2000), at.Add(2*time.Second))
	assert.Equal(t, checkpointNone, action)
	assert.Nil(t, candidate)
}

func TestCheckpointTracker_WarnsWhilePending(t *testing.T) {
	base := time.Now()
	tracker := newCheckpointTracker(true, true, 10, base)
	at := base.Add(61 * time.Second)

	_, _ = tracker.observe(cp(OriginVcp, "aa", 100), at)
	action, _ := tracker.observe(cp(OriginBlocks, "bb", 101), at.Add(121*time.Second))
	assert.Equal(t, checkpointWarn, action)
}
