package indexer

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/supertypo/simply-kaspa-indexer/config"
	"github.com/supertypo/simply-kaspa-indexer/database"
	"github.com/supertypo/simply-kaspa-indexer/metrics"
	"github.com/supertypo/simply-kaspa-indexer/model"
	"github.com/supertypo/simply-kaspa-indexer/signal"
)

// CheckpointOrigin identifies the stage that reports a checkpoint candidate.
type CheckpointOrigin int

const (
	OriginInitial CheckpointOrigin = iota
	OriginBlocks
	OriginTransactions
	OriginVcp
)

func (o CheckpointOrigin) String() string {
	switch o {
	case OriginBlocks:
		return "Blocks"
	case OriginTransactions:
		return "Transactions"
	case OriginVcp:
		return "Vcp"
	}
	return "Initial"
}

// CheckpointBlock is one stage's report that it durably committed the given
// block.
type CheckpointBlock struct {
	Origin    CheckpointOrigin
	Hash      model.Hash
	Timestamp uint64
	DaaScore  uint64
	BlueScore uint64
}

// BlockInfo converts the checkpoint to its metrics representation.
func (b CheckpointBlock) BlockInfo() *metrics.BlockInfo {
	return &metrics.BlockInfo{Hash: b.Hash.String(), Timestamp: b.Timestamp, DaaScore: b.DaaScore, BlueScore: b.BlueScore}
}

const (
	checkpointSaveInterval = 60 * time.Second
	checkpointWarnInterval = 120 * time.Second
	// checkpointFailedTimeout is expressed in seconds of blue-score headroom
	// (multiplied by net_bps) the pipeline may advance past a candidate
	// before the candidate is declared failed.
	checkpointFailedTimeout = 600
)

// checkpointAction is the tracker's verdict after one observation.
type checkpointAction int

const (
	checkpointNone checkpointAction = iota
	checkpointSave
	checkpointWarn
	checkpointFailed
)

// checkpointTracker implements the candidate-selection state machine. The
// persisted checkpoint must be a hash every enabled stage has confirmed;
// with VCP enabled its candidates are the source of truth, otherwise the
// block processor's are.
type checkpointTracker struct {
	vcpEnabled bool
	txEnabled  bool
	netBps     int

	candidate  *CheckpointBlock
	lastSaved  time.Time
	lastWarned time.Time

	lastBlockBlueScore uint64
	lastTxBlueScore    uint64

	blocksProcessed map[model.Hash]struct{}
	txsProcessed    map[model.Hash]struct{}

	okBlocks bool
	okTxs    bool
}

func newCheckpointTracker(vcpEnabled, txEnabled bool, netBps int, now time.Time) *checkpointTracker {
	return &checkpointTracker{
		vcpEnabled:      vcpEnabled,
		txEnabled:       txEnabled,
		netBps:          netBps,
		lastSaved:       now,
		lastWarned:      now,
		blocksProcessed: make(map[model.Hash]struct{}),
		txsProcessed:    make(map[model.Hash]struct{}),
	}
}

// observe folds one checkpoint report into the state machine and returns the
// resulting action. On checkpointSave and checkpointFailed the candidate is
// consumed.
func (t *checkpointTracker) observe(cb CheckpointBlock, now time.Time) (checkpointAction, *CheckpointBlock) {
	switch cb.Origin {
	case OriginBlocks:
		t.lastBlockBlueScore = cb.BlueScore
		if !t.vcpEnabled {
			if t.candidate == nil && now.Sub(t.lastSaved) > checkpointSaveInterval {
				log.Debugf("Selected block_checkpoint candidate %s", cb.Hash)
				candidate := cb
				t.candidate = &candidate
				t.lastWarned = now
				t.okBlocks = true
				t.okTxs = false
			}
		} else {
			t.blocksProcessed[cb.Hash] = struct{}{}
		}
	case OriginTransactions:
		t.lastTxBlueScore = cb.BlueScore
		t.txsProcessed[cb.Hash] = struct{}{}
	case OriginVcp:
		if t.candidate == nil && now.Sub(t.lastSaved) > checkpointSaveInterval {
			log.Debugf("Selected block_checkpoint candidate %s", cb.Hash)
			candidate := cb
			t.candidate = &candidate
			t.lastWarned = now
			t.okBlocks = false
			t.okTxs = false
		}
	}
	if t.candidate == nil {
		return checkpointNone, nil
	}
	candidate := *t.candidate
	if !t.okBlocks {
		if _, ok := t.blocksProcessed[candidate.Hash]; ok {
			t.okBlocks = true
		}
	}
	t.blocksProcessed = make(map[model.Hash]struct{})
	if !t.okTxs {
		if !t.txEnabled {
			t.okTxs = true
		} else if _, ok := t.txsProcessed[candidate.Hash]; ok {
			t.okTxs = true
		}
	}
	t.txsProcessed = make(map[model.Hash]struct{})

	headroom := uint64(checkpointFailedTimeout * t.netBps)
	switch {
	case t.okBlocks && t.okTxs:
		t.lastSaved = now
		t.candidate = nil
		return checkpointSave, &candidate
	case now.Sub(t.lastWarned) > checkpointWarnInterval:
		t.lastWarned = now
		return checkpointWarn, &candidate
	case t.lastBlockBlueScore > candidate.BlueScore+headroom &&
		(!t.txEnabled || t.lastTxBlueScore > candidate.BlueScore+headroom):
		// Reset the interval too, otherwise the next candidate fails
		// immediately.
		t.lastSaved = now
		t.candidate = nil
		return checkpointFailed, &candidate
	}
	return checkpointNone, &candidate
}

// CheckpointCoordinator drains the checkpoint queue and persists the resume
// point once every enabled stage has confirmed the candidate.
type CheckpointCoordinator struct {
	settings Settings
	sig      *signal.Handler
	met      *metrics.Metrics
	queue    *Queue[CheckpointBlock]
	db       *database.Client
}

// NewCheckpointCoordinator wires the coordinator.
func NewCheckpointCoordinator(settings Settings, sig *signal.Handler, met *metrics.Metrics,
	queue *Queue[CheckpointBlock], db *database.Client) *CheckpointCoordinator {
	return &CheckpointCoordinator{settings: settings, sig: sig, met: met, queue: queue, db: db}
}

// Run processes checkpoint reports until shutdown.
func (c *CheckpointCoordinator) Run(ctx context.Context) {
	cfg := c.settings.Cfg
	tracker := newCheckpointTracker(
		!cfg.IsDisabled(config.DisableVirtualChainProcessing),
		!cfg.IsDisabled(config.DisableTransactionProcessing),
		c.settings.NetBps,
		time.Now(),
	)
	for !c.sig.IsShutdown() {
		cb, ok := c.queue.TryPop()
		if !ok {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-c.sig.Done():
			}
			continue
		}
		action, candidate := tracker.observe(cb, time.Now())
		switch action {
		case checkpointSave:
			log.Infof("Saving block_checkpoint %s", candidate.Hash)
			if err := SaveBlockCheckpoint(ctx, c.db, candidate.Hash); err != nil {
				log.Fatalf("Saving block_checkpoint FAILED: %v", err)
			}
			c.met.Update(func(s *metrics.Snapshot) {
				s.Checkpoint.Origin = candidate.Origin.String()
				s.Checkpoint.Block = candidate.BlockInfo()
			})
		case checkpointWarn:
			log.Warnf("Still unable to save block_checkpoint %s", candidate.Hash)
		case checkpointFailed:
			log.Errorf("Failed to synchronize on block_checkpoint %s", candidate.Hash)
		}
	}
}
