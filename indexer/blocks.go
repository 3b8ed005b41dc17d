package indexer

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/supertypo/simply-kaspa-indexer/config"
	"github.com/supertypo/simply-kaspa-indexer/database"
	"github.com/supertypo/simply-kaspa-indexer/mapping"
	"github.com/supertypo/simply-kaspa-indexer/metrics"
	"github.com/supertypo/simply-kaspa-indexer/model"
	"github.com/supertypo/simply-kaspa-indexer/signal"
)

const (
	// noopDeletesBeforeVcp is how many consecutive flushes must purge zero
	// acceptance rows before VCP is allowed to start.
	noopDeletesBeforeVcp = 10
	flushInterval        = 2 * time.Second
	checkpointPushDelay  = time.Second
)

// BlockProcessor drains the blocks queue, writes block and parent rows in
// batches and reports checkpoint candidates. Until VCP starts it also purges
// stale acceptance rows, so that VCP is the sole owner of acceptance state.
type BlockProcessor struct {
	settings        Settings
	sig             *signal.Handler
	met             *metrics.Metrics
	startVcp        *atomic.Bool
	blocksQueue     *Queue[BlockData]
	checkpointQueue *Queue[CheckpointBlock]
	db              *database.Client
	mapper          *mapping.Mapper
}

// NewBlockProcessor wires the block processor. startVcp is write-once here
// and read-only in VCP.
func NewBlockProcessor(settings Settings, sig *signal.Handler, met *metrics.Metrics, startVcp *atomic.Bool,
	blocksQueue *Queue[BlockData], checkpointQueue *Queue[CheckpointBlock],
	db *database.Client, mapper *mapping.Mapper) *BlockProcessor {
	return &BlockProcessor{
		settings:        settings,
		sig:             sig,
		met:             met,
		startVcp:        startVcp,
		blocksQueue:     blocksQueue,
		checkpointQueue: checkpointQueue,
		db:              db,
		mapper:          mapper,
	}
}

// Run processes blocks until shutdown.
func (p *BlockProcessor) Run(ctx context.Context) {
	cfg := p.settings.Cfg
	batchScale := cfg.BatchScale
	batchSize := int(800 * batchScale)
	disableBlocks := cfg.IsDisabled(config.DisableBlocksTable)
	disableBlockRelations := cfg.IsDisabled(config.DisableBlockParentTable)
	disableVcp := cfg.IsDisabled(config.DisableVirtualChainProcessing)

	var blocks []model.Block
	var blockParents []model.BlockParent
	var checkpointBlocks []CheckpointBlock
	lastCommit := time.Now()
	synced := false
	noopDeletes := 0

	for !p.sig.IsShutdown() {
		blockData, ok := p.blocksQueue.TryPop()
		if !ok {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-p.sig.Done():
			}
			continue
		}
		synced = blockData.Synced
		block, err := p.mapper.MapBlock(blockData.Block)
		if err != nil {
			log.Fatalf("Mapping block FAILED: %v", err)
		}
		if !disableBlockRelations {
			parents, err := p.mapper.MapBlockParents(blockData.Block)
			if err != nil {
				log.Fatalf("Mapping block parents FAILED: %v", err)
			}
			blockParents = append(blockParents, parents...)
		}
		checkpointBlocks = append(checkpointBlocks, CheckpointBlock{
			Origin:    OriginBlocks,
			Hash:      block.Hash,
			Timestamp: blockData.Block.Header.Timestamp,
			DaaScore:  blockData.Block.Header.DaaScore,
			BlueScore: blockData.Block.Header.BlueScore,
		})
		if !disableBlocks {
			blocks = append(blocks, block)
		}

		if len(checkpointBlocks) < batchSize &&
			!(len(checkpointBlocks) > 0 && time.Since(lastCommit) > flushInterval) {
			continue
		}

		commitStart := time.Now()
		log.Debugf("Committing %d blocks (%d parents)", len(blocks), len(blockParents))
		blocksInserted := p.insertBlocks(ctx, batchScale, blocks)
		parentsInserted := p.insertBlockParents(ctx, batchScale, blockParents)

		if !disableVcp && !p.startVcp.Load() {
			deleted := p.purgeAcceptances(ctx, checkpointBlocks)
			if deleted == 0 {
				noopDeletes++
			} else {
				noopDeletes = 0
			}
			if noopDeletes >= noopDeletesBeforeVcp && (synced || p.settings.DisableVcpWaitForSync) {
				log.Info("Notifying virtual chain processor to start")
				p.startVcp.Store(true)
			}
		}

		last := checkpointBlocks[len(checkpointBlocks)-1]
		if blocksInserted > 0 || parentsInserted > 0 {
			elapsed := time.Since(commitStart)
			bps := float64(len(checkpointBlocks)) / elapsed.Seconds()
			log.Infof("Committed %d new blocks in %dms (%.1f bps, %d bp). Last block: %s",
				blocksInserted, elapsed.Milliseconds(), bps, parentsInserted,
				time.UnixMilli(int64(last.Timestamp)).UTC().Format(time.RFC3339))
		}
		metrics.BlocksCommitted.Add(float64(blocksInserted))
		p.met.Update(func(s *metrics.Snapshot) {
			s.Components.BlockProcessor.LastBlock = last.BlockInfo()
		})

		for _, cb := range checkpointBlocks {
			for !p.checkpointQueue.TryPush(cb) {
				log.Warn("Checkpoint queue is full")
				select {
				case <-time.After(checkpointPushDelay):
				case <-p.sig.Done():
					return
				}
			}
		}
		blocks = nil
		blockParents = nil
		checkpointBlocks = nil
		lastCommit = time.Now()
	}
}

func (p *BlockProcessor) insertBlocks(ctx context.Context, batchScale float64, blocks []model.Block) int64 {
	if len(blocks) == 0 {
		return 0
	}
	chunkSize := min(int(200*batchScale), 3500)
	start := time.Now()
	var rowsAffected int64
	for begin := 0; begin < len(blocks); begin += chunkSize {
		end := min(begin+chunkSize, len(blocks))
		rows, err := p.db.InsertBlocks(ctx, blocks[begin:end])
		if err != nil {
			log.Fatalf("Insert blocks FAILED: %v", err)
		}
		rowsAffected += rows
	}
	log.Debugf("Committed %d blocks in %dms", rowsAffected, time.Since(start).Milliseconds())
	return rowsAffected
}

func (p *BlockProcessor) insertBlockParents(ctx context.Context, batchScale float64, parents []model.BlockParent) int64 {
	if len(parents) == 0 {
		return 0
	}
	chunkSize := min(int(700*batchScale), 10000)
	start := time.Now()
	var rowsAffected int64
	for begin := 0; begin < len(parents); begin += chunkSize {
		end := min(begin+chunkSize, len(parents))
		rows, err := p.db.InsertBlockParents(ctx, parents[begin:end])
		if err != nil {
			log.Fatalf("Insert block_parents FAILED: %v", err)
		}
		rowsAffected += rows
	}
	log.Debugf("Committed %d block_parents in %dms", rowsAffected, time.Since(start).Milliseconds())
	return rowsAffected
}

// purgeAcceptances clears acceptance rows for the batch's blocks while VCP
// is not yet running, keeping VCP authoritative for acceptance on resume.
// The first block of each batch is deliberately left alone.
func (p *BlockProcessor) purgeAcceptances(ctx context.Context, checkpointBlocks []CheckpointBlock) int64 {
	if len(checkpointBlocks) < 2 {
		return 0
	}
	hashes := make([]model.Hash, 0, len(checkpointBlocks)-1)
	for _, cb := range checkpointBlocks[1:] {
		hashes = append(hashes, cb.Hash)
	}
	deleted, err := p.db.DeleteTransactionAcceptances(ctx, hashes)
	if err != nil {
		log.Fatalf("Delete transactions_acceptances FAILED: %v", err)
	}
	if deleted > 0 {
		log.Debugf("Purged %d stale acceptance rows", deleted)
	}
	return deleted
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
