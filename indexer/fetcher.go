package indexer

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/supertypo/simply-kaspa-indexer/config"
	"github.com/supertypo/simply-kaspa-indexer/kaspad"
	"github.com/supertypo/simply-kaspa-indexer/metrics"
	"github.com/supertypo/simply-kaspa-indexer/model"
	"github.com/supertypo/simply-kaspa-indexer/signal"
)

// BlockData is one fetched block headed for the block processor.
type BlockData struct {
	Block *kaspad.Block
	// Synced is the fetcher's view of whether it has caught up with the
	// node's tips.
	Synced bool
}

// TransactionData is one block's transaction bundle headed for the
// transaction processor.
type TransactionData struct {
	BlockHash      model.Hash
	BlockTimestamp uint64
	BlockDaaScore  uint64
	BlockBlueScore uint64
	Transactions   []kaspad.Transaction
}

const (
	fetcherErrDelay = 5 * time.Second
	// syncedBatchThreshold: a getBlocks response smaller than this means the
	// fetcher is at the tips, provided the node itself reports synced.
	syncedBatchThreshold = 100
	queueFullRetryDelay  = 100 * time.Millisecond
)

// Fetcher polls the node for blocks in DAG order from the resume point and
// feeds the block and transaction queues. A full queue blocks the fetcher,
// which is the pipeline's backpressure.
type Fetcher struct {
	settings    Settings
	sig         *signal.Handler
	met         *metrics.Metrics
	client      *kaspad.Client
	blocksQueue *Queue[BlockData]
	txsQueue    *Queue[TransactionData]

	lowHash   string
	synced    bool
	txEnabled bool
}

// NewFetcher wires the fetcher; fetching starts at the resolved checkpoint.
func NewFetcher(settings Settings, sig *signal.Handler, met *metrics.Metrics, client *kaspad.Client,
	blocksQueue *Queue[BlockData], txsQueue *Queue[TransactionData]) *Fetcher {
	return &Fetcher{
		settings:    settings,
		sig:         sig,
		met:         met,
		client:      client,
		blocksQueue: blocksQueue,
		txsQueue:    txsQueue,
		lowHash:     settings.Checkpoint.String(),
		txEnabled:   !settings.Cfg.IsDisabled(config.DisableTransactionProcessing),
	}
}

// Run fetches until shutdown.
func (f *Fetcher) Run(ctx context.Context) {
	blockInterval := f.settings.Cfg.BlockInterval
	for !f.sig.IsShutdown() {
		response, err := f.client.GetBlocks(ctx, f.lowHash, true, f.txEnabled)
		if err != nil {
			log.Errorf("Failed getting blocks from low_hash %s: %v", f.lowHash, err)
			f.sleep(fetcherErrDelay)
			continue
		}
		blocks := response.Blocks
		// getBlocks includes the low hash itself; skip it (on the first call
		// this is the resume point).
		if len(blocks) > 0 && blocks[0].VerboseData.Hash == f.lowHash {
			blocks = blocks[1:]
		}
		if len(blocks) < syncedBatchThreshold && !f.synced {
			if info, err := f.client.GetServerInfo(ctx); err == nil && info.IsSynced {
				log.Info("Block fetcher is synced with the node")
				f.synced = true
			}
		}
		for i := range blocks {
			if f.sig.IsShutdown() {
				return
			}
			f.forward(&blocks[i])
		}
		if len(blocks) > 0 {
			f.lowHash = blocks[len(blocks)-1].VerboseData.Hash
		}
		f.met.Update(func(s *metrics.Snapshot) {
			s.Queues.Blocks = uint64(f.blocksQueue.Len())
			s.Queues.Transactions = uint64(f.txsQueue.Len())
		})
		if f.synced || len(blocks) == 0 {
			f.sleep(blockInterval)
		}
	}
}

func (f *Fetcher) forward(block *kaspad.Block) {
	for !f.blocksQueue.TryPush(BlockData{Block: block, Synced: f.synced}) {
		if f.sig.IsShutdown() {
			return
		}
		f.sleep(queueFullRetryDelay)
	}
	if !f.txEnabled || len(block.Transactions) == 0 {
		return
	}
	blockHash, err := model.ParseHash(block.VerboseData.Hash)
	if err != nil {
		log.Errorf("Skipping transactions of block with invalid hash %q: %v", block.VerboseData.Hash, err)
		return
	}
	data := TransactionData{
		BlockHash:      blockHash,
		BlockTimestamp: block.Header.Timestamp,
		BlockDaaScore:  block.Header.DaaScore,
		BlockBlueScore: block.Header.BlueScore,
		Transactions:   block.Transactions,
	}
	for !f.txsQueue.TryPush(data) {
		if f.sig.IsShutdown() {
			return
		}
		f.sleep(queueFullRetryDelay)
	}
}

func (f *Fetcher) sleep(d time.Duration) {
	select {
	case <-time.After(d):
	case <-f.sig.Done():
	}
}
