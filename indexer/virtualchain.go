package indexer

import (
	"bytes"
	"context"
	"sort"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/supertypo/simply-kaspa-indexer/config"
	"github.com/supertypo/simply-kaspa-indexer/database"
	"github.com/supertypo/simply-kaspa-indexer/kaspad"
	"github.com/supertypo/simply-kaspa-indexer/metrics"
	"github.com/supertypo/simply-kaspa-indexer/model"
	"github.com/supertypo/simply-kaspa-indexer/signal"
)

const (
	vcpErrDelay = 5 * time.Second
	// vcpSyncedThreshold: the first response smaller than this marks the
	// processor synced. The default batch is around 1800 blocks at 1 bps.
	vcpSyncedThreshold = 200
	// vcpInterlockWindow is the DAA-score distance (in seconds, multiplied
	// by net_bps) VCP may run ahead of the block processor.
	vcpInterlockWindow = 60
	initialTipDistance = 10
	reorgsToBackOff    = 3
)

// tipDistanceController implements the adaptive tip distance: a sliding
// window of per-batch reorg observations. Repeated reorgs within the window
// push the distance up; a quiet full window lets it decay while synced.
type tipDistanceController struct {
	dynamic  bool
	distance int
	window   int
	// history of "batch removed acceptance rows" flags, most recent first.
	history []bool
}

func newTipDistanceController(dynamic bool, window int) *tipDistanceController {
	distance := 0
	if dynamic {
		distance = initialTipDistance
	}
	if window < 1 {
		window = 1
	}
	return &tipDistanceController{dynamic: dynamic, distance: distance, window: window}
}

// observe folds one batch's reorg flag in and adjusts the distance. Returns
// true when the distance changed.
func (c *tipDistanceController) observe(removedRows bool, synced bool) bool {
	if !c.dynamic {
		return false
	}
	if len(c.history) == c.window {
		c.history = c.history[:len(c.history)-1]
	}
	c.history = append([]bool{removedRows}, c.history...)
	reorgs := 0
	for _, r := range c.history {
		if r {
			reorgs++
		}
	}
	switch {
	case reorgs >= reorgsToBackOff:
		c.distance++
		// Only count further reorgs within a fresh window against the new
		// distance.
		c.history[0] = false
		return true
	case synced && reorgs == 0 && c.distance > 0 && len(c.history) == c.window:
		c.distance--
		// Hold the decreased distance for a full window before the next
		// decrease.
		c.history[0] = true
		return true
	}
	return false
}

// VirtualChainProcessor polls the virtual-chain delta from the node and
// keeps the acceptance table consistent with it: removed chain blocks drop
// their acceptance rows, added chain blocks insert theirs.
type VirtualChainProcessor struct {
	settings        Settings
	sig             *signal.Handler
	met             *metrics.Metrics
	startVcp        *atomic.Bool
	checkpointQueue *Queue[CheckpointBlock]
	client          *kaspad.Client
	db              *database.Client
}

// NewVirtualChainProcessor wires the VCP.
func NewVirtualChainProcessor(settings Settings, sig *signal.Handler, met *metrics.Metrics, startVcp *atomic.Bool,
	checkpointQueue *Queue[CheckpointBlock], client *kaspad.Client, db *database.Client) *VirtualChainProcessor {
	return &VirtualChainProcessor{
		settings:        settings,
		sig:             sig,
		met:             met,
		startVcp:        startVcp,
		checkpointQueue: checkpointQueue,
		client:          client,
		db:              db,
	}
}

// Run polls until shutdown. It stays idle until the block processor sets the
// start flag.
func (p *VirtualChainProcessor) Run(ctx context.Context) {
	cfg := p.settings.Cfg
	batchScale := cfg.BatchScale
	disableAcceptance := cfg.IsDisabled(config.DisableTransactionAcceptance)
	pollInterval := cfg.VcpInterval

	startHash := p.settings.Checkpoint
	if cfg.IgnoreCheckpoint == "" {
		if saved, err := LoadVcpCheckpoint(ctx, p.db); err == nil {
			log.Infof("Virtual chain processor resuming from vcp_checkpoint %s", saved)
			startHash = saved
		}
	}
	startTime := time.Now()
	synced := false

	window := int(cfg.VcpWindow / cfg.VcpInterval)
	tipDistance := newTipDistanceController(cfg.IsEnabled(config.EnableDynamicVcpTipDistance), window)

	for !p.sig.IsShutdown() {
		if !p.startVcp.Load() {
			log.Debug("Virtual chain processor waiting for start notification")
			p.sleep(vcpErrDelay)
			continue
		}
		log.Debugf("Getting virtual chain from start_hash %s", startHash)
		requestStart := time.Now()
		response, err := p.client.GetVirtualChainFromBlock(ctx, startHash.String(), !disableAcceptance)
		if err != nil {
			log.Errorf("Failed getting virtual chain from start_hash %s: %v", startHash, err)
			p.sleep(vcpErrDelay)
			continue
		}
		addedCount := len(response.AddedChainBlockHashes)
		if addedCount > tipDistance.distance {
			added := response.AddedChainBlockHashes[:addedCount-tipDistance.distance]
			lastAcceptingBlock, err := p.client.GetBlock(ctx, added[len(added)-1], false)
			if err != nil {
				log.Errorf("Failed getting last accepting block: %v", err)
				p.sleep(vcpErrDelay)
				continue
			}
			checkpointBlock := CheckpointBlock{
				Origin:    OriginVcp,
				Hash:      model.MustParseHash(lastAcceptingBlock.VerboseData.Hash),
				Timestamp: lastAcceptingBlock.Header.Timestamp,
				DaaScore:  lastAcceptingBlock.Header.DaaScore,
				BlueScore: lastAcceptingBlock.Header.BlueScore,
			}
			if !p.waitForBlockProcessor(checkpointBlock.DaaScore, pollInterval) {
				return
			}
			commitStart := time.Now()
			rowsRemoved := p.removeChainBlocks(ctx, batchScale, response.RemovedChainBlockHashes)
			if !disableAcceptance {
				accepted := response.AcceptedTransactionIDs
				if len(accepted) > addedCount-tipDistance.distance {
					accepted = accepted[:addedCount-tipDistance.distance]
				}
				rowsAdded := p.acceptTransactions(ctx, batchScale, accepted)
				log.Infof("Committed %d accepted and %d rejected transactions in %dms. Last accepted: %s",
					rowsAdded, rowsRemoved, time.Since(commitStart).Milliseconds(),
					time.UnixMilli(int64(checkpointBlock.Timestamp)).UTC().Format(time.RFC3339))
				metrics.AcceptancesCommitted.Add(float64(rowsAdded))
			} else {
				rowsAdded := p.addChainBlocks(ctx, batchScale, added)
				log.Infof("Committed %d added and %d removed chain blocks in %dms. Last added: %s",
					rowsAdded, rowsRemoved, time.Since(commitStart).Milliseconds(),
					time.UnixMilli(int64(checkpointBlock.Timestamp)).UTC().Format(time.RFC3339))
			}
			metrics.AcceptancesRemoved.Add(float64(rowsRemoved))

			if tipDistance.observe(rowsRemoved > 0, synced) {
				log.Debugf("Adjusted vcp tip distance to %d", tipDistance.distance)
			}
			p.met.Update(func(s *metrics.Snapshot) {
				s.Components.VirtualChainProcessor.LastBlock = checkpointBlock.BlockInfo()
				s.Components.VirtualChainProcessor.TipDistance = uint64(tipDistance.distance)
				s.Components.VirtualChainProcessor.Synced = synced
			})

			for !p.checkpointQueue.TryPush(checkpointBlock) {
				log.Warn("Checkpoint queue is full")
				select {
				case <-time.After(checkpointPushDelay):
				case <-p.sig.Done():
					return
				}
			}
			startHash = checkpointBlock.Hash
			if err = SaveVcpCheckpoint(ctx, p.db, startHash); err != nil {
				log.Fatalf("Saving vcp_checkpoint FAILED: %v", err)
			}
		}
		if !synced && addedCount < vcpSyncedThreshold {
			elapsed := time.Since(startTime).Round(time.Second)
			log.Infof("Virtual chain processor synced! (in %s)", elapsed)
			synced = true
		}
		if synced {
			p.sleep(pollInterval - time.Since(requestStart))
		}
	}
}

// waitForBlockProcessor blocks until the block processor's last observed
// block is within the interlock window of the candidate's DAA score, so VCP
// never persists acceptance for a block that is not stored yet.
func (p *VirtualChainProcessor) waitForBlockProcessor(candidateDaaScore uint64, pollInterval time.Duration) bool {
	for {
		var lastDaa uint64
		var seen bool
		p.met.Read(func(s *metrics.Snapshot) {
			if b := s.Components.BlockProcessor.LastBlock; b != nil {
				lastDaa, seen = b.DaaScore, true
			}
		})
		if seen && candidateDaaScore-min64(candidateDaaScore, lastDaa) < uint64(vcpInterlockWindow*p.settings.NetBps) {
			return true
		}
		log.Trace("Virtual chain processor is waiting for block processor to catch up...")
		p.sleep(pollInterval)
		if p.sig.IsShutdown() {
			return false
		}
	}
}

func (p *VirtualChainProcessor) removeChainBlocks(ctx context.Context, batchScale float64, removed []string) int64 {
	if len(removed) == 0 {
		return 0
	}
	hashes := make([]model.Hash, 0, len(removed))
	for _, s := range removed {
		h, err := model.ParseHash(s)
		if err != nil {
			log.Fatalf("Invalid removed chain block hash %q: %v", s, err)
		}
		hashes = append(hashes, h)
	}
	chunkSize := min(int(1000*batchScale), 7500)
	var rowsAffected int64
	for begin := 0; begin < len(hashes); begin += chunkSize {
		end := min(begin+chunkSize, len(hashes))
		rows, err := p.db.DeleteTransactionAcceptances(ctx, hashes[begin:end])
		if err != nil {
			log.Fatalf("Delete transactions_acceptances FAILED: %v", err)
		}
		rowsAffected += rows
	}
	return rowsAffected
}

func (p *VirtualChainProcessor) acceptTransactions(ctx context.Context, batchScale float64, accepted []kaspad.AcceptedTransactionIDs) int64 {
	var acceptances []model.TransactionAcceptance
	for _, a := range accepted {
		blockHash, err := model.ParseHash(a.AcceptingBlockHash)
		if err != nil {
			log.Fatalf("Invalid accepting block hash %q: %v", a.AcceptingBlockHash, err)
		}
		for _, idStr := range a.AcceptedTransactionIDs {
			txID, err := model.ParseHash(idStr)
			if err != nil {
				log.Fatalf("Invalid accepted transaction id %q: %v", idStr, err)
			}
			id, bh := txID, blockHash
			acceptances = append(acceptances, model.TransactionAcceptance{TransactionID: &id, BlockHash: &bh})
		}
	}
	sort.Slice(acceptances, func(i, j int) bool {
		return bytes.Compare(acceptances[i].TransactionID[:], acceptances[j].TransactionID[:]) < 0
	})
	chunkSize := min(int(1000*batchScale), 7500)
	concurrency := 1 + p.settings.Cfg.BatchConcurrency
	var group errgroup.Group
	group.SetLimit(concurrency)
	results := make([]int64, (len(acceptances)+chunkSize-1)/chunkSize)
	for i, begin := 0, 0; begin < len(acceptances); i, begin = i+1, begin+chunkSize {
		i, begin := i, begin
		end := min(begin+chunkSize, len(acceptances))
		group.Go(func() error {
			rows, err := p.db.InsertTransactionAcceptances(ctx, acceptances[begin:end])
			if err != nil {
				log.Fatalf("Insert acceptances FAILED: %v", err)
			}
			results[i] = rows
			return nil
		})
	}
	_ = group.Wait()
	var rowsAffected int64
	for _, r := range results {
		rowsAffected += r
	}
	return rowsAffected
}

func (p *VirtualChainProcessor) addChainBlocks(ctx context.Context, batchScale float64, added []string) int64 {
	hashes := make([]model.Hash, 0, len(added))
	for _, s := range added {
		h, err := model.ParseHash(s)
		if err != nil {
			log.Fatalf("Invalid added chain block hash %q: %v", s, err)
		}
		hashes = append(hashes, h)
	}
	chunkSize := min(int(1000*batchScale), 7500)
	var rowsAffected int64
	for begin := 0; begin < len(hashes); begin += chunkSize {
		end := min(begin+chunkSize, len(hashes))
		rows, err := p.db.InsertChainBlocks(ctx, hashes[begin:end])
		if err != nil {
			log.Fatalf("Insert chain blocks FAILED: %v", err)
		}
		rowsAffected += rows
	}
	return rowsAffected
}

func (p *VirtualChainProcessor) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-p.sig.Done():
	}
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
