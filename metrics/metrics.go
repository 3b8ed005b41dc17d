// Package metrics holds the shared runtime snapshot updated by every stage
// and read by the HTTP surface, plus the prometheus counters mirrored on
// /metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BlockInfo is a compact reference to a processed block.
type BlockInfo struct {
	Hash      string `json:"hash"`
	Timestamp uint64 `json:"timestamp"`
	DaaScore  uint64 `json:"daaScore"`
	BlueScore uint64 `json:"blueScore"`
}

// QueueStats reports queue fill levels.
type QueueStats struct {
	BlocksCapacity       uint64 `json:"blocksCapacity"`
	Blocks               uint64 `json:"blocks"`
	TransactionsCapacity uint64 `json:"transactionsCapacity"`
	Transactions         uint64 `json:"transactions"`
	CheckpointsCapacity  uint64 `json:"checkpointsCapacity"`
	Checkpoints          uint64 `json:"checkpoints"`
}

// CheckpointStats reports the last saved checkpoint.
type CheckpointStats struct {
	Origin string     `json:"origin,omitempty"`
	Block  *BlockInfo `json:"block,omitempty"`
}

// BlockProcessorStats is the block processor component state.
type BlockProcessorStats struct {
	LastBlock *BlockInfo `json:"lastBlock,omitempty"`
}

// TransactionProcessorStats is the transaction processor component state.
type TransactionProcessorStats struct {
	Enabled   bool       `json:"enabled"`
	LastBlock *BlockInfo `json:"lastBlock,omitempty"`
}

// VirtualChainProcessorStats is the VCP component state.
type VirtualChainProcessorStats struct {
	Enabled              bool       `json:"enabled"`
	OnlyBlocks           bool       `json:"onlyBlocks"`
	Synced               bool       `json:"synced"`
	LastBlock            *BlockInfo `json:"lastBlock,omitempty"`
	TipDistance          uint64     `json:"tipDistance"`
	TipDistanceTimestamp uint64     `json:"tipDistanceTimestamp,omitempty"`
}

// UtxoImporterStats is the UTXO bootstrap component state.
type UtxoImporterStats struct {
	Enabled              bool   `json:"enabled"`
	Completed            *bool  `json:"completed,omitempty"`
	UtxosImported        uint64 `json:"utxosImported"`
	AcceptancesCommitted uint64 `json:"acceptancesCommitted"`
	OutputsCommitted     uint64 `json:"outputsCommitted"`
}

// PrunerResult is one pruning step's outcome.
type PrunerResult struct {
	Name        string        `json:"name"`
	StartTime   time.Time     `json:"startTime"`
	CutoffTime  time.Time     `json:"cutoffTime"`
	Duration    time.Duration `json:"duration,omitempty"`
	Success     *bool         `json:"success,omitempty"`
	RowsDeleted *int64        `json:"rowsDeleted,omitempty"`
}

// PrunerStats is the retention pruner component state.
type PrunerStats struct {
	Enabled               bool                    `json:"enabled"`
	Cron                  string                  `json:"cron,omitempty"`
	Retention             map[string]string       `json:"retention,omitempty"`
	Running               bool                    `json:"running"`
	StartTime             *time.Time              `json:"startTime,omitempty"`
	CompletedTime         *time.Time              `json:"completedTime,omitempty"`
	CompletedSuccessfully *bool                   `json:"completedSuccessfully,omitempty"`
	Results               map[string]PrunerResult `json:"results,omitempty"`
}

// Components groups the per-stage states.
type Components struct {
	BlockProcessor        BlockProcessorStats        `json:"blockProcessor"`
	TransactionProcessor  TransactionProcessorStats  `json:"transactionProcessor"`
	VirtualChainProcessor VirtualChainProcessorStats `json:"virtualChainProcessor"`
	UtxoImporter          UtxoImporterStats          `json:"utxoImporter"`
	DbPruner              PrunerStats                `json:"dbPruner"`
}

// Snapshot is the full observable state.
type Snapshot struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	Network    string          `json:"network"`
	Queues     QueueStats      `json:"queues"`
	Checkpoint CheckpointStats `json:"checkpoint"`
	Components Components      `json:"components"`
}

// Metrics wraps the snapshot behind a reader/writer lock.
type Metrics struct {
	mu sync.RWMutex
	s  Snapshot
}

// New creates the shared metrics with identity fields set.
func New(name, version, network string) *Metrics {
	return &Metrics{s: Snapshot{Name: name, Version: version, Network: network}}
}

// Update mutates the snapshot under the write lock.
func (m *Metrics) Update(fn func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.s)
}

// Read calls fn with the snapshot under the read lock.
func (m *Metrics) Read(fn func(*Snapshot)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(&m.s)
}

// Snapshot returns a copy of the current state for serialization. Maps are
// copied so the caller may hold the result without racing updates.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.s
	if m.s.Components.DbPruner.Results != nil {
		s.Components.DbPruner.Results = make(map[string]PrunerResult, len(m.s.Components.DbPruner.Results))
		for k, v := range m.s.Components.DbPruner.Results {
			s.Components.DbPruner.Results[k] = v
		}
	}
	if m.s.Components.DbPruner.Retention != nil {
		s.Components.DbPruner.Retention = make(map[string]string, len(m.s.Components.DbPruner.Retention))
		for k, v := range m.s.Components.DbPruner.Retention {
			s.Components.DbPruner.Retention[k] = v
		}
	}
	return s
}

// Prometheus counters, incremented alongside the snapshot.
var (
	BlocksCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_blocks_committed_total",
		Help: "Number of new block rows committed",
	})
	TransactionsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_transactions_committed_total",
		Help: "Number of new transaction rows committed",
	})
	AcceptancesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_acceptances_committed_total",
		Help: "Number of acceptance rows committed by the virtual chain processor",
	})
	AcceptancesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_acceptances_removed_total",
		Help: "Number of acceptance rows removed due to reorgs",
	})
	RowsPruned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_rows_pruned_total",
		Help: "Number of rows deleted by the retention pruner",
	}, []string{"table"})
)
