package indexer

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/supertypo/simply-kaspa-indexer/config"
	"github.com/supertypo/simply-kaspa-indexer/database"
	"github.com/supertypo/simply-kaspa-indexer/mapping"
	"github.com/supertypo/simply-kaspa-indexer/metrics"
	"github.com/supertypo/simply-kaspa-indexer/model"
	"github.com/supertypo/simply-kaspa-indexer/signal"
)

type outpointKey struct {
	hash  model.Hash
	index int16
}

// TransactionProcessor drains the transactions queue, de-duplicates by
// transaction id through a TTL cache, and writes transactions, inputs,
// outputs and the block/address relations in parallel sub-batches.
type TransactionProcessor struct {
	settings        Settings
	sig             *signal.Handler
	met             *metrics.Metrics
	txsQueue        *Queue[TransactionData]
	checkpointQueue *Queue[CheckpointBlock]
	db              *database.Client
	mapper          *mapping.Mapper

	subnetworks map[string]int32
	txIDCache   *expirable.LRU[model.Hash, struct{}]
}

// NewTransactionProcessor wires the transaction processor.
func NewTransactionProcessor(settings Settings, sig *signal.Handler, met *metrics.Metrics,
	txsQueue *Queue[TransactionData], checkpointQueue *Queue[CheckpointBlock],
	db *database.Client, mapper *mapping.Mapper) *TransactionProcessor {
	ttl := settings.Cfg.CacheTTL
	cacheSize := settings.NetTpsMax * int(ttl.Seconds()) * 2
	return &TransactionProcessor{
		settings:        settings,
		sig:             sig,
		met:             met,
		txsQueue:        txsQueue,
		checkpointQueue: checkpointQueue,
		db:              db,
		mapper:          mapper,
		subnetworks:     make(map[string]int32),
		txIDCache:       expirable.NewLRU[model.Hash, struct{}](cacheSize, nil, ttl),
	}
}

// Run processes transaction bundles until shutdown.
func (p *TransactionProcessor) Run(ctx context.Context) {
	cfg := p.settings.Cfg
	batchScale := cfg.BatchScale
	batchConcurrency := cfg.BatchConcurrency
	batchSize := int(5000 * batchScale)

	resolveInputs := cfg.IsEnabled(config.EnableTransactionsInputsResolve)
	disableTransactions := cfg.IsDisabled(config.DisableTransactionsTable)
	disableInputs := cfg.IsDisabled(config.DisableTransactionsInputsTable)
	disableOutputs := cfg.IsDisabled(config.DisableTransactionsOutputsTable)
	disableBlocksTxs := cfg.IsDisabled(config.DisableBlocksTransactionsTable)
	disableAddressTxs := cfg.IsDisabled(config.DisableAddressesTransactionsTable)
	useAddressMapping := !disableAddressTxs && p.mapper.AddressMappingEnabled()
	useScriptMapping := !disableAddressTxs && p.mapper.ScriptMappingEnabled()

	subnetworks, err := p.db.SelectSubnetworks(ctx)
	if err != nil {
		log.Fatalf("Select subnetworks FAILED: %v", err)
	}
	for _, s := range subnetworks {
		p.subnetworks[s.SubnetworkID] = s.ID
	}
	log.Infof("Loaded %d known subnetworks", len(p.subnetworks))

	if resolveInputs {
		log.Info("Resolving previous outpoints for inputs")
	}
	switch {
	case useAddressMapping:
		log.Info("Using addresses_transactions for address transaction mapping")
	case useScriptMapping:
		log.Info("Using scripts_transactions for address transaction mapping")
	default:
		log.Info("Address transaction mapping disabled")
	}

	var transactions []model.Transaction
	var blockTxs []model.BlockTransaction
	var txInputs []model.TransactionInput
	var txOutputs []model.TransactionOutput
	var addressTxs []model.AddressTransaction
	var scriptTxs []model.ScriptTransaction
	var checkpointBlocks []CheckpointBlock
	lastCommit := time.Now()

	for !p.sig.IsShutdown() {
		data, ok := p.txsQueue.TryPop()
		if !ok {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-p.sig.Done():
			}
			continue
		}
		checkpointBlocks = append(checkpointBlocks, CheckpointBlock{
			Origin:    OriginTransactions,
			Hash:      data.BlockHash,
			Timestamp: data.BlockTimestamp,
			DaaScore:  data.BlockDaaScore,
			BlueScore: data.BlockBlueScore,
		})
		for i := range data.Transactions {
			tx := &data.Transactions[i]
			subnetworkKey := p.resolveSubnetwork(ctx, tx.SubnetworkID)
			txID, err := model.ParseHash(tx.VerboseData.TransactionID)
			if err != nil {
				log.Fatalf("Mapping transaction FAILED: %v", err)
			}
			if p.txIDCache.Contains(txID) {
				log.Tracef("Known transaction_id %s, keeping block relation only", txID)
			} else {
				transaction, err := p.mapper.MapTransaction(tx, subnetworkKey)
				if err != nil {
					log.Fatalf("Mapping transaction FAILED: %v", err)
				}
				transactions = append(transactions, transaction)
				inputs, err := p.mapper.MapTransactionInputs(tx)
				if err != nil {
					log.Fatalf("Mapping transaction inputs FAILED: %v", err)
				}
				txInputs = append(txInputs, inputs...)
				outputs, err := p.mapper.MapTransactionOutputs(tx)
				if err != nil {
					log.Fatalf("Mapping transaction outputs FAILED: %v", err)
				}
				txOutputs = append(txOutputs, outputs...)
				if useAddressMapping {
					rows, err := p.mapper.MapTransactionOutputsAddress(tx)
					if err != nil {
						log.Fatalf("Mapping address transactions FAILED: %v", err)
					}
					addressTxs = append(addressTxs, rows...)
				} else if useScriptMapping {
					rows, err := p.mapper.MapTransactionOutputsScript(tx)
					if err != nil {
						log.Fatalf("Mapping script transactions FAILED: %v", err)
					}
					scriptTxs = append(scriptTxs, rows...)
				}
				p.txIDCache.Add(txID, struct{}{})
			}
			blockTx, err := p.mapper.MapBlockTransaction(tx)
			if err != nil {
				log.Fatalf("Mapping block transaction FAILED: %v", err)
			}
			blockTxs = append(blockTxs, blockTx)
		}

		if len(blockTxs) < batchSize &&
			!(len(blockTxs) > 0 && time.Since(lastCommit) > flushInterval) {
			continue
		}

		commitStart := time.Now()
		transactionsLen := len(transactions)
		transactionIDs := make([]model.Hash, 0, transactionsLen)
		for i := range transactions {
			transactionIDs = append(transactionIDs, transactions[i].TransactionID)
		}

		if resolveInputs && !disableInputs {
			resolveFromBatch(txInputs, txOutputs)
		}

		var rowsTx, rowsInputs, rowsOutputs, rowsAddresses int64
		var group errgroup.Group
		if !disableTransactions {
			group.Go(func() error {
				rowsTx = p.insertTransactions(ctx, batchScale, batchConcurrency, transactions)
				return nil
			})
		}
		if !disableInputs {
			inputs := txInputs
			group.Go(func() error {
				rowsInputs = p.insertInputs(ctx, batchScale, batchConcurrency, resolveInputs, inputs)
				return nil
			})
		}
		if !disableOutputs {
			group.Go(func() error {
				rowsOutputs = p.insertOutputs(ctx, batchScale, batchConcurrency, txOutputs)
				return nil
			})
		}
		if useAddressMapping {
			group.Go(func() error {
				rowsAddresses = p.insertOutputAddressTxs(ctx, batchScale, batchConcurrency, addressTxs)
				return nil
			})
		} else if useScriptMapping {
			group.Go(func() error {
				rowsAddresses = p.insertOutputScriptTxs(ctx, batchScale, batchConcurrency, scriptTxs)
				return nil
			})
		}
		_ = group.Wait()

		// The input side joins on the freshly committed inputs and outputs,
		// so it must run after the group above completes.
		if useAddressMapping {
			rowsAddresses += p.insertInputAddressTxs(ctx, batchScale, transactionIDs)
		} else if useScriptMapping {
			rowsAddresses += p.insertInputScriptTxs(ctx, batchScale, transactionIDs)
		}

		var rowsBlockTxs int64
		if !disableBlocksTxs {
			rowsBlockTxs = p.insertBlockTxs(ctx, batchScale, batchConcurrency, blockTxs)
		}

		last := checkpointBlocks[len(checkpointBlocks)-1]
		p.met.Update(func(s *metrics.Snapshot) {
			s.Components.TransactionProcessor.LastBlock = last.BlockInfo()
		})
		metrics.TransactionsCommitted.Add(float64(rowsTx))

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

		elapsed := time.Since(commitStart)
		tps := float64(transactionsLen) / elapsed.Seconds()
		log.Infof("Committed %d new txs in %dms (%.1f tps, %d blk_tx, %d tx_in, %d tx_out, %d adr_tx). Last tx: %s",
			rowsTx, elapsed.Milliseconds(), tps, rowsBlockTxs, rowsInputs, rowsOutputs, rowsAddresses,
			time.UnixMilli(int64(last.Timestamp)).UTC().Format(time.RFC3339))

		transactions = nil
		blockTxs = nil
		txInputs = nil
		txOutputs = nil
		addressTxs = nil
		scriptTxs = nil
		checkpointBlocks = nil
		lastCommit = time.Now()
	}
}

func (p *TransactionProcessor) resolveSubnetwork(ctx context.Context, subnetworkID string) int32 {
	if key, ok := p.subnetworks[subnetworkID]; ok {
		return key
	}
	key, err := p.db.InsertSubnetwork(ctx, subnetworkID)
	if err != nil {
		log.Fatalf("Insert subnetwork FAILED: %v", err)
	}
	p.subnetworks[subnetworkID] = key
	log.Infof("Committed new subnetwork, id: %d subnetwork_id: %s", key, subnetworkID)
	return key
}

// resolveFromBatch fills resolved previous-outpoint fields for inputs whose
// referenced output is part of the same batch. The map is built before any
// insert is issued.
func resolveFromBatch(inputs []model.TransactionInput, outputs []model.TransactionOutput) {
	outputsByOutpoint := make(map[outpointKey]*model.TransactionOutput, len(outputs))
	for i := range outputs {
		o := &outputs[i]
		outputsByOutpoint[outpointKey{hash: o.TransactionID, index: o.Index}] = o
	}
	resolved := 0
	for i := range inputs {
		in := &inputs[i]
		if in.PreviousOutpointHash == nil || in.PreviousOutpointIndex == nil {
			continue
		}
		if o, ok := outputsByOutpoint[outpointKey{hash: *in.PreviousOutpointHash, index: *in.PreviousOutpointIndex}]; ok {
			in.PreviousOutpointScript = o.ScriptPublicKey
			in.PreviousOutpointAmount = o.Amount
			resolved++
		}
	}
	if resolved > 0 {
		log.Tracef("Pre-resolved %d tx_inputs from tx_outputs", resolved)
	}
}

func (p *TransactionProcessor) insertTransactions(ctx context.Context, batchScale float64, concurrency int, values []model.Transaction) int64 {
	chunkSize := min(int(250*batchScale), 8000)
	sort.Slice(values, func(i, j int) bool {
		return bytes.Compare(values[i].TransactionID[:], values[j].TransactionID[:]) < 0
	})
	return insertChunked(ctx, "transactions", values, chunkSize, concurrency, p.db.InsertTransactions)
}

func (p *TransactionProcessor) insertInputs(ctx context.Context, batchScale float64, concurrency int, resolve bool, values []model.TransactionInput) int64 {
	chunkSize := min(int(250*batchScale), 8000)
	sort.Slice(values, func(i, j int) bool {
		if c := bytes.Compare(values[i].TransactionID[:], values[j].TransactionID[:]); c != 0 {
			return c < 0
		}
		return values[i].Index < values[j].Index
	})
	return insertChunked(ctx, "transactions_inputs", values, chunkSize, concurrency,
		func(ctx context.Context, chunk []model.TransactionInput) (int64, error) {
			return p.db.InsertTransactionInputs(ctx, resolve, chunk)
		})
}

func (p *TransactionProcessor) insertOutputs(ctx context.Context, batchScale float64, concurrency int, values []model.TransactionOutput) int64 {
	chunkSize := min(int(250*batchScale), 10000)
	sort.Slice(values, func(i, j int) bool {
		if c := bytes.Compare(values[i].TransactionID[:], values[j].TransactionID[:]); c != 0 {
			return c < 0
		}
		return values[i].Index < values[j].Index
	})
	return insertChunked(ctx, "transactions_outputs", values, chunkSize, concurrency, p.db.InsertTransactionOutputs)
}

func (p *TransactionProcessor) insertOutputAddressTxs(ctx context.Context, batchScale float64, concurrency int, values []model.AddressTransaction) int64 {
	chunkSize := min(int(250*batchScale), 20000)
	sort.Slice(values, func(i, j int) bool {
		if values[i].Address != values[j].Address {
			return values[i].Address < values[j].Address
		}
		return bytes.Compare(values[i].TransactionID[:], values[j].TransactionID[:]) < 0
	})
	return insertChunked(ctx, "addresses_transactions", values, chunkSize, concurrency, p.db.InsertAddressTransactions)
}

func (p *TransactionProcessor) insertOutputScriptTxs(ctx context.Context, batchScale float64, concurrency int, values []model.ScriptTransaction) int64 {
	chunkSize := min(int(250*batchScale), 20000)
	sort.Slice(values, func(i, j int) bool {
		if c := bytes.Compare(values[i].ScriptPublicKey, values[j].ScriptPublicKey); c != 0 {
			return c < 0
		}
		return bytes.Compare(values[i].TransactionID[:], values[j].TransactionID[:]) < 0
	})
	return insertChunked(ctx, "scripts_transactions", values, chunkSize, concurrency, p.db.InsertScriptTransactions)
}

func (p *TransactionProcessor) insertInputAddressTxs(ctx context.Context, batchScale float64, transactionIDs []model.Hash) int64 {
	chunkSize := min(int(250*batchScale), 8000)
	useTx := p.mapper.UseTxForInputBlockTime()
	var rowsAffected int64
	for begin := 0; begin < len(transactionIDs); begin += chunkSize {
		end := min(begin+chunkSize, len(transactionIDs))
		rows, err := p.db.InsertAddressTransactionsFromInputs(ctx, useTx, transactionIDs[begin:end])
		if err != nil {
			log.Fatalf("Insert input addresses_transactions FAILED: %v", err)
		}
		rowsAffected += rows
	}
	return rowsAffected
}

func (p *TransactionProcessor) insertInputScriptTxs(ctx context.Context, batchScale float64, transactionIDs []model.Hash) int64 {
	chunkSize := min(int(250*batchScale), 8000)
	useTx := p.mapper.UseTxForInputBlockTime()
	var rowsAffected int64
	for begin := 0; begin < len(transactionIDs); begin += chunkSize {
		end := min(begin+chunkSize, len(transactionIDs))
		rows, err := p.db.InsertScriptTransactionsFromInputs(ctx, useTx, transactionIDs[begin:end])
		if err != nil {
			log.Fatalf("Insert input scripts_transactions FAILED: %v", err)
		}
		rowsAffected += rows
	}
	return rowsAffected
}

func (p *TransactionProcessor) insertBlockTxs(ctx context.Context, batchScale float64, concurrency int, values []model.BlockTransaction) int64 {
	chunkSize := min(int(500*batchScale), 30000)
	sort.Slice(values, func(i, j int) bool {
		if c := bytes.Compare(values[i].BlockHash[:], values[j].BlockHash[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(values[i].TransactionID[:], values[j].TransactionID[:]) < 0
	})
	return insertChunked(ctx, "blocks_transactions", values, chunkSize, concurrency, p.db.InsertBlockTransactions)
}

// insertChunked splits values into chunks and inserts them concurrently,
// bounded by the configured batch concurrency. Store errors are fatal.
func insertChunked[T any](ctx context.Context, key string, values []T, chunkSize, concurrency int,
	insert func(context.Context, []T) (int64, error)) int64 {
	if len(values) == 0 {
		return 0
	}
	start := time.Now()
	log.Debugf("Processing %d %s", len(values), key)
	var group errgroup.Group
	group.SetLimit(concurrency)
	results := make([]int64, (len(values)+chunkSize-1)/chunkSize)
	for i, begin := 0, 0; begin < len(values); i, begin = i+1, begin+chunkSize {
		i, begin := i, begin
		end := min(begin+chunkSize, len(values))
		group.Go(func() error {
			rows, err := insert(ctx, values[begin:end])
			if err != nil {
				log.Fatalf("Insert %s FAILED: %v", key, err)
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
	log.Debugf("Committed %d %s in %dms", rowsAffected, key, time.Since(start).Milliseconds())
	return rowsAffected
}
