package indexer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/supertypo/simply-kaspa-indexer/config"
	"github.com/supertypo/simply-kaspa-indexer/database"
	"github.com/supertypo/simply-kaspa-indexer/kaspad/p2p"
	"github.com/supertypo/simply-kaspa-indexer/metrics"
	"github.com/supertypo/simply-kaspa-indexer/model"
	"github.com/supertypo/simply-kaspa-indexer/signal"
)

const (
	// ibdBatchSize is how many chunks are consumed before requesting the
	// next window from the peer.
	ibdBatchSize = 99
	ibdTimeout   = 30 * time.Second
	ibdRetries   = 10
	ibdRetryWait = 5 * time.Second

	mainnetP2pPort = 16111
)

var mainnetSeeders = []string{
	"mainnet-dnsseed-1.kaspanet.org",
	"mainnet-dnsseed-2.kaspanet.org",
	"seeder1.kaspad.net",
	"seeder2.kaspad.net",
}

// UtxoSetImporter bootstraps an empty store from the node's pruning-point
// UTXO snapshot over the peer protocol, so that outputs spent by
// transactions after the pruning point resolve.
type UtxoSetImporter struct {
	settings         Settings
	sig              *signal.Handler
	met              *metrics.Metrics
	pruningPointHash model.Hash
	db               *database.Client

	includeAmount          bool
	includeScriptPublicKey bool
	includeBlockTime       bool
}

// NewUtxoSetImporter wires the importer.
func NewUtxoSetImporter(settings Settings, sig *signal.Handler, met *metrics.Metrics,
	pruningPointHash model.Hash, db *database.Client) *UtxoSetImporter {
	cfg := settings.Cfg
	return &UtxoSetImporter{
		settings:               settings,
		sig:                    sig,
		met:                    met,
		pruningPointHash:       pruningPointHash,
		db:                     db,
		includeAmount:          !cfg.IsExcluded(config.FieldTxOutAmount),
		includeScriptPublicKey: !cfg.IsExcluded(config.FieldTxOutScriptPublicKey),
		includeBlockTime:       !cfg.IsExcluded(config.FieldTxOutBlockTime),
	}
}

// Run performs the import, reconnecting on peer errors up to the retry
// limit. It returns once the snapshot is fully imported, skipped, or given
// up on.
func (i *UtxoSetImporter) Run(ctx context.Context) {
	address := i.peerAddress()
	if address == "" {
		log.Infof("UTXO set import skipped for network %s", i.settings.Cfg.Network)
		return
	}
	i.met.Update(func(s *metrics.Snapshot) {
		s.Components.UtxoImporter.Enabled = true
		completed := false
		s.Components.UtxoImporter.Completed = &completed
	})
	completed := false
	for attempt := 0; attempt < ibdRetries && !completed && !i.sig.IsShutdown(); attempt++ {
		log.Infof("Connecting P2P for UTXO set import using %s", address)
		peer, err := p2p.Connect(address, i.settings.Cfg.Network, "simply-kaspa-indexer")
		if err != nil {
			log.Warnf("Peer connection failed: %v, retrying...", err)
			i.sleep(ibdRetryWait)
			continue
		}
		if err = i.receiveAndHandle(ctx, peer); err != nil {
			log.Warnf("UTXO set import interrupted: %v", err)
			peer.Close()
			i.sleep(ibdRetryWait)
			continue
		}
		peer.Close()
		completed = true
	}
	i.met.Update(func(s *metrics.Snapshot) {
		s.Components.UtxoImporter.Completed = &completed
	})
	if !completed && !i.sig.IsShutdown() {
		log.Errorf("UTXO set import failed after %d attempts", ibdRetries)
	}
}

// peerAddress picks the peer: the configured one; otherwise, on mainnet
// only, the RPC host on the default port, or a DNS seeder when no RPC host
// is set. Other networks without a configured peer get none.
func (i *UtxoSetImporter) peerAddress() string {
	cfg := i.settings.Cfg
	if cfg.P2pURL != "" {
		return cfg.P2pURL
	}
	if cfg.Network != "mainnet" {
		return ""
	}
	if cfg.RpcURL != "" {
		if u, err := url.Parse(cfg.RpcURL); err == nil && u.Hostname() != "" {
			return fmt.Sprintf("%s:%d", u.Hostname(), mainnetP2pPort)
		}
	}
	seeder := mainnetSeeders[int(time.Now().UnixNano())%len(mainnetSeeders)]
	return fmt.Sprintf("%s:%d", seeder, mainnetP2pPort)
}

func (i *UtxoSetImporter) receiveAndHandle(ctx context.Context, peer *p2p.Peer) error {
	var acceptancesCommitted, outputsCommitted, utxosCount uint64
	chunkCount := 0
	for !i.sig.IsShutdown() {
		msg, err := peer.Receive(ibdTimeout)
		if err != nil {
			return err
		}
		switch msg.Command {
		case p2p.CmdVersion:
			log.Debugf("P2P: ua: %s, proto: %d, network: %s",
				msg.Version.UserAgent, msg.Version.ProtocolVersion, msg.Version.Network)
		case p2p.CmdRequestAddresses:
			log.Debug("Got addresses request, responding with empty list")
			if err = peer.SendAddresses(); err != nil {
				return err
			}
			// Peer is alive and ready, start requesting the UTXO set.
			if err = peer.SendRequestPruningPointUtxoSet(i.pruningPointHash); err != nil {
				return err
			}
		case p2p.CmdPruningPointUtxoSetChunk:
			chunkCount++
			utxosCount += uint64(len(msg.Chunk.OutpointAndUtxoEntryPairs))
			acceptances, outputs := i.persistUtxos(ctx, msg.Chunk.OutpointAndUtxoEntryPairs)
			acceptancesCommitted += acceptances
			outputsCommitted += outputs
			if chunkCount%ibdBatchSize == 0 {
				i.logProgress(chunkCount, acceptancesCommitted, outputsCommitted)
				if err = peer.SendRequestNextChunk(); err != nil {
					return err
				}
				i.updateMetrics(utxosCount, acceptancesCommitted, outputsCommitted)
			}
		case p2p.CmdDonePruningPointUtxoSetChunks:
			i.logProgress(chunkCount, acceptancesCommitted, outputsCommitted)
			log.Info("Pruning point UTXO set import completed successfully!")
			i.updateMetrics(utxosCount, acceptancesCommitted, outputsCommitted)
			return nil
		case p2p.CmdUnexpectedPruningPoint:
			log.Warn("Got unexpected pruning point")
			return errUnexpectedPruningPoint
		case p2p.CmdPing:
			log.Debugf("Got ping (nonce=%d), responding with pong", msg.Ping.Nonce)
			if err = peer.SendPong(msg.Ping.Nonce); err != nil {
				return err
			}
		default:
			log.Tracef("Ignoring message: %s", msg.Command)
		}
	}
	return errImportAborted
}

var (
	errUnexpectedPruningPoint = fmt.Errorf("unexpected pruning point")
	errImportAborted          = fmt.Errorf("aborted")
)

// persistUtxos converts one chunk to output rows plus acceptance rows with
// no accepting block, de-duplicated per transaction id. Acceptances are
// inserted with conflicts ignored; outputs are upserted.
func (i *UtxoSetImporter) persistUtxos(ctx context.Context, pairs []p2p.OutpointAndUtxoEntryPair) (uint64, uint64) {
	outputs := make([]model.TransactionOutput, 0, len(pairs))
	seen := make(map[model.Hash]bool)
	var acceptances []model.TransactionAcceptance
	for _, pair := range pairs {
		row := model.TransactionOutput{
			TransactionID: pair.TransactionID,
			Index:         int16(pair.Index),
		}
		if i.includeAmount {
			amount := int64(pair.UtxoEntry.Amount)
			row.Amount = &amount
		}
		if i.includeScriptPublicKey {
			row.ScriptPublicKey = pair.UtxoEntry.ScriptPublicKey
		}
		if i.includeBlockTime {
			blockTime := int64(0)
			row.BlockTime = &blockTime
		}
		outputs = append(outputs, row)
		if !seen[pair.TransactionID] {
			seen[pair.TransactionID] = true
			id := pair.TransactionID
			acceptances = append(acceptances, model.TransactionAcceptance{TransactionID: &id})
		}
	}
	acceptanceCount, err := i.db.InsertTransactionAcceptances(ctx, acceptances)
	if err != nil {
		log.Fatalf("Insert acceptances FAILED: %v", err)
	}
	outputCount, err := i.db.UpsertUtxos(ctx, outputs)
	if err != nil {
		log.Fatalf("Upsert utxos FAILED: %v", err)
	}
	return uint64(acceptanceCount), uint64(outputCount)
}

func (i *UtxoSetImporter) logProgress(chunks int, acceptances, outputs uint64) {
	log.Infof("Imported %d UTXO chunks. Committed %d accepted transactions, %d outputs",
		chunks, acceptances, outputs)
}

func (i *UtxoSetImporter) updateMetrics(utxos, acceptances, outputs uint64) {
	i.met.Update(func(s *metrics.Snapshot) {
		s.Components.UtxoImporter.UtxosImported = utxos
		s.Components.UtxoImporter.AcceptancesCommitted = acceptances
		s.Components.UtxoImporter.OutputsCommitted = outputs
	})
}

func (i *UtxoSetImporter) sleep(d time.Duration) {
	select {
	case <-time.After(d):
	case <-i.sig.Done():
	}
}
