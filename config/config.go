// Package config holds the runtime configuration assembled by the launcher
// from CLI flags, together with the feature-toggle taxonomies shared by the
// pipeline stages and the persistence codec.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Enable names optional functionality that is off by default.
type Enable string

const (
	// EnableDynamicVcpTipDistance enables dynamic VCP tip distance, which
	// reduces write load due to reorgs.
	EnableDynamicVcpTipDistance Enable = "dynamic_vcp_tip_distance"
	// EnableTransactionsInputsResolve enables resolving the previous
	// outpoint of transactions_inputs.
	EnableTransactionsInputsResolve Enable = "transactions_inputs_resolve"
	// EnableForceUtxoImport forces a pruning-point UTXO set import on
	// startup (otherwise it only runs on an empty database).
	EnableForceUtxoImport Enable = "force_utxo_import"
)

// Disable names default functionality that can be switched off.
type Disable string

const (
	DisableVirtualChainProcessing     Disable = "virtual_chain_processing"
	DisableTransactionAcceptance      Disable = "transaction_acceptance"
	DisableTransactionProcessing      Disable = "transaction_processing"
	DisableBlocksTable                Disable = "blocks_table"
	DisableBlockParentTable           Disable = "block_parent_table"
	DisableBlocksTransactionsTable    Disable = "blocks_transactions_table"
	DisableTransactionsTable          Disable = "transactions_table"
	DisableTransactionsInputsTable    Disable = "transactions_inputs_table"
	DisableTransactionsOutputsTable   Disable = "transactions_outputs_table"
	DisableAddressesTransactionsTable Disable = "addresses_transactions_table"
	DisableInitialUtxoImport          Disable = "initial_utxo_import"
	DisableVcpWaitForSync             Disable = "vcp_wait_for_sync"
)

// Field names a persisted column that can be excluded from the codec.
type Field string

const (
	FieldBlockAcceptedIDMerkleRoot   Field = "block_accepted_id_merkle_root"
	FieldBlockMergeSetBluesHashes    Field = "block_merge_set_blues_hashes"
	FieldBlockMergeSetRedsHashes     Field = "block_merge_set_reds_hashes"
	FieldBlockSelectedParentHash     Field = "block_selected_parent_hash"
	FieldBlockBits                   Field = "block_bits"
	FieldBlockBlueWork               Field = "block_blue_work"
	FieldBlockBlueScore              Field = "block_blue_score"
	FieldBlockDaaScore               Field = "block_daa_score"
	FieldBlockHashMerkleRoot         Field = "block_hash_merkle_root"
	FieldBlockNonce                  Field = "block_nonce"
	FieldBlockPruningPoint           Field = "block_pruning_point"
	FieldBlockTimestamp              Field = "block_timestamp"
	FieldBlockUtxoCommitment         Field = "block_utxo_commitment"
	FieldBlockVersion                Field = "block_version"
	FieldTxSubnetworkID              Field = "tx_subnetwork_id"
	FieldTxHash                      Field = "tx_hash"
	FieldTxMass                      Field = "tx_mass"
	FieldTxPayload                   Field = "tx_payload"
	FieldTxBlockTime                 Field = "tx_block_time"
	FieldTxInPreviousOutpoint        Field = "tx_in_previous_outpoint"
	FieldTxInSignatureScript         Field = "tx_in_signature_script"
	FieldTxInSigOpCount              Field = "tx_in_sig_op_count"
	FieldTxInBlockTime               Field = "tx_in_block_time"
	FieldTxOutAmount                 Field = "tx_out_amount"
	FieldTxOutScriptPublicKey        Field = "tx_out_script_public_key"
	FieldTxOutScriptPublicKeyAddress Field = "tx_out_script_public_key_address"
	FieldTxOutBlockTime              Field = "tx_out_block_time"
)

// Pruning configures the retention pruner. A zero retention means the
// corresponding table is never pruned.
type Pruning struct {
	PruneDB   string // cron expression; empty disables pruning
	Retention time.Duration

	RetentionBlockParent             time.Duration
	RetentionBlocksTransactions      time.Duration
	RetentionBlocks                  time.Duration
	RetentionTransactionsAcceptances time.Duration
	RetentionTransactionsOutputs     time.Duration
	RetentionTransactionsInputs      time.Duration
	RetentionTransactions            time.Duration
	RetentionAddressesTransactions   time.Duration
	RetentionScriptsTransactions     time.Duration
}

// ApplyDefaults fills every per-table retention that is unset with the
// global retention.
func (p *Pruning) ApplyDefaults() {
	for _, r := range []*time.Duration{
		&p.RetentionBlockParent,
		&p.RetentionBlocksTransactions,
		&p.RetentionBlocks,
		&p.RetentionTransactionsAcceptances,
		&p.RetentionTransactionsOutputs,
		&p.RetentionTransactionsInputs,
		&p.RetentionTransactions,
		&p.RetentionAddressesTransactions,
		&p.RetentionScriptsTransactions,
	} {
		if *r == 0 {
			*r = p.Retention
		}
	}
}

// Config aggregates every option the indexer recognizes.
type Config struct {
	RpcURL      string
	P2pURL      string
	Network     string
	DatabaseURL string
	Listen      string
	BasePath    string

	LogLevel   string
	LogNoColor bool
	SentryDSN  string

	BatchScale       float64
	BatchConcurrency int
	CacheTTL         time.Duration

	BlockInterval time.Duration
	VcpInterval   time.Duration
	VcpWindow     time.Duration

	IgnoreCheckpoint string
	UpgradeDB        bool
	InitializeDB     bool

	Enabled       []Enable
	Disabled      []Disable
	ExcludeFields []Field

	Pruning Pruning
}

// IsEnabled reports whether the given optional functionality was requested.
func (c *Config) IsEnabled(e Enable) bool {
	for _, v := range c.Enabled {
		if v == e {
			return true
		}
	}
	return false
}

// IsDisabled reports whether the given functionality was switched off.
func (c *Config) IsDisabled(d Disable) bool {
	for _, v := range c.Disabled {
		if v == d {
			return true
		}
	}
	return false
}

// IsExcluded reports whether the given column was excluded from persistence.
func (c *Config) IsExcluded(f Field) bool {
	for _, v := range c.ExcludeFields {
		if v == f {
			return true
		}
	}
	return false
}

// Validate checks the numeric ranges and the checkpoint override.
func (c *Config) Validate() error {
	if c.BatchScale < 0.1 || c.BatchScale > 10 {
		return errors.Errorf("invalid batch-scale %v, must be within [0.1, 10]", c.BatchScale)
	}
	if c.BatchConcurrency < 1 || c.BatchConcurrency > 10 {
		return errors.Errorf("invalid batch-concurrency %d, must be within [1, 10]", c.BatchConcurrency)
	}
	if c.IgnoreCheckpoint != "" && c.IgnoreCheckpoint != "p" && c.IgnoreCheckpoint != "v" {
		if len(c.IgnoreCheckpoint) != 64 || !isHex(c.IgnoreCheckpoint) {
			return errors.Errorf("invalid ignore-checkpoint %q, must be 'p', 'v' or a block hash", c.IgnoreCheckpoint)
		}
	}
	return nil
}

func isHex(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F')
	}) < 0
}

// ParseEnables parses a comma-separated enable list.
func ParseEnables(raw string) ([]Enable, error) {
	known := map[Enable]bool{
		EnableDynamicVcpTipDistance:     true,
		EnableTransactionsInputsResolve: true,
		EnableForceUtxoImport:           true,
	}
	var out []Enable
	for _, s := range splitCSV(raw) {
		e := Enable(s)
		if !known[e] {
			return nil, errors.Errorf("unknown enable value %q", s)
		}
		out = append(out, e)
	}
	return out, nil
}

// ParseDisables parses a comma-separated disable list.
func ParseDisables(raw string) ([]Disable, error) {
	known := map[Disable]bool{
		DisableVirtualChainProcessing:     true,
		DisableTransactionAcceptance:      true,
		DisableTransactionProcessing:      true,
		DisableBlocksTable:                true,
		DisableBlockParentTable:           true,
		DisableBlocksTransactionsTable:    true,
		DisableTransactionsTable:          true,
		DisableTransactionsInputsTable:    true,
		DisableTransactionsOutputsTable:   true,
		DisableAddressesTransactionsTable: true,
		DisableInitialUtxoImport:          true,
		DisableVcpWaitForSync:             true,
	}
	var out []Disable
	for _, s := range splitCSV(raw) {
		d := Disable(s)
		if !known[d] {
			return nil, errors.Errorf("unknown disable value %q", s)
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseFields parses a comma-separated exclude-fields list.
func ParseFields(raw string) ([]Field, error) {
	known := map[Field]bool{
		FieldBlockAcceptedIDMerkleRoot: true, FieldBlockMergeSetBluesHashes: true,
		FieldBlockMergeSetRedsHashes: true, FieldBlockSelectedParentHash: true,
		FieldBlockBits: true, FieldBlockBlueWork: true, FieldBlockBlueScore: true,
		FieldBlockDaaScore: true, FieldBlockHashMerkleRoot: true, FieldBlockNonce: true,
		FieldBlockPruningPoint: true, FieldBlockTimestamp: true,
		FieldBlockUtxoCommitment: true, FieldBlockVersion: true,
		FieldTxSubnetworkID: true, FieldTxHash: true, FieldTxMass: true,
		FieldTxPayload: true, FieldTxBlockTime: true,
		FieldTxInPreviousOutpoint: true, FieldTxInSignatureScript: true,
		FieldTxInSigOpCount: true, FieldTxInBlockTime: true,
		FieldTxOutAmount: true, FieldTxOutScriptPublicKey: true,
		FieldTxOutScriptPublicKeyAddress: true, FieldTxOutBlockTime: true,
	}
	var out []Field
	for _, s := range splitCSV(raw) {
		f := Field(s)
		if !known[f] {
			return nil, errors.Errorf("unknown exclude-fields value %q", s)
		}
		out = append(out, f)
	}
	return out, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
