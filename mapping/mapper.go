// Package mapping converts kaspad RPC DTOs into store rows. Excluded fields
// are left nil so they persist as NULL. The mapper interprets the exclusion
// configuration for RPC data; the UTXO importer applies the output
// exclusions to snapshot rows itself.
package mapping

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/supertypo/simply-kaspa-indexer/config"
	"github.com/supertypo/simply-kaspa-indexer/kaspad"
	"github.com/supertypo/simply-kaspa-indexer/model"
)

// Mapper maps RPC blocks and transactions to rows.
type Mapper struct {
	includeBlockAcceptedIDMerkleRoot bool
	includeBlockMergeSetBlues        bool
	includeBlockMergeSetReds         bool
	includeBlockSelectedParentHash   bool
	includeBlockBits                 bool
	includeBlockBlueWork             bool
	includeBlockBlueScore            bool
	includeBlockDaaScore             bool
	includeBlockHashMerkleRoot       bool
	includeBlockNonce                bool
	includeBlockPruningPoint         bool
	includeBlockTimestamp            bool
	includeBlockUtxoCommitment       bool
	includeBlockVersion              bool

	includeTxSubnetworkID bool
	includeTxHash         bool
	includeTxMass         bool
	includeTxPayload      bool
	includeTxBlockTime    bool

	includeTxInPreviousOutpoint bool
	includeTxInSignatureScript  bool
	includeTxInSigOpCount       bool
	includeTxInBlockTime        bool

	includeTxOutAmount                 bool
	includeTxOutScriptPublicKey        bool
	includeTxOutScriptPublicKeyAddress bool
	includeTxOutBlockTime              bool
}

// NewMapper builds a mapper from the exclusion configuration.
func NewMapper(cfg *config.Config) *Mapper {
	return &Mapper{
		includeBlockAcceptedIDMerkleRoot: !cfg.IsExcluded(config.FieldBlockAcceptedIDMerkleRoot),
		includeBlockMergeSetBlues:        !cfg.IsExcluded(config.FieldBlockMergeSetBluesHashes),
		includeBlockMergeSetReds:         !cfg.IsExcluded(config.FieldBlockMergeSetRedsHashes),
		includeBlockSelectedParentHash:   !cfg.IsExcluded(config.FieldBlockSelectedParentHash),
		includeBlockBits:                 !cfg.IsExcluded(config.FieldBlockBits),
		includeBlockBlueWork:             !cfg.IsExcluded(config.FieldBlockBlueWork),
		includeBlockBlueScore:            !cfg.IsExcluded(config.FieldBlockBlueScore),
		includeBlockDaaScore:             !cfg.IsExcluded(config.FieldBlockDaaScore),
		includeBlockHashMerkleRoot:       !cfg.IsExcluded(config.FieldBlockHashMerkleRoot),
		includeBlockNonce:                !cfg.IsExcluded(config.FieldBlockNonce),
		includeBlockPruningPoint:         !cfg.IsExcluded(config.FieldBlockPruningPoint),
		includeBlockTimestamp:            !cfg.IsExcluded(config.FieldBlockTimestamp),
		includeBlockUtxoCommitment:       !cfg.IsExcluded(config.FieldBlockUtxoCommitment),
		includeBlockVersion:              !cfg.IsExcluded(config.FieldBlockVersion),

		includeTxSubnetworkID: !cfg.IsExcluded(config.FieldTxSubnetworkID),
		includeTxHash:         !cfg.IsExcluded(config.FieldTxHash),
		includeTxMass:         !cfg.IsExcluded(config.FieldTxMass),
		includeTxPayload:      !cfg.IsExcluded(config.FieldTxPayload),
		includeTxBlockTime:    !cfg.IsExcluded(config.FieldTxBlockTime),

		includeTxInPreviousOutpoint: !cfg.IsExcluded(config.FieldTxInPreviousOutpoint),
		includeTxInSignatureScript:  !cfg.IsExcluded(config.FieldTxInSignatureScript),
		includeTxInSigOpCount:       !cfg.IsExcluded(config.FieldTxInSigOpCount),
		includeTxInBlockTime:        !cfg.IsExcluded(config.FieldTxInBlockTime),

		includeTxOutAmount:                 !cfg.IsExcluded(config.FieldTxOutAmount),
		includeTxOutScriptPublicKey:        !cfg.IsExcluded(config.FieldTxOutScriptPublicKey),
		includeTxOutScriptPublicKeyAddress: !cfg.IsExcluded(config.FieldTxOutScriptPublicKeyAddress),
		includeTxOutBlockTime:              !cfg.IsExcluded(config.FieldTxOutBlockTime),
	}
}

// AddressMappingEnabled reports whether the output side can be mapped to
// addresses; with the address column excluded the script mapping is used,
// and with both excluded the mapping is disabled entirely.
func (m *Mapper) AddressMappingEnabled() bool {
	return m.includeTxOutScriptPublicKeyAddress
}

// ScriptMappingEnabled reports whether the script fallback mapping applies.
func (m *Mapper) ScriptMappingEnabled() bool {
	return !m.includeTxOutScriptPublicKeyAddress && m.includeTxOutScriptPublicKey
}

// UseTxForInputBlockTime reports whether the input-side address mapping must
// take block_time from the transactions row.
func (m *Mapper) UseTxForInputBlockTime() bool {
	return !m.includeTxInBlockTime
}

// MapBlock maps one RPC block to a blocks row.
func (m *Mapper) MapBlock(block *kaspad.Block) (model.Block, error) {
	var out model.Block
	hash, err := model.ParseHash(block.VerboseData.Hash)
	if err != nil {
		return out, errors.Wrap(err, "block hash")
	}
	out.Hash = hash
	if m.includeBlockAcceptedIDMerkleRoot {
		if out.AcceptedIDMerkleRoot, err = parseHashPtr(block.Header.AcceptedIDMerkleRoot); err != nil {
			return out, err
		}
	}
	if m.includeBlockMergeSetBlues {
		if out.MergeSetBluesHashes, err = parseHashes(block.VerboseData.MergeSetBluesHashes); err != nil {
			return out, err
		}
	}
	if m.includeBlockMergeSetReds {
		if out.MergeSetRedsHashes, err = parseHashes(block.VerboseData.MergeSetRedsHashes); err != nil {
			return out, err
		}
	}
	if m.includeBlockSelectedParentHash {
		if out.SelectedParentHash, err = parseHashPtr(block.VerboseData.SelectedParentHash); err != nil {
			return out, err
		}
	}
	if m.includeBlockBits {
		bits := int64(block.Header.Bits)
		out.Bits = &bits
	}
	if m.includeBlockBlueScore {
		blueScore := int64(block.Header.BlueScore)
		out.BlueScore = &blueScore
	}
	if m.includeBlockBlueWork {
		if out.BlueWork, err = parseHexBytes(block.Header.BlueWork); err != nil {
			return out, errors.Wrap(err, "blue work")
		}
	}
	if m.includeBlockDaaScore {
		daaScore := int64(block.Header.DaaScore)
		out.DaaScore = &daaScore
	}
	if m.includeBlockHashMerkleRoot {
		if out.HashMerkleRoot, err = parseHashPtr(block.Header.HashMerkleRoot); err != nil {
			return out, err
		}
	}
	if m.includeBlockNonce {
		nonce := make([]byte, 8)
		binary.BigEndian.PutUint64(nonce, block.Header.Nonce)
		out.Nonce = nonce
	}
	if m.includeBlockPruningPoint {
		if out.PruningPoint, err = parseHashPtr(block.Header.PruningPoint); err != nil {
			return out, err
		}
	}
	if m.includeBlockTimestamp {
		ts := int64(block.Header.Timestamp)
		out.Timestamp = &ts
	}
	if m.includeBlockUtxoCommitment {
		if out.UtxoCommitment, err = parseHashPtr(block.Header.UtxoCommitment); err != nil {
			return out, err
		}
	}
	if m.includeBlockVersion {
		version := int16(block.Header.Version)
		out.Version = &version
	}
	return out, nil
}

// MapBlockParents maps the direct (level zero) parents of a block.
func (m *Mapper) MapBlockParents(block *kaspad.Block) ([]model.BlockParent, error) {
	blockHash, err := model.ParseHash(block.VerboseData.Hash)
	if err != nil {
		return nil, errors.Wrap(err, "block hash")
	}
	if len(block.Header.Parents) == 0 {
		return nil, nil
	}
	direct := block.Header.Parents[0].ParentHashes
	out := make([]model.BlockParent, 0, len(direct))
	for _, p := range direct {
		parentHash, err := model.ParseHash(p)
		if err != nil {
			return nil, errors.Wrap(err, "parent hash")
		}
		out = append(out, model.BlockParent{BlockHash: blockHash, ParentHash: parentHash})
	}
	return out, nil
}

// MapTransaction maps one RPC transaction to a transactions row.
func (m *Mapper) MapTransaction(tx *kaspad.Transaction, subnetworkKey int32) (model.Transaction, error) {
	var out model.Transaction
	if tx.VerboseData == nil {
		return out, errors.New("transaction verbose data is missing")
	}
	id, err := model.ParseHash(tx.VerboseData.TransactionID)
	if err != nil {
		return out, errors.Wrap(err, "transaction id")
	}
	out.TransactionID = id
	if m.includeTxSubnetworkID {
		key := subnetworkKey
		out.SubnetworkID = &key
	}
	if m.includeTxHash {
		if out.Hash, err = parseHashPtr(tx.VerboseData.Hash); err != nil {
			return out, err
		}
	}
	if m.includeTxMass && tx.VerboseData.ComputeMass != 0 {
		mass := int32(tx.VerboseData.ComputeMass)
		out.Mass = &mass
	}
	if m.includeTxPayload && tx.Payload != "" {
		if out.Payload, err = parseHexBytes(tx.Payload); err != nil {
			return out, errors.Wrap(err, "payload")
		}
	}
	if m.includeTxBlockTime {
		blockTime := int64(tx.VerboseData.BlockTime)
		out.BlockTime = &blockTime
	}
	return out, nil
}

// MapBlockTransaction maps the block/transaction relation of one RPC
// transaction.
func (m *Mapper) MapBlockTransaction(tx *kaspad.Transaction) (model.BlockTransaction, error) {
	var out model.BlockTransaction
	if tx.VerboseData == nil {
		return out, errors.New("transaction verbose data is missing")
	}
	id, err := model.ParseHash(tx.VerboseData.TransactionID)
	if err != nil {
		return out, errors.Wrap(err, "transaction id")
	}
	blockHash, err := model.ParseHash(tx.VerboseData.BlockHash)
	if err != nil {
		return out, errors.Wrap(err, "block hash")
	}
	out.TransactionID = id
	out.BlockHash = blockHash
	return out, nil
}

// MapTransactionInputs maps the inputs of one RPC transaction.
func (m *Mapper) MapTransactionInputs(tx *kaspad.Transaction) ([]model.TransactionInput, error) {
	if tx.VerboseData == nil {
		return nil, errors.New("transaction verbose data is missing")
	}
	id, err := model.ParseHash(tx.VerboseData.TransactionID)
	if err != nil {
		return nil, errors.Wrap(err, "transaction id")
	}
	out := make([]model.TransactionInput, 0, len(tx.Inputs))
	for i, input := range tx.Inputs {
		row := model.TransactionInput{TransactionID: id, Index: int16(i)}
		if m.includeTxInPreviousOutpoint {
			if row.PreviousOutpointHash, err = parseHashPtr(input.PreviousOutpoint.TransactionID); err != nil {
				return nil, errors.Wrap(err, "previous outpoint")
			}
			idx := int16(input.PreviousOutpoint.Index)
			row.PreviousOutpointIndex = &idx
		}
		if m.includeTxInSignatureScript {
			if row.SignatureScript, err = parseHexBytes(input.SignatureScript); err != nil {
				return nil, errors.Wrap(err, "signature script")
			}
		}
		if m.includeTxInSigOpCount {
			sigOps := int16(input.SigOpCount)
			row.SigOpCount = &sigOps
		}
		if m.includeTxInBlockTime {
			blockTime := int64(tx.VerboseData.BlockTime)
			row.BlockTime = &blockTime
		}
		out = append(out, row)
	}
	return out, nil
}

// MapTransactionOutputs maps the outputs of one RPC transaction.
func (m *Mapper) MapTransactionOutputs(tx *kaspad.Transaction) ([]model.TransactionOutput, error) {
	if tx.VerboseData == nil {
		return nil, errors.New("transaction verbose data is missing")
	}
	id, err := model.ParseHash(tx.VerboseData.TransactionID)
	if err != nil {
		return nil, errors.Wrap(err, "transaction id")
	}
	out := make([]model.TransactionOutput, 0, len(tx.Outputs))
	for i, output := range tx.Outputs {
		row := model.TransactionOutput{TransactionID: id, Index: int16(i)}
		if m.includeTxOutAmount {
			amount := int64(output.Amount)
			row.Amount = &amount
		}
		if m.includeTxOutScriptPublicKey {
			if row.ScriptPublicKey, err = parseHexBytes(output.ScriptPublicKey.ScriptPublicKey); err != nil {
				return nil, errors.Wrap(err, "script public key")
			}
		}
		if m.includeTxOutScriptPublicKeyAddress && output.VerboseData != nil {
			address := output.VerboseData.ScriptPublicKeyAddress
			row.ScriptPublicKeyAddress = &address
		}
		if m.includeTxOutBlockTime {
			blockTime := int64(tx.VerboseData.BlockTime)
			row.BlockTime = &blockTime
		}
		out = append(out, row)
	}
	return out, nil
}

// MapTransactionOutputsAddress maps the output side of the address mapping.
func (m *Mapper) MapTransactionOutputsAddress(tx *kaspad.Transaction) ([]model.AddressTransaction, error) {
	if tx.VerboseData == nil {
		return nil, errors.New("transaction verbose data is missing")
	}
	id, err := model.ParseHash(tx.VerboseData.TransactionID)
	if err != nil {
		return nil, errors.Wrap(err, "transaction id")
	}
	blockTime := int64(tx.VerboseData.BlockTime)
	out := make([]model.AddressTransaction, 0, len(tx.Outputs))
	for _, output := range tx.Outputs {
		if output.VerboseData == nil || output.VerboseData.ScriptPublicKeyAddress == "" {
			continue
		}
		out = append(out, model.AddressTransaction{
			Address:       output.VerboseData.ScriptPublicKeyAddress,
			TransactionID: id,
			BlockTime:     blockTime,
		})
	}
	return out, nil
}

// MapTransactionOutputsScript maps the output side of the script mapping.
func (m *Mapper) MapTransactionOutputsScript(tx *kaspad.Transaction) ([]model.ScriptTransaction, error) {
	if tx.VerboseData == nil {
		return nil, errors.New("transaction verbose data is missing")
	}
	id, err := model.ParseHash(tx.VerboseData.TransactionID)
	if err != nil {
		return nil, errors.Wrap(err, "transaction id")
	}
	blockTime := int64(tx.VerboseData.BlockTime)
	out := make([]model.ScriptTransaction, 0, len(tx.Outputs))
	for _, output := range tx.Outputs {
		script, err := parseHexBytes(output.ScriptPublicKey.ScriptPublicKey)
		if err != nil {
			return nil, errors.Wrap(err, "script public key")
		}
		if script == nil {
			continue
		}
		out = append(out, model.ScriptTransaction{
			ScriptPublicKey: script,
			TransactionID:   id,
			BlockTime:       blockTime,
		})
	}
	return out, nil
}

func parseHashPtr(s string) (*model.Hash, error) {
	if s == "" {
		return nil, nil
	}
	h, err := model.ParseHash(s)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func parseHashes(raw []string) ([]model.Hash, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]model.Hash, 0, len(raw))
	for _, s := range raw {
		h, err := model.ParseHash(s)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func parseHexBytes(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}
