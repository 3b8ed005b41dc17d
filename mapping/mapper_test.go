package mapping

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supertypo/simply-kaspa-indexer/config"
	"github.com/supertypo/simply-kaspa-indexer/kaspad"
	"github.com/supertypo/simply-kaspa-indexer/model"
)

var (
	blockHashHex  = strings.Repeat("aa", 32)
	parent1Hex    = strings.Repeat("b1", 32)
	parent2Hex    = strings.Repeat("b2", 32)
	txIDHex       = strings.Repeat("cc", 32)
	txHashHex     = strings.Repeat("dd", 32)
	prevOutHex    = strings.Repeat("ee", 32)
	merkleRootHex = strings.Repeat("11", 32)
)

func testBlock() *kaspad.Block {
	return &kaspad.Block{
		Header: kaspad.BlockHeader{
			Version: 1,
			Parents: []kaspad.BlockLevelParents{
				{ParentHashes: []string{parent1Hex, parent2Hex}},
				{ParentHashes: []string{strings.Repeat("b3", 32)}},
			},
			HashMerkleRoot:       merkleRootHex,
			AcceptedIDMerkleRoot: merkleRootHex,
			UtxoCommitment:       merkleRootHex,
			Timestamp:            1000,
			Bits:                 486722099,
			Nonce:                12345,
			DaaScore:             42,
			BlueWork:             "1b0f2c",
			PruningPoint:         merkleRootHex,
			BlueScore:            1,
		},
		VerboseData: kaspad.BlockVerboseData{
			Hash:                blockHashHex,
			SelectedParentHash:  parent1Hex,
			BlueScore:           1,
			MergeSetBluesHashes: []string{parent1Hex},
		},
	}
}

func testTransaction() *kaspad.Transaction {
	return &kaspad.Transaction{
		SubnetworkID: "0000000000000000000000000000000000000000",
		Payload:      "f00d",
		Inputs: []kaspad.TransactionInput{
			{
				PreviousOutpoint: kaspad.Outpoint{TransactionID: prevOutHex, Index: 2},
				SignatureScript:  "4142",
				SigOpCount:       1,
			},
		},
		Outputs: []kaspad.TransactionOutput{
			{
				Amount:          50_000_000,
				ScriptPublicKey: kaspad.ScriptPublicKey{ScriptPublicKey: "20ab"},
				VerboseData:     &kaspad.TransactionOutputVerboseData{ScriptPublicKeyAddress: "qzexample"},
			},
			{
				Amount:          1,
				ScriptPublicKey: kaspad.ScriptPublicKey{ScriptPublicKey: "20cd"},
				VerboseData:     &kaspad.TransactionOutputVerboseData{},
			},
		},
		VerboseData: &kaspad.TransactionVerboseData{
			TransactionID: txIDHex,
			Hash:          txHashHex,
			ComputeMass:   1636,
			BlockHash:     blockHashHex,
			BlockTime:     1000,
		},
	}
}

func TestMapBlock_AllFields(t *testing.T) {
	m := NewMapper(&config.Config{})
	block, err := m.MapBlock(testBlock())
	require.NoError(t, err)

	assert.Equal(t, model.MustParseHash(blockHashHex), block.Hash)
	require.NotNil(t, block.SelectedParentHash)
	assert.Equal(t, model.MustParseHash(parent1Hex), *block.SelectedParentHash)
	require.NotNil(t, block.Bits)
	assert.Equal(t, int64(486722099), *block.Bits)
	require.NotNil(t, block.BlueScore)
	assert.Equal(t, int64(1), *block.BlueScore)
	assert.Equal(t, []byte{0x1b, 0x0f, 0x2c}, block.BlueWork)
	require.NotNil(t, block.DaaScore)
	assert.Equal(t, int64(42), *block.DaaScore)
	require.NotNil(t, block.Timestamp)
	assert.Equal(t, int64(1000), *block.Timestamp)
	require.NotNil(t, block.Version)
	assert.Equal(t, int16(1), *block.Version)
	assert.Len(t, block.MergeSetBluesHashes, 1)
	assert.Empty(t, block.MergeSetRedsHashes)
	assert.Len(t, block.Nonce, 8)
}

func TestMapBlock_ExcludedFields(t *testing.T) {
	m := NewMapper(&config.Config{ExcludeFields: []config.Field{
		config.FieldBlockBits,
		config.FieldBlockBlueWork,
		config.FieldBlockNonce,
		config.FieldBlockTimestamp,
		config.FieldBlockMergeSetBluesHashes,
	}})
	block, err := m.MapBlock(testBlock())
	require.NoError(t, err)

	assert.Equal(t, model.MustParseHash(blockHashHex), block.Hash)
	assert.Nil(t, block.Bits)
	assert.Nil(t, block.BlueWork)
	assert.Nil(t, block.Nonce)
	assert.Nil(t, block.Timestamp)
	assert.Nil(t, block.MergeSetBluesHashes)
	// Untouched columns survive the exclusion.
	assert.NotNil(t, block.BlueScore)
}

func TestMapBlockParents_DirectParentsOnly(t *testing.T) {
	m := NewMapper(&config.Config{})
	parents, err := m.MapBlockParents(testBlock())
	require.NoError(t, err)

	require.Len(t, parents, 2)
	assert.Equal(t, model.MustParseHash(blockHashHex), parents[0].BlockHash)
	assert.Equal(t, model.MustParseHash(parent1Hex), parents[0].ParentHash)
	assert.Equal(t, model.MustParseHash(parent2Hex), parents[1].ParentHash)
}

func TestMapTransaction(t *testing.T) {
	m := NewMapper(&config.Config{})
	tx, err := m.MapTransaction(testTransaction(), 7)
	require.NoError(t, err)

	assert.Equal(t, model.MustParseHash(txIDHex), tx.TransactionID)
	require.NotNil(t, tx.SubnetworkID)
	assert.Equal(t, int32(7), *tx.SubnetworkID)
	require.NotNil(t, tx.Hash)
	assert.Equal(t, model.MustParseHash(txHashHex), *tx.Hash)
	require.NotNil(t, tx.Mass)
	assert.Equal(t, int32(1636), *tx.Mass)
	assert.Equal(t, []byte{0xf0, 0x0d}, tx.Payload)
	require.NotNil(t, tx.BlockTime)
	assert.Equal(t, int64(1000), *tx.BlockTime)
}

func TestMapTransaction_ZeroMassIsNull(t *testing.T) {
	m := NewMapper(&config.Config{})
	rpcTx := testTransaction()
	rpcTx.VerboseData.ComputeMass = 0
	tx, err := m.MapTransaction(rpcTx, 0)
	require.NoError(t, err)
	assert.Nil(t, tx.Mass)
}

func TestMapTransaction_MissingVerboseData(t *testing.T) {
	m := NewMapper(&config.Config{})
	_, err := m.MapTransaction(&kaspad.Transaction{}, 0)
	assert.Error(t, err)
}

func TestMapBlockTransaction(t *testing.T) {
	m := NewMapper(&config.Config{})
	edge, err := m.MapBlockTransaction(testTransaction())
	require.NoError(t, err)
	assert.Equal(t, model.MustParseHash(blockHashHex), edge.BlockHash)
	assert.Equal(t, model.MustParseHash(txIDHex), edge.TransactionID)
}

func TestMapTransactionInputs(t *testing.T) {
	m := NewMapper(&config.Config{})
	inputs, err := m.MapTransactionInputs(testTransaction())
	require.NoError(t, err)

	require.Len(t, inputs, 1)
	in := inputs[0]
	assert.Equal(t, int16(0), in.Index)
	require.NotNil(t, in.PreviousOutpointHash)
	assert.Equal(t, model.MustParseHash(prevOutHex), *in.PreviousOutpointHash)
	require.NotNil(t, in.PreviousOutpointIndex)
	assert.Equal(t, int16(2), *in.PreviousOutpointIndex)
	assert.Equal(t, []byte{0x41, 0x42}, in.SignatureScript)
	require.NotNil(t, in.SigOpCount)
	assert.Equal(t, int16(1), *in.SigOpCount)
	// Resolved fields are only filled during flush.
	assert.Nil(t, in.PreviousOutpointScript)
	assert.Nil(t, in.PreviousOutpointAmount)
}

func TestMapTransactionOutputs(t *testing.T) {
	m := NewMapper(&config.Config{})
	outputs, err := m.MapTransactionOutputs(testTransaction())
	require.NoError(t, err)

	require.Len(t, outputs, 2)
	assert.Equal(t, int16(0), outputs[0].Index)
	assert.Equal(t, int16(1), outputs[1].Index)
	require.NotNil(t, outputs[0].Amount)
	assert.Equal(t, int64(50_000_000), *outputs[0].Amount)
	assert.Equal(t, []byte{0x20, 0xab}, outputs[0].ScriptPublicKey)
	require.NotNil(t, outputs[0].ScriptPublicKeyAddress)
	assert.Equal(t, "qzexample", *outputs[0].ScriptPublicKeyAddress)
}

func TestMapTransactionOutputsAddress_SkipsMissingAddresses(t *testing.T) {
	m := NewMapper(&config.Config{})
	rows, err := m.MapTransactionOutputsAddress(testTransaction())
	require.NoError(t, err)

	// The second output has no decoded address and is dropped.
	require.Len(t, rows, 1)
	assert.Equal(t, "qzexample", rows[0].Address)
	assert.Equal(t, int64(1000), rows[0].BlockTime)
}

func TestMapTransactionOutputsScript(t *testing.T) {
	m := NewMapper(&config.Config{})
	rows, err := m.MapTransactionOutputsScript(testTransaction())
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, []byte{0x20, 0xab}, rows[0].ScriptPublicKey)
	assert.Equal(t, []byte{0x20, 0xcd}, rows[1].ScriptPublicKey)
}

func TestMappingKindSelection(t *testing.T) {
	m := NewMapper(&config.Config{})
	assert.True(t, m.AddressMappingEnabled())
	assert.False(t, m.ScriptMappingEnabled())

	m = NewMapper(&config.Config{ExcludeFields: []config.Field{config.FieldTxOutScriptPublicKeyAddress}})
	assert.False(t, m.AddressMappingEnabled())
	assert.True(t, m.ScriptMappingEnabled())

	m = NewMapper(&config.Config{ExcludeFields: []config.Field{
		config.FieldTxOutScriptPublicKeyAddress,
		config.FieldTxOutScriptPublicKey,
	}})
	assert.False(t, m.AddressMappingEnabled())
	assert.False(t, m.ScriptMappingEnabled())
}

func TestUseTxForInputBlockTime(t *testing.T) {
	m := NewMapper(&config.Config{})
	assert.False(t, m.UseTxForInputBlockTime())

	m = NewMapper(&config.Config{ExcludeFields: []config.Field{config.FieldTxInBlockTime}})
	assert.True(t, m.UseTxForInputBlockTime())
}
