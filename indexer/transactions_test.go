package indexer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supertypo/simply-kaspa-indexer/model"
)

func ptrInt16(v int16) *int16 { return &v }
func ptrInt64(v int64) *int64 { return &v }

func TestResolveFromBatch(t *testing.T) {
	producer := model.MustParseHash(strings.Repeat("aa", 32))
	spender := model.MustParseHash(strings.Repeat("bb", 32))
	unrelated := model.MustParseHash(strings.Repeat("cc", 32))

	outputs := []model.TransactionOutput{
		{
			TransactionID:   producer,
			Index:           1,
			Amount:          ptrInt64(5000),
			ScriptPublicKey: []byte{0x20, 0x01},
		},
	}
	inputs := []model.TransactionInput{
		{
			TransactionID:         spender,
			Index:                 0,
			PreviousOutpointHash:  &producer,
			PreviousOutpointIndex: ptrInt16(1),
		},
		{
			TransactionID:         spender,
			Index:                 1,
			PreviousOutpointHash:  &unrelated,
			PreviousOutpointIndex: ptrInt16(0),
		},
	}

	resolveFromBatch(inputs, outputs)

	// The first input spends an output from the same batch and resolves.
	require.NotNil(t, inputs[0].PreviousOutpointAmount)
	assert.Equal(t, int64(5000), *inputs[0].PreviousOutpointAmount)
	assert.Equal(t, []byte{0x20, 0x01}, inputs[0].PreviousOutpointScript)

	// The second references an output outside the batch and stays empty;
	// the store-side insert may still resolve it.
	assert.Nil(t, inputs[1].PreviousOutpointAmount)
	assert.Nil(t, inputs[1].PreviousOutpointScript)
}

func TestResolveFromBatch_WrongIndexDoesNotResolve(t *testing.T) {
	producer := model.MustParseHash(strings.Repeat("aa", 32))
	spender := model.MustParseHash(strings.Repeat("bb", 32))

	outputs := []model.TransactionOutput{
		{TransactionID: producer, Index: 0, Amount: ptrInt64(1)},
	}
	inputs := []model.TransactionInput{
		{
			TransactionID:         spender,
			Index:                 0,
			PreviousOutpointHash:  &producer,
			PreviousOutpointIndex: ptrInt16(3),
		},
	}
	resolveFromBatch(inputs, outputs)
	assert.Nil(t, inputs[0].PreviousOutpointAmount)
}

func TestResolveFromBatch_NilOutpointIsIgnored(t *testing.T) {
	spender := model.MustParseHash(strings.Repeat("bb", 32))
	inputs := []model.TransactionInput{{TransactionID: spender, Index: 0}}
	resolveFromBatch(inputs, nil)
	assert.Nil(t, inputs[0].PreviousOutpointAmount)
}
