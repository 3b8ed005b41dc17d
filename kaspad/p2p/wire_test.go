package p2p

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supertypo/simply-kaspa-indexer/model"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{1, 2, 3, 4}
	require.NoError(t, writeFrame(&buf, CmdPing, payload))

	command, got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdPing, command)
	assert.Equal(t, payload, got)
}

func TestFrame_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, CmdRequestNextPruningPointUtxoSetChunk, nil))

	command, payload, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdRequestNextPruningPointUtxoSetChunk, command)
	assert.Empty(t, payload)
}

func TestFrame_TruncatedHeader(t *testing.T) {
	_, _, err := readFrame(bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}

func TestVersion_RoundTrip(t *testing.T) {
	msg := &VersionMessage{ProtocolVersion: 5, Network: "mainnet", UserAgent: "simply-kaspa-indexer"}
	got, err := decodeVersion(msg.encode())
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestPing_RoundTrip(t *testing.T) {
	msg := &PingMessage{Nonce: 0xdeadbeefcafe}
	got, err := decodePing(msg.encode())
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestPruningPointUtxoSetChunk_RoundTrip(t *testing.T) {
	txID := model.MustParseHash(strings.Repeat("ab", 32))
	msg := &PruningPointUtxoSetChunkMessage{
		OutpointAndUtxoEntryPairs: []OutpointAndUtxoEntryPair{
			{
				TransactionID: txID,
				Index:         7,
				UtxoEntry: UtxoEntry{
					Amount:          5_000_000_000,
					ScriptVersion:   0,
					ScriptPublicKey: []byte{0x20, 0xaa, 0xbb, 0xac},
					BlockDaaScore:   123456,
					IsCoinbase:      true,
				},
			},
			{
				TransactionID: txID,
				Index:         8,
				UtxoEntry: UtxoEntry{
					Amount:          1,
					ScriptPublicKey: []byte{},
				},
			},
		},
	}
	got, err := decodePruningPointUtxoSetChunk(msg.encode())
	require.NoError(t, err)
	require.Len(t, got.OutpointAndUtxoEntryPairs, 2)
	assert.Equal(t, txID, got.OutpointAndUtxoEntryPairs[0].TransactionID)
	assert.Equal(t, uint32(7), got.OutpointAndUtxoEntryPairs[0].Index)
	assert.Equal(t, uint64(5_000_000_000), got.OutpointAndUtxoEntryPairs[0].UtxoEntry.Amount)
	assert.Equal(t, []byte{0x20, 0xaa, 0xbb, 0xac}, got.OutpointAndUtxoEntryPairs[0].UtxoEntry.ScriptPublicKey)
	assert.True(t, got.OutpointAndUtxoEntryPairs[0].UtxoEntry.IsCoinbase)
	assert.False(t, got.OutpointAndUtxoEntryPairs[1].UtxoEntry.IsCoinbase)
}

func TestPruningPointUtxoSetChunk_RejectsTrailingBytes(t *testing.T) {
	msg := &PruningPointUtxoSetChunkMessage{}
	payload := append(msg.encode(), 0xff)
	_, err := decodePruningPointUtxoSetChunk(payload)
	assert.Error(t, err)
}

func TestReader_Truncated(t *testing.T) {
	r := newReader([]byte{1})
	_, err := r.readU32()
	assert.Error(t, err)
}

func TestReader_FieldLengthLimit(t *testing.T) {
	w := newWriter()
	w.writeU32(maxAlloc + 1)
	r := newReader(w.bytes())
	_, err := r.readBytes()
	assert.ErrorIs(t, err, errTooLargeAlloc)
}
