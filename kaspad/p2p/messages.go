package p2p

import (
	"github.com/pkg/errors"

	"github.com/supertypo/simply-kaspa-indexer/model"
)

// Command identifies a peer message.
type Command uint8

const (
	CmdVersion Command = iota + 1
	CmdVerack
	CmdRequestAddresses
	CmdAddresses
	CmdRequestPruningPointUtxoSet
	CmdPruningPointUtxoSetChunk
	CmdRequestNextPruningPointUtxoSetChunk
	CmdDonePruningPointUtxoSetChunks
	CmdUnexpectedPruningPoint
	CmdPing
	CmdPong
)

func (c Command) String() string {
	switch c {
	case CmdVersion:
		return "Version"
	case CmdVerack:
		return "Verack"
	case CmdRequestAddresses:
		return "RequestAddresses"
	case CmdAddresses:
		return "Addresses"
	case CmdRequestPruningPointUtxoSet:
		return "RequestPruningPointUtxoSet"
	case CmdPruningPointUtxoSetChunk:
		return "PruningPointUtxoSetChunk"
	case CmdRequestNextPruningPointUtxoSetChunk:
		return "RequestNextPruningPointUtxoSetChunk"
	case CmdDonePruningPointUtxoSetChunks:
		return "DonePruningPointUtxoSetChunks"
	case CmdUnexpectedPruningPoint:
		return "UnexpectedPruningPoint"
	case CmdPing:
		return "Ping"
	case CmdPong:
		return "Pong"
	}
	return "Unknown"
}

// VersionMessage is the peer handshake.
type VersionMessage struct {
	ProtocolVersion uint32
	Network         string
	UserAgent       string
}

func (m *VersionMessage) encode() []byte {
	w := newWriter()
	w.writeU32(m.ProtocolVersion)
	w.writeString(m.Network)
	w.writeString(m.UserAgent)
	return w.bytes()
}

func decodeVersion(payload []byte) (*VersionMessage, error) {
	r := newReader(payload)
	var m VersionMessage
	var err error
	if m.ProtocolVersion, err = r.readU32(); err != nil {
		return nil, err
	}
	if m.Network, err = r.readString(); err != nil {
		return nil, err
	}
	if m.UserAgent, err = r.readString(); err != nil {
		return nil, err
	}
	return &m, nil
}

// PingMessage and PongMessage carry an echo nonce.
type PingMessage struct {
	Nonce uint64
}

func (m *PingMessage) encode() []byte {
	w := newWriter()
	w.writeU64(m.Nonce)
	return w.bytes()
}

func decodePing(payload []byte) (*PingMessage, error) {
	r := newReader(payload)
	nonce, err := r.readU64()
	if err != nil {
		return nil, err
	}
	return &PingMessage{Nonce: nonce}, nil
}

// UtxoEntry is the node-side state of one unspent output.
type UtxoEntry struct {
	Amount          uint64
	ScriptVersion   uint16
	ScriptPublicKey []byte
	BlockDaaScore   uint64
	IsCoinbase      bool
}

// OutpointAndUtxoEntryPair is one snapshot element.
type OutpointAndUtxoEntryPair struct {
	TransactionID model.Hash
	Index         uint32
	UtxoEntry     UtxoEntry
}

// PruningPointUtxoSetChunkMessage carries a batch of snapshot elements.
type PruningPointUtxoSetChunkMessage struct {
	OutpointAndUtxoEntryPairs []OutpointAndUtxoEntryPair
}

func (m *PruningPointUtxoSetChunkMessage) encode() []byte {
	w := newWriter()
	w.writeU32(uint32(len(m.OutpointAndUtxoEntryPairs)))
	for i := range m.OutpointAndUtxoEntryPairs {
		p := &m.OutpointAndUtxoEntryPairs[i]
		w.writeHash(p.TransactionID)
		w.writeU32(p.Index)
		w.writeU64(p.UtxoEntry.Amount)
		w.writeU16(p.UtxoEntry.ScriptVersion)
		w.writeBytes(p.UtxoEntry.ScriptPublicKey)
		w.writeU64(p.UtxoEntry.BlockDaaScore)
		w.writeBool(p.UtxoEntry.IsCoinbase)
	}
	return w.bytes()
}

func decodePruningPointUtxoSetChunk(payload []byte) (*PruningPointUtxoSetChunkMessage, error) {
	r := newReader(payload)
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	if count > maxAlloc {
		return nil, errTooLargeAlloc
	}
	m := &PruningPointUtxoSetChunkMessage{
		OutpointAndUtxoEntryPairs: make([]OutpointAndUtxoEntryPair, 0, count),
	}
	for i := uint32(0); i < count; i++ {
		var p OutpointAndUtxoEntryPair
		if p.TransactionID, err = r.readHash(); err != nil {
			return nil, err
		}
		if p.Index, err = r.readU32(); err != nil {
			return nil, err
		}
		if p.UtxoEntry.Amount, err = r.readU64(); err != nil {
			return nil, err
		}
		if p.UtxoEntry.ScriptVersion, err = r.readU16(); err != nil {
			return nil, err
		}
		if p.UtxoEntry.ScriptPublicKey, err = r.readBytes(); err != nil {
			return nil, err
		}
		if p.UtxoEntry.BlockDaaScore, err = r.readU64(); err != nil {
			return nil, err
		}
		if p.UtxoEntry.IsCoinbase, err = r.readBool(); err != nil {
			return nil, err
		}
		m.OutpointAndUtxoEntryPairs = append(m.OutpointAndUtxoEntryPairs, p)
	}
	if !r.empty() {
		return nil, errors.New("p2p: trailing bytes in chunk")
	}
	return m, nil
}

// RequestPruningPointUtxoSetMessage asks the peer to stream the snapshot
// anchored at the given pruning point.
type RequestPruningPointUtxoSetMessage struct {
	PruningPointHash model.Hash
}

func (m *RequestPruningPointUtxoSetMessage) encode() []byte {
	w := newWriter()
	w.writeHash(m.PruningPointHash)
	return w.bytes()
}

// Message is one decoded peer message. Exactly one field is non-nil, except
// for payload-free commands which are represented by Command alone.
type Message struct {
	Command Command
	Version *VersionMessage
	Ping    *PingMessage
	Chunk   *PruningPointUtxoSetChunkMessage
}

func decodeMessage(command Command, payload []byte) (*Message, error) {
	msg := &Message{Command: command}
	var err error
	switch command {
	case CmdVersion:
		msg.Version, err = decodeVersion(payload)
	case CmdPing, CmdPong:
		msg.Ping, err = decodePing(payload)
	case CmdPruningPointUtxoSetChunk:
		msg.Chunk, err = decodePruningPointUtxoSetChunk(payload)
	case CmdVerack, CmdRequestAddresses, CmdAddresses, CmdRequestNextPruningPointUtxoSetChunk,
		CmdDonePruningPointUtxoSetChunks, CmdUnexpectedPruningPoint, CmdRequestPruningPointUtxoSet:
		// No payload, or payload the indexer ignores.
	default:
		// Unknown commands are passed through for the caller to skip.
	}
	if err != nil {
		return nil, errors.Wrapf(err, "p2p: decode %s", command)
	}
	return msg, nil
}
