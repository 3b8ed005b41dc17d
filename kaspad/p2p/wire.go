// Package p2p implements the minimal binary peer protocol the indexer needs
// to import a pruning-point UTXO snapshot from a kaspad peer: a framed
// message stream with fixed-width little-endian primitives and
// length-prefixed payloads.
package p2p

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/supertypo/simply-kaspa-indexer/model"
)

// maxPayloadSize bounds a single frame; chunks are far smaller in practice.
const maxPayloadSize = 8 << 20

// maxAlloc bounds any single length-prefixed field inside a payload.
const maxAlloc = 1 << 20

var (
	errTruncated     = errors.New("p2p: truncated payload")
	errTooLargeAlloc = errors.New("p2p: field length exceeds limit")
)

// writer accumulates a payload by appending to a slice.
type writer struct {
	buf []byte
}

func newWriter() *writer {
	return &writer{buf: make([]byte, 0, 256)}
}

func (w *writer) bytes() []byte {
	return w.buf
}

func (w *writer) writeU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) writeU16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *writer) writeU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) writeU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) writeBool(v bool) {
	if v {
		w.writeU8(1)
	} else {
		w.writeU8(0)
	}
}

func (w *writer) writeHash(h model.Hash) {
	w.buf = append(w.buf, h[:]...)
}

func (w *writer) writeBytes(b []byte) {
	w.writeU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) writeString(s string) {
	w.writeBytes([]byte(s))
}

// reader consumes a payload by advancing a cursor. All reads are
// bounds-checked; peer data is untrusted.
type reader struct {
	buf    []byte
	offset int
}

func newReader(b []byte) *reader {
	return &reader{buf: b}
}

func (r *reader) empty() bool {
	return r.offset == len(r.buf)
}

func (r *reader) read(n int) ([]byte, error) {
	if n < 0 || r.offset+n > len(r.buf) {
		return nil, errTruncated
	}
	res := r.buf[r.offset : r.offset+n]
	r.offset += n
	return res, nil
}

func (r *reader) readU8() (uint8, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) readU16() (uint16, error) {
	b, err := r.read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) readU32() (uint32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) readU64() (uint64, error) {
	b, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) readBool() (bool, error) {
	v, err := r.readU8()
	return v != 0, err
}

func (r *reader) readHash() (model.Hash, error) {
	b, err := r.read(model.HashSize)
	if err != nil {
		return model.Hash{}, err
	}
	var h model.Hash
	copy(h[:], b)
	return h, nil
}

func (r *reader) readBytes() ([]byte, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	if n > maxAlloc {
		return nil, errTooLargeAlloc
	}
	b, err := r.read(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (r *reader) readString() (string, error) {
	b, err := r.readBytes()
	return string(b), err
}

// writeFrame writes one framed message: u32 payload length, u8 command,
// payload.
func writeFrame(w io.Writer, command Command, payload []byte) error {
	header := make([]byte, 5)
	binary.LittleEndian.PutUint32(header, uint32(len(payload)))
	header[4] = byte(command)
	if _, err := w.Write(header); err != nil {
		return errors.Wrap(err, "p2p: write frame header")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "p2p: write frame payload")
	}
	return nil
}

// readFrame reads one framed message.
func readFrame(r io.Reader) (Command, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, errors.Wrap(err, "p2p: read frame header")
	}
	size := binary.LittleEndian.Uint32(header)
	if size > maxPayloadSize {
		return 0, nil, errors.Errorf("p2p: oversized frame (%d bytes)", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, errors.Wrap(err, "p2p: read frame payload")
	}
	return Command(header[4]), payload, nil
}
