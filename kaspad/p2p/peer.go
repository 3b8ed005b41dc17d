package p2p

import (
	"net"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/supertypo/simply-kaspa-indexer/model"
)

const (
	protocolVersion = 5
	connectTimeout  = 10 * time.Second
)

// Peer is one outbound connection to a kaspad peer, used exclusively for the
// pruning-point UTXO snapshot stream.
type Peer struct {
	conn    net.Conn
	network string
}

// Connect dials the peer and sends the local version message. It does not
// wait for the peer's reply; that arrives later through Receive.
func Connect(address, network, userAgent string) (*Peer, error) {
	conn, err := net.DialTimeout("tcp", address, connectTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "p2p: connect %s", address)
	}
	p := &Peer{conn: conn, network: network}
	version := &VersionMessage{ProtocolVersion: protocolVersion, Network: network, UserAgent: userAgent}
	if err = writeFrame(conn, CmdVersion, version.encode()); err != nil {
		conn.Close()
		return nil, err
	}
	log.Debugf("P2P connected to %s", address)
	return p, nil
}

// Close terminates the connection.
func (p *Peer) Close() {
	p.conn.Close()
}

// Receive reads the next message, waiting at most timeout.
func (p *Peer) Receive(timeout time.Duration) (*Message, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, errors.Wrap(err, "p2p: set read deadline")
	}
	command, payload, err := readFrame(p.conn)
	if err != nil {
		return nil, err
	}
	return decodeMessage(command, payload)
}

// SendAddresses answers a RequestAddresses with an empty list; the indexer
// has no peers to share.
func (p *Peer) SendAddresses() error {
	return writeFrame(p.conn, CmdAddresses, nil)
}

// SendRequestPruningPointUtxoSet starts the snapshot stream.
func (p *Peer) SendRequestPruningPointUtxoSet(pruningPointHash model.Hash) error {
	msg := &RequestPruningPointUtxoSetMessage{PruningPointHash: pruningPointHash}
	return writeFrame(p.conn, CmdRequestPruningPointUtxoSet, msg.encode())
}

// SendRequestNextChunk asks for the next snapshot window.
func (p *Peer) SendRequestNextChunk() error {
	return writeFrame(p.conn, CmdRequestNextPruningPointUtxoSetChunk, nil)
}

// SendPong answers a ping with the echoed nonce.
func (p *Peer) SendPong(nonce uint64) error {
	msg := &PingMessage{Nonce: nonce}
	return writeFrame(p.conn, CmdPong, msg.encode())
}
