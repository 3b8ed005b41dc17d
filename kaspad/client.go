package kaspad

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const dialTimeout = 15 * time.Second

// Client talks JSON-RPC over websocket to one kaspad node. It dials lazily
// and rebuilds the connection after an error, so callers just retry their
// call. Safe for concurrent use.
type Client struct {
	url string

	mu   sync.Mutex
	conn *rpc.Client
}

// NewClient creates a client for the given ws:// url. No connection is made
// until the first call.
func NewClient(url string) *Client {
	return &Client{url: url}
}

// URL returns the configured endpoint.
func (c *Client) URL() string {
	return c.url
}

// Close tears down the current connection, if any.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) connect(ctx context.Context) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	var conn *rpc.Client
	dial := func() error {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		var err error
		conn, err = rpc.DialContext(dialCtx, c.url)
		if err != nil {
			log.Debugf("Dialing kaspad %s failed: %v", c.url, err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(dial, policy); err != nil {
		return nil, errors.Wrapf(err, "dial kaspad %s", c.url)
	}
	c.conn = conn
	return conn, nil
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	if err = conn.CallContext(ctx, result, method, args...); err != nil {
		// Drop the connection; the next call redials.
		c.mu.Lock()
		if c.conn == conn {
			conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
		return errors.Wrap(err, method)
	}
	return nil
}

// GetBlockDagInfo returns the node's DAG summary.
func (c *Client) GetBlockDagInfo(ctx context.Context) (*BlockDagInfo, error) {
	var res BlockDagInfo
	if err := c.call(ctx, &res, "getBlockDagInfo"); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetServerInfo returns the node's sync state and identity.
func (c *Client) GetServerInfo(ctx context.Context) (*ServerInfo, error) {
	var res ServerInfo
	if err := c.call(ctx, &res, "getServerInfo"); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetBlock fetches one block, optionally with its transactions.
func (c *Client) GetBlock(ctx context.Context, hash string, includeTransactions bool) (*Block, error) {
	var res struct {
		Block Block `json:"block"`
	}
	if err := c.call(ctx, &res, "getBlock", hash, includeTransactions); err != nil {
		return nil, err
	}
	return &res.Block, nil
}

// GetBlocks fetches blocks in DAG order starting at lowHash (inclusive).
func (c *Client) GetBlocks(ctx context.Context, lowHash string, includeBlocks, includeTransactions bool) (*BlocksResponse, error) {
	var res BlocksResponse
	if err := c.call(ctx, &res, "getBlocks", lowHash, includeBlocks, includeTransactions); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetVirtualChainFromBlock fetches the virtual-chain delta since startHash.
func (c *Client) GetVirtualChainFromBlock(ctx context.Context, startHash string, includeAcceptedTransactionIDs bool) (*VirtualChainResponse, error) {
	var res VirtualChainResponse
	if err := c.call(ctx, &res, "getVirtualChainFromBlock", startHash, includeAcceptedTransactionIDs); err != nil {
		return nil, err
	}
	return &res, nil
}
