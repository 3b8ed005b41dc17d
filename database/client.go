// Package database is the PostgreSQL persistence layer: a pooled client,
// schema management, and the batched insert/delete statements used by the
// pipeline stages. All bulk inserts are multi-row VALUES lists with
// ON CONFLICT DO NOTHING, so replays are idempotent.
package database

import (
	"context"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/supertypo/simply-kaspa-indexer/model"
)

const (
	acquireTimeout    = 10 * time.Second
	slowStatementWarn = 60 * time.Second
)

var urlPasswordRe = regexp.MustCompile(`(postgres://[^:/@]+:)[^@]+(@)`)

// Client is a shared handle to the store. It is safe for concurrent use and
// cheap to copy; all stages hold the same underlying pool.
type Client struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL with the given pool size.
func New(ctx context.Context, url string, poolSize int32) (*Client, error) {
	cleaned := urlPasswordRe.ReplaceAllString(url, "$1$2")
	log.Debugf("Connecting to PostgreSQL %s", cleaned)
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}
	cfg.MaxConns = poolSize
	cfg.ConnConfig.ConnectTimeout = acquireTimeout
	cfg.ConnConfig.Tracer = &slowQueryTracer{threshold: slowStatementWarn}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect database")
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	log.Infof("Connected to PostgreSQL %s", cleaned)
	return &Client{pool: pool}, nil
}

// Close releases the pool.
func (c *Client) Close() {
	c.pool.Close()
}

func (c *Client) begin(ctx context.Context) (pgx.Tx, error) {
	return c.pool.Begin(ctx)
}

// slowQueryTracer warns about statements exceeding the threshold.
type slowQueryTracer struct {
	threshold time.Duration
}

type traceStartKey struct{}

func (t *slowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceStartKey{}, time.Now())
}

func (t *slowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(traceStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > t.threshold {
		log.Warnf("Slow statement (%s): %v", elapsed.Round(time.Millisecond), data.Err)
	}
}

// hashSlice converts hashes into the [][]byte shape pgx binds as bytea[].
func hashSlice(hashes []model.Hash) [][]byte {
	out := make([][]byte, len(hashes))
	for i := range hashes {
		out[i] = hashes[i].Bytes()
	}
	return out
}
