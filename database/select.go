package database

import (
	"context"

	"github.com/pkg/errors"

	"github.com/supertypo/simply-kaspa-indexer/model"
)

// SelectVar reads one key from the vars table.
func (c *Client) SelectVar(ctx context.Context, key string) (string, error) {
	var value string
	if err := c.pool.QueryRow(ctx, "SELECT value FROM vars WHERE key = $1", key).Scan(&value); err != nil {
		return "", errors.Wrapf(err, "select var %s", key)
	}
	return value, nil
}

// UpsertVar writes one key of the vars table.
func (c *Client) UpsertVar(ctx context.Context, key, value string) error {
	_, err := c.pool.Exec(ctx,
		"INSERT INTO vars (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value",
		key, value)
	return errors.Wrapf(err, "upsert var %s", key)
}

// SelectSubnetworks loads the full subnetwork registry.
func (c *Client) SelectSubnetworks(ctx context.Context) ([]model.Subnetwork, error) {
	rows, err := c.pool.Query(ctx, "SELECT id, subnetwork_id FROM subnetworks")
	if err != nil {
		return nil, errors.Wrap(err, "select subnetworks")
	}
	defer rows.Close()
	var out []model.Subnetwork
	for rows.Next() {
		var s model.Subnetwork
		if err = rows.Scan(&s.ID, &s.SubnetworkID); err != nil {
			return nil, errors.Wrap(err, "scan subnetwork")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SelectBlock reads one block row by hash.
func (c *Client) SelectBlock(ctx context.Context, hash model.Hash) (*model.Block, error) {
	row := c.pool.QueryRow(ctx, `SELECT hash, accepted_id_merkle_root, merge_set_blues_hashes,
		merge_set_reds_hashes, selected_parent_hash, bits, blue_score, blue_work, daa_score,
		hash_merkle_root, nonce, pruning_point, timestamp, utxo_commitment, version
		FROM blocks WHERE hash = $1`, hash.Bytes())
	var b model.Block
	var blues, reds [][]byte
	err := row.Scan(&b.Hash, &b.AcceptedIDMerkleRoot, &blues, &reds, &b.SelectedParentHash,
		&b.Bits, &b.BlueScore, &b.BlueWork, &b.DaaScore, &b.HashMerkleRoot, &b.Nonce,
		&b.PruningPoint, &b.Timestamp, &b.UtxoCommitment, &b.Version)
	if err != nil {
		return nil, errors.Wrap(err, "select block")
	}
	if b.MergeSetBluesHashes, err = bytesToHashes(blues); err != nil {
		return nil, err
	}
	if b.MergeSetRedsHashes, err = bytesToHashes(reds); err != nil {
		return nil, err
	}
	return &b, nil
}

// SelectBlockTimestamp reads the timestamp column of one block.
func (c *Client) SelectBlockTimestamp(ctx context.Context, hash model.Hash) (int64, error) {
	var ts *int64
	if err := c.pool.QueryRow(ctx, "SELECT timestamp FROM blocks WHERE hash = $1", hash.Bytes()).Scan(&ts); err != nil {
		return 0, errors.Wrap(err, "select block timestamp")
	}
	if ts == nil {
		return 0, nil
	}
	return *ts, nil
}

// SelectTxCount counts the transactions related to a block.
func (c *Client) SelectTxCount(ctx context.Context, blockHash model.Hash) (int64, error) {
	var count int64
	err := c.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM blocks_transactions WHERE block_hash = $1", blockHash.Bytes()).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "select tx count")
	}
	return count, nil
}

// SelectIsChainBlock reports whether a block accepted any transaction, i.e.
// whether it is on the virtual chain.
func (c *Client) SelectIsChainBlock(ctx context.Context, blockHash model.Hash) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM transactions_acceptances WHERE block_hash = $1)", blockHash.Bytes()).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "select is chain block")
	}
	return exists, nil
}

func bytesToHashes(raw [][]byte) ([]model.Hash, error) {
	if raw == nil {
		return nil, nil
	}
	out := make([]model.Hash, len(raw))
	for i, b := range raw {
		h, err := model.HashFromBytes(b)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}
