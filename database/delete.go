package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/supertypo/simply-kaspa-indexer/model"
)

// DeleteTransactionAcceptances removes the acceptance rows of the given
// chain blocks. Used by VCP on reorg and by the block processor before VCP
// has been started.
func (c *Client) DeleteTransactionAcceptances(ctx context.Context, blockHashes []model.Hash) (int64, error) {
	if len(blockHashes) == 0 {
		return 0, nil
	}
	tag, err := c.pool.Exec(ctx,
		"DELETE FROM transactions_acceptances WHERE block_hash = ANY($1)", hashSlice(blockHashes))
	if err != nil {
		return 0, errors.Wrap(err, "delete transaction acceptances")
	}
	return tag.RowsAffected(), nil
}

// deleteLoop repeatedly executes a chunked delete until no rows remain.
func (c *Client) deleteLoop(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		tag, err := c.pool.Exec(ctx, sql, args...)
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() == 0 {
			return total, nil
		}
	}
}

// PruneBlockParent deletes parent relations of expired blocks.
func (c *Client) PruneBlockParent(ctx context.Context, blockTimeLt int64, chunk int) (int64, error) {
	sql := `DELETE FROM block_parent WHERE ctid IN (
		SELECT bp.ctid FROM block_parent bp JOIN blocks b ON bp.block_hash = b.hash
		WHERE b.timestamp < $1 LIMIT $2)`
	n, err := c.deleteLoop(ctx, sql, blockTimeLt, chunk)
	return n, errors.Wrap(err, "prune block_parent")
}

// PruneBlocksTransactions deletes block/transaction relations of expired blocks.
func (c *Client) PruneBlocksTransactions(ctx context.Context, blockTimeLt int64, chunk int) (int64, error) {
	sql := `DELETE FROM blocks_transactions WHERE ctid IN (
		SELECT bt.ctid FROM blocks_transactions bt JOIN blocks b ON bt.block_hash = b.hash
		WHERE b.timestamp < $1 LIMIT $2)`
	n, err := c.deleteLoop(ctx, sql, blockTimeLt, chunk)
	return n, errors.Wrap(err, "prune blocks_transactions")
}

// PruneTransactionsAcceptances deletes acceptance rows whose accepting block
// has expired.
func (c *Client) PruneTransactionsAcceptances(ctx context.Context, blockTimeLt int64, chunk int) (int64, error) {
	sql := `DELETE FROM transactions_acceptances WHERE ctid IN (
		SELECT ta.ctid FROM transactions_acceptances ta JOIN blocks b ON ta.block_hash = b.hash
		WHERE b.timestamp < $1 LIMIT $2)`
	n, err := c.deleteLoop(ctx, sql, blockTimeLt, chunk)
	return n, errors.Wrap(err, "prune transactions_acceptances")
}

// PruneBlocks deletes expired block rows.
func (c *Client) PruneBlocks(ctx context.Context, blockTimeLt int64, chunk int) (int64, error) {
	sql := `DELETE FROM blocks WHERE ctid IN (
		SELECT ctid FROM blocks WHERE timestamp < $1 LIMIT $2)`
	n, err := c.deleteLoop(ctx, sql, blockTimeLt, chunk)
	return n, errors.Wrap(err, "prune blocks")
}

// PruneSpentTransactionsOutputs deletes expired outputs that are either
// already spent by a known input or belong to a never-accepted transaction.
func (c *Client) PruneSpentTransactionsOutputs(ctx context.Context, blockTimeLt int64, chunk int) (int64, error) {
	sql := `DELETE FROM transactions_outputs WHERE ctid IN (
		SELECT o.ctid FROM transactions_outputs o
		JOIN transactions t ON t.transaction_id = o.transaction_id
		WHERE t.block_time < $1
		AND (
			EXISTS (
				SELECT 1 FROM transactions_inputs i
				WHERE i.previous_outpoint_hash = o.transaction_id
				  AND i.previous_outpoint_index = o.index
			)
			OR NOT EXISTS (
				SELECT 1 FROM transactions_acceptances ta
				WHERE ta.transaction_id = o.transaction_id
			)
		)
		LIMIT $2)`
	n, err := c.deleteLoop(ctx, sql, blockTimeLt, chunk)
	return n, errors.Wrap(err, "prune spent transactions_outputs")
}

// PruneTransactionsInputs deletes inputs of expired transactions.
func (c *Client) PruneTransactionsInputs(ctx context.Context, blockTimeLt int64, chunk int) (int64, error) {
	sql := `DELETE FROM transactions_inputs WHERE ctid IN (
		SELECT i.ctid FROM transactions_inputs i
		JOIN transactions t ON t.transaction_id = i.transaction_id
		WHERE t.block_time < $1 LIMIT $2)`
	n, err := c.deleteLoop(ctx, sql, blockTimeLt, chunk)
	return n, errors.Wrap(err, "prune transactions_inputs")
}

// PruneAddressesTransactions deletes expired address mappings.
func (c *Client) PruneAddressesTransactions(ctx context.Context, blockTimeLt int64, chunk int) (int64, error) {
	sql := `DELETE FROM addresses_transactions WHERE ctid IN (
		SELECT ctid FROM addresses_transactions WHERE block_time < $1 LIMIT $2)`
	n, err := c.deleteLoop(ctx, sql, blockTimeLt, chunk)
	return n, errors.Wrap(err, "prune addresses_transactions")
}

// PruneScriptsTransactions deletes expired script mappings.
func (c *Client) PruneScriptsTransactions(ctx context.Context, blockTimeLt int64, chunk int) (int64, error) {
	sql := `DELETE FROM scripts_transactions WHERE ctid IN (
		SELECT ctid FROM scripts_transactions WHERE block_time < $1 LIMIT $2)`
	n, err := c.deleteLoop(ctx, sql, blockTimeLt, chunk)
	return n, errors.Wrap(err, "prune scripts_transactions")
}

// PruneTransactions removes expired transactions together with their inputs,
// outputs and, for fully spent transactions, their acceptance rows. The
// whole flow runs inside one transaction so a crash leaves no orphans:
//
//  1. select and delete expired transactions
//  2. partition the ids into accepted and rejected by the acceptance table
//  3. drop inputs and outputs of rejected transactions outright
//  4. drop inputs of accepted transactions, capturing the outpoints they
//     spent
//  5. drop the spent outputs
//  6. delete acceptance rows of transactions that no longer have outputs
func (c *Client) PruneTransactions(ctx context.Context, blockTimeLt int64, chunk int) (int64, error) {
	tx, err := c.begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "prune transactions: begin")
	}
	defer tx.Rollback(ctx)

	// The block_time index is the only sane access path here; the planner
	// tends to flip to seqscans once the arrays grow.
	if _, err = tx.Exec(ctx, "SET LOCAL enable_seqscan = off"); err != nil {
		return 0, errors.Wrap(err, "prune transactions: disable seqscan")
	}

	expired, err := selectHashes(ctx, tx, "SELECT transaction_id FROM transactions WHERE block_time < $1", blockTimeLt)
	if err != nil {
		return 0, errors.Wrap(err, "prune transactions: select expired")
	}
	if len(expired) == 0 {
		return 0, tx.Commit(ctx)
	}

	var total int64
	for _, ids := range chunkHashes(expired, chunk) {
		tag, err := tx.Exec(ctx, "DELETE FROM transactions WHERE transaction_id = ANY($1)", hashSlice(ids))
		if err != nil {
			return 0, errors.Wrap(err, "prune transactions: delete transactions")
		}
		total += tag.RowsAffected()
	}

	accepted, err := selectHashes(ctx, tx,
		"SELECT transaction_id FROM transactions_acceptances WHERE transaction_id = ANY($1)", hashSlice(expired))
	if err != nil {
		return 0, errors.Wrap(err, "prune transactions: select accepted")
	}
	acceptedSet := make(map[model.Hash]bool, len(accepted))
	for _, id := range accepted {
		acceptedSet[id] = true
	}
	var rejected []model.Hash
	for _, id := range expired {
		if !acceptedSet[id] {
			rejected = append(rejected, id)
		}
	}

	for _, ids := range chunkHashes(rejected, chunk) {
		if _, err = tx.Exec(ctx, "DELETE FROM transactions_inputs WHERE transaction_id = ANY($1)", hashSlice(ids)); err != nil {
			return 0, errors.Wrap(err, "prune transactions: delete rejected inputs")
		}
		if _, err = tx.Exec(ctx, "DELETE FROM transactions_outputs WHERE transaction_id = ANY($1)", hashSlice(ids)); err != nil {
			return 0, errors.Wrap(err, "prune transactions: delete rejected outputs")
		}
	}

	var spentHashes [][]byte
	var spentIndexes []int16
	for _, ids := range chunkHashes(accepted, chunk) {
		rows, err := tx.Query(ctx, `DELETE FROM transactions_inputs WHERE transaction_id = ANY($1)
			RETURNING previous_outpoint_hash, previous_outpoint_index`, hashSlice(ids))
		if err != nil {
			return 0, errors.Wrap(err, "prune transactions: delete accepted inputs")
		}
		for rows.Next() {
			var h []byte
			var idx *int16
			if err = rows.Scan(&h, &idx); err != nil {
				rows.Close()
				return 0, errors.Wrap(err, "prune transactions: scan outpoint")
			}
			if h != nil && idx != nil {
				spentHashes = append(spentHashes, h)
				spentIndexes = append(spentIndexes, *idx)
			}
		}
		rows.Close()
		if err = rows.Err(); err != nil {
			return 0, errors.Wrap(err, "prune transactions: read outpoints")
		}
	}

	for start := 0; start < len(spentHashes); start += chunk {
		end := min(start+chunk, len(spentHashes))
		_, err = tx.Exec(ctx, `DELETE FROM transactions_outputs o
			USING (SELECT unnest($1::bytea[]) AS h, unnest($2::smallint[]) AS i) s
			WHERE o.transaction_id = s.h AND o.index = s.i`,
			spentHashes[start:end], spentIndexes[start:end])
		if err != nil {
			return 0, errors.Wrap(err, "prune transactions: delete spent outputs")
		}
	}

	// Fully spent = referenced by a deleted input and left without outputs.
	seen := make(map[model.Hash]bool, len(spentHashes))
	var possiblySpent [][]byte
	for _, h := range spentHashes {
		id, err := model.HashFromBytes(h)
		if err != nil {
			return 0, errors.Wrap(err, "prune transactions: outpoint hash")
		}
		if !seen[id] {
			seen[id] = true
			possiblySpent = append(possiblySpent, h)
		}
	}
	for start := 0; start < len(possiblySpent); start += chunk {
		end := min(start+chunk, len(possiblySpent))
		_, err = tx.Exec(ctx, `DELETE FROM transactions_acceptances ta
			WHERE ta.transaction_id = ANY($1)
			AND NOT EXISTS (SELECT 1 FROM transactions_outputs o WHERE o.transaction_id = ta.transaction_id)`,
			possiblySpent[start:end])
		if err != nil {
			return 0, errors.Wrap(err, "prune transactions: delete spent acceptances")
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "prune transactions: commit")
	}
	return total, nil
}

func selectHashes(ctx context.Context, tx pgx.Tx, sql string, args ...interface{}) ([]model.Hash, error) {
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Hash
	for rows.Next() {
		var h model.Hash
		if err = rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func chunkHashes(hashes []model.Hash, size int) [][]model.Hash {
	if size < 1 {
		size = 1
	}
	var out [][]model.Hash
	for start := 0; start < len(hashes); start += size {
		out = append(out, hashes[start:min(start+size, len(hashes))])
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
