package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/supertypo/simply-kaspa-indexer/model"
)

// optHash converts an optional hash to a bindable value (nil persists NULL).
func optHash(h *model.Hash) interface{} {
	if h == nil {
		return nil
	}
	return h.Bytes()
}

// InsertSubnetwork registers a subnetwork id and returns its integer key.
// On conflict the existing key is returned.
func (c *Client) InsertSubnetwork(ctx context.Context, subnetworkID string) (int32, error) {
	var id int32
	err := c.pool.QueryRow(ctx,
		"INSERT INTO subnetworks (subnetwork_id) VALUES ($1) ON CONFLICT DO NOTHING RETURNING id",
		subnetworkID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = c.pool.QueryRow(ctx, "SELECT id FROM subnetworks WHERE subnetwork_id = $1", subnetworkID).Scan(&id)
	}
	if err != nil {
		return 0, errors.Wrap(err, "insert subnetwork")
	}
	return id, nil
}

// InsertBlocks writes a chunk of block rows inside one transaction.
func (c *Client) InsertBlocks(ctx context.Context, blocks []model.Block) (int64, error) {
	if len(blocks) == 0 {
		return 0, nil
	}
	const cols = 15
	sql := `INSERT INTO blocks (hash, accepted_id_merkle_root, merge_set_blues_hashes, merge_set_reds_hashes,
		selected_parent_hash, bits, blue_score, blue_work, daa_score, hash_merkle_root, nonce, pruning_point,
		timestamp, utxo_commitment, version) VALUES ` + generatePlaceholders(len(blocks), cols) + ` ON CONFLICT DO NOTHING`
	args := make([]interface{}, 0, len(blocks)*cols)
	for i := range blocks {
		b := &blocks[i]
		var blues, reds [][]byte
		if len(b.MergeSetBluesHashes) > 0 {
			blues = hashSlice(b.MergeSetBluesHashes)
		}
		if len(b.MergeSetRedsHashes) > 0 {
			reds = hashSlice(b.MergeSetRedsHashes)
		}
		args = append(args, b.Hash.Bytes(), optHash(b.AcceptedIDMerkleRoot), blues, reds,
			optHash(b.SelectedParentHash), b.Bits, b.BlueScore, b.BlueWork, b.DaaScore,
			optHash(b.HashMerkleRoot), b.Nonce, optHash(b.PruningPoint),
			b.Timestamp, optHash(b.UtxoCommitment), b.Version)
	}
	tx, err := c.begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "begin insert blocks")
	}
	defer tx.Rollback(ctx)
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrap(err, "insert blocks")
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit blocks")
	}
	return tag.RowsAffected(), nil
}

// InsertBlockParents writes a chunk of block/parent relations.
func (c *Client) InsertBlockParents(ctx context.Context, parents []model.BlockParent) (int64, error) {
	if len(parents) == 0 {
		return 0, nil
	}
	sql := "INSERT INTO block_parent (block_hash, parent_hash) VALUES " +
		generatePlaceholders(len(parents), 2) + " ON CONFLICT DO NOTHING"
	args := make([]interface{}, 0, len(parents)*2)
	for i := range parents {
		args = append(args, parents[i].BlockHash.Bytes(), parents[i].ParentHash.Bytes())
	}
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrap(err, "insert block parents")
	}
	return tag.RowsAffected(), nil
}

// InsertTransactions writes a chunk of transaction rows.
func (c *Client) InsertTransactions(ctx context.Context, txs []model.Transaction) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	const cols = 6
	sql := `INSERT INTO transactions (transaction_id, subnetwork_id, hash, mass, payload, block_time) VALUES ` +
		generatePlaceholders(len(txs), cols) + ` ON CONFLICT DO NOTHING`
	args := make([]interface{}, 0, len(txs)*cols)
	for i := range txs {
		t := &txs[i]
		args = append(args, t.TransactionID.Bytes(), t.SubnetworkID, optHash(t.Hash), t.Mass, t.Payload, t.BlockTime)
	}
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrap(err, "insert transactions")
	}
	return tag.RowsAffected(), nil
}

// InsertTransactionInputs writes a chunk of input rows. With
// resolvePreviousOutpoints set, previous_outpoint_script/amount are filled
// from already-persisted outputs when the batch itself did not resolve them.
func (c *Client) InsertTransactionInputs(ctx context.Context, resolvePreviousOutpoints bool, inputs []model.TransactionInput) (int64, error) {
	if len(inputs) == 0 {
		return 0, nil
	}
	const cols = 9
	var sql string
	if resolvePreviousOutpoints {
		sql = `INSERT INTO transactions_inputs (transaction_id, index, previous_outpoint_hash, previous_outpoint_index,
			signature_script, sig_op_count, block_time, previous_outpoint_script, previous_outpoint_amount)
			SELECT v.transaction_id, v.index, v.previous_outpoint_hash, v.previous_outpoint_index,
				v.signature_script, v.sig_op_count, v.block_time,
				COALESCE(v.previous_outpoint_script, o.script_public_key),
				COALESCE(v.previous_outpoint_amount, o.amount)
			FROM (VALUES ` + generatePlaceholders(len(inputs), cols) + `) AS v(transaction_id, index,
				previous_outpoint_hash, previous_outpoint_index, signature_script, sig_op_count, block_time,
				previous_outpoint_script, previous_outpoint_amount)
			LEFT JOIN transactions_outputs o
				ON o.transaction_id = v.previous_outpoint_hash AND o.index = v.previous_outpoint_index
			ON CONFLICT DO NOTHING`
	} else {
		sql = `INSERT INTO transactions_inputs (transaction_id, index, previous_outpoint_hash, previous_outpoint_index,
			signature_script, sig_op_count, block_time, previous_outpoint_script, previous_outpoint_amount)
			VALUES ` + generatePlaceholders(len(inputs), cols) + ` ON CONFLICT DO NOTHING`
	}
	args := make([]interface{}, 0, len(inputs)*cols)
	for i := range inputs {
		in := &inputs[i]
		args = append(args, in.TransactionID.Bytes(), in.Index, optHash(in.PreviousOutpointHash),
			in.PreviousOutpointIndex, in.SignatureScript, in.SigOpCount, in.BlockTime,
			in.PreviousOutpointScript, in.PreviousOutpointAmount)
	}
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrap(err, "insert transaction inputs")
	}
	return tag.RowsAffected(), nil
}

// InsertTransactionOutputs writes a chunk of output rows.
func (c *Client) InsertTransactionOutputs(ctx context.Context, outputs []model.TransactionOutput) (int64, error) {
	if len(outputs) == 0 {
		return 0, nil
	}
	const cols = 6
	sql := `INSERT INTO transactions_outputs (transaction_id, index, amount, script_public_key,
		script_public_key_address, block_time) VALUES ` + generatePlaceholders(len(outputs), cols) +
		` ON CONFLICT DO NOTHING`
	args := make([]interface{}, 0, len(outputs)*cols)
	for i := range outputs {
		o := &outputs[i]
		args = append(args, o.TransactionID.Bytes(), o.Index, o.Amount, o.ScriptPublicKey,
			o.ScriptPublicKeyAddress, o.BlockTime)
	}
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrap(err, "insert transaction outputs")
	}
	return tag.RowsAffected(), nil
}

// InsertAddressTransactions writes the output-side address mapping.
func (c *Client) InsertAddressTransactions(ctx context.Context, rows []model.AddressTransaction) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	sql := "INSERT INTO addresses_transactions (address, transaction_id, block_time) VALUES " +
		generatePlaceholders(len(rows), 3) + " ON CONFLICT DO NOTHING"
	args := make([]interface{}, 0, len(rows)*3)
	for i := range rows {
		args = append(args, rows[i].Address, rows[i].TransactionID.Bytes(), rows[i].BlockTime)
	}
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrap(err, "insert address transactions")
	}
	return tag.RowsAffected(), nil
}

// InsertScriptTransactions writes the output-side script mapping.
func (c *Client) InsertScriptTransactions(ctx context.Context, rows []model.ScriptTransaction) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	sql := "INSERT INTO scripts_transactions (script_public_key, transaction_id, block_time) VALUES " +
		generatePlaceholders(len(rows), 3) + " ON CONFLICT DO NOTHING"
	args := make([]interface{}, 0, len(rows)*3)
	for i := range rows {
		args = append(args, rows[i].ScriptPublicKey, rows[i].TransactionID.Bytes(), rows[i].BlockTime)
	}
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrap(err, "insert script transactions")
	}
	return tag.RowsAffected(), nil
}

// InsertAddressTransactionsFromInputs derives the input-side address mapping
// by joining inputs to the outputs they spend. It requires the batch's
// inputs and outputs to be committed first. With useTxForTime the block_time
// is taken from the transactions row instead of the input row.
func (c *Client) InsertAddressTransactionsFromInputs(ctx context.Context, useTxForTime bool, transactionIDs []model.Hash) (int64, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}
	var sql string
	if useTxForTime {
		sql = `INSERT INTO addresses_transactions (address, transaction_id, block_time)
			SELECT o.script_public_key_address, i.transaction_id, t.block_time
			FROM transactions_inputs i
			JOIN transactions t ON t.transaction_id = i.transaction_id
			JOIN transactions_outputs o ON o.transaction_id = i.previous_outpoint_hash AND o.index = i.previous_outpoint_index
			WHERE i.transaction_id = ANY($1) AND o.script_public_key_address IS NOT NULL
			ON CONFLICT DO NOTHING`
	} else {
		sql = `INSERT INTO addresses_transactions (address, transaction_id, block_time)
			SELECT o.script_public_key_address, i.transaction_id, i.block_time
			FROM transactions_inputs i
			JOIN transactions_outputs o ON o.transaction_id = i.previous_outpoint_hash AND o.index = i.previous_outpoint_index
			WHERE i.transaction_id = ANY($1) AND o.script_public_key_address IS NOT NULL
			ON CONFLICT DO NOTHING`
	}
	tag, err := c.pool.Exec(ctx, sql, hashSlice(transactionIDs))
	if err != nil {
		return 0, errors.Wrap(err, "insert address transactions from inputs")
	}
	return tag.RowsAffected(), nil
}

// InsertScriptTransactionsFromInputs is the script-keyed variant of
// InsertAddressTransactionsFromInputs.
func (c *Client) InsertScriptTransactionsFromInputs(ctx context.Context, useTxForTime bool, transactionIDs []model.Hash) (int64, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}
	var sql string
	if useTxForTime {
		sql = `INSERT INTO scripts_transactions (script_public_key, transaction_id, block_time)
			SELECT o.script_public_key, i.transaction_id, t.block_time
			FROM transactions_inputs i
			JOIN transactions t ON t.transaction_id = i.transaction_id
			JOIN transactions_outputs o ON o.transaction_id = i.previous_outpoint_hash AND o.index = i.previous_outpoint_index
			WHERE i.transaction_id = ANY($1) AND o.script_public_key IS NOT NULL
			ON CONFLICT DO NOTHING`
	} else {
		sql = `INSERT INTO scripts_transactions (script_public_key, transaction_id, block_time)
			SELECT o.script_public_key, i.transaction_id, i.block_time
			FROM transactions_inputs i
			JOIN transactions_outputs o ON o.transaction_id = i.previous_outpoint_hash AND o.index = i.previous_outpoint_index
			WHERE i.transaction_id = ANY($1) AND o.script_public_key IS NOT NULL
			ON CONFLICT DO NOTHING`
	}
	tag, err := c.pool.Exec(ctx, sql, hashSlice(transactionIDs))
	if err != nil {
		return 0, errors.Wrap(err, "insert script transactions from inputs")
	}
	return tag.RowsAffected(), nil
}

// InsertBlockTransactions writes a chunk of block/transaction relations.
func (c *Client) InsertBlockTransactions(ctx context.Context, rows []model.BlockTransaction) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	sql := "INSERT INTO blocks_transactions (block_hash, transaction_id) VALUES " +
		generatePlaceholders(len(rows), 2) + " ON CONFLICT DO NOTHING"
	args := make([]interface{}, 0, len(rows)*2)
	for i := range rows {
		args = append(args, rows[i].BlockHash.Bytes(), rows[i].TransactionID.Bytes())
	}
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrap(err, "insert block transactions")
	}
	return tag.RowsAffected(), nil
}

// InsertChainBlocks marks chain membership when transaction acceptance is
// disabled: acceptance rows with a block hash but no transaction id.
func (c *Client) InsertChainBlocks(ctx context.Context, blockHashes []model.Hash) (int64, error) {
	if len(blockHashes) == 0 {
		return 0, nil
	}
	sql := "INSERT INTO transactions_acceptances (transaction_id, block_hash) VALUES " +
		generatePlaceholders(len(blockHashes), 2) + " ON CONFLICT DO NOTHING"
	args := make([]interface{}, 0, len(blockHashes)*2)
	for i := range blockHashes {
		args = append(args, nil, blockHashes[i].Bytes())
	}
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrap(err, "insert chain blocks")
	}
	return tag.RowsAffected(), nil
}

// InsertTransactionAcceptances writes a chunk of acceptance rows.
func (c *Client) InsertTransactionAcceptances(ctx context.Context, rows []model.TransactionAcceptance) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	sql := "INSERT INTO transactions_acceptances (transaction_id, block_hash) VALUES " +
		generatePlaceholders(len(rows), 2) + " ON CONFLICT DO NOTHING"
	args := make([]interface{}, 0, len(rows)*2)
	for i := range rows {
		args = append(args, optHash(rows[i].TransactionID), optHash(rows[i].BlockHash))
	}
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrap(err, "insert transaction acceptances")
	}
	return tag.RowsAffected(), nil
}
