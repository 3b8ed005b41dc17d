package database

import (
	"context"

	"github.com/pkg/errors"

	"github.com/supertypo/simply-kaspa-indexer/model"
)

// UpsertUtxos writes output rows from the pruning-point UTXO snapshot.
// Unlike the regular output insert this overwrites on conflict, so a
// re-imported snapshot converges to the same state.
func (c *Client) UpsertUtxos(ctx context.Context, outputs []model.TransactionOutput) (int64, error) {
	if len(outputs) == 0 {
		return 0, nil
	}
	const cols = 6
	sql := `INSERT INTO transactions_outputs (transaction_id, index, amount, script_public_key,
		script_public_key_address, block_time) VALUES ` + generatePlaceholders(len(outputs), cols) + `
		ON CONFLICT (transaction_id, index) DO UPDATE SET
			amount = EXCLUDED.amount,
			script_public_key = EXCLUDED.script_public_key,
			script_public_key_address = EXCLUDED.script_public_key_address,
			block_time = EXCLUDED.block_time`
	args := make([]interface{}, 0, len(outputs)*cols)
	for i := range outputs {
		o := &outputs[i]
		args = append(args, o.TransactionID.Bytes(), o.Index, o.Amount, o.ScriptPublicKey,
			o.ScriptPublicKeyAddress, o.BlockTime)
	}
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrap(err, "upsert utxos")
	}
	return tag.RowsAffected(), nil
}
