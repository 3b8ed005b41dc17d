package indexer

import (
	"context"

	"github.com/supertypo/simply-kaspa-indexer/database"
	"github.com/supertypo/simply-kaspa-indexer/model"
)

const (
	varKeyBlockCheckpoint = "block_checkpoint"
	varKeyVcpCheckpoint   = "vcp_checkpoint"
)

// LoadBlockCheckpoint reads the persisted resume point.
func LoadBlockCheckpoint(ctx context.Context, db *database.Client) (model.Hash, error) {
	value, err := db.SelectVar(ctx, varKeyBlockCheckpoint)
	if err != nil {
		return model.Hash{}, err
	}
	return model.ParseHash(value)
}

// SaveBlockCheckpoint persists the resume point.
func SaveBlockCheckpoint(ctx context.Context, db *database.Client, hash model.Hash) error {
	return db.UpsertVar(ctx, varKeyBlockCheckpoint, hash.String())
}

// LoadVcpCheckpoint reads the virtual-chain processor's own resume point.
func LoadVcpCheckpoint(ctx context.Context, db *database.Client) (model.Hash, error) {
	value, err := db.SelectVar(ctx, varKeyVcpCheckpoint)
	if err != nil {
		return model.Hash{}, err
	}
	return model.ParseHash(value)
}

// SaveVcpCheckpoint persists the virtual-chain processor's resume point.
func SaveVcpCheckpoint(ctx context.Context, db *database.Client, hash model.Hash) error {
	return db.UpsertVar(ctx, varKeyVcpCheckpoint, hash.String())
}
