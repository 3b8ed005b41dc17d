package indexer

import (
	"github.com/supertypo/simply-kaspa-indexer/config"
	"github.com/supertypo/simply-kaspa-indexer/model"
)

// Settings is the immutable per-run configuration shared by all stages.
type Settings struct {
	Cfg *config.Config

	// NetBps is the assumed block rate, used to size caches and the
	// blue-score interlocks.
	NetBps int
	// NetTpsMax is the assumed transaction rate ceiling, used to size the
	// de-duplication cache.
	NetTpsMax int

	// Checkpoint is the resolved resume point.
	Checkpoint model.Hash

	// DisableVcpWaitForSync starts VCP without waiting for the fetcher to
	// catch up; set explicitly or implied by a fresh UTXO import.
	DisableVcpWaitForSync bool
}
