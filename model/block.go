package model

// Block is one row of the blocks table. Created by the block processor,
// immutable until pruning. Optional header columns are nil when excluded.
type Block struct {
	Hash                 Hash
	AcceptedIDMerkleRoot *Hash
	MergeSetBluesHashes  []Hash
	MergeSetRedsHashes   []Hash
	SelectedParentHash   *Hash
	Bits                 *int64
	BlueScore            *int64
	BlueWork             []byte
	DaaScore             *int64
	HashMerkleRoot       *Hash
	Nonce                []byte
	PruningPoint         *Hash
	Timestamp            *int64
	UtxoCommitment       *Hash
	Version              *int16
}

// BlockParent is one row of the block_parent relation; a block has one row
// per DAG parent.
type BlockParent struct {
	BlockHash  Hash
	ParentHash Hash
}

// BlockTransaction is one row of the blocks_transactions relation.
type BlockTransaction struct {
	BlockHash     Hash
	TransactionID Hash
}

// Subnetwork maps a textual subnetwork id to its compact integer key.
type Subnetwork struct {
	ID           int32
	SubnetworkID string
}
