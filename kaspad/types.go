// Package kaspad is the websocket JSON-RPC client for a kaspad node. Only
// the calls the pipeline needs are covered; hashes travel as bare hex
// strings, binary fields as hex.
package kaspad

// BlockDagInfo is the response of getBlockDagInfo.
type BlockDagInfo struct {
	NetworkName         string   `json:"networkName"`
	BlockCount          uint64   `json:"blockCount"`
	HeaderCount         uint64   `json:"headerCount"`
	TipHashes           []string `json:"tipHashes"`
	VirtualParentHashes []string `json:"virtualParentHashes"`
	PruningPointHash    string   `json:"pruningPointHash"`
	VirtualDaaScore     uint64   `json:"virtualDaaScore"`
}

// ServerInfo is the response of getServerInfo.
type ServerInfo struct {
	RpcApiVersion []uint32 `json:"rpcApiVersion"`
	ServerVersion string   `json:"serverVersion"`
	NetworkID     string   `json:"networkId"`
	HasUtxoIndex  bool     `json:"hasUtxoIndex"`
	IsSynced      bool     `json:"isSynced"`
	VirtualDaa    uint64   `json:"virtualDaaScore"`
}

// BlockLevelParents is one level of the multi-level parent header field.
type BlockLevelParents struct {
	ParentHashes []string `json:"parentHashes"`
}

// BlockHeader mirrors the kaspad block header DTO.
type BlockHeader struct {
	Version              uint16              `json:"version"`
	Parents              []BlockLevelParents `json:"parents"`
	HashMerkleRoot       string              `json:"hashMerkleRoot"`
	AcceptedIDMerkleRoot string              `json:"acceptedIdMerkleRoot"`
	UtxoCommitment       string              `json:"utxoCommitment"`
	Timestamp            uint64              `json:"timestamp"`
	Bits                 uint32              `json:"bits"`
	Nonce                uint64              `json:"nonce"`
	DaaScore             uint64              `json:"daaScore"`
	BlueWork             string              `json:"blueWork"`
	PruningPoint         string              `json:"pruningPoint"`
	BlueScore            uint64              `json:"blueScore"`
}

// BlockVerboseData carries node-computed block facts.
type BlockVerboseData struct {
	Hash                string   `json:"hash"`
	SelectedParentHash  string   `json:"selectedParentHash"`
	TransactionIDs      []string `json:"transactionIds"`
	IsHeaderOnly        bool     `json:"isHeaderOnly"`
	BlueScore           uint64   `json:"blueScore"`
	MergeSetBluesHashes []string `json:"mergeSetBluesHashes"`
	MergeSetRedsHashes  []string `json:"mergeSetRedsHashes"`
	IsChainBlock        bool     `json:"isChainBlock"`
}

// Block is a block with optional transactions, as returned by getBlock and
// getBlocks.
type Block struct {
	Header       BlockHeader      `json:"header"`
	Transactions []Transaction    `json:"transactions"`
	VerboseData  BlockVerboseData `json:"verboseData"`
}

// Outpoint references an output of a previous transaction.
type Outpoint struct {
	TransactionID string `json:"transactionId"`
	Index         uint32 `json:"index"`
}

// TransactionInput mirrors the kaspad transaction input DTO.
type TransactionInput struct {
	PreviousOutpoint Outpoint `json:"previousOutpoint"`
	SignatureScript  string   `json:"signatureScript"`
	Sequence         uint64   `json:"sequence"`
	SigOpCount       uint8    `json:"sigOpCount"`
}

// ScriptPublicKey is a versioned script.
type ScriptPublicKey struct {
	Version         uint16 `json:"version"`
	ScriptPublicKey string `json:"scriptPublicKey"`
}

// TransactionOutputVerboseData carries the decoded address of an output.
type TransactionOutputVerboseData struct {
	ScriptPublicKeyType    string `json:"scriptPublicKeyType"`
	ScriptPublicKeyAddress string `json:"scriptPublicKeyAddress"`
}

// TransactionOutput mirrors the kaspad transaction output DTO.
type TransactionOutput struct {
	Amount          uint64                        `json:"amount"`
	ScriptPublicKey ScriptPublicKey               `json:"scriptPublicKey"`
	VerboseData     *TransactionOutputVerboseData `json:"verboseData"`
}

// TransactionVerboseData carries node-computed transaction facts.
type TransactionVerboseData struct {
	TransactionID string `json:"transactionId"`
	Hash          string `json:"hash"`
	ComputeMass   uint64 `json:"computeMass"`
	BlockHash     string `json:"blockHash"`
	BlockTime     uint64 `json:"blockTime"`
}

// Transaction mirrors the kaspad transaction DTO.
type Transaction struct {
	Version      uint16                  `json:"version"`
	Inputs       []TransactionInput      `json:"inputs"`
	Outputs      []TransactionOutput     `json:"outputs"`
	LockTime     uint64                  `json:"lockTime"`
	SubnetworkID string                  `json:"subnetworkId"`
	Gas          uint64                  `json:"gas"`
	Payload      string                  `json:"payload"`
	VerboseData  *TransactionVerboseData `json:"verboseData"`
}

// BlocksResponse is the response of getBlocks.
type BlocksResponse struct {
	BlockHashes []string `json:"blockHashes"`
	Blocks      []Block  `json:"blocks"`
}

// AcceptedTransactionIDs lists the transactions accepted by one chain block.
type AcceptedTransactionIDs struct {
	AcceptingBlockHash     string   `json:"acceptingBlockHash"`
	AcceptedTransactionIDs []string `json:"acceptedTransactionIds"`
}

// VirtualChainResponse is the response of getVirtualChainFromBlock: the
// chain-block delta since the requested start hash.
type VirtualChainResponse struct {
	RemovedChainBlockHashes []string                 `json:"removedChainBlockHashes"`
	AddedChainBlockHashes   []string                 `json:"addedChainBlockHashes"`
	AcceptedTransactionIDs  []AcceptedTransactionIDs `json:"acceptedTransactionIds"`
}
