package model

// Transaction is one row of the transactions table.
type Transaction struct {
	TransactionID Hash
	SubnetworkID  *int32
	Hash          *Hash
	Mass          *int32
	Payload       []byte
	BlockTime     *int64
}

// TransactionInput is one row of transactions_inputs, keyed by
// (transaction_id, index). The resolved previous-outpoint columns are
// populated only when input resolution is enabled: in memory when the
// referenced output is in the same batch, otherwise by the insert statement
// from an already-persisted output.
type TransactionInput struct {
	TransactionID          Hash
	Index                  int16
	PreviousOutpointHash   *Hash
	PreviousOutpointIndex  *int16
	SignatureScript        []byte
	SigOpCount             *int16
	BlockTime              *int64
	PreviousOutpointScript []byte
	PreviousOutpointAmount *int64
}

// TransactionOutput is one row of transactions_outputs, keyed by
// (transaction_id, index).
type TransactionOutput struct {
	TransactionID          Hash
	Index                  int16
	Amount                 *int64
	ScriptPublicKey        []byte
	ScriptPublicKeyAddress *string
	BlockTime              *int64
}

// TransactionAcceptance asserts that a transaction is accepted by the given
// chain block. BlockHash is nil for rows created by the UTXO snapshot
// import, which predate any known accepting block.
type TransactionAcceptance struct {
	TransactionID *Hash
	BlockHash     *Hash
}

// AddressTransaction relates a decoded address to a transaction.
type AddressTransaction struct {
	Address       string
	TransactionID Hash
	BlockTime     int64
}

// ScriptTransaction relates a raw script public key to a transaction. It is
// the alternative to AddressTransaction, selected by configuration.
type ScriptTransaction struct {
	ScriptPublicKey []byte
	TransactionID   Hash
	BlockTime       int64
}
