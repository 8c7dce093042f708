package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used by the selector.
type RPCClient interface {
	// GetAccountInfo retrieves raw (base64) account info. Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetParsedAccountInfo retrieves jsonParsed account info. Returns nil if the account does not exist.
	GetParsedAccountInfo(ctx context.Context, pubkey string) (*ParsedAccount, error)

	// GetTransaction retrieves a transaction by signature. Returns nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}
