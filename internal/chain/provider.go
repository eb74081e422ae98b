// ==============================================================================
// CHAIN PROVIDER - internal/chain/provider.go
// ==============================================================================
package chain

import (
	"context"
	"math/big"
)

// NotificationKind labels asynchronous provider events.
type NotificationKind string

const (
	NotificationAccountsChanged NotificationKind = "accounts_changed"
	NotificationChainChanged    NotificationKind = "chain_changed"
)

// Notification is an asynchronous event from the wallet provider. Accounts
// carries the new account list for accounts_changed; ChainID carries the new
// chain for chain_changed.
type Notification struct {
	Kind     NotificationKind
	Accounts []string
	ChainID  int64
}

// NetworkParams describes a chain for provider registration.
type NetworkParams struct {
	ChainID        int64
	ChainName      string
	RPCURL         string
	NativeSymbol   string
	NativeDecimals int
	ExplorerURL    string
}

// TxRequest is a transaction to be signed and broadcast by the provider.
type TxRequest struct {
	From  string
	To    string
	Value *big.Int
	Data  []byte
}

// Receipt is the mined result of a broadcast transaction. Status 1 means
// success, 0 means reverted.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Status      uint64
	GasUsed     uint64
}

// Provider abstracts the wallet side of the chain: account access, network
// selection, reads and transaction submission. Implementations surface
// ErrNoProvider when unavailable and ErrUserRejected for declined requests.
type Provider interface {
	// Available reports whether the provider can take requests at all.
	Available() bool

	// RequestAccounts asks the wallet for its accounts. The first entry is
	// the active account.
	RequestAccounts(ctx context.Context) ([]string, error)

	// ChainID returns the provider's currently selected chain.
	ChainID(ctx context.Context) (int64, error)

	// SwitchChain selects the given chain. Returns ErrUnknownChain when the
	// chain is not registered with the provider.
	SwitchChain(ctx context.Context, chainID int64) error

	// AddChain registers a chain so a subsequent SwitchChain can succeed.
	AddChain(ctx context.Context, params NetworkParams) error

	// NativeBalance returns the account's native coin balance in wei.
	NativeBalance(ctx context.Context, address string) (*big.Int, error)

	// TokenBalance returns the account's ERC-20 balance in the token's
	// smallest unit.
	TokenBalance(ctx context.Context, tokenContract, address string) (*big.Int, error)

	// SignMessage produces a personal-sign signature over the message.
	SignMessage(ctx context.Context, address, message string) (string, error)

	// SendTransaction signs and broadcasts the transaction, returning its hash.
	SendTransaction(ctx context.Context, tx TxRequest) (string, error)

	// TransactionReceipt returns the receipt for a mined transaction, or
	// (nil, nil) while it is still pending.
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// Notifications delivers account and chain change events in the order
	// they occurred.
	Notifications() <-chan Notification
}
