// ==============================================================================
// DOMAIN MODELS - internal/domain/models.go
// ==============================================================================
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionStatus is the wallet session lifecycle state.
type SessionStatus string

const (
	SessionDisconnected   SessionStatus = "disconnected"
	SessionConnecting     SessionStatus = "connecting"
	SessionConnected      SessionStatus = "connected"
	SessionAuthenticating SessionStatus = "authenticating"
	SessionAuthenticated  SessionStatus = "authenticated"
	SessionError          SessionStatus = "error"
)

// Credential is an opaque bearer token proving a signature-based login.
// It must never be used for an address other than the one it was issued for.
type Credential struct {
	Token     string `json:"token"`
	IssuedFor string `json:"issued_for"`
}

// IssuedForAddress reports whether the credential belongs to the given address.
func (c *Credential) IssuedForAddress(address string) bool {
	return c != nil && strings.EqualFold(c.IssuedFor, address)
}

// WalletSession is the single per-process wallet connection record. It is
// owned by the session controller; everyone else gets value copies.
type WalletSession struct {
	Address    string        `json:"address,omitempty"`
	ChainID    int64         `json:"chain_id,omitempty"`
	Status     SessionStatus `json:"status"`
	Credential *Credential   `json:"-"`
	LastError  string        `json:"last_error,omitempty"`
}

// Connected reports whether a wallet account is attached to the session.
func (s WalletSession) Connected() bool {
	switch s.Status {
	case SessionConnected, SessionAuthenticating, SessionAuthenticated:
		return true
	}
	return false
}

// Authenticated reports whether the session holds a usable backend credential.
func (s WalletSession) Authenticated() bool {
	return s.Status == SessionAuthenticated && s.Credential != nil
}

// BalanceSnapshot is an immutable view of the wallet's balances. A new
// snapshot replaces the previous one wholesale, never field by field.
type BalanceSnapshot struct {
	Native decimal.Decimal `json:"native"`
	Token  decimal.Decimal `json:"token"`
	Stable decimal.Decimal `json:"stable"`
	AsOf   time.Time       `json:"as_of"`
}

// ZeroBalances returns an empty snapshot stamped with the given time.
func ZeroBalances(asOf time.Time) BalanceSnapshot {
	return BalanceSnapshot{
		Native: decimal.Zero,
		Token:  decimal.Zero,
		Stable: decimal.Zero,
		AsOf:   asOf,
	}
}

// TransactionKind distinguishes purchase and claim operations.
type TransactionKind string

const (
	TransactionKindPurchase TransactionKind = "purchase"
	TransactionKindClaim    TransactionKind = "claim"
)

// TransactionState is the lifecycle of a tracked operation.
type TransactionState string

const (
	TransactionStateBuilding          TransactionState = "building"
	TransactionStateAwaitingSignature TransactionState = "awaiting_signature"
	TransactionStateSubmitted         TransactionState = "submitted"
	TransactionStateConfirming        TransactionState = "confirming"
	TransactionStateRecordedRemotely  TransactionState = "recorded_remotely"
	TransactionStateFailed            TransactionState = "failed"
)

// Terminal reports whether the state ends the transaction's lifecycle.
func (s TransactionState) Terminal() bool {
	return s == TransactionStateRecordedRemotely || s == TransactionStateFailed
}

// PendingTransaction tracks one in-flight purchase or claim. At most one
// non-terminal record per kind exists at a time.
type PendingTransaction struct {
	LocalID       uuid.UUID        `json:"local_id" db:"local_id"`
	Kind          TransactionKind  `json:"kind" db:"kind"`
	WalletAddress string           `json:"wallet_address" db:"wallet_address"`
	AmountMatic   decimal.Decimal  `json:"amount_matic" db:"amount_matic"`
	AffiliateCode string           `json:"affiliate_code,omitempty" db:"affiliate_code"`
	Phase         int              `json:"phase,omitempty" db:"phase"`
	ChainTxHash   string           `json:"chain_tx_hash,omitempty" db:"chain_tx_hash"`
	State         TransactionState `json:"state" db:"state"`
	Note          string           `json:"note,omitempty" db:"note"`
	Error         string           `json:"error,omitempty" db:"error"`
	AttemptedAt   time.Time        `json:"attempted_at" db:"attempted_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
}

// Phase is a time- and supply-bounded sale window.
type Phase struct {
	Number      int             `json:"phase"`
	PriceUSD    decimal.Decimal `json:"price_usd"`
	BonusPct    decimal.Decimal `json:"bonus_pct"`
	MinPurchase decimal.Decimal `json:"min_purchase"`
	MaxPurchase decimal.Decimal `json:"max_purchase"`
	TokensSold  decimal.Decimal `json:"tokens_sold"`
	TokenSupply decimal.Decimal `json:"token_supply"`
	EndsAt      *time.Time      `json:"ends_at,omitempty"`
}

// ICOStatus is the backend's view of the running sale.
type ICOStatus struct {
	Active       bool            `json:"active"`
	CurrentPhase Phase           `json:"current_phase"`
	TotalRaised  decimal.Decimal `json:"total_raised"`
}

// Distribution is one dividend payout window.
type Distribution struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	DistributedAt time.Time       `json:"distributed_at"`
	Claimed       bool            `json:"claimed"`
}

// DividendInfo summarizes a holder's claimable dividends.
type DividendInfo struct {
	WalletAddress  string          `json:"wallet_address"`
	TotalUnclaimed decimal.Decimal `json:"total_unclaimed"`
	Distributions  []Distribution  `json:"distributions"`
}
