package domain

import (
	"context"
	"time"
)

// KeyHandle is an opaque reference to a custodied signing key. Key material
// never crosses this interface; callers only learn the address and can ask
// for a signature.
type KeyHandle interface {
	Address() string
	Sign(message []byte) ([]byte, error)
}

// TransferResult is the outcome of a successful ledger transfer.
type TransferResult struct {
	// Signature is the ledger's transaction signature/identifier.
	Signature string
}

// LedgerClient queries balances and executes signed transfers on the ledger
// network. Transfers block until the network confirms or rejects them; there
// is no cancellation once a transfer has been submitted.
type LedgerClient interface {
	Balance(ctx context.Context, address string) (float64, error)
	Transfer(ctx context.Context, from KeyHandle, toAddress string, amount float64) (TransferResult, error)
}

// IntentKind classifies what a transfer intent pays for.
type IntentKind string

const (
	IntentStake   IntentKind = "stake"    // user -> treasury at placement
	IntentCashOut IntentKind = "cash_out" // treasury -> user at early exit
	IntentPayout  IntentKind = "payout"   // treasury -> winner at settlement
)

// IntentStatus is the two-phase state of a transfer intent.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentCommitted IntentStatus = "committed"
	IntentFailed    IntentStatus = "failed"

	// IntentReconcile marks a committed transfer whose dependent local write
	// failed: funds moved but no record exists. Requires manual
	// reconciliation and is never retried automatically.
	IntentReconcile IntentStatus = "reconcile"
)

// TransferIntent is written before every ledger transfer and updated after
// it completes, so every fund movement leaves a durable trace even when the
// surrounding operation fails part-way.
type TransferIntent struct {
	ID          string
	Kind        IntentKind
	BetID       string
	MarketID    string
	UserID      string
	FromAddress string
	ToAddress   string
	Amount      float64
	Status      IntentStatus

	// IdempotencyKey, when supplied by the caller at placement, lets a
	// retried request find the intent (and bet) created by its first
	// attempt instead of moving funds twice.
	IdempotencyKey string

	// Signature is the ledger transaction signature once committed.
	Signature string

	CreatedAt time.Time
	UpdatedAt time.Time
}
