package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// StakeUpdate adjusts market (and option) volume and rewrites the quoted
// odds in a single transaction. VolumeDelta is positive for a placement and
// negative for a cash-out; volumes never go below zero.
type StakeUpdate struct {
	MarketID string

	// OptionID is the staked (or released) option for MULTIPLE_CHOICE
	// markets, empty for BINARY.
	OptionID string

	VolumeDelta float64

	// YesOdds is the new binary quote. Nil leaves it untouched.
	YesOdds *int

	// OptionOdds maps option id to its new quote. Every option of the
	// market must be present for MULTIPLE_CHOICE updates.
	OptionOdds map[string]int
}

// MarketStore persists markets and their options.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)

	// UpdateStake applies a StakeUpdate atomically: market volume, the
	// staked option's volume, and all rewritten odds move together or not
	// at all.
	UpdateStake(ctx context.Context, u StakeUpdate) error

	// Resolve marks the market resolved with the given outcome. It returns
	// ErrConflict when the market is already resolved, guaranteeing
	// resolution happens exactly once even under concurrent callers.
	Resolve(ctx context.Context, id string, outcome Outcome) error
}

// BetStore persists bets.
type BetStore interface {
	Create(ctx context.Context, b Bet) error
	GetByID(ctx context.Context, id string) (Bet, error)
	ListByMarket(ctx context.Context, marketID string) ([]Bet, error)
	ListActiveByMarket(ctx context.Context, marketID string) ([]Bet, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Bet, error)

	// SetStatus transitions a bet from the expected current status to the
	// new one, returning ErrConflict if the bet is no longer in `from`.
	SetStatus(ctx context.Context, id string, from, to BetStatus) error

	// CashOut atomically flips an active bet to cashed_out and overwrites
	// PotentialWin with the net amount paid.
	CashOut(ctx context.Context, id string, netPaid float64) error
}

// UserStore persists users and their mirrored ledger balances.
type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	SetBalance(ctx context.Context, id string, balance float64) error
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// IntentStore persists transfer intents.
type IntentStore interface {
	Create(ctx context.Context, in TransferIntent) error
	SetStatus(ctx context.Context, id string, status IntentStatus, signature string) error
	GetByIdempotencyKey(ctx context.Context, key string) (TransferIntent, error)
	ListByStatus(ctx context.Context, status IntentStatus, opts ListOpts) ([]TransferIntent, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
