package domain

import "errors"

var (
	// ErrNotFound indicates a missing market, option, bet, or user.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a state conflict such as resolving an already
	// resolved market or cashing out a non-active bet.
	ErrConflict = errors.New("conflict")

	// ErrFailedPrecondition indicates a validation failure: insufficient
	// balance, sub-minimum stake, or a non-positive cash-out value.
	ErrFailedPrecondition = errors.New("failed precondition")

	// ErrAborted indicates a ledger transfer failed before any local state
	// was committed. The operation may be retried as a whole.
	ErrAborted = errors.New("aborted")

	// ErrInsufficientFunds indicates the treasury cannot cover a required
	// payout. Nothing has been mutated.
	ErrInsufficientFunds = errors.New("insufficient treasury funds")

	// ErrInconsistent indicates funds moved on the ledger but the local
	// record could not be written. The transfer intent is flagged for manual
	// reconciliation and must never be auto-retried.
	ErrInconsistent = errors.New("ledger and store inconsistent")

	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrLockHeld     = errors.New("lock already held")
)
