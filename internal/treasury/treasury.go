// Package treasury wraps the service's own on-chain wallet. A single
// Treasury value is built at wire-up from the configured key and injected
// into every service that pays out or receives stakes.
package treasury

import (
	"context"
	"fmt"

	"github.com/polygens/wagerd/internal/domain"
)

// Treasury holds the signing handle for the service wallet together with
// the ledger client used to query it.
type Treasury struct {
	handle domain.KeyHandle
	ledger domain.LedgerClient
}

// New builds a Treasury from a loaded key handle and a ledger client.
func New(handle domain.KeyHandle, ledger domain.LedgerClient) *Treasury {
	return &Treasury{handle: handle, ledger: ledger}
}

// Address returns the treasury wallet address.
func (t *Treasury) Address() string {
	return t.handle.Address()
}

// Handle returns the signing handle, for use as the sender in transfers.
func (t *Treasury) Handle() domain.KeyHandle {
	return t.handle
}

// Balance returns the treasury's current on-chain balance.
func (t *Treasury) Balance(ctx context.Context) (float64, error) {
	bal, err := t.ledger.Balance(ctx, t.handle.Address())
	if err != nil {
		return 0, fmt.Errorf("treasury: balance: %w", err)
	}
	return bal, nil
}

// Status is a point-in-time snapshot of the treasury wallet, exposed on the
// admin API.
type Status struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

// Status queries the current balance and returns a snapshot.
func (t *Treasury) Status(ctx context.Context) (Status, error) {
	bal, err := t.Balance(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Address: t.handle.Address(), Balance: bal}, nil
}
