package domain

import "time"

// User is a bettor. Balance mirrors the user's on-ledger funds and is
// refreshed from the ledger after every fund movement rather than maintained
// arithmetically.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`

	// LedgerAddress is the user's custodial address on the ledger network.
	LedgerAddress string `json:"ledgerAddress"`

	// EncryptedKey is the ciphertext of the user's custodial signing key.
	// Key generation and custody policy are external; the engine only holds
	// the opaque blob and hands it to the keyring when a transfer must be
	// signed.
	EncryptedKey string `json:"-"`

	Balance   float64   `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

// LeaderboardEntry is one row of the balance leaderboard.
type LeaderboardEntry struct {
	Rank      int     `json:"rank"`
	Username  string  `json:"username"`
	Balance   float64 `json:"balance"`
	TotalBets int     `json:"totalBets"`
}
