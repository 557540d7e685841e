package domain

import "time"

// BetSide is the yes/no position of a bet on a BINARY market.
type BetSide string

const (
	SideYes BetSide = "yes"
	SideNo  BetSide = "no"
)

// BetStatus is the lifecycle state of a bet. Every status other than active
// is terminal.
type BetStatus string

const (
	BetActive BetStatus = "active"
	BetWon    BetStatus = "won"
	BetLost   BetStatus = "lost"

	// BetCashedOut marks a bet exited early; PotentialWin holds the net
	// amount actually paid out.
	BetCashedOut BetStatus = "cashed_out"

	// BetError marks a winning bet whose payout transfer failed during
	// settlement. It is terminal and flagged for manual follow-up.
	BetError BetStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s BetStatus) Terminal() bool { return s != BetActive }

// Bet is a single stake on a market. Exactly one of Side or OptionID is set,
// matching the market's type.
type Bet struct {
	ID       string  `json:"id"`
	UserID   string  `json:"userId"`
	MarketID string  `json:"marketId"`
	Amount   float64 `json:"amount"`

	Side     BetSide `json:"side,omitempty"`
	OptionID string  `json:"optionId,omitempty"`

	// PotentialWin is the payout owed if the bet wins, fixed at placement.
	// Cash-out execution overwrites it with the net amount paid.
	PotentialWin float64 `json:"potentialWin"`

	// OddsAtBet is the odds snapshot taken at placement, the basis for
	// cash-out valuation.
	OddsAtBet int `json:"oddsAtBet"`

	Status    BetStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
