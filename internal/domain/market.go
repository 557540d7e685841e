package domain

import "time"

// MarketType distinguishes yes/no markets from multi-option markets. The type
// is fixed at creation and never changes.
type MarketType string

const (
	MarketBinary         MarketType = "BINARY"
	MarketMultipleChoice MarketType = "MULTIPLE_CHOICE"
)

// Market is a single predictive question users can stake on.
type Market struct {
	ID       string     `json:"id"`
	Question string     `json:"question"`
	Category string     `json:"category"`
	Type     MarketType `json:"type"`

	// YesOdds is the implied yes percentage, meaningful only for BINARY
	// markets. Always kept within [5,95].
	YesOdds int `json:"yesOdds"`

	// Volume is the cumulative staked amount. It only decreases when a bet
	// is cashed out.
	Volume float64 `json:"volume"`

	EndDate  time.Time `json:"endDate"`
	Resolved bool      `json:"resolved"`
	Outcome  *Outcome  `json:"outcome,omitempty"`

	// Trending and ImageURL are display hints; the engine stores them and
	// otherwise ignores them.
	Trending bool   `json:"trending"`
	ImageURL string `json:"imageUrl,omitempty"`

	// Options is populated for MULTIPLE_CHOICE markets.
	Options []Option `json:"options,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Option is one of 2-5 mutually exclusive outcomes of a MULTIPLE_CHOICE
// market. Option odds stay within [1,99] and sum to roughly 100 across the
// market.
type Option struct {
	ID       string  `json:"id"`
	MarketID string  `json:"marketId"`
	Label    string  `json:"label"`
	Odds     int     `json:"odds"`
	Volume   float64 `json:"volume"`
}

// OptionByID returns the option with the given id, if present.
func (m Market) OptionByID(id string) (Option, bool) {
	for _, o := range m.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// OutcomeKind tags the variant of a declared outcome.
type OutcomeKind string

const (
	OutcomeYes    OutcomeKind = "yes"
	OutcomeNo     OutcomeKind = "no"
	OutcomeOption OutcomeKind = "option"
)

// Outcome is the declared result of a market: Yes or No for BINARY markets,
// an option reference for MULTIPLE_CHOICE markets.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	OptionID string      `json:"optionId,omitempty"`
}

// YesOutcome and NoOutcome construct binary outcomes.
func YesOutcome() Outcome { return Outcome{Kind: OutcomeYes} }
func NoOutcome() Outcome  { return Outcome{Kind: OutcomeNo} }

// OptionOutcome constructs a multiple-choice outcome referencing an option.
func OptionOutcome(optionID string) Outcome {
	return Outcome{Kind: OutcomeOption, OptionID: optionID}
}

// ValidFor reports whether the outcome's variant matches the market type and,
// for option outcomes, references one of the market's options.
func (o Outcome) ValidFor(m Market) bool {
	switch o.Kind {
	case OutcomeYes, OutcomeNo:
		return m.Type == MarketBinary
	case OutcomeOption:
		if m.Type != MarketMultipleChoice || o.OptionID == "" {
			return false
		}
		_, ok := m.OptionByID(o.OptionID)
		return ok
	default:
		return false
	}
}

// Wins reports whether a bet on the given side/option is a winner under this
// outcome.
func (o Outcome) Wins(b Bet) bool {
	switch o.Kind {
	case OutcomeYes:
		return b.Side == SideYes
	case OutcomeNo:
		return b.Side == SideNo
	case OutcomeOption:
		return b.OptionID == o.OptionID
	default:
		return false
	}
}
