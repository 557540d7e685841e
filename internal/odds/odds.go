// Package odds implements the quoting model: implied-percentage odds derived
// from accumulated stake, the payout multiplier 100/odds, and the cash-out
// valuation formula. Everything here is pure computation; persistence and
// serialization live with the callers.
package odds

import (
	"math"

	"github.com/polygens/wagerd/internal/domain"
)

const (
	// binaryMin/binaryMax bound a binary market's yes quote.
	binaryMin = 5
	binaryMax = 95

	// optionMin/optionMax bound a multiple-choice option quote. The floor
	// prevents a degenerate 0% quote whose payout multiplier would divide
	// by zero.
	optionMin = 1
	optionMax = 99

	// maxStakeDelta caps how far a single stake can move a binary quote.
	maxStakeDelta = 5

	// CashOutFee is the flat fee rate applied to the gross cash-out value.
	CashOutFee = 0.05

	// MaxProfitMultiplier caps the gross cash-out at a multiple of the
	// original stake, bounding profit risk before settlement.
	MaxProfitMultiplier = 1.5
)

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AdjustBinary returns the new yes quote after a stake of `amount` lands on
// `side`. The move is floor(amount*10) percentage points, capped at 5, and
// the result stays within [5,95].
func AdjustBinary(yesOdds int, side domain.BetSide, amount float64) int {
	delta := int(math.Floor(amount * 10))
	if delta > maxStakeDelta {
		delta = maxStakeDelta
	}
	if side == domain.SideYes {
		return clamp(yesOdds+delta, binaryMin, binaryMax)
	}
	return clamp(yesOdds-delta, binaryMin, binaryMax)
}

// RecomputeBinary derives the yes quote from scratch out of currently active
// volume. With no active volume the quote rests at 50.
func RecomputeBinary(yesVolume, noVolume float64) int {
	total := yesVolume + noVolume
	if total <= 0 {
		return 50
	}
	return clamp(int(math.Round(yesVolume/total*100)), binaryMin, binaryMax)
}

// EvenSplit returns the initial odds for n options: floor(100/n) each, with
// the last option absorbing the remainder so the set sums to exactly 100.
func EvenSplit(n int) []int {
	if n <= 0 {
		return nil
	}
	each := 100 / n
	out := make([]int, n)
	for i := range out {
		out[i] = each
	}
	out[n-1] = 100 - each*(n-1)
	return out
}

// RecomputeMulti derives each option's quote from its share of total volume,
// clamped to [1,99]. With no volume at all it falls back to the even split
// used at creation.
func RecomputeMulti(volumes []float64) []int {
	var total float64
	for _, v := range volumes {
		total += v
	}
	if total <= 0 {
		return EvenSplit(len(volumes))
	}
	out := make([]int, len(volumes))
	for i, v := range volumes {
		out[i] = clamp(int(math.Round(v/total*100)), optionMin, optionMax)
	}
	return out
}

// SideOdds returns the implied odds for a binary position: the yes quote for
// yes, its complement for no.
func SideOdds(yesOdds int, side domain.BetSide) int {
	if side == domain.SideYes {
		return yesOdds
	}
	return 100 - yesOdds
}

// PotentialWin is the payout owed at settlement for a stake placed at the
// given odds.
func PotentialWin(amount float64, atOdds int) float64 {
	return amount * (100 / float64(atOdds))
}

// Valuation is the priced early exit of an active bet.
type Valuation struct {
	Gross float64
	Fee   float64
	Net   float64
}

// CashOutValue prices the early exit of a stake by odds drift since
// placement: gross = amount * currentOdds/oddsAtBet, capped at 1.5x the
// stake, less a 5% fee.
func CashOutValue(amount float64, oddsAtBet, currentOdds int) Valuation {
	gross := amount * float64(currentOdds) / float64(oddsAtBet)
	if max := amount * MaxProfitMultiplier; gross > max {
		gross = max
	}
	fee := gross * CashOutFee
	return Valuation{
		Gross: gross,
		Fee:   fee,
		Net:   gross - fee,
	}
}
