package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polygens/wagerd/internal/domain"
)

func (f *fixture) addBet(t *testing.T, b domain.Bet) domain.Bet {
	t.Helper()
	if b.Status == "" {
		b.Status = domain.BetActive
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if err := f.bets.Create(context.Background(), b); err != nil {
		t.Fatalf("create bet: %v", err)
	}
	return b
}

func TestQuoteBet(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "u1", 10)
	f.addBinaryMarket(t, "m1", 70)
	bet := f.addBet(t, domain.Bet{
		ID: "b1", UserID: user.ID, MarketID: "m1",
		Amount: 1.0, Side: domain.SideYes, OddsAtBet: 50, PotentialWin: 2.0,
	})
	svc := f.cashOutService()

	q, err := svc.QuoteBet(context.Background(), bet.ID)
	if err != nil {
		t.Fatalf("QuoteBet: %v", err)
	}
	if q.CurrentOdds != 70 {
		t.Errorf("CurrentOdds = %d, want 70", q.CurrentOdds)
	}
	if !almostEqual(q.Gross, 1.4) {
		t.Errorf("Gross = %f, want 1.4", q.Gross)
	}
	if !almostEqual(q.Fee, 0.07) {
		t.Errorf("Fee = %f, want 0.07", q.Fee)
	}
	if !almostEqual(q.Net, 1.33) {
		t.Errorf("Net = %f, want 1.33", q.Net)
	}
}

func TestQuoteBetProfitCap(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "u1", 10)
	f.addBinaryMarket(t, "m1", 95)
	bet := f.addBet(t, domain.Bet{
		ID: "b1", UserID: user.ID, MarketID: "m1",
		Amount: 1.0, Side: domain.SideYes, OddsAtBet: 50, PotentialWin: 2.0,
	})
	svc := f.cashOutService()

	q, err := svc.QuoteBet(context.Background(), bet.ID)
	if err != nil {
		t.Fatalf("QuoteBet: %v", err)
	}
	// 1.0 * 95/50 = 1.9 gross, capped at 1.5x the stake.
	if !almostEqual(q.Gross, 1.5) {
		t.Errorf("Gross = %f, want 1.5 (capped)", q.Gross)
	}
	if !almostEqual(q.Net, 1.425) {
		t.Errorf("Net = %f, want 1.425", q.Net)
	}
}

func TestQuoteBetLosingSide(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "u1", 10)
	f.addBinaryMarket(t, "m1", 80)
	// A no bet taken at 50 while yes has since risen to 80: current no odds
	// are 20, so the position lost most of its value.
	bet := f.addBet(t, domain.Bet{
		ID: "b1", UserID: user.ID, MarketID: "m1",
		Amount: 1.0, Side: domain.SideNo, OddsAtBet: 50, PotentialWin: 2.0,
	})
	svc := f.cashOutService()

	q, err := svc.QuoteBet(context.Background(), bet.ID)
	if err != nil {
		t.Fatalf("QuoteBet: %v", err)
	}
	if q.CurrentOdds != 20 {
		t.Errorf("CurrentOdds = %d, want 20", q.CurrentOdds)
	}
	if !almostEqual(q.Gross, 0.4) {
		t.Errorf("Gross = %f, want 0.4", q.Gross)
	}
	if !almostEqual(q.Net, 0.38) {
		t.Errorf("Net = %f, want 0.38", q.Net)
	}
}

func TestExecuteCashOut(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "u1", 9)
	market := f.addBinaryMarket(t, "m1", 70)
	m := f.markets.markets[market.ID]
	m.Volume = 1.0
	f.markets.markets[market.ID] = m
	bet := f.addBet(t, domain.Bet{
		ID: "b1", UserID: user.ID, MarketID: market.ID,
		Amount: 1.0, Side: domain.SideYes, OddsAtBet: 50, PotentialWin: 2.0,
	})
	svc := f.cashOutService()

	r, err := svc.Execute(context.Background(), bet.ID, user.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !almostEqual(r.Net, 1.33) {
		t.Errorf("Net = %f, want 1.33", r.Net)
	}
	if r.Bet.Status != domain.BetCashedOut {
		t.Errorf("bet status = %s, want cashed_out", r.Bet.Status)
	}
	if !almostEqual(r.Bet.PotentialWin, 1.33) {
		t.Errorf("PotentialWin = %f, want 1.33 (net paid)", r.Bet.PotentialWin)
	}
	if r.Signature == "" {
		t.Error("expected a transfer signature")
	}

	// Treasury paid the net; the user's mirror caught up.
	if got := f.ledger.balances[f.treasury.Address()]; !almostEqual(got, treasuryStartBalance-1.33) {
		t.Errorf("treasury balance = %f, want %f", got, treasuryStartBalance-1.33)
	}
	stored, _ := f.users.GetByID(context.Background(), user.ID)
	if !almostEqual(stored.Balance, 9+1.33) {
		t.Errorf("user balance = %f, want %f", stored.Balance, 9+1.33)
	}

	// Volume released; with no active bets left the quote resets to even.
	m, _ = f.markets.GetByID(context.Background(), market.ID)
	if !almostEqual(m.Volume, 0) {
		t.Errorf("market volume = %f, want 0", m.Volume)
	}
	if m.YesOdds != 50 {
		t.Errorf("YesOdds = %d, want 50", m.YesOdds)
	}
	if got := f.intents.byStatus(domain.IntentCommitted); got != 1 {
		t.Errorf("committed intents = %d, want 1", got)
	}
}

func TestExecuteCashOutMultiRequotesRemaining(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "u1", 10)
	market := f.addMultiMarket(t, "m1", []string{"A", "B"}, []int{50, 50})
	// Seed volumes as if two equal stakes had landed.
	m := f.markets.markets[market.ID]
	m.Volume = 2.0
	m.Options[0].Volume = 1.0
	m.Options[1].Volume = 1.0
	f.markets.markets[market.ID] = m

	bet := f.addBet(t, domain.Bet{
		ID: "b1", UserID: user.ID, MarketID: market.ID,
		Amount: 1.0, OptionID: market.Options[0].ID, OddsAtBet: 50, PotentialWin: 2.0,
	})
	svc := f.cashOutService()

	if _, err := svc.Execute(context.Background(), bet.ID, user.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, _ := f.markets.GetByID(context.Background(), market.ID)
	// Option A's stake is gone, so all remaining volume backs B.
	if got.Options[0].Odds != 1 || got.Options[1].Odds != 99 {
		t.Errorf("option odds = [%d %d], want [1 99]", got.Options[0].Odds, got.Options[1].Odds)
	}
	if !almostEqual(got.Options[0].Volume, 0) {
		t.Errorf("option A volume = %f, want 0", got.Options[0].Volume)
	}
}

func TestExecuteCashOutWrongUser(t *testing.T) {
	f := newFixture(t)
	owner := f.addUser(t, "alice", 10)
	other := f.addUser(t, "mallory", 10)
	f.addBinaryMarket(t, "m1", 70)
	bet := f.addBet(t, domain.Bet{
		ID: "b1", UserID: owner.ID, MarketID: "m1",
		Amount: 1.0, Side: domain.SideYes, OddsAtBet: 50, PotentialWin: 2.0,
	})
	svc := f.cashOutService()

	if _, err := svc.Execute(context.Background(), bet.ID, other.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("Execute by non-owner = %v, want ErrUnauthorized", err)
	}
	got, _ := f.bets.GetByID(context.Background(), bet.ID)
	if got.Status != domain.BetActive {
		t.Errorf("bet status = %s, want active (untouched)", got.Status)
	}
	if f.ledger.transfers != 0 {
		t.Errorf("ledger transfers = %d, want 0", f.ledger.transfers)
	}
}

func TestExecuteCashOutStateConflicts(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "u1", 10)
	f.addBinaryMarket(t, "m1", 70)
	resolved := f.addBinaryMarket(t, "m2", 70)
	if err := f.markets.Resolve(context.Background(), resolved.ID, domain.YesOutcome()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	cashed := f.addBet(t, domain.Bet{
		ID: "b1", UserID: user.ID, MarketID: "m1",
		Amount: 1, Side: domain.SideYes, OddsAtBet: 50, Status: domain.BetCashedOut,
	})
	onResolved := f.addBet(t, domain.Bet{
		ID: "b2", UserID: user.ID, MarketID: resolved.ID,
		Amount: 1, Side: domain.SideYes, OddsAtBet: 50,
	})
	svc := f.cashOutService()
	ctx := context.Background()

	if _, err := svc.Execute(ctx, cashed.ID, user.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Execute on cashed-out bet = %v, want ErrConflict", err)
	}
	if _, err := svc.Execute(ctx, onResolved.ID, user.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Execute on resolved market = %v, want ErrConflict", err)
	}
	if _, err := svc.Execute(ctx, "missing", user.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Execute on missing bet = %v, want ErrNotFound", err)
	}
	if f.ledger.transfers != 0 {
		t.Errorf("ledger transfers = %d, want 0", f.ledger.transfers)
	}
}

func TestExecuteCashOutTreasuryShortfall(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "u1", 10)
	f.addBinaryMarket(t, "m1", 70)
	bet := f.addBet(t, domain.Bet{
		ID: "b1", UserID: user.ID, MarketID: "m1",
		Amount: 1.0, Side: domain.SideYes, OddsAtBet: 50, PotentialWin: 2.0,
	})
	f.ledger.balances[f.treasury.Address()] = 0.5
	svc := f.cashOutService()

	if _, err := svc.Execute(context.Background(), bet.ID, user.ID); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("Execute = %v, want ErrInsufficientFunds", err)
	}
	got, _ := f.bets.GetByID(context.Background(), bet.ID)
	if got.Status != domain.BetActive {
		t.Errorf("bet status = %s, want active (untouched)", got.Status)
	}
}

func TestExecuteCashOutTransferFailure(t *testing.T) {
	f := newFixture(t)
	f.ledger.failAll = true
	user := f.addUser(t, "u1", 10)
	f.addBinaryMarket(t, "m1", 70)
	bet := f.addBet(t, domain.Bet{
		ID: "b1", UserID: user.ID, MarketID: "m1",
		Amount: 1.0, Side: domain.SideYes, OddsAtBet: 50, PotentialWin: 2.0,
	})
	svc := f.cashOutService()

	if _, err := svc.Execute(context.Background(), bet.ID, user.ID); !errors.Is(err, domain.ErrAborted) {
		t.Fatalf("Execute = %v, want ErrAborted", err)
	}
	if got := f.intents.byStatus(domain.IntentFailed); got != 1 {
		t.Errorf("failed intents = %d, want 1", got)
	}
	got, _ := f.bets.GetByID(context.Background(), bet.ID)
	if got.Status != domain.BetActive {
		t.Errorf("bet status = %s, want active", got.Status)
	}
}

func TestExecuteCashOutPersistFailureAfterTransfer(t *testing.T) {
	f := newFixture(t)
	f.bets.cashOutErr = errors.New("db down")
	user := f.addUser(t, "u1", 10)
	f.addBinaryMarket(t, "m1", 70)
	bet := f.addBet(t, domain.Bet{
		ID: "b1", UserID: user.ID, MarketID: "m1",
		Amount: 1.0, Side: domain.SideYes, OddsAtBet: 50, PotentialWin: 2.0,
	})
	svc := f.cashOutService()

	if _, err := svc.Execute(context.Background(), bet.ID, user.ID); !errors.Is(err, domain.ErrInconsistent) {
		t.Fatalf("Execute = %v, want ErrInconsistent", err)
	}
	if got := f.intents.byStatus(domain.IntentReconcile); got != 1 {
		t.Errorf("reconcile intents = %d, want 1", got)
	}
	// The payout already left the treasury and stays put.
	if got := f.ledger.balances[user.LedgerAddress]; !almostEqual(got, 10+1.33) {
		t.Errorf("user ledger balance = %f, want %f", got, 10+1.33)
	}
}
