package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/polygens/wagerd/internal/domain"
	"github.com/polygens/wagerd/internal/notify"
	"github.com/polygens/wagerd/internal/treasury"
)

// Payment records the outcome of one winner's payout during settlement.
type Payment struct {
	BetID     string  `json:"betId"`
	UserID    string  `json:"userId"`
	Amount    float64 `json:"amount"`
	Signature string  `json:"signature,omitempty"`
	Paid      bool    `json:"paid"`
	Error     string  `json:"error,omitempty"`
}

// SettlementResult summarizes a market resolution. TotalPaidOut counts only
// transfers that actually succeeded.
type SettlementResult struct {
	MarketID     string         `json:"marketId"`
	Outcome      domain.Outcome `json:"outcome"`
	WinnersCount int            `json:"winnersCount"`
	LosersCount  int            `json:"losersCount"`
	TotalPaidOut float64        `json:"totalPaidOut"`
	Payments     []Payment      `json:"payments"`
	SettledAt    time.Time      `json:"settledAt"`
}

// SettlementService resolves markets and pays winners.
type SettlementService struct {
	markets  domain.MarketStore
	bets     domain.BetStore
	users    domain.UserStore
	intents  domain.IntentStore
	audit    domain.AuditStore
	locks    domain.LockManager
	bus      domain.SignalBus
	ledger   domain.LedgerClient
	treasury *treasury.Treasury
	blob     domain.BlobWriter
	notifier *notify.Notifier
	lockTTL  time.Duration
	lockWait time.Duration
	logger   *slog.Logger
}

// NewSettlementService creates a SettlementService with all required
// dependencies. blob and notifier may be nil; report archiving and alerts
// are then skipped.
func NewSettlementService(
	markets domain.MarketStore,
	bets domain.BetStore,
	users domain.UserStore,
	intents domain.IntentStore,
	audit domain.AuditStore,
	locks domain.LockManager,
	bus domain.SignalBus,
	ledger domain.LedgerClient,
	tr *treasury.Treasury,
	blob domain.BlobWriter,
	notifier *notify.Notifier,
	lockTTL, lockWait time.Duration,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		markets:  markets,
		bets:     bets,
		users:    users,
		intents:  intents,
		audit:    audit,
		locks:    locks,
		bus:      bus,
		ledger:   ledger,
		treasury: tr,
		blob:     blob,
		notifier: notifier,
		lockTTL:  lockTTL,
		lockWait: lockWait,
		logger:   logger.With(slog.String("component", "settlement_service")),
	}
}

// Resolve settles a market under the declared outcome: it pays every winner
// its fixed PotentialWin from the treasury, marks losers, and flips the
// market resolved exactly once.
//
// The treasury must cover the full payout before anything mutates. A payout
// transfer failure marks that one bet `error` and continues; settlement
// never unwinds the payouts that already succeeded.
func (s *SettlementService) Resolve(ctx context.Context, marketID string, outcome domain.Outcome) (SettlementResult, error) {
	unlockMarket, err := s.locks.AcquireWait(ctx, "market:"+marketID, s.lockTTL, s.lockWait)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("settlement: market lock: %w", err)
	}
	defer unlockMarket()

	unlockTreasury, err := s.locks.AcquireWait(ctx, "treasury", s.lockTTL, s.lockWait)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("settlement: treasury lock: %w", err)
	}
	defer unlockTreasury()

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("settlement: load market: %w", err)
	}
	if market.Resolved {
		return SettlementResult{}, fmt.Errorf("settlement: market %s already resolved: %w",
			marketID, domain.ErrConflict)
	}
	if !outcome.ValidFor(market) {
		return SettlementResult{}, fmt.Errorf("settlement: outcome does not match market %s: %w",
			marketID, domain.ErrFailedPrecondition)
	}

	active, err := s.bets.ListActiveByMarket(ctx, marketID)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("settlement: list active bets: %w", err)
	}

	var winners, losers []domain.Bet
	var totalPayout float64
	for _, b := range active {
		if outcome.Wins(b) {
			winners = append(winners, b)
			totalPayout += b.PotentialWin
		} else {
			losers = append(losers, b)
		}
	}

	treasuryBalance, err := s.treasury.Balance(ctx)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("settlement: treasury balance: %w", err)
	}
	if treasuryBalance < totalPayout {
		return SettlementResult{}, fmt.Errorf("settlement: treasury %f cannot cover payouts %f: %w",
			treasuryBalance, totalPayout, domain.ErrInsufficientFunds)
	}

	result := SettlementResult{
		MarketID:     marketID,
		Outcome:      outcome,
		WinnersCount: len(winners),
		LosersCount:  len(losers),
		SettledAt:    time.Now().UTC(),
	}

	for _, bet := range winners {
		payment := s.payWinner(ctx, market, bet)
		if payment.Paid {
			result.TotalPaidOut += payment.Amount
		}
		result.Payments = append(result.Payments, payment)
	}

	for _, bet := range losers {
		if err := s.bets.SetStatus(ctx, bet.ID, domain.BetActive, domain.BetLost); err != nil {
			s.logger.ErrorContext(ctx, "mark bet lost",
				slog.String("bet", bet.ID), slog.String("error", err.Error()))
		}
	}

	if err := s.markets.Resolve(ctx, marketID, outcome); err != nil {
		return SettlementResult{}, fmt.Errorf("settlement: resolve market: %w", err)
	}

	publishEvent(ctx, s.bus, s.logger, ChannelSettlements, Event{
		Type:     "market_resolved",
		MarketID: marketID,
		Payload:  result,
	})
	if err := s.audit.Log(ctx, "market_resolved", map[string]any{
		"market_id":      marketID,
		"outcome":        outcome,
		"winners":        result.WinnersCount,
		"losers":         result.LosersCount,
		"total_paid_out": result.TotalPaidOut,
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit settlement", slog.String("error", err.Error()))
	}

	s.archiveReport(ctx, result)
	if s.notifier != nil {
		s.notifier.MarketResolved(ctx, marketID, result.WinnersCount, result.LosersCount, result.TotalPaidOut)
	}

	return result, nil
}

// payWinner runs one winner's two-phase payout. Failures mark the bet
// `error` for manual follow-up; they never roll back other payouts.
func (s *SettlementService) payWinner(ctx context.Context, market domain.Market, bet domain.Bet) Payment {
	payment := Payment{
		BetID:  bet.ID,
		UserID: bet.UserID,
		Amount: bet.PotentialWin,
	}

	fail := func(err error) Payment {
		payment.Error = err.Error()
		s.logger.ErrorContext(ctx, "payout failed",
			slog.String("bet", bet.ID), slog.String("error", err.Error()))
		if serr := s.bets.SetStatus(ctx, bet.ID, domain.BetActive, domain.BetError); serr != nil {
			s.logger.ErrorContext(ctx, "mark bet error",
				slog.String("bet", bet.ID), slog.String("error", serr.Error()))
		}
		return payment
	}

	user, err := s.users.GetByID(ctx, bet.UserID)
	if err != nil {
		return fail(fmt.Errorf("load user: %w", err))
	}

	intent := domain.TransferIntent{
		ID:          uuid.New().String(),
		Kind:        domain.IntentPayout,
		BetID:       bet.ID,
		MarketID:    market.ID,
		UserID:      user.ID,
		FromAddress: s.treasury.Address(),
		ToAddress:   user.LedgerAddress,
		Amount:      bet.PotentialWin,
		Status:      domain.IntentPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.intents.Create(ctx, intent); err != nil {
		return fail(fmt.Errorf("create intent: %w", err))
	}

	res, err := s.ledger.Transfer(ctx, s.treasury.Handle(), user.LedgerAddress, bet.PotentialWin)
	if err != nil {
		failIntent(ctx, s.intents, s.logger, intent.ID)
		return fail(fmt.Errorf("transfer: %w", err))
	}
	if err := s.intents.SetStatus(ctx, intent.ID, domain.IntentCommitted, res.Signature); err != nil {
		s.logger.ErrorContext(ctx, "mark intent committed",
			slog.String("intent", intent.ID), slog.String("error", err.Error()))
	}

	if err := s.bets.SetStatus(ctx, bet.ID, domain.BetActive, domain.BetWon); err != nil {
		// Funds are with the winner but the bet still reads active.
		markReconcile(ctx, s.intents, s.audit, s.notifier, s.logger, intent, res.Signature)
		payment.Signature = res.Signature
		payment.Paid = true
		payment.Error = fmt.Sprintf("paid but status write failed: %v", err)
		return payment
	}

	if balance, err := s.ledger.Balance(ctx, user.LedgerAddress); err == nil {
		if err := s.users.SetBalance(ctx, user.ID, balance); err != nil {
			s.logger.WarnContext(ctx, "store user balance",
				slog.String("user", user.ID), slog.String("error", err.Error()))
		}
	}

	payment.Signature = res.Signature
	payment.Paid = true
	return payment
}

// archiveReport writes the settlement result to object storage, best
// effort.
func (s *SettlementService) archiveReport(ctx context.Context, result SettlementResult) {
	if s.blob == nil {
		return
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal settlement report",
			slog.String("market", result.MarketID), slog.String("error", err.Error()))
		return
	}
	path := fmt.Sprintf("settlements/%s/%s.json",
		result.SettledAt.UTC().Format("2006-01-02"), result.MarketID)
	if err := s.blob.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		s.logger.ErrorContext(ctx, "archive settlement report",
			slog.String("market", result.MarketID), slog.String("error", err.Error()))
	}
}
