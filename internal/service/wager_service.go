package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/polygens/wagerd/internal/crypto"
	"github.com/polygens/wagerd/internal/domain"
	"github.com/polygens/wagerd/internal/notify"
	"github.com/polygens/wagerd/internal/odds"
	"github.com/polygens/wagerd/internal/treasury"
)

// WagerConfig carries the tunables for bet placement.
type WagerConfig struct {
	MinStake        float64
	LockTTL         time.Duration
	LockWait        time.Duration
	PlaceRateLimit  int
	PlaceRateWindow time.Duration
}

// PlaceBetInput is a bet placement request. Exactly one of Side or OptionID
// must be set, matching the market's type.
type PlaceBetInput struct {
	UserID   string
	MarketID string
	Amount   float64
	Side     domain.BetSide
	OptionID string

	// IdempotencyKey, when set, makes a retried request return the bet
	// created by its first attempt instead of staking twice.
	IdempotencyKey string
}

// WagerService owns bet placement: preconditions, the stake transfer, the
// bet record, and the odds move.
type WagerService struct {
	markets  domain.MarketStore
	bets     domain.BetStore
	users    domain.UserStore
	intents  domain.IntentStore
	audit    domain.AuditStore
	locks    domain.LockManager
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	ledger   domain.LedgerClient
	keyring  *crypto.Keyring
	treasury *treasury.Treasury
	notifier *notify.Notifier
	cfg      WagerConfig
	logger   *slog.Logger
}

// NewWagerService creates a WagerService with all required dependencies.
func NewWagerService(
	markets domain.MarketStore,
	bets domain.BetStore,
	users domain.UserStore,
	intents domain.IntentStore,
	audit domain.AuditStore,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	ledger domain.LedgerClient,
	keyring *crypto.Keyring,
	tr *treasury.Treasury,
	notifier *notify.Notifier,
	cfg WagerConfig,
	logger *slog.Logger,
) *WagerService {
	return &WagerService{
		markets:  markets,
		bets:     bets,
		users:    users,
		intents:  intents,
		audit:    audit,
		locks:    locks,
		limiter:  limiter,
		bus:      bus,
		ledger:   ledger,
		keyring:  keyring,
		treasury: tr,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "wager_service")),
	}
}

// PlaceBet places a stake on a market. The stake moves on the ledger before
// any local record is written; a transfer failure aborts with nothing
// mutated, while a local failure after a committed transfer returns
// ErrInconsistent and flags the intent for reconciliation.
func (s *WagerService) PlaceBet(ctx context.Context, in PlaceBetInput) (domain.Bet, error) {
	allowed, err := s.limiter.Allow(ctx, "place:"+in.UserID, s.cfg.PlaceRateLimit, s.cfg.PlaceRateWindow)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("wager: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Bet{}, domain.ErrRateLimited
	}

	if in.IdempotencyKey != "" {
		if bet, ok, err := s.replay(ctx, in.IdempotencyKey); err != nil || ok {
			return bet, err
		}
	}

	unlock, err := s.locks.AcquireWait(ctx, "market:"+in.MarketID, s.cfg.LockTTL, s.cfg.LockWait)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("wager: market lock: %w", err)
	}
	defer unlock()

	market, err := s.markets.GetByID(ctx, in.MarketID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("wager: load market: %w", err)
	}
	if market.Resolved {
		return domain.Bet{}, fmt.Errorf("wager: market %s is resolved: %w", market.ID, domain.ErrConflict)
	}
	atOdds, err := stakeOdds(market, in)
	if err != nil {
		return domain.Bet{}, err
	}
	if in.Amount < s.cfg.MinStake {
		return domain.Bet{}, fmt.Errorf("wager: stake %f below minimum %f: %w",
			in.Amount, s.cfg.MinStake, domain.ErrFailedPrecondition)
	}

	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("wager: load user: %w", err)
	}
	balance, err := s.ledger.Balance(ctx, user.LedgerAddress)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("wager: user balance: %w", err)
	}
	if balance < in.Amount {
		return domain.Bet{}, fmt.Errorf("wager: balance %f below stake %f: %w",
			balance, in.Amount, domain.ErrFailedPrecondition)
	}

	betID := uuid.New().String()
	now := time.Now().UTC()
	intent := domain.TransferIntent{
		ID:             uuid.New().String(),
		Kind:           domain.IntentStake,
		BetID:          betID,
		MarketID:       market.ID,
		UserID:         user.ID,
		FromAddress:    user.LedgerAddress,
		ToAddress:      s.treasury.Address(),
		Amount:         in.Amount,
		Status:         domain.IntentPending,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
	}
	if err := s.intents.Create(ctx, intent); err != nil {
		if errors.Is(err, domain.ErrConflict) && in.IdempotencyKey != "" {
			// A concurrent attempt with the same key won the race.
			if bet, ok, rerr := s.replay(ctx, in.IdempotencyKey); rerr == nil && ok {
				return bet, nil
			}
			return domain.Bet{}, fmt.Errorf("wager: duplicate placement: %w", domain.ErrConflict)
		}
		return domain.Bet{}, fmt.Errorf("wager: create intent: %w", err)
	}

	handle, err := s.keyring.HandleFromEncrypted(user.EncryptedKey)
	if err != nil {
		failIntent(ctx, s.intents, s.logger, intent.ID)
		return domain.Bet{}, fmt.Errorf("wager: user key: %v: %w", err, domain.ErrAborted)
	}

	res, err := s.ledger.Transfer(ctx, handle, s.treasury.Address(), in.Amount)
	if err != nil {
		failIntent(ctx, s.intents, s.logger, intent.ID)
		return domain.Bet{}, fmt.Errorf("wager: stake transfer: %v: %w", err, domain.ErrAborted)
	}
	if err := s.intents.SetStatus(ctx, intent.ID, domain.IntentCommitted, res.Signature); err != nil {
		s.logger.ErrorContext(ctx, "mark intent committed",
			slog.String("intent", intent.ID), slog.String("error", err.Error()))
	}

	bet := domain.Bet{
		ID:           betID,
		UserID:       user.ID,
		MarketID:     market.ID,
		Amount:       in.Amount,
		Side:         in.Side,
		OptionID:     in.OptionID,
		PotentialWin: odds.PotentialWin(in.Amount, atOdds),
		OddsAtBet:    atOdds,
		Status:       domain.BetActive,
		CreatedAt:    now,
	}
	if err := s.bets.Create(ctx, bet); err != nil {
		// Funds moved but the bet record did not land. Flag the intent and
		// hand off to a human; an automatic reversal could pay out twice.
		markReconcile(ctx, s.intents, s.audit, s.notifier, s.logger, intent, res.Signature)
		return domain.Bet{}, fmt.Errorf("wager: persist bet after committed transfer: %v: %w",
			err, domain.ErrInconsistent)
	}

	s.refreshBalance(ctx, user)
	s.applyStakeOdds(ctx, market, in)

	publishEvent(ctx, s.bus, s.logger, ChannelBets, Event{
		Type:     "bet_placed",
		MarketID: market.ID,
		BetID:    bet.ID,
		Payload:  bet,
	})
	if err := s.audit.Log(ctx, "bet_placed", map[string]any{
		"bet_id":    bet.ID,
		"market_id": market.ID,
		"user_id":   user.ID,
		"amount":    in.Amount,
		"odds":      atOdds,
		"signature": res.Signature,
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit bet placement", slog.String("error", err.Error()))
	}

	return bet, nil
}

// replay looks up a previous attempt under the same idempotency key. It
// returns (bet, true, nil) when the first attempt committed and its bet
// exists; (zero, false, nil) when there is no earlier attempt; an error for
// anything in between.
func (s *WagerService) replay(ctx context.Context, key string) (domain.Bet, bool, error) {
	intent, err := s.intents.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Bet{}, false, nil
	}
	if err != nil {
		return domain.Bet{}, false, fmt.Errorf("wager: idempotency lookup: %w", err)
	}

	switch intent.Status {
	case domain.IntentCommitted:
		bet, err := s.bets.GetByID(ctx, intent.BetID)
		if err != nil {
			return domain.Bet{}, false, fmt.Errorf("wager: idempotent bet lookup: %w", err)
		}
		return bet, true, nil
	case domain.IntentFailed:
		// The first attempt never moved funds; let this one proceed fresh.
		return domain.Bet{}, false, nil
	default:
		// Pending or reconcile: the first attempt is unfinished or needs a
		// human. Retrying now could double-spend.
		return domain.Bet{}, false, fmt.Errorf("wager: earlier attempt is %s: %w",
			intent.Status, domain.ErrConflict)
	}
}

// stakeOdds validates the side/option selection against the market type and
// returns the odds snapshot for the position.
func stakeOdds(m domain.Market, in PlaceBetInput) (int, error) {
	switch m.Type {
	case domain.MarketBinary:
		if in.OptionID != "" || (in.Side != domain.SideYes && in.Side != domain.SideNo) {
			return 0, fmt.Errorf("wager: binary market takes a yes/no side: %w",
				domain.ErrFailedPrecondition)
		}
		return odds.SideOdds(m.YesOdds, in.Side), nil
	case domain.MarketMultipleChoice:
		if in.Side != "" || in.OptionID == "" {
			return 0, fmt.Errorf("wager: multiple-choice market takes an option: %w",
				domain.ErrFailedPrecondition)
		}
		opt, ok := m.OptionByID(in.OptionID)
		if !ok {
			return 0, fmt.Errorf("wager: option %s: %w", in.OptionID, domain.ErrNotFound)
		}
		return opt.Odds, nil
	default:
		return 0, fmt.Errorf("wager: unknown market type %q: %w", m.Type, domain.ErrFailedPrecondition)
	}
}

// applyStakeOdds moves volume and odds for a landed stake. The bet and the
// funds are already safe; a failure here only delays the quote and is
// logged, not returned.
func (s *WagerService) applyStakeOdds(ctx context.Context, m domain.Market, in PlaceBetInput) {
	update := domain.StakeUpdate{
		MarketID:    m.ID,
		VolumeDelta: in.Amount,
	}
	switch m.Type {
	case domain.MarketBinary:
		newYes := odds.AdjustBinary(m.YesOdds, in.Side, in.Amount)
		update.YesOdds = &newYes
	case domain.MarketMultipleChoice:
		update.OptionID = in.OptionID
		volumes := make([]float64, len(m.Options))
		for i, o := range m.Options {
			volumes[i] = o.Volume
			if o.ID == in.OptionID {
				volumes[i] += in.Amount
			}
		}
		rewritten := odds.RecomputeMulti(volumes)
		update.OptionOdds = make(map[string]int, len(m.Options))
		for i, o := range m.Options {
			update.OptionOdds[o.ID] = rewritten[i]
		}
	}

	if err := s.markets.UpdateStake(ctx, update); err != nil {
		s.logger.ErrorContext(ctx, "apply stake odds",
			slog.String("market", m.ID), slog.String("error", err.Error()))
		return
	}
	publishEvent(ctx, s.bus, s.logger, ChannelMarkets, Event{
		Type:     "odds_moved",
		MarketID: m.ID,
	})
}

// refreshBalance mirrors the user's ledger balance into the store, best
// effort.
func (s *WagerService) refreshBalance(ctx context.Context, user domain.User) {
	balance, err := s.ledger.Balance(ctx, user.LedgerAddress)
	if err != nil {
		s.logger.WarnContext(ctx, "refresh user balance",
			slog.String("user", user.ID), slog.String("error", err.Error()))
		return
	}
	if err := s.users.SetBalance(ctx, user.ID, balance); err != nil {
		s.logger.WarnContext(ctx, "store user balance",
			slog.String("user", user.ID), slog.String("error", err.Error()))
	}
}

