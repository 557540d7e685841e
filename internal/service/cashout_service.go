package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/polygens/wagerd/internal/domain"
	"github.com/polygens/wagerd/internal/notify"
	"github.com/polygens/wagerd/internal/odds"
	"github.com/polygens/wagerd/internal/treasury"
)

// Quote is a non-binding cash-out valuation at current odds.
type Quote struct {
	BetID       string  `json:"betId"`
	Amount      float64 `json:"amount"`
	OddsAtBet   int     `json:"oddsAtBet"`
	CurrentOdds int     `json:"currentOdds"`
	Gross       float64 `json:"gross"`
	Fee         float64 `json:"fee"`
	Net         float64 `json:"net"`
}

// Receipt records an executed cash-out.
type Receipt struct {
	Bet       domain.Bet `json:"bet"`
	Gross     float64    `json:"gross"`
	Fee       float64    `json:"fee"`
	Net       float64    `json:"net"`
	Signature string     `json:"signature"`
}

// CashOutService prices and executes early exits of active bets.
type CashOutService struct {
	markets  domain.MarketStore
	bets     domain.BetStore
	users    domain.UserStore
	intents  domain.IntentStore
	audit    domain.AuditStore
	locks    domain.LockManager
	bus      domain.SignalBus
	ledger   domain.LedgerClient
	treasury *treasury.Treasury
	notifier *notify.Notifier
	lockTTL  time.Duration
	lockWait time.Duration
	logger   *slog.Logger
}

// NewCashOutService creates a CashOutService with all required dependencies.
func NewCashOutService(
	markets domain.MarketStore,
	bets domain.BetStore,
	users domain.UserStore,
	intents domain.IntentStore,
	audit domain.AuditStore,
	locks domain.LockManager,
	bus domain.SignalBus,
	ledger domain.LedgerClient,
	tr *treasury.Treasury,
	notifier *notify.Notifier,
	lockTTL, lockWait time.Duration,
	logger *slog.Logger,
) *CashOutService {
	return &CashOutService{
		markets:  markets,
		bets:     bets,
		users:    users,
		intents:  intents,
		audit:    audit,
		locks:    locks,
		bus:      bus,
		ledger:   ledger,
		treasury: tr,
		notifier: notifier,
		lockTTL:  lockTTL,
		lockWait: lockWait,
		logger:   logger.With(slog.String("component", "cashout_service")),
	}
}

// QuoteBet prices the early exit of an active bet at current odds. Quotes
// take no lock; the price is only firmed up under lock during Execute.
func (s *CashOutService) QuoteBet(ctx context.Context, betID string) (Quote, error) {
	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return Quote{}, fmt.Errorf("cashout: load bet: %w", err)
	}
	market, err := s.markets.GetByID(ctx, bet.MarketID)
	if err != nil {
		return Quote{}, fmt.Errorf("cashout: load market: %w", err)
	}

	val, current, err := s.value(bet, market)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		BetID:       bet.ID,
		Amount:      bet.Amount,
		OddsAtBet:   bet.OddsAtBet,
		CurrentOdds: current,
		Gross:       val.Gross,
		Fee:         val.Fee,
		Net:         val.Net,
	}, nil
}

// Execute cashes out an active bet: values it under the market lock, pays
// the net amount from the treasury, flips the bet to cashed_out, and removes
// the stake from market volume. Only the bet's owner may exit it.
func (s *CashOutService) Execute(ctx context.Context, betID, userID string) (Receipt, error) {
	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return Receipt{}, fmt.Errorf("cashout: load bet: %w", err)
	}
	if bet.UserID != userID {
		return Receipt{}, fmt.Errorf("cashout: bet %s does not belong to user %s: %w",
			betID, userID, domain.ErrUnauthorized)
	}

	unlockMarket, err := s.locks.AcquireWait(ctx, "market:"+bet.MarketID, s.lockTTL, s.lockWait)
	if err != nil {
		return Receipt{}, fmt.Errorf("cashout: market lock: %w", err)
	}
	defer unlockMarket()

	unlockTreasury, err := s.locks.AcquireWait(ctx, "treasury", s.lockTTL, s.lockWait)
	if err != nil {
		return Receipt{}, fmt.Errorf("cashout: treasury lock: %w", err)
	}
	defer unlockTreasury()

	// Re-read under the locks; the bet may have settled or cashed out while
	// we waited.
	bet, err = s.bets.GetByID(ctx, betID)
	if err != nil {
		return Receipt{}, fmt.Errorf("cashout: reload bet: %w", err)
	}
	market, err := s.markets.GetByID(ctx, bet.MarketID)
	if err != nil {
		return Receipt{}, fmt.Errorf("cashout: load market: %w", err)
	}
	val, _, err := s.value(bet, market)
	if err != nil {
		return Receipt{}, err
	}
	if val.Net <= 0 {
		return Receipt{}, fmt.Errorf("cashout: non-positive value %f: %w",
			val.Net, domain.ErrFailedPrecondition)
	}

	treasuryBalance, err := s.treasury.Balance(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("cashout: treasury balance: %w", err)
	}
	if treasuryBalance < val.Net {
		return Receipt{}, fmt.Errorf("cashout: treasury %f cannot cover %f: %w",
			treasuryBalance, val.Net, domain.ErrInsufficientFunds)
	}

	user, err := s.users.GetByID(ctx, bet.UserID)
	if err != nil {
		return Receipt{}, fmt.Errorf("cashout: load user: %w", err)
	}

	intent := domain.TransferIntent{
		ID:          uuid.New().String(),
		Kind:        domain.IntentCashOut,
		BetID:       bet.ID,
		MarketID:    market.ID,
		UserID:      user.ID,
		FromAddress: s.treasury.Address(),
		ToAddress:   user.LedgerAddress,
		Amount:      val.Net,
		Status:      domain.IntentPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.intents.Create(ctx, intent); err != nil {
		return Receipt{}, fmt.Errorf("cashout: create intent: %w", err)
	}

	res, err := s.ledger.Transfer(ctx, s.treasury.Handle(), user.LedgerAddress, val.Net)
	if err != nil {
		failIntent(ctx, s.intents, s.logger, intent.ID)
		return Receipt{}, fmt.Errorf("cashout: payout transfer: %v: %w", err, domain.ErrAborted)
	}
	if err := s.intents.SetStatus(ctx, intent.ID, domain.IntentCommitted, res.Signature); err != nil {
		s.logger.ErrorContext(ctx, "mark intent committed",
			slog.String("intent", intent.ID), slog.String("error", err.Error()))
	}

	if err := s.bets.CashOut(ctx, bet.ID, val.Net); err != nil {
		markReconcile(ctx, s.intents, s.audit, s.notifier, s.logger, intent, res.Signature)
		return Receipt{}, fmt.Errorf("cashout: persist after committed transfer: %v: %w",
			err, domain.ErrInconsistent)
	}
	bet.Status = domain.BetCashedOut
	bet.PotentialWin = val.Net

	s.refreshBalance(ctx, user)
	s.removeStake(ctx, market, bet)

	publishEvent(ctx, s.bus, s.logger, ChannelBets, Event{
		Type:     "bet_cashed_out",
		MarketID: market.ID,
		BetID:    bet.ID,
		Payload:  Receipt{Bet: bet, Gross: val.Gross, Fee: val.Fee, Net: val.Net},
	})
	if err := s.audit.Log(ctx, "bet_cashed_out", map[string]any{
		"bet_id":    bet.ID,
		"market_id": market.ID,
		"user_id":   user.ID,
		"gross":     val.Gross,
		"fee":       val.Fee,
		"net":       val.Net,
		"signature": res.Signature,
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit cash-out", slog.String("error", err.Error()))
	}

	return Receipt{
		Bet:       bet,
		Gross:     val.Gross,
		Fee:       val.Fee,
		Net:       val.Net,
		Signature: res.Signature,
	}, nil
}

// value prices the bet against the market, enforcing the state
// preconditions shared by quote and execute.
func (s *CashOutService) value(bet domain.Bet, market domain.Market) (odds.Valuation, int, error) {
	if bet.Status != domain.BetActive {
		return odds.Valuation{}, 0, fmt.Errorf("cashout: bet is %s: %w",
			bet.Status, domain.ErrConflict)
	}
	if market.Resolved {
		return odds.Valuation{}, 0, fmt.Errorf("cashout: market %s is resolved: %w",
			market.ID, domain.ErrConflict)
	}

	var current int
	switch market.Type {
	case domain.MarketBinary:
		current = odds.SideOdds(market.YesOdds, bet.Side)
	case domain.MarketMultipleChoice:
		opt, ok := market.OptionByID(bet.OptionID)
		if !ok {
			return odds.Valuation{}, 0, fmt.Errorf("cashout: option %s: %w",
				bet.OptionID, domain.ErrNotFound)
		}
		current = opt.Odds
	default:
		return odds.Valuation{}, 0, fmt.Errorf("cashout: unknown market type %q: %w",
			market.Type, domain.ErrFailedPrecondition)
	}

	return odds.CashOutValue(bet.Amount, bet.OddsAtBet, current), current, nil
}

// removeStake takes the cashed-out stake back out of market volume and
// requotes. Binary markets requote from the remaining active bets; multiple
// choice requotes from the decremented option volumes. The payout is already
// final, so failures here are logged, not returned.
func (s *CashOutService) removeStake(ctx context.Context, market domain.Market, bet domain.Bet) {
	update := domain.StakeUpdate{
		MarketID:    market.ID,
		VolumeDelta: -bet.Amount,
	}

	switch market.Type {
	case domain.MarketBinary:
		active, err := s.bets.ListActiveByMarket(ctx, market.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "list active bets for requote",
				slog.String("market", market.ID), slog.String("error", err.Error()))
			return
		}
		var yesVol, noVol float64
		for _, b := range active {
			if b.Side == domain.SideYes {
				yesVol += b.Amount
			} else {
				noVol += b.Amount
			}
		}
		newYes := odds.RecomputeBinary(yesVol, noVol)
		update.YesOdds = &newYes
	case domain.MarketMultipleChoice:
		update.OptionID = bet.OptionID
		volumes := make([]float64, len(market.Options))
		for i, o := range market.Options {
			volumes[i] = o.Volume
			if o.ID == bet.OptionID {
				volumes[i] -= bet.Amount
				if volumes[i] < 0 {
					volumes[i] = 0
				}
			}
		}
		rewritten := odds.RecomputeMulti(volumes)
		update.OptionOdds = make(map[string]int, len(market.Options))
		for i, o := range market.Options {
			update.OptionOdds[o.ID] = rewritten[i]
		}
	}

	if err := s.markets.UpdateStake(ctx, update); err != nil {
		s.logger.ErrorContext(ctx, "remove stake",
			slog.String("market", market.ID), slog.String("error", err.Error()))
		return
	}
	publishEvent(ctx, s.bus, s.logger, ChannelMarkets, Event{
		Type:     "odds_moved",
		MarketID: market.ID,
	})
}

func (s *CashOutService) refreshBalance(ctx context.Context, user domain.User) {
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
