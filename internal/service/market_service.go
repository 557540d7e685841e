package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/polygens/wagerd/internal/domain"
	"github.com/polygens/wagerd/internal/odds"
	"github.com/polygens/wagerd/internal/treasury"
)

// CreateMarketInput describes a market to open.
type CreateMarketInput struct {
	Question string
	Category string
	Type     domain.MarketType
	EndDate  time.Time
	Trending bool
	ImageURL string

	// Options are the labels for a MULTIPLE_CHOICE market, 2 to 5 of them.
	// Must be empty for BINARY.
	Options []string
}

// MarketService covers market administration and the read side: creation,
// listings, user detail, the leaderboard, and treasury status.
type MarketService struct {
	markets  domain.MarketStore
	bets     domain.BetStore
	users    domain.UserStore
	treasury *treasury.Treasury
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(
	markets domain.MarketStore,
	bets domain.BetStore,
	users domain.UserStore,
	tr *treasury.Treasury,
	bus domain.SignalBus,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:  markets,
		bets:     bets,
		users:    users,
		treasury: tr,
		bus:      bus,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

// CreateMarket opens a new market. Binary markets start at even odds;
// multiple-choice options split 100 evenly with the last option absorbing
// the remainder.
func (s *MarketService) CreateMarket(ctx context.Context, in CreateMarketInput) (domain.Market, error) {
	if in.Question == "" {
		return domain.Market{}, fmt.Errorf("market: question is required: %w", domain.ErrFailedPrecondition)
	}

	now := time.Now().UTC()
	market := domain.Market{
		ID:        uuid.New().String(),
		Question:  in.Question,
		Category:  in.Category,
		Type:      in.Type,
		EndDate:   in.EndDate,
		Trending:  in.Trending,
		ImageURL:  in.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch in.Type {
	case domain.MarketBinary:
		if len(in.Options) > 0 {
			return domain.Market{}, fmt.Errorf("market: binary market takes no options: %w",
				domain.ErrFailedPrecondition)
		}
		market.YesOdds = 50
	case domain.MarketMultipleChoice:
		if len(in.Options) < 2 || len(in.Options) > 5 {
			return domain.Market{}, fmt.Errorf("market: need 2-5 options, got %d: %w",
				len(in.Options), domain.ErrFailedPrecondition)
		}
		split := odds.EvenSplit(len(in.Options))
		for i, label := range in.Options {
			market.Options = append(market.Options, domain.Option{
				ID:       uuid.New().String(),
				MarketID: market.ID,
				Label:    label,
				Odds:     split[i],
			})
		}
	default:
		return domain.Market{}, fmt.Errorf("market: unknown type %q: %w",
			in.Type, domain.ErrFailedPrecondition)
	}

	if err := s.markets.Create(ctx, market); err != nil {
		return domain.Market{}, fmt.Errorf("market: create: %w", err)
	}

	publishEvent(ctx, s.bus, s.logger, ChannelMarkets, Event{
		Type:     "market_created",
		MarketID: market.ID,
	})
	return market, nil
}

// GetMarket returns a market with its options.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market: get %s: %w", id, err)
	}
	return m, nil
}

// ListOpen returns unresolved markets, trending first.
func (s *MarketService) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListOpen(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market: list open: %w", err)
	}
	return markets, nil
}

// ListAll returns every market, resolved included.
func (s *MarketService) ListAll(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market: list all: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	n, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market: count: %w", err)
	}
	return n, nil
}

// GetBet returns a single bet.
func (s *MarketService) GetBet(ctx context.Context, id string) (domain.Bet, error) {
	b, err := s.bets.GetByID(ctx, id)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("market: get bet %s: %w", id, err)
	}
	return b, nil
}

// UserDetail returns a user together with their bet history.
func (s *MarketService) UserDetail(ctx context.Context, id string, opts domain.ListOpts) (domain.User, []domain.Bet, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, nil, fmt.Errorf("market: get user %s: %w", id, err)
	}
	bets, err := s.bets.ListByUser(ctx, id, opts)
	if err != nil {
		return domain.User{}, nil, fmt.Errorf("market: list user bets: %w", err)
	}
	return user, bets, nil
}

// defaultLeaderboardSize bounds the leaderboard when no limit is given.
const defaultLeaderboardSize = 10

// Leaderboard returns the top users by balance.
func (s *MarketService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	entries, err := s.users.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("market: leaderboard: %w", err)
	}
	return entries, nil
}

// TreasuryStatus reports the treasury address and live balance.
func (s *MarketService) TreasuryStatus(ctx context.Context) (treasury.Status, error) {
	st, err := s.treasury.Status(ctx)
	if err != nil {
		return treasury.Status{}, fmt.Errorf("market: treasury status: %w", err)
	}
	return st, nil
}
