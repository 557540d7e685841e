package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/polygens/wagerd/internal/domain"
)

// seedMarket is one starter market.
type seedMarket struct {
	question string
	category string
	yesOdds  int
	endDate  string
	trending bool
}

// seedMarkets is the starter catalogue loaded by seed mode.
var seedMarkets = []seedMarket{
	{"Will Bitcoin reach $200k by end of 2025?", "Crypto", 35, "2025-12-31", true},
	{"Will OpenAI release GPT-5 before July 2025?", "Tech", 55, "2025-06-30", true},
	{"Will Tesla stock reach $600 in 2025?", "Finance", 28, "2025-12-31", false},
	{"Will there be a Fed rate cut in Q1 2025?", "Finance", 72, "2025-03-31", true},
	{"Will Ethereum flip Bitcoin market cap in 2025?", "Crypto", 12, "2025-12-31", false},
	{"Will Apple release a foldable iPhone in 2025?", "Tech", 22, "2025-12-31", true},
	{"Will Solana reach $500 in 2025?", "Crypto", 40, "2025-12-31", true},
	{"Will AI replace 10% of US jobs by 2026?", "Tech", 45, "2026-01-01", false},
	{"Will Manchester City win Premier League 2024/25?", "Sports", 38, "2025-05-25", true},
	{"Will SpaceX land humans on Mars before 2030?", "Tech", 18, "2029-12-31", false},
}

// Seed loads the starter market set. It refuses to run on a non-empty
// markets table so a stray invocation cannot pollute production data.
func (s *MarketService) Seed(ctx context.Context) (int, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market: count before seed: %w", err)
	}
	if count > 0 {
		return 0, fmt.Errorf("market: %d markets already exist: %w", count, domain.ErrConflict)
	}

	now := time.Now().UTC()
	created := 0
	for _, sm := range seedMarkets {
		endDate, err := time.Parse("2006-01-02", sm.endDate)
		if err != nil {
			return created, fmt.Errorf("market: parse seed end date %q: %w", sm.endDate, err)
		}
		m := domain.Market{
			ID:        uuid.New().String(),
			Question:  sm.question,
			Category:  sm.category,
			Type:      domain.MarketBinary,
			YesOdds:   sm.yesOdds,
			EndDate:   endDate,
			Trending:  sm.trending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.markets.Create(ctx, m); err != nil {
			return created, fmt.Errorf("market: seed %q: %w", sm.question, err)
		}
		created++
		s.logger.InfoContext(ctx, "seeded market",
			slog.String("id", m.ID),
			slog.String("question", m.Question),
		)
	}
	return created, nil
}
