package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polygens/wagerd/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betCols = `id, user_id, market_id, amount, side, option_id,
	potential_win, odds_at_bet, status, created_at`

// Create inserts a new bet.
func (s *BetStore) Create(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (
			id, user_id, market_id, amount, side, option_id,
			potential_win, odds_at_bet, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.UserID, b.MarketID, b.Amount, string(b.Side), b.OptionID,
		b.PotentialWin, b.OddsAtBet, string(b.Status), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bet %s: %w", b.ID, err)
	}
	return nil
}

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var side, status string
	err := row.Scan(
		&b.ID, &b.UserID, &b.MarketID, &b.Amount, &side, &b.OptionID,
		&b.PotentialWin, &b.OddsAtBet, &status, &b.CreatedAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Side = domain.BetSide(side)
	b.Status = domain.BetStatus(status)
	return b, nil
}

// GetByID retrieves a bet by its primary key.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// ListByMarket returns every bet on a market, oldest first.
func (s *BetStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	return s.listBets(ctx,
		`SELECT `+betCols+` FROM bets WHERE market_id = $1 ORDER BY created_at`,
		marketID)
}

// ListActiveByMarket returns the active bets on a market, oldest first.
func (s *BetStore) ListActiveByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	return s.listBets(ctx,
		`SELECT `+betCols+` FROM bets
		 WHERE market_id = $1 AND status = 'active' ORDER BY created_at`,
		marketID)
}

// ListByUser returns a user's bets, newest first, with pagination.
func (s *BetStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	argIdx := 2
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return s.listBets(ctx, query, args...)
}

func (s *BetStore) listBets(ctx context.Context, query string, args ...any) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return bets, nil
}

// SetStatus transitions a bet from the expected status to the new one. A
// zero-row update means the bet is missing or no longer in `from`.
func (s *BetStore) SetStatus(ctx context.Context, id string, from, to domain.BetStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("postgres: set bet %s status: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check bet %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

// CashOut flips an active bet to cashed_out and records the net amount paid
// in potential_win.
func (s *BetStore) CashOut(ctx context.Context, id string, netPaid float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET status = 'cashed_out', potential_win = $2
		 WHERE id = $1 AND status = 'active'`,
		id, netPaid)
	if err != nil {
		return fmt.Errorf("postgres: cash out bet %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check bet %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

// Compile-time interface check.
var _ domain.BetStore = (*BetStore)(nil)
