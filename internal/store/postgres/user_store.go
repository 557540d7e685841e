package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polygens/wagerd/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create inserts a new user.
func (s *UserStore) Create(ctx context.Context, u domain.User) error {
	const query = `
		INSERT INTO users (id, username, ledger_address, encrypted_key, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		u.ID, u.Username, u.LedgerAddress, u.EncryptedKey, u.Balance, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert user %s: %w", u.ID, err)
	}
	return nil
}

// GetByID retrieves a user by its primary key.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, ledger_address, encrypted_key, balance, created_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.LedgerAddress, &u.EncryptedKey, &u.Balance, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

// SetBalance overwrites the user's mirrored ledger balance.
func (s *UserStore) SetBalance(ctx context.Context, id string, balance float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET balance = $2 WHERE id = $1`, id, balance)
	if err != nil {
		return fmt.Errorf("postgres: set balance for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Leaderboard returns the top users by balance, with their total bet counts.
func (s *UserStore) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	const query = `
		SELECT u.username, u.balance, COUNT(b.id)
		FROM users u
		LEFT JOIN bets b ON b.user_id = u.id
		GROUP BY u.id, u.username, u.balance
		ORDER BY u.balance DESC, u.username
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	rank := 0
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Balance, &e.TotalBets); err != nil {
			return nil, fmt.Errorf("postgres: scan leaderboard entry: %w", err)
		}
		rank++
		e.Rank = rank
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: leaderboard rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
