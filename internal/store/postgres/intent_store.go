package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polygens/wagerd/internal/domain"
)

// IntentStore implements domain.IntentStore using PostgreSQL.
type IntentStore struct {
	pool *pgxpool.Pool
}

// NewIntentStore creates an IntentStore backed by the given connection pool.
func NewIntentStore(pool *pgxpool.Pool) *IntentStore {
	return &IntentStore{pool: pool}
}

const intentCols = `id, kind, bet_id, market_id, user_id, from_address,
	to_address, amount, status, COALESCE(idempotency_key, ''), signature,
	created_at, updated_at`

// Create inserts a pending transfer intent. A duplicate idempotency key
// surfaces as ErrConflict so the caller can look up the first attempt.
func (s *IntentStore) Create(ctx context.Context, in domain.TransferIntent) error {
	const query = `
		INSERT INTO transfer_intents (
			id, kind, bet_id, market_id, user_id, from_address,
			to_address, amount, status, idempotency_key, signature,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $12)`

	_, err := s.pool.Exec(ctx, query,
		in.ID, string(in.Kind), in.BetID, in.MarketID, in.UserID, in.FromAddress,
		in.ToAddress, in.Amount, string(in.Status), in.IdempotencyKey, in.Signature,
		in.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("postgres: insert intent %s: %w", in.ID, err)
	}
	return nil
}

// SetStatus moves an intent to a new status, recording the transaction
// signature when one exists.
func (s *IntentStore) SetStatus(ctx context.Context, id string, status domain.IntentStatus, signature string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transfer_intents SET status = $2, signature = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, string(status), signature)
	if err != nil {
		return fmt.Errorf("postgres: set intent %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanIntent(row pgx.Row) (domain.TransferIntent, error) {
	var in domain.TransferIntent
	var kind, status string
	err := row.Scan(
		&in.ID, &kind, &in.BetID, &in.MarketID, &in.UserID, &in.FromAddress,
		&in.ToAddress, &in.Amount, &status, &in.IdempotencyKey, &in.Signature,
		&in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		return domain.TransferIntent{}, err
	}
	in.Kind = domain.IntentKind(kind)
	in.Status = domain.IntentStatus(status)
	return in, nil
}

// GetByIdempotencyKey retrieves the intent created under the given key.
// Failed attempts can coexist with a later retry; the live one wins.
func (s *IntentStore) GetByIdempotencyKey(ctx context.Context, key string) (domain.TransferIntent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+intentCols+` FROM transfer_intents WHERE idempotency_key = $1
		 ORDER BY (status = 'failed'), created_at DESC LIMIT 1`, key)
	in, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TransferIntent{}, domain.ErrNotFound
		}
		return domain.TransferIntent{}, fmt.Errorf("postgres: get intent by key: %w", err)
	}
	return in, nil
}

// ListByStatus returns intents in the given status, oldest first. Used to
// review reconcile-flagged transfers.
func (s *IntentStore) ListByStatus(ctx context.Context, status domain.IntentStatus, opts domain.ListOpts) ([]domain.TransferIntent, error) {
	query := `SELECT ` + intentCols + ` FROM transfer_intents
		WHERE status = $1 ORDER BY created_at`
	args := []any{string(status)}
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

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list intents: %w", err)
	}
	defer rows.Close()

	var intents []domain.TransferIntent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan intent: %w", err)
		}
		intents = append(intents, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list intents rows: %w", err)
	}
	return intents, nil
}

// Compile-time interface check.
var _ domain.IntentStore = (*IntentStore)(nil)
