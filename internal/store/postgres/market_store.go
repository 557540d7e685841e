package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polygens/wagerd/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Create inserts a market and its options in one transaction.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create market: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertMarket = `
		INSERT INTO markets (
			id, question, category, type, yes_odds, volume,
			end_date, resolved, trending, image_url, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $9, $10, $10)`

	_, err = tx.Exec(ctx, insertMarket,
		m.ID, m.Question, m.Category, string(m.Type), m.YesOdds, m.Volume,
		m.EndDate, m.Trending, m.ImageURL, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert market %s: %w", m.ID, err)
	}

	const insertOption = `
		INSERT INTO market_options (id, market_id, label, odds, volume)
		VALUES ($1, $2, $3, $4, $5)`
	for _, o := range m.Options {
		if _, err := tx.Exec(ctx, insertOption, o.ID, m.ID, o.Label, o.Odds, o.Volume); err != nil {
			return fmt.Errorf("postgres: insert option %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit create market %s: %w", m.ID, err)
	}
	return nil
}

const marketCols = `id, question, category, type, yes_odds, volume,
	end_date, resolved, outcome_kind, outcome_option_id,
	trending, image_url, created_at, updated_at`

// scanMarket scans a single market row, without options.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m               domain.Market
		marketType      string
		outcomeKind     *string
		outcomeOptionID *string
	)
	err := row.Scan(
		&m.ID, &m.Question, &m.Category, &marketType, &m.YesOdds, &m.Volume,
		&m.EndDate, &m.Resolved, &outcomeKind, &outcomeOptionID,
		&m.Trending, &m.ImageURL, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Type = domain.MarketType(marketType)
	if outcomeKind != nil && *outcomeKind != "" {
		oc := domain.Outcome{Kind: domain.OutcomeKind(*outcomeKind)}
		if outcomeOptionID != nil {
			oc.OptionID = *outcomeOptionID
		}
		m.Outcome = &oc
	}
	return m, nil
}

// GetByID retrieves a market and its options.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}

	opts, err := s.optionsFor(ctx, []string{id})
	if err != nil {
		return domain.Market{}, err
	}
	m.Options = opts[id]
	return m, nil
}

// ListOpen returns unresolved markets, trending first, newest first within
// each group.
func (s *MarketStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE resolved = FALSE
		ORDER BY trending DESC, created_at DESC`
	return s.list(ctx, query, opts)
}

// List returns all markets, newest first.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets ORDER BY created_at DESC`
	return s.list(ctx, query, opts)
}

func (s *MarketStore) list(ctx context.Context, query string, opts domain.ListOpts) ([]domain.Market, error) {
	args := []any{}
	argIdx := 1
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
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	var ids []string
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}

	optionsByMarket, err := s.optionsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range markets {
		markets[i].Options = optionsByMarket[markets[i].ID]
	}
	return markets, nil
}

// optionsFor loads options for the given market ids, keyed by market id.
func (s *MarketStore) optionsFor(ctx context.Context, marketIDs []string) (map[string][]domain.Option, error) {
	if len(marketIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, label, odds, volume
		 FROM market_options WHERE market_id = ANY($1) ORDER BY id`, marketIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: list options: %w", err)
	}
	defer rows.Close()

	byMarket := make(map[string][]domain.Option)
	for rows.Next() {
		var o domain.Option
		if err := rows.Scan(&o.ID, &o.MarketID, &o.Label, &o.Odds, &o.Volume); err != nil {
			return nil, fmt.Errorf("postgres: scan option: %w", err)
		}
		byMarket[o.MarketID] = append(byMarket[o.MarketID], o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list options rows: %w", err)
	}
	return byMarket, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// UpdateStake applies a volume delta and rewritten odds in one transaction.
// Volumes are floored at zero.
func (s *MarketStore) UpdateStake(ctx context.Context, u domain.StakeUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin stake update: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE markets SET
			volume = GREATEST(0, volume + $2),
			yes_odds = COALESCE($3, yes_odds),
			updated_at = NOW()
		 WHERE id = $1`,
		u.MarketID, u.VolumeDelta, u.YesOdds)
	if err != nil {
		return fmt.Errorf("postgres: update market stake %s: %w", u.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if u.OptionID != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE market_options SET volume = GREATEST(0, volume + $2)
			 WHERE id = $1 AND market_id = $3`,
			u.OptionID, u.VolumeDelta, u.MarketID); err != nil {
			return fmt.Errorf("postgres: update option volume %s: %w", u.OptionID, err)
		}
	}

	for optID, odds := range u.OptionOdds {
		if _, err := tx.Exec(ctx,
			`UPDATE market_options SET odds = $2 WHERE id = $1 AND market_id = $3`,
			optID, odds, u.MarketID); err != nil {
			return fmt.Errorf("postgres: update option odds %s: %w", optID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit stake update %s: %w", u.MarketID, err)
	}
	return nil
}

// Resolve marks the market resolved exactly once. The conditional UPDATE is
// the concurrency guard: the second caller matches zero rows and gets
// ErrConflict.
func (s *MarketStore) Resolve(ctx context.Context, id string, outcome domain.Outcome) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET
			resolved = TRUE,
			outcome_kind = $2,
			outcome_option_id = $3,
			updated_at = NOW()
		 WHERE id = $1 AND resolved = FALSE`,
		id, string(outcome.Kind), outcome.OptionID)
	if err != nil {
		return fmt.Errorf("postgres: resolve market %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check market %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
