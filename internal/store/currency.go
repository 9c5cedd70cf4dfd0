package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/fxrates/internal/domain"
)

const currencyColumns = `code, name, symbol, is_active, created_at, updated_at`

// PgCurrencyRepository reads currencies from PostgreSQL.
type PgCurrencyRepository struct {
	pool *pgxpool.Pool
}

// NewPgCurrencyRepository creates a new PostgreSQL currency repository.
func NewPgCurrencyRepository(pool *pgxpool.Pool) *PgCurrencyRepository {
	return &PgCurrencyRepository{pool: pool}
}

// GetByCode returns the currency with the given code, active or not.
func (r *PgCurrencyRepository) GetByCode(ctx context.Context, code string) (domain.Currency, error) {
	var c domain.Currency
	err := r.pool.QueryRow(ctx,
		`SELECT `+currencyColumns+` FROM currencies WHERE code = $1`, code).
		Scan(&c.Code, &c.Name, &c.Symbol, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Currency{}, ErrNotFound
		}
		return domain.Currency{}, fmt.Errorf("getting currency %s: %w", code, err)
	}
	return c, nil
}

// ListActive returns active currencies ordered by code.
func (r *PgCurrencyRepository) ListActive(ctx context.Context) ([]domain.Currency, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+currencyColumns+` FROM currencies WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing active currencies: %w", err)
	}
	defer rows.Close()

	var currencies []domain.Currency
	for rows.Next() {
		var c domain.Currency
		if err := rows.Scan(&c.Code, &c.Name, &c.Symbol, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning currency: %w", err)
		}
		currencies = append(currencies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating currencies: %w", err)
	}
	return currencies, nil
}
