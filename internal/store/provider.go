package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/fxrates/internal/domain"
)

// PgProviderRepository reads the provider registry from PostgreSQL.
type PgProviderRepository struct {
	pool *pgxpool.Pool
}

// NewPgProviderRepository creates a new PostgreSQL provider repository.
func NewPgProviderRepository(pool *pgxpool.Pool) *PgProviderRepository {
	return &PgProviderRepository{pool: pool}
}

// ListActive returns active providers ordered by ascending priority, then name.
// A non-empty name restricts the result to that provider.
func (r *PgProviderRepository) ListActive(ctx context.Context, name string) ([]domain.Provider, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, priority, is_active, created_at, updated_at
		 FROM providers
		 WHERE is_active AND ($1 = '' OR name = $1)
		 ORDER BY priority, name`, name)
	if err != nil {
		return nil, fmt.Errorf("listing active providers: %w", err)
	}
	defer rows.Close()

	var providers []domain.Provider
	for rows.Next() {
		var p domain.Provider
		if err := rows.Scan(&p.Name, &p.Priority, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning provider: %w", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating providers: %w", err)
	}
	return providers, nil
}
