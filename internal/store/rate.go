package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/fxrates/internal/domain"
)

const rateColumns = `r.source_code, r.target_code, r.valuation_date, r.rate_value, r.provider, r.created_at, r.updated_at`

// PgRateRepository stores exchange rates in PostgreSQL.
type PgRateRepository struct {
	pool *pgxpool.Pool
}

// NewPgRateRepository creates a new PostgreSQL exchange rate repository.
func NewPgRateRepository(pool *pgxpool.Pool) *PgRateRepository {
	return &PgRateRepository{pool: pool}
}

// Upsert inserts the rate or overwrites the value of an existing record with the same identity.
func (r *PgRateRepository) Upsert(ctx context.Context, rate domain.ExchangeRate) error {
	k := rate.Key()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exchange_rates (source_code, target_code, valuation_date, rate_value, provider)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (source_code, target_code, valuation_date, provider)
		 DO UPDATE SET rate_value = EXCLUDED.rate_value, updated_at = NOW()`,
		k.SourceCode, k.TargetCode, domain.FormatDate(k.ValuationDate), domain.RoundRate(rate.RateValue).String(), k.Provider)
	if err != nil {
		return fmt.Errorf("upserting rate %s: %w", k, err)
	}
	return nil
}

// bulkColumns holds one parallel array per inserted column for an unnest() insert.
type bulkColumns struct {
	sources   []string
	targets   []string
	dates     []string
	values    []string
	providers []string
}

func toBulkColumns(rates []domain.ExchangeRate) bulkColumns {
	cols := bulkColumns{
		sources:   make([]string, 0, len(rates)),
		targets:   make([]string, 0, len(rates)),
		dates:     make([]string, 0, len(rates)),
		values:    make([]string, 0, len(rates)),
		providers: make([]string, 0, len(rates)),
	}
	for _, rate := range rates {
		k := rate.Key()
		cols.sources = append(cols.sources, k.SourceCode)
		cols.targets = append(cols.targets, k.TargetCode)
		cols.dates = append(cols.dates, domain.FormatDate(k.ValuationDate))
		cols.values = append(cols.values, domain.RoundRate(rate.RateValue).String())
		cols.providers = append(cols.providers, k.Provider)
	}
	return cols
}

// InsertIgnoreConflicts writes all rates in one statement. Records whose identity
// already exists are left untouched. Returns the number of newly inserted rows.
func (r *PgRateRepository) InsertIgnoreConflicts(ctx context.Context, rates []domain.ExchangeRate) (int64, error) {
	if len(rates) == 0 {
		return 0, nil
	}

	cols := toBulkColumns(rates)
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO exchange_rates (source_code, target_code, valuation_date, rate_value, provider)
		 SELECT * FROM unnest($1::text[], $2::text[], $3::date[], $4::numeric[], $5::text[])
		 ON CONFLICT (source_code, target_code, valuation_date, provider) DO NOTHING`,
		cols.sources, cols.targets, cols.dates, cols.values, cols.providers)
	if err != nil {
		return 0, fmt.Errorf("bulk inserting %d rates: %w", len(rates), err)
	}
	return tag.RowsAffected(), nil
}

// ListRange returns rates for sourceCode with valuation dates in [from, to],
// ordered by date then target code.
func (r *PgRateRepository) ListRange(ctx context.Context, sourceCode string, from, to time.Time) ([]domain.ExchangeRate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+rateColumns+`
		 FROM exchange_rates r
		 WHERE r.source_code = $1 AND r.valuation_date BETWEEN $2 AND $3
		 ORDER BY r.valuation_date, r.target_code, r.provider`,
		sourceCode, domain.FormatDate(from), domain.FormatDate(to))
	if err != nil {
		return nil, fmt.Errorf("listing rates for %s: %w", sourceCode, err)
	}
	defer rows.Close()

	var rates []domain.ExchangeRate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rates: %w", err)
	}
	return rates, nil
}

// findForDayQuery ranks records from active providers first, then by provider
// priority, then by most recent update. Records from unknown providers sort last.
const findForDayQuery = `SELECT ` + rateColumns + `
	 FROM exchange_rates r
	 LEFT JOIN providers p ON p.name = r.provider
	 WHERE r.source_code = $1 AND r.target_code = $2 AND r.valuation_date = $3
	 ORDER BY (p.is_active IS TRUE) DESC, p.priority NULLS LAST, r.updated_at DESC
	 LIMIT 1`

// FindForDay returns the cached rate for a pair on date. When several providers
// have a record, an active provider with the best registry priority wins.
func (r *PgRateRepository) FindForDay(ctx context.Context, sourceCode, targetCode string, date time.Time) (domain.ExchangeRate, error) {
	row := r.pool.QueryRow(ctx, findForDayQuery, sourceCode, targetCode, domain.FormatDate(date))
	rate, err := scanRate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExchangeRate{}, ErrNotFound
		}
		return domain.ExchangeRate{}, err
	}
	return rate, nil
}

func scanRate(row pgx.Row) (domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	err := row.Scan(&rate.SourceCode, &rate.TargetCode, &rate.ValuationDate, &rate.RateValue,
		&rate.Provider, &rate.CreatedAt, &rate.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExchangeRate{}, err
		}
		return domain.ExchangeRate{}, fmt.Errorf("scanning rate: %w", err)
	}
	return rate, nil
}
