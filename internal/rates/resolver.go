// Package rates resolves a single exchange rate through the provider registry
// with priority fallback, caching every successful result.
package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/fxrates/internal/domain"
	"github.com/mtlprog/fxrates/internal/metrics"
	"github.com/mtlprog/fxrates/internal/provider"
	"github.com/mtlprog/fxrates/internal/store"
)

var (
	// ErrCurrencyNotFound indicates the source or target code is unknown.
	ErrCurrencyNotFound = errors.New("currency not found")
	// ErrNoRate indicates no active provider produced a rate.
	ErrNoRate = errors.New("no rate available")
)

// CurrencyRepository looks up currencies by code.
type CurrencyRepository interface {
	GetByCode(ctx context.Context, code string) (domain.Currency, error)
}

// ProviderRepository lists active providers ordered by priority.
type ProviderRepository interface {
	ListActive(ctx context.Context, name string) ([]domain.Provider, error)
}

// RateWriter upserts a resolved rate.
type RateWriter interface {
	Upsert(ctx context.Context, rate domain.ExchangeRate) error
}

// AdapterLookup resolves a provider name to its adapter.
type AdapterLookup interface {
	Lookup(name string) (provider.Adapter, bool)
}

// Resolution is a successfully resolved rate and the provider that served it.
type Resolution struct {
	SourceCode    string          `json:"source_currency"`
	TargetCode    string          `json:"exchanged_currency"`
	ValuationDate time.Time       `json:"valuation_date"`
	Rate          decimal.Decimal `json:"rate"`
	Provider      string          `json:"provider"`
}

// Resolver tries active providers in priority order and caches the first success.
type Resolver struct {
	currencies CurrencyRepository
	providers  ProviderRepository
	rates      RateWriter
	adapters   AdapterLookup
	timeout    time.Duration
	metrics    *metrics.Metrics
}

// NewResolver creates a Resolver. timeout bounds each adapter call; zero disables it.
// m may be nil.
func NewResolver(currencies CurrencyRepository, providers ProviderRepository, rates RateWriter,
	adapters AdapterLookup, timeout time.Duration, m *metrics.Metrics) *Resolver {
	return &Resolver{
		currencies: currencies,
		providers:  providers,
		rates:      rates,
		adapters:   adapters,
		timeout:    timeout,
		metrics:    m,
	}
}

// Resolve returns the rate for sourceCode->targetCode on date. A non-empty providerName
// restricts resolution to that provider, if active.
//
// Returns ErrCurrencyNotFound when either code is unknown and ErrNoRate when no candidate
// produced a rate. Provider failures are logged and never returned.
func (r *Resolver) Resolve(ctx context.Context, sourceCode, targetCode string, date time.Time, providerName string) (Resolution, error) {
	sourceCode = domain.NormalizeCode(sourceCode)
	targetCode = domain.NormalizeCode(targetCode)
	date = domain.Day(date)

	if err := r.ensureCurrencies(ctx, sourceCode, targetCode); err != nil {
		return Resolution{}, err
	}

	candidates, err := r.providers.ListActive(ctx, providerName)
	if err != nil {
		return Resolution{}, fmt.Errorf("listing providers: %w", err)
	}
	domain.SortByPriority(candidates)

	if len(candidates) == 0 {
		slog.Warn("no active providers configured", "provider", providerName)
		r.metrics.ObserveResolution(metrics.OutcomeNoRate)
		return Resolution{}, ErrNoRate
	}

	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		adapter, ok := r.adapters.Lookup(p.Name)
		if !ok {
			slog.Error("adapter not found for provider", "provider", p.Name)
			r.metrics.ObserveProviderCall(p.Name, metrics.OutcomeSkipped, 0)
			continue
		}

		rate, err := r.fetch(ctx, p.Name, adapter, sourceCode, targetCode, date)
		if err != nil {
			slog.Warn("provider failed, trying next",
				"provider", p.Name, "source", sourceCode, "target", targetCode,
				"date", domain.FormatDate(date), "error", err)
			continue
		}

		record := domain.ExchangeRate{
			SourceCode:    sourceCode,
			TargetCode:    targetCode,
			ValuationDate: date,
			RateValue:     rate,
			Provider:      p.Name,
		}
		if err := r.rates.Upsert(ctx, record); err != nil {
			return Resolution{}, fmt.Errorf("caching rate: %w", err)
		}

		r.metrics.ObserveResolution(metrics.OutcomeSuccess)
		return Resolution{
			SourceCode:    sourceCode,
			TargetCode:    targetCode,
			ValuationDate: date,
			Rate:          rate,
			Provider:      p.Name,
		}, nil
	}

	r.metrics.ObserveResolution(metrics.OutcomeNoRate)
	return Resolution{}, ErrNoRate
}

func (r *Resolver) ensureCurrencies(ctx context.Context, codes ...string) error {
	for _, code := range codes {
		if _, err := r.currencies.GetByCode(ctx, code); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				slog.Error("currency not found", "code", code)
				return fmt.Errorf("%w: %s", ErrCurrencyNotFound, code)
			}
			return fmt.Errorf("looking up currency %s: %w", code, err)
		}
	}
	return nil
}

// fetch calls one adapter under the per-request timeout, converting panics into errors
// so one misbehaving provider cannot abort the fallback chain.
func (r *Resolver) fetch(ctx context.Context, name string, adapter provider.Adapter,
	sourceCode, targetCode string, date time.Time) (rate decimal.Decimal, err error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("provider %s panicked: %v", name, p)
		}
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeFailure
		}
		r.metrics.ObserveProviderCall(name, outcome, time.Since(start))
	}()

	return adapter.Fetch(ctx, sourceCode, targetCode, date)
}
