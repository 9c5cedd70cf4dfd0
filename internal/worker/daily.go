package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mtlprog/fxrates/internal/domain"
	"github.com/mtlprog/fxrates/internal/rates"
)

// RateResolver resolves and caches a single exchange rate.
type RateResolver interface {
	Resolve(ctx context.Context, sourceCode, targetCode string, date time.Time, providerName string) (rates.Resolution, error)
}

// CurrencyLister lists currencies eligible for the daily run.
type CurrencyLister interface {
	ListActive(ctx context.Context) ([]domain.Currency, error)
}

// RunSummary counts the outcomes of one daily run.
type RunSummary struct {
	Resolved int
	NoRate   int
	Errors   int
}

// DailyRateWorker periodically resolves today's rate from a base currency to every
// other active currency, warming the rate cache.
type DailyRateWorker struct {
	resolver   RateResolver
	currencies CurrencyLister
	base       string
	interval   time.Duration
}

// NewDailyRateWorker creates a new DailyRateWorker.
func NewDailyRateWorker(resolver RateResolver, currencies CurrencyLister, base string, interval time.Duration) *DailyRateWorker {
	return &DailyRateWorker{
		resolver:   resolver,
		currencies: currencies,
		base:       domain.NormalizeCode(base),
		interval:   interval,
	}
}

// RunOnce resolves today's rate for every active currency except the base.
func (w *DailyRateWorker) RunOnce(ctx context.Context) (RunSummary, error) {
	currencies, err := w.currencies.ListActive(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	var summary RunSummary
	today := domain.Today()
	for _, c := range currencies {
		if c.Code == w.base {
			continue
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		_, err := w.resolver.Resolve(ctx, w.base, c.Code, today, "")
		switch {
		case err == nil:
			summary.Resolved++
		case errors.Is(err, rates.ErrNoRate):
			summary.NoRate++
		default:
			summary.Errors++
			slog.Warn("DailyRateWorker: resolution failed", "source", w.base, "target", c.Code, "error", err)
		}
	}
	return summary, nil
}

func (w *DailyRateWorker) runAndLog(ctx context.Context, phase string) {
	summary, err := w.RunOnce(ctx)
	if err != nil {
		slog.Error("DailyRateWorker: "+phase+" run failed", "error", err)
		return
	}
	slog.Info("DailyRateWorker: "+phase+" run completed",
		"resolved", summary.Resolved, "noRate", summary.NoRate, "errors", summary.Errors)
}

// Run starts the worker loop. It blocks until the context is cancelled.
func (w *DailyRateWorker) Run(ctx context.Context) {
	slog.Info("DailyRateWorker: starting", "base", w.base, "interval", w.interval)

	// Resolve immediately on startup
	w.runAndLog(ctx, "initial")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("DailyRateWorker: shutting down")
			return
		case <-ticker.C:
			w.runAndLog(ctx, "scheduled")
		}
	}
}
