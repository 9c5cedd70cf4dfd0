// Package backfill loads historical exchange rates over a date range and a set of
// target currencies with bounded concurrency, then persists them in one bulk write.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/fxrates/internal/domain"
	"github.com/mtlprog/fxrates/internal/metrics"
	"github.com/mtlprog/fxrates/internal/provider"
	"github.com/mtlprog/fxrates/internal/store"
)

const (
	// DefaultConcurrency is the in-flight fetch limit when none is configured.
	DefaultConcurrency = 10
	// DefaultTaskTimeout bounds each individual fetch.
	DefaultTaskTimeout = 15 * time.Second

	mockFallbackNote = "Using MOCK data (no API key configured)"
)

var (
	// ErrInvalidRange indicates DateFrom is after DateTo.
	ErrInvalidRange = errors.New("date_from must not be after date_to")
	// ErrInvalidRequest indicates a missing or malformed currency code.
	ErrInvalidRequest = errors.New("invalid backfill request")
	// ErrUnknownProvider indicates no adapter is registered under the requested name.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrCurrencyNotFound indicates the source currency does not exist.
	ErrCurrencyNotFound = errors.New("currency not found")
)

// CurrencyRepository looks up currencies by code.
type CurrencyRepository interface {
	GetByCode(ctx context.Context, code string) (domain.Currency, error)
}

// RateBulkWriter inserts many rates, ignoring identities that already exist.
type RateBulkWriter interface {
	InsertIgnoreConflicts(ctx context.Context, rates []domain.ExchangeRate) (int64, error)
}

// AdapterLookup resolves a provider name to its adapter.
type AdapterLookup interface {
	Lookup(name string) (provider.Adapter, bool)
}

// Request describes one backfill run.
type Request struct {
	Source   string
	Targets  []string
	DateFrom time.Time
	DateTo   time.Time
	Provider string
}

// Stats summarizes a finished backfill. Failed always equals Total - Successful.
type Stats struct {
	Total      int      `json:"total_requests"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Saved      int64    `json:"saved"`
	Skipped    int      `json:"skipped"`
	DateRange  string   `json:"date_range"`
	Currencies []string `json:"currencies"`
	Provider   string   `json:"provider"`
	Note       string   `json:"note,omitempty"`
}

// Options configures a Service.
type Options struct {
	Concurrency int
	TaskTimeout time.Duration
	Metrics     *metrics.Metrics
}

// Service runs backfills. Each call to Run gets its own concurrency budget.
type Service struct {
	currencies  CurrencyRepository
	rates       RateBulkWriter
	adapters    AdapterLookup
	mock        provider.Adapter
	concurrency int
	taskTimeout time.Duration
	metrics     *metrics.Metrics
}

// NewService creates a backfill Service. Zero option values fall back to defaults.
func NewService(currencies CurrencyRepository, rates RateBulkWriter, adapters AdapterLookup, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	return &Service{
		currencies:  currencies,
		rates:       rates,
		adapters:    adapters,
		mock:        provider.NewMockAdapter(),
		concurrency: opts.Concurrency,
		taskTimeout: opts.TaskTimeout,
		metrics:     opts.Metrics,
	}
}

type task struct {
	target string
	date   time.Time
}

type result struct {
	rate decimal.Decimal
	err  error
}

// Run validates req, fetches every (date, target) pair with at most Concurrency fetches
// in flight, and persists all successes in one conflict-ignoring bulk insert.
// Individual fetch failures are counted in Stats, never returned.
func (s *Service) Run(ctx context.Context, req Request) (Stats, error) {
	req, err := normalize(req)
	if err != nil {
		return Stats{}, err
	}

	adapter, ok := s.adapters.Lookup(req.Provider)
	if !ok {
		return Stats{}, fmt.Errorf("%w: %s", ErrUnknownProvider, req.Provider)
	}

	if _, err := s.currencies.GetByCode(ctx, req.Source); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Stats{}, fmt.Errorf("%w: %s", ErrCurrencyNotFound, req.Source)
		}
		return Stats{}, fmt.Errorf("looking up currency %s: %w", req.Source, err)
	}

	stats := Stats{
		DateRange:  fmt.Sprintf("%s to %s", domain.FormatDate(req.DateFrom), domain.FormatDate(req.DateTo)),
		Currencies: req.Targets,
		Provider:   req.Provider,
	}

	if !provider.HasCredential(adapter) {
		slog.Error("provider credential not configured, using mock data", "provider", req.Provider)
		adapter = s.mock
		stats.Provider = domain.ProviderMock
		stats.Note = mockFallbackNote
	}

	tasks := buildTasks(req)
	results := s.fetchAll(ctx, adapter, stats.Provider, req.Source, tasks)

	var batch []domain.ExchangeRate
	for i, res := range results {
		if res.err != nil {
			continue
		}
		batch = append(batch, domain.ExchangeRate{
			SourceCode:    req.Source,
			TargetCode:    tasks[i].target,
			ValuationDate: tasks[i].date,
			RateValue:     res.rate,
			Provider:      stats.Provider,
		})
	}

	stats.Total = len(tasks)
	stats.Successful = len(batch)
	stats.Failed = stats.Total - stats.Successful

	saved, skipped, err := s.save(ctx, batch)
	if err != nil {
		return stats, err
	}
	stats.Saved = saved
	stats.Skipped = skipped

	slog.Info("historical load completed",
		"source", req.Source, "targets", req.Targets, "range", stats.DateRange, "provider", stats.Provider,
		"total", stats.Total, "successful", stats.Successful, "failed", stats.Failed, "saved", stats.Saved)

	return stats, nil
}

func normalize(req Request) (Request, error) {
	req.Source = domain.NormalizeCode(req.Source)
	if !domain.ValidCode(req.Source) {
		return Request{}, fmt.Errorf("%w: source currency %q", ErrInvalidRequest, req.Source)
	}

	targets := lo.Map(req.Targets, func(code string, _ int) string { return domain.NormalizeCode(code) })
	targets = lo.Filter(targets, func(code string, _ int) bool { return code != "" })
	if len(targets) == 0 {
		return Request{}, fmt.Errorf("%w: at least one target currency is required", ErrInvalidRequest)
	}
	if bad, found := lo.Find(targets, func(code string) bool { return !domain.ValidCode(code) }); found {
		return Request{}, fmt.Errorf("%w: target currency %q", ErrInvalidRequest, bad)
	}
	req.Targets = targets

	if req.DateFrom.IsZero() || req.DateTo.IsZero() {
		return Request{}, fmt.Errorf("%w: date_from and date_to are required", ErrInvalidRequest)
	}
	req.DateFrom = domain.Day(req.DateFrom)
	req.DateTo = domain.Day(req.DateTo)
	if req.DateFrom.After(req.DateTo) {
		return Request{}, ErrInvalidRange
	}

	if req.Provider == "" {
		req.Provider = domain.ProviderCurrencyBeacon
	}
	return req, nil
}

// buildTasks forms the full date x target cross product without de-duplication.
func buildTasks(req Request) []task {
	days := domain.DateRange(req.DateFrom, req.DateTo)
	tasks := make([]task, 0, len(days)*len(req.Targets))
	for _, d := range days {
		for _, target := range req.Targets {
			tasks = append(tasks, task{target: target, date: d})
		}
	}
	return tasks
}

// fetchAll runs every task with at most s.concurrency in flight and waits for all of them.
// results[i] belongs to tasks[i].
func (s *Service) fetchAll(ctx context.Context, adapter provider.Adapter, providerName, source string, tasks []task) []result {
	results := make([]result, len(tasks))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for i, t := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = s.fetchOne(ctx, adapter, providerName, source, t)
		}()
	}

	wg.Wait()
	return results
}

func (s *Service) fetchOne(ctx context.Context, adapter provider.Adapter, providerName, source string, t task) (res result) {
	s.metrics.TaskStarted()
	defer s.metrics.TaskFinished()

	taskCtx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = result{err: fmt.Errorf("provider %s panicked: %v", providerName, p)}
		}
		outcome := metrics.OutcomeSuccess
		switch {
		case res.err == nil:
		case errors.Is(res.err, context.DeadlineExceeded):
			outcome = metrics.OutcomeTimeout
		default:
			outcome = metrics.OutcomeFailure
		}
		s.metrics.ObserveProviderCall(providerName, outcome, time.Since(start))
		s.metrics.ObserveBackfillTask(providerName, outcome)
	}()

	rate, err := adapter.Fetch(taskCtx, source, t.target, t.date)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Error("timeout fetching rate", "source", source, "target", t.target, "date", domain.FormatDate(t.date))
		} else {
			slog.Warn("failed to fetch rate", "source", source, "target", t.target, "date", domain.FormatDate(t.date), "error", err)
		}
		return result{err: err}
	}
	return result{rate: rate}
}

// save drops rates whose target currency is unknown, then bulk inserts the rest.
func (s *Service) save(ctx context.Context, batch []domain.ExchangeRate) (int64, int, error) {
	if len(batch) == 0 {
		return 0, 0, nil
	}

	known := make(map[string]bool)
	for _, code := range lo.Uniq(lo.Map(batch, func(r domain.ExchangeRate, _ int) string { return r.TargetCode })) {
		_, err := s.currencies.GetByCode(ctx, code)
		switch {
		case err == nil:
			known[code] = true
		case errors.Is(err, store.ErrNotFound):
			slog.Warn("currency not found, skipping its rates", "code", code)
		default:
			return 0, 0, fmt.Errorf("looking up currency %s: %w", code, err)
		}
	}

	rates := lo.Filter(batch, func(r domain.ExchangeRate, _ int) bool { return known[r.TargetCode] })
	skipped := len(batch) - len(rates)

	saved, err := s.rates.InsertIgnoreConflicts(ctx, rates)
	if err != nil {
		return 0, skipped, fmt.Errorf("saving rates: %w", err)
	}
	s.metrics.AddSaved(saved)
	slog.Info("saved new exchange rates", "count", saved, "skipped", skipped)
	return saved, skipped, nil
}
