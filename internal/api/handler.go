package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/fxrates/internal/backfill"
	"github.com/mtlprog/fxrates/internal/domain"
	"github.com/mtlprog/fxrates/internal/rates"
	"github.com/mtlprog/fxrates/internal/store"
)

// RateResolver resolves a single rate through the provider chain.
type RateResolver interface {
	Resolve(ctx context.Context, sourceCode, targetCode string, date time.Time, providerName string) (rates.Resolution, error)
}

// Backfiller runs historical backfills.
type Backfiller interface {
	Run(ctx context.Context, req backfill.Request) (backfill.Stats, error)
}

// RateReader reads cached rates.
type RateReader interface {
	ListRange(ctx context.Context, sourceCode string, from, to time.Time) ([]domain.ExchangeRate, error)
	FindForDay(ctx context.Context, sourceCode, targetCode string, date time.Time) (domain.ExchangeRate, error)
}

// CurrencyReader reads currencies.
type CurrencyReader interface {
	GetByCode(ctx context.Context, code string) (domain.Currency, error)
	ListActive(ctx context.Context) ([]domain.Currency, error)
}

// Handler provides HTTP endpoints for the exchange rate API.
type Handler struct {
	resolver   RateResolver
	backfiller Backfiller
	rates      RateReader
	currencies CurrencyReader
	now        func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(resolver RateResolver, backfiller Backfiller, rates RateReader, currencies CurrencyReader) *Handler {
	return &Handler{
		resolver:   resolver,
		backfiller: backfiller,
		rates:      rates,
		currencies: currencies,
		now:        time.Now,
	}
}

type currencyResponse struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type rateResponse struct {
	SourceCurrency    string `json:"source_currency"`
	ExchangedCurrency string `json:"exchanged_currency"`
	ValuationDate     string `json:"valuation_date"`
	RateValue         string `json:"rate_value"`
	Provider          string `json:"provider"`
}

type convertRequest struct {
	SourceCurrency    string          `json:"source_currency"`
	ExchangedCurrency string          `json:"exchanged_currency"`
	Amount            decimal.Decimal `json:"amount"`
}

type convertResponse struct {
	SourceCurrency    string          `json:"source_currency"`
	ExchangedCurrency string          `json:"exchanged_currency"`
	Amount            decimal.Decimal `json:"amount"`
	Rate              string          `json:"rate"`
	ConvertedAmount   decimal.Decimal `json:"converted_amount"`
	ValuationDate     string          `json:"valuation_date"`
	Provider          string          `json:"provider"`
}

// ListCurrencies handles GET /api/v1/currencies.
func (h *Handler) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies, err := h.currencies.ListActive(r.Context())
	if err != nil {
		slog.Error("failed to list currencies", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(currencies, func(c domain.Currency, _ int) currencyResponse {
		return currencyResponse{Code: c.Code, Name: c.Name, Symbol: c.Symbol}
	}))
}

// ListRates handles GET /api/v1/rates?source_currency=EUR&date_from=...&date_to=...
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source := domain.NormalizeCode(q.Get("source_currency"))
	fromStr, toStr := q.Get("date_from"), q.Get("date_to")
	if source == "" || fromStr == "" || toStr == "" {
		writeError(w, http.StatusBadRequest, "missing parameters: source_currency, date_from, and date_to are required")
		return
	}

	from, errFrom := domain.ParseDate(fromStr)
	to, errTo := domain.ParseDate(toStr)
	if errFrom != nil || errTo != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}

	if _, err := h.currencies.GetByCode(r.Context(), source); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "currency not found")
			return
		}
		slog.Error("failed to look up currency", "code", source, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	list, err := h.rates.ListRange(r.Context(), source, from, to)
	if err != nil {
		slog.Error("failed to list rates", "source", source, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(list, func(rate domain.ExchangeRate, _ int) rateResponse {
		return rateResponse{
			SourceCurrency:    rate.SourceCode,
			ExchangedCurrency: rate.TargetCode,
			ValuationDate:     domain.FormatDate(rate.ValuationDate),
			RateValue:         domain.FormatRate(rate.RateValue),
			Provider:          rate.Provider,
		}
	}))
}

// ResolveRate handles GET /api/v1/rates/resolve?source=EUR&target=USD&date=...&provider=...
// The date defaults to today.
func (h *Handler) ResolveRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, target := q.Get("source"), q.Get("target")
	if source == "" || target == "" {
		writeError(w, http.StatusBadRequest, "missing parameters: source and target are required")
		return
	}

	date := domain.Day(h.now().UTC())
	if d := q.Get("date"); d != "" {
		parsed, err := domain.ParseDate(d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
			return
		}
		date = parsed
	}

	res, err := h.resolver.Resolve(r.Context(), source, target, date, q.Get("provider"))
	if err != nil {
		h.writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rateResponse{
		SourceCurrency:    res.SourceCode,
		ExchangedCurrency: res.TargetCode,
		ValuationDate:     domain.FormatDate(res.ValuationDate),
		RateValue:         domain.FormatRate(res.Rate),
		Provider:          res.Provider,
	})
}

// ConvertAmount handles POST /api/v1/convert. Today's cached rate is used when present;
// otherwise the rate is resolved through the provider chain.
func (h *Handler) ConvertAmount(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	source := domain.NormalizeCode(req.SourceCurrency)
	target := domain.NormalizeCode(req.ExchangedCurrency)
	if !domain.ValidCode(source) || !domain.ValidCode(target) {
		writeError(w, http.StatusBadRequest, "source_currency and exchanged_currency must be 3-letter codes")
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	today := domain.Day(h.now().UTC())
	var rate decimal.Decimal
	var providerName string

	cached, err := h.rates.FindForDay(r.Context(), source, target, today)
	switch {
	case err == nil:
		rate, providerName = cached.RateValue, cached.Provider
	case errors.Is(err, store.ErrNotFound):
		res, err := h.resolver.Resolve(r.Context(), source, target, today, "")
		if err != nil {
			h.writeResolveError(w, err)
			return
		}
		rate, providerName = res.Rate, res.Provider
	default:
		slog.Error("failed to read cached rate", "source", source, "target", target, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, convertResponse{
		SourceCurrency:    source,
		ExchangedCurrency: target,
		Amount:            req.Amount,
		Rate:              domain.FormatRate(rate),
		ConvertedAmount:   domain.Convert(req.Amount, rate),
		ValuationDate:     domain.FormatDate(today),
		Provider:          providerName,
	})
}

func (h *Handler) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rates.ErrCurrencyNotFound):
		writeError(w, http.StatusNotFound, "currency not found")
	case errors.Is(err, rates.ErrNoRate):
		writeError(w, http.StatusNotFound, "could not retrieve exchange rate for the requested pair")
	default:
		slog.Error("failed to resolve rate", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
