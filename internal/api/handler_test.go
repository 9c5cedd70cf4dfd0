package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/fxrates/internal/backfill"
	"github.com/mtlprog/fxrates/internal/domain"
	"github.com/mtlprog/fxrates/internal/rates"
	"github.com/mtlprog/fxrates/internal/store"
)

var testNow = time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

type mockResolver struct {
	res   rates.Resolution
	err   error
	calls int
	last  struct {
		source, target, provider string
		date                     time.Time
	}
}

func (m *mockResolver) Resolve(_ context.Context, source, target string, date time.Time, providerName string) (rates.Resolution, error) {
	m.calls++
	m.last.source, m.last.target, m.last.provider, m.last.date = source, target, providerName, date
	if m.err != nil {
		return rates.Resolution{}, m.err
	}
	return m.res, nil
}

type mockBackfiller struct {
	stats backfill.Stats
	err   error
	calls int
	last  backfill.Request
}

func (m *mockBackfiller) Run(_ context.Context, req backfill.Request) (backfill.Stats, error) {
	m.calls++
	m.last = req
	return m.stats, m.err
}

type mockRates struct {
	list     []domain.ExchangeRate
	cached   map[string]domain.ExchangeRate
	listErr  error
	findErr  error
	lastFrom time.Time
	lastTo   time.Time
}

func newMockRates() *mockRates {
	return &mockRates{cached: map[string]domain.ExchangeRate{}}
}

func (m *mockRates) ListRange(_ context.Context, _ string, from, to time.Time) ([]domain.ExchangeRate, error) {
	m.lastFrom, m.lastTo = from, to
	return m.list, m.listErr
}

func (m *mockRates) FindForDay(_ context.Context, source, target string, date time.Time) (domain.ExchangeRate, error) {
	if m.findErr != nil {
		return domain.ExchangeRate{}, m.findErr
	}
	r, ok := m.cached[source+"/"+target+"/"+domain.FormatDate(date)]
	if !ok {
		return domain.ExchangeRate{}, store.ErrNotFound
	}
	return r, nil
}

type mockCurrencies struct {
	known   map[string]bool
	listErr error
}

func (m *mockCurrencies) GetByCode(_ context.Context, code string) (domain.Currency, error) {
	if !m.known[code] {
		return domain.Currency{}, store.ErrNotFound
	}
	return domain.Currency{Code: code, Name: code, IsActive: true}, nil
}

func (m *mockCurrencies) ListActive(_ context.Context) ([]domain.Currency, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return []domain.Currency{
		{Code: "EUR", Name: "Euro", Symbol: "€", IsActive: true},
		{Code: "USD", Name: "US Dollar", Symbol: "$", IsActive: true},
	}, nil
}

func newTestHandler(rr *mockRates, resolver *mockResolver, bf *mockBackfiller) *Handler {
	h := NewHandler(resolver, bf, rr, &mockCurrencies{known: map[string]bool{"EUR": true, "USD": true}})
	h.now = func() time.Time { return testNow }
	return h
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestListCurrencies(t *testing.T) {
	h := newTestHandler(newMockRates(), &mockResolver{}, &mockBackfiller{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/currencies", nil)
	w := httptest.NewRecorder()
	h.ListCurrencies(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	got := decodeBody[[]currencyResponse](t, w)
	if len(got) != 2 || got[0].Code != "EUR" || got[1].Symbol != "$" {
		t.Errorf("unexpected currencies: %+v", got)
	}
}

func TestListCurrenciesStoreError(t *testing.T) {
	h := NewHandler(&mockResolver{}, &mockBackfiller{}, newMockRates(), &mockCurrencies{listErr: errors.New("db down")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/currencies", nil)
	w := httptest.NewRecorder()
	h.ListCurrencies(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestListRates(t *testing.T) {
	rr := newMockRates()
	rr.list = []domain.ExchangeRate{
		{SourceCode: "EUR", TargetCode: "USD", ValuationDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			RateValue: decimal.RequireFromString("1.104500"), Provider: domain.ProviderCurrencyBeacon},
	}
	h := newTestHandler(rr, &mockResolver{}, &mockBackfiller{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rates?source_currency=eur&date_from=2024-01-01&date_to=2024-01-31", nil)
	w := httptest.NewRecorder()
	h.ListRates(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	got := decodeBody[[]rateResponse](t, w)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ValuationDate != "2024-01-01" || got[0].ExchangedCurrency != "USD" {
		t.Errorf("unexpected rate: %+v", got[0])
	}
	if got[0].RateValue != "1.1045" {
		t.Errorf("rate_value = %q, want 1.1045", got[0].RateValue)
	}
	if domain.FormatDate(rr.lastTo) != "2024-01-31" {
		t.Errorf("date_to passed = %s, want 2024-01-31", domain.FormatDate(rr.lastTo))
	}
}

func TestListRatesBadRequests(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing source", "date_from=2024-01-01&date_to=2024-01-02", http.StatusBadRequest},
		{"missing date_to", "source_currency=EUR&date_from=2024-01-01", http.StatusBadRequest},
		{"bad date", "source_currency=EUR&date_from=01/01/2024&date_to=2024-01-02", http.StatusBadRequest},
		{"unknown currency", "source_currency=XXX&date_from=2024-01-01&date_to=2024-01-02", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(newMockRates(), &mockResolver{}, &mockBackfiller{})
			req := httptest.NewRequest(http.MethodGet, "/api/v1/rates?"+tt.query, nil)
			w := httptest.NewRecorder()
			h.ListRates(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestResolveRateDefaultsToToday(t *testing.T) {
	resolver := &mockResolver{res: rates.Resolution{
		SourceCode: "EUR", TargetCode: "USD", ValuationDate: domain.Day(testNow),
		Rate: decimal.RequireFromString("1.2"), Provider: domain.ProviderMock,
	}}
	h := newTestHandler(newMockRates(), resolver, &mockBackfiller{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rates/resolve?source=EUR&target=USD&provider=mock", nil)
	w := httptest.NewRecorder()
	h.ResolveRate(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !resolver.last.date.Equal(domain.Day(testNow)) {
		t.Errorf("date = %v, want %v", resolver.last.date, domain.Day(testNow))
	}
	if resolver.last.provider != "mock" {
		t.Errorf("provider = %q, want mock", resolver.last.provider)
	}
	got := decodeBody[rateResponse](t, w)
	if got.ValuationDate != "2024-03-10" || got.Provider != domain.ProviderMock || got.RateValue != "1.2" {
		t.Errorf("unexpected response: %+v", got)
	}
}

func TestResolveRateErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		err   error
		want  int
	}{
		{"missing target", "source=EUR", nil, http.StatusBadRequest},
		{"bad date", "source=EUR&target=USD&date=yesterday", nil, http.StatusBadRequest},
		{"unknown currency", "source=EUR&target=XXX", rates.ErrCurrencyNotFound, http.StatusNotFound},
		{"no rate", "source=EUR&target=USD", rates.ErrNoRate, http.StatusNotFound},
		{"store failure", "source=EUR&target=USD", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(newMockRates(), &mockResolver{err: tt.err}, &mockBackfiller{})
			req := httptest.NewRequest(http.MethodGet, "/api/v1/rates/resolve?"+tt.query, nil)
			w := httptest.NewRecorder()
			h.ResolveRate(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestConvertAmountUsesCachedRate(t *testing.T) {
	rr := newMockRates()
	rr.cached["EUR/USD/2024-03-10"] = domain.ExchangeRate{
		SourceCode: "EUR", TargetCode: "USD", ValuationDate: domain.Day(testNow),
		RateValue: decimal.RequireFromString("1.5"), Provider: domain.ProviderCurrencyBeacon,
	}
	resolver := &mockResolver{}
	h := newTestHandler(rr, resolver, &mockBackfiller{})

	body := `{"source_currency":"eur","exchanged_currency":"usd","amount":100}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ConvertAmount(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if resolver.calls != 0 {
		t.Errorf("resolver calls = %d, want 0 on cache hit", resolver.calls)
	}
	got := decodeBody[convertResponse](t, w)
	if !got.ConvertedAmount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("converted_amount = %s, want 150", got.ConvertedAmount)
	}
	if got.Rate != "1.5" {
		t.Errorf("rate = %q, want 1.5", got.Rate)
	}
	if got.Provider != domain.ProviderCurrencyBeacon || got.ValuationDate != "2024-03-10" {
		t.Errorf("unexpected response: %+v", got)
	}
}

func TestConvertAmountResolvesOnMiss(t *testing.T) {
	resolver := &mockResolver{res: rates.Resolution{
		SourceCode: "EUR", TargetCode: "USD", ValuationDate: domain.Day(testNow),
		Rate: decimal.RequireFromString("0.5"), Provider: domain.ProviderMock,
	}}
	h := newTestHandler(newMockRates(), resolver, &mockBackfiller{})

	body := `{"source_currency":"EUR","exchanged_currency":"USD","amount":"10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ConvertAmount(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if resolver.calls != 1 || resolver.last.provider != "" {
		t.Errorf("resolver calls = %d provider = %q, want 1 call with no provider", resolver.calls, resolver.last.provider)
	}
	got := decodeBody[convertResponse](t, w)
	if !got.ConvertedAmount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("converted_amount = %s, want 5", got.ConvertedAmount)
	}
}

func TestConvertAmountErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		resolveErr error
		findErr    error
		want       int
	}{
		{"invalid json", `{`, nil, nil, http.StatusBadRequest},
		{"bad code", `{"source_currency":"EURO","exchanged_currency":"USD","amount":1}`, nil, nil, http.StatusBadRequest},
		{"zero amount", `{"source_currency":"EUR","exchanged_currency":"USD","amount":0}`, nil, nil, http.StatusBadRequest},
		{"no rate", `{"source_currency":"EUR","exchanged_currency":"USD","amount":1}`, rates.ErrNoRate, nil, http.StatusNotFound},
		{"cache failure", `{"source_currency":"EUR","exchanged_currency":"USD","amount":1}`, nil, errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := newMockRates()
			rr.findErr = tt.findErr
			h := newTestHandler(rr, &mockResolver{err: tt.resolveErr}, &mockBackfiller{})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/convert", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.ConvertAmount(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRunBackfill(t *testing.T) {
	bf := &mockBackfiller{stats: backfill.Stats{Total: 4, Successful: 3, Failed: 1, Provider: domain.ProviderMock}}
	h := newTestHandler(newMockRates(), &mockResolver{}, bf)

	body := `{"source":"EUR","targets":["USD","GBP"],"date_from":"2024-01-01","date_to":"2024-01-02","provider":"mock"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backfill", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.RunBackfill(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(bf.last.Targets) != 2 || bf.last.Provider != "mock" || domain.FormatDate(bf.last.DateTo) != "2024-01-02" {
		t.Errorf("unexpected request: %+v", bf.last)
	}
	got := decodeBody[map[string]any](t, w)
	if got["total_requests"] != float64(4) || got["failed"] != float64(1) {
		t.Errorf("unexpected stats: %v", got)
	}
}

func TestRunBackfillErrors(t *testing.T) {
	validBody := `{"source":"EUR","targets":["USD"],"date_from":"2024-01-02","date_to":"2024-01-01"}`
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"invalid json", `[`, nil, http.StatusBadRequest},
		{"bad date", `{"source":"EUR","targets":["USD"],"date_from":"x","date_to":"2024-01-01"}`, nil, http.StatusBadRequest},
		{"invalid range", validBody, backfill.ErrInvalidRange, http.StatusBadRequest},
		{"unknown provider", validBody, backfill.ErrUnknownProvider, http.StatusBadRequest},
		{"unknown source", validBody, backfill.ErrCurrencyNotFound, http.StatusNotFound},
		{"store failure", validBody, errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(newMockRates(), &mockResolver{}, &mockBackfiller{err: tt.err})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/backfill", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.RunBackfill(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestOversizedBodiesRejected(t *testing.T) {
	padding := strings.Repeat("x", maxBodyBytes+1)
	tests := []struct {
		name  string
		body  string
		serve func(h *Handler, w http.ResponseWriter, r *http.Request)
	}{
		{"convert", `{"source_currency":"EUR","exchanged_currency":"USD","amount":1,"pad":"` + padding + `"}`,
			(*Handler).ConvertAmount},
		{"backfill", `{"source":"EUR","targets":["USD"],"date_from":"2024-01-01","date_to":"2024-01-01","pad":"` + padding + `"}`,
			(*Handler).RunBackfill},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &mockResolver{}
			bf := &mockBackfiller{}
			h := newTestHandler(newMockRates(), resolver, bf)
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			tt.serve(h, w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if resolver.calls != 0 || bf.calls != 0 {
				t.Errorf("oversized body reached the service: resolver=%d backfill=%d", resolver.calls, bf.calls)
			}
		})
	}
}
