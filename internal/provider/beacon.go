package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/fxrates/internal/domain"
)

// CurrencyBeaconClient fetches historical rates from the CurrencyBeacon API.
type CurrencyBeaconClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCurrencyBeaconClient creates a new CurrencyBeacon API client.
// An empty apiKey is allowed; Fetch then fails with ErrMissingCredential.
func NewCurrencyBeaconClient(baseURL, apiKey string, timeout time.Duration) *CurrencyBeaconClient {
	return &CurrencyBeaconClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// HasCredential reports whether an API key is configured.
func (c *CurrencyBeaconClient) HasCredential() bool {
	return c.apiKey != ""
}

// beaconResponse covers the only path we read: {"response":{"rates":{"USD":1.08}}}.
type beaconResponse struct {
	Response struct {
		Rates map[string]json.Number `json:"rates"`
	} `json:"response"`
}

// Fetch issues a single GET for the rate of targetCode in sourceCode on date.
func (c *CurrencyBeaconClient) Fetch(ctx context.Context, sourceCode, targetCode string, date time.Time) (decimal.Decimal, error) {
	if !c.HasCredential() {
		return decimal.Zero, ErrMissingCredential
	}

	body, err := c.get(ctx, c.requestURL(sourceCode, targetCode, date))
	if err != nil {
		return decimal.Zero, err
	}

	var raw beaconResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, fmt.Errorf("parsing CurrencyBeacon response: %w", err)
	}

	num, ok := raw.Response.Rates[targetCode]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s->%s on %s", ErrNoRate, sourceCode, targetCode, domain.FormatDate(date))
	}

	rate, err := decimal.NewFromString(num.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing CurrencyBeacon rate %q: %w", num.String(), err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive rate %s", ErrNoRate, rate)
	}

	return domain.RoundRate(rate), nil
}

func (c *CurrencyBeaconClient) requestURL(sourceCode, targetCode string, date time.Time) string {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("base", sourceCode)
	q.Set("symbols", targetCode)
	q.Set("date", domain.FormatDate(date))
	return c.baseURL + "?" + q.Encode()
}

func (c *CurrencyBeaconClient) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating CurrencyBeacon request: %w", c.redact(err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("CurrencyBeacon request failed: %w", c.redact(err))
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading CurrencyBeacon response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("CurrencyBeacon HTTP %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// redact replaces the request URL in err with the base URL so the api_key
// query parameter never reaches logs.
func (c *CurrencyBeaconClient) redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: c.baseURL, Err: ue.Err}
	}
	return err
}
