package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RateKey is the identity of an exchange rate record.
type RateKey struct {
	SourceCode    string
	TargetCode    string
	ValuationDate time.Time
	Provider      string
}

// String formats "EUR->USD@2024-01-15/mock".
func (k RateKey) String() string {
	return fmt.Sprintf("%s->%s@%s/%s", k.SourceCode, k.TargetCode, FormatDate(k.ValuationDate), k.Provider)
}

// ExchangeRate is a resolved rate for one (source, target, date, provider) identity.
type ExchangeRate struct {
	SourceCode    string          `json:"source_currency"`
	TargetCode    string          `json:"exchanged_currency"`
	ValuationDate time.Time       `json:"valuation_date"`
	RateValue     decimal.Decimal `json:"rate_value"`
	Provider      string          `json:"provider"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Key returns the record identity. The date is normalized to a UTC calendar day.
func (r ExchangeRate) Key() RateKey {
	return RateKey{
		SourceCode:    r.SourceCode,
		TargetCode:    r.TargetCode,
		ValuationDate: Day(r.ValuationDate),
		Provider:      r.Provider,
	}
}
