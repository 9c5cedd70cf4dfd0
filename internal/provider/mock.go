package provider

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/fxrates/internal/domain"
)

const (
	mockMinRate = 0.5
	mockMaxRate = 2.0
)

// MockAdapter returns pseudo-random rates in [0.5, 2.0] with 6 fractional digits.
type MockAdapter struct{}

// NewMockAdapter creates a MockAdapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

// Fetch always succeeds unless ctx is already done.
func (m *MockAdapter) Fetch(ctx context.Context, _, _ string, _ time.Time) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	v := mockMinRate + rand.Float64()*(mockMaxRate-mockMinRate)
	return domain.RoundRate(decimal.NewFromFloat(v)), nil
}
