package domain

import (
	"cmp"
	"slices"
	"time"
)

// Provider names known to the adapter registry.
const (
	ProviderMock           = "mock"
	ProviderCurrencyBeacon = "currency_beacon"
)

// Provider is a named external rate source. Lower Priority is tried first.
type Provider struct {
	Name      string    `json:"name"`
	Priority  int       `json:"priority"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SortByPriority orders providers by ascending priority, ties broken by name.
func SortByPriority(providers []Provider) {
	slices.SortStableFunc(providers, func(a, b Provider) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
}
