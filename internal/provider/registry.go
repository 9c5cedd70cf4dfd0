package provider

import "github.com/mtlprog/fxrates/internal/domain"

// DefaultRegistry registers the mock adapter and the given CurrencyBeacon client
// under their provider names.
func DefaultRegistry(beacon *CurrencyBeaconClient) *Registry {
	r := NewRegistry()
	r.Register(domain.ProviderMock, NewMockAdapter())
	r.Register(domain.ProviderCurrencyBeacon, beacon)
	return r
}
