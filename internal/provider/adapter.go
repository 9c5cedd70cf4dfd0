// Package provider implements exchange rate sources behind a single capability interface.
package provider

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoRate indicates the provider answered but had no rate for the requested pair.
	ErrNoRate = errors.New("no rate available")
	// ErrMissingCredential indicates the provider cannot be called without an API key.
	ErrMissingCredential = errors.New("provider credential not configured")
)

// Adapter fetches one exchange rate. Implementations must be safe for concurrent use.
type Adapter interface {
	Fetch(ctx context.Context, sourceCode, targetCode string, date time.Time) (decimal.Decimal, error)
}

// CredentialChecker is implemented by adapters that need a credential to reach the network.
type CredentialChecker interface {
	HasCredential() bool
}

// HasCredential reports false only for adapters that declare a missing credential.
func HasCredential(a Adapter) bool {
	if c, ok := a.(CredentialChecker); ok {
		return c.HasCredential()
	}
	return true
}

// Registry maps provider names to adapter implementations.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds name to adapter, replacing any previous binding.
func (r *Registry) Register(name string, adapter Adapter) {
	r.adapters[name] = adapter
}

// Lookup returns the adapter registered under name.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered provider names in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
