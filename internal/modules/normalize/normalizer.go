// Package normalize converts raw per-provider holdings payloads into
// canonical positions. Each upstream provider has its own adapter; the rest
// of the pipeline only ever sees []domain.Position and is provider-agnostic.
package normalize

import (
	"fmt"
	"sort"

	"github.com/aristath/custodian/internal/domain"
)

// Normalizer converts one provider's raw holdings payload into positions.
// Normalizers are stateless and safe for concurrent use. Records missing
// both ticker and quantity are dropped with a MalformedRecord warning; the
// batch is never aborted for individual bad records. The error return is
// reserved for payloads that cannot be decoded at all.
type Normalizer interface {
	ProviderID() string
	Normalize(payload []byte) ([]domain.Position, []domain.Warning, error)
}

// Registry holds the known provider adapters, keyed by provider id.
type Registry struct {
	normalizers map[string]Normalizer
}

// NewRegistry creates a registry from the given adapters.
func NewRegistry(normalizers ...Normalizer) *Registry {
	r := &Registry{normalizers: make(map[string]Normalizer, len(normalizers))}
	for _, n := range normalizers {
		r.normalizers[n.ProviderID()] = n
	}
	return r
}

// Get returns the adapter for a provider id.
func (r *Registry) Get(providerID string) (Normalizer, error) {
	n, ok := r.normalizers[providerID]
	if !ok {
		return nil, fmt.Errorf("no normalizer registered for provider %q", providerID)
	}
	return n, nil
}

// Providers returns the registered provider ids, sorted.
func (r *Registry) Providers() []string {
	ids := make([]string, 0, len(r.normalizers))
	for id := range r.normalizers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
