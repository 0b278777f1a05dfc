// Package store holds the static registry of configured Shopify storefronts.
package store

import (
	"fmt"
	"strings"

	"quiz-checkout/internal/model"
)

// Registry maps store IDs to storefront configuration.
// Populated once at startup and never mutated afterwards.
type Registry struct {
	stores map[string]model.Store
	order  []string
}

// New builds a registry from configured stores, preserving their order.
// Returns an error for empty IDs, duplicate IDs or stores without a domain.
func New(stores []model.Store) (*Registry, error) {
	r := &Registry{
		stores: make(map[string]model.Store, len(stores)),
		order:  make([]string, 0, len(stores)),
	}

	for _, s := range stores {
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			return nil, fmt.Errorf("store with empty id")
		}
		if _, dup := r.stores[s.ID]; dup {
			return nil, fmt.Errorf("duplicate store id %q", s.ID)
		}

		s.Domain = NormalizeDomain(s.Domain)
		s.APIDomain = NormalizeDomain(s.APIDomain)
		if s.APIDomain == "" {
			s.APIDomain = s.Domain
		}
		if s.Domain == "" {
			s.Domain = s.APIDomain
		}
		if s.Domain == "" {
			return nil, fmt.Errorf("store %q has no domain", s.ID)
		}

		r.stores[s.ID] = s
		r.order = append(r.order, s.ID)
	}

	return r, nil
}

// Get returns the store for storeID or a store-not-found error.
func (r *Registry) Get(storeID string) (model.Store, error) {
	s, ok := r.stores[storeID]
	if !ok {
		return model.Store{}, model.NewStoreNotFoundError(storeID)
	}
	return s, nil
}

// Has reports whether storeID is configured.
func (r *Registry) Has(storeID string) bool {
	_, ok := r.stores[storeID]
	return ok
}

// IDs returns store IDs in configuration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// All returns every store in configuration order.
func (r *Registry) All() []model.Store {
	out := make([]model.Store, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.stores[id])
	}
	return out
}

// NormalizeDomain strips scheme, path and trailing slashes from a store domain.
func NormalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	if i := strings.IndexByte(domain, '/'); i >= 0 {
		domain = domain[:i]
	}
	return strings.ToLower(domain)
}
