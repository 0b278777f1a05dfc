package shopify

import (
	"context"

	"quiz-checkout/internal/model"
	"quiz-checkout/internal/store"
)

// Storefront is the subset of the Storefront API the funnel uses.
// Interface allows mocking in tests.
type Storefront interface {
	ProductByHandle(ctx context.Context, handle string) (*Product, error)
	ProductQuote(ctx context.Context, handle string) (*Product, error)
	Variant(ctx context.Context, variantID string) (*Variant, error)
	CartCreate(ctx context.Context, lines []model.CartLine) (*Cart, error)
}

// Provider hands out a Storefront per store ID.
type Provider interface {
	Storefront(storeID string) (Storefront, error)
}

// Pool holds one Client per registered store.
type Pool struct {
	clients map[string]*Client
}

// NewPool creates clients for every store in reg sharing cfg.
func NewPool(reg *store.Registry, cfg Config) *Pool {
	p := &Pool{clients: make(map[string]*Client)}
	for _, s := range reg.All() {
		p.clients[s.ID] = NewClient(s, cfg)
	}
	return p
}

// Storefront returns the client for storeID.
func (p *Pool) Storefront(storeID string) (Storefront, error) {
	c, ok := p.clients[storeID]
	if !ok {
		return nil, model.NewStoreNotFoundError(storeID)
	}
	return c, nil
}

var (
	_ Storefront = (*Client)(nil)
	_ Provider   = (*Pool)(nil)
)
