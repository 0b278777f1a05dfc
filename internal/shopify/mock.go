package shopify

import (
	"context"
	"sync/atomic"

	"quiz-checkout/internal/model"
)

// Mock implements Storefront for testing.
// Each method can be configured via function fields; Calls counts every
// invocation so tests can assert on network usage.
type Mock struct {
	ProductByHandleFunc func(ctx context.Context, handle string) (*Product, error)
	ProductQuoteFunc    func(ctx context.Context, handle string) (*Product, error)
	VariantFunc         func(ctx context.Context, variantID string) (*Variant, error)
	CartCreateFunc      func(ctx context.Context, lines []model.CartLine) (*Cart, error)

	Calls atomic.Int32
}

// ProductByHandle calls ProductByHandleFunc or reports no product.
func (m *Mock) ProductByHandle(ctx context.Context, handle string) (*Product, error) {
	m.Calls.Add(1)
	if m.ProductByHandleFunc != nil {
		return m.ProductByHandleFunc(ctx, handle)
	}
	return nil, nil
}

// ProductQuote calls ProductQuoteFunc, then ProductByHandleFunc.
func (m *Mock) ProductQuote(ctx context.Context, handle string) (*Product, error) {
	if m.ProductQuoteFunc != nil {
		m.Calls.Add(1)
		return m.ProductQuoteFunc(ctx, handle)
	}
	return m.ProductByHandle(ctx, handle)
}

// Variant calls VariantFunc or reports no variant.
func (m *Mock) Variant(ctx context.Context, variantID string) (*Variant, error) {
	m.Calls.Add(1)
	if m.VariantFunc != nil {
		return m.VariantFunc(ctx, variantID)
	}
	return nil, nil
}

// CartCreate calls CartCreateFunc or returns a transport error.
func (m *Mock) CartCreate(ctx context.Context, lines []model.CartLine) (*Cart, error) {
	m.Calls.Add(1)
	if m.CartCreateFunc != nil {
		return m.CartCreateFunc(ctx, lines)
	}
	return nil, model.NewTransportError("Shopify", context.DeadlineExceeded)
}

// MockProvider maps store IDs to mocks.
type MockProvider map[string]*Mock

// Storefront returns the mock for storeID.
func (p MockProvider) Storefront(storeID string) (Storefront, error) {
	m, ok := p[storeID]
	if !ok {
		return nil, model.NewStoreNotFoundError(storeID)
	}
	return m, nil
}

var (
	_ Storefront = (*Mock)(nil)
	_ Provider   = MockProvider(nil)
)
