package funnel

import (
	"context"

	"quiz-checkout/internal/model"
	"quiz-checkout/internal/resolver"
	"quiz-checkout/internal/selection"
)

// Mock implements Funnel for testing.
// Each method can be configured via function fields.
type Mock struct {
	CheckoutFunc   func(ctx context.Context, req CheckoutRequest) (model.ResolvedCheckout, error)
	ResolveFunc    func(ctx context.Context, handle, storeID string) (resolver.Resolution, error)
	SelectFunc     func(ctx context.Context, handle string, strategy selection.Strategy, p selection.Params) (selection.Decision, error)
	InvalidateFunc func()
}

// Checkout calls CheckoutFunc if set.
func (m *Mock) Checkout(ctx context.Context, req CheckoutRequest) (model.ResolvedCheckout, error) {
	if m.CheckoutFunc != nil {
		return m.CheckoutFunc(ctx, req)
	}
	return model.ResolvedCheckout{}, nil
}

// Resolve calls ResolveFunc if set.
func (m *Mock) Resolve(ctx context.Context, handle, storeID string) (resolver.Resolution, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, handle, storeID)
	}
	return resolver.Resolution{}, nil
}

// Select calls SelectFunc if set.
func (m *Mock) Select(ctx context.Context, handle string, strategy selection.Strategy, p selection.Params) (selection.Decision, error) {
	if m.SelectFunc != nil {
		return m.SelectFunc(ctx, handle, strategy, p)
	}
	return selection.Decision{}, nil
}

// Invalidate calls InvalidateFunc if set.
func (m *Mock) Invalidate() {
	if m.InvalidateFunc != nil {
		m.InvalidateFunc()
	}
}

var _ Funnel = (*Mock)(nil)
