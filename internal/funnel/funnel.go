// Package funnel ties selection, resolution and checkout together for a
// single quiz result.
package funnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"quiz-checkout/internal/checkout"
	"quiz-checkout/internal/model"
	"quiz-checkout/internal/resolver"
	"quiz-checkout/internal/selection"
)

// Item is one recommended product in a checkout request.
type Item struct {
	Handle   string `json:"handle"`
	Quantity int    `json:"quantity"`
}

// CheckoutRequest is the quiz frontend's checkout payload.
type CheckoutRequest struct {
	Items       []Item `json:"items"`
	UTMCampaign string `json:"utmCampaign,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
	StoreID     string `json:"storeId,omitempty"`
}

// Funnel is the operation set exposed over HTTP, MCP and the CLI.
type Funnel interface {
	Checkout(ctx context.Context, req CheckoutRequest) (model.ResolvedCheckout, error)
	Resolve(ctx context.Context, handle, storeID string) (resolver.Resolution, error)
	Select(ctx context.Context, handle string, strategy selection.Strategy, p selection.Params) (selection.Decision, error)
	Invalidate()
}

// Resolver resolves handles to variants.
type Resolver interface {
	Resolve(ctx context.Context, handle, storeID string) (resolver.Resolution, error)
	ResolveLive(ctx context.Context, handle, storeID string) (resolver.Resolution, error)
	Invalidate()
}

// Selector picks a store.
type Selector interface {
	Select(ctx context.Context, handle string, strategy selection.Strategy, p selection.Params) (selection.Decision, error)
}

// Builder builds checkout URLs.
type Builder interface {
	Build(ctx context.Context, storeID string, lines []model.CartLine) (model.ResolvedCheckout, error)
}

// Invalidator drops cached state.
type Invalidator interface {
	Invalidate()
}

// Config holds Service dependencies.
type Config struct {
	Resolver        Resolver
	Selector        Selector
	Builder         Builder
	Catalog         Invalidator
	DefaultStrategy selection.Strategy
	Logger          *slog.Logger
}

// Service implements Funnel.
type Service struct {
	resolver        Resolver
	selector        Selector
	builder         Builder
	catalog         Invalidator
	defaultStrategy selection.Strategy
	logger          *slog.Logger
}

// New creates a funnel service.
func New(cfg Config) *Service {
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = selection.ByUTMCampaign
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		resolver:        cfg.Resolver,
		selector:        cfg.Selector,
		builder:         cfg.Builder,
		catalog:         cfg.Catalog,
		defaultStrategy: cfg.DefaultStrategy,
		logger:          cfg.Logger,
	}
}

// Checkout picks one store for the whole cart, resolves every item on it and
// returns a checkout URL. A variant rejected as stale triggers exactly one
// live re-resolution of the cart before the failure is surfaced.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (model.ResolvedCheckout, error) {
	items, err := normalizeItems(req.Items)
	if err != nil {
		return model.ResolvedCheckout{}, err
	}
	req.Items = items

	strategy, err := s.strategyFor(req)
	if err != nil {
		return model.ResolvedCheckout{}, err
	}
	decision, err := s.selector.Select(ctx, req.Items[0].Handle, strategy, selection.Params{
		UTMCampaign: req.UTMCampaign,
		StoreID:     req.StoreID,
	})
	if err != nil {
		return model.ResolvedCheckout{}, err
	}
	storeID := decision.StoreID

	lines, err := s.resolveLines(ctx, req.Items, storeID, s.resolver.Resolve)
	if err != nil {
		return model.ResolvedCheckout{}, err
	}

	result, err := s.builder.Build(ctx, storeID, lines)
	if !errors.Is(err, model.ErrStaleMapping) {
		return result, err
	}

	s.logger.WarnContext(ctx, "stale variant mapping, re-resolving live",
		slog.String("store_id", storeID),
		slog.String("error", err.Error()),
	)
	lines, err = s.resolveLines(ctx, req.Items, storeID, s.resolver.ResolveLive)
	if err != nil {
		return model.ResolvedCheckout{}, err
	}
	return s.builder.Build(ctx, storeID, lines)
}

// Resolve passes through to the resolver.
func (s *Service) Resolve(ctx context.Context, handle, storeID string) (resolver.Resolution, error) {
	return s.resolver.Resolve(ctx, handle, storeID)
}

// Select passes through to the selector. An empty strategy uses the default.
func (s *Service) Select(ctx context.Context, handle string, strategy selection.Strategy, p selection.Params) (selection.Decision, error) {
	if strategy == "" {
		strategy = s.defaultStrategy
	}
	return s.selector.Select(ctx, handle, strategy, p)
}

// Invalidate drops the memoized catalog and every cached live lookup.
func (s *Service) Invalidate() {
	if s.catalog != nil {
		s.catalog.Invalidate()
	}
	s.resolver.Invalidate()
	s.logger.Info("caches invalidated")
}

func (s *Service) strategyFor(req CheckoutRequest) (selection.Strategy, error) {
	switch {
	case req.Strategy != "":
		return selection.ParseStrategy(req.Strategy)
	case req.StoreID != "":
		return selection.FixedPreference, nil
	default:
		return s.defaultStrategy, nil
	}
}

type resolveFunc func(ctx context.Context, handle, storeID string) (resolver.Resolution, error)

func (s *Service) resolveLines(ctx context.Context, items []Item, storeID string, resolve resolveFunc) ([]model.CartLine, error) {
	lines := make([]model.CartLine, len(items))
	for i, item := range items {
		res, err := resolve(ctx, item.Handle, storeID)
		if err != nil {
			return nil, err
		}
		lines[i] = model.CartLine{VariantID: res.VariantID, Quantity: item.Quantity}
	}
	return lines, nil
}

// normalizeItems validates items and returns a copy with trimmed handles.
func normalizeItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, model.NewValidationError("items", "at least one item required")
	}
	out := make([]Item, len(items))
	for i, item := range items {
		item.Handle = strings.TrimSpace(item.Handle)
		if item.Handle == "" {
			return nil, model.NewValidationError(fmt.Sprintf("items[%d].handle", i), "required")
		}
		if item.Quantity < 1 || item.Quantity > checkout.MaxLineQuantity {
			return nil, model.NewValidationError(fmt.Sprintf("items[%d].quantity", i),
				fmt.Sprintf("must be between 1 and %d", checkout.MaxLineQuantity))
		}
		out[i] = item
	}
	return out, nil
}

var _ Funnel = (*Service)(nil)
