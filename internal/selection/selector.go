// Package selection decides which store a cart should be checked out on.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"quiz-checkout/internal/model"
	"quiz-checkout/internal/store"
)

// Strategy names a store selection rule.
type Strategy string

const (
	ByUTMCampaign    Strategy = "by_utm_campaign"
	BestPrice        Strategy = "best_price"
	BestAvailability Strategy = "best_availability"
	FixedPreference  Strategy = "fixed_preference"
)

// Strategies lists every supported strategy.
var Strategies = []Strategy{ByUTMCampaign, BestPrice, BestAvailability, FixedPreference}

// ParseStrategy validates a strategy name. Matching is case-insensitive.
func ParseStrategy(s string) (Strategy, error) {
	normalized := Strategy(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range Strategies {
		if normalized == st {
			return st, nil
		}
	}
	return "", model.NewValidationError("strategy", fmt.Sprintf("unknown strategy %q", s))
}

// Params carries the per-request inputs a strategy may use.
type Params struct {
	UTMCampaign string
	StoreID     string
}

// Decision is the outcome of a selection.
type Decision struct {
	StoreID  string   `json:"storeId"`
	Strategy Strategy `json:"strategy"`
	// Fallback is set when the strategy had no signal and a default store
	// was used instead.
	Fallback bool   `json:"fallback"`
	Reason   string `json:"reason"`
}

// Catalog looks up canonical products.
type Catalog interface {
	ByHandle(handle string) (model.CanonicalProduct, error)
}

// Quoter returns live offers for a handle, in store order.
type Quoter interface {
	Quotes(ctx context.Context, handle string, storeIDs []string) ([]model.Offer, error)
}

// Config holds selector dependencies and the UTM routing table.
type Config struct {
	Registry        *store.Registry
	Catalog         Catalog
	Quoter          Quoter
	UTMStores       map[string]string
	FallbackStoreID string
	Logger          *slog.Logger
}

// Selector implements the selection strategies.
type Selector struct {
	registry *store.Registry
	catalog  Catalog
	quoter   Quoter
	utm      map[string]string
	fallback string
	logger   *slog.Logger
}

// New validates the routing table against the registry.
func New(cfg Config) (*Selector, error) {
	if cfg.Registry == nil {
		return nil, errors.New("selection: registry is required")
	}
	if !cfg.Registry.Has(cfg.FallbackStoreID) {
		return nil, fmt.Errorf("selection: fallback store %q is not configured", cfg.FallbackStoreID)
	}

	utm := make(map[string]string, len(cfg.UTMStores))
	for campaign, storeID := range cfg.UTMStores {
		if !cfg.Registry.Has(storeID) {
			return nil, fmt.Errorf("selection: utm campaign %q routes to unknown store %q", campaign, storeID)
		}
		utm[normalizeCampaign(campaign)] = storeID
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		registry: cfg.Registry,
		catalog:  cfg.Catalog,
		quoter:   cfg.Quoter,
		utm:      utm,
		fallback: cfg.FallbackStoreID,
		logger:   logger,
	}, nil
}

// FallbackStoreID returns the configured fallback store.
func (s *Selector) FallbackStoreID() string {
	return s.fallback
}

// Select picks a store for handle using strategy.
func (s *Selector) Select(ctx context.Context, handle string, strategy Strategy, p Params) (Decision, error) {
	switch strategy {
	case ByUTMCampaign:
		return s.byUTM(ctx, p.UTMCampaign), nil
	case BestPrice:
		return s.bestPrice(ctx, handle)
	case BestAvailability:
		return s.bestAvailability(ctx, handle)
	case FixedPreference:
		return s.fixedPreference(handle, p.StoreID)
	default:
		return Decision{}, model.NewValidationError("strategy", fmt.Sprintf("unknown strategy %q", strategy))
	}
}

func (s *Selector) byUTM(ctx context.Context, campaign string) Decision {
	if storeID, ok := s.utm[normalizeCampaign(campaign)]; ok && campaign != "" {
		return Decision{
			StoreID:  storeID,
			Strategy: ByUTMCampaign,
			Reason:   fmt.Sprintf("utm campaign %q", campaign),
		}
	}

	s.logger.WarnContext(ctx, "unrecognized utm campaign, using fallback store",
		slog.String("utm_campaign", campaign),
		slog.String("store_id", s.fallback),
		slog.Bool("fallback", true),
	)
	return Decision{
		StoreID:  s.fallback,
		Strategy: ByUTMCampaign,
		Fallback: true,
		Reason:   fmt.Sprintf("unrecognized utm campaign %q", campaign),
	}
}

func (s *Selector) bestPrice(ctx context.Context, handle string) (Decision, error) {
	candidates, err := s.candidates(handle)
	if err != nil {
		return Decision{}, err
	}
	offers, err := s.quoter.Quotes(ctx, handle, candidates)
	if err != nil {
		return Decision{}, err
	}

	var best *model.Offer
	for i := range offers {
		o := &offers[i]
		if !o.Available {
			continue
		}
		if best == nil || o.Price.Less(best.Price) {
			best = o
		}
	}
	if best == nil {
		return s.firstCandidate(ctx, BestPrice, handle, candidates), nil
	}
	return Decision{
		StoreID:  best.StoreID,
		Strategy: BestPrice,
		Reason:   "lowest price " + best.Price.String(),
	}, nil
}

func (s *Selector) bestAvailability(ctx context.Context, handle string) (Decision, error) {
	candidates, err := s.candidates(handle)
	if err != nil {
		return Decision{}, err
	}
	offers, err := s.quoter.Quotes(ctx, handle, candidates)
	if err != nil {
		return Decision{}, err
	}

	var best, firstAvailable *model.Offer
	for i := range offers {
		o := &offers[i]
		if !o.Available {
			continue
		}
		if firstAvailable == nil {
			firstAvailable = o
		}
		if o.Quantity > 0 && (best == nil || o.Quantity > best.Quantity) {
			best = o
		}
	}

	switch {
	case best != nil:
		return Decision{
			StoreID:  best.StoreID,
			Strategy: BestAvailability,
			Reason:   fmt.Sprintf("highest stock %d", best.Quantity),
		}, nil
	case firstAvailable != nil:
		// Stock counts hidden; any store selling the product will do.
		return Decision{
			StoreID:  firstAvailable.StoreID,
			Strategy: BestAvailability,
			Reason:   "available, stock not reported",
		}, nil
	default:
		return s.firstCandidate(ctx, BestAvailability, handle, candidates), nil
	}
}

func (s *Selector) fixedPreference(handle, storeID string) (Decision, error) {
	if storeID == "" {
		return Decision{}, model.NewValidationError("store", "required for fixed_preference")
	}
	if _, err := s.registry.Get(storeID); err != nil {
		return Decision{}, err
	}
	candidates, err := s.candidates(handle)
	if err != nil {
		return Decision{}, err
	}
	if !slices.Contains(candidates, storeID) {
		return Decision{}, model.NewNotFoundError(fmt.Sprintf("product %q on store %s", handle, storeID))
	}
	return Decision{
		StoreID:  storeID,
		Strategy: FixedPreference,
		Reason:   "caller preference",
	}, nil
}

// candidates returns the configured stores carrying handle, in mapping order.
// A product with no mappings is offered to every store.
func (s *Selector) candidates(handle string) ([]string, error) {
	if strings.TrimSpace(handle) == "" {
		return nil, model.NewValidationError("handle", "required")
	}
	product, err := s.catalog.ByHandle(handle)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, id := range product.StoreIDs() {
		if s.registry.Has(id) {
			ids = append(ids, id)
		}
	}
	if len(product.Stores) == 0 {
		ids = s.registry.IDs()
	}
	if len(ids) == 0 {
		return nil, model.NewNotFoundError(fmt.Sprintf("product %q on any configured store", handle))
	}
	return ids, nil
}

func (s *Selector) firstCandidate(ctx context.Context, strategy Strategy, handle string, candidates []string) Decision {
	s.logger.WarnContext(ctx, "no live signal for strategy, using first mapped store",
		slog.String("strategy", string(strategy)),
		slog.String("handle", handle),
		slog.String("store_id", candidates[0]),
		slog.Bool("fallback", true),
	)
	return Decision{
		StoreID:  candidates[0],
		Strategy: strategy,
		Fallback: true,
		Reason:   "no live offers, first store in mapping order",
	}
}

func normalizeCampaign(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
