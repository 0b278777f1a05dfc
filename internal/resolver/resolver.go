// Package resolver maps a canonical handle to a store's current variant ID.
//
// Resolution order:
//  1. static mapping table (regenerated offline, best effort)
//  2. live lookup cache, keyed by (domain, query, variables)
//  3. live Storefront API product-by-handle, first variant
//
// An empty storefront answer is NotFound; a failed call is a transport error.
// The two are never conflated.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"quiz-checkout/internal/cache"
	"quiz-checkout/internal/catalog"
	"quiz-checkout/internal/model"
	"quiz-checkout/internal/shopify"
	"quiz-checkout/internal/store"
)

// Source records where a resolution came from.
type Source string

const (
	SourceStatic Source = "static"
	SourceCache  Source = "cache"
	SourceLive   Source = "live"
)

// Resolution is a resolved variant for (handle, store).
type Resolution struct {
	Handle    string `json:"handle"`
	StoreID   string `json:"storeId"`
	VariantID string `json:"variantId"`
	Source    Source `json:"source"`
}

const (
	// maxQuoteConcurrency bounds parallel storefront calls in Quotes.
	maxQuoteConcurrency = 4

	// DefaultFetchTimeout bounds a shared live lookup once detached from the
	// caller that started it.
	DefaultFetchTimeout = 10 * time.Second
)

// Config holds resolver dependencies.
type Config struct {
	Registry    *store.Registry
	Storefronts shopify.Provider
	Mapping     *catalog.Mapping
	// Cache holds live product lookups; nil entries record "no such product".
	Cache        *cache.Cache[*shopify.Product]
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// Resolver resolves variants and quotes offers across stores.
type Resolver struct {
	registry     *store.Registry
	storefronts  shopify.Provider
	mapping      *catalog.Mapping
	cache        *cache.Cache[*shopify.Product]
	fetchTimeout time.Duration
	logger       *slog.Logger
	group        singleflight.Group
}

// New creates a resolver. Missing Mapping/Cache/Logger get empty defaults.
func New(cfg Config) *Resolver {
	if cfg.Mapping == nil {
		cfg.Mapping = catalog.NewMapping(nil)
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New[*shopify.Product](cache.DefaultTTL, nil)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		registry:     cfg.Registry,
		storefronts:  cfg.Storefronts,
		mapping:      cfg.Mapping,
		cache:        cfg.Cache,
		fetchTimeout: cfg.FetchTimeout,
		logger:       cfg.Logger,
	}
}

// Resolve returns the variant ID for handle on storeID.
func (r *Resolver) Resolve(ctx context.Context, handle, storeID string) (Resolution, error) {
	handle, err := normalizeHandle(handle)
	if err != nil {
		return Resolution{}, err
	}
	st, err := r.registry.Get(storeID)
	if err != nil {
		return Resolution{}, err
	}

	if variantID, ok := r.mapping.Lookup(storeID, handle); ok {
		return Resolution{Handle: handle, StoreID: storeID, VariantID: variantID, Source: SourceStatic}, nil
	}

	key := productKey(st, shopify.ProductByHandleQuery, handle)
	if product, ok := r.cache.Get(key); ok {
		return toResolution(handle, storeID, product, SourceCache)
	}

	product, err := r.fetch(ctx, st, key, handle, false)
	if err != nil {
		return Resolution{}, err
	}
	return toResolution(handle, storeID, product, SourceLive)
}

// ResolveLive skips the static table and cache, and drops the static entry for
// (storeID, handle). Used once a mapped variant has been rejected by the store.
func (r *Resolver) ResolveLive(ctx context.Context, handle, storeID string) (Resolution, error) {
	handle, err := normalizeHandle(handle)
	if err != nil {
		return Resolution{}, err
	}
	st, err := r.registry.Get(storeID)
	if err != nil {
		return Resolution{}, err
	}

	if stale, ok := r.mapping.Lookup(storeID, handle); ok {
		r.logger.WarnContext(ctx, "dropping stale static mapping",
			slog.String("store_id", storeID),
			slog.String("handle", handle),
			slog.String("variant_id", stale),
		)
		r.mapping.Forget(storeID, handle)
	}

	key := productKey(st, shopify.ProductByHandleQuery, handle)
	r.cache.Delete(key)

	product, err := r.fetch(ctx, st, key, handle, false)
	if err != nil {
		return Resolution{}, err
	}
	return toResolution(handle, storeID, product, SourceLive)
}

// Quote returns the live price and stock of handle's first variant on storeID.
func (r *Resolver) Quote(ctx context.Context, handle, storeID string) (model.Offer, error) {
	handle, err := normalizeHandle(handle)
	if err != nil {
		return model.Offer{}, err
	}
	st, err := r.registry.Get(storeID)
	if err != nil {
		return model.Offer{}, err
	}

	key := productKey(st, shopify.ProductQuoteQuery, handle)
	product, ok := r.cache.Get(key)
	if !ok {
		product, err = r.fetch(ctx, st, key, handle, true)
		if err != nil {
			return model.Offer{}, err
		}
	}

	v, ok := product.FirstVariant()
	if !ok {
		return model.Offer{}, model.NewNotFoundError(fmt.Sprintf("product %q on store %s", handle, storeID))
	}

	qty := -1
	if v.QuantityAvailable != nil {
		qty = *v.QuantityAvailable
	}
	return model.Offer{
		StoreID:   storeID,
		VariantID: v.ID,
		Price:     v.Price,
		Available: v.AvailableForSale,
		Quantity:  qty,
	}, nil
}

// Quotes fetches offers from storeIDs in parallel. Stores that fail or do not
// carry the product are logged and left out; order follows storeIDs.
func (r *Resolver) Quotes(ctx context.Context, handle string, storeIDs []string) ([]model.Offer, error) {
	results := make([]*model.Offer, len(storeIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxQuoteConcurrency)

	for i, storeID := range storeIDs {
		g.Go(func() error {
			offer, err := r.Quote(gctx, handle, storeID)
			if err != nil {
				r.logger.WarnContext(ctx, "quote unavailable",
					slog.String("store_id", storeID),
					slog.String("handle", handle),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			results[i] = &offer
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	offers := make([]model.Offer, 0, len(storeIDs))
	for _, o := range results {
		if o != nil {
			offers = append(offers, *o)
		}
	}
	return offers, nil
}

// Invalidate drops every cached live lookup.
func (r *Resolver) Invalidate() {
	r.cache.Clear()
}

// fetch performs one live product lookup, collapsing concurrent misses on
// the same key, and caches the outcome (including "not found").
// The shared call runs detached from ctx so one caller giving up does not
// fail the others; each caller still stops waiting when its own ctx ends.
func (r *Resolver) fetch(ctx context.Context, st model.Store, key, handle string, quote bool) (*shopify.Product, error) {
	ch := r.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()

		sf, err := r.storefronts.Storefront(st.ID)
		if err != nil {
			return nil, err
		}

		var product *shopify.Product
		if quote {
			product, err = sf.ProductQuote(fctx, handle)
		} else {
			product, err = sf.ProductByHandle(fctx, handle)
		}
		if err != nil {
			r.logger.ErrorContext(fctx, "live variant lookup failed",
				slog.String("store_id", st.ID),
				slog.String("domain", st.APIDomain),
				slog.String("handle", handle),
				slog.String("error", err.Error()),
			)
			return nil, asResolutionFailure(err)
		}

		r.cache.Set(key, product)
		r.logger.DebugContext(fctx, "live variant lookup",
			slog.String("store_id", st.ID),
			slog.String("handle", handle),
			slog.Bool("found", product != nil),
		)
		return product, nil
	})

	select {
	case <-ctx.Done():
		return nil, model.NewTransportError("Shopify", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		product, _ := res.Val.(*shopify.Product)
		return product, nil
	}
}

func toResolution(handle, storeID string, product *shopify.Product, src Source) (Resolution, error) {
	v, ok := product.FirstVariant()
	if !ok {
		return Resolution{}, model.NewNotFoundError(fmt.Sprintf("product %q on store %s", handle, storeID))
	}
	return Resolution{Handle: handle, StoreID: storeID, VariantID: v.ID, Source: src}, nil
}

// asResolutionFailure keeps structured errors and wraps anything else as a
// transport failure so it is never mistaken for "not found".
func asResolutionFailure(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return model.NewTransportError("Shopify", err)
}

func normalizeHandle(handle string) (string, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return "", model.NewValidationError("handle", "required")
	}
	return handle, nil
}

func productKey(st model.Store, query, handle string) string {
	return cache.Key(st.APIDomain, query, map[string]any{"handle": handle})
}
