// Package reconcile compares the static variant mapping against what the
// live storefronts report.
// The resulting drift report feeds the offline mapping regeneration: stale
// entries get the live variant, entries missing live are dropped and
// unmapped products are added.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"quiz-checkout/internal/model"
	"quiz-checkout/internal/shopify"
)

// Status classifies one (store, handle) pair.
type Status string

const (
	StatusConfirmed   Status = "confirmed"    // static and live agree
	StatusStale       Status = "stale"        // live has a different variant
	StatusMissingLive Status = "missing_live" // mapped, but the store no longer sells it
	StatusUnmapped    Status = "unmapped"     // sold live, absent from the static table
	StatusUnchecked   Status = "unchecked"    // mapped, but the live lookup failed
)

// Entry is the audit result for one (store, handle) pair.
type Entry struct {
	StoreID         string `json:"store_id"`
	Handle          string `json:"handle"`
	StaticVariantID string `json:"static_variant_id,omitempty"`
	LiveVariantID   string `json:"live_variant_id,omitempty"`
	Status          Status `json:"status"`
}

// Report is a sorted list of entries.
type Report struct {
	Entries []Entry `json:"entries"`
}

// Counts returns the number of entries per status.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, e := range r.Entries {
		counts[e.Status]++
	}
	return counts
}

// HasDrift returns true if any entry needs the mapping regenerated.
func (r *Report) HasDrift() bool {
	for _, e := range r.Entries {
		switch e.Status {
		case StatusStale, StatusMissingLive, StatusUnmapped:
			return true
		}
	}
	return false
}

// Regenerated returns the mapping with drift applied. Unchecked entries keep
// their static value.
func (r *Report) Regenerated() map[string]map[string]string {
	out := make(map[string]map[string]string)
	set := func(storeID, handle, variantID string) {
		if out[storeID] == nil {
			out[storeID] = make(map[string]string)
		}
		out[storeID][handle] = variantID
	}
	for _, e := range r.Entries {
		switch e.Status {
		case StatusConfirmed, StatusUnchecked:
			set(e.StoreID, e.Handle, e.StaticVariantID)
		case StatusStale, StatusUnmapped:
			set(e.StoreID, e.Handle, e.LiveVariantID)
		}
	}
	return out
}

// Observation is the live state of a set of (store, handle) pairs:
// storeID → handle → variantID, where "" means the store reported no such
// product. Pairs whose lookup failed are absent.
type Observation map[string]map[string]string

// Diff classifies every pair present in either static or live.
// Matching is on numeric variant IDs.
func Diff(static map[string]map[string]string, live Observation) *Report {
	report := &Report{}

	for storeID, handles := range static {
		for handle, staticID := range handles {
			e := Entry{StoreID: storeID, Handle: handle, StaticVariantID: model.NumericID(staticID)}
			liveID, observed := live[storeID][handle]
			e.LiveVariantID = model.NumericID(liveID)
			switch {
			case !observed:
				e.Status = StatusUnchecked
			case liveID == "":
				e.Status = StatusMissingLive
			case e.LiveVariantID == e.StaticVariantID:
				e.Status = StatusConfirmed
			default:
				e.Status = StatusStale
			}
			report.Entries = append(report.Entries, e)
		}
	}

	for storeID, handles := range live {
		for handle, liveID := range handles {
			if _, mapped := static[storeID][handle]; mapped || liveID == "" {
				continue
			}
			report.Entries = append(report.Entries, Entry{
				StoreID:       storeID,
				Handle:        handle,
				LiveVariantID: model.NumericID(liveID),
				Status:        StatusUnmapped,
			})
		}
	}

	sort.Slice(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i], report.Entries[j]
		if a.StoreID != b.StoreID {
			return a.StoreID < b.StoreID
		}
		return a.Handle < b.Handle
	})
	return report
}

// LookupFunc returns the live variant ID for handle on storeID.
// A model.ErrNotFound error means the store does not sell the product.
type LookupFunc func(ctx context.Context, storeID, handle string) (string, error)

// StorefrontLookup returns a LookupFunc backed by live storefronts.
// A mapped variant that still exists on the same product and is for sale is
// reported as-is, even when it is not the product's first variant. Anything
// else falls back to the first variant of the live product.
func StorefrontLookup(static map[string]map[string]string, storefronts shopify.Provider) LookupFunc {
	return func(ctx context.Context, storeID, handle string) (string, error) {
		sf, err := storefronts.Storefront(storeID)
		if err != nil {
			return "", err
		}

		if staticID := static[storeID][handle]; staticID != "" {
			v, err := sf.Variant(ctx, staticID)
			if err != nil {
				return "", err
			}
			if v != nil && v.AvailableForSale && v.Handle == handle {
				return staticID, nil
			}
		}

		product, err := sf.ProductByHandle(ctx, handle)
		if err != nil {
			return "", err
		}
		v, ok := product.FirstVariant()
		if !ok {
			return "", model.NewNotFoundError(handle)
		}
		return v.ID, nil
	}
}

// Observe looks up every (store, handle) pair with at most limit lookups in
// flight. Failed lookups are returned joined and left out of the observation.
func Observe(ctx context.Context, storeIDs, handles []string, limit int, lookup LookupFunc) (Observation, error) {
	obs := make(Observation, len(storeIDs))
	for _, id := range storeIDs {
		obs[id] = make(map[string]string, len(handles))
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, storeID := range storeIDs {
		for _, handle := range handles {
			g.Go(func() error {
				variantID, err := lookup(gctx, storeID, handle)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					obs[storeID][handle] = variantID
				case errors.Is(err, model.ErrNotFound):
					obs[storeID][handle] = ""
				default:
					errs = append(errs, err)
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	return obs, errors.Join(errs...)
}
