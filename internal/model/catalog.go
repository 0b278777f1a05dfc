// Package model holds the shared domain types of the checkout funnel:
// canonical catalog products, per-store mappings, cart lines and the
// error taxonomy surfaced to the quiz frontend.
package model

import (
	"strings"
)

// CanonicalProduct is a product of the unified catalog.
// Handle is the join key across the catalog and every storefront.
type CanonicalProduct struct {
	Handle      string         `json:"handle"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Price       Money          `json:"price"`
	Category    string         `json:"category,omitempty"`
	Brands      []string       `json:"brands,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Images      []string       `json:"images,omitempty"`
	Stores      []StoreMapping `json:"stores,omitempty"`
}

// StoreIDs returns the IDs of the stores carrying the product, in mapping order.
func (p CanonicalProduct) StoreIDs() []string {
	ids := make([]string, 0, len(p.Stores))
	seen := make(map[string]bool, len(p.Stores))
	for _, m := range p.Stores {
		if seen[m.StoreID] {
			continue
		}
		seen[m.StoreID] = true
		ids = append(ids, m.StoreID)
	}
	return ids
}

// Mapping returns the first mapping for storeID.
func (p CanonicalProduct) Mapping(storeID string) (StoreMapping, bool) {
	for _, m := range p.Stores {
		if m.StoreID == storeID {
			return m, true
		}
	}
	return StoreMapping{}, false
}

// StoreMapping points a canonical handle at a store-specific product record.
// It is a point-in-time snapshot; VariantID may be stale.
type StoreMapping struct {
	StoreID   string `json:"store_id"`
	Domain    string `json:"domain,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	VariantID string `json:"variant_id,omitempty"`
	SKU       string `json:"sku,omitempty"`
}

// Store is a configured Shopify storefront.
// Domain is customer-facing; APIDomain is the *.myshopify.com host.
type Store struct {
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	Domain          string `json:"domain"`
	APIDomain       string `json:"api_domain"`
	StorefrontToken string `json:"storefront_token"`
	AdminToken      string `json:"admin_token,omitempty"`
}

// CartLine is a single (variant, quantity) pair for one checkout request.
type CartLine struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// CheckoutMethod records how a checkout URL was produced.
type CheckoutMethod string

const (
	MethodCartCreate CheckoutMethod = "cart_create"
	MethodCartPath   CheckoutMethod = "cart_path"
)

// ResolvedCheckout is the result of a checkout request.
type ResolvedCheckout struct {
	CheckoutURL string         `json:"checkoutUrl"`
	StoreID     string         `json:"storeId"`
	Method      CheckoutMethod `json:"method"`
	// Degraded is set when the cart mutation failed and the direct cart path
	// was returned instead.
	Degraded bool `json:"degraded,omitempty"`
}

// Offer is a live price/stock quote for a handle on one store.
type Offer struct {
	StoreID   string `json:"store_id"`
	VariantID string `json:"variant_id"`
	Price     Money  `json:"price"`
	Available bool   `json:"available"`
	// Quantity is quantityAvailable; -1 when the store does not expose it.
	Quantity int `json:"quantity"`
}

const variantGIDPrefix = "gid://shopify/ProductVariant/"

// VariantGID returns the Storefront API global ID for a numeric variant ID.
// IDs that are already GIDs are returned unchanged.
func VariantGID(id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return variantGIDPrefix + id
}

// NumericID strips a Shopify GID down to its trailing numeric part.
// "gid://shopify/ProductVariant/123?x=y" → "123".
func NumericID(gid string) string {
	if !strings.HasPrefix(gid, "gid://") {
		return gid
	}
	id := gid[strings.LastIndex(gid, "/")+1:]
	if i := strings.IndexByte(id, '?'); i >= 0 {
		id = id[:i]
	}
	return id
}
