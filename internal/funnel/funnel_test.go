package funnel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"quiz-checkout/internal/catalog"
	"quiz-checkout/internal/checkout"
	"quiz-checkout/internal/model"
	"quiz-checkout/internal/resolver"
	"quiz-checkout/internal/selection"
	"quiz-checkout/internal/shopify"
	"quiz-checkout/internal/store"
)

type fakeCatalog struct {
	products    map[string]model.CanonicalProduct
	invalidated atomic.Int32
}

func (c *fakeCatalog) ByHandle(handle string) (model.CanonicalProduct, error) {
	p, ok := c.products[handle]
	if !ok {
		return model.CanonicalProduct{}, model.NewNotFoundError("product " + handle)
	}
	return p, nil
}

func (c *fakeCatalog) Invalidate() { c.invalidated.Add(1) }

type fixture struct {
	service *Service
	mocks   shopify.MockProvider
	mapping *catalog.Mapping
	catalog *fakeCatalog
}

func newFixture(t *testing.T, static map[string]map[string]string) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg, err := store.New([]model.Store{
		{ID: "1", Domain: "perfume-one.myshopify.com"},
		{ID: "2", Domain: "perfume-two.myshopify.com"},
	})
	if err != nil {
		t.Fatal(err)
	}
	mocks := shopify.MockProvider{"1": &shopify.Mock{}, "2": &shopify.Mock{}}
	mapping := catalog.NewMapping(static)
	cat := &fakeCatalog{products: map[string]model.CanonicalProduct{
		"oud-wood": {Handle: "oud-wood", Stores: []model.StoreMapping{{StoreID: "1"}, {StoreID: "2"}}},
		"neroli":   {Handle: "neroli", Stores: []model.StoreMapping{{StoreID: "1"}}},
	}}

	res := resolver.New(resolver.Config{
		Registry:    reg,
		Storefronts: mocks,
		Mapping:     mapping,
		Logger:      logger,
	})
	sel, err := selection.New(selection.Config{
		Registry:        reg,
		Catalog:         cat,
		Quoter:          res,
		UTMStores:       map[string]string{"tiktok-two": "2"},
		FallbackStoreID: "1",
		Logger:          logger,
	})
	if err != nil {
		t.Fatal(err)
	}

	svc := New(Config{
		Resolver: res,
		Selector: sel,
		Builder:  checkout.NewBuilder(reg, mocks, logger),
		Catalog:  cat,
		Logger:   logger,
	})
	return &fixture{service: svc, mocks: mocks, mapping: mapping, catalog: cat}
}

func liveProduct(handle, variantID string) *shopify.Product {
	return &shopify.Product{Handle: handle, Variants: []shopify.Variant{{ID: variantID, AvailableForSale: true}}}
}

func cartURL(lines []model.CartLine) *shopify.Cart {
	return &shopify.Cart{CheckoutURL: "https://perfume-one.myshopify.com/cart/c/" + lines[0].VariantID}
}

func TestCheckout_UsesStaticMapping(t *testing.T) {
	f := newFixture(t, map[string]map[string]string{"1": {"oud-wood": "111"}})
	var gotLines []model.CartLine
	f.mocks["1"].CartCreateFunc = func(ctx context.Context, lines []model.CartLine) (*shopify.Cart, error) {
		gotLines = lines
		return cartURL(lines), nil
	}

	got, err := f.service.Checkout(context.Background(), CheckoutRequest{
		Items: []Item{{Handle: "oud-wood", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if got.StoreID != "1" || got.CheckoutURL != "https://perfume-one.myshopify.com/cart/c/111" {
		t.Errorf("checkout = %+v", got)
	}
	if len(gotLines) != 1 || gotLines[0] != (model.CartLine{VariantID: "111", Quantity: 2}) {
		t.Errorf("cart lines = %+v", gotLines)
	}
	if n := f.mocks["1"].Calls.Load(); n != 1 {
		t.Errorf("storefront calls = %d, want 1 (cartCreate only)", n)
	}
}

func TestCheckout_StaleMappingRetriedOnceLive(t *testing.T) {
	f := newFixture(t, map[string]map[string]string{"1": {"oud-wood": "111"}})
	var lookups, carts atomic.Int32
	f.mocks["1"].ProductByHandleFunc = func(ctx context.Context, handle string) (*shopify.Product, error) {
		lookups.Add(1)
		return liveProduct(handle, "222"), nil
	}
	f.mocks["1"].CartCreateFunc = func(ctx context.Context, lines []model.CartLine) (*shopify.Cart, error) {
		carts.Add(1)
		if lines[0].VariantID == "111" {
			return nil, shopify.UserErrors{{Code: "MERCHANDISE_NOT_FOUND", Message: "The merchandise with id 111 does not exist."}}
		}
		return cartURL(lines), nil
	}

	got, err := f.service.Checkout(context.Background(), CheckoutRequest{
		Items: []Item{{Handle: "oud-wood", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if got.CheckoutURL != "https://perfume-one.myshopify.com/cart/c/222" {
		t.Errorf("CheckoutURL = %q", got.CheckoutURL)
	}
	if lookups.Load() != 1 || carts.Load() != 2 {
		t.Errorf("lookups = %d, carts = %d, want 1 and 2", lookups.Load(), carts.Load())
	}
	if _, ok := f.mapping.Lookup("1", "oud-wood"); ok {
		t.Error("stale static entry should have been forgotten")
	}
}

func TestCheckout_PaddedHandleStillRetriesLive(t *testing.T) {
	f := newFixture(t, map[string]map[string]string{"1": {"oud-wood": "111"}})
	var asked atomic.Value
	f.mocks["1"].ProductByHandleFunc = func(ctx context.Context, handle string) (*shopify.Product, error) {
		asked.Store(handle)
		return liveProduct(handle, "222"), nil
	}
	f.mocks["1"].CartCreateFunc = func(ctx context.Context, lines []model.CartLine) (*shopify.Cart, error) {
		if lines[0].VariantID == "111" {
			return nil, shopify.UserErrors{{Code: "MERCHANDISE_NOT_FOUND", Message: "The merchandise with id 111 does not exist."}}
		}
		return cartURL(lines), nil
	}

	got, err := f.service.Checkout(context.Background(), CheckoutRequest{
		Items: []Item{{Handle: " oud-wood ", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if got.CheckoutURL != "https://perfume-one.myshopify.com/cart/c/222" {
		t.Errorf("CheckoutURL = %q", got.CheckoutURL)
	}
	if h, _ := asked.Load().(string); h != "oud-wood" {
		t.Errorf("live lookup handle = %q, want trimmed", h)
	}
	if _, ok := f.mapping.Lookup("1", "oud-wood"); ok {
		t.Error("stale static entry should have been forgotten")
	}
}

func TestCheckout_StaleMappingSurfacesAfterOneRetry(t *testing.T) {
	f := newFixture(t, map[string]map[string]string{"1": {"oud-wood": "111"}})
	var carts atomic.Int32
	f.mocks["1"].ProductByHandleFunc = func(ctx context.Context, handle string) (*shopify.Product, error) {
		return liveProduct(handle, "111"), nil
	}
	f.mocks["1"].CartCreateFunc = func(ctx context.Context, lines []model.CartLine) (*shopify.Cart, error) {
		carts.Add(1)
		return nil, shopify.UserErrors{{Code: "MERCHANDISE_NOT_FOUND", Message: "The merchandise does not exist."}}
	}

	_, err := f.service.Checkout(context.Background(), CheckoutRequest{
		Items: []Item{{Handle: "oud-wood", Quantity: 1}},
	})
	if !errors.Is(err, model.ErrStaleMapping) {
		t.Errorf("error = %v, want ErrStaleMapping", err)
	}
	if n := carts.Load(); n != 2 {
		t.Errorf("cartCreate calls = %d, want 2", n)
	}
}

func TestCheckout_DegradedRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	f.mocks["1"].ProductByHandleFunc = func(ctx context.Context, handle string) (*shopify.Product, error) {
		return liveProduct(handle, "123"), nil
	}

	got, err := f.service.Checkout(context.Background(), CheckoutRequest{
		Items: []Item{{Handle: "oud-wood", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if !got.Degraded {
		t.Fatalf("checkout = %+v, want degraded", got)
	}

	lines, err := checkout.ParseCartPath(got.CheckoutURL)
	if err != nil {
		t.Fatalf("ParseCartPath() error = %v", err)
	}
	if len(lines) != 1 || lines[0] != (model.CartLine{VariantID: "123", Quantity: 2}) {
		t.Errorf("round trip lines = %+v", lines)
	}
}

func TestCheckout_UTMRoutesWholeCart(t *testing.T) {
	f := newFixture(t, map[string]map[string]string{"2": {"oud-wood": "900"}})
	f.mocks["2"].CartCreateFunc = func(ctx context.Context, lines []model.CartLine) (*shopify.Cart, error) {
		return &shopify.Cart{CheckoutURL: "https://perfume-two.myshopify.com/cart/c/x"}, nil
	}

	got, err := f.service.Checkout(context.Background(), CheckoutRequest{
		Items:       []Item{{Handle: "oud-wood", Quantity: 1}},
		UTMCampaign: "TikTok-Two",
	})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if got.StoreID != "2" {
		t.Errorf("StoreID = %q, want 2", got.StoreID)
	}
	if n := f.mocks["1"].Calls.Load(); n != 0 {
		t.Errorf("store 1 calls = %d, want 0", n)
	}
}

func TestCheckout_NoSubstituteStore(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.Checkout(context.Background(), CheckoutRequest{
		Items:   []Item{{Handle: "neroli", Quantity: 1}},
		StoreID: "2",
	})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if n := f.mocks["1"].Calls.Load() + f.mocks["2"].Calls.Load(); n != 0 {
		t.Errorf("storefront calls = %d, want 0", n)
	}
}

func TestCheckout_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  CheckoutRequest
	}{
		{"no items", CheckoutRequest{}},
		{"empty handle", CheckoutRequest{Items: []Item{{Handle: " ", Quantity: 1}}}},
		{"zero quantity", CheckoutRequest{Items: []Item{{Handle: "oud-wood"}}}},
		{"unknown strategy", CheckoutRequest{Items: []Item{{Handle: "oud-wood", Quantity: 1}}, Strategy: "random"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.service.Checkout(context.Background(), tt.req)
			if !errors.Is(err, model.ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
			if n := f.mocks["1"].Calls.Load() + f.mocks["2"].Calls.Load(); n != 0 {
				t.Errorf("storefront calls = %d, want 0", n)
			}
		})
	}
}

func TestCheckout_TransportFailureOnResolve(t *testing.T) {
	f := newFixture(t, nil)
	f.mocks["1"].ProductByHandleFunc = func(ctx context.Context, handle string) (*shopify.Product, error) {
		return nil, model.NewTransportError("Shopify", errors.New("connection reset"))
	}

	_, err := f.service.Checkout(context.Background(), CheckoutRequest{
		Items: []Item{{Handle: "oud-wood", Quantity: 1}},
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || !apiErr.Retryable() {
		t.Errorf("error = %v, want retryable transport error", err)
	}
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t, nil)
	f.service.Invalidate()
	if n := f.catalog.invalidated.Load(); n != 1 {
		t.Errorf("catalog invalidations = %d, want 1", n)
	}
}
