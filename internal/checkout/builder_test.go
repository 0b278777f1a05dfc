package checkout

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"quiz-checkout/internal/model"
	"quiz-checkout/internal/shopify"
	"quiz-checkout/internal/store"
)

func testBuilder(t *testing.T, mock *shopify.Mock) *Builder {
	t.Helper()
	reg, err := store.New([]model.Store{
		{ID: "1", Domain: "www.perfume-one.co.uk", APIDomain: "example.myshopify.com"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewBuilder(reg, shopify.MockProvider{"1": mock}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDirectURL(t *testing.T) {
	got := DirectURL("example.myshopify.com", []model.CartLine{{VariantID: "123", Quantity: 2}})
	if got != "https://example.myshopify.com/cart/123:2" {
		t.Errorf("DirectURL() = %q", got)
	}

	got = DirectURL("https://example.myshopify.com/", []model.CartLine{
		{VariantID: "gid://shopify/ProductVariant/123", Quantity: 2},
		{VariantID: "456", Quantity: 1},
	})
	if got != "https://example.myshopify.com/cart/123:2,456:1" {
		t.Errorf("DirectURL() multi-line = %q", got)
	}
}

func TestParseCartPath_RoundTrip(t *testing.T) {
	lines := []model.CartLine{{VariantID: "123", Quantity: 2}, {VariantID: "456", Quantity: 1}}

	parsed, err := ParseCartPath(DirectURL("example.myshopify.com", lines))
	if err != nil {
		t.Fatalf("ParseCartPath() error = %v", err)
	}
	if len(parsed) != len(lines) {
		t.Fatalf("parsed %d lines, want %d", len(parsed), len(lines))
	}
	for i := range lines {
		if parsed[i] != lines[i] {
			t.Errorf("line %d = %+v, want %+v", i, parsed[i], lines[i])
		}
	}
}

func TestParseCartPath_Invalid(t *testing.T) {
	tests := []string{
		"https://example.myshopify.com/products/oud",
		"https://example.myshopify.com/cart/abc:1",
		"https://example.myshopify.com/cart/123",
		"https://example.myshopify.com/cart/123:0",
		"https://example.myshopify.com/cart/123:x",
	}
	for _, u := range tests {
		if _, err := ParseCartPath(u); err == nil {
			t.Errorf("ParseCartPath(%q) expected error", u)
		}
	}
}

func TestBuild_EmptyLinesRejectedBeforeNetwork(t *testing.T) {
	mock := &shopify.Mock{}
	b := testBuilder(t, mock)

	_, err := b.Build(context.Background(), "1", nil)
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
	if n := mock.Calls.Load(); n != 0 {
		t.Errorf("network calls = %d, want 0", n)
	}
}

func TestBuild_InvalidQuantityRejected(t *testing.T) {
	mock := &shopify.Mock{}
	b := testBuilder(t, mock)

	for _, qty := range []int{0, -1, MaxLineQuantity + 1} {
		_, err := b.Build(context.Background(), "1", []model.CartLine{{VariantID: "123", Quantity: qty}})
		if !errors.Is(err, model.ErrInvalidRequest) {
			t.Errorf("quantity %d: error = %v, want ErrInvalidRequest", qty, err)
		}
	}
	if n := mock.Calls.Load(); n != 0 {
		t.Errorf("network calls = %d, want 0", n)
	}
}

func TestBuild_CartCreateRewritesCustomDomain(t *testing.T) {
	mock := &shopify.Mock{
		CartCreateFunc: func(ctx context.Context, lines []model.CartLine) (*shopify.Cart, error) {
			return &shopify.Cart{CheckoutURL: "https://www.perfume-one.co.uk/cart/c/abc?key=k"}, nil
		},
	}
	b := testBuilder(t, mock)

	got, err := b.Build(context.Background(), "1", []model.CartLine{{VariantID: "123", Quantity: 2}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got.CheckoutURL != "https://example.myshopify.com/cart/c/abc?key=k" {
		t.Errorf("CheckoutURL = %q", got.CheckoutURL)
	}
	if got.Method != model.MethodCartCreate || got.Degraded {
		t.Errorf("checkout = %+v, want non-degraded cart_create", got)
	}
}

func TestBuild_FallsBackOnTransportFailure(t *testing.T) {
	mock := &shopify.Mock{
		CartCreateFunc: func(ctx context.Context, lines []model.CartLine) (*shopify.Cart, error) {
			return nil, model.NewTransportError("Shopify", errors.New("timeout"))
		},
	}
	b := testBuilder(t, mock)

	got, err := b.Build(context.Background(), "1", []model.CartLine{{VariantID: "123", Quantity: 2}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got.CheckoutURL != "https://example.myshopify.com/cart/123:2" {
		t.Errorf("CheckoutURL = %q", got.CheckoutURL)
	}
	if !got.Degraded || got.Method != model.MethodCartPath {
		t.Errorf("checkout = %+v, want degraded cart_path", got)
	}
}

func TestBuild_RejectedTokenLoggedAsError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
	}{
		{"token rejected", model.NewUpstreamError("Shopify", 401, errors.New("bad token")), "level=ERROR"},
		{"timeout", model.NewTransportError("Shopify", context.DeadlineExceeded), "level=WARN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			reg, err := store.New([]model.Store{{ID: "1", Domain: "example.myshopify.com"}})
			if err != nil {
				t.Fatal(err)
			}
			mock := &shopify.Mock{CartCreateFunc: func(ctx context.Context, lines []model.CartLine) (*shopify.Cart, error) {
				return nil, tt.err
			}}
			b := NewBuilder(reg, shopify.MockProvider{"1": mock}, slog.New(slog.NewTextHandler(&logs, nil)))

			got, err := b.Build(context.Background(), "1", []model.CartLine{{VariantID: "123", Quantity: 1}})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if !got.Degraded {
				t.Error("expected degraded cart path")
			}
			if !strings.Contains(logs.String(), tt.wantLevel) {
				t.Errorf("log = %q, want %s", logs.String(), tt.wantLevel)
			}
		})
	}
}

func TestBuild_UserErrorsSurfaced(t *testing.T) {
	tests := []struct {
		name string
		errs shopify.UserErrors
		want error
	}{
		{
			name: "stale variant",
			errs: shopify.UserErrors{{Code: "INVALID", Field: []string{"input", "lines", "0", "merchandiseId"}, Message: "does not exist"}},
			want: model.ErrStaleMapping,
		},
		{
			name: "other rejection",
			errs: shopify.UserErrors{{Code: "INVALID", Field: []string{"input", "buyerIdentity"}, Message: "bad country"}},
			want: model.ErrUserErrors,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &shopify.Mock{
				CartCreateFunc: func(ctx context.Context, lines []model.CartLine) (*shopify.Cart, error) {
					return nil, tt.errs
				},
			}
			b := testBuilder(t, mock)

			got, err := b.Build(context.Background(), "1", []model.CartLine{{VariantID: "123", Quantity: 1}})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if got.CheckoutURL != "" {
				t.Errorf("user errors must not fall back to a direct URL, got %q", got.CheckoutURL)
			}
		})
	}
}

func TestBuild_UnknownStore(t *testing.T) {
	b := testBuilder(t, &shopify.Mock{})

	_, err := b.Build(context.Background(), "2", []model.CartLine{{VariantID: "123", Quantity: 1}})
	if !errors.Is(err, model.ErrStoreNotFound) {
		t.Errorf("error = %v, want ErrStoreNotFound", err)
	}
}

func TestRewriteHost(t *testing.T) {
	st := model.Store{Domain: "www.perfume-one.co.uk", APIDomain: "example.myshopify.com"}

	tests := []struct {
		in, want string
	}{
		{"https://www.perfume-one.co.uk/cart/c/1?key=a", "https://example.myshopify.com/cart/c/1?key=a"},
		{"https://example.myshopify.com/cart/c/1", "https://example.myshopify.com/cart/c/1"},
		{"https://checkout.perfume-one.co.uk/cart/c/1", "https://example.myshopify.com/cart/c/1"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := RewriteHost(tt.in, st); got != tt.want {
			t.Errorf("RewriteHost(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
