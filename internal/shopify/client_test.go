package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"quiz-checkout/internal/model"
	"quiz-checkout/internal/transport"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(model.Store{
		ID:              "1",
		Domain:          "www.perfume-one.co.uk",
		APIDomain:       "perfume-one.myshopify.com",
		StorefrontToken: "sf-token",
	}, Config{
		APIVersion: "2025-01",
		BaseURL:    server.URL,
		HTTPClient: transport.New(transport.Options{Timeout: 2 * time.Second, Retries: 1}),
	})
}

func decodeRequest(t *testing.T, r *http.Request) graphQLRequest {
	t.Helper()
	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("decoding request: %v", err)
	}
	return req
}

const productResponse = `{"data":{"product":{
  "id":"gid://shopify/Product/1","handle":"oud-noir","title":"Oud Noir","availableForSale":true,
  "variants":{"edges":[
    {"node":{"id":"gid://shopify/ProductVariant/111","sku":"OUD-50","availableForSale":true,
      "price":{"amount":"44.99","currencyCode":"GBP"},"compareAtPrice":{"amount":"59.99","currencyCode":"GBP"}}},
    {"node":{"id":"gid://shopify/ProductVariant/112","sku":"OUD-100","availableForSale":false,
      "price":{"amount":"64.99","currencyCode":"GBP"},"compareAtPrice":null}}
  ]}}}}`

func TestClient_ProductByHandle(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/2025-01/graphql.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Shopify-Storefront-Access-Token"); got != "sf-token" {
			t.Errorf("token header = %q", got)
		}
		req := decodeRequest(t, r)
		if req.Variables["handle"] != "oud-noir" {
			t.Errorf("handle variable = %v", req.Variables["handle"])
		}
		w.Write([]byte(productResponse))
	})

	p, err := c.ProductByHandle(context.Background(), "oud-noir")
	if err != nil {
		t.Fatalf("ProductByHandle() error = %v", err)
	}

	v, ok := p.FirstVariant()
	if !ok {
		t.Fatal("expected variants")
	}
	if v.ID != "111" || v.GID != "gid://shopify/ProductVariant/111" {
		t.Errorf("variant = %+v", v)
	}
	if v.Price.Cents() != 4499 || v.Price.Currency != "GBP" {
		t.Errorf("price = %v", v.Price)
	}
	if !v.Price.OnSale {
		t.Error("variant with higher compareAt should be on sale")
	}
	if p.Variants[1].Price.OnSale {
		t.Error("variant without compareAt should not be on sale")
	}
}

func TestClient_ProductByHandle_NotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"product":null}}`))
	})

	p, err := c.ProductByHandle(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ProductByHandle() error = %v, want nil", err)
	}
	if p != nil {
		t.Errorf("product = %+v, want nil", p)
	}
}

func TestClient_GraphQLErrorsAreTransport(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}]}`))
	})

	_, err := c.ProductByHandle(context.Background(), "oud-noir")
	if !errors.Is(err, model.ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	if !strings.Contains(err.Error(), "Throttled") {
		t.Errorf("error should carry the GraphQL message, got %v", err)
	}
}

func TestClient_ServerErrorRetriedOnce(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.ProductByHandle(context.Background(), "oud-noir")
	if !errors.Is(err, model.ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", got)
	}
}

func TestClient_UnauthorizedNotRetried(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.ProductByHandle(context.Background(), "oud-noir")
	if !errors.Is(err, model.ErrStorefrontAuth) {
		t.Fatalf("error = %v, want ErrStorefrontAuth", err)
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 502 || apiErr.Retryable() {
		t.Errorf("error = %#v, want non-retryable 502", apiErr)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestClient_Upstream4xxIsUpstreamError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Not Found"))
	})

	_, err := c.ProductByHandle(context.Background(), "oud-noir")
	if !errors.Is(err, model.ErrUpstreamRejected) || errors.Is(err, model.ErrStorefrontAuth) {
		t.Fatalf("error = %v, want ErrUpstreamRejected only", err)
	}
	if errors.Is(err, model.ErrTransport) {
		t.Error("4xx should not be a transport failure")
	}
}

func TestClient_Variant(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if req.Variables["id"] != "gid://shopify/ProductVariant/111" {
			w.Write([]byte(`{"data":{"node":null}}`))
			return
		}
		w.Write([]byte(`{"data":{"node":{"id":"gid://shopify/ProductVariant/111","availableForSale":true,
			"price":{"amount":"44.99","currencyCode":"GBP"},"product":{"handle":"oud-noir"}}}}`))
	})

	v, err := c.Variant(context.Background(), "111")
	if err != nil {
		t.Fatalf("Variant() error = %v", err)
	}
	if v == nil || v.Handle != "oud-noir" || !v.AvailableForSale {
		t.Errorf("variant = %+v", v)
	}

	missing, err := c.Variant(context.Background(), "999")
	if err != nil || missing != nil {
		t.Errorf("Variant(999) = %+v, %v; want nil, nil", missing, err)
	}
}

func TestClient_CartCreate(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if !strings.Contains(req.Query, "cartCreate") {
			t.Errorf("query = %s", req.Query)
		}
		input := req.Variables["input"].(map[string]any)
		lines := input["lines"].([]any)
		first := lines[0].(map[string]any)
		if first["merchandiseId"] != "gid://shopify/ProductVariant/123" || first["quantity"] != float64(2) {
			t.Errorf("line = %v", first)
		}
		w.Write([]byte(`{"data":{"cartCreate":{"cart":{"id":"gid://shopify/Cart/c1",
			"checkoutUrl":"https://www.perfume-one.co.uk/cart/c/c1?key=k"},"userErrors":[]}}}`))
	})

	cart, err := c.CartCreate(context.Background(), []model.CartLine{{VariantID: "123", Quantity: 2}})
	if err != nil {
		t.Fatalf("CartCreate() error = %v", err)
	}
	if cart.CheckoutURL != "https://www.perfume-one.co.uk/cart/c/c1?key=k" {
		t.Errorf("CheckoutURL = %s", cart.CheckoutURL)
	}
}

func TestClient_CartCreate_UserErrors(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"cartCreate":{"cart":null,"userErrors":[
			{"code":"INVALID","field":["input","lines","0","merchandiseId"],
			 "message":"The merchandise with id gid://shopify/ProductVariant/123 does not exist."}]}}}`))
	})

	_, err := c.CartCreate(context.Background(), []model.CartLine{{VariantID: "123", Quantity: 1}})

	var ue UserErrors
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want UserErrors", err)
	}
	if !ue.ReferencesMerchandise() {
		t.Error("merchandiseId field error should reference merchandise")
	}
	if errors.Is(err, model.ErrTransport) {
		t.Error("user errors must not be reported as transport failures")
	}
}

func TestUserErrors_ReferencesMerchandise(t *testing.T) {
	tests := []struct {
		name string
		errs UserErrors
		want bool
	}{
		{"code", UserErrors{{Code: "MERCHANDISE_OUT_OF_STOCK"}}, true},
		{"message", UserErrors{{Code: "INVALID", Message: "Merchandise does not exist"}}, true},
		{"quantity", UserErrors{{Code: "LESS_THAN", Field: []string{"input", "lines", "0", "quantity"}, Message: "must be less than 1000"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.errs.ReferencesMerchandise(); got != tt.want {
				t.Errorf("ReferencesMerchandise() = %v, want %v", got, tt.want)
			}
		})
	}
}
