// Package shopify is a minimal Shopify Storefront GraphQL client covering the
// three calls the funnel needs: product by handle, variant by ID and
// cartCreate.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quiz-checkout/internal/model"
	"quiz-checkout/internal/transport"
)

// =============================================================================
// STOREFRONT API CLIENT
// =============================================================================
//
// Endpoint: POST https://{api-domain}/api/{version}/graphql.json
// Auth:     X-Shopify-Storefront-Access-Token
//
// Error classes:
//   - transport (dial, timeout, 5xx, top-level GraphQL errors) → model.ErrTransport
//   - other non-200 answers (401/403 token, 404 domain)         → model.ErrUpstreamRejected
//   - empty result (product/node is null)                       → nil, nil
//   - userErrors on mutations                                   → UserErrors
// =============================================================================

const (
	// DefaultAPIVersion is the Storefront API version used when none is configured.
	DefaultAPIVersion = "2025-01"

	// DefaultTimeout bounds each storefront call, retry included.
	DefaultTimeout = 5 * time.Second

	tokenHeader = "X-Shopify-Storefront-Access-Token"
	userAgent   = "quiz-checkout/1.0"

	// maxResponseSize caps response bodies read from a storefront.
	maxResponseSize = 4 << 20
)

// Config holds settings shared by all storefront clients.
type Config struct {
	APIVersion string
	HTTPClient *http.Client
	// BaseURL overrides "https://{api-domain}". Used in tests.
	BaseURL string
}

// Client talks to one store's Storefront API.
type Client struct {
	httpClient *http.Client
	store      model.Store
	endpoint   string
}

// NewClient creates a Storefront API client for store.
func NewClient(store model.Store, cfg Config) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = transport.New(transport.Options{Timeout: DefaultTimeout, Retries: 1})
	}

	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = "https://" + store.APIDomain
	}

	return &Client{
		httpClient: cfg.HTTPClient,
		store:      store,
		endpoint:   fmt.Sprintf("%s/api/%s/graphql.json", base, cfg.APIVersion),
	}
}

// Store returns the store this client is bound to.
func (c *Client) Store() model.Store {
	return c.store
}

// ProductByHandle fetches a product by handle. Returns nil, nil when the store
// has no product with that handle.
func (c *Client) ProductByHandle(ctx context.Context, handle string) (*Product, error) {
	return c.product(ctx, ProductByHandleQuery, handle)
}

// ProductQuote is ProductByHandle including stock levels.
func (c *Client) ProductQuote(ctx context.Context, handle string) (*Product, error) {
	return c.product(ctx, ProductQuoteQuery, handle)
}

func (c *Client) product(ctx context.Context, query, handle string) (*Product, error) {
	var data productData
	if err := c.Execute(ctx, query, map[string]any{"handle": handle}, &data); err != nil {
		return nil, err
	}
	if data.Product == nil {
		return nil, nil
	}
	return data.Product.toProduct(), nil
}

// Variant fetches a variant by numeric or global ID. Returns nil, nil when
// the store does not know the ID.
func (c *Client) Variant(ctx context.Context, variantID string) (*Variant, error) {
	var data variantData
	vars := map[string]any{"id": model.VariantGID(variantID)}
	if err := c.Execute(ctx, VariantQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Node == nil || data.Node.ID == "" {
		return nil, nil
	}
	v := data.Node.toVariant()
	return &v, nil
}

// CartCreate creates a cart with lines and returns its checkout URL.
// Returns UserErrors when the storefront rejects any line.
func (c *Client) CartCreate(ctx context.Context, lines []model.CartLine) (*Cart, error) {
	input := make([]cartLineInput, len(lines))
	for i, l := range lines {
		input[i] = cartLineInput{
			MerchandiseID: model.VariantGID(l.VariantID),
			Quantity:      l.Quantity,
		}
	}

	var data cartCreateData
	vars := map[string]any{"input": map[string]any{"lines": input}}
	if err := c.Execute(ctx, CartCreateMutation, vars, &data); err != nil {
		return nil, err
	}

	if len(data.CartCreate.UserErrors) > 0 {
		return nil, data.CartCreate.UserErrors
	}
	if data.CartCreate.Cart == nil || data.CartCreate.Cart.CheckoutURL == "" {
		return nil, model.NewTransportError("Shopify", fmt.Errorf("cartCreate returned no checkout URL"))
	}

	return &Cart{
		ID:          data.CartCreate.Cart.ID,
		CheckoutURL: data.CartCreate.Cart.CheckoutURL,
	}, nil
}

// === HTTP Helpers ===

// Execute runs a GraphQL document and decodes the data field into out.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(tokenHeader, c.store.StorefrontToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewTransportError("Shopify", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return model.NewTransportError("Shopify", fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp.StatusCode, respBody)
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return model.NewTransportError("Shopify", fmt.Errorf("parsing response: %w", err))
	}
	if len(gqlResp.Errors) > 0 {
		return model.NewTransportError("Shopify", gqlResp.Errors)
	}

	if out != nil && len(gqlResp.Data) > 0 {
		if err := json.Unmarshal(gqlResp.Data, out); err != nil {
			return model.NewTransportError("Shopify", fmt.Errorf("decoding data: %w", err))
		}
	}
	return nil
}

// parseError converts non-200 storefront responses to model.APIError.
func (c *Client) parseError(statusCode int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}

	if statusCode == 429 || statusCode >= 500 {
		return model.NewTransportError("Shopify", fmt.Errorf("store %s: status %d: %s", c.store.ID, statusCode, snippet))
	}
	return model.NewUpstreamError("Shopify", statusCode, fmt.Errorf("store %s: %s", c.store.ID, snippet))
}
