// MCP transport handler for the quiz checkout API using the official MCP Go SDK.
// Exposes variant resolution, store selection and checkout as MCP tools so
// agents driving the quiz can reach the same operations as the frontend.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"quiz-checkout/internal/funnel"
	"quiz-checkout/internal/model"
	"quiz-checkout/internal/resolver"
	"quiz-checkout/internal/selection"
)

// === MCP Tool Input Types ===

// ResolveVariantInput is the input schema for the resolve_variant tool.
type ResolveVariantInput struct {
	Handle  string `json:"handle" jsonschema:"canonical product handle"`
	StoreID string `json:"store_id" jsonschema:"store ID to resolve on"`
}

// SelectStoreInput is the input schema for the select_store tool.
type SelectStoreInput struct {
	Handle      string `json:"handle,omitempty" jsonschema:"canonical product handle"`
	Strategy    string `json:"strategy,omitempty" jsonschema:"by_utm_campaign, best_price, best_availability or fixed_preference"`
	UTMCampaign string `json:"utm_campaign,omitempty" jsonschema:"UTM campaign tag"`
	StoreID     string `json:"store_id,omitempty" jsonschema:"preferred store for fixed_preference"`
}

// CreateCheckoutInput is the input schema for the create_checkout tool.
type CreateCheckoutInput struct {
	Items       []ItemInput `json:"items" jsonschema:"recommended products"`
	UTMCampaign string      `json:"utm_campaign,omitempty" jsonschema:"UTM campaign tag"`
	Strategy    string      `json:"strategy,omitempty" jsonschema:"store selection strategy"`
	StoreID     string      `json:"store_id,omitempty" jsonschema:"preferred store"`
}

// ItemInput is one product in create_checkout.
type ItemInput struct {
	Handle   string `json:"handle" jsonschema:"canonical product handle"`
	Quantity int    `json:"quantity" jsonschema:"quantity"`
}

// NewMCPServer creates an MCP server with the funnel tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "quiz-checkout",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Quiz checkout - resolve perfume handles to store variants and build Shopify checkout links.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_variant",
		Description: "Resolve a canonical product handle to the variant ID sold on one store.",
	}, h.mcpResolveVariant)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_store",
		Description: "Pick the store a product should be bought from using a selection strategy.",
	}, h.mcpSelectStore)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_checkout",
		Description: "Build a Shopify checkout URL for the recommended products on a single store.",
	}, h.mcpCreateCheckout)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpResolveVariant(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ResolveVariantInput,
) (*mcp.CallToolResult, *resolver.Resolution, error) {
	if input.StoreID == "" {
		return nil, nil, fmt.Errorf("store_id is required")
	}

	res, err := h.funnel.Resolve(ctx, input.Handle, input.StoreID)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	return nil, &res, nil
}

func (h *Handler) mcpSelectStore(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SelectStoreInput,
) (*mcp.CallToolResult, *selection.Decision, error) {
	var strategy selection.Strategy
	if input.Strategy != "" {
		var err error
		if strategy, err = selection.ParseStrategy(input.Strategy); err != nil {
			return nil, nil, h.mcpError(ctx, err)
		}
	}

	decision, err := h.funnel.Select(ctx, input.Handle, strategy, selection.Params{
		UTMCampaign: input.UTMCampaign,
		StoreID:     input.StoreID,
	})
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	return nil, &decision, nil
}

func (h *Handler) mcpCreateCheckout(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CreateCheckoutInput,
) (*mcp.CallToolResult, *model.ResolvedCheckout, error) {
	checkoutReq := funnel.CheckoutRequest{
		UTMCampaign: input.UTMCampaign,
		Strategy:    input.Strategy,
		StoreID:     input.StoreID,
		Items:       make([]funnel.Item, len(input.Items)),
	}
	for i, item := range input.Items {
		checkoutReq.Items[i] = funnel.Item{Handle: item.Handle, Quantity: item.Quantity}
	}

	result, err := h.funnel.Checkout(ctx, checkoutReq)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	return nil, &result, nil
}

// mcpError converts funnel errors to MCP-friendly errors.
func (h *Handler) mcpError(ctx context.Context, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.ErrorContext(ctx, "mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
