// Package handler provides HTTP handlers for the quiz checkout API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"quiz-checkout/internal/funnel"
	"quiz-checkout/internal/model"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	funnel     funnel.Funnel
	adminToken string
	logger     *slog.Logger
}

// New creates a new Handler. An empty adminToken disables the admin routes.
func New(f funnel.Funnel, adminToken string, logger *slog.Logger) *Handler {
	return &Handler{
		funnel:     f,
		adminToken: adminToken,
		logger:     logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Quiz frontend
	mux.HandleFunc("POST /checkout", h.handleCheckout)
	mux.HandleFunc("GET /products/{handle}/variant", h.handleResolveVariant)
	mux.HandleFunc("GET /stores/select", h.handleSelectStore)

	// Operations
	mux.HandleFunc("POST /admin/cache/invalidate", h.handleInvalidate)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := h.asAPIError(r, err)

	details := apiErr.Details
	if len(details) == 0 {
		details = []string{apiErr.Message}
	}
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error:     apiErr.Code,
		Details:   details,
		Retryable: retryable(apiErr),
	})
}

// retryable is set for transport failures and for 5xx answers, except a
// storefront that refused the request outright.
func retryable(apiErr *model.APIError) bool {
	if apiErr.Retryable() {
		return true
	}
	return apiErr.StatusCode >= http.StatusInternalServerError && !errors.Is(apiErr, model.ErrUpstreamRejected)
}

// asAPIError finds the APIError in err's chain. Anything else is logged and
// replaced by a generic 500 so internals never reach the client.
func (h *Handler) asAPIError(r *http.Request, err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	h.logger.ErrorContext(r.Context(), "internal error", slog.String("error", err.Error()))
	return model.NewInternalError(err)
}

// errorResponse is the JSON structure for error responses.
// Retryable tells the quiz frontend to offer a retry button.
type errorResponse struct {
	Error     string   `json:"error"`
	Details   []string `json:"details"`
	Retryable bool     `json:"retryable"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
