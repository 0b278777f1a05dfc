package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dunglas/httpsfv"

	"quiz-checkout/internal/funnel"
	"quiz-checkout/internal/middleware"
	"quiz-checkout/internal/model"
	"quiz-checkout/internal/resolver"
	"quiz-checkout/internal/selection"
)

// cacheName identifies this service in Cache-Status (RFC 9211).
const cacheName = "quiz-checkout"

// handleCheckout turns quiz recommendations into a checkout URL.
// POST /checkout
func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req funnel.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "creating checkout",
		slog.Int("items", len(req.Items)),
		slog.String("utm_campaign", req.UTMCampaign),
		slog.String("strategy", req.Strategy),
		slog.String("request_id", middleware.RequestIDFromContext(ctx)),
	)

	result, err := h.funnel.Checkout(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// handleResolveVariant returns the variant ID for a handle on one store.
// GET /products/{handle}/variant?store=ID
func (h *Handler) handleResolveVariant(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	storeID := r.URL.Query().Get("store")
	if storeID == "" {
		h.writeError(w, r, model.NewValidationError("store", "store query parameter required"))
		return
	}

	res, err := h.funnel.Resolve(r.Context(), handle, storeID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if status, err := cacheStatus(res.Source); err == nil {
		w.Header().Set("Cache-Status", status)
	}
	h.writeJSON(w, http.StatusOK, res)
}

// handleSelectStore reports which store a strategy picks.
// GET /stores/select?handle=&strategy=&utm=&store=
func (h *Handler) handleSelectStore(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var strategy selection.Strategy
	if s := q.Get("strategy"); s != "" {
		var err error
		if strategy, err = selection.ParseStrategy(s); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	decision, err := h.funnel.Select(r.Context(), q.Get("handle"), strategy, selection.Params{
		UTMCampaign: q.Get("utm"),
		StoreID:     q.Get("store"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, decision)
}

// handleInvalidate drops the catalog and live lookup caches.
// POST /admin/cache/invalidate
func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if !h.authorizedAdmin(r) {
		h.writeError(w, r, model.NewUnauthorizedError("valid admin bearer token required"))
		return
	}

	h.funnel.Invalidate()
	h.logger.InfoContext(r.Context(), "cache invalidated via admin endpoint",
		slog.String("remote", r.RemoteAddr),
	)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) authorizedAdmin(r *http.Request) bool {
	if h.adminToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

// cacheStatus renders the Cache-Status header for a resolution:
// static and cached answers are hits, live lookups are stored misses.
func cacheStatus(src resolver.Source) (string, error) {
	item := httpsfv.NewItem(httpsfv.Token(cacheName))
	switch src {
	case resolver.SourceStatic:
		item.Params.Add("hit", true)
		item.Params.Add("detail", httpsfv.Token("static-mapping"))
	case resolver.SourceCache:
		item.Params.Add("hit", true)
	default:
		item.Params.Add("fwd", httpsfv.Token("miss"))
		item.Params.Add("stored", true)
	}
	return httpsfv.Marshal(httpsfv.List{item})
}
