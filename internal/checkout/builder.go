// Package checkout turns cart lines into a Shopify checkout URL for one store.
//
// The cartCreate mutation is preferred: Shopify validates the lines server
// side and returns a hosted checkout. If the mutation cannot be reached the
// builder degrades to the direct /cart/{id}:{qty} permalink, which costs no
// network call but trusts the variant IDs blindly.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"quiz-checkout/internal/model"
	"quiz-checkout/internal/shopify"
	"quiz-checkout/internal/store"
)

// MaxLineQuantity caps a single line, matching Shopify's cart limit.
const MaxLineQuantity = 999

// Builder builds checkout URLs.
type Builder struct {
	registry    *store.Registry
	storefronts shopify.Provider
	logger      *slog.Logger
}

// NewBuilder creates a checkout URL builder.
func NewBuilder(registry *store.Registry, storefronts shopify.Provider, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{registry: registry, storefronts: storefronts, logger: logger}
}

// Build returns a checkout URL for lines on storeID.
//
// Validation failures are returned before any network call. userErrors from
// Shopify are surfaced (ErrStaleMapping when they reject a variant, else
// ErrUserErrors) and never masked by the direct-path fallback. Any other
// mutation failure falls back unless the caller's context is done.
func (b *Builder) Build(ctx context.Context, storeID string, lines []model.CartLine) (model.ResolvedCheckout, error) {
	if err := ValidateLines(lines); err != nil {
		return model.ResolvedCheckout{}, err
	}

	st, err := b.registry.Get(storeID)
	if err != nil {
		return model.ResolvedCheckout{}, err
	}
	sf, err := b.storefronts.Storefront(storeID)
	if err != nil {
		return model.ResolvedCheckout{}, err
	}

	cart, err := sf.CartCreate(ctx, lines)
	if err == nil {
		return model.ResolvedCheckout{
			CheckoutURL: RewriteHost(cart.CheckoutURL, st),
			StoreID:     storeID,
			Method:      model.MethodCartCreate,
		}, nil
	}

	var userErrs shopify.UserErrors
	if errors.As(err, &userErrs) {
		b.logger.WarnContext(ctx, "cart rejected by storefront",
			slog.String("store_id", storeID),
			slog.Any("user_errors", userErrs.Messages()),
		)
		if userErrs.ReferencesMerchandise() {
			return model.ResolvedCheckout{}, model.NewStaleMappingError(storeID, joinVariantIDs(lines), userErrs.Messages())
		}
		return model.ResolvedCheckout{}, model.NewUserErrorsError(userErrs.Messages())
	}

	if ctx.Err() != nil {
		return model.ResolvedCheckout{}, model.NewTransportError("Shopify", ctx.Err())
	}

	directURL := DirectURL(st.APIDomain, lines)
	level := slog.LevelWarn
	if errors.Is(err, model.ErrStorefrontAuth) {
		level = slog.LevelError
	}
	b.logger.Log(ctx, level, "cartCreate failed, using direct cart path",
		slog.String("store_id", storeID),
		slog.String("url", directURL),
		slog.Bool("degraded", true),
		slog.String("error", err.Error()),
	)
	return model.ResolvedCheckout{
		CheckoutURL: directURL,
		StoreID:     storeID,
		Method:      model.MethodCartPath,
		Degraded:    true,
	}, nil
}

// ValidateLines rejects empty carts and malformed lines.
func ValidateLines(lines []model.CartLine) error {
	if len(lines) == 0 {
		return model.NewValidationError("items", "at least one line required")
	}
	for i, l := range lines {
		if strings.TrimSpace(l.VariantID) == "" {
			return model.NewValidationError(fmt.Sprintf("items[%d].variant_id", i), "required")
		}
		if l.Quantity < 1 || l.Quantity > MaxLineQuantity {
			return model.NewValidationError(fmt.Sprintf("items[%d].quantity", i),
				fmt.Sprintf("must be between 1 and %d", MaxLineQuantity))
		}
	}
	return nil
}

// DirectURL builds https://{domain}/cart/{id}:{qty}[,{id}:{qty}...].
func DirectURL(domain string, lines []model.CartLine) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = model.NumericID(l.VariantID) + ":" + strconv.Itoa(l.Quantity)
	}
	return "https://" + store.NormalizeDomain(domain) + "/cart/" + strings.Join(parts, ",")
}

// ParseCartPath recovers the lines encoded in a direct cart URL.
func ParseCartPath(rawURL string) ([]model.CartLine, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing cart url: %w", err)
	}

	path := strings.TrimSuffix(u.Path, "/")
	const prefix = "/cart/"
	if !strings.HasPrefix(path, prefix) {
		return nil, fmt.Errorf("not a cart permalink: %s", rawURL)
	}

	segments := strings.Split(strings.TrimPrefix(path, prefix), ",")
	lines := make([]model.CartLine, 0, len(segments))
	for _, seg := range segments {
		id, qtyStr, ok := strings.Cut(seg, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("malformed cart segment %q", seg)
		}
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return nil, fmt.Errorf("malformed variant id %q", id)
		}
		qty, err := strconv.Atoi(qtyStr)
		if err != nil || qty < 1 {
			return nil, fmt.Errorf("malformed quantity %q", qtyStr)
		}
		lines = append(lines, model.CartLine{VariantID: id, Quantity: qty})
	}
	return lines, nil
}

// RewriteHost points a hosted checkout URL at the store's myshopify.com
// domain. Custom domains run storefront scripts that redirect away from
// checkout; the API domain does not.
func RewriteHost(checkoutURL string, st model.Store) string {
	u, err := url.Parse(checkoutURL)
	if err != nil || u.Host == "" || st.APIDomain == "" {
		return checkoutURL
	}
	if strings.EqualFold(u.Host, st.APIDomain) {
		return checkoutURL
	}
	if strings.EqualFold(u.Host, st.Domain) || !strings.HasSuffix(strings.ToLower(u.Host), ".myshopify.com") {
		u.Host = st.APIDomain
		u.Scheme = "https"
	}
	return u.String()
}

func joinVariantIDs(lines []model.CartLine) string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = model.NumericID(l.VariantID)
	}
	return strings.Join(ids, ",")
}
