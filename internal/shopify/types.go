package shopify

import (
	"encoding/json"
	"strings"

	"quiz-checkout/internal/model"
)

// Product is a storefront product with its variants in storefront order.
type Product struct {
	ID               string
	Handle           string
	Title            string
	AvailableForSale bool
	Variants         []Variant
}

// FirstVariant returns the first variant, the one the funnel sells.
func (p *Product) FirstVariant() (Variant, bool) {
	if p == nil || len(p.Variants) == 0 {
		return Variant{}, false
	}
	return p.Variants[0], true
}

// Variant is a purchasable SKU. ID is numeric; GID is the global ID.
type Variant struct {
	ID               string
	GID              string
	SKU              string
	Handle           string
	AvailableForSale bool
	// QuantityAvailable is nil when the query did not request stock or the
	// token lacks inventory scope.
	QuantityAvailable *int
	Price             model.Money
}

// Cart is the result of a cartCreate mutation.
type Cart struct {
	ID          string
	CheckoutURL string
}

// UserError is a cart mutation validation error.
type UserError struct {
	Code    string   `json:"code"`
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// UserErrors is returned by CartCreate when the storefront accepted the
// request but rejected its contents.
type UserErrors []UserError

func (e UserErrors) Error() string {
	return "cart user errors: " + strings.Join(e.Messages(), "; ")
}

// Messages returns the error messages in order.
func (e UserErrors) Messages() []string {
	msgs := make([]string, len(e))
	for i, ue := range e {
		msgs[i] = ue.Message
	}
	return msgs
}

// merchandiseCodes are CartErrorCode values that point at the variant itself
// rather than the request shape.
var merchandiseCodes = map[string]bool{
	"INVALID_MERCHANDISE_LINE":     true,
	"MERCHANDISE_NOT_FOUND":        true,
	"MERCHANDISE_OUT_OF_STOCK":     true,
	"MERCHANDISE_NOT_ENOUGH_STOCK": true,
	"PRODUCT_NOT_AVAILABLE":        true,
}

// ReferencesMerchandise reports whether any error rejects a variant, which is
// how a stale variant mapping shows up.
func (e UserErrors) ReferencesMerchandise() bool {
	for _, ue := range e {
		if merchandiseCodes[ue.Code] {
			return true
		}
		for _, f := range ue.Field {
			if f == "merchandiseId" {
				return true
			}
		}
		msg := strings.ToLower(ue.Message)
		if strings.Contains(msg, "merchandise") && (strings.Contains(msg, "does not exist") || strings.Contains(msg, "not available")) {
			return true
		}
	}
	return false
}

// GraphQLError is a top-level GraphQL error.
type GraphQLError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// GraphQLErrors is returned when the response carries top-level errors.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ge := range e {
		msgs[i] = ge.Message
	}
	return "graphql errors: " + strings.Join(msgs, "; ")
}

// === Wire types ===

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors GraphQLErrors   `json:"errors,omitempty"`
}

type moneyV2 struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type variantNode struct {
	ID                string   `json:"id"`
	SKU               string   `json:"sku"`
	AvailableForSale  bool     `json:"availableForSale"`
	QuantityAvailable *int     `json:"quantityAvailable"`
	Price             moneyV2  `json:"price"`
	CompareAtPrice    *moneyV2 `json:"compareAtPrice"`
	Product           *struct {
		Handle string `json:"handle"`
	} `json:"product"`
}

type productNode struct {
	ID               string `json:"id"`
	Handle           string `json:"handle"`
	Title            string `json:"title"`
	AvailableForSale bool   `json:"availableForSale"`
	Variants         struct {
		Edges []struct {
			Node variantNode `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
}

type productData struct {
	Product *productNode `json:"product"`
}

type variantData struct {
	Node *variantNode `json:"node"`
}

type cartCreateData struct {
	CartCreate struct {
		Cart *struct {
			ID          string `json:"id"`
			CheckoutURL string `json:"checkoutUrl"`
		} `json:"cart"`
		UserErrors UserErrors `json:"userErrors"`
	} `json:"cartCreate"`
}

type cartLineInput struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// toVariant converts a wire node. Unparseable prices become zero so a bad
// compareAt value never hides an otherwise valid variant.
func (n variantNode) toVariant() Variant {
	v := Variant{
		ID:                model.NumericID(n.ID),
		GID:               n.ID,
		SKU:               n.SKU,
		AvailableForSale:  n.AvailableForSale,
		QuantityAvailable: n.QuantityAvailable,
	}
	if n.Product != nil {
		v.Handle = n.Product.Handle
	}
	v.Price, _ = model.ParseMoney(n.Price.Amount, n.Price.CurrencyCode)
	if n.CompareAtPrice != nil {
		if cmp, err := model.ParseMoney(n.CompareAtPrice.Amount, n.CompareAtPrice.CurrencyCode); err == nil && v.Price.Amount.LessThan(cmp.Amount) {
			v.Price.OnSale = true
			v.Price.CompareAt = &cmp.Amount
		}
	}
	return v
}

func (n *productNode) toProduct() *Product {
	p := &Product{
		ID:               n.ID,
		Handle:           n.Handle,
		Title:            n.Title,
		AvailableForSale: n.AvailableForSale,
		Variants:         make([]Variant, 0, len(n.Variants.Edges)),
	}
	for _, e := range n.Variants.Edges {
		v := e.Node.toVariant()
		v.Handle = n.Handle
		p.Variants = append(p.Variants, v)
	}
	return p
}
