package shopify

// Storefront API documents. Kept as exported constants so callers can key
// caches on the exact query text.

// ProductByHandleQuery fetches a product and its purchasable variants.
const ProductByHandleQuery = `query productByHandle($handle: String!) {
  product(handle: $handle) {
    id
    handle
    title
    availableForSale
    variants(first: 50) {
      edges {
        node {
          id
          sku
          availableForSale
          price { amount currencyCode }
          compareAtPrice { amount currencyCode }
        }
      }
    }
  }
}`

// ProductQuoteQuery is ProductByHandleQuery plus stock levels. Requires the
// unauthenticated_read_product_inventory scope on the storefront token.
const ProductQuoteQuery = `query productQuote($handle: String!) {
  product(handle: $handle) {
    id
    handle
    title
    availableForSale
    variants(first: 50) {
      edges {
        node {
          id
          sku
          availableForSale
          quantityAvailable
          price { amount currencyCode }
          compareAtPrice { amount currencyCode }
        }
      }
    }
  }
}`

// VariantQuery checks a single variant by global ID.
const VariantQuery = `query variant($id: ID!) {
  node(id: $id) {
    ... on ProductVariant {
      id
      sku
      availableForSale
      price { amount currencyCode }
      product { handle }
    }
  }
}`

// CartCreateMutation creates a cart and returns its hosted checkout URL.
const CartCreateMutation = `mutation cartCreate($input: CartInput!) {
  cartCreate(input: $input) {
    cart {
      id
      checkoutUrl
    }
    userErrors {
      code
      field
      message
    }
  }
}`
