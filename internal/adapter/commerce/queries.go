package commerce

const cartFields = `
id
checkoutUrl
totalQuantity
updatedAt
lines(first: 100) {
  nodes {
    id
    quantity
    merchandise { ... on ProductVariant { id } }
    cost { totalAmount { amount currencyCode } }
  }
}
cost {
  subtotalAmount { amount currencyCode }
  totalAmount { amount currencyCode }
  totalTaxAmount { amount currencyCode }
}`

const cartQuery = `
query cart($id: ID!) {
  cart(id: $id) {` + cartFields + `}
}`

const cartCreateMutation = `
mutation cartCreate($input: CartInput!) {
  cartCreate(input: $input) {
    cart {` + cartFields + `}
    userErrors { message field }
  }
}`

const cartLinesAddMutation = `
mutation cartLinesAdd($cartId: ID!, $lines: [CartLineInput!]!) {
  cartLinesAdd(cartId: $cartId, lines: $lines) {
    cart {` + cartFields + `}
    userErrors { message field }
  }
}`

const cartLinesUpdateMutation = `
mutation cartLinesUpdate($cartId: ID!, $lines: [CartLineUpdateInput!]!) {
  cartLinesUpdate(cartId: $cartId, lines: $lines) {
    cart {` + cartFields + `}
    userErrors { message field }
  }
}`

const cartLinesRemoveMutation = `
mutation cartLinesRemove($cartId: ID!, $lineIds: [ID!]!) {
  cartLinesRemove(cartId: $cartId, lineIds: $lineIds) {
    cart {` + cartFields + `}
    userErrors { message field }
  }
}`
