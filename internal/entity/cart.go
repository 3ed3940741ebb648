package entity

import "time"

// Money is a decimal amount exactly as the remote platform returns it.
// Amounts are kept as strings to avoid re-rounding someone else's prices.
type Money struct {
	Amount       string
	CurrencyCode string
}

type CartCost struct {
	Subtotal Money
	Total    Money
	TotalTax Money
}

// CartLine is one merchandise entry in a cart. ID is an opaque identifier
// assigned by the remote platform; it is invalidated whenever the cart is
// recreated, so it must always be read fresh from the latest cart.
type CartLine struct {
	ID            string
	MerchandiseID string
	Quantity      int
	Cost          Money
}

// Cart is the client-side copy of the remote-owned cart. It is never mutated
// locally; every field comes from the latest authoritative fetch.
type Cart struct {
	ID            string
	Lines         []CartLine
	Cost          CartCost
	CheckoutURL   string
	TotalQuantity int
	UpdatedAt     time.Time
}

// LineByMerchandise returns the first line holding the given merchandise id,
// or nil.
func (c *Cart) LineByMerchandise(merchandiseID string) *CartLine {
	if c == nil {
		return nil
	}
	for i := range c.Lines {
		if c.Lines[i].MerchandiseID == merchandiseID {
			return &c.Lines[i]
		}
	}
	return nil
}

// LineByID returns the line with the given remote line id, or nil.
func (c *Cart) LineByID(lineID string) *CartLine {
	if c == nil {
		return nil
	}
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			return &c.Lines[i]
		}
	}
	return nil
}

// Buyer is the locale the current session is shopping under.
type Buyer struct {
	CountryCode  string
	LanguageCode string
}

// CartContext records the locale a cart was created under. A cart is only
// safely mutable under its creation context; a mismatch is recoverable, not
// fatal.
type CartContext struct {
	CountryCode  string    `json:"countryCode"`
	LanguageCode string    `json:"languageCode"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Matches reports whether the stored context covers the given buyer locale.
func (c CartContext) Matches(b Buyer) bool {
	return c.CountryCode == b.CountryCode && c.LanguageCode == b.LanguageCode
}
