package domain

import "github.com/shopspring/decimal"

// Variation is one selected option of a product (e.g. colour or fitment).
type Variation struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CartLineItem is one product entry in the cart.
type CartLineItem struct {
	CartID        int64           `json:"cart_id"`
	ProductID     int64           `json:"product_id"`
	Name          string          `json:"name"`
	Slug          string          `json:"slug"`
	Quantity      int             `json:"quantity"`
	RegularPrice  decimal.Decimal `json:"regular_price"`
	DiscountPrice decimal.Decimal `json:"discount_price"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Weight        decimal.Decimal `json:"weight"`
	DepartmentID  int64           `json:"department_id"`
	CategoryID    int64           `json:"category_id"`
	ModelID       int64           `json:"model_id"`
	Images        []string        `json:"images"`
	Variations    []Variation     `json:"variations"`
	// IsFree marks a coupon bonus item. It keeps its UnitPrice for display
	// but never contributes to the chargeable subtotal.
	IsFree bool `json:"is_free"`
}

// EffectivePrice is the price charged per unit: the discount price when one
// is set, the regular price otherwise.
func (i CartLineItem) EffectivePrice() decimal.Decimal {
	if i.DiscountPrice.IsPositive() {
		return i.DiscountPrice
	}
	return i.RegularPrice
}

// LineTotal is UnitPrice * Quantity, or zero for free items.
func (i CartLineItem) LineTotal() decimal.Decimal {
	if i.IsFree {
		return decimal.Zero
	}
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Clone returns a copy that shares no slices with i.
func (i CartLineItem) Clone() CartLineItem {
	c := i
	if i.Images != nil {
		c.Images = append([]string(nil), i.Images...)
	}
	if i.Variations != nil {
		c.Variations = append([]Variation(nil), i.Variations...)
	}
	return c
}

// CloneItems deep-copies a slice of line items.
func CloneItems(items []CartLineItem) []CartLineItem {
	if items == nil {
		return nil
	}
	out := make([]CartLineItem, len(items))
	for n, item := range items {
		out[n] = item.Clone()
	}
	return out
}
