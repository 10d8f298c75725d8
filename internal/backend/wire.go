package backend

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/shopspring/decimal"
)

// Product is a cart line in the shape every backend endpoint expects.
type Product struct {
	CartID        int64              `json:"cart_id"`
	ID            int64              `json:"id"`
	ProductID     int64              `json:"product_id"`
	Name          string             `json:"name"`
	Slug          string             `json:"slug"`
	Weight        float64            `json:"weight"`
	Variations    []domain.Variation `json:"variations"`
	Images        []string           `json:"images"`
	Image         *string            `json:"image"`
	Quantity      int                `json:"quantity"`
	RegularPrice  float64            `json:"regular_price"`
	DiscountPrice *float64           `json:"discount_price"`
	Price         float64            `json:"price"`
	DepartmentID  int64              `json:"department_id"`
	CategoryID    int64              `json:"category_id"`
	ModelID       int64              `json:"model_id"`
	IsFree        int                `json:"is_free"`
}

type Country struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	ISO2 string `json:"iso2"`
	ISO3 string `json:"iso3"`
}

type State struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StateCode string `json:"state_code"`
}

// Address is the backend address shape. Country and state are sent both as
// objects and as flattened names.
type Address struct {
	Name          string   `json:"name"`
	LastName      string   `json:"last_name"`
	Email         string   `json:"email"`
	Phone         string   `json:"phone"`
	StreetAddress string   `json:"street_address"`
	City          string   `json:"city"`
	Postcode      string   `json:"postcode"`
	Country       *Country `json:"country"`
	CountryName   *string  `json:"country_name"`
	State         *State   `json:"state"`
	StateName     *string  `json:"state_name"`
}

func NormalizeProducts(items []domain.CartLineItem) []Product {
	out := make([]Product, 0, len(items))
	for _, it := range items {
		out = append(out, NormalizeProduct(it))
	}
	return out
}

func NormalizeProduct(it domain.CartLineItem) Product {
	p := Product{
		CartID:       it.CartID,
		ID:           it.ProductID,
		ProductID:    it.ProductID,
		Name:         it.Name,
		Slug:         it.Slug,
		Weight:       it.Weight.InexactFloat64(),
		Variations:   it.Variations,
		Images:       it.Images,
		Quantity:     it.Quantity,
		RegularPrice: it.RegularPrice.InexactFloat64(),
		Price:        it.UnitPrice.InexactFloat64(),
		DepartmentID: it.DepartmentID,
		CategoryID:   it.CategoryID,
		ModelID:      it.ModelID,
	}
	if p.Quantity < 1 {
		p.Quantity = 1
	}
	if p.Variations == nil {
		p.Variations = []domain.Variation{}
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if len(it.Images) > 0 {
		img := it.Images[0]
		p.Image = &img
	}
	if it.DiscountPrice.IsPositive() {
		dp := it.DiscountPrice.InexactFloat64()
		p.DiscountPrice = &dp
	}
	if it.IsFree {
		p.IsFree = 1
	}
	return p
}

func NormalizeAddress(a domain.Address) Address {
	out := Address{
		Name:          strings.TrimSpace(a.FirstName),
		LastName:      strings.TrimSpace(a.LastName),
		Email:         strings.TrimSpace(a.Email),
		Phone:         strings.TrimSpace(a.Phone),
		StreetAddress: strings.TrimSpace(a.Street),
		City:          strings.TrimSpace(a.City),
		Postcode:      strings.TrimSpace(a.Postcode),
	}
	if a.Country != nil {
		out.Country = &Country{ID: a.Country.ID, Name: a.Country.Name, ISO2: a.Country.ISO2, ISO3: a.Country.ISO3}
		name := a.Country.Name
		out.CountryName = &name
	}
	if a.State != nil {
		out.State = &State{ID: a.State.ID, Name: a.State.Name, StateCode: a.State.StateCode}
		name := a.State.Name
		out.StateName = &name
	}
	return out
}

// Number decodes a JSON number or a numeric string. Anything else, null
// included, decodes without error and leaves Valid false.
type Number struct {
	Value decimal.Decimal
	Valid bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	text := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		text = strings.TrimSpace(s)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil
	}
	n.Value, n.Valid = d, true
	return nil
}

// OrZero returns the value, or zero when it is invalid or negative.
func (n Number) OrZero() decimal.Decimal {
	if !n.Valid || n.Value.IsNegative() {
		return decimal.Zero
	}
	return n.Value
}

// Images decodes an image list whose entries are either URLs or objects
// carrying an "image" or "url" field. A single string is accepted too.
type Images []string

func (im *Images) UnmarshalJSON(b []byte) error {
	*im = nil
	var single string
	if json.Unmarshal(b, &single) == nil {
		if single != "" {
			*im = Images{single}
		}
		return nil
	}
	var raw []json.RawMessage
	if json.Unmarshal(b, &raw) != nil {
		return nil
	}
	for _, entry := range raw {
		var s string
		if json.Unmarshal(entry, &s) == nil {
			if s != "" {
				*im = append(*im, s)
			}
			continue
		}
		var obj struct {
			Image string `json:"image"`
			URL   string `json:"url"`
		}
		if json.Unmarshal(entry, &obj) == nil {
			switch {
			case obj.Image != "":
				*im = append(*im, obj.Image)
			case obj.URL != "":
				*im = append(*im, obj.URL)
			}
		}
	}
	return nil
}

// ProductResult is a product as the backend returns it, for example the
// bonus product of a coupon. Numeric fields tolerate strings.
type ProductResult struct {
	ID            Number          `json:"id"`
	ProductID     Number          `json:"product_id"`
	Name          string          `json:"name"`
	Slug          string          `json:"slug"`
	Weight        Number          `json:"weight"`
	Quantity      Number          `json:"quantity"`
	RegularPrice  Number          `json:"regular_price"`
	Price         Number          `json:"price"`
	DiscountPrice Number          `json:"discount_price"`
	DepartmentID  Number          `json:"department_id"`
	CategoryID    Number          `json:"category_id"`
	ModelID       Number          `json:"model_id"`
	Image         string          `json:"image"`
	Images        Images          `json:"images"`
	RawVariations json.RawMessage `json:"variations"`
}

// LineItem converts the result into a cart line. Prices fall back from
// regular_price to price; missing metadata becomes zero.
func (p ProductResult) LineItem() domain.CartLineItem {
	id := p.ProductID
	if !id.Valid {
		id = p.ID
	}
	regular := p.RegularPrice
	if !regular.Valid {
		regular = p.Price
	}
	qty := int(p.Quantity.OrZero().IntPart())
	if qty < 1 {
		qty = 1
	}
	images := []string(p.Images)
	if len(images) == 0 && p.Image != "" {
		images = []string{p.Image}
	}
	if images == nil {
		images = []string{}
	}
	var variations []domain.Variation
	if json.Unmarshal(p.RawVariations, &variations) != nil || variations == nil {
		variations = []domain.Variation{}
	}

	return domain.CartLineItem{
		ProductID:     id.OrZero().IntPart(),
		Name:          p.Name,
		Slug:          p.Slug,
		Quantity:      qty,
		RegularPrice:  regular.OrZero(),
		DiscountPrice: p.DiscountPrice.OrZero(),
		Weight:        p.Weight.OrZero(),
		DepartmentID:  p.DepartmentID.OrZero().IntPart(),
		CategoryID:    p.CategoryID.OrZero().IntPart(),
		ModelID:       p.ModelID.OrZero().IntPart(),
		Images:        images,
		Variations:    variations,
	}
}
