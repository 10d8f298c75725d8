package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type CouponType string

const (
	CouponFreeShipping CouponType = "free_shipping"
	CouponDiscount     CouponType = "discount"
	CouponProduct      CouponType = "product"
)

// Discount is the result of a successfully applied coupon. The zero value
// means no coupon is applied.
type Discount struct {
	CouponCode     string          `json:"coupon_code,omitempty"`
	Type           CouponType      `json:"type,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	IsShippingFree bool            `json:"is_shipping_free"`
	BonusItem      *CartLineItem   `json:"bonus_item,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

func (d Discount) Applied() bool {
	return d.CouponCode != ""
}
