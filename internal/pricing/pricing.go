package pricing

import (
	"github.com/fjod/storefront-checkout/domain"
	"github.com/shopspring/decimal"
)

// ComputeTotals derives the price breakdown of a checkout. Free items never
// count toward the subtotal, a free-shipping coupon zeroes shipping, and the
// total never goes below zero. Negative shipping or discount amounts are
// treated as zero.
func ComputeTotals(items []domain.CartLineItem, shippingPrice decimal.Decimal, discount domain.Discount) domain.Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}

	shipping := nonNegative(shippingPrice)
	if discount.IsShippingFree {
		shipping = decimal.Zero
	}

	amount := decimal.Zero
	if discount.Applied() {
		amount = nonNegative(discount.Amount)
	}

	total := subtotal.Add(shipping).Sub(amount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return domain.Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Discount: amount,
		Total:    total,
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
