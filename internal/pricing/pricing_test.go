package pricing

import (
	"math/rand"
	"testing"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func item(productID int64, unit string, qty int) domain.CartLineItem {
	return domain.CartLineItem{ProductID: productID, UnitPrice: d(unit), RegularPrice: d(unit), Quantity: qty}
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), "%s: want %s, got %s", msg, want, got)
}

func TestComputeTotals_NoShippingNoDiscount(t *testing.T) {
	totals := ComputeTotals([]domain.CartLineItem{item(1, "100", 2)}, decimal.Zero, domain.Discount{})

	assertDec(t, "200", totals.Subtotal, "subtotal")
	assertDec(t, "0", totals.Shipping, "shipping")
	assertDec(t, "0", totals.Discount, "discount")
	assertDec(t, "200", totals.Total, "total")
}

func TestComputeTotals_WithCouponAmount(t *testing.T) {
	discount := domain.Discount{CouponCode: "SAVE30", Amount: d("30")}
	totals := ComputeTotals([]domain.CartLineItem{item(1, "100", 2)}, decimal.Zero, discount)

	assertDec(t, "170", totals.Total, "total")
}

func TestComputeTotals_DiscountIgnoredWhenNotApplied(t *testing.T) {
	totals := ComputeTotals([]domain.CartLineItem{item(1, "100", 1)}, decimal.Zero, domain.Discount{Amount: d("30")})

	assertDec(t, "0", totals.Discount, "discount")
	assertDec(t, "100", totals.Total, "total")
}

func TestComputeTotals_FreeShippingOverride(t *testing.T) {
	discount := domain.Discount{CouponCode: "FREESHIP", IsShippingFree: true}
	totals := ComputeTotals([]domain.CartLineItem{item(1, "100", 2)}, d("15"), discount)

	assertDec(t, "0", totals.Shipping, "shipping")
	assertDec(t, "200", totals.Total, "total")
}

func TestComputeTotals_FreeItemExcluded(t *testing.T) {
	bonus := item(9, "50", 3)
	bonus.IsFree = true
	totals := ComputeTotals([]domain.CartLineItem{item(1, "100", 2), bonus}, decimal.Zero, domain.Discount{})

	assertDec(t, "200", totals.Subtotal, "subtotal")
}

func TestComputeTotals_ClampsAtZero(t *testing.T) {
	discount := domain.Discount{CouponCode: "HUGE", Amount: d("500")}
	totals := ComputeTotals([]domain.CartLineItem{item(1, "10", 1)}, d("5"), discount)

	assertDec(t, "0", totals.Total, "total")
	assertDec(t, "500", totals.Discount, "discount")
}

func TestComputeTotals_NegativeInputsTreatedAsZero(t *testing.T) {
	discount := domain.Discount{CouponCode: "ODD", Amount: d("-20")}
	totals := ComputeTotals([]domain.CartLineItem{item(1, "10", 1)}, d("-5"), discount)

	assertDec(t, "0", totals.Shipping, "shipping")
	assertDec(t, "0", totals.Discount, "discount")
	assertDec(t, "10", totals.Total, "total")
}

func TestComputeTotals_DecimalPrecision(t *testing.T) {
	totals := ComputeTotals([]domain.CartLineItem{item(1, "0.10", 3), item(2, "0.20", 1)}, d("0.05"), domain.Discount{})

	assertDec(t, "0.5", totals.Subtotal, "subtotal")
	assertDec(t, "0.55", totals.Total, "total")
}

// Randomised inputs for the invariants that must hold for every cart.
func TestComputeTotals_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 500; n++ {
		var items []domain.CartLineItem
		paid := decimal.Zero
		for k := 0; k < rng.Intn(5); k++ {
			it := item(int64(k), decimal.NewFromInt(int64(rng.Intn(10000))).Shift(-2).String(), rng.Intn(5)+1)
			it.IsFree = rng.Intn(3) == 0
			if !it.IsFree {
				paid = paid.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
			}
			items = append(items, it)
		}
		shipping := decimal.NewFromInt(int64(rng.Intn(4000) - 1000)).Shift(-2)
		discount := domain.Discount{
			CouponCode:     "X",
			Amount:         decimal.NewFromInt(int64(rng.Intn(60000) - 1000)).Shift(-2),
			IsShippingFree: rng.Intn(2) == 0,
		}

		totals := ComputeTotals(items, shipping, discount)

		assert.False(t, totals.Total.IsNegative(), "total must never be negative")
		assert.True(t, totals.Subtotal.Equal(paid), "free items must not count toward subtotal")
		if discount.IsShippingFree {
			assert.True(t, totals.Shipping.IsZero(), "free shipping must zero the shipping line")
		}
	}
}
