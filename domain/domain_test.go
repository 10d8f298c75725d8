package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(CheckoutStepAddress, CheckoutStepShipping))
	assert.True(t, CanTransitionTo(CheckoutStepPayment, CheckoutStepPaymentInFlight))
	assert.True(t, CanTransitionTo(CheckoutStepPaymentInFlight, CheckoutStepCompleted))
	assert.False(t, CanTransitionTo(CheckoutStepAddress, CheckoutStepPayment))
	assert.False(t, CanTransitionTo(CheckoutStepShipping, CheckoutStepPaymentInFlight))
	assert.False(t, CanTransitionTo(CheckoutStepCompleted, CheckoutStepPayment))
}

func TestCheckoutStep_Previous(t *testing.T) {
	assert.Equal(t, CheckoutStepAddress, CheckoutStepAddress.Previous())
	assert.Equal(t, CheckoutStepAddress, CheckoutStepShipping.Previous())
	assert.Equal(t, CheckoutStepShipping, CheckoutStepPayment.Previous())
	assert.Equal(t, CheckoutStepPayment, CheckoutStepPaymentInFlight.Previous())
	assert.True(t, CheckoutStepCompleted.IsTerminal())
}

func TestAddress_Complete(t *testing.T) {
	a := Address{
		FirstName: "Ann", LastName: "Lee", Email: "ann@example.com", Phone: "0400000000",
		Street: "1 Main St", City: "Sydney", Postcode: "2000",
		Country: &Country{ID: "14", Name: "Australia", ISO2: "AU", ISO3: "AUS"},
		State:   &State{ID: "3", Name: "New South Wales", StateCode: "NSW"},
	}
	assert.True(t, a.Complete())

	a.City = "   "
	a.State = nil
	assert.False(t, a.Complete())
	assert.Equal(t, []string{"state", "city"}, a.MissingFields())
}

func TestCartLineItem_Prices(t *testing.T) {
	item := CartLineItem{RegularPrice: decimal.NewFromInt(50), Quantity: 3}
	assert.True(t, item.EffectivePrice().Equal(decimal.NewFromInt(50)))

	item.DiscountPrice = decimal.NewFromInt(40)
	item.UnitPrice = item.EffectivePrice()
	assert.True(t, item.LineTotal().Equal(decimal.NewFromInt(120)))

	item.IsFree = true
	assert.True(t, item.LineTotal().IsZero())
}

func TestCloneItems_DoesNotShareSlices(t *testing.T) {
	items := []CartLineItem{{ProductID: 1, Images: []string{"a.jpg"}}}
	clone := CloneItems(items)
	clone[0].Images[0] = "b.jpg"
	assert.Equal(t, "a.jpg", items[0].Images[0])
}

func TestParsePaymentMethod(t *testing.T) {
	m, err := ParsePaymentMethod("zip_pay")
	assert.NoError(t, err)
	assert.Equal(t, PaymentMethodZipPay, m)

	_, err = ParsePaymentMethod("bitcoin")
	assert.Error(t, err)
}
