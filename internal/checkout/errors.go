package checkout

import "errors"

var (
	ErrBusy            = errors.New("another request for this checkout is still running")
	ErrInvalidStep     = errors.New("action not allowed at the current checkout step")
	ErrCompleted       = errors.New("checkout already completed")
	ErrNoActivePayment = errors.New("no payment in progress for this checkout")
	ErrEmptyCart       = errors.New("cart is empty, nothing to checkout")
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrForbidden       = errors.New("checkout session belongs to another user")
)

const (
	msgAddressIncomplete = "Please fill all address fields"
	msgNoShipping        = "Please choose a shipping method"
	msgNoPaymentMethod   = "Please choose a payment method"
	msgMethodUnavailable = "This payment method is not available"
	msgEmptyCoupon       = "Please enter a coupon code"
	msgPaymentCancelled  = "Payment Cancelled"
	msgPaymentFailed     = "Payment failed"
	msgMissingOrderData  = "Missing payment order data"
)

// ValidationError blocks a transition locally. Message is shown to the
// shopper as is.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
