package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/backend"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingRedirect  = errors.New("no redirect target returned")
	ErrMissingOrderData = errors.New("missing order identifiers")
	ErrNotCompleted     = errors.New("payment not completed")
	ErrAlreadySettled   = errors.New("payment attempt already settled")
	ErrUnknownSignal    = errors.New("callback carries no payment marker")
	ErrUnsupported      = errors.New("payment method has no provider")
)

// IsMissingOrderData reports whether err stems from absent capture
// identifiers, in which case no backend call was made.
func IsMissingOrderData(err error) bool {
	return errors.Is(err, ErrMissingOrderData)
}

// Error is a handoff failure with the message shown to the shopper.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage extracts the shopper-facing text of a handoff error.
func UserMessage(err error, fallback string) string {
	var pe *Error
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return fallback
}

type Signal int

const (
	SignalNone Signal = iota
	SignalSuccess
	SignalCancel
)

func (s Signal) String() string {
	switch s {
	case SignalSuccess:
		return "success"
	case SignalCancel:
		return "cancel"
	default:
		return "none"
	}
}

const (
	paypalSuccessMarker   = "paypal-success"
	paypalCancelMarker    = "paypal-cancel"
	redirectSuccessMarker = "payment-success"
	redirectCancelMarker  = "payment-cancel"
)

// Markers returns the success and cancel markers the provider of method
// looks for in a callback url.
func Markers(method domain.PaymentMethod) (success, cancel string) {
	if method == domain.PaymentMethodPayPal {
		return paypalSuccessMarker, paypalCancelMarker
	}
	return redirectSuccessMarker, redirectCancelMarker
}

// classify checks the success marker first, then the cancel marker.
func classify(url, success, cancel string) Signal {
	switch {
	case strings.Contains(url, success):
		return SignalSuccess
	case strings.Contains(url, cancel):
		return SignalCancel
	default:
		return SignalNone
	}
}

// Order is what CreateOrder hands back: where to send the shopper, plus the
// identifiers a later capture or failure notification needs.
type Order struct {
	RedirectURL     string
	ProviderOrderID string
	Raw             json.RawMessage
}

// Provider is one payment method's backend handoff.
type Provider interface {
	Method() domain.PaymentMethod
	CreateOrder(ctx context.Context, payload OrderPayload) (Order, error)
	// Confirm finalizes the order after a success callback and returns the
	// order reference to report. Providers without a capture step return
	// immediately.
	Confirm(ctx context.Context, order Order) (string, error)
	NotifyFailed(ctx context.Context, order Order) error
	Classify(url string) Signal
}

type Poster interface {
	Post(ctx context.Context, path string, body, out any) error
}

// Buyer is the authenticated shopper placing the order.
type Buyer struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type DeviceDetails struct {
	IP   string `json:"ip"`
	Type string `json:"type"`
}

// DefaultDevice is sent when the caller has no device details.
func DefaultDevice(platform string) DeviceDetails {
	return DeviceDetails{IP: "0.0.0.0", Type: platform}
}

// OrderPayload is everything a provider needs to create an order. The
// billing address is always the shipping address.
type OrderPayload struct {
	Address   domain.Address
	Items     []domain.CartLineItem
	Shipping  domain.ShippingSelection
	Discount  domain.Discount
	Method    domain.PaymentMethod
	Device    DeviceDetails
	Buyer     Buyer
	ReturnURL string
	CancelURL string
}

type orderRequest struct {
	SelectedShipping  domain.ShippingMethod `json:"selectedShipping"`
	ShippingPrice     decimal.Decimal       `json:"shippingPrice"`
	User              Buyer                 `json:"user"`
	ShippingAddress   backend.Address       `json:"shippingAddress"`
	BillingAddress    backend.Address       `json:"billingAddress"`
	ProductData       []backend.Product     `json:"productData"`
	Discount          decimal.Decimal       `json:"discount"`
	CouponCode        string                `json:"couponCode,omitempty"`
	PaymentMethod     int                   `json:"paymentMethod,omitempty"`
	PaymentMethodName string                `json:"payment_method,omitempty"`
	DeviceDetails     DeviceDetails         `json:"deviceDetails"`
	ReturnURL         string                `json:"returnUrl,omitempty"`
	CancelURL         string                `json:"cancelUrl,omitempty"`
}

func newOrderRequest(p OrderPayload) orderRequest {
	address := backend.NormalizeAddress(p.Address)
	device := p.Device
	if device.IP == "" {
		device.IP = "0.0.0.0"
	}
	return orderRequest{
		SelectedShipping: p.Shipping.Method,
		ShippingPrice:    p.Shipping.Price,
		User:             p.Buyer,
		ShippingAddress:  address,
		BillingAddress:   address,
		ProductData:      backend.NormalizeProducts(p.Items),
		Discount:         p.Discount.Amount,
		CouponCode:       p.Discount.CouponCode,
		DeviceDetails:    device,
		ReturnURL:        p.ReturnURL,
		CancelURL:        p.CancelURL,
	}
}
