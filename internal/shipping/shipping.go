package shipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/backend"
	"github.com/shopspring/decimal"
)

const (
	QuotePath = "/v1/checkout/shipping_price"

	UnavailableMessage = "Shipping is not available for this address. Please choose Local Pickup."
	FailureMessage     = "Failed to calculate shipping price."
)

var (
	// ErrUnavailable means the backend answered but gave no usable charge
	// for the destination.
	ErrUnavailable   = errors.New(UnavailableMessage)
	ErrUnknownMethod = errors.New("unknown shipping method")
)

// QuoteError wraps a failed quote request. Message is what the shopper sees.
type QuoteError struct {
	Message string
	Err     error
}

func (e *QuoteError) Error() string {
	return fmt.Sprintf("shipping quote failed: %v", e.Err)
}

func (e *QuoteError) Unwrap() error {
	return e.Err
}

type Poster interface {
	Post(ctx context.Context, path string, body, out any) error
}

type Resolver struct {
	backend Poster
}

func NewResolver(backend Poster) *Resolver {
	return &Resolver{backend: backend}
}

type quoteRequest struct {
	Products        []backend.Product `json:"products"`
	ShippingAddress backend.Address   `json:"shipping_address"`
}

type quoteResponse struct {
	Data struct {
		Data backend.Number `json:"data"`
	} `json:"data"`
}

// Quote resolves the price of method for the given cart and destination.
// Pickup is free and never calls the backend.
func (r *Resolver) Quote(ctx context.Context, method domain.ShippingMethod, items []domain.CartLineItem, address domain.Address) (domain.ShippingSelection, error) {
	switch {
	case !method.Valid():
		return domain.ShippingSelection{}, ErrUnknownMethod
	case method.IsPickup():
		return domain.ShippingSelection{Method: method, Price: decimal.Zero}, nil
	}

	req := quoteRequest{
		Products:        backend.NormalizeProducts(items),
		ShippingAddress: backend.NormalizeAddress(address),
	}
	var resp quoteResponse
	if err := r.backend.Post(ctx, QuotePath, req, &resp); err != nil {
		return domain.ShippingSelection{}, &QuoteError{Message: backend.MessageOr(err, FailureMessage), Err: err}
	}

	charge := resp.Data.Data
	if !charge.Valid || charge.Value.IsNegative() {
		return domain.ShippingSelection{}, ErrUnavailable
	}
	return domain.ShippingSelection{Method: method, Price: charge.Value}, nil
}

// UserMessage is the text to show for a failed Quote.
func UserMessage(err error) string {
	var qe *QuoteError
	switch {
	case errors.Is(err, ErrUnavailable):
		return UnavailableMessage
	case errors.As(err, &qe):
		return qe.Message
	default:
		return FailureMessage
	}
}
