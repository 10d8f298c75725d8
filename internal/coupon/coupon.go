package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/backend"
	"github.com/fjod/storefront-checkout/internal/cart"
	"go.uber.org/zap"
)

const (
	DefaultPath     = "/v1/checkout/apply_coupon"
	RejectedMessage = "Invalid coupon code."
	FailureMessage  = "Failed to apply coupon."
)

var ErrEmptyCode = errors.New("please enter a coupon code")

// RejectedError is returned when the backend declines the code.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", e.Code, e.Message)
}

// RequestError wraps a coupon request that did not complete.
type RequestError struct {
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("coupon request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

type Poster interface {
	Post(ctx context.Context, path string, body, out any) error
}

type Resolver struct {
	backend Poster
	path    string
	nextID  cart.IDSource
	logger  *zap.Logger
}

type Option func(*Resolver)

func WithPath(path string) Option {
	return func(r *Resolver) {
		if path != "" {
			r.path = path
		}
	}
}

// WithIDSource sets where bonus item line ids come from.
func WithIDSource(ids cart.IDSource) Option {
	return func(r *Resolver) { r.nextID = ids }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewResolver(backend Poster, opts ...Option) *Resolver {
	r := &Resolver{
		backend: backend,
		path:    DefaultPath,
		nextID:  cart.NewIDSource(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type applyRequest struct {
	Products    []backend.Product `json:"products"`
	Code        string            `json:"code"`
	ShipAddress backend.Address   `json:"ship_address"`
}

type applyResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// result is the coupon payload of a successful apply. The backend names the
// discount amount field "coupon_code"; it is decoded into Amount here and
// nowhere else.
type result struct {
	Amount         backend.Number         `json:"coupon_code"`
	Type           domain.CouponType      `json:"coupon_type"`
	IsShippingFree bool                   `json:"is_shipping_free"`
	Product        *backend.ProductResult `json:"product"`
}

// Apply submits code against the current cart and destination. A successful
// result replaces any discount the caller held before; on error the caller
// keeps its previous state.
func (r *Resolver) Apply(ctx context.Context, code string, items []domain.CartLineItem, address domain.Address) (domain.Discount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Discount{}, ErrEmptyCode
	}

	req := applyRequest{
		Products:    backend.NormalizeProducts(items),
		Code:        code,
		ShipAddress: backend.NormalizeAddress(address),
	}
	var resp applyResponse
	if err := r.backend.Post(ctx, r.path, req, &resp); err != nil {
		var be *backend.Error
		if errors.As(err, &be) && be.Status < 500 {
			return domain.Discount{}, &RejectedError{Code: code, Message: backend.MessageOr(err, RejectedMessage)}
		}
		return domain.Discount{}, &RequestError{Message: backend.MessageOr(err, FailureMessage), Err: err}
	}
	if !resp.Success {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = RejectedMessage
		}
		return domain.Discount{}, &RejectedError{Code: code, Message: msg}
	}

	var res result
	if len(resp.Data) > 0 {
		// a malformed payload still grants the coupon with a zero amount
		if err := json.Unmarshal(resp.Data, &res); err != nil {
			r.logger.Warn("malformed coupon payload",
				zap.String("code", code),
				zap.Error(err),
			)
			res = result{}
		}
	}

	d := domain.Discount{
		CouponCode:     code,
		Type:           res.Type,
		Amount:         res.Amount.OrZero(),
		IsShippingFree: res.IsShippingFree || res.Type == domain.CouponFreeShipping,
		Raw:            resp.Data,
	}
	if res.Type == domain.CouponProduct && res.Product != nil {
		bonus := res.Product.LineItem()
		bonus.CartID = r.nextID()
		bonus.IsFree = true
		bonus.UnitPrice = bonus.EffectivePrice()
		d.BonusItem = &bonus
	}
	return d, nil
}

// UserMessage is the text to show for a failed Apply.
func UserMessage(err error) string {
	var (
		rej *RejectedError
		re  *RequestError
	)
	switch {
	case errors.Is(err, ErrEmptyCode):
		return "Please enter a coupon code"
	case errors.As(err, &rej):
		return rej.Message
	case errors.As(err, &re):
		return re.Message
	default:
		return FailureMessage
	}
}
