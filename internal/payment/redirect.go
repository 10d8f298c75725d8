package payment

import (
	"context"
	"strings"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/backend"
)

const (
	afterpayCreatePath = "/v1/after_pay/create-order"
	zipPayCreatePath   = "/v1/zip_pay/create-order"

	zipPayMethodCode = 7
)

// RedirectProvider covers the providers that only redirect: the success
// callback alone settles the payment and there is no capture or failure
// endpoint. Afterpay and Zip Pay differ only in endpoint and method field.
type RedirectProvider struct {
	method          domain.PaymentMethod
	backend         Poster
	path            string
	failureMessage  string
	applyMethodCode func(*orderRequest)
}

func NewAfterpay(backend Poster) *RedirectProvider {
	return &RedirectProvider{
		method:         domain.PaymentMethodAfterpay,
		backend:        backend,
		path:           afterpayCreatePath,
		failureMessage: "Failed to create Afterpay order",
		applyMethodCode: func(r *orderRequest) {
			r.PaymentMethodName = string(domain.PaymentMethodAfterpay)
		},
	}
}

func NewZipPay(backend Poster) *RedirectProvider {
	return &RedirectProvider{
		method:         domain.PaymentMethodZipPay,
		backend:        backend,
		path:           zipPayCreatePath,
		failureMessage: "Failed to start Zip Pay checkout",
		applyMethodCode: func(r *orderRequest) {
			r.PaymentMethod = zipPayMethodCode
		},
	}
}

func (p *RedirectProvider) Method() domain.PaymentMethod {
	return p.method
}

func (p *RedirectProvider) Classify(url string) Signal {
	return classify(url, redirectSuccessMarker, redirectCancelMarker)
}

type redirectResponse struct {
	RedirectURL string `json:"redirectUrl"`
	OrderID     string `json:"orderId"`
	Token       string `json:"token"`
}

func (p *RedirectProvider) CreateOrder(ctx context.Context, payload OrderPayload) (Order, error) {
	req := newOrderRequest(payload)
	p.applyMethodCode(&req)

	var resp redirectResponse
	if err := p.backend.Post(ctx, p.path, req, &resp); err != nil {
		return Order{}, &Error{Message: backend.MessageOr(err, p.failureMessage), Err: err}
	}
	if strings.TrimSpace(resp.RedirectURL) == "" {
		return Order{}, &Error{Message: "No redirect URL returned from server", Err: ErrMissingRedirect}
	}
	id := resp.OrderID
	if id == "" {
		id = resp.Token
	}
	return Order{RedirectURL: resp.RedirectURL, ProviderOrderID: id}, nil
}

func (p *RedirectProvider) Confirm(_ context.Context, order Order) (string, error) {
	return order.ProviderOrderID, nil
}

// NotifyFailed is a no-op: these providers expire abandoned orders on their
// own side.
func (p *RedirectProvider) NotifyFailed(context.Context, Order) error {
	return nil
}

var _ Provider = (*RedirectProvider)(nil)
