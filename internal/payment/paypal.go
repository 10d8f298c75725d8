package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/backend"
	"go.uber.org/zap"
)

const (
	paypalCreatePath  = "/v1/paypal/create-order"
	paypalCapturePath = "/v1/paypal/capture-order"
	paypalFailedPath  = "/v1/paypal/failed-order"

	paypalMethodCode = 1
	paypalCompleted  = "COMPLETED"
)

// PayPal creates an order, sends the shopper to the approval URL and
// captures the order once the shopper returns.
type PayPal struct {
	backend Poster
	logger  *zap.Logger
}

func NewPayPal(backend Poster, logger *zap.Logger) *PayPal {
	return &PayPal{backend: backend, logger: logger}
}

func (p *PayPal) Method() domain.PaymentMethod {
	return domain.PaymentMethodPayPal
}

func (p *PayPal) Classify(url string) Signal {
	return classify(url, paypalSuccessMarker, paypalCancelMarker)
}

type paypalCreateResponse struct {
	ApprovalURL string          `json:"approvalUrl"`
	OrderID     string          `json:"orderID"`
	Order       json.RawMessage `json:"order"`
}

func (p *PayPal) CreateOrder(ctx context.Context, payload OrderPayload) (Order, error) {
	req := newOrderRequest(payload)
	req.PaymentMethod = paypalMethodCode

	var resp paypalCreateResponse
	if err := p.backend.Post(ctx, paypalCreatePath, req, &resp); err != nil {
		return Order{}, &Error{Message: backend.MessageOr(err, "Failed to create PayPal order"), Err: err}
	}
	if strings.TrimSpace(resp.ApprovalURL) == "" {
		return Order{}, &Error{Message: "No approvalUrl returned from server", Err: ErrMissingRedirect}
	}
	return Order{
		RedirectURL:     resp.ApprovalURL,
		ProviderOrderID: resp.OrderID,
		Raw:             resp.Order,
	}, nil
}

type captureRequest struct {
	OrderID string          `json:"orderID"`
	Order   json.RawMessage `json:"order"`
}

type captureResponse struct {
	Status string `json:"status"`
}

// Confirm captures the order. Anything but a COMPLETED status is a failed
// payment.
func (p *PayPal) Confirm(ctx context.Context, order Order) (string, error) {
	if order.ProviderOrderID == "" || !hasOrderData(order.Raw) {
		return "", &Error{Message: "Missing PayPal order data", Err: ErrMissingOrderData}
	}

	var resp captureResponse
	if err := p.backend.Post(ctx, paypalCapturePath, captureRequest{OrderID: order.ProviderOrderID, Order: order.Raw}, &resp); err != nil {
		return "", &Error{Message: "PayPal capture failed", Err: err}
	}
	if resp.Status != paypalCompleted {
		p.logger.Info("PayPal capture not completed",
			zap.String("order_id", order.ProviderOrderID),
			zap.String("status", resp.Status),
		)
		return "", &Error{Message: "Payment not completed", Err: fmt.Errorf("%w: status %q", ErrNotCompleted, resp.Status)}
	}
	return orderReference(order), nil
}

type failedRequest struct {
	Order json.RawMessage `json:"order"`
}

func (p *PayPal) NotifyFailed(ctx context.Context, order Order) error {
	if !hasOrderData(order.Raw) {
		return ErrMissingOrderData
	}
	var ignored json.RawMessage
	if err := p.backend.Post(ctx, paypalFailedPath, failedRequest{Order: order.Raw}, &ignored); err != nil {
		return fmt.Errorf("notify failed order: %w", err)
	}
	return nil
}

func hasOrderData(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}

// orderReference prefers the storefront order id carried in the order blob
// and falls back to the provider's id.
func orderReference(order Order) string {
	var body struct {
		ID backend.Number `json:"id"`
	}
	if err := json.Unmarshal(order.Raw, &body); err == nil && body.ID.Valid {
		return body.ID.Value.String()
	}
	var text struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(order.Raw, &text); err == nil && text.ID != "" {
		return text.ID
	}
	return order.ProviderOrderID
}

var _ Provider = (*PayPal)(nil)
