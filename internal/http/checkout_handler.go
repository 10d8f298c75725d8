package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/backend"
	"github.com/fjod/storefront-checkout/internal/cart"
	"github.com/fjod/storefront-checkout/internal/checkout"
	"github.com/fjod/storefront-checkout/internal/coupon"
	"github.com/fjod/storefront-checkout/internal/logger"
	"github.com/fjod/storefront-checkout/internal/payment"
	"github.com/fjod/storefront-checkout/internal/shipping"
)

type CheckoutHandler struct {
	sessions *checkout.Sessions
	carts    *cart.Registry
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCheckoutHandler(sessions *checkout.Sessions, carts *cart.Registry, timeout time.Duration, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		sessions: sessions,
		carts:    carts,
		timeout:  timeout,
		logger:   logger,
	}
}

type ShippingRequestDTO struct {
	Method string `json:"method"`
}

type CouponRequestDTO struct {
	Code string `json:"code"`
}

type PaymentMethodRequestDTO struct {
	Method string `json:"method"`
}

type CallbackRequestDTO struct {
	URL string `json:"url"`
}

type CheckoutResponseDTO struct {
	RedirectURL string        `json:"redirect_url,omitempty"`
	Checkout    checkout.View `json:"checkout"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	buyer, ok := buyerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	items := h.carts.Get(r.Context(), cart.OwnerKey(buyer.ID)).Items()
	wiz, err := h.sessions.Start(buyer, items)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{Checkout: wiz.View()})
}

// GET /api/v1/checkout/{session_id}
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	wiz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, CheckoutResponseDTO{Checkout: wiz.View()})
}

// PUT /api/v1/checkout/{session_id}/address
func (h *CheckoutHandler) SetAddress(w http.ResponseWriter, r *http.Request) {
	wiz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var address domain.Address
	if !decodeJSON(w, r, &address) {
		return
	}
	h.reply(w, r, wiz, "", wiz.SetAddress(address))
}

// POST /api/v1/checkout/{session_id}/continue
func (h *CheckoutHandler) Continue(w http.ResponseWriter, r *http.Request) {
	wiz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	redirectURL, err := wiz.Continue(ctx)
	h.reply(w, r, wiz, redirectURL, err)
}

// POST /api/v1/checkout/{session_id}/back
func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	wiz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	h.reply(w, r, wiz, "", wiz.Back())
}

// PUT /api/v1/checkout/{session_id}/shipping
func (h *CheckoutHandler) SelectShipping(w http.ResponseWriter, r *http.Request) {
	wiz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req ShippingRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	method, err := domain.ParseShippingMethod(req.Method)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_shipping_method", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.reply(w, r, wiz, "", wiz.SelectShipping(ctx, method))
}

// POST /api/v1/checkout/{session_id}/coupon
func (h *CheckoutHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	wiz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req CouponRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.reply(w, r, wiz, "", wiz.ApplyCoupon(ctx, req.Code))
}

// PUT /api/v1/checkout/{session_id}/payment-method
func (h *CheckoutHandler) SelectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	wiz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req PaymentMethodRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	method, err := domain.ParsePaymentMethod(req.Method)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payment_method", err.Error())
		return
	}
	h.reply(w, r, wiz, "", wiz.SelectPaymentMethod(method))
}

// POST /api/v1/checkout/{session_id}/pay
func (h *CheckoutHandler) Pay(w http.ResponseWriter, r *http.Request) {
	wiz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	redirectURL, err := wiz.PayNow(ctx)
	h.reply(w, r, wiz, redirectURL, err)
}

// POST /api/v1/checkout/{session_id}/callback
//
// The app forwards the deep link it was opened with.
func (h *CheckoutHandler) Callback(w http.ResponseWriter, r *http.Request) {
	wiz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req CallbackRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		respondError(w, http.StatusBadRequest, "missing_url", "url is required")
		return
	}
	h.settle(w, r, wiz, req.URL)
}

// GET /return/{session_id}/*
//
// Providers redirect the shopper's browser here. There is no bearer token;
// the session id in the path is the only key.
func (h *CheckoutHandler) ProviderReturn(w http.ResponseWriter, r *http.Request) {
	wiz, err := h.sessions.Lookup(chi.URLParam(r, "session_id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.settle(w, r, wiz, r.URL.String())
}

func (h *CheckoutHandler) settle(w http.ResponseWriter, r *http.Request, wiz *checkout.Wizard, url string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := wiz.HandleCallback(ctx, url)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, CheckoutResponseDTO{Checkout: view})
}

func (h *CheckoutHandler) reply(w http.ResponseWriter, r *http.Request, wiz *checkout.Wizard, redirectURL string, err error) {
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, CheckoutResponseDTO{RedirectURL: redirectURL, Checkout: wiz.View()})
}

func (h *CheckoutHandler) wizard(w http.ResponseWriter, r *http.Request) (*checkout.Wizard, bool) {
	buyer, ok := buyerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return nil, false
	}
	wiz, err := h.sessions.Get(chi.URLParam(r, "session_id"), buyer.ID)
	if err != nil {
		h.handleError(w, r, err)
		return nil, false
	}
	return wiz, true
}

// handleError maps checkout errors to HTTP statuses. Messages from the
// storefront backend are passed through for the shopper.
func (h *CheckoutHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *checkout.ValidationError
		qe  *shipping.QuoteError
		rej *coupon.RejectedError
		ce  *coupon.RequestError
		pe  *payment.Error
	)
	switch {
	case errors.As(err, &ve):
		respondErrorDetails(w, http.StatusUnprocessableEntity, "validation_failed", ve.Message, strings.Join(ve.Fields, ","))
	case errors.Is(err, checkout.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, checkout.ErrForbidden):
		respondError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, checkout.ErrBusy):
		respondError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, checkout.ErrInvalidStep):
		respondError(w, http.StatusConflict, "invalid_step", err.Error())
	case errors.Is(err, checkout.ErrCompleted):
		respondError(w, http.StatusConflict, "completed", err.Error())
	case errors.Is(err, checkout.ErrNoActivePayment):
		respondErrorDetails(w, http.StatusConflict, "no_active_payment", err.Error(), "Missing payment order data")
	case errors.Is(err, shipping.ErrUnavailable):
		respondError(w, http.StatusUnprocessableEntity, "shipping_unavailable", shipping.UnavailableMessage)
	case errors.As(err, &qe):
		respondError(w, http.StatusBadGateway, "shipping_failed", qe.Message)
	case errors.As(err, &rej):
		respondError(w, http.StatusUnprocessableEntity, "coupon_rejected", rej.Message)
	case errors.As(err, &ce):
		respondError(w, http.StatusBadGateway, "coupon_failed", ce.Message)
	case errors.Is(err, payment.ErrUnknownSignal):
		respondError(w, http.StatusBadRequest, "unknown_callback", err.Error())
	case errors.Is(err, payment.ErrNotCompleted), errors.Is(err, payment.ErrMissingOrderData):
		respondError(w, http.StatusPaymentRequired, "payment_failed", payment.UserMessage(err, "Payment failed"))
	case errors.As(err, &pe):
		respondError(w, http.StatusBadGateway, "payment_provider_error", pe.Message)
	case errors.Is(err, backend.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "storefront backend unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		logger.FromContext(r.Context(), h.logger).Error("checkout request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
