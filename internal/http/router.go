package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Cart           *CartHandler
	Checkout       *CheckoutHandler
	Outcomes       *OutcomeHandler
	JWT            *JWTManager
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(ZapLogger(cfg.Logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Provider redirects land here without a bearer token.
	r.Get("/return/{session_id}/*", cfg.Checkout.ProviderReturn)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWT))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cfg.Cart.GetCart)
			r.Delete("/", cfg.Cart.ClearCart)
			r.Post("/items", cfg.Cart.AddItem)
			r.Post("/items/{product_id}/increase", cfg.Cart.IncreaseQuantity)
			r.Post("/items/{product_id}/decrease", cfg.Cart.DecreaseQuantity)
			r.Delete("/items/{product_id}", cfg.Cart.RemoveItem)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", cfg.Checkout.StartCheckout)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", cfg.Checkout.GetCheckout)
				r.Put("/address", cfg.Checkout.SetAddress)
				r.Post("/continue", cfg.Checkout.Continue)
				r.Post("/back", cfg.Checkout.Back)
				r.Put("/shipping", cfg.Checkout.SelectShipping)
				r.Post("/coupon", cfg.Checkout.ApplyCoupon)
				r.Put("/payment-method", cfg.Checkout.SelectPaymentMethod)
				r.Post("/pay", cfg.Checkout.Pay)
				r.Post("/callback", cfg.Checkout.Callback)
				if cfg.Outcomes != nil {
					r.Get("/outcomes", cfg.Outcomes.ListOutcomes)
				}
			})
		})
	})

	return r
}
