package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/cart"
	"github.com/fjod/storefront-checkout/internal/pricing"
)

type CartHandler struct {
	carts *cart.Registry
}

func NewCartHandler(carts *cart.Registry) *CartHandler {
	return &CartHandler{carts: carts}
}

type AddItemRequestDTO struct {
	ProductID     int64              `json:"product_id"`
	Name          string             `json:"name"`
	Slug          string             `json:"slug"`
	Quantity      int                `json:"quantity"`
	RegularPrice  decimal.Decimal    `json:"regular_price"`
	DiscountPrice decimal.Decimal    `json:"discount_price"`
	Weight        decimal.Decimal    `json:"weight"`
	DepartmentID  int64              `json:"department_id"`
	CategoryID    int64              `json:"category_id"`
	ModelID       int64              `json:"model_id"`
	Images        []string           `json:"images"`
	Variations    []domain.Variation `json:"variations"`
}

type CartResponseDTO struct {
	Items    []domain.CartLineItem `json:"items"`
	Subtotal decimal.Decimal       `json:"subtotal"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(store.Items()))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity < 1 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}
	if req.RegularPrice.IsNegative() || req.DiscountPrice.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_price", "prices must not be negative")
		return
	}

	store.Add(domain.CartLineItem{
		ProductID:     req.ProductID,
		Name:          req.Name,
		Slug:          req.Slug,
		Quantity:      req.Quantity,
		RegularPrice:  req.RegularPrice,
		DiscountPrice: req.DiscountPrice,
		Weight:        req.Weight,
		DepartmentID:  req.DepartmentID,
		CategoryID:    req.CategoryID,
		ModelID:       req.ModelID,
		Images:        req.Images,
		Variations:    req.Variations,
	})
	respondJSON(w, http.StatusCreated, cartResponse(store.Items()))
}

// POST /api/v1/cart/items/{product_id}/increase
func (h *CartHandler) IncreaseQuantity(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, (*cart.Store).IncreaseQuantity)
}

// POST /api/v1/cart/items/{product_id}/decrease
func (h *CartHandler) DecreaseQuantity(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, (*cart.Store).DecreaseQuantity)
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, (*cart.Store).Remove)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	store.Clear()
	respondJSON(w, http.StatusOK, cartResponse(store.Items()))
}

func (h *CartHandler) mutate(w http.ResponseWriter, r *http.Request, op func(*cart.Store, int64) bool) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	// Get product_id from URL path
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}
	if !op(store, productID) {
		respondError(w, http.StatusNotFound, "not_found", "product is not in the cart")
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(store.Items()))
}

func (h *CartHandler) store(w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	buyer, ok := buyerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return nil, false
	}
	return h.carts.Get(r.Context(), cart.OwnerKey(buyer.ID)), true
}

func cartResponse(items []domain.CartLineItem) CartResponseDTO {
	return CartResponseDTO{
		Items:    items,
		Subtotal: pricing.ComputeTotals(items, decimal.Zero, domain.Discount{}).Subtotal,
	}
}
