package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fjod/storefront-checkout/internal/logger"
	"github.com/fjod/storefront-checkout/internal/repository"
)

type OutcomeReader interface {
	GetOutcomesBySession(ctx context.Context, sessionID string) ([]*repository.OutcomeRecord, error)
}

// OutcomeHandler serves the ledger history of a checkout session. Records
// outlive the in-memory session, so ownership is checked against the
// recorded user id.
type OutcomeHandler struct {
	reader OutcomeReader
	logger *zap.Logger
}

func NewOutcomeHandler(reader OutcomeReader, logger *zap.Logger) *OutcomeHandler {
	return &OutcomeHandler{reader: reader, logger: logger}
}

type OutcomeDTO struct {
	AttemptID       string          `json:"attempt_id"`
	PaymentMethod   string          `json:"payment_method"`
	ProviderOrderID string          `json:"provider_order_id,omitempty"`
	Status          string          `json:"status"`
	TotalAmount     string          `json:"total_amount"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Items           json.RawMessage `json:"items,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

type OutcomesResponseDTO struct {
	SessionID string       `json:"session_id"`
	Outcomes  []OutcomeDTO `json:"outcomes"`
}

// GET /api/v1/checkout/{session_id}/outcomes
func (h *OutcomeHandler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	buyer, ok := buyerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	sessionID := chi.URLParam(r, "session_id")

	records, err := h.reader.GetOutcomesBySession(r.Context(), sessionID)
	if errors.Is(err, repository.ErrOutcomeNotFound) {
		respondError(w, http.StatusNotFound, "outcomes_not_found", "no payment outcomes recorded for this checkout")
		return
	}
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Error("failed to load checkout outcomes",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load checkout outcomes")
		return
	}

	resp := OutcomesResponseDTO{SessionID: sessionID, Outcomes: make([]OutcomeDTO, 0, len(records))}
	for _, rec := range records {
		// another buyer's session looks the same as a missing one
		if rec.UserID != buyer.ID {
			respondError(w, http.StatusNotFound, "outcomes_not_found", "no payment outcomes recorded for this checkout")
			return
		}
		resp.Outcomes = append(resp.Outcomes, toOutcomeDTO(rec))
	}
	respondJSON(w, http.StatusOK, resp)
}

func toOutcomeDTO(rec *repository.OutcomeRecord) OutcomeDTO {
	return OutcomeDTO{
		AttemptID:       rec.AttemptID,
		PaymentMethod:   rec.PaymentMethod,
		ProviderOrderID: deref(rec.ProviderOrderID),
		Status:          string(rec.Status),
		TotalAmount:     rec.TotalAmount,
		CouponCode:      deref(rec.CouponCode),
		Reason:          deref(rec.Reason),
		Items:           rec.CartSnapshot,
		OccurredAt:      rec.OccurredAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
