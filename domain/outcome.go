package domain

import "time"

type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "SUCCEEDED"
	OutcomeCancelled OutcomeStatus = "CANCELLED"
	OutcomeFailed    OutcomeStatus = "FAILED"
)

func (s OutcomeStatus) String() string {
	return string(s)
}

// EventType is the outbox event name for the outcome.
func (s OutcomeStatus) EventType() string {
	switch s {
	case OutcomeSucceeded:
		return "CheckoutSucceeded"
	case OutcomeCancelled:
		return "CheckoutCancelled"
	default:
		return "CheckoutFailed"
	}
}

// Outcome is the record of one finished payment attempt.
type Outcome struct {
	AttemptID       string         `json:"attempt_id"`
	SessionID       string         `json:"session_id"`
	UserID          string         `json:"user_id"`
	Method          PaymentMethod  `json:"payment_method"`
	ProviderOrderID string         `json:"provider_order_id,omitempty"`
	Status          OutcomeStatus  `json:"status"`
	Items           []CartLineItem `json:"items"`
	Totals          Totals         `json:"totals"`
	CouponCode      string         `json:"coupon_code,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	OccurredAt      time.Time      `json:"occurred_at"`
}
