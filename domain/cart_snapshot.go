package domain

import "time"

// CartSnapshot is the persisted form of a cart.
type CartSnapshot struct {
	Items     []CartLineItem `json:"items"`
	UpdatedAt time.Time      `json:"updated_at"`
}
