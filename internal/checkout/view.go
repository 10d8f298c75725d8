package checkout

import "github.com/fjod/storefront-checkout/domain"

// View is a point-in-time snapshot of a wizard for rendering.
type View struct {
	SessionID     string                    `json:"session_id"`
	Step          domain.CheckoutStep       `json:"step"`
	Items         []domain.CartLineItem     `json:"items"`
	Address       domain.Address            `json:"address"`
	Shipping      *domain.ShippingSelection `json:"shipping"`
	Discount      domain.Discount           `json:"discount"`
	PaymentMethod domain.PaymentMethod      `json:"payment_method"`
	Totals        domain.Totals             `json:"totals"`
	RedirectURL   string                    `json:"redirect_url,omitempty"`
	Busy          []string                  `json:"busy"`
	Notice        string                    `json:"notice,omitempty"`
	Outcome       *domain.Outcome           `json:"outcome,omitempty"`
}

// view builds the snapshot. Caller holds mu.
func (w *Wizard) view() View {
	v := View{
		SessionID:     w.id,
		Step:          w.step,
		Items:         domain.CloneItems(w.items),
		Address:       w.address,
		Discount:      w.discount,
		PaymentMethod: w.method,
		Totals:        w.totals(),
		Busy:          []string{},
		Notice:        w.notice,
		Outcome:       w.outcome,
	}
	if w.selection != nil {
		sel := *w.selection
		v.Shipping = &sel
	}
	if w.attempt != nil {
		v.RedirectURL = w.attempt.RedirectURL()
	}
	for op, busy := range w.busy {
		if busy {
			v.Busy = append(v.Busy, operation(op).String())
		}
	}
	return v
}
