package checkout

import (
	"context"
	"strings"
	"sync"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/payment"
	"github.com/shopspring/decimal"
)

type mockQuoter struct {
	m      sync.RWMutex
	prices map[domain.ShippingMethod]decimal.Decimal
	err    error
	calls  int
	gate   chan struct{}
}

func (q *mockQuoter) Quote(_ context.Context, method domain.ShippingMethod, _ []domain.CartLineItem, _ domain.Address) (domain.ShippingSelection, error) {
	q.m.Lock()
	q.calls++
	gate := q.gate
	q.m.Unlock()
	if gate != nil {
		<-gate
	}

	q.m.RLock()
	defer q.m.RUnlock()
	if q.err != nil {
		return domain.ShippingSelection{}, q.err
	}
	return domain.ShippingSelection{Method: method, Price: q.prices[method]}, nil
}

type mockCoupons struct {
	m        sync.RWMutex
	discount domain.Discount
	err      error
	calls    int
	lastSeen []domain.CartLineItem
}

func (c *mockCoupons) Apply(_ context.Context, code string, items []domain.CartLineItem, _ domain.Address) (domain.Discount, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.calls++
	c.lastSeen = items
	if c.err != nil {
		return domain.Discount{}, c.err
	}
	d := c.discount
	d.CouponCode = code
	return d, nil
}

type mockProvider struct {
	m          sync.RWMutex
	method     domain.PaymentMethod
	order      payment.Order
	createErr  error
	confirmErr error
	created    int
	confirmed  int
	notified   int
	payload    payment.OrderPayload
	gate       chan struct{}
}

func newMockProvider(method domain.PaymentMethod) *mockProvider {
	return &mockProvider{
		method: method,
		order: payment.Order{
			RedirectURL:     "https://pay.example/" + string(method),
			ProviderOrderID: "ORD-1",
			Raw:             []byte(`{"id":42}`),
		},
	}
}

func (p *mockProvider) Method() domain.PaymentMethod {
	return p.method
}

func (p *mockProvider) CreateOrder(_ context.Context, payload payment.OrderPayload) (payment.Order, error) {
	p.m.Lock()
	p.created++
	p.payload = payload
	gate := p.gate
	p.m.Unlock()
	if gate != nil {
		<-gate
	}

	p.m.RLock()
	defer p.m.RUnlock()
	if p.createErr != nil {
		return payment.Order{}, p.createErr
	}
	return p.order, nil
}

func (p *mockProvider) Confirm(_ context.Context, order payment.Order) (string, error) {
	p.m.Lock()
	defer p.m.Unlock()
	p.confirmed++
	if p.confirmErr != nil {
		return "", p.confirmErr
	}
	return order.ProviderOrderID, nil
}

func (p *mockProvider) NotifyFailed(context.Context, payment.Order) error {
	p.m.Lock()
	defer p.m.Unlock()
	p.notified++
	return nil
}

func (p *mockProvider) Classify(url string) payment.Signal {
	success, cancel := payment.Markers(p.method)
	switch {
	case strings.Contains(url, success):
		return payment.SignalSuccess
	case strings.Contains(url, cancel):
		return payment.SignalCancel
	default:
		return payment.SignalNone
	}
}

func (p *mockProvider) counts() (created, confirmed, notified int) {
	p.m.RLock()
	defer p.m.RUnlock()
	return p.created, p.confirmed, p.notified
}

func (p *mockProvider) lastPayload() payment.OrderPayload {
	p.m.RLock()
	defer p.m.RUnlock()
	return p.payload
}

type mockRecorder struct {
	m        sync.RWMutex
	outcomes []*domain.Outcome
	err      error
}

func (r *mockRecorder) Record(_ context.Context, outcome *domain.Outcome) error {
	r.m.Lock()
	defer r.m.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return r.err
}

func (r *mockRecorder) recorded() []*domain.Outcome {
	r.m.RLock()
	defer r.m.RUnlock()
	return append([]*domain.Outcome(nil), r.outcomes...)
}

type mockOutcomeStore struct {
	m     sync.RWMutex
	err   error
	calls int
}

func (s *mockOutcomeStore) RecordOutcome(context.Context, *domain.Outcome) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.calls++
	return s.err
}
