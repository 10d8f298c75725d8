package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/coupon"
	"github.com/fjod/storefront-checkout/internal/logger"
	"github.com/fjod/storefront-checkout/internal/payment"
	"github.com/fjod/storefront-checkout/internal/pricing"
	"github.com/fjod/storefront-checkout/internal/shipping"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ShippingQuoter interface {
	Quote(ctx context.Context, method domain.ShippingMethod, items []domain.CartLineItem, address domain.Address) (domain.ShippingSelection, error)
}

type CouponApplier interface {
	Apply(ctx context.Context, code string, items []domain.CartLineItem, address domain.Address) (domain.Discount, error)
}

// Deps are the collaborators shared by every wizard.
type Deps struct {
	Shipping  ShippingQuoter
	Coupons   CouponApplier
	Providers payment.Providers
	Recorder  Recorder
	Logger    *zap.Logger
	// Platform is reported as the device type when creating orders.
	Platform string
	// ReturnBaseURL is where providers send the shopper back to:
	// <base>/return/<session id>/<marker>. Empty leaves it to the backend.
	ReturnBaseURL string
	// OnSuccess runs after a payment succeeded and its outcome was recorded.
	OnSuccess func(ctx context.Context, outcome *domain.Outcome)
	Now       func() time.Time
}

type operation int

const (
	opQuote operation = iota
	opCoupon
	opPayment
	opCount
)

func (o operation) String() string {
	switch o {
	case opQuote:
		return "shipping_quote"
	case opCoupon:
		return "coupon"
	default:
		return "payment"
	}
}

// Wizard drives one checkout session from address entry to a settled
// payment. It works on its own copy of the cart. Network calls run without
// the lock held; a busy flag per operation rejects duplicate submissions.
type Wizard struct {
	id    string
	buyer payment.Buyer
	deps  Deps

	mu        sync.Mutex
	step      domain.CheckoutStep
	items     []domain.CartLineItem
	address   domain.Address
	selection *domain.ShippingSelection
	discount  domain.Discount
	method    domain.PaymentMethod
	attempt   *payment.Attempt
	busy      [opCount]bool
	callbacks int
	notice    string
	outcome   *domain.Outcome
}

func New(id string, buyer payment.Buyer, items []domain.CartLineItem, deps Deps) *Wizard {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = NewLogRecorder(deps.Logger)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Wizard{
		id:    id,
		buyer: buyer,
		deps:  deps,
		step:  domain.CheckoutStepAddress,
		items: domain.CloneItems(items),
	}
}

func (w *Wizard) ID() string {
	return w.id
}

func (w *Wizard) OwnerID() string {
	return w.buyer.ID
}

func (w *Wizard) Step() domain.CheckoutStep {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// SetAddress replaces the shipping address. A delivery quote for a
// different address is dropped.
func (w *Wizard) SetAddress(address domain.Address) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen(); err != nil {
		return err
	}
	if w.step != domain.CheckoutStepAddress {
		return fmt.Errorf("%w: address can only be changed on the %s step", ErrInvalidStep, domain.CheckoutStepAddress)
	}
	if w.selection != nil && !w.selection.Method.IsPickup() && !sameAddress(w.address, address) {
		w.selection = nil
	}
	w.address = address
	w.notice = ""
	return nil
}

// Continue advances one step. On the payment step it starts the payment
// and returns the provider redirect URL.
func (w *Wizard) Continue(ctx context.Context) (string, error) {
	w.mu.Lock()
	switch w.step {
	case domain.CheckoutStepAddress:
		defer w.mu.Unlock()
		if missing := w.address.MissingFields(); len(missing) > 0 {
			return "", w.reject(&ValidationError{Message: msgAddressIncomplete, Fields: missing})
		}
		return "", w.moveTo(domain.CheckoutStepShipping)
	case domain.CheckoutStepShipping:
		defer w.mu.Unlock()
		if w.busy[opQuote] {
			return "", ErrBusy
		}
		if w.selection == nil {
			return "", w.reject(&ValidationError{Message: msgNoShipping})
		}
		return "", w.moveTo(domain.CheckoutStepPayment)
	case domain.CheckoutStepPayment:
		w.mu.Unlock()
		return w.PayNow(ctx)
	case domain.CheckoutStepPaymentInFlight:
		w.mu.Unlock()
		return "", ErrBusy
	default:
		w.mu.Unlock()
		return "", ErrCompleted
	}
}

// PayNow creates the provider order for the selected payment method and
// enters the in-flight state. Only one create-order call may run at a time.
func (w *Wizard) PayNow(ctx context.Context) (string, error) {
	w.mu.Lock()
	if err := w.checkOpen(); err != nil {
		w.mu.Unlock()
		return "", err
	}
	if w.step == domain.CheckoutStepPaymentInFlight || w.anyBusy() {
		w.mu.Unlock()
		return "", ErrBusy
	}
	if w.step != domain.CheckoutStepPayment {
		w.mu.Unlock()
		return "", fmt.Errorf("%w: payment starts on the %s step", ErrInvalidStep, domain.CheckoutStepPayment)
	}
	if w.selection == nil {
		defer w.mu.Unlock()
		return "", w.reject(&ValidationError{Message: msgNoShipping})
	}
	if w.method.IsNone() {
		defer w.mu.Unlock()
		return "", w.reject(&ValidationError{Message: msgNoPaymentMethod})
	}
	provider, err := w.deps.Providers.Get(w.method)
	if err != nil {
		defer w.mu.Unlock()
		return "", w.reject(&ValidationError{Message: msgMethodUnavailable})
	}
	payload := w.orderPayload()
	w.busy[opPayment] = true
	w.notice = ""
	w.mu.Unlock()

	log := logger.FromContext(ctx, w.deps.Logger).With(zap.String("session_id", w.id))
	attempt, err := payment.Start(ctx, provider, payload, log)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy[opPayment] = false
	if err != nil {
		w.notice = payment.UserMessage(err, msgPaymentFailed)
		log.Warn("failed to create payment order",
			zap.String("method", payload.Method.String()),
			zap.Error(err),
		)
		return "", err
	}
	if err := w.moveTo(domain.CheckoutStepPaymentInFlight); err != nil {
		attempt.Abandon()
		return "", err
	}
	w.attempt = attempt
	return attempt.RedirectURL(), nil
}

// Back moves to the previous step. Leaving the in-flight state only drops
// the local attempt; the provider is not contacted, and the method stays
// selected for a retry. Leaving the payment step clears the method.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen(); err != nil {
		return err
	}
	if w.anyBusy() || w.callbacks > 0 {
		return ErrBusy
	}
	w.notice = ""
	switch w.step {
	case domain.CheckoutStepAddress:
		return nil
	case domain.CheckoutStepPaymentInFlight:
		w.dropAttempt()
		return w.moveTo(domain.CheckoutStepPayment)
	case domain.CheckoutStepPayment:
		if err := w.moveTo(domain.CheckoutStepShipping); err != nil {
			return err
		}
		w.method = domain.PaymentMethodNone
		return nil
	default:
		return w.moveTo(w.step.Previous())
	}
}

// SelectShipping quotes method for the current cart and address. A failed
// quote keeps the previous selection.
func (w *Wizard) SelectShipping(ctx context.Context, method domain.ShippingMethod) error {
	w.mu.Lock()
	if err := w.checkOpen(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.step != domain.CheckoutStepShipping && w.step != domain.CheckoutStepPayment {
		w.mu.Unlock()
		return fmt.Errorf("%w: shipping is chosen on the %s step", ErrInvalidStep, domain.CheckoutStepShipping)
	}
	if w.busy[opQuote] || w.busy[opPayment] {
		w.mu.Unlock()
		return ErrBusy
	}
	if !method.Valid() {
		defer w.mu.Unlock()
		return w.reject(&ValidationError{Message: msgNoShipping})
	}
	items := w.paidItems()
	address := w.address
	w.busy[opQuote] = true
	w.mu.Unlock()

	selection, err := w.deps.Shipping.Quote(ctx, method, items, address)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy[opQuote] = false
	if err != nil {
		w.notice = shipping.UserMessage(err)
		logger.FromContext(ctx, w.deps.Logger).Info("shipping quote failed",
			zap.String("session_id", w.id),
			zap.Stringer("method", method),
			zap.Error(err),
		)
		return err
	}
	w.selection = &selection
	w.notice = ""
	return nil
}

// ApplyCoupon applies code to the cart. On success it replaces any earlier
// discount along with that discount's bonus item; on failure nothing
// changes.
func (w *Wizard) ApplyCoupon(ctx context.Context, code string) error {
	w.mu.Lock()
	if err := w.checkOpen(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.step == domain.CheckoutStepPaymentInFlight || w.busy[opCoupon] || w.busy[opPayment] {
		w.mu.Unlock()
		return ErrBusy
	}
	if strings.TrimSpace(code) == "" {
		defer w.mu.Unlock()
		return w.reject(&ValidationError{Message: msgEmptyCoupon})
	}
	items := w.paidItems()
	address := w.address
	w.busy[opCoupon] = true
	w.mu.Unlock()

	discount, err := w.deps.Coupons.Apply(ctx, code, items, address)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy[opCoupon] = false
	if err != nil {
		w.notice = coupon.UserMessage(err)
		logger.FromContext(ctx, w.deps.Logger).Info("coupon not applied",
			zap.String("session_id", w.id),
			zap.Error(err),
		)
		return err
	}
	w.removeBonusItem()
	w.discount = discount
	if discount.BonusItem != nil {
		w.items = append(w.items, discount.BonusItem.Clone())
	}
	w.notice = ""
	return nil
}

// SelectPaymentMethod records the method to pay with. Picking a method
// while a payment is in flight drops that attempt first.
func (w *Wizard) SelectPaymentMethod(method domain.PaymentMethod) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkOpen(); err != nil {
		return err
	}
	if w.busy[opPayment] || w.callbacks > 0 {
		return ErrBusy
	}
	if w.step != domain.CheckoutStepPayment && w.step != domain.CheckoutStepPaymentInFlight {
		return fmt.Errorf("%w: payment method is chosen on the %s step", ErrInvalidStep, domain.CheckoutStepPayment)
	}
	if !method.IsNone() {
		if _, err := w.deps.Providers.Get(method); err != nil {
			return w.reject(&ValidationError{Message: msgMethodUnavailable})
		}
	}
	if w.step == domain.CheckoutStepPaymentInFlight {
		w.dropAttempt()
		if err := w.moveTo(domain.CheckoutStepPayment); err != nil {
			return err
		}
	}
	w.method = method
	w.notice = ""
	return nil
}

// HandleCallback delivers a provider return url to the active attempt.
// Repeated callbacks after the first are ignored. A failed payment returns
// the wizard to the payment step and the failure as error.
func (w *Wizard) HandleCallback(ctx context.Context, url string) (View, error) {
	w.mu.Lock()
	a := w.attempt
	if a == nil {
		defer w.mu.Unlock()
		if w.step.IsTerminal() {
			return w.view(), nil
		}
		if w.carriesSuccess(url) {
			w.notice = msgMissingOrderData
		}
		return w.view(), ErrNoActivePayment
	}
	w.callbacks++
	w.mu.Unlock()

	res, err := a.Resolve(ctx, url)

	w.mu.Lock()
	w.callbacks--
	if err != nil {
		defer w.mu.Unlock()
		if errors.Is(err, payment.ErrAlreadySettled) {
			return w.view(), nil
		}
		return w.view(), err
	}
	if w.attempt != a {
		w.mu.Unlock()
		w.deps.Logger.Warn("payment settled after its attempt was dropped",
			zap.String("session_id", w.id),
			zap.String("attempt_id", a.ID()),
			zap.String("status", res.Status.String()),
		)
		return w.View(), nil
	}

	outcome := w.settle(a, res)
	view := w.view()
	w.mu.Unlock()

	w.record(ctx, outcome)
	if res.Status == domain.OutcomeSucceeded && w.deps.OnSuccess != nil {
		w.deps.OnSuccess(ctx, outcome)
	}
	return view, res.Err
}

// Totals prices the working cart with the confirmed shipping and discount.
func (w *Wizard) Totals() domain.Totals {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totals()
}

func (w *Wizard) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view()
}

// settle applies a settled attempt and builds its outcome. Caller holds mu.
func (w *Wizard) settle(a *payment.Attempt, res payment.Result) *domain.Outcome {
	outcome := &domain.Outcome{
		AttemptID:       a.ID(),
		SessionID:       w.id,
		UserID:          w.buyer.ID,
		Method:          a.Method(),
		ProviderOrderID: a.ProviderOrderID(),
		Status:          res.Status,
		Items:           domain.CloneItems(w.items),
		Totals:          w.totals(),
		CouponCode:      w.discount.CouponCode,
		OccurredAt:      w.deps.Now().UTC(),
	}
	if res.Reference != "" {
		outcome.ProviderOrderID = res.Reference
	}

	w.attempt = nil
	switch res.Status {
	case domain.OutcomeSucceeded:
		w.step = domain.CheckoutStepCompleted
		w.method = domain.PaymentMethodNone
		w.notice = ""
		w.outcome = outcome
	case domain.OutcomeCancelled:
		w.step = domain.CheckoutStepPayment
		w.notice = msgPaymentCancelled
		outcome.Reason = "cancelled by shopper"
	default:
		w.step = domain.CheckoutStepPayment
		w.notice = payment.UserMessage(res.Err, msgPaymentFailed)
		if res.Err != nil {
			outcome.Reason = res.Err.Error()
		}
	}
	return outcome
}

// record is best-effort: the outcome stands even if it cannot be stored.
func (w *Wizard) record(ctx context.Context, outcome *domain.Outcome) {
	if err := w.deps.Recorder.Record(context.WithoutCancel(ctx), outcome); err != nil {
		logger.FromContext(ctx, w.deps.Logger).Error("failed to record checkout outcome",
			zap.String("session_id", w.id),
			zap.String("attempt_id", outcome.AttemptID),
			zap.Error(err),
		)
	}
}

func (w *Wizard) orderPayload() payment.OrderPayload {
	payload := payment.OrderPayload{
		Address:  w.address,
		Items:    domain.CloneItems(w.items),
		Shipping: *w.selection,
		Discount: w.discount,
		Method:   w.method,
		Device:   payment.DefaultDevice(w.deps.Platform),
		Buyer:    w.buyer,
	}
	if base := strings.TrimRight(w.deps.ReturnBaseURL, "/"); base != "" {
		success, cancel := payment.Markers(w.method)
		payload.ReturnURL = fmt.Sprintf("%s/return/%s/%s", base, w.id, success)
		payload.CancelURL = fmt.Sprintf("%s/return/%s/%s", base, w.id, cancel)
	}
	return payload
}

func (w *Wizard) totals() domain.Totals {
	shippingPrice := decimal.Zero
	if w.selection != nil {
		shippingPrice = w.selection.Price
	}
	return pricing.ComputeTotals(w.items, shippingPrice, w.discount)
}

func (w *Wizard) moveTo(to domain.CheckoutStep) error {
	if !domain.CanTransitionTo(w.step, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStep, w.step, to)
	}
	w.step = to
	return nil
}

func (w *Wizard) checkOpen() error {
	if w.step.IsTerminal() {
		return ErrCompleted
	}
	return nil
}

func (w *Wizard) reject(err *ValidationError) error {
	w.notice = err.Message
	return err
}

func (w *Wizard) anyBusy() bool {
	for _, b := range w.busy {
		if b {
			return true
		}
	}
	return false
}

func (w *Wizard) dropAttempt() {
	if w.attempt != nil {
		w.attempt.Abandon()
		w.attempt = nil
	}
}

// paidItems is the cart without the current coupon's bonus item.
func (w *Wizard) paidItems() []domain.CartLineItem {
	out := make([]domain.CartLineItem, 0, len(w.items))
	for _, it := range w.items {
		if w.isBonus(it) {
			continue
		}
		out = append(out, it.Clone())
	}
	return out
}

func (w *Wizard) removeBonusItem() {
	kept := w.items[:0]
	for _, it := range w.items {
		if !w.isBonus(it) {
			kept = append(kept, it)
		}
	}
	w.items = kept
}

func (w *Wizard) isBonus(it domain.CartLineItem) bool {
	b := w.discount.BonusItem
	return b != nil && it.IsFree && it.CartID == b.CartID
}

// carriesSuccess reports whether url is a success callback of any provider.
func (w *Wizard) carriesSuccess(url string) bool {
	for _, p := range w.deps.Providers {
		if p.Classify(url) == payment.SignalSuccess {
			return true
		}
	}
	return false
}

func sameAddress(a, b domain.Address) bool {
	if a.Street != b.Street || a.City != b.City || a.Postcode != b.Postcode {
		return false
	}
	return countryID(a) == countryID(b) && stateID(a) == stateID(b)
}

func countryID(a domain.Address) string {
	if a.Country == nil {
		return ""
	}
	return a.Country.ID
}

func stateID(a domain.Address) string {
	if a.State == nil {
		return ""
	}
	return a.State.ID
}
