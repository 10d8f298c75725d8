package payment

import (
	"context"
	"sync"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Providers maps a payment method to its handoff.
type Providers map[domain.PaymentMethod]Provider

func NewProviders(providers ...Provider) Providers {
	out := make(Providers, len(providers))
	for _, p := range providers {
		out[p.Method()] = p
	}
	return out
}

func (ps Providers) Get(method domain.PaymentMethod) (Provider, error) {
	p, ok := ps[method]
	if !ok {
		return nil, ErrUnsupported
	}
	return p, nil
}

// Result is the settled outcome of an attempt.
type Result struct {
	Status    domain.OutcomeStatus
	Reference string
	// Err carries the failure for FAILED results.
	Err error
}

type attemptState int

const (
	awaitingCallback attemptState = iota
	confirming
	settled
)

// Attempt is one create-order/redirect/callback cycle. Only the first
// callback that reaches it is acted on; later ones get ErrAlreadySettled.
type Attempt struct {
	id       string
	provider Provider
	order    Order
	logger   *zap.Logger

	mu    sync.Mutex
	state attemptState
}

// Start creates the provider order. No attempt exists unless a redirect
// target came back.
func Start(ctx context.Context, provider Provider, payload OrderPayload, logger *zap.Logger) (*Attempt, error) {
	order, err := provider.CreateOrder(ctx, payload)
	if err != nil {
		return nil, err
	}
	a := &Attempt{
		id:       uuid.NewString(),
		provider: provider,
		order:    order,
		logger:   logger,
	}
	logger.Info("payment order created",
		zap.String("attempt_id", a.id),
		zap.String("method", provider.Method().String()),
		zap.String("provider_order_id", order.ProviderOrderID),
	)
	return a, nil
}

func (a *Attempt) ID() string {
	return a.id
}

func (a *Attempt) Method() domain.PaymentMethod {
	return a.provider.Method()
}

func (a *Attempt) RedirectURL() string {
	return a.order.RedirectURL
}

func (a *Attempt) ProviderOrderID() string {
	return a.order.ProviderOrderID
}

// Classify reports which signal url carries for this attempt's provider.
func (a *Attempt) Classify(url string) Signal {
	return a.provider.Classify(url)
}

// Resolve acts on a callback url. The returned error is only about the
// callback itself (unknown marker, duplicate delivery); payment failures
// come back as a FAILED Result.
func (a *Attempt) Resolve(ctx context.Context, url string) (Result, error) {
	signal := a.provider.Classify(url)
	if signal == SignalNone {
		return Result{}, ErrUnknownSignal
	}

	a.mu.Lock()
	if a.state != awaitingCallback {
		a.mu.Unlock()
		a.logger.Debug("ignoring repeated payment callback",
			zap.String("attempt_id", a.id),
			zap.Stringer("signal", signal),
		)
		return Result{}, ErrAlreadySettled
	}
	if signal == SignalCancel {
		a.state = settled
	} else {
		a.state = confirming
	}
	a.mu.Unlock()

	if signal == SignalCancel {
		a.notifyFailed(ctx)
		return Result{Status: domain.OutcomeCancelled}, nil
	}

	ref, err := a.provider.Confirm(ctx, a.order)
	a.settle()
	if err != nil {
		if !IsMissingOrderData(err) {
			a.notifyFailed(ctx)
		}
		return Result{Status: domain.OutcomeFailed, Err: err}, nil
	}
	return Result{Status: domain.OutcomeSucceeded, Reference: ref}, nil
}

// Abandon settles the attempt without contacting the provider, so late
// callbacks are ignored.
func (a *Attempt) Abandon() {
	a.settle()
}

func (a *Attempt) settle() {
	a.mu.Lock()
	a.state = settled
	a.mu.Unlock()
}

// notifyFailed is best-effort: its failure is logged and never surfaced.
func (a *Attempt) notifyFailed(ctx context.Context) {
	if err := a.provider.NotifyFailed(context.WithoutCancel(ctx), a.order); err != nil {
		a.logger.Warn("failed to notify backend of failed payment",
			zap.String("attempt_id", a.id),
			zap.String("method", a.provider.Method().String()),
			zap.Error(err),
		)
	}
}
