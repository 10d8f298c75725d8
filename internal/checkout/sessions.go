package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/payment"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultSessionTTL = 2 * time.Hour

type session struct {
	wizard   *Wizard
	lastSeen time.Time
}

// Sessions holds the live checkout wizards, keyed by session id.
type Sessions struct {
	deps Deps
	ttl  time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewSessions(deps Deps, ttl time.Duration) *Sessions {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{
		deps:     deps,
		ttl:      ttl,
		sessions: make(map[string]*session),
	}
}

// Start opens a wizard over a snapshot of items.
func (s *Sessions) Start(buyer payment.Buyer, items []domain.CartLineItem) (*Wizard, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	id := uuid.NewString()
	w := New(id, buyer, items, s.deps)

	s.mu.Lock()
	s.sessions[id] = &session{wizard: w, lastSeen: s.deps.Now()}
	s.mu.Unlock()

	s.deps.Logger.Info("checkout session started",
		zap.String("session_id", id),
		zap.String("user_id", buyer.ID),
		zap.Int("items", len(items)),
	)
	return w, nil
}

// Get returns the wizard if it belongs to ownerID.
func (s *Sessions) Get(id, ownerID string) (*Wizard, error) {
	w, err := s.Lookup(id)
	if err != nil {
		return nil, err
	}
	if w.OwnerID() != ownerID {
		return nil, ErrForbidden
	}
	return w, nil
}

// Lookup finds a wizard without an owner check. Provider returns arrive
// unauthenticated and are matched on the session id alone.
func (s *Sessions) Lookup(id string) (*Wizard, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lastSeen = s.deps.Now()
	return sess.wizard, nil
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the ttl. A session with a
// payment in flight gets twice the ttl so a late provider return still
// finds it.
func (s *Sessions) Sweep() int {
	cutoff := s.deps.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.After(cutoff) {
			continue
		}
		if sess.wizard.Step() == domain.CheckoutStepPaymentInFlight && sess.lastSeen.After(cutoff.Add(-s.ttl)) {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.deps.Logger.Debug("expired checkout sessions", zap.Int("count", n))
			}
		}
	}
}
