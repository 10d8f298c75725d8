package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/backend"
	"github.com/fjod/storefront-checkout/internal/cart"
	"github.com/fjod/storefront-checkout/internal/checkout"
	"github.com/fjod/storefront-checkout/internal/coupon"
	"github.com/fjod/storefront-checkout/internal/payment"
	"github.com/fjod/storefront-checkout/internal/repository"
	"github.com/fjod/storefront-checkout/internal/shipping"
)

// fakeStorefront answers each backend path with a canned status and body.
type fakeStorefront struct {
	mu      sync.RWMutex
	replies map[string]cannedReply
	hits    map[string]int
}

type cannedReply struct {
	status int
	body   string
}

func newFakeStorefront() *fakeStorefront {
	return &fakeStorefront{replies: map[string]cannedReply{}, hits: map[string]int{}}
}

func (s *fakeStorefront) reply(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[path] = cannedReply{status: status, body: body}
}

func (s *fakeStorefront) count(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits[path]
}

func (s *fakeStorefront) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	rep, ok := s.replies[r.URL.Path]
	s.mu.Unlock()
	if !ok {
		rep = cannedReply{status: http.StatusNotFound, body: `{"message":"not found"}`}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	io.WriteString(w, rep.body)
}

type recordedOutcomes struct {
	mu       sync.RWMutex
	outcomes []*domain.Outcome
}

func (r *recordedOutcomes) Record(_ context.Context, o *domain.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *recordedOutcomes) all() []*domain.Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*domain.Outcome(nil), r.outcomes...)
}

type testServer struct {
	t        *testing.T
	handler  http.Handler
	backend  *fakeStorefront
	carts    *cart.Registry
	sessions *checkout.Sessions
	recorder *recordedOutcomes
	ledger   *mockOutcomeReader
	jwt      *JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	storefront := newFakeStorefront()
	upstream := httptest.NewServer(storefront)
	t.Cleanup(upstream.Close)

	log := zap.NewNop()
	client := backend.NewClient(upstream.URL, 5*time.Second, log)
	carts := cart.NewRegistry(nil, log)
	t.Cleanup(carts.Close)

	rec := &recordedOutcomes{}
	sessions := checkout.NewSessions(checkout.Deps{
		Shipping:      shipping.NewResolver(client),
		Coupons:       coupon.NewResolver(client),
		Providers:     payment.NewProviders(payment.NewPayPal(client, log), payment.NewAfterpay(client), payment.NewZipPay(client)),
		Recorder:      rec,
		Logger:        log,
		Platform:      "android",
		ReturnBaseURL: "http://checkout.test",
		OnSuccess: func(ctx context.Context, o *domain.Outcome) {
			carts.Get(ctx, cart.OwnerKey(o.UserID)).Clear()
		},
	}, time.Hour)

	ledger := &mockOutcomeReader{records: map[string][]*repository.OutcomeRecord{}}
	jwtMgr := NewJWTManager("test-secret", "storefront")
	handler := NewRouter(RouterConfig{
		Cart:           NewCartHandler(carts),
		Checkout:       NewCheckoutHandler(sessions, carts, 5*time.Second, log),
		Outcomes:       NewOutcomeHandler(ledger, log),
		JWT:            jwtMgr,
		Logger:         log,
		RequestTimeout: 10 * time.Second,
	})

	return &testServer{
		t:        t,
		handler:  handler,
		backend:  storefront,
		carts:    carts,
		sessions: sessions,
		recorder: rec,
		ledger:   ledger,
		jwt:      jwtMgr,
	}
}

type mockOutcomeReader struct {
	mu      sync.RWMutex
	records map[string][]*repository.OutcomeRecord
	err     error
}

func (m *mockOutcomeReader) GetOutcomesBySession(_ context.Context, sessionID string) ([]*repository.OutcomeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	recs, ok := m.records[sessionID]
	if !ok {
		return nil, repository.ErrOutcomeNotFound
	}
	return recs, nil
}

func (m *mockOutcomeReader) Add(rec *repository.OutcomeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.SessionID] = append(m.records[rec.SessionID], rec)
}

// do sends a request as userID; an empty userID sends no token.
func (s *testServer) do(userID, method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := s.jwt.Sign(userID, userID+"@example.com", time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func headUnit() AddItemRequestDTO {
	return AddItemRequestDTO{
		ProductID:    100,
		Name:         "Head unit",
		Quantity:     2,
		RegularPrice: decimal.NewFromInt(50),
	}
}

func completeAddress() domain.Address {
	return domain.Address{
		FirstName: "Ana", LastName: "Lee", Email: "ana@example.com", Phone: "0400000000",
		Street: "1 Main St", City: "Perth", Postcode: "6000",
		Country: &domain.Country{ID: "13", Name: "Australia"},
		State:   &domain.State{ID: "5", Name: "Western Australia"},
	}
}
