package cart

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"go.uber.org/zap"
)

const defaultSaveTimeout = 5 * time.Second

// Persister stores cart snapshots. Load returns an empty slice and a nil
// error when nothing was stored for key.
type Persister interface {
	Load(ctx context.Context, key string) ([]domain.CartLineItem, error)
	Save(ctx context.Context, key string, items []domain.CartLineItem) error
}

type Option func(*Store)

func WithIDSource(ids IDSource) Option {
	return func(s *Store) { s.nextID = ids }
}

func WithSaveTimeout(d time.Duration) Option {
	return func(s *Store) { s.saveTimeout = d }
}

// Store is the cart of one owner. Every mutation goes through its methods;
// the persisted copy is written by a single background writer that always
// stores the latest snapshot and never reports failures to the caller.
type Store struct {
	mu     sync.Mutex
	key    string
	items  []domain.CartLineItem
	closed bool

	nextID      IDSource
	persister   Persister
	saveTimeout time.Duration
	logger      *zap.Logger

	pending chan []domain.CartLineItem
	done    chan struct{}
}

// Open restores the cart stored under key and starts its writer. A nil
// persister keeps the cart in memory only. A failed load is logged and the
// cart starts empty.
func Open(ctx context.Context, key string, persister Persister, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		key:         key,
		persister:   persister,
		saveTimeout: defaultSaveTimeout,
		logger:      logger.With(zap.String("cart_key", key)),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.nextID == nil {
		s.nextID = NewIDSource()
	}

	if persister == nil {
		close(s.done)
		return s
	}

	items, err := persister.Load(ctx, key)
	if err != nil {
		s.logger.Warn("failed to restore cart, starting empty", zap.Error(err))
	} else {
		s.items = domain.CloneItems(items)
	}

	s.pending = make(chan []domain.CartLineItem, 1)
	go s.writeLoop()
	return s
}

// Add merges item into the non-free line of the same product, or appends it
// as a new line with a fresh CartID and its unit price fixed. Free items are
// always appended. A quantity below 1 counts as 1. The stored line is
// returned.
func (s *Store) Add(item domain.CartLineItem) domain.CartLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.Quantity < 1 {
		item.Quantity = 1
	}

	if !item.IsFree {
		if idx := s.indexOfPaid(item.ProductID); idx >= 0 {
			s.items[idx].Quantity += item.Quantity
			s.scheduleSave()
			return s.items[idx].Clone()
		}
	}

	line := item.Clone()
	line.CartID = s.newCartID()
	line.UnitPrice = line.EffectivePrice()
	if line.Images == nil {
		line.Images = []string{}
	}
	if line.Variations == nil {
		line.Variations = []domain.Variation{}
	}
	s.items = append(s.items, line)
	s.scheduleSave()
	return line.Clone()
}

// IncreaseQuantity adds one to the non-free line of productID. It reports
// whether such a line exists.
func (s *Store) IncreaseQuantity(productID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOfPaid(productID)
	if idx < 0 {
		return false
	}
	s.items[idx].Quantity++
	s.scheduleSave()
	return true
}

// DecreaseQuantity removes one from the non-free line of productID, never
// going below 1. It reports whether the quantity changed.
func (s *Store) DecreaseQuantity(productID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOfPaid(productID)
	if idx < 0 || s.items[idx].Quantity <= 1 {
		return false
	}
	s.items[idx].Quantity--
	s.scheduleSave()
	return true
}

// Remove deletes every line of productID, free bonus lines included. It
// reports whether anything was removed.
func (s *Store) Remove(productID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	for _, it := range s.items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(s.items) {
		return false
	}
	// clear the tail so dropped lines are not retained by the backing array
	for n := len(kept); n < len(s.items); n++ {
		s.items[n] = domain.CartLineItem{}
	}
	s.items = kept
	s.scheduleSave()
	return true
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.scheduleSave()
}

// Items returns a deep copy of the cart contents in insertion order.
func (s *Store) Items() []domain.CartLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := domain.CloneItems(s.items)
	if out == nil {
		out = []domain.CartLineItem{}
	}
	return out
}

func (s *Store) Key() string {
	return s.key
}

// Close stops the writer after it has stored the latest snapshot.
// Mutations after Close are kept in memory only.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	if s.pending != nil {
		close(s.pending)
	}
	s.mu.Unlock()
	<-s.done
}

// scheduleSave must be called with mu held. The channel holds at most one
// snapshot; a stale one still waiting is replaced.
func (s *Store) scheduleSave() {
	if s.pending == nil || s.closed {
		return
	}
	snapshot := domain.CloneItems(s.items)
	select {
	case <-s.pending:
	default:
	}
	s.pending <- snapshot
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for snapshot := range s.pending {
		s.save(snapshot)
	}
}

func (s *Store) save(items []domain.CartLineItem) {
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, s.key, items); err != nil {
		s.logger.Error("failed to persist cart", zap.Int("items", len(items)), zap.Error(err))
	}
}

func (s *Store) indexOfPaid(productID int64) int {
	for n, it := range s.items {
		if it.ProductID == productID && !it.IsFree {
			return n
		}
	}
	return -1
}

func (s *Store) newCartID() int64 {
	id := s.nextID()
	for _, it := range s.items {
		if it.CartID >= id {
			id = it.CartID + 1
		}
	}
	return id
}
