package cart

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockPersister struct {
	m        sync.RWMutex
	stored   map[string][]domain.CartLineItem
	loadErr  error
	saveErr  error
	saves    int
	loads    int
	blockSav chan struct{}
}

func newMockPersister() *mockPersister {
	return &mockPersister{stored: make(map[string][]domain.CartLineItem)}
}

func (m *mockPersister) Load(_ context.Context, key string) ([]domain.CartLineItem, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return domain.CloneItems(m.stored[key]), nil
}

func (m *mockPersister) Save(_ context.Context, key string, items []domain.CartLineItem) error {
	if m.blockSav != nil {
		<-m.blockSav
	}
	m.m.Lock()
	defer m.m.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.stored[key] = domain.CloneItems(items)
	return nil
}

func (m *mockPersister) get(key string) []domain.CartLineItem {
	m.m.RLock()
	defer m.m.RUnlock()
	return domain.CloneItems(m.stored[key])
}

func sequentialIDs() IDSource {
	var n int64 = 1000
	return func() int64 {
		n++
		return n
	}
}

func product(id int64, regular, discount string, qty int) domain.CartLineItem {
	item := domain.CartLineItem{
		ProductID:    id,
		Name:         "product",
		Quantity:     qty,
		RegularPrice: decimal.RequireFromString(regular),
	}
	if discount != "" {
		item.DiscountPrice = decimal.RequireFromString(discount)
	}
	return item
}

func newMemoryStore(t *testing.T) *Store {
	s := Open(context.Background(), "owner", nil, zap.NewNop(), WithIDSource(sequentialIDs()))
	t.Cleanup(s.Close)
	return s
}

func TestAdd_NewLineStampsIDAndUnitPrice(t *testing.T) {
	s := newMemoryStore(t)

	line := s.Add(product(1, "120", "100", 2))

	assert.Equal(t, int64(1001), line.CartID)
	assert.True(t, line.UnitPrice.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 2, line.Quantity)
	assert.NotNil(t, line.Images)
	assert.NotNil(t, line.Variations)

	line = s.Add(product(2, "80", "0", 1))
	assert.True(t, line.UnitPrice.Equal(decimal.NewFromInt(80)), "zero discount falls back to regular price")
}

func TestAdd_MergesSameProduct(t *testing.T) {
	s := newMemoryStore(t)

	first := s.Add(product(1, "100", "", 2))
	merged := s.Add(product(1, "100", "", 3))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, first.CartID, merged.CartID, "merge keeps the original line identity")
}

func TestAdd_QuantityBelowOneCountsAsOne(t *testing.T) {
	s := newMemoryStore(t)

	s.Add(product(1, "10", "", 0))
	s.Add(product(1, "10", "", -4))

	assert.Equal(t, 2, s.Items()[0].Quantity)
}

func TestAdd_FreeItemNeverMerges(t *testing.T) {
	s := newMemoryStore(t)

	s.Add(product(1, "100", "", 1))
	bonus := product(1, "100", "", 1)
	bonus.IsFree = true
	s.Add(bonus)
	s.Add(product(1, "100", "", 1))

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 2, items[0].Quantity)
	assert.False(t, items[0].IsFree)
	assert.True(t, items[1].IsFree)
	assert.NotEqual(t, items[0].CartID, items[1].CartID)
}

// Any sequence of adds leaves one paid line per product holding the sum of
// the added quantities.
func TestAdd_MergeInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		s := Open(context.Background(), "owner", nil, zap.NewNop())
		want := map[int64]int{}
		for n := 0; n < 40; n++ {
			id := int64(rng.Intn(6))
			qty := rng.Intn(4) + 1
			s.Add(product(id, "5", "", qty))
			want[id] += qty
		}

		got := map[int64]int{}
		for _, it := range s.Items() {
			_, dup := got[it.ProductID]
			assert.False(t, dup, "product %d appears twice", it.ProductID)
			got[it.ProductID] = it.Quantity
		}
		assert.Equal(t, want, got)
		s.Close()
	}
}

func TestIncreaseDecreaseQuantity(t *testing.T) {
	s := newMemoryStore(t)
	s.Add(product(1, "10", "", 1))

	assert.True(t, s.IncreaseQuantity(1))
	assert.True(t, s.IncreaseQuantity(1))
	assert.Equal(t, 3, s.Items()[0].Quantity)

	assert.True(t, s.DecreaseQuantity(1))
	assert.Equal(t, 2, s.Items()[0].Quantity)

	assert.False(t, s.IncreaseQuantity(99))
	assert.False(t, s.DecreaseQuantity(99))
}

func TestDecreaseQuantity_NeverBelowOne(t *testing.T) {
	s := newMemoryStore(t)
	s.Add(product(1, "10", "", 3))

	for n := 0; n < 10; n++ {
		s.DecreaseQuantity(1)
		assert.GreaterOrEqual(t, s.Items()[0].Quantity, 1)
	}
	assert.Equal(t, 1, s.Items()[0].Quantity)
	assert.False(t, s.DecreaseQuantity(1), "already at the floor")
}

func TestQuantityChangesSkipFreeLines(t *testing.T) {
	s := newMemoryStore(t)
	bonus := product(7, "50", "", 1)
	bonus.IsFree = true
	s.Add(bonus)

	assert.False(t, s.IncreaseQuantity(7))
	assert.Equal(t, 1, s.Items()[0].Quantity)
}

func TestRemoveAndClear(t *testing.T) {
	s := newMemoryStore(t)
	s.Add(product(1, "10", "", 1))
	s.Add(product(2, "20", "", 1))
	bonus := product(1, "10", "", 1)
	bonus.IsFree = true
	s.Add(bonus)

	assert.True(t, s.Remove(1))
	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].ProductID)

	assert.False(t, s.Remove(1))

	s.Clear()
	assert.Empty(t, s.Items())
	assert.NotNil(t, s.Items())
}

func TestItems_ReturnsCopy(t *testing.T) {
	s := newMemoryStore(t)
	s.Add(domain.CartLineItem{ProductID: 1, Quantity: 1, Images: []string{"a.jpg"}})

	items := s.Items()
	items[0].Quantity = 50
	items[0].Images[0] = "changed.jpg"

	fresh := s.Items()
	assert.Equal(t, 1, fresh[0].Quantity)
	assert.Equal(t, "a.jpg", fresh[0].Images[0])
}

func TestCartIDs_UniqueWithStuckClock(t *testing.T) {
	s := Open(context.Background(), "owner", nil, zap.NewNop(), WithIDSource(func() int64 { return 5 }))
	defer s.Close()

	seen := map[int64]bool{}
	for n := int64(0); n < 5; n++ {
		line := s.Add(product(n, "1", "", 1))
		assert.False(t, seen[line.CartID])
		seen[line.CartID] = true
	}
}

func TestNewIDSource_StrictlyIncreasing(t *testing.T) {
	ids := NewIDSource()
	prev := ids()
	for n := 0; n < 1000; n++ {
		next := ids()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestPersistence_RestoresOnOpen(t *testing.T) {
	p := newMockPersister()
	p.stored["owner"] = []domain.CartLineItem{{CartID: 9, ProductID: 3, Quantity: 4, UnitPrice: decimal.NewFromInt(7)}}

	s := Open(context.Background(), "owner", p, zap.NewNop())
	defer s.Close()

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Quantity)
}

func TestPersistence_MutationsAreSaved(t *testing.T) {
	p := newMockPersister()
	s := Open(context.Background(), "owner", p, zap.NewNop())

	s.Add(product(1, "10", "", 1))
	s.IncreaseQuantity(1)
	s.Add(product(2, "20", "", 1))

	require.Eventually(t, func() bool {
		stored := p.get("owner")
		return len(stored) == 2 && stored[0].Quantity == 2
	}, time.Second, 10*time.Millisecond, "latest snapshot should be persisted")

	s.Remove(2)
	s.Close()

	stored := p.get("owner")
	require.Len(t, stored, 1, "Close flushes the final snapshot")
}

func TestPersistence_LatestSnapshotWins(t *testing.T) {
	p := newMockPersister()
	p.blockSav = make(chan struct{})
	s := Open(context.Background(), "owner", p, zap.NewNop())

	s.Add(product(1, "10", "", 1)) // picked up by the writer, which blocks
	for n := 0; n < 20; n++ {
		s.IncreaseQuantity(1)
	}
	close(p.blockSav)
	s.Close()

	stored := p.get("owner")
	require.Len(t, stored, 1)
	assert.Equal(t, 21, stored[0].Quantity)
	p.m.RLock()
	assert.LessOrEqual(t, p.saves, 3, "intermediate snapshots are coalesced")
	p.m.RUnlock()
}

func TestPersistence_SaveFailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	p := newMockPersister()
	p.saveErr = errors.New("disk full")
	s := Open(context.Background(), "owner", p, zap.New(core))

	line := s.Add(product(1, "10", "", 1))
	assert.Equal(t, 1, line.Quantity)
	s.Close()

	require.Equal(t, 1, logs.FilterMessage("failed to persist cart").Len())
	assert.Len(t, s.Items(), 1, "in-memory state is unaffected")
}

func TestPersistence_LoadFailureStartsEmpty(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := newMockPersister()
	p.loadErr = errors.New("corrupted")

	s := Open(context.Background(), "owner", p, zap.New(core))
	defer s.Close()

	assert.Empty(t, s.Items())
	assert.Equal(t, 1, logs.Len())
}

func TestConcurrentMutations(t *testing.T) {
	p := newMockPersister()
	s := Open(context.Background(), "owner", p, zap.NewNop())

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				s.Add(product(1, "1", "", 1))
			}
		}()
	}
	wg.Wait()
	s.Close()

	assert.Equal(t, 400, s.Items()[0].Quantity)
	assert.Equal(t, 400, p.get("owner")[0].Quantity)
}
