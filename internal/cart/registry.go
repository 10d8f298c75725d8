package cart

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const loadTimeout = 5 * time.Second

// OwnerKey is the cart key of an authenticated user.
func OwnerKey(userID string) string {
	return "user:" + userID
}

// Registry hands out one Store per cart owner.
type Registry struct {
	mu        sync.RWMutex
	stores    map[string]*Store
	sfg       singleflight.Group // collapses concurrent first loads of one owner
	persister Persister
	logger    *zap.Logger
	opts      []Option
}

func NewRegistry(persister Persister, logger *zap.Logger, opts ...Option) *Registry {
	return &Registry{
		stores:    make(map[string]*Store),
		persister: persister,
		logger:    logger,
		opts:      opts,
	}
}

// Get returns the Store of key, restoring it from the persister on first use.
// The restore is not tied to the caller's cancellation.
func (r *Registry) Get(ctx context.Context, key string) *Store {
	if s, ok := r.lookup(key); ok {
		return s
	}

	v, _, _ := r.sfg.Do(key, func() (interface{}, error) {
		if s, ok := r.lookup(key); ok {
			return s, nil
		}

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		s := Open(loadCtx, key, r.persister, r.logger, r.opts...)

		r.mu.Lock()
		r.stores[key] = s
		r.mu.Unlock()
		return s, nil
	})
	return v.(*Store)
}

// Close flushes and stops every store.
func (r *Registry) Close() {
	r.mu.Lock()
	stores := make([]*Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.Unlock()

	for _, s := range stores {
		s.Close()
	}
}

func (r *Registry) lookup(key string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[key]
	return s, ok
}
