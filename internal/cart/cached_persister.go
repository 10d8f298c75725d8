package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/cache"
	"go.uber.org/zap"
)

// CachedPersister puts a cart cache in front of a durable persister.
// Reads try the cache first and refill it on a miss; writes go to the
// durable store and then invalidate the cached copy. A refill is dropped
// when a write for the same key happened after the read started.
type CachedPersister struct {
	cache  cache.CartCache
	store  Persister
	logger *zap.Logger

	mu       sync.Mutex // orders refills against invalidations
	versions map[string]uint64
}

func NewCachedPersister(c cache.CartCache, store Persister, logger *zap.Logger) *CachedPersister {
	return &CachedPersister{
		cache:    c,
		store:    store,
		logger:   logger,
		versions: make(map[string]uint64),
	}
}

func (p *CachedPersister) Load(ctx context.Context, key string) ([]domain.CartLineItem, error) {
	snapshot, err := p.cache.Get(ctx, key)
	if err == nil {
		return snapshot.Items, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		p.logger.Warn("cache get error", zap.String("cart_key", key), zap.Error(err))
	}

	version := p.version(key)
	items, err := p.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	refill := domain.CloneItems(items)
	go p.refill(key, version, refill)

	return items, nil
}

func (p *CachedPersister) Save(ctx context.Context, key string, items []domain.CartLineItem) error {
	if err := p.store.Save(ctx, key, items); err != nil {
		return err
	}
	p.invalidate(key)
	return nil
}

func (p *CachedPersister) version(key string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.versions[key]
}

// refill caches items read at version. The lock is held across Set so an
// invalidation either runs first and bumps the version, or runs after the
// Set and deletes it.
func (p *CachedPersister) refill(key string, version uint64, items []domain.CartLineItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.versions[key] != version {
		p.logger.Debug("skipping stale cache refill", zap.String("cart_key", key))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.cache.Set(ctx, key, &domain.CartSnapshot{Items: items, UpdatedAt: time.Now().UTC()}); err != nil {
		p.logger.Warn("cache set error", zap.String("cart_key", key), zap.Error(err))
	}
}

func (p *CachedPersister) invalidate(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.versions[key]++

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.cache.Delete(ctx, key); err != nil {
		p.logger.Warn("cache invalidate error", zap.String("cart_key", key), zap.Error(err))
	}
}
