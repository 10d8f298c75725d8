package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL keeps an idle cart for a month. Every write refreshes it.
const DefaultTTL = 30 * 24 * time.Hour

func NewRedisCache(client redis.UniversalClient, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = DefaultTTL
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, key string) (*domain.CartSnapshot, error) {
	data, err := r.client.Get(ctx, cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snapshot domain.CartSnapshot
	if err2 := json.Unmarshal(data, &snapshot); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}

	return &snapshot, nil
}

func (r RedisCache) Set(ctx context.Context, key string, snapshot *domain.CartSnapshot) error {
	jsonCart, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Int63n(int64(r.baseTTL/10) + 1))
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, cacheKey(key), jsonCart, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

// Load implements cart.Persister. A missing key is an empty cart.
func (r RedisCache) Load(ctx context.Context, key string) ([]domain.CartLineItem, error) {
	snapshot, err := r.Get(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snapshot.Items, nil
}

// Save implements cart.Persister. An empty cart removes the key.
func (r RedisCache) Save(ctx context.Context, key string, items []domain.CartLineItem) error {
	if len(items) == 0 {
		return r.Delete(ctx, key)
	}
	return r.Set(ctx, key, &domain.CartSnapshot{Items: items, UpdatedAt: time.Now().UTC()})
}

func cacheKey(key string) string {
	return fmt.Sprintf("cart:%s", key)
}
