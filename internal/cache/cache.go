package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront-checkout/domain"
)

type CartCache interface {
	Get(ctx context.Context, key string) (*domain.CartSnapshot, error)
	Set(ctx context.Context, key string, snapshot *domain.CartSnapshot) error
	Delete(ctx context.Context, key string) error
}

var ErrCacheMiss = errors.New("cache miss")
