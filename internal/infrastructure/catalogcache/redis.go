// Package catalogcache fronts catalog reads with redis for the cart and
// browse paths. Checkout never reads through it: reservation re-reads
// stock inside the owning transaction.
package catalogcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/greengrove/plantshop/internal/domain/catalog"

	"github.com/redis/go-redis/v9"
)

// Reader is the upstream product source, normally the store's product
// repository.
type Reader interface {
	Get(ctx context.Context, id string) (*catalog.Product, error)
}

type Cache struct {
	client  *redis.Client
	next    Reader
	baseTTL time.Duration
}

func New(client *redis.Client, next Reader) *Cache {
	return &Cache{
		client:  client,
		next:    next,
		baseTTL: 5 * time.Minute,
	}
}

// Get reads through the cache. Redis failures degrade to the upstream
// read instead of failing the request.
func (c *Cache) Get(ctx context.Context, id string) (*catalog.Product, error) {
	key := cacheKey(id)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var product catalog.Product
		if uerr := json.Unmarshal(data, &product); uerr == nil {
			return &product, nil
		}
		// Corrupt entry: fall through to the upstream and overwrite.
	} else if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
		// Treat redis outages as a miss.
		_ = err
	}

	product, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload, merr := json.Marshal(product); merr == nil {
		jitter := time.Duration(rand.Intn(60)) * time.Second
		_ = c.client.Set(ctx, key, payload, c.baseTTL+jitter).Err()
	}
	return product, nil
}

// Invalidate drops a product after a catalog mutation.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		return fmt.Errorf("catalogcache: delete %s: %w", id, err)
	}
	return nil
}

func cacheKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}
