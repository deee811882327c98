package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/repository"
	"cms-billing/internal/infra/metrics"
	red "cms-billing/internal/infra/redis"
)

var _ repository.ProductRepository = (*productRepoCacheDecorator)(nil)

// productRepoCacheDecorator caches product reads in Redis. The catalog
// changes rarely; checkout reads it on every request.
type productRepoCacheDecorator struct {
	inner repository.ProductRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewProductRepoCacheDecorator(inner repository.ProductRepository, cache red.RedisClient, ttl time.Duration) repository.ProductRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &productRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func productKey(id string) string { return "product:" + id }

func listKey(kind model.ProductKind) string { return fmt.Sprintf("products:active:%s", kind) }

func (d *productRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Product, error) {
	if val, err := d.cache.Get(ctx, productKey(id)); err == nil {
		var p model.Product
		if json.Unmarshal([]byte(val), &p) == nil {
			metrics.IncCacheRequest("product", "hit")
			return &p, nil
		}
	}

	metrics.IncCacheRequest("product", "miss")
	p, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(p); err == nil {
		_ = d.cache.Set(ctx, productKey(id), bytes, d.ttl)
	}
	return p, nil
}

// FindByIDAndKind bypasses the cache: the kind filter makes the key space
// awkward and the call is always followed by provider I/O anyway.
func (d *productRepoCacheDecorator) FindByIDAndKind(ctx context.Context, tx repository.Tx, id string, kind model.ProductKind) (*model.Product, error) {
	return d.inner.FindByIDAndKind(ctx, tx, id, kind)
}

func (d *productRepoCacheDecorator) FindByStripePriceID(ctx context.Context, tx repository.Tx, priceID string) (*model.Product, error) {
	return d.inner.FindByStripePriceID(ctx, tx, priceID)
}

func (d *productRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx, kind model.ProductKind) ([]*model.Product, error) {
	key := listKey(kind)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var products []*model.Product
		if json.Unmarshal([]byte(val), &products) == nil {
			metrics.IncCacheRequest("product_list", "hit")
			return products, nil
		}
	}

	metrics.IncCacheRequest("product_list", "miss")
	products, err := d.inner.ListActive(ctx, tx, kind)
	if err != nil {
		return nil, err
	}
	if len(products) > 0 {
		if bytes, err := json.Marshal(products); err == nil {
			_ = d.cache.Set(ctx, key, bytes, d.ttl)
		}
	}
	return products, nil
}

// Writes invalidate both the record key and the list keys.
func (d *productRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, p *model.Product) error {
	d.invalidate(ctx, p.ID)
	return d.inner.Save(ctx, tx, p)
}

func (d *productRepoCacheDecorator) SetStripeIDs(ctx context.Context, tx repository.Tx, id, stripeProductID, stripePriceID string) error {
	d.invalidate(ctx, id)
	return d.inner.SetStripeIDs(ctx, tx, id, stripeProductID, stripePriceID)
}

func (d *productRepoCacheDecorator) invalidate(ctx context.Context, id string) {
	_ = d.cache.Del(ctx, productKey(id), listKey(model.ProductKindOneTime), listKey(model.ProductKindSubscription))
}
