package categories

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/angelmondragon/bargaining-backend/internal/credentials"
	"github.com/angelmondragon/bargaining-backend/pkg/logger"
	"github.com/angelmondragon/bargaining-backend/pkg/metrics"
	"github.com/angelmondragon/bargaining-backend/pkg/shopify"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Category is a merchant collection usable as a grouping label.
type Category struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

// CollectionLister reads the two collection kinds of a shop.
type CollectionLister interface {
	ListCustomCollections(ctx context.Context, creds shopify.Credentials) ([]shopify.Collection, error)
	ListSmartCollections(ctx context.Context, creds shopify.Credentials) ([]shopify.Collection, error)
}

// Cache memoizes category lists per merchant.
type Cache struct {
	store       Store
	credentials credentials.Store
	collections CollectionLister
	ttl         time.Duration
	logg        *logger.Logger
	metrics     *metrics.BargainingMetrics
	group       singleflight.Group

	mu          sync.Mutex
	generations map[uuid.UUID]uint64
}

// Option tunes optional cache behavior.
type Option func(*Cache)

// WithTTL bounds entry lifetime; zero keeps entries until invalidated.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithStore replaces the default in-process store.
func WithStore(store Store) Option {
	return func(c *Cache) {
		if store != nil {
			c.store = store
		}
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Cache) { c.logg = logg }
}

func WithMetrics(m *metrics.BargainingMetrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// NewCache wires the category cache.
func NewCache(creds credentials.Store, collections CollectionLister, opts ...Option) (*Cache, error) {
	if creds == nil {
		return nil, fmt.Errorf("credential store required")
	}
	if collections == nil {
		return nil, fmt.Errorf("collection lister required")
	}
	cache := &Cache{
		store:       NewMemoryStore(nil),
		credentials: creds,
		collections: collections,
		generations: make(map[uuid.UUID]uint64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache, nil
}

// List returns the merchant's categories, fetching them on a miss.
func (c *Cache) List(ctx context.Context, merchantID uuid.UUID) ([]Category, error) {
	cached, ok, err := c.store.Get(ctx, merchantID)
	if err != nil && c.logg != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "category cache read failed")
	}
	if err == nil && ok {
		c.metrics.IncCacheLookup(true)
		return cached, nil
	}
	c.metrics.IncCacheLookup(false)

	// Every waiter shares the fetch; only the caller's own ctx ends its wait.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(merchantID.String(), func() (any, error) {
		return c.populate(fetchCtx, merchantID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneCategories(res.Val.([]Category)), nil
	}
}

// Invalidate drops the merchant's cached entry. A fetch already in flight
// will not store its result.
func (c *Cache) Invalidate(ctx context.Context, merchantID uuid.UUID) error {
	c.mu.Lock()
	c.generations[merchantID]++
	c.mu.Unlock()
	c.group.Forget(merchantID.String())

	if err := c.store.Delete(ctx, merchantID); err != nil {
		return fmt.Errorf("invalidate categories: %w", err)
	}
	return nil
}

func (c *Cache) generation(merchantID uuid.UUID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[merchantID]
}

func (c *Cache) populate(ctx context.Context, merchantID uuid.UUID) ([]Category, error) {
	gen := c.generation(merchantID)
	creds, err := c.credentials.Get(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	var custom, smart []shopify.Collection
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		custom, err = c.collections.ListCustomCollections(gctx, creds)
		return err
	})
	g.Go(func() error {
		var err error
		smart, err = c.collections.ListSmartCollections(gctx, creds)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	categories := make([]Category, 0, len(custom)+len(smart))
	for _, col := range append(custom, smart...) {
		categories = append(categories, Category{
			ID:     strconv.FormatInt(col.ID, 10),
			Name:   col.Title,
			Handle: col.Handle,
		})
	}

	if c.generation(merchantID) != gen {
		return categories, nil
	}
	if err := c.store.Set(ctx, merchantID, categories, c.ttl); err != nil && c.logg != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "category cache write failed")
	}
	return categories, nil
}
