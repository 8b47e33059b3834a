package categories

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/angelmondragon/bargaining-backend/pkg/shopify"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCredentials struct {
	err error
}

func (s stubCredentials) Get(ctx context.Context, merchantID uuid.UUID) (shopify.Credentials, error) {
	if s.err != nil {
		return shopify.Credentials{}, s.err
	}
	return shopify.Credentials{ShopName: "demo", APIVersion: "2024-01", AccessToken: "tok"}, nil
}

type stubCollections struct {
	custom    []shopify.Collection
	smart     []shopify.Collection
	smartErr  error
	calls     int32
	release   chan struct{}
	customHit chan struct{}
}

func (s *stubCollections) ListCustomCollections(ctx context.Context, creds shopify.Credentials) ([]shopify.Collection, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.customHit != nil {
		s.customHit <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return s.custom, nil
}

func (s *stubCollections) ListSmartCollections(ctx context.Context, creds shopify.Credentials) ([]shopify.Collection, error) {
	return s.smart, s.smartErr
}

func newStubCollections() *stubCollections {
	return &stubCollections{
		custom: []shopify.Collection{{ID: 1, Title: "Summer", Handle: "summer"}},
		smart:  []shopify.Collection{{ID: 2, Title: "On Sale", Handle: "on-sale"}},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCacheListMergesCustomAndSmart(t *testing.T) {
	collections := newStubCollections()
	cache, err := NewCache(stubCredentials{}, collections)
	require.NoError(t, err)

	got, err := cache.List(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []Category{
		{ID: "1", Name: "Summer", Handle: "summer"},
		{ID: "2", Name: "On Sale", Handle: "on-sale"},
	}, got)
}

func TestCacheListMemoizesUntilInvalidated(t *testing.T) {
	collections := newStubCollections()
	cache, err := NewCache(stubCredentials{}, collections)
	require.NoError(t, err)
	merchantID := uuid.New()
	ctx := context.Background()

	_, err = cache.List(ctx, merchantID)
	require.NoError(t, err)
	_, err = cache.List(ctx, merchantID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&collections.calls))

	require.NoError(t, cache.Invalidate(ctx, merchantID))
	_, err = cache.List(ctx, merchantID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&collections.calls))
}

func TestCacheListHonorsTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)}
	collections := newStubCollections()
	cache, err := NewCache(stubCredentials{}, collections,
		WithStore(NewMemoryStore(clock.Now)),
		WithTTL(time.Minute),
	)
	require.NoError(t, err)
	merchantID := uuid.New()
	ctx := context.Background()

	_, err = cache.List(ctx, merchantID)
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = cache.List(ctx, merchantID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&collections.calls))

	clock.Advance(31 * time.Second)
	_, err = cache.List(ctx, merchantID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&collections.calls))
}

func TestCacheListCollapsesConcurrentMisses(t *testing.T) {
	collections := newStubCollections()
	collections.release = make(chan struct{})
	collections.customHit = make(chan struct{}, 8)
	cache, err := NewCache(stubCredentials{}, collections)
	require.NoError(t, err)
	merchantID := uuid.New()

	const callers = 5
	var wg sync.WaitGroup
	results := make([][]Category, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = cache.List(context.Background(), merchantID)
	}()
	<-collections.customHit

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.List(context.Background(), merchantID)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(collections.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Len(t, results[i], 2)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&collections.calls))
}

func TestCacheListDoesNotStoreFailures(t *testing.T) {
	collections := newStubCollections()
	collections.smartErr = pkgerrors.New(pkgerrors.CodeUpstreamTimeout, "fetch smart_collections")
	cache, err := NewCache(stubCredentials{}, collections)
	require.NoError(t, err)
	merchantID := uuid.New()

	_, err = cache.List(context.Background(), merchantID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUpstreamTimeout))

	collections.smartErr = nil
	got, err := cache.List(context.Background(), merchantID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCacheListMissingCredentials(t *testing.T) {
	collections := newStubCollections()
	cache, err := NewCache(stubCredentials{err: pkgerrors.New(pkgerrors.CodeNotFound, "commerce credentials not found")}, collections)
	require.NoError(t, err)

	_, err = cache.List(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Zero(t, atomic.LoadInt32(&collections.calls))
}

type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeRedis) CategoryKey(merchantID string) string {
	return "bargain:categories:" + merchantID
}

func TestRedisStoreRoundTrip(t *testing.T) {
	client := newFakeRedis()
	store, err := NewRedisStore(client)
	require.NoError(t, err)
	merchantID := uuid.New()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, merchantID)
	require.NoError(t, err)
	assert.False(t, ok)

	cats := []Category{{ID: "1", Name: "Summer", Handle: "summer"}}
	require.NoError(t, store.Set(ctx, merchantID, cats, time.Hour))
	assert.Equal(t, time.Hour, client.ttls["bargain:categories:"+merchantID.String()])

	got, ok, err := store.Get(ctx, merchantID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, cats, got)

	require.NoError(t, store.Delete(ctx, merchantID))
	_, ok, err = store.Get(ctx, merchantID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheFallsBackToUpstreamWhenStoreFails(t *testing.T) {
	client := newFakeRedis()
	client.getErr = errors.New("connection reset")
	store, err := NewRedisStore(client)
	require.NoError(t, err)
	collections := newStubCollections()
	cache, err := NewCache(stubCredentials{}, collections, WithStore(store))
	require.NoError(t, err)

	got, err := cache.List(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&collections.calls))
}

func TestCacheInvalidateDuringFetchDiscardsResult(t *testing.T) {
	collections := newStubCollections()
	collections.release = make(chan struct{})
	collections.customHit = make(chan struct{}, 8)
	cache, err := NewCache(stubCredentials{}, collections)
	require.NoError(t, err)
	merchantID := uuid.New()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := cache.List(ctx, merchantID)
		done <- err
	}()
	<-collections.customHit

	require.NoError(t, cache.Invalidate(ctx, merchantID))
	close(collections.release)
	require.NoError(t, <-done)

	_, ok, err := cache.store.Get(ctx, merchantID)
	require.NoError(t, err)
	assert.False(t, ok, "result fetched before invalidation must not be stored")

	_, err = cache.List(ctx, merchantID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&collections.calls))
}

func TestCacheListSharedFetchSurvivesLeaderCancellation(t *testing.T) {
	collections := newStubCollections()
	collections.release = make(chan struct{})
	collections.customHit = make(chan struct{}, 8)
	cache, err := NewCache(stubCredentials{}, collections)
	require.NoError(t, err)
	merchantID := uuid.New()

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cache.List(leaderCtx, merchantID)
		leaderErr <- err
	}()
	<-collections.customHit

	type outcome struct {
		cats []Category
		err  error
	}
	follower := make(chan outcome, 1)
	go func() {
		cats, err := cache.List(context.Background(), merchantID)
		follower <- outcome{cats: cats, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(collections.release)
	got := <-follower
	require.NoError(t, got.err)
	assert.Len(t, got.cats, 2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&collections.calls))
}
