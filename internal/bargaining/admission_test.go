package bargaining

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/bargaining-backend/pkg/db"
	"github.com/angelmondragon/bargaining-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmissionToggleActivatesAndDeactivates(t *testing.T) {
	conn := setupRulesTestDB(t)
	repo := NewRepository(conn)
	admission := newTestAdmission(t, conn, repo, 10)
	merchantID := uuid.New()
	seedRule(t, repo, merchantID, "v1", "Shirts", "10", false)

	rule, err := admission.Toggle(context.Background(), merchantID, "v1")
	require.NoError(t, err)
	assert.True(t, rule.IsActive)

	rule, err = admission.Toggle(context.Background(), merchantID, "v1")
	require.NoError(t, err)
	assert.False(t, rule.IsActive)
}

func TestAdmissionToggleDeniedAtCap(t *testing.T) {
	conn := setupRulesTestDB(t)
	repo := NewRepository(conn)
	admission := newTestAdmission(t, conn, repo, 10)
	merchantID := uuid.New()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		seedRule(t, repo, merchantID, fmt.Sprintf("active-%d", i), "Shirts", "10", true)
	}
	seedRule(t, repo, merchantID, "x", "Shirts", "10", false)

	_, err := admission.Toggle(ctx, merchantID, "x")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeAdmissionDenied, typed.Code())

	count, err := repo.CountActive(ctx, merchantID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, count)

	x, err := repo.FindRule(ctx, merchantID, "x")
	require.NoError(t, err)
	assert.False(t, x.IsActive)

	rule, err := admission.Toggle(ctx, merchantID, "active-0")
	require.NoError(t, err)
	assert.False(t, rule.IsActive)
	count, err = repo.CountActive(ctx, merchantID)
	require.NoError(t, err)
	assert.EqualValues(t, 9, count)
}

func TestAdmissionToggleRequiresFloor(t *testing.T) {
	conn := setupRulesTestDB(t)
	repo := NewRepository(conn)
	admission := newTestAdmission(t, conn, repo, 10)
	merchantID := uuid.New()
	seedRule(t, repo, merchantID, "v1", "Shirts", "0", false)

	_, err := admission.Toggle(context.Background(), merchantID, "v1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePrecondition))

	_, err = admission.Toggle(context.Background(), merchantID, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAdmissionConcurrentActivationsStopAtCap(t *testing.T) {
	conn := setupRulesTestDB(t)
	repo := NewRepository(conn)
	const admissionCap = 10
	admission := newTestAdmission(t, conn, repo, admissionCap)
	merchantID := uuid.New()
	ctx := context.Background()
	for i := 0; i < admissionCap-1; i++ {
		seedRule(t, repo, merchantID, fmt.Sprintf("active-%d", i), "Shirts", "10", true)
	}
	const contenders = 8
	for i := 0; i < contenders; i++ {
		seedRule(t, repo, merchantID, fmt.Sprintf("candidate-%d", i), "Shirts", "10", false)
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = admission.Toggle(ctx, merchantID, fmt.Sprintf("candidate-%d", i))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAdmissionDenied), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)

	count, err := repo.CountActive(ctx, merchantID)
	require.NoError(t, err)
	assert.EqualValues(t, admissionCap, count)
	assert.Zero(t, admission.locks.size())
}

func TestAdmissionInstancesSharingDatabaseStopAtCap(t *testing.T) {
	conn := setupRulesTestDB(t)
	repo := NewRepository(conn)
	const admissionCap = 3
	instances := []*Admission{
		newTestAdmission(t, conn, repo, admissionCap),
		newTestAdmission(t, conn, NewRepository(conn), admissionCap),
	}
	merchantID := uuid.New()
	ctx := context.Background()
	const contenders = 10
	for i := 0; i < contenders; i++ {
		seedRule(t, repo, merchantID, fmt.Sprintf("candidate-%d", i), "Shirts", "10", false)
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = instances[i%len(instances)].Toggle(ctx, merchantID, fmt.Sprintf("candidate-%d", i))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAdmissionDenied), "unexpected error %v", err)
	}
	assert.Equal(t, admissionCap, succeeded)

	count, err := repo.CountActive(ctx, merchantID)
	require.NoError(t, err)
	assert.EqualValues(t, admissionCap, count)
}

func TestAdmissionActivateIfAdmitted(t *testing.T) {
	conn := setupRulesTestDB(t)
	repo := NewRepository(conn)
	admission := newTestAdmission(t, conn, repo, 1)
	merchantID := uuid.New()
	ctx := context.Background()

	first, err := admission.ActivateIfAdmitted(ctx, &models.BargainingRule{MerchantID: merchantID, VariantID: "v1", MinPrice: dec("30")}, PolicyMinPriceOnly)
	require.NoError(t, err)
	assert.True(t, first.IsActive)

	second, err := admission.ActivateIfAdmitted(ctx, &models.BargainingRule{MerchantID: merchantID, VariantID: "v2", MinPrice: dec("30")}, PolicyMinPriceOnly)
	require.NoError(t, err)
	assert.False(t, second.IsActive, "cap reached, created inactive")

	updated, err := admission.ActivateIfAdmitted(ctx, &models.BargainingRule{MerchantID: merchantID, VariantID: "v1", MinPrice: dec("25")}, PolicyMinPriceOnly)
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.True(t, updated.MinPrice.Equal(dec("25")))
}

type fakeLockStore struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
	sets   int
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{values: map[string]string{}}
}

func (f *fakeLockStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeLockStore) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeLockStore) LockKey(scope, id string) string {
	return "bargain:lock:" + scope + ":" + id
}

func TestAdmissionToggleUsesRedisLock(t *testing.T) {
	conn := setupRulesTestDB(t)
	repo := NewRepository(conn)
	store := newFakeLockStore()
	admission, err := NewAdmission(db.FromGorm(conn), repo, AdmissionConfig{Cap: 5, LockWait: 50 * time.Millisecond}, WithRedisLock(store))
	require.NoError(t, err)
	merchantID := uuid.New()
	seedRule(t, repo, merchantID, "v1", "Shirts", "10", false)

	_, err = admission.Toggle(context.Background(), merchantID, "v1")
	require.NoError(t, err)
	assert.Empty(t, store.values, "lock released after toggle")

	store.values[store.LockKey(toggleLockScope, merchantID.String())] = "someone-else"
	_, err = admission.Toggle(context.Background(), merchantID, "v1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	rule, err := repo.FindRule(context.Background(), merchantID, "v1")
	require.NoError(t, err)
	assert.True(t, rule.IsActive, "no change while the lock is held elsewhere")
}

func TestAdmissionToggleContinuesWhenRedisFails(t *testing.T) {
	conn := setupRulesTestDB(t)
	repo := NewRepository(conn)
	store := newFakeLockStore()
	store.setErr = errors.New("connection refused")
	admission, err := NewAdmission(db.FromGorm(conn), repo, AdmissionConfig{Cap: 5}, WithRedisLock(store))
	require.NoError(t, err)
	merchantID := uuid.New()
	seedRule(t, repo, merchantID, "v1", "Shirts", "10", false)

	rule, err := admission.Toggle(context.Background(), merchantID, "v1")
	require.NoError(t, err)
	assert.True(t, rule.IsActive)
}

func TestRedisLockReleaseIgnoresForeignOwner(t *testing.T) {
	store := newFakeLockStore()
	lock, err := NewRedisLock(store, "bargain:lock:toggle:m1", time.Second)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	store.values["bargain:lock:toggle:m1"] = "other"
	require.NoError(t, lock.Release(context.Background()))
	assert.Equal(t, "other", store.values["bargain:lock:toggle:m1"])

	_, err = NewRedisLock(nil, "k", time.Second)
	assert.Error(t, err)
	_, err = NewRedisLock(store, "", time.Second)
	assert.Error(t, err)
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	locks := newKeyedMutex()
	unlockA := locks.Lock("a")
	acquired := make(chan struct{})
	go func() {
		unlock := locks.Lock("a")
		close(acquired)
		unlock()
	}()

	unlockB := locks.Lock("b")
	unlockB()

	select {
	case <-acquired:
		t.Fatalf("second holder of key a acquired early")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-acquired
	assert.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, 5*time.Millisecond)
}
