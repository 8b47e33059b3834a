package bargaining

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/bargaining-backend/pkg/db"
	"github.com/angelmondragon/bargaining-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/angelmondragon/bargaining-backend/pkg/logger"
	"github.com/angelmondragon/bargaining-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
)

const (
	toggleLockScope   = "toggle"
	lockPollInterval  = 25 * time.Millisecond
	defaultLockWait   = 2 * time.Second
	advisoryLockQuery = "SELECT pg_advisory_xact_lock(hashtext(?))"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AdmissionConfig bounds concurrently active rules per merchant.
type AdmissionConfig struct {
	Cap      int
	LockTTL  time.Duration
	LockWait time.Duration
}

// Admission guards activation so a merchant never exceeds Cap active rules.
// Work for one merchant is serialized in process, across instances through an
// optional Redis lock, and inside the transaction by a Postgres advisory lock.
type Admission struct {
	tx      txRunner
	repo    *Repository
	cfg     AdmissionConfig
	locks   *keyedMutex
	redis   redisLockStore
	logg    *logger.Logger
	metrics *metrics.BargainingMetrics
}

// AdmissionOption configures optional collaborators.
type AdmissionOption func(*Admission)

// WithRedisLock enables the cross-instance toggle lock.
func WithRedisLock(store redisLockStore) AdmissionOption {
	return func(a *Admission) { a.redis = store }
}

func WithAdmissionLogger(logg *logger.Logger) AdmissionOption {
	return func(a *Admission) { a.logg = logg }
}

func WithAdmissionMetrics(m *metrics.BargainingMetrics) AdmissionOption {
	return func(a *Admission) { a.metrics = m }
}

// NewAdmission builds the admission controller.
func NewAdmission(tx txRunner, repo *Repository, cfg AdmissionConfig, opts ...AdmissionOption) (*Admission, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("rule repository required")
	}
	if cfg.Cap <= 0 {
		return nil, fmt.Errorf("admission cap must be positive")
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	a := &Admission{
		tx:    tx,
		repo:  repo,
		cfg:   cfg,
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Cap returns the configured active-rule limit.
func (a *Admission) Cap() int {
	return a.cfg.Cap
}

// Toggle flips the rule's activation. Deactivation is always allowed;
// activation requires a positive floor and fewer than Cap active rules.
func (a *Admission) Toggle(ctx context.Context, merchantID uuid.UUID, variantID string) (*models.BargainingRule, error) {
	var decision string
	var updated *models.BargainingRule
	err := a.serialized(ctx, merchantID, func(repo *Repository) error {
		rule, err := repo.FindRule(ctx, merchantID, variantID)
		if err != nil {
			return err
		}
		if !rule.HasFloor() {
			return pkgerrors.New(pkgerrors.CodePrecondition, "set a minimum price before activating bargaining").
				WithDetails(map[string]string{"variant_id": variantID})
		}

		if rule.IsActive {
			if err := repo.SetActive(ctx, merchantID, variantID, false); err != nil {
				return err
			}
			decision = metrics.DecisionDeactivated
		} else {
			active, err := repo.CountActive(ctx, merchantID)
			if err != nil {
				return err
			}
			if active >= int64(a.cfg.Cap) {
				decision = metrics.DecisionDenied
				return a.denied(active)
			}
			if err := repo.SetActive(ctx, merchantID, variantID, true); err != nil {
				return err
			}
			decision = metrics.DecisionActivated
		}

		updated, err = repo.FindRule(ctx, merchantID, variantID)
		return err
	})
	if decision != "" {
		a.metrics.IncAdmission(decision)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ActivateIfAdmitted upserts rule under the merchant's admission lock. An
// existing rule keeps its activation; a new one is inserted active only when
// it has a floor and the merchant is below Cap.
func (a *Admission) ActivateIfAdmitted(ctx context.Context, rule *models.BargainingRule, policy UpsertPolicy) (*models.BargainingRule, error) {
	if rule == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rule is required")
	}
	policy.Activity = ActivityPreserve

	var stored *models.BargainingRule
	err := a.serialized(ctx, rule.MerchantID, func(repo *Repository) error {
		candidate := *rule
		candidate.IsActive = false

		_, err := repo.FindRule(ctx, rule.MerchantID, rule.VariantID)
		switch {
		case err == nil:
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			if candidate.HasFloor() {
				active, err := repo.CountActive(ctx, rule.MerchantID)
				if err != nil {
					return err
				}
				candidate.IsActive = active < int64(a.cfg.Cap)
				if candidate.IsActive {
					a.metrics.IncAdmission(metrics.DecisionActivated)
				} else {
					a.metrics.IncAdmission(metrics.DecisionDenied)
				}
			}
		default:
			return err
		}

		stored, err = repo.UpsertRule(ctx, &candidate, policy)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (a *Admission) serialized(ctx context.Context, merchantID uuid.UUID, fn func(repo *Repository) error) error {
	key := merchantID.String()
	unlock := a.locks.Lock(key)
	defer unlock()

	release, err := a.acquireDistributed(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	return a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if db.IsPostgres(tx) {
			if err := tx.Exec(advisoryLockQuery, key).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "lock merchant rules")
			}
		}
		return fn(a.repo.WithTx(tx))
	})
}

func (a *Admission) acquireDistributed(ctx context.Context, key string) (func(), error) {
	noop := func() {}
	if a.redis == nil {
		return noop, nil
	}
	lock, err := NewRedisLock(a.redis, a.redis.LockKey(toggleLockScope, key), a.cfg.LockTTL)
	if err != nil {
		return noop, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build toggle lock")
	}

	backoff := retry.WithMaxDuration(a.cfg.LockWait, retry.NewConstant(lockPollInterval))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(errLockBusy)
		}
		return nil
	})
	switch {
	case err == nil:
		return func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && a.logg != nil {
				a.logg.Warn(a.logg.WithField(ctx, "error", err.Error()), "release toggle lock failed")
			}
		}, nil
	case errors.Is(err, errLockBusy):
		return noop, pkgerrors.New(pkgerrors.CodeConflict, "another activation change for this merchant is in progress")
	case ctx.Err() != nil:
		return noop, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "toggle lock wait cancelled")
	default:
		// Redis unavailable: the in-process and database locks still hold.
		if a.logg != nil {
			a.logg.Warn(a.logg.WithField(ctx, "error", err.Error()), "toggle lock unavailable, continuing without it")
		}
		return noop, nil
	}
}

func (a *Admission) denied(active int64) error {
	return pkgerrors.New(pkgerrors.CodeAdmissionDenied, fmt.Sprintf("only %d products can have bargaining active at once", a.cfg.Cap)).
		WithDetails(map[string]any{
			"cap":    a.cfg.Cap,
			"active": active,
		})
}
