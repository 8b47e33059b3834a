package bargaining

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/bargaining-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Rule columns an upsert may overwrite on conflict.
const (
	ColumnMinPrice           = "min_price"
	ColumnOriginalPrice      = "original_price"
	ColumnMinPricePercentage = "min_price_percentage"
	ColumnCategory           = "category"
	ColumnBargainBehaviour   = "bargain_behaviour"
	ColumnProductTitle       = "product_title"
	ColumnVariantTitle       = "variant_title"
	columnIsActive           = "is_active"
	columnUpdatedAt          = "updated_at"
)

// ActivityMode decides what an upsert does with is_active.
type ActivityMode int

const (
	// ActivityPreserve keeps the stored flag on update and inserts the given one.
	ActivityPreserve ActivityMode = iota
	// ActivityForceInactive stores is_active=false on insert and update.
	ActivityForceInactive
)

// UpsertPolicy names the columns overwritten on conflict and the activity rule.
type UpsertPolicy struct {
	Columns  []string
	Activity ActivityMode
}

var (
	// PolicyBatchRules is used by the category and all-products paths.
	PolicyBatchRules = UpsertPolicy{
		Columns: []string{
			ColumnMinPrice,
			ColumnOriginalPrice,
			ColumnMinPricePercentage,
			ColumnCategory,
			ColumnBargainBehaviour,
			ColumnProductTitle,
			ColumnVariantTitle,
		},
		Activity: ActivityForceInactive,
	}
	// PolicyMinPriceOnly overwrites only the floor and leaves activation alone.
	PolicyMinPriceOnly = UpsertPolicy{
		Columns:  []string{ColumnMinPrice},
		Activity: ActivityPreserve,
	}
)

// RuleFilter narrows FindAll.
type RuleFilter struct {
	Category   string
	ActiveOnly bool
}

// RuleFailure is a single failed write inside a batch.
type RuleFailure struct {
	VariantID string
	Err       error
}

// BulkResult reports a non-transactional batch of upserts.
type BulkResult struct {
	Attempted int
	Applied   int
	Rules     []models.BargainingRule
	Failures  []RuleFailure
}

// Err combines every per-variant failure, or nil.
func (r BulkResult) Err() error {
	var combined error
	for _, f := range r.Failures {
		combined = multierr.Append(combined, f.Err)
	}
	return combined
}

// Repository persists bargaining rules keyed by (merchant, variant).
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository binds a GORM DB to rule operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx, now: r.now}
}

// FindRule loads one rule; a missing rule is NOT_FOUND.
func (r *Repository) FindRule(ctx context.Context, merchantID uuid.UUID, variantID string) (*models.BargainingRule, error) {
	var rule models.BargainingRule
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND variant_id = ?", merchantID, variantID).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bargaining rule not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load bargaining rule")
	}
	return &rule, nil
}

// FindAll lists a merchant's rules.
func (r *Repository) FindAll(ctx context.Context, merchantID uuid.UUID, filter RuleFilter) ([]models.BargainingRule, error) {
	query := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID)
	if category := strings.TrimSpace(filter.Category); category != "" {
		query = query.Where("category = ?", category)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	rules := []models.BargainingRule{}
	if err := query.Order("created_at ASC").Order("variant_id ASC").Find(&rules).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list bargaining rules")
	}
	return rules, nil
}

// CountActive returns how many of the merchant's rules are active.
func (r *Repository) CountActive(ctx context.Context, merchantID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BargainingRule{}).
		Where("merchant_id = ? AND is_active = ?", merchantID, true).
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "count active rules")
	}
	return count, nil
}

// UpsertRule inserts rule or, when (merchant, variant) already exists,
// overwrites the policy's columns in the same statement. A floor that is not
// positive always stores is_active=false.
func (r *Repository) UpsertRule(ctx context.Context, rule *models.BargainingRule, policy UpsertPolicy) (*models.BargainingRule, error) {
	if rule == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rule is required")
	}
	if rule.MerchantID == uuid.Nil || strings.TrimSpace(rule.VariantID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant and variant are required")
	}
	if rule.MinPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidPrice, "minimum price must not be negative").
			WithDetails(map[string]string{"variant_id": rule.VariantID})
	}

	row := *rule
	row.ID = uuid.New()
	if strings.TrimSpace(row.Category) == "" {
		row.Category = models.DefaultCategory
	}
	now := r.now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now

	columns := append([]string{}, policy.Columns...)
	if policy.Activity == ActivityForceInactive || !row.MinPrice.IsPositive() {
		row.IsActive = false
		columns = append(columns, columnIsActive)
	}
	columns = append(columns, columnUpdatedAt)

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "merchant_id"}, {Name: "variant_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(&row).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "upsert bargaining rule").
			WithDetails(map[string]string{"variant_id": row.VariantID})
	}
	return r.FindRule(ctx, row.MerchantID, row.VariantID)
}

// BulkUpsert applies one upsert per rule without a surrounding transaction.
// Earlier writes stay applied when a later one fails.
func (r *Repository) BulkUpsert(ctx context.Context, rules []*models.BargainingRule, policy UpsertPolicy) BulkResult {
	result := BulkResult{Attempted: len(rules)}
	for _, rule := range rules {
		variantID := ""
		if rule != nil {
			variantID = rule.VariantID
		}
		stored, err := r.UpsertRule(ctx, rule, policy)
		if err != nil {
			result.Failures = append(result.Failures, RuleFailure{VariantID: variantID, Err: err})
			continue
		}
		result.Applied++
		result.Rules = append(result.Rules, *stored)
	}
	return result
}

// SetActive flips one rule's activation flag. Activating clears the
// deactivation reason.
func (r *Repository) SetActive(ctx context.Context, merchantID uuid.UUID, variantID string, active bool) error {
	updates := map[string]any{
		columnIsActive:  active,
		columnUpdatedAt: r.now().UTC(),
	}
	if active {
		updates["deactivation_reason"] = nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.BargainingRule{}).
		Where("merchant_id = ? AND variant_id = ?", merchantID, variantID).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, res.Error, "update rule activation")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "bargaining rule not found")
	}
	return nil
}

// Deactivate sets is_active=false on matching rules and stamps reason. An
// empty category matches every rule of the merchant.
func (r *Repository) Deactivate(ctx context.Context, merchantID uuid.UUID, category, reason string) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.BargainingRule{}).
		Where("merchant_id = ?", merchantID)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	res := query.Updates(map[string]any{
		columnIsActive:        false,
		"deactivation_reason": reason,
		columnUpdatedAt:       r.now().UTC(),
	})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodePersistence, res.Error, "deactivate rules")
	}
	return res.RowsAffected, nil
}
