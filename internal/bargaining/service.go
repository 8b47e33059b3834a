package bargaining

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/bargaining-backend/internal/catalog"
	"github.com/angelmondragon/bargaining-backend/internal/categories"
	"github.com/angelmondragon/bargaining-backend/internal/pricing"
	"github.com/angelmondragon/bargaining-backend/internal/resolver"
	"github.com/angelmondragon/bargaining-backend/pkg/db/models"
	"github.com/angelmondragon/bargaining-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/angelmondragon/bargaining-backend/pkg/logger"
	"github.com/angelmondragon/bargaining-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultSampleLimit = 3

	opCategoryRules = "category_rules"
	opAllProducts   = "all_products_rules"
	opVariantRule   = "variant_rule"
	opDiscountRule  = "discount_rule"
	opBulkMinPrice  = "bulk_min_price"
)

type catalogReader interface {
	Snapshot(ctx context.Context, merchantID uuid.UUID) (*catalog.Snapshot, error)
}

type categoryCache interface {
	List(ctx context.Context, merchantID uuid.UUID) ([]categories.Category, error)
	Invalidate(ctx context.Context, merchantID uuid.UUID) error
}

type merchantLookup interface {
	FindMerchantByShop(ctx context.Context, shopName string) (uuid.UUID, error)
}

// Service exposes the bargaining rule operations.
type Service interface {
	SetRulesForCategory(ctx context.Context, merchantID uuid.UUID, input CategoryRulesInput) (*BatchRulesResult, error)
	SetRulesForAllProducts(ctx context.Context, merchantID uuid.UUID, input AllProductsRulesInput) (*BatchRulesResult, error)
	SetRuleForVariant(ctx context.Context, merchantID uuid.UUID, input VariantRuleInput) (*RuleDTO, error)
	SetRuleByDiscount(ctx context.Context, merchantID uuid.UUID, input DiscountRuleInput) (*RuleDTO, error)
	BulkSetMinPrice(ctx context.Context, merchantID uuid.UUID, updates []MinPriceUpdate) (*BulkMinPriceResult, error)
	DeactivateAll(ctx context.Context, merchantID uuid.UUID, reason string) (*DeactivationResult, error)
	DeactivateByCategory(ctx context.Context, merchantID uuid.UUID, category, reason string) (*DeactivationResult, error)
	ToggleActive(ctx context.Context, merchantID uuid.UUID, variantID string) (*RuleDTO, error)
	DeleteRule(ctx context.Context, merchantID uuid.UUID, variantID string) (*RuleDTO, error)
	GetRules(ctx context.Context, merchantID uuid.UUID, filter RuleFilter) ([]RuleDTO, error)
	GetRuleForVariant(ctx context.Context, merchantID uuid.UUID, variantID string) (*RuleDTO, error)
	GetRuleForShopVariant(ctx context.Context, shopName, variantID string) (*RuleDTO, error)
	ListCategories(ctx context.Context, merchantID uuid.UUID) ([]categories.Category, error)
	InvalidateCategories(ctx context.Context, merchantID uuid.UUID) error
	CatalogOverview(ctx context.Context, merchantID uuid.UUID) (*CatalogOverview, error)
}

// ServiceParams wires the rule service.
type ServiceParams struct {
	Repo        *Repository
	Admission   *Admission
	Cascade     *Cascade
	Catalog     catalogReader
	Categories  categoryCache
	Merchants   merchantLookup
	Logger      *logger.Logger
	Metrics     *metrics.BargainingMetrics
	SampleLimit int
}

type service struct {
	repo        *Repository
	admission   *Admission
	cascade     *Cascade
	catalog     catalogReader
	categories  categoryCache
	merchants   merchantLookup
	logg        *logger.Logger
	metrics     *metrics.BargainingMetrics
	sampleLimit int
}

// NewService builds the rule service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("rule repository required")
	}
	if params.Admission == nil {
		return nil, fmt.Errorf("admission controller required")
	}
	if params.Cascade == nil {
		return nil, fmt.Errorf("deactivation cascade required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if params.Categories == nil {
		return nil, fmt.Errorf("category cache required")
	}
	if params.Merchants == nil {
		return nil, fmt.Errorf("merchant lookup required")
	}
	sampleLimit := params.SampleLimit
	if sampleLimit <= 0 {
		sampleLimit = defaultSampleLimit
	}
	return &service{
		repo:        params.Repo,
		admission:   params.Admission,
		cascade:     params.Cascade,
		catalog:     params.Catalog,
		categories:  params.Categories,
		merchants:   params.Merchants,
		logg:        params.Logger,
		metrics:     params.Metrics,
		sampleLimit: sampleLimit,
	}, nil
}

type percentageRun struct {
	operation  string
	selection  resolver.Selection
	percentage decimal.Decimal
	behaviour  enums.BargainBehaviour
	category   string
	includeAll bool
	samples    bool
}

func (s *service) SetRulesForCategory(ctx context.Context, merchantID uuid.UUID, input CategoryRulesInput) (*BatchRulesResult, error) {
	pct, err := pricing.RequirePercent("min_price_percentage", input.MinPricePercentage)
	if err != nil {
		return nil, err
	}
	behaviour, err := parseBehaviour(input.BargainBehaviour)
	if err != nil {
		return nil, err
	}
	filter, err := buildFilter(input.IncludeAll, input.StartRange, input.EndRange, input.Limit)
	if err != nil {
		return nil, err
	}
	category := strings.TrimSpace(input.Category)
	selection := resolver.CategoryScoped{Category: category, Filter: filter}
	if err := selection.Validate(); err != nil {
		return nil, err
	}

	return s.applyPercentage(ctx, merchantID, percentageRun{
		operation:  opCategoryRules,
		selection:  selection,
		percentage: pct,
		behaviour:  behaviour,
		category:   category,
		includeAll: input.IncludeAll,
	})
}

func (s *service) SetRulesForAllProducts(ctx context.Context, merchantID uuid.UUID, input AllProductsRulesInput) (*BatchRulesResult, error) {
	pct, err := pricing.RequirePercent("min_price_percentage", input.MinPricePercentage)
	if err != nil {
		return nil, err
	}
	behaviour, err := parseBehaviour(input.BargainBehaviour)
	if err != nil {
		return nil, err
	}
	filter, err := buildFilter(input.IncludeAll, input.StartRange, input.EndRange, input.Limit)
	if err != nil {
		return nil, err
	}
	selection := resolver.AllProducts{Filter: filter}
	if err := selection.Validate(); err != nil {
		return nil, err
	}

	return s.applyPercentage(ctx, merchantID, percentageRun{
		operation:  opAllProducts,
		selection:  selection,
		percentage: pct,
		behaviour:  behaviour,
		includeAll: input.IncludeAll,
		samples:    true,
	})
}

func (s *service) applyPercentage(ctx context.Context, merchantID uuid.UUID, run percentageRun) (*BatchRulesResult, error) {
	snapshot, err := s.catalog.Snapshot(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	targets, err := resolver.Resolve(snapshot, run.selection)
	if err != nil {
		return nil, err
	}

	rules := make([]*models.BargainingRule, 0, len(targets))
	samples := make([]SampleCalculation, 0, s.sampleLimit)
	for _, v := range targets {
		floor, err := pricing.PercentageFloor(v.Price, run.percentage)
		if err != nil {
			return nil, err
		}
		rules = append(rules, &models.BargainingRule{
			MerchantID:         merchantID,
			VariantID:          v.VariantID,
			Category:           v.Category,
			MinPrice:           floor,
			OriginalPrice:      decimal.NewNullDecimal(v.Price),
			MinPricePercentage: decimal.NewNullDecimal(run.percentage),
			BargainBehaviour:   run.behaviour,
			ProductTitle:       v.ProductTitle,
			VariantTitle:       v.VariantTitle,
		})
		if run.samples && len(samples) < s.sampleLimit {
			samples = append(samples, SampleCalculation{
				VariantID:         v.VariantID,
				OriginalPrice:     v.Price,
				MinPrice:          floor,
				PercentageApplied: run.percentage,
			})
		}
	}

	written := s.repo.BulkUpsert(ctx, rules, PolicyBatchRules)
	s.metrics.AddRuleWrites(run.operation, written.Applied, len(written.Failures))
	if err := s.checkBatch(ctx, run.operation, written); err != nil {
		return nil, err
	}

	result := &BatchRulesResult{
		Category:         run.category,
		IncludeAll:       run.includeAll,
		Attempted:        written.Attempted,
		Applied:          written.Applied,
		Rules:            fromModels(written.Rules),
		Failures:         failuresFrom(written.Failures),
		CatalogTruncated: snapshot.Truncated,
	}
	if run.samples {
		result.CalculationFormula = fmt.Sprintf("minPrice = originalPrice - (originalPrice × %s%%)", run.percentage.String())
		result.SampleCalculations = samples
	}
	return result, nil
}

func (s *service) SetRuleForVariant(ctx context.Context, merchantID uuid.UUID, input VariantRuleInput) (*RuleDTO, error) {
	minPrice, err := pricing.RequirePrice("min_price", input.MinPrice)
	if err != nil {
		return nil, err
	}
	selection := resolver.SingleVariant{VariantID: input.VariantID}
	if err := selection.Validate(); err != nil {
		return nil, err
	}

	target, err := s.resolveVariant(ctx, merchantID, selection)
	if err != nil {
		return nil, err
	}

	stored, err := s.admission.ActivateIfAdmitted(ctx, &models.BargainingRule{
		MerchantID:       merchantID,
		VariantID:        target.VariantID,
		Category:         target.Category,
		MinPrice:         minPrice,
		OriginalPrice:    decimal.NewNullDecimal(target.Price),
		BargainBehaviour: enums.BargainBehaviourNormal,
		ProductTitle:     target.ProductTitle,
		VariantTitle:     target.VariantTitle,
	}, PolicyMinPriceOnly)
	s.recordSingleWrite(opVariantRule, err)
	if err != nil {
		return nil, err
	}
	return FromModel(stored), nil
}

func (s *service) SetRuleByDiscount(ctx context.Context, merchantID uuid.UUID, input DiscountRuleInput) (*RuleDTO, error) {
	discount, err := pricing.RequirePercent("discount", input.Discount)
	if err != nil {
		return nil, err
	}
	selection := resolver.SingleVariant{VariantID: input.VariantID}
	if err := selection.Validate(); err != nil {
		return nil, err
	}

	target, err := s.resolveVariant(ctx, merchantID, selection)
	if err != nil {
		return nil, err
	}
	floor, err := pricing.DiscountFloor(target.Price, discount)
	if err != nil {
		return nil, err
	}

	stored, err := s.admission.ActivateIfAdmitted(ctx, &models.BargainingRule{
		MerchantID:         merchantID,
		VariantID:          target.VariantID,
		Category:           target.Category,
		MinPrice:           floor,
		OriginalPrice:      decimal.NewNullDecimal(target.Price),
		MinPricePercentage: decimal.NewNullDecimal(discount),
		BargainBehaviour:   enums.BargainBehaviourNormal,
		ProductTitle:       target.ProductTitle,
		VariantTitle:       target.VariantTitle,
	}, PolicyMinPriceOnly)
	s.recordSingleWrite(opDiscountRule, err)
	if err != nil {
		return nil, err
	}
	return FromModel(stored), nil
}

func (s *service) BulkSetMinPrice(ctx context.Context, merchantID uuid.UUID, updates []MinPriceUpdate) (*BulkMinPriceResult, error) {
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "updates are required").
			WithDetails(map[string]string{"updates": "is required"})
	}
	rules := make([]*models.BargainingRule, 0, len(updates))
	for i, update := range updates {
		variantID := strings.TrimSpace(update.VariantID)
		if variantID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("updates[%d].variant_id is required", i))
		}
		minPrice, err := pricing.RequirePrice(fmt.Sprintf("updates[%d].min_price", i), update.MinPrice)
		if err != nil {
			return nil, err
		}
		rules = append(rules, &models.BargainingRule{
			MerchantID:       merchantID,
			VariantID:        variantID,
			Category:         models.DefaultCategory,
			MinPrice:         minPrice,
			BargainBehaviour: enums.BargainBehaviourNormal,
		})
	}

	written := s.repo.BulkUpsert(ctx, rules, PolicyMinPriceOnly)
	s.metrics.AddRuleWrites(opBulkMinPrice, written.Applied, len(written.Failures))
	if err := s.checkBatch(ctx, opBulkMinPrice, written); err != nil {
		return nil, err
	}
	return &BulkMinPriceResult{
		Attempted: written.Attempted,
		Applied:   written.Applied,
		Failures:  failuresFrom(written.Failures),
	}, nil
}

func (s *service) DeactivateAll(ctx context.Context, merchantID uuid.UUID, reason string) (*DeactivationResult, error) {
	affected, err := s.cascade.DeactivateAll(ctx, merchantID, reason)
	if err != nil {
		return nil, err
	}
	return &DeactivationResult{Affected: affected, Reason: strings.TrimSpace(reason)}, nil
}

func (s *service) DeactivateByCategory(ctx context.Context, merchantID uuid.UUID, category, reason string) (*DeactivationResult, error) {
	affected, err := s.cascade.DeactivateByCategory(ctx, merchantID, category, reason)
	if err != nil {
		return nil, err
	}
	return &DeactivationResult{
		Affected: affected,
		Category: strings.TrimSpace(category),
		Reason:   strings.TrimSpace(reason),
	}, nil
}

func (s *service) ToggleActive(ctx context.Context, merchantID uuid.UUID, variantID string) (*RuleDTO, error) {
	variantID, err := requireVariantID(variantID)
	if err != nil {
		return nil, err
	}
	rule, err := s.admission.Toggle(ctx, merchantID, variantID)
	if err != nil {
		return nil, err
	}
	return FromModel(rule), nil
}

// DeleteRule deactivates the rule and keeps its floor for later reactivation.
func (s *service) DeleteRule(ctx context.Context, merchantID uuid.UUID, variantID string) (*RuleDTO, error) {
	variantID, err := requireVariantID(variantID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, merchantID, variantID, false); err != nil {
		return nil, err
	}
	rule, err := s.repo.FindRule(ctx, merchantID, variantID)
	if err != nil {
		return nil, err
	}
	return FromModel(rule), nil
}

func (s *service) GetRules(ctx context.Context, merchantID uuid.UUID, filter RuleFilter) ([]RuleDTO, error) {
	rows, err := s.repo.FindAll(ctx, merchantID, filter)
	if err != nil {
		return nil, err
	}
	return fromModels(rows), nil
}

// GetRuleForVariant returns nil without error when no rule exists.
func (s *service) GetRuleForVariant(ctx context.Context, merchantID uuid.UUID, variantID string) (*RuleDTO, error) {
	variantID, err := requireVariantID(variantID)
	if err != nil {
		return nil, err
	}
	rule, err := s.repo.FindRule(ctx, merchantID, variantID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return FromModel(rule), nil
}

func (s *service) GetRuleForShopVariant(ctx context.Context, shopName, variantID string) (*RuleDTO, error) {
	if strings.TrimSpace(shopName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop is required").
			WithDetails(map[string]string{"shop": "is required"})
	}
	if _, err := requireVariantID(variantID); err != nil {
		return nil, err
	}
	merchantID, err := s.merchants.FindMerchantByShop(ctx, shopName)
	if err != nil {
		return nil, err
	}
	return s.GetRuleForVariant(ctx, merchantID, variantID)
}

func (s *service) ListCategories(ctx context.Context, merchantID uuid.UUID) ([]categories.Category, error) {
	return s.categories.List(ctx, merchantID)
}

func (s *service) InvalidateCategories(ctx context.Context, merchantID uuid.UUID) error {
	if err := s.categories.Invalidate(ctx, merchantID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalidate categories")
	}
	return nil
}

func (s *service) CatalogOverview(ctx context.Context, merchantID uuid.UUID) (*CatalogOverview, error) {
	snapshot, err := s.catalog.Snapshot(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	return &CatalogOverview{
		Categories: snapshot.Categories(),
		Products:   snapshot.GroupByCategory(),
		Truncated:  snapshot.Truncated,
	}, nil
}

func (s *service) resolveVariant(ctx context.Context, merchantID uuid.UUID, selection resolver.SingleVariant) (catalog.Variant, error) {
	snapshot, err := s.catalog.Snapshot(ctx, merchantID)
	if err != nil {
		return catalog.Variant{}, err
	}
	targets, err := resolver.Resolve(snapshot, selection)
	if err != nil {
		return catalog.Variant{}, err
	}
	return targets[0], nil
}

// checkBatch logs partial failures and turns a batch where nothing applied
// into an error.
func (s *service) checkBatch(ctx context.Context, operation string, written BulkResult) error {
	if len(written.Failures) == 0 {
		return nil
	}
	combined := written.Err()
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"operation": operation,
			"attempted": written.Attempted,
			"applied":   written.Applied,
		})
		s.logg.Error(logCtx, "bargaining rule batch had failures", combined)
	}
	if written.Applied == 0 {
		if typed := pkgerrors.As(written.Failures[0].Err); typed != nil && typed.Code() != pkgerrors.CodePersistence {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodePersistence, combined, "no bargaining rules were written").
			WithDetails(map[string]any{
				"attempted": written.Attempted,
				"failures":  failuresFrom(written.Failures),
			})
	}
	return nil
}

func (s *service) recordSingleWrite(operation string, err error) {
	if err != nil {
		s.metrics.AddRuleWrites(operation, 0, 1)
		return
	}
	s.metrics.AddRuleWrites(operation, 1, 0)
}

func buildFilter(includeAll bool, start, end *decimal.Decimal, limit int) (resolver.Filter, error) {
	filter := resolver.Filter{IncludeAll: includeAll, Limit: limit}
	if includeAll {
		return filter, nil
	}
	if start == nil || end == nil {
		return filter, pkgerrors.New(pkgerrors.CodeValidation, "start_range and end_range are required unless include_all is set").
			WithDetails(map[string]string{"range": "is required"})
	}
	filter.Range = &resolver.PriceRange{Start: *start, End: *end}
	return filter, nil
}

func parseBehaviour(raw string) (enums.BargainBehaviour, error) {
	behaviour, err := enums.ParseBargainBehaviour(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bargain_behaviour").
			WithDetails(map[string]string{"bargain_behaviour": "must be one of low, normal, high"})
	}
	return behaviour, nil
}

func requireVariantID(variantID string) (string, error) {
	trimmed := strings.TrimSpace(variantID)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "variant_id is required").
			WithDetails(map[string]string{"variant_id": "is required"})
	}
	return trimmed, nil
}
