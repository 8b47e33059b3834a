package bargaining

import (
	"time"

	"github.com/angelmondragon/bargaining-backend/internal/catalog"
	"github.com/angelmondragon/bargaining-backend/pkg/db/models"
	"github.com/angelmondragon/bargaining-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CategoryRulesInput sets percentage floors for one category.
type CategoryRulesInput struct {
	Category           string           `json:"category" validate:"required"`
	MinPricePercentage *decimal.Decimal `json:"min_price_percentage"`
	StartRange         *decimal.Decimal `json:"start_range"`
	EndRange           *decimal.Decimal `json:"end_range"`
	Limit              int              `json:"no_of_products" validate:"gte=0"`
	BargainBehaviour   string           `json:"bargain_behaviour" validate:"omitempty,oneof=low normal high LOW NORMAL HIGH"`
	IncludeAll         bool             `json:"include_all"`
}

// AllProductsRulesInput sets percentage floors across the whole catalog.
type AllProductsRulesInput struct {
	MinPricePercentage *decimal.Decimal `json:"min_price_percentage"`
	StartRange         *decimal.Decimal `json:"start_range"`
	EndRange           *decimal.Decimal `json:"end_range"`
	Limit              int              `json:"no_of_products" validate:"gte=0"`
	BargainBehaviour   string           `json:"bargain_behaviour" validate:"omitempty,oneof=low normal high LOW NORMAL HIGH"`
	IncludeAll         bool             `json:"include_all"`
}

// VariantRuleInput sets an absolute floor for one variant.
type VariantRuleInput struct {
	VariantID string           `json:"variant_id" validate:"required"`
	MinPrice  *decimal.Decimal `json:"min_price"`
}

// DiscountRuleInput derives a variant's floor from a discount percentage.
type DiscountRuleInput struct {
	VariantID string           `json:"variant_id" validate:"required"`
	Discount  *decimal.Decimal `json:"discount"`
}

// MinPriceUpdate is one entry of a bulk floor update.
type MinPriceUpdate struct {
	VariantID string           `json:"variant_id" validate:"required"`
	MinPrice  *decimal.Decimal `json:"min_price"`
}

// RuleDTO is the API shape of a bargaining rule.
type RuleDTO struct {
	ID                 uuid.UUID              `json:"id"`
	MerchantID         uuid.UUID              `json:"merchant_id"`
	VariantID          string                 `json:"variant_id"`
	Category           string                 `json:"category"`
	MinPrice           decimal.Decimal        `json:"min_price"`
	OriginalPrice      *decimal.Decimal       `json:"original_price,omitempty"`
	MinPricePercentage *decimal.Decimal       `json:"min_price_percentage,omitempty"`
	BargainBehaviour   enums.BargainBehaviour `json:"bargain_behaviour"`
	IsActive           bool                   `json:"is_active"`
	DeactivationReason *string                `json:"deactivation_reason,omitempty"`
	ProductTitle       string                 `json:"product_title,omitempty"`
	VariantTitle       string                 `json:"variant_title,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// FromModel maps a stored rule to its DTO.
func FromModel(m *models.BargainingRule) *RuleDTO {
	if m == nil {
		return nil
	}
	return &RuleDTO{
		ID:                 m.ID,
		MerchantID:         m.MerchantID,
		VariantID:          m.VariantID,
		Category:           m.Category,
		MinPrice:           m.MinPrice,
		OriginalPrice:      nullDecimal(m.OriginalPrice),
		MinPricePercentage: nullDecimal(m.MinPricePercentage),
		BargainBehaviour:   m.BargainBehaviour,
		IsActive:           m.IsActive,
		DeactivationReason: m.DeactivationReason,
		ProductTitle:       m.ProductTitle,
		VariantTitle:       m.VariantTitle,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func fromModels(rows []models.BargainingRule) []RuleDTO {
	out := make([]RuleDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}

func nullDecimal(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}

// FailureDTO describes one variant a batch could not write.
type FailureDTO struct {
	VariantID string         `json:"variant_id"`
	Code      pkgerrors.Code `json:"code"`
	Message   string         `json:"message"`
}

func failuresFrom(in []RuleFailure) []FailureDTO {
	out := make([]FailureDTO, 0, len(in))
	for _, f := range in {
		dto := FailureDTO{VariantID: f.VariantID, Code: pkgerrors.CodeInternal, Message: "write failed"}
		if typed := pkgerrors.As(f.Err); typed != nil {
			dto.Code = typed.Code()
			dto.Message = typed.Message()
		}
		out = append(out, dto)
	}
	return out
}

// SampleCalculation shows how a floor was derived for one variant.
type SampleCalculation struct {
	VariantID         string          `json:"variant_id"`
	OriginalPrice     decimal.Decimal `json:"original_price"`
	MinPrice          decimal.Decimal `json:"min_price"`
	PercentageApplied decimal.Decimal `json:"percentage_applied"`
}

// BatchRulesResult reports a category or all-products rule run.
type BatchRulesResult struct {
	Category           string              `json:"category,omitempty"`
	IncludeAll         bool                `json:"include_all"`
	Attempted          int                 `json:"attempted"`
	Applied            int                 `json:"applied"`
	Rules              []RuleDTO           `json:"rules"`
	Failures           []FailureDTO        `json:"failures,omitempty"`
	CatalogTruncated   bool                `json:"catalog_truncated"`
	CalculationFormula string              `json:"calculation_formula,omitempty"`
	SampleCalculations []SampleCalculation `json:"sample_calculations,omitempty"`
}

// BulkMinPriceResult reports a bulk floor update.
type BulkMinPriceResult struct {
	Attempted int          `json:"attempted"`
	Applied   int          `json:"applied"`
	Failures  []FailureDTO `json:"failures,omitempty"`
}

// DeactivationResult reports a cascade.
type DeactivationResult struct {
	Affected int64  `json:"affected"`
	Category string `json:"category,omitempty"`
	Reason   string `json:"reason"`
}

// CatalogOverview groups the merchant's variants by category.
type CatalogOverview struct {
	Categories []string                     `json:"categories"`
	Products   map[string][]catalog.Variant `json:"products"`
	Truncated  bool                         `json:"truncated"`
}
