package models

import (
	"time"

	"github.com/angelmondragon/bargaining-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefaultCategory is stored when the catalog carries no product type.
const DefaultCategory = "Uncategorized"

// BargainingRule holds the negotiation floor for one merchant variant.
type BargainingRule struct {
	ID                 uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID         uuid.UUID              `gorm:"column:merchant_id;type:uuid;not null;uniqueIndex:bargaining_rules_merchant_variant_key"`
	VariantID          string                 `gorm:"column:variant_id;not null;uniqueIndex:bargaining_rules_merchant_variant_key"`
	Category           string                 `gorm:"column:category;not null;default:Uncategorized"`
	MinPrice           decimal.Decimal        `gorm:"column:min_price;type:numeric(14,4);not null"`
	OriginalPrice      decimal.NullDecimal    `gorm:"column:original_price;type:numeric(14,4)"`
	MinPricePercentage decimal.NullDecimal    `gorm:"column:min_price_percentage;type:numeric(7,4)"`
	BargainBehaviour   enums.BargainBehaviour `gorm:"column:bargain_behaviour;not null;default:normal"`
	IsActive           bool                   `gorm:"column:is_active;not null;default:false"`
	DeactivationReason *string                `gorm:"column:deactivation_reason"`
	ProductTitle       string                 `gorm:"column:product_title"`
	VariantTitle       string                 `gorm:"column:variant_title"`
	CreatedAt          time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (BargainingRule) TableName() string { return "bargaining_rules" }

// BeforeCreate assigns the surrogate key so inserts behave the same on every driver.
func (r *BargainingRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// HasFloor reports whether a positive floor price is set.
func (r *BargainingRule) HasFloor() bool {
	return r != nil && r.MinPrice.IsPositive()
}
