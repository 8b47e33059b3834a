package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BargainRequest is a shopper's ask to negotiate on a variant.
type BargainRequest struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ShopName      string          `gorm:"column:shop_name;not null;index:bargain_requests_shop_unread_idx" json:"shop_name"`
	ProductName   string          `gorm:"column:product_name;not null" json:"product_name"`
	VariantID     string          `gorm:"column:variant_id" json:"variant_id"`
	ProductPrice  decimal.Decimal `gorm:"column:product_price;type:numeric(14,4);not null" json:"product_price"`
	CustomerEmail string          `gorm:"column:customer_email;not null" json:"customer_email"`
	MarkAsRead    bool            `gorm:"column:mark_as_read;not null;default:false;index:bargain_requests_shop_unread_idx" json:"mark_as_read"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (BargainRequest) TableName() string { return "bargain_requests" }

func (r *BargainRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
