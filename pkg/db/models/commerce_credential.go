package models

import (
	"time"

	"github.com/google/uuid"
)

// CommerceCredential stores the merchant's commerce API access; it is written
// by the OAuth flow and only read here.
type CommerceCredential struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID  uuid.UUID `gorm:"column:merchant_id;type:uuid;not null;uniqueIndex"`
	ShopName    string    `gorm:"column:shop_name;not null;index"`
	APIVersion  string    `gorm:"column:api_version;not null"`
	AccessToken string    `gorm:"column:access_token;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CommerceCredential) TableName() string { return "commerce_credentials" }
