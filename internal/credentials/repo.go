package credentials

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/bargaining-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/angelmondragon/bargaining-backend/pkg/shopify"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store resolves a merchant's commerce API credentials.
type Store interface {
	Get(ctx context.Context, merchantID uuid.UUID) (shopify.Credentials, error)
}

// Repository reads credentials written by the install flow.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to credential lookups.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get loads the credentials for merchantID. A missing or incomplete row is
// reported as NOT_FOUND.
func (r *Repository) Get(ctx context.Context, merchantID uuid.UUID) (shopify.Credentials, error) {
	var row models.CommerceCredential
	err := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shopify.Credentials{}, pkgerrors.New(pkgerrors.CodeNotFound, "commerce credentials not found")
		}
		return shopify.Credentials{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load commerce credentials")
	}
	creds := toCredentials(row)
	if creds.ShopName == "" || creds.AccessToken == "" || creds.APIVersion == "" {
		return shopify.Credentials{}, pkgerrors.New(pkgerrors.CodeNotFound, "commerce credentials not found")
	}
	return creds, nil
}

// FindMerchantByShop resolves the merchant that owns shopName.
func (r *Repository) FindMerchantByShop(ctx context.Context, shopName string) (uuid.UUID, error) {
	var row models.CommerceCredential
	err := r.db.WithContext(ctx).Where("shop_name = ?", strings.TrimSpace(shopName)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load commerce credentials")
	}
	return row.MerchantID, nil
}

// FindShopByMerchant returns the shop merchantID installed from.
func (r *Repository) FindShopByMerchant(ctx context.Context, merchantID uuid.UUID) (string, error) {
	var row models.CommerceCredential
	err := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load commerce credentials")
	}
	shop := strings.TrimSpace(row.ShopName)
	if shop == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
	}
	return shop, nil
}

func toCredentials(row models.CommerceCredential) shopify.Credentials {
	return shopify.Credentials{
		ShopName:    strings.TrimSpace(row.ShopName),
		APIVersion:  strings.TrimSpace(row.APIVersion),
		AccessToken: strings.TrimSpace(row.AccessToken),
	}
}
