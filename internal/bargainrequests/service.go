package bargainrequests

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/bargaining-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/angelmondragon/bargaining-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultVariantTitle = "Default Title"

// Service records shopper bargain requests and lets merchants work through them.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.BargainRequest, error)
	ListUnread(ctx context.Context, merchantID uuid.UUID, shopName string) ([]models.BargainRequest, error)
	MarkRead(ctx context.Context, merchantID uuid.UUID, id uuid.UUID) (*models.BargainRequest, error)
}

// ShopResolver maps a merchant to the shop it owns.
type ShopResolver interface {
	FindShopByMerchant(ctx context.Context, merchantID uuid.UUID) (string, error)
}

// CreateInput is a storefront bargain request.
type CreateInput struct {
	ProductTitle  string           `json:"product_title" validate:"required"`
	VariantTitle  string           `json:"variant_title" validate:"required"`
	VariantID     string           `json:"variant_id"`
	VariantPrice  *decimal.Decimal `json:"variant_price"`
	CustomerEmail string           `json:"customer_email" validate:"required,email"`
	ShopName      string           `json:"shop_name" validate:"required"`
}

type service struct {
	repo  Repository
	shops ShopResolver
	logg  *logger.Logger
}

// NewService wires bargain request dependencies.
func NewService(repo Repository, shops ShopResolver, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("bargain request repository required")
	}
	if shops == nil {
		return nil, fmt.Errorf("shop resolver required")
	}
	return &service{repo: repo, shops: shops, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.BargainRequest, error) {
	missing := map[string]string{}
	productTitle := strings.TrimSpace(input.ProductTitle)
	variantTitle := strings.TrimSpace(input.VariantTitle)
	email := strings.TrimSpace(input.CustomerEmail)
	shop := strings.TrimSpace(input.ShopName)
	for field, value := range map[string]string{
		"product_title":  productTitle,
		"variant_title":  variantTitle,
		"customer_email": email,
		"shop_name":      shop,
	} {
		if value == "" {
			missing[field] = "is required"
		}
	}
	if input.VariantPrice == nil {
		missing["variant_price"] = "is required"
	} else if input.VariantPrice.IsNegative() {
		missing["variant_price"] = "must not be negative"
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "all fields are required").WithDetails(missing)
	}

	name := variantTitle
	if strings.HasPrefix(variantTitle, defaultVariantTitle) {
		name = productTitle
	}
	request := &models.BargainRequest{
		ShopName:      shop,
		ProductName:   name,
		VariantID:     strings.TrimSpace(input.VariantID),
		ProductPrice:  *input.VariantPrice,
		CustomerEmail: email,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create bargain request")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"shop":       shop,
			"variant_id": request.VariantID,
		})
		s.logg.Info(logCtx, "bargain request recorded")
	}
	return request, nil
}

// ListUnread returns the merchant's unread requests. A non-empty shopName
// must name the merchant's own shop.
func (s *service) ListUnread(ctx context.Context, merchantID uuid.UUID, shopName string) ([]models.BargainRequest, error) {
	shop, err := s.merchantShop(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if requested := strings.TrimSpace(shopName); requested != "" && requested != shop {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
	}
	rows, err := s.repo.ListUnread(ctx, shop)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list bargain requests")
	}
	return rows, nil
}

func (s *service) MarkRead(ctx context.Context, merchantID uuid.UUID, id uuid.UUID) (*models.BargainRequest, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	shop, err := s.merchantShop(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	request, err := s.repo.MarkRead(ctx, shop, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "mark bargain request read")
	}
	if request == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bargain request not found")
	}
	return request, nil
}

func (s *service) merchantShop(ctx context.Context, merchantID uuid.UUID) (string, error) {
	if merchantID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant context missing")
	}
	shop, err := s.shops.FindShopByMerchant(ctx, merchantID)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return "", err
		}
		return "", pkgerrors.Wrap(pkgerrors.CodePersistence, err, "resolve merchant shop")
	}
	return shop, nil
}
