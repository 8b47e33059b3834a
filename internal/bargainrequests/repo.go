package bargainrequests

import (
	"context"

	"github.com/angelmondragon/bargaining-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists shopper bargain requests.
type Repository interface {
	Create(ctx context.Context, request *models.BargainRequest) error
	ListUnread(ctx context.Context, shopName string) ([]models.BargainRequest, error)
	MarkRead(ctx context.Context, shopName string, id uuid.UUID) (*models.BargainRequest, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a bargain request repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Create(ctx context.Context, request *models.BargainRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repositoryImpl) ListUnread(ctx context.Context, shopName string) ([]models.BargainRequest, error) {
	requests := []models.BargainRequest{}
	err := r.db.WithContext(ctx).
		Where("shop_name = ? AND mark_as_read = ?", shopName, false).
		Order("created_at DESC, id DESC").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// MarkRead returns nil without error when shopName has no request with id.
func (r *repositoryImpl) MarkRead(ctx context.Context, shopName string, id uuid.UUID) (*models.BargainRequest, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BargainRequest{}).
		Where("id = ? AND shop_name = ?", id, shopName).
		Update("mark_as_read", true)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	var request models.BargainRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}
