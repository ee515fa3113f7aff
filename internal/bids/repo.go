package bids

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, bid *models.Bid) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	ListForRequest(ctx context.Context, requestID uuid.UUID) ([]models.Bid, error)
	ListPendingForRequest(ctx context.Context, requestID uuid.UUID) ([]models.Bid, error)
	HasOpenBid(ctx context.Context, requestID, driverID uuid.UUID, now time.Time) (bool, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, status enums.BidStatus, version int, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, bid *models.Bid) error {
	return r.db.WithContext(ctx).Create(bid).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&bid).Error; err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *repository) ListForRequest(ctx context.Context, requestID uuid.UUID) ([]models.Bid, error) {
	var bids []models.Bid
	err := r.db.WithContext(ctx).
		Where("cargo_request_id = ?", requestID).
		Order("created_at ASC").
		Find(&bids).Error
	return bids, err
}

func (r *repository) ListPendingForRequest(ctx context.Context, requestID uuid.UUID) ([]models.Bid, error) {
	var bids []models.Bid
	err := r.db.WithContext(ctx).
		Where("cargo_request_id = ? AND status = ?", requestID, enums.BidStatusPending).
		Find(&bids).Error
	return bids, err
}

// HasOpenBid reports whether the driver already has a pending, unexpired bid
// on the request.
func (r *repository) HasOpenBid(ctx context.Context, requestID, driverID uuid.UUID, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Bid{}).
		Where("cargo_request_id = ? AND driver_id = ? AND status = ? AND expires_at > ?", requestID, driverID, enums.BidStatusPending, now).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CompareAndSwap(ctx context.Context, id uuid.UUID, status enums.BidStatus, version int, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")

	res := r.db.WithContext(ctx).Model(&models.Bid{}).
		Where("id = ? AND status = ? AND version = ?", id, status, version).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
