package trips

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, trip *models.Trip) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	ListForDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Trip, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, status enums.TripStatus, version int, updates map[string]any) (bool, error)
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

func (r *repository) Create(ctx context.Context, trip *models.Trip) error {
	return r.db.WithContext(ctx).Create(trip).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&trip).Error; err != nil {
		return nil, err
	}
	return &trip, nil
}

func (r *repository) ListForDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Trip, error) {
	q := r.db.WithContext(ctx).Where("driver_id = ?", driverID).Order("assigned_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var trips []models.Trip
	if err := q.Find(&trips).Error; err != nil {
		return nil, err
	}
	return trips, nil
}

func (r *repository) CompareAndSwap(ctx context.Context, id uuid.UUID, status enums.TripStatus, version int, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")

	res := r.db.WithContext(ctx).Model(&models.Trip{}).
		Where("id = ? AND status = ? AND version = ?", id, status, version).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
