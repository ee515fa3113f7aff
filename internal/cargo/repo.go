package cargo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

// Repository persists cargo requests. Every state change goes through
// CompareAndSwap so concurrent writers cannot both win.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.CargoRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CargoRequest, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, status *enums.CargoRequestStatus, limit int) ([]models.CargoRequest, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, status enums.CargoRequestStatus, version int, updates map[string]any) (bool, error)
	HasOpenTrip(ctx context.Context, requestID uuid.UUID) (bool, error)
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

func (r *repository) Create(ctx context.Context, request *models.CargoRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CargoRequest, error) {
	var request models.CargoRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, status *enums.CargoRequestStatus, limit int) ([]models.CargoRequest, error) {
	q := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var requests []models.CargoRequest
	if err := q.Order("created_at DESC").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// CompareAndSwap applies updates only when the row still has the given status
// and version, and bumps the version. It reports whether the row changed.
func (r *repository) CompareAndSwap(ctx context.Context, id uuid.UUID, status enums.CargoRequestStatus, version int, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")

	res := r.db.WithContext(ctx).Model(&models.CargoRequest{}).
		Where("id = ? AND status = ? AND version = ?", id, status, version).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// HasOpenTrip reports whether a trip for the request has not yet reached an
// end state.
func (r *repository) HasOpenTrip(ctx context.Context, requestID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Trip{}).
		Where("cargo_request_id = ? AND status NOT IN ?", requestID, []enums.TripStatus{
			enums.TripStatusCompleted,
			enums.TripStatusCancelled,
			enums.TripStatusRejected,
		}).
		Count(&count).Error
	return count > 0, err
}
