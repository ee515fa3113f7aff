package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

var liveStatuses = []enums.PaymentStatus{
	enums.PaymentStatusPending,
	enums.PaymentStatusProcessing,
	enums.PaymentStatusCompleted,
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByAuthority(ctx context.Context, authority string) (*models.Payment, error)
	// FindLiveForTrip returns the payment that still blocks a new one for the trip.
	FindLiveForTrip(ctx context.Context, tripID uuid.UUID) (*models.Payment, error)
	ListForTrip(ctx context.Context, tripID uuid.UUID) ([]models.Payment, error)
	// ListStale returns payments in status last touched before cutoff, oldest first.
	ListStale(ctx context.Context, status enums.PaymentStatus, cutoff time.Time, limit int) ([]models.Payment, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, status enums.PaymentStatus, version int, updates map[string]any) (bool, error)
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

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByAuthority(ctx context.Context, authority string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("authority = ?", authority).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindLiveForTrip(ctx context.Context, tripID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("trip_id = ? AND status IN ?", tripID, liveStatuses).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListForTrip(ctx context.Context, tripID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	if err := r.db.WithContext(ctx).Where("trip_id = ?", tripID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) ListStale(ctx context.Context, status enums.PaymentStatus, cutoff time.Time, limit int) ([]models.Payment, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Payment
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) CompareAndSwap(ctx context.Context, id uuid.UUID, status enums.PaymentStatus, version int, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")

	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ? AND version = ?", id, status, version).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
