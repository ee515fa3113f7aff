package ratings

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, rating *models.Rating) error
	FindByTripAndKind(ctx context.Context, tripID uuid.UUID, kind enums.RatingKind) (*models.Rating, error)
	ListForTrip(ctx context.Context, tripID uuid.UUID) ([]models.Rating, error)
	// Summary aggregates every rating received by rateeID.
	Summary(ctx context.Context, rateeID uuid.UUID) (Summary, error)
}

// Summary is the received-ratings rollup for one participant.
type Summary struct {
	RateeID uuid.UUID `json:"ratee_id"`
	Count   int64     `json:"count"`
	Average float64   `json:"average"`
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

func (r *repository) Create(ctx context.Context, rating *models.Rating) error {
	return r.db.WithContext(ctx).Create(rating).Error
}

func (r *repository) FindByTripAndKind(ctx context.Context, tripID uuid.UUID, kind enums.RatingKind) (*models.Rating, error) {
	var rating models.Rating
	err := r.db.WithContext(ctx).
		Where("trip_id = ? AND kind = ?", tripID, kind).
		First(&rating).Error
	if err != nil {
		return nil, err
	}
	return &rating, nil
}

func (r *repository) ListForTrip(ctx context.Context, tripID uuid.UUID) ([]models.Rating, error) {
	var out []models.Rating
	if err := r.db.WithContext(ctx).Where("trip_id = ?", tripID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Summary(ctx context.Context, rateeID uuid.UUID) (Summary, error) {
	var row struct {
		Count   int64
		Average *float64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Rating{}).
		Select("COUNT(*) AS count, AVG(score) AS average").
		Where("ratee_id = ?", rateeID).
		Scan(&row).Error
	if err != nil {
		return Summary{}, err
	}
	out := Summary{RateeID: rateeID, Count: row.Count}
	if row.Average != nil {
		out.Average = *row.Average
	}
	return out, nil
}
