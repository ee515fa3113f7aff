package commission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

// Repository persists commission rules and their tiers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, rule *models.CommissionRule) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionRule, error)
	ListCandidates(ctx context.Context, currency enums.Currency, asOf time.Time) ([]models.CommissionRule, error)
	Deactivate(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
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

func (r *repository) Create(ctx context.Context, rule *models.CommissionRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionRule, error) {
	var rule models.CommissionRule
	err := r.db.WithContext(ctx).
		Preload("Tiers", func(db *gorm.DB) *gorm.DB { return db.Order("min_amount ASC") }).
		Where("id = ?", id).
		First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListCandidates narrows by currency and date window. A deactivated rule is
// still a candidate for instants before its deactivation. Scope and
// applicability filtering happen in Compute.
func (r *repository) ListCandidates(ctx context.Context, currency enums.Currency, asOf time.Time) ([]models.CommissionRule, error) {
	var rules []models.CommissionRule
	err := r.db.WithContext(ctx).
		Preload("Tiers", func(db *gorm.DB) *gorm.DB { return db.Order("min_amount ASC") }).
		Where("currency = ?", currency).
		Where("is_active = ? OR deactivated_at > ?", true, asOf).
		Where("effective_from <= ?", asOf).
		Where("effective_to IS NULL OR effective_to > ?", asOf).
		Order("effective_from DESC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repository) Deactivate(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.CommissionRule{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]any{"is_active": false, "deactivated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
