package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

// CommissionRule is an administrator-managed platform fee rule. Rules are
// deactivated, never deleted, so historical settlements stay reproducible.
type CommissionRule struct {
	ID            uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey"`
	Name          string                        `gorm:"column:name;not null"`
	Type          enums.CommissionType          `gorm:"column:type;type:text;not null"`
	Applicability enums.CommissionApplicability `gorm:"column:applicability;type:text;not null"`
	Currency      enums.Currency                `gorm:"column:currency;type:text;not null"`
	Rate          decimal.Decimal               `gorm:"column:rate;type:numeric(9,6);not null;default:0"`
	FixedAmount   *int64                        `gorm:"column:fixed_amount;type:bigint"`
	MinAmount     *int64                        `gorm:"column:min_amount;type:bigint"`
	MaxAmount     *int64                        `gorm:"column:max_amount;type:bigint"`
	// ThresholdAmount is the smallest trip amount the rule applies to.
	ThresholdAmount *int64             `gorm:"column:threshold_amount;type:bigint"`
	VehicleType     *enums.VehicleType `gorm:"column:vehicle_type;type:text"`
	CargoType       *enums.CargoType   `gorm:"column:cargo_type;type:text"`
	EffectiveFrom   time.Time          `gorm:"column:effective_from;not null"`
	EffectiveTo     *time.Time         `gorm:"column:effective_to"`
	IsActive        bool               `gorm:"column:is_active;not null;default:true"`
	DeactivatedAt   *time.Time         `gorm:"column:deactivated_at"`
	Tiers           []CommissionTier   `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *CommissionRule) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// CommissionTier is one [MinAmount, MaxAmount) bracket of a tiered rule.
type CommissionTier struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	RuleID    uuid.UUID       `gorm:"column:rule_id;type:uuid;not null;index"`
	MinAmount int64           `gorm:"column:min_amount;type:bigint;not null"`
	MaxAmount *int64          `gorm:"column:max_amount;type:bigint"`
	Rate      decimal.Decimal `gorm:"column:rate;type:numeric(9,6);not null"`
}

func (t *CommissionTier) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
