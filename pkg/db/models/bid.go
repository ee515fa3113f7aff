package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

// Bid is a driver's time-bounded offer on a cargo request.
type Bid struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CargoRequestID uuid.UUID       `gorm:"column:cargo_request_id;type:uuid;not null;index"`
	DriverID       uuid.UUID       `gorm:"column:driver_id;type:uuid;not null;index"`
	Amount         int64           `gorm:"column:amount;type:bigint;not null"`
	Currency       enums.Currency  `gorm:"column:currency;type:text;not null"`
	Note           *string         `gorm:"column:note"`
	Status         enums.BidStatus `gorm:"column:status;type:text;not null"`
	// IsSystem marks bids recorded on behalf of an operator's direct assignment.
	IsSystem     bool       `gorm:"column:is_system;not null;default:false"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null"`
	RejectReason *string    `gorm:"column:reject_reason"`
	AcceptedAt   *time.Time `gorm:"column:accepted_at"`
	RejectedAt   *time.Time `gorm:"column:rejected_at"`
	WithdrawnAt  *time.Time `gorm:"column:withdrawn_at"`
	Version      int        `gorm:"column:version;not null;default:1"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *Bid) BeforeCreate(*gorm.DB) error {
	assignID(&b.ID)
	return nil
}

// IsExpired is derived from ExpiresAt; expiry is never stored.
func (b *Bid) IsExpired(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}
