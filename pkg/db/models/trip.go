package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

// Trip is the operational execution of an accepted cargo request.
type Trip struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	TripNumber     string            `gorm:"column:trip_number;not null;index"`
	CargoRequestID uuid.UUID         `gorm:"column:cargo_request_id;type:uuid;not null;index"`
	BidID          *uuid.UUID        `gorm:"column:bid_id;type:uuid"`
	DriverID       uuid.UUID         `gorm:"column:driver_id;type:uuid;not null;index"`
	OwnerID        uuid.UUID         `gorm:"column:owner_id;type:uuid;not null"`
	VehicleType    enums.VehicleType `gorm:"column:vehicle_type;type:text;not null"`
	CargoType      enums.CargoType   `gorm:"column:cargo_type;type:text;not null"`
	Status         enums.TripStatus  `gorm:"column:status;type:text;not null;index"`
	AgreedPrice    int64             `gorm:"column:agreed_price;type:bigint;not null"`
	ActualPrice    *int64            `gorm:"column:actual_price;type:bigint"`
	Currency       enums.Currency    `gorm:"column:currency;type:text;not null"`

	AssignedAt       time.Time  `gorm:"column:assigned_at;not null"`
	AcceptedAt       *time.Time `gorm:"column:accepted_at"`
	RejectedAt       *time.Time `gorm:"column:rejected_at"`
	StartedAt        *time.Time `gorm:"column:started_at"`
	LoadingStartedAt *time.Time `gorm:"column:loading_started_at"`
	LoadedAt         *time.Time `gorm:"column:loaded_at"`
	InTransitAt      *time.Time `gorm:"column:in_transit_at"`
	ArrivedAt        *time.Time `gorm:"column:arrived_at"`
	DeliveredAt      *time.Time `gorm:"column:delivered_at"`
	CompletedAt      *time.Time `gorm:"column:completed_at"`
	CancelledAt      *time.Time `gorm:"column:cancelled_at"`

	RejectReason *string `gorm:"column:reject_reason"`
	CancelReason *string `gorm:"column:cancel_reason"`

	Version   int       `gorm:"column:version;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Trip) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}

// SettlementAmount is the actual price when recorded, otherwise the agreed price.
func (t *Trip) SettlementAmount() int64 {
	if t.ActualPrice != nil {
		return *t.ActualPrice
	}
	return t.AgreedPrice
}

// PhaseTimestamps returns the recorded phase timestamps in lifecycle order,
// skipping phases the trip has not reached.
func (t *Trip) PhaseTimestamps() []time.Time {
	out := []time.Time{t.AssignedAt}
	for _, ts := range []*time.Time{
		t.AcceptedAt, t.StartedAt, t.LoadingStartedAt, t.LoadedAt,
		t.InTransitAt, t.ArrivedAt, t.DeliveredAt, t.CompletedAt,
	} {
		if ts != nil {
			out = append(out, *ts)
		}
	}
	return out
}
