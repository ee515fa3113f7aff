package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

// CargoRequest is a shipment posted by a cargo owner.
type CargoRequest struct {
	ID          uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID     uuid.UUID                `gorm:"column:owner_id;type:uuid;not null;index"`
	DriverID    *uuid.UUID               `gorm:"column:driver_id;type:uuid"`
	CargoType   enums.CargoType          `gorm:"column:cargo_type;type:text;not null"`
	VehicleType enums.VehicleType        `gorm:"column:vehicle_type;type:text;not null"`
	Description string                   `gorm:"column:description;type:text"`
	WeightKg    decimal.Decimal          `gorm:"column:weight_kg;type:numeric(12,3);not null"`
	VolumeM3    *decimal.Decimal         `gorm:"column:volume_m3;type:numeric(12,3)"`
	Status      enums.CargoRequestStatus `gorm:"column:status;type:text;not null;index"`

	PickupAddress   string    `gorm:"column:pickup_address;type:text;not null"`
	PickupLat       float64   `gorm:"column:pickup_lat;not null"`
	PickupLng       float64   `gorm:"column:pickup_lng;not null"`
	PickupAt        time.Time `gorm:"column:pickup_at;not null"`
	DeliveryAddress string    `gorm:"column:delivery_address;type:text;not null"`
	DeliveryLat     float64   `gorm:"column:delivery_lat;not null"`
	DeliveryLng     float64   `gorm:"column:delivery_lng;not null"`
	DeliveryAt      time.Time `gorm:"column:delivery_at;not null"`

	PriceAmount int64          `gorm:"column:price_amount;type:bigint;not null"`
	Currency    enums.Currency `gorm:"column:currency;type:text;not null"`

	CancelReason  *string `gorm:"column:cancel_reason"`
	FailureReason *string `gorm:"column:failure_reason"`

	AcceptedAt  *time.Time `gorm:"column:accepted_at"`
	PickedUpAt  *time.Time `gorm:"column:picked_up_at"`
	DeliveredAt *time.Time `gorm:"column:delivered_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`
	FailedAt    *time.Time `gorm:"column:failed_at"`

	Version   int       `gorm:"column:version;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *CargoRequest) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}
