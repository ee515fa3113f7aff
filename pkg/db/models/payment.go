package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

// Payment settles a completed trip. Net always equals gross minus commission.
type Payment struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	TripID           uuid.UUID            `gorm:"column:trip_id;type:uuid;not null;index"`
	PayerID          uuid.UUID            `gorm:"column:payer_id;type:uuid;not null"`
	PayeeID          uuid.UUID            `gorm:"column:payee_id;type:uuid;not null"`
	GrossAmount      int64                `gorm:"column:gross_amount;type:bigint;not null"`
	CommissionAmount int64                `gorm:"column:commission_amount;type:bigint;not null"`
	NetAmount        int64                `gorm:"column:net_amount;type:bigint;not null"`
	Currency         enums.Currency       `gorm:"column:currency;type:text;not null"`
	CommissionRuleID *uuid.UUID           `gorm:"column:commission_rule_id;type:uuid"`
	// CommissionAsOf is the instant the rules were evaluated at; recomputing
	// with it reproduces CommissionAmount.
	CommissionAsOf   time.Time            `gorm:"column:commission_as_of;not null"`
	Method           enums.PaymentMethod  `gorm:"column:method;type:text;not null"`
	Gateway          enums.PaymentGateway `gorm:"column:gateway;type:text;not null"`
	Status           enums.PaymentStatus  `gorm:"column:status;type:text;not null;index"`
	Description      string               `gorm:"column:description"`

	// Authority is the gateway's transaction id and the idempotency key for verification.
	Authority   *string `gorm:"column:authority;uniqueIndex:ux_payments_authority"`
	RedirectURL *string `gorm:"column:redirect_url"`
	ClientToken *string `gorm:"column:client_token"`
	ReferenceID *string `gorm:"column:reference_id"`

	FailureReason *string `gorm:"column:failure_reason"`
	RefundReason  *string `gorm:"column:refund_reason"`
	CancelReason  *string `gorm:"column:cancel_reason"`
	RefundPending bool    `gorm:"column:refund_pending;not null;default:false"`

	ProcessingAt *time.Time `gorm:"column:processing_at"`
	PaidAt       *time.Time `gorm:"column:paid_at"`
	FailedAt     *time.Time `gorm:"column:failed_at"`
	RefundedAt   *time.Time `gorm:"column:refunded_at"`
	CancelledAt  *time.Time `gorm:"column:cancelled_at"`

	Version   int       `gorm:"column:version;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
