package payloads

import (
	"time"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	"github.com/google/uuid"
)

// CargoRequestEvent is emitted on every cargo request transition.
type CargoRequestEvent struct {
	CargoRequestID uuid.UUID                `json:"cargo_request_id"`
	OwnerID        uuid.UUID                `json:"owner_id"`
	DriverID       *uuid.UUID               `json:"driver_id,omitempty"`
	Status         enums.CargoRequestStatus `json:"status"`
	PriceAmount    int64                    `json:"price_amount"`
	Currency       enums.Currency           `json:"currency"`
	Reason         string                   `json:"reason,omitempty"`
	OccurredAt     time.Time                `json:"occurred_at"`
}

// BidEvent covers submission, acceptance, rejection and withdrawal of a bid.
type BidEvent struct {
	BidID          uuid.UUID       `json:"bid_id"`
	CargoRequestID uuid.UUID       `json:"cargo_request_id"`
	DriverID       uuid.UUID       `json:"driver_id"`
	Amount         int64           `json:"amount"`
	Currency       enums.Currency  `json:"currency"`
	Status         enums.BidStatus `json:"status"`
	ExpiresAt      time.Time       `json:"expires_at"`
	Reason         string          `json:"reason,omitempty"`
}

// TripEvent is emitted on every trip transition.
type TripEvent struct {
	TripID         uuid.UUID        `json:"trip_id"`
	TripNumber     string           `json:"trip_number"`
	CargoRequestID uuid.UUID        `json:"cargo_request_id"`
	DriverID       uuid.UUID        `json:"driver_id"`
	OwnerID        uuid.UUID        `json:"owner_id"`
	PreviousStatus enums.TripStatus `json:"previous_status,omitempty"`
	Status         enums.TripStatus `json:"status"`
	AgreedPrice    int64            `json:"agreed_price"`
	ActualPrice    *int64           `json:"actual_price,omitempty"`
	Currency       enums.Currency   `json:"currency"`
	Reason         string           `json:"reason,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// PaymentEvent is emitted on every payment transition.
type PaymentEvent struct {
	PaymentID        uuid.UUID            `json:"payment_id"`
	TripID           uuid.UUID            `json:"trip_id"`
	PayerID          uuid.UUID            `json:"payer_id"`
	PayeeID          uuid.UUID            `json:"payee_id"`
	GrossAmount      int64                `json:"gross_amount"`
	CommissionAmount int64                `json:"commission_amount"`
	NetAmount        int64                `json:"net_amount"`
	Currency         enums.Currency       `json:"currency"`
	Gateway          enums.PaymentGateway `json:"gateway"`
	Status           enums.PaymentStatus  `json:"status"`
	Authority        string               `json:"authority,omitempty"`
	ReferenceID      string               `json:"reference_id,omitempty"`
	Reason           string               `json:"reason,omitempty"`
}

// RatingSubmittedEvent is emitted once per rating.
type RatingSubmittedEvent struct {
	RatingID uuid.UUID        `json:"rating_id"`
	TripID   uuid.UUID        `json:"trip_id"`
	Kind     enums.RatingKind `json:"kind"`
	RaterID  uuid.UUID        `json:"rater_id"`
	RateeID  uuid.UUID        `json:"ratee_id"`
	Score    int              `json:"score"`
}
