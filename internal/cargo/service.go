package cargo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/freightmarket-backend/pkg/validate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns the cargo request state machine. The Tx variants let bids and
// trips move a request inside their own transaction.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.CargoRequest, error)
	Update(ctx context.Context, input UpdateInput) (*models.CargoRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.CargoRequest, error)
	GetTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.CargoRequest, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, status *enums.CargoRequestStatus, limit int) ([]models.CargoRequest, error)

	Accept(ctx context.Context, input AcceptInput) (*models.CargoRequest, error)
	AcceptTx(ctx context.Context, tx *gorm.DB, input AcceptInput) (*models.CargoRequest, error)
	PickUp(ctx context.Context, input TransitionInput) (*models.CargoRequest, error)
	PickUpTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.CargoRequest, error)
	Deliver(ctx context.Context, input TransitionInput) (*models.CargoRequest, error)
	DeliverTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.CargoRequest, error)
	Cancel(ctx context.Context, input TransitionInput) (*models.CargoRequest, error)
	CancelTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.CargoRequest, error)
	Fail(ctx context.Context, input TransitionInput) (*models.CargoRequest, error)
	FailTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.CargoRequest, error)
}

// CreateInput is a new shipment as posted by its owner. Amounts are minor units.
type CreateInput struct {
	OwnerID         uuid.UUID         `json:"owner_id" validate:"required"`
	CargoType       enums.CargoType   `json:"cargo_type" validate:"required"`
	VehicleType     enums.VehicleType `json:"vehicle_type" validate:"required"`
	Description     string            `json:"description" validate:"max=2000"`
	WeightKg        decimal.Decimal   `json:"weight_kg"`
	VolumeM3        *decimal.Decimal  `json:"volume_m3"`
	PickupAddress   string            `json:"pickup_address" validate:"required,max=500"`
	PickupLat       float64           `json:"pickup_lat" validate:"gte=-90,lte=90"`
	PickupLng       float64           `json:"pickup_lng" validate:"gte=-180,lte=180"`
	PickupAt        time.Time         `json:"pickup_at" validate:"required"`
	DeliveryAddress string            `json:"delivery_address" validate:"required,max=500"`
	DeliveryLat     float64           `json:"delivery_lat" validate:"gte=-90,lte=90"`
	DeliveryLng     float64           `json:"delivery_lng" validate:"gte=-180,lte=180"`
	DeliveryAt      time.Time         `json:"delivery_at" validate:"required,gtfield=PickupAt"`
	PriceAmount     int64             `json:"price_amount" validate:"gt=0"`
	Currency        enums.Currency    `json:"currency" validate:"required"`
}

// UpdateInput edits a pending request. Nil fields are left unchanged.
type UpdateInput struct {
	RequestID       uuid.UUID
	OwnerID         uuid.UUID
	ExpectedVersion int
	Description     *string
	WeightKg        *decimal.Decimal
	VolumeM3        *decimal.Decimal
	PickupAt        *time.Time
	DeliveryAt      *time.Time
	PriceAmount     *int64
}

// AcceptInput binds a driver to a pending request. ExpectedVersion, when set,
// must match the version the caller read.
type AcceptInput struct {
	RequestID       uuid.UUID
	DriverID        uuid.UUID
	ExpectedVersion int
	Actor           *outbox.ActorRef
}

// TransitionInput drives the remaining transitions. Reason is required for
// Cancel and Fail.
type TransitionInput struct {
	RequestID uuid.UUID
	Reason    string
	Actor     *outbox.ActorRef
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cargo repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox, logg: logg, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.CargoRequest, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	request := &models.CargoRequest{
		OwnerID:         input.OwnerID,
		CargoType:       input.CargoType,
		VehicleType:     input.VehicleType,
		Description:     strings.TrimSpace(input.Description),
		WeightKg:        input.WeightKg,
		VolumeM3:        input.VolumeM3,
		Status:          enums.CargoRequestStatusPending,
		PickupAddress:   strings.TrimSpace(input.PickupAddress),
		PickupLat:       input.PickupLat,
		PickupLng:       input.PickupLng,
		PickupAt:        input.PickupAt.UTC(),
		DeliveryAddress: strings.TrimSpace(input.DeliveryAddress),
		DeliveryLat:     input.DeliveryLat,
		DeliveryLng:     input.DeliveryLng,
		DeliveryAt:      input.DeliveryAt.UTC(),
		PriceAmount:     input.PriceAmount,
		Currency:        input.Currency,
		Version:         1,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cargo request")
		}
		return s.emit(ctx, tx, request, enums.EventCargoRequestCreated, &outbox.ActorRef{ActorID: input.OwnerID, Role: "owner"}, "")
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithCargoRequestID(ctx, request.ID.String()), "cargo request created")
	return request, nil
}

func (s *service) Update(ctx context.Context, input UpdateInput) (*models.CargoRequest, error) {
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}

	var updated *models.CargoRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := s.load(ctx, repo, input.RequestID)
		if err != nil {
			return err
		}
		if request.OwnerID != input.OwnerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner may edit a cargo request")
		}
		if request.Status != enums.CargoRequestStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cargo request can only be edited while pending").
				WithDetails(map[string]any{"status": request.Status})
		}
		if input.ExpectedVersion > 0 && input.ExpectedVersion != request.Version {
			return pkgerrors.New(pkgerrors.CodeConflict, "cargo request was modified")
		}

		updates, err := applyEdits(request, input)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			updated = request
			return nil
		}

		ok, err := repo.CompareAndSwap(ctx, request.ID, request.Status, request.Version, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cargo request")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "cargo request was modified")
		}
		updated, err = s.load(ctx, repo, request.ID)
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, updated, enums.EventCargoRequestUpdated, &outbox.ActorRef{ActorID: input.OwnerID, Role: "owner"}, "")
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.CargoRequest, error) {
	return s.load(ctx, s.repo, id)
}

func (s *service) GetTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.CargoRequest, error) {
	return s.load(ctx, s.repo.WithTx(tx), id)
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID, status *enums.CargoRequestStatus, limit int) ([]models.CargoRequest, error) {
	requests, err := s.repo.ListByOwner(ctx, ownerID, status, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cargo requests")
	}
	return requests, nil
}

func (s *service) Accept(ctx context.Context, input AcceptInput) (*models.CargoRequest, error) {
	var out *models.CargoRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		out, err = s.AcceptTx(ctx, tx, input)
		return err
	})
	return out, err
}

// AcceptTx is the compare-and-swap that decides which bid wins a request.
// Losing the swap returns CodeConflict.
func (s *service) AcceptTx(ctx context.Context, tx *gorm.DB, input AcceptInput) (*models.CargoRequest, error) {
	if input.DriverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver id required")
	}
	return s.transition(ctx, tx, input.RequestID, input.ExpectedVersion, transition{
		from:  []enums.CargoRequestStatus{enums.CargoRequestStatusPending},
		to:    enums.CargoRequestStatusAccepted,
		event: enums.EventCargoRequestAccepted,
		stamp: "accepted_at",
		actor: input.Actor,
		check: func(request *models.CargoRequest) error {
			if request.OwnerID == input.DriverID {
				return pkgerrors.New(pkgerrors.CodeValidation, "owner cannot carry their own cargo")
			}
			return nil
		},
		extra: map[string]any{"driver_id": input.DriverID},
	})
}

func (s *service) PickUp(ctx context.Context, input TransitionInput) (*models.CargoRequest, error) {
	return s.inTx(ctx, input, s.PickUpTx)
}

func (s *service) PickUpTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.CargoRequest, error) {
	return s.transition(ctx, tx, input.RequestID, 0, transition{
		from:  []enums.CargoRequestStatus{enums.CargoRequestStatusAccepted},
		to:    enums.CargoRequestStatusPickedUp,
		event: enums.EventCargoRequestPickedUp,
		stamp: "picked_up_at",
		actor: input.Actor,
	})
}

func (s *service) Deliver(ctx context.Context, input TransitionInput) (*models.CargoRequest, error) {
	return s.inTx(ctx, input, s.DeliverTx)
}

func (s *service) DeliverTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.CargoRequest, error) {
	return s.transition(ctx, tx, input.RequestID, 0, transition{
		from:  []enums.CargoRequestStatus{enums.CargoRequestStatusPickedUp},
		to:    enums.CargoRequestStatusDelivered,
		event: enums.EventCargoRequestDelivered,
		stamp: "delivered_at",
		actor: input.Actor,
	})
}

func (s *service) Cancel(ctx context.Context, input TransitionInput) (*models.CargoRequest, error) {
	return s.inTx(ctx, input, s.CancelTx)
}

func (s *service) CancelTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.CargoRequest, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancel reason required")
	}
	return s.transition(ctx, tx, input.RequestID, 0, transition{
		from: []enums.CargoRequestStatus{
			enums.CargoRequestStatusPending,
			enums.CargoRequestStatusAccepted,
			enums.CargoRequestStatusPickedUp,
		},
		to:     enums.CargoRequestStatusCancelled,
		event:  enums.EventCargoRequestCancelled,
		stamp:  "cancelled_at",
		actor:  input.Actor,
		reason: reason,
		check:  s.withoutOpenTrip(ctx, tx),
		extra:  map[string]any{"cancel_reason": reason},
	})
}

func (s *service) Fail(ctx context.Context, input TransitionInput) (*models.CargoRequest, error) {
	return s.inTx(ctx, input, s.FailTx)
}

func (s *service) FailTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.CargoRequest, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason required")
	}
	return s.transition(ctx, tx, input.RequestID, 0, transition{
		from: []enums.CargoRequestStatus{
			enums.CargoRequestStatusPending,
			enums.CargoRequestStatusAccepted,
			enums.CargoRequestStatusPickedUp,
		},
		to:     enums.CargoRequestStatusFailed,
		event:  enums.EventCargoRequestFailed,
		stamp:  "failed_at",
		actor:  input.Actor,
		reason: reason,
		check:  s.withoutOpenTrip(ctx, tx),
		extra:  map[string]any{"failure_reason": reason},
	})
}

// withoutOpenTrip keeps a request from ending underneath a live trip. Such a
// request is cancelled through the trip, which cancels the request with it.
func (s *service) withoutOpenTrip(ctx context.Context, tx *gorm.DB) func(*models.CargoRequest) error {
	return func(request *models.CargoRequest) error {
		open, err := s.repo.WithTx(tx).HasOpenTrip(ctx, request.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open trip")
		}
		if open {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cargo request has an open trip, cancel the trip instead").
				WithDetails(map[string]any{"status": request.Status})
		}
		return nil
	}
}

type transition struct {
	from   []enums.CargoRequestStatus
	to     enums.CargoRequestStatus
	event  enums.OutboxEventType
	stamp  string
	actor  *outbox.ActorRef
	reason string
	check  func(*models.CargoRequest) error
	extra  map[string]any
}

func (s *service) inTx(ctx context.Context, input TransitionInput, fn func(context.Context, *gorm.DB, TransitionInput) (*models.CargoRequest, error)) (*models.CargoRequest, error) {
	var out *models.CargoRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		out, err = fn(ctx, tx, input)
		return err
	})
	return out, err
}

func (s *service) transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion int, t transition) (*models.CargoRequest, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for cargo transition")
	}
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}

	repo := s.repo.WithTx(tx)
	request, err := s.load(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if !containsStatus(t.from, request.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move cargo request from %s to %s", request.Status, t.to)).
			WithDetails(map[string]any{"from": request.Status, "to": t.to})
	}
	if expectedVersion > 0 && expectedVersion != request.Version {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cargo request was modified")
	}
	if t.check != nil {
		if err := t.check(request); err != nil {
			return nil, err
		}
	}

	updates := map[string]any{
		"status": t.to,
		t.stamp:  s.now().UTC(),
	}
	for k, v := range t.extra {
		updates[k] = v
	}
	ok, err := repo.CompareAndSwap(ctx, request.ID, request.Status, request.Version, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cargo request status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cargo request changed concurrently")
	}

	updated, err := s.load(ctx, repo, request.ID)
	if err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, updated, t.event, t.actor, t.reason); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithCargoRequestID(ctx, updated.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": string(request.Status), "to": string(t.to)})
	s.logg.Info(logCtx, "cargo request transitioned")
	return updated, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, request *models.CargoRequest, eventType enums.OutboxEventType, actor *outbox.ActorRef, reason string) error {
	occurredAt := s.now().UTC()
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateCargoRequest,
		AggregateID:   request.ID,
		Actor:         actor,
		OccurredAt:    occurredAt,
		Data: payloads.CargoRequestEvent{
			CargoRequestID: request.ID,
			OwnerID:        request.OwnerID,
			DriverID:       request.DriverID,
			Status:         request.Status,
			PriceAmount:    request.PriceAmount,
			Currency:       request.Currency,
			Reason:         reason,
			OccurredAt:     occurredAt,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit cargo request event")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.CargoRequest, error) {
	request, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cargo request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cargo request")
	}
	return request, nil
}

func validateCreate(input CreateInput) error {
	if err := validate.Struct(input); err != nil {
		return err
	}
	details := map[string]string{}
	if !input.CargoType.IsValid() {
		details["cargo_type"] = "is invalid"
	}
	if !input.VehicleType.IsValid() {
		details["vehicle_type"] = "is invalid"
	}
	if !input.Currency.IsValid() {
		details["currency"] = "is invalid"
	}
	if !input.WeightKg.IsPositive() {
		details["weight_kg"] = "must be greater than 0"
	}
	if input.VolumeM3 != nil && !input.VolumeM3.IsPositive() {
		details["volume_m3"] = "must be greater than 0"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}

func applyEdits(request *models.CargoRequest, input UpdateInput) (map[string]any, error) {
	updates := map[string]any{}
	pickupAt, deliveryAt := request.PickupAt, request.DeliveryAt

	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.WeightKg != nil {
		if !input.WeightKg.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "weight must be greater than 0")
		}
		updates["weight_kg"] = *input.WeightKg
	}
	if input.VolumeM3 != nil {
		if !input.VolumeM3.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "volume must be greater than 0")
		}
		updates["volume_m3"] = *input.VolumeM3
	}
	if input.PriceAmount != nil {
		if *input.PriceAmount <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than 0")
		}
		updates["price_amount"] = *input.PriceAmount
	}
	if input.PickupAt != nil {
		pickupAt = input.PickupAt.UTC()
		updates["pickup_at"] = pickupAt
	}
	if input.DeliveryAt != nil {
		deliveryAt = input.DeliveryAt.UTC()
		updates["delivery_at"] = deliveryAt
	}
	if !deliveryAt.After(pickupAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery time must be after pickup time")
	}
	return updates, nil
}

func containsStatus(set []enums.CargoRequestStatus, status enums.CargoRequestStatus) bool {
	for _, candidate := range set {
		if candidate == status {
			return true
		}
	}
	return false
}
