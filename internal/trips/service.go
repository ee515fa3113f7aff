package trips

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/internal/cargo"
	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RequestLifecycle moves the linked cargo request as the trip progresses.
type RequestLifecycle interface {
	GetTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.CargoRequest, error)
	PickUpTx(ctx context.Context, tx *gorm.DB, input cargo.TransitionInput) (*models.CargoRequest, error)
	DeliverTx(ctx context.Context, tx *gorm.DB, input cargo.TransitionInput) (*models.CargoRequest, error)
	CancelTx(ctx context.Context, tx *gorm.DB, input cargo.TransitionInput) (*models.CargoRequest, error)
}

// PaymentInitiator starts settlement for a completed trip.
type PaymentInitiator interface {
	InitiateForTrip(ctx context.Context, tripID uuid.UUID) (*models.Payment, error)
}

type Service interface {
	AssignTx(ctx context.Context, tx *gorm.DB, request *models.CargoRequest, bid *models.Bid) (*models.Trip, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	GetTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Trip, error)
	ListForDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Trip, error)

	Accept(ctx context.Context, input TransitionInput) (*models.Trip, error)
	Reject(ctx context.Context, input TransitionInput) (*models.Trip, error)
	Start(ctx context.Context, input TransitionInput) (*models.Trip, error)
	StartLoading(ctx context.Context, input TransitionInput) (*models.Trip, error)
	FinishLoading(ctx context.Context, input TransitionInput) (*models.Trip, error)
	StartTransit(ctx context.Context, input TransitionInput) (*models.Trip, error)
	Arrive(ctx context.Context, input TransitionInput) (*models.Trip, error)
	Deliver(ctx context.Context, input TransitionInput) (*models.Trip, error)
	Complete(ctx context.Context, input CompleteInput) (*CompleteResult, error)
	Cancel(ctx context.Context, input TransitionInput) (*models.Trip, error)
}

// TransitionInput identifies the trip and the participant acting on it.
// Reason is required for Reject and Cancel.
type TransitionInput struct {
	TripID  uuid.UUID
	ActorID uuid.UUID
	Reason  string
}

// CompleteInput closes a delivered trip. ActualPrice defaults to the agreed price.
type CompleteInput struct {
	TripID      uuid.UUID
	ActorID     uuid.UUID
	ActualPrice *int64
}

// CompleteResult carries the completed trip and, when settlement could be
// started, its payment.
type CompleteResult struct {
	Trip    *models.Trip
	Payment *models.Payment
}

type party int

const (
	partyDriver party = iota
	partyParticipant
)

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	requests RequestLifecycle
	payments PaymentInitiator
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the trip lifecycle. payments may be nil, in which case
// Complete only records the completion.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, requests RequestLifecycle, payments PaymentInitiator, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("trips repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if requests == nil {
		return nil, fmt.Errorf("cargo request lifecycle required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   outbox,
		requests: requests,
		payments: payments,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// AssignTx creates the trip for an accepted bid inside the acceptance transaction.
func (s *service) AssignTx(ctx context.Context, tx *gorm.DB, request *models.CargoRequest, bid *models.Bid) (*models.Trip, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for trip assignment")
	}
	if request == nil || bid == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request and bid required")
	}
	if bid.CargoRequestID != request.ID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid does not belong to request")
	}

	now := s.now().UTC()
	bidID := bid.ID
	trip := &models.Trip{
		TripNumber:     tripNumber(now),
		CargoRequestID: request.ID,
		BidID:          &bidID,
		DriverID:       bid.DriverID,
		OwnerID:        request.OwnerID,
		VehicleType:    request.VehicleType,
		CargoType:      request.CargoType,
		Status:         enums.TripStatusAssigned,
		AgreedPrice:    bid.Amount,
		Currency:       bid.Currency,
		AssignedAt:     now,
		Version:        1,
	}
	if err := s.repo.WithTx(tx).Create(ctx, trip); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create trip")
	}
	if err := s.emit(ctx, tx, trip, enums.EventTripAssigned, "", nil, ""); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithTripID(ctx, trip.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "trip_number", trip.TripNumber), "trip assigned")
	return trip, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	return s.load(ctx, s.repo, id)
}

func (s *service) GetTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Trip, error) {
	return s.load(ctx, s.repo.WithTx(tx), id)
}

func (s *service) ListForDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Trip, error) {
	trips, err := s.repo.ListForDriver(ctx, driverID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list trips")
	}
	return trips, nil
}

func (s *service) Accept(ctx context.Context, input TransitionInput) (*models.Trip, error) {
	return s.step(ctx, input, step{
		from:  enums.TripStatusAssigned,
		to:    enums.TripStatusAccepted,
		stamp: "accepted_at",
		who:   partyDriver,
	})
}

// Reject is terminal for the trip. The cargo request stays accepted so the
// owner decides whether to cancel and repost.
func (s *service) Reject(ctx context.Context, input TransitionInput) (*models.Trip, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reject reason required")
	}
	return s.step(ctx, input, step{
		from:   enums.TripStatusAssigned,
		to:     enums.TripStatusRejected,
		stamp:  "rejected_at",
		who:    partyDriver,
		event:  enums.EventTripRejected,
		reason: reason,
		extra:  map[string]any{"reject_reason": reason},
	})
}

func (s *service) Start(ctx context.Context, input TransitionInput) (*models.Trip, error) {
	return s.step(ctx, input, step{from: enums.TripStatusAccepted, to: enums.TripStatusStarted, stamp: "started_at", who: partyDriver})
}

func (s *service) StartLoading(ctx context.Context, input TransitionInput) (*models.Trip, error) {
	return s.step(ctx, input, step{from: enums.TripStatusStarted, to: enums.TripStatusLoading, stamp: "loading_started_at", who: partyDriver})
}

// FinishLoading marks the cargo as picked up.
func (s *service) FinishLoading(ctx context.Context, input TransitionInput) (*models.Trip, error) {
	return s.step(ctx, input, step{
		from:  enums.TripStatusLoading,
		to:    enums.TripStatusLoaded,
		stamp: "loaded_at",
		who:   partyDriver,
		after: func(ctx context.Context, tx *gorm.DB, trip *models.Trip, actor *outbox.ActorRef) error {
			_, err := s.requests.PickUpTx(ctx, tx, cargo.TransitionInput{RequestID: trip.CargoRequestID, Actor: actor})
			return err
		},
	})
}

func (s *service) StartTransit(ctx context.Context, input TransitionInput) (*models.Trip, error) {
	return s.step(ctx, input, step{from: enums.TripStatusLoaded, to: enums.TripStatusInTransit, stamp: "in_transit_at", who: partyDriver})
}

func (s *service) Arrive(ctx context.Context, input TransitionInput) (*models.Trip, error) {
	return s.step(ctx, input, step{from: enums.TripStatusInTransit, to: enums.TripStatusArrived, stamp: "arrived_at", who: partyDriver})
}

// Deliver marks the cargo request delivered in the same transaction.
func (s *service) Deliver(ctx context.Context, input TransitionInput) (*models.Trip, error) {
	return s.step(ctx, input, step{
		from:  enums.TripStatusArrived,
		to:    enums.TripStatusDelivered,
		stamp: "delivered_at",
		who:   partyDriver,
		event: enums.EventTripDelivered,
		after: func(ctx context.Context, tx *gorm.DB, trip *models.Trip, actor *outbox.ActorRef) error {
			_, err := s.requests.DeliverTx(ctx, tx, cargo.TransitionInput{RequestID: trip.CargoRequestID, Actor: actor})
			return err
		},
	})
}

// Complete commits the trip and then starts settlement. A settlement failure
// returns the completed trip together with the error; the payment can be
// started again later.
func (s *service) Complete(ctx context.Context, input CompleteInput) (*CompleteResult, error) {
	if input.ActualPrice != nil && *input.ActualPrice <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actual price must be positive")
	}
	extra := map[string]any{}
	if input.ActualPrice != nil {
		extra["actual_price"] = *input.ActualPrice
	}
	trip, err := s.step(ctx, TransitionInput{TripID: input.TripID, ActorID: input.ActorID}, step{
		from:  enums.TripStatusDelivered,
		to:    enums.TripStatusCompleted,
		stamp: "completed_at",
		who:   partyParticipant,
		event: enums.EventTripCompleted,
		extra: extra,
		prepare: func(trip *models.Trip) {
			if trip.ActualPrice == nil && input.ActualPrice == nil {
				extra["actual_price"] = trip.AgreedPrice
			}
		},
	})
	if err != nil {
		return nil, err
	}

	result := &CompleteResult{Trip: trip}
	if s.payments == nil {
		return result, nil
	}
	payment, err := s.payments.InitiateForTrip(ctx, trip.ID)
	if err != nil {
		s.logg.Error(s.logg.WithTripID(ctx, trip.ID.String()), "payment initiation failed after trip completion", err)
		return result, err
	}
	result.Payment = payment
	return result, nil
}

// Cancel is allowed until the trip is delivered and cancels the cargo request too.
func (s *service) Cancel(ctx context.Context, input TransitionInput) (*models.Trip, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancel reason required")
	}
	return s.step(ctx, input, step{
		cancellable: true,
		to:          enums.TripStatusCancelled,
		stamp:       "cancelled_at",
		who:         partyParticipant,
		event:       enums.EventTripCancelled,
		reason:      reason,
		extra:       map[string]any{"cancel_reason": reason},
		after: func(ctx context.Context, tx *gorm.DB, trip *models.Trip, actor *outbox.ActorRef) error {
			request, err := s.requests.GetTx(ctx, tx, trip.CargoRequestID)
			if err != nil {
				return err
			}
			if endedEarly(request.Status) {
				return nil
			}
			_, err = s.requests.CancelTx(ctx, tx, cargo.TransitionInput{RequestID: trip.CargoRequestID, Reason: reason, Actor: actor})
			return err
		},
	})
}

// step describes one transition. Each trip transition has exactly one legal
// predecessor except cancel, which accepts any cancellable state.
type step struct {
	from        enums.TripStatus
	cancellable bool
	to          enums.TripStatus
	stamp       string
	who         party
	event       enums.OutboxEventType
	reason      string
	extra       map[string]any
	prepare     func(*models.Trip)
	after       func(ctx context.Context, tx *gorm.DB, trip *models.Trip, actor *outbox.ActorRef) error
}

func (s *service) step(ctx context.Context, input TransitionInput, st step) (*models.Trip, error) {
	if input.TripID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trip id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	var out *models.Trip
	var from enums.TripStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		trip, err := s.load(ctx, repo, input.TripID)
		if err != nil {
			return err
		}
		from = trip.Status

		role, err := authorize(trip, input.ActorID, st.who)
		if err != nil {
			return err
		}
		legal := trip.Status == st.from
		if st.cancellable {
			legal = trip.Status.IsCancellable()
		}
		if !legal {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move trip from %s to %s", trip.Status, st.to)).
				WithDetails(map[string]any{"from": trip.Status, "to": st.to})
		}
		if !st.cancellable {
			if err := s.requireLiveRequest(ctx, tx, trip, st.to); err != nil {
				return err
			}
		}
		if st.prepare != nil {
			st.prepare(trip)
		}

		updates := map[string]any{
			"status": st.to,
			st.stamp: nextStamp(s.now(), trip.PhaseTimestamps()),
		}
		for k, v := range st.extra {
			updates[k] = v
		}
		ok, err := repo.CompareAndSwap(ctx, trip.ID, trip.Status, trip.Version, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update trip status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "trip changed concurrently")
		}

		out, err = s.load(ctx, repo, trip.ID)
		if err != nil {
			return err
		}
		actor := &outbox.ActorRef{ActorID: input.ActorID, Role: role}
		if st.after != nil {
			if err := st.after(ctx, tx, out, actor); err != nil {
				return err
			}
		}
		event := st.event
		if event == "" {
			event = enums.EventTripStatusChanged
		}
		return s.emit(ctx, tx, out, event, from, actor, st.reason)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithTripID(ctx, out.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": string(from), "to": string(out.Status)})
	s.logg.Info(logCtx, "trip transitioned")
	return out, nil
}

// requireLiveRequest stops a trip from moving forward once its request was
// cancelled or failed. Such a trip can only be cancelled.
func (s *service) requireLiveRequest(ctx context.Context, tx *gorm.DB, trip *models.Trip, to enums.TripStatus) error {
	request, err := s.requests.GetTx(ctx, tx, trip.CargoRequestID)
	if err != nil {
		return err
	}
	if endedEarly(request.Status) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move trip to %s, cargo request is %s", to, request.Status)).
			WithDetails(map[string]any{"request_status": request.Status})
	}
	return nil
}

func endedEarly(status enums.CargoRequestStatus) bool {
	return status == enums.CargoRequestStatusCancelled || status == enums.CargoRequestStatusFailed
}

func authorize(trip *models.Trip, actorID uuid.UUID, who party) (string, error) {
	switch {
	case actorID == trip.DriverID:
		return "driver", nil
	case who == partyParticipant && actorID == trip.OwnerID:
		return "owner", nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "actor is not allowed to act on this trip")
	}
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, trip *models.Trip, eventType enums.OutboxEventType, previous enums.TripStatus, actor *outbox.ActorRef, reason string) error {
	occurredAt := s.now().UTC()
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTrip,
		AggregateID:   trip.ID,
		Actor:         actor,
		OccurredAt:    occurredAt,
		Data: payloads.TripEvent{
			TripID:         trip.ID,
			TripNumber:     trip.TripNumber,
			CargoRequestID: trip.CargoRequestID,
			DriverID:       trip.DriverID,
			OwnerID:        trip.OwnerID,
			PreviousStatus: previous,
			Status:         trip.Status,
			AgreedPrice:    trip.AgreedPrice,
			ActualPrice:    trip.ActualPrice,
			Currency:       trip.Currency,
			Reason:         reason,
			OccurredAt:     occurredAt,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit trip event")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Trip, error) {
	trip, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "trip not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trip")
	}
	return trip, nil
}
