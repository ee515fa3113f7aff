package bids

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

const siblingRejectReason = "another bid was accepted"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RequestLifecycle is the slice of the cargo service bidding needs.
type RequestLifecycle interface {
	GetTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.CargoRequest, error)
	AcceptTx(ctx context.Context, tx *gorm.DB, input cargo.AcceptInput) (*models.CargoRequest, error)
}

// TripAssigner creates the trip for an accepted bid.
type TripAssigner interface {
	AssignTx(ctx context.Context, tx *gorm.DB, request *models.CargoRequest, bid *models.Bid) (*models.Trip, error)
}

type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.Bid, error)
	Accept(ctx context.Context, input AcceptInput) (*AcceptResult, error)
	Reject(ctx context.Context, input RejectInput) (*models.Bid, error)
	Withdraw(ctx context.Context, input WithdrawInput) (*models.Bid, error)
	AssignDirect(ctx context.Context, input AssignDirectInput) (*AcceptResult, error)
	ListForRequest(ctx context.Context, requestID uuid.UUID) ([]models.Bid, error)
}

// SubmitInput is a driver's offer. ValidFor defaults to the configured bid
// validity. Currency defaults to the request currency and must match it.
type SubmitInput struct {
	RequestID uuid.UUID
	DriverID  uuid.UUID
	Amount    int64
	Currency  enums.Currency
	ValidFor  time.Duration
	Note      string
}

// AcceptInput is the owner's choice of bid.
type AcceptInput struct {
	BidID   uuid.UUID
	OwnerID uuid.UUID
}

type RejectInput struct {
	BidID   uuid.UUID
	OwnerID uuid.UUID
	Reason  string
}

type WithdrawInput struct {
	BidID    uuid.UUID
	DriverID uuid.UUID
}

// AssignDirectInput is an operator placing a driver on a request without a
// competitive bid.
type AssignDirectInput struct {
	RequestID  uuid.UUID
	DriverID   uuid.UUID
	OperatorID uuid.UUID
}

// AcceptResult is the state after a bid wins.
type AcceptResult struct {
	Bid     *models.Bid
	Request *models.CargoRequest
	Trip    *models.Trip
}

type service struct {
	repo            Repository
	tx              txRunner
	outbox          outboxPublisher
	requests        RequestLifecycle
	trips           TripAssigner
	defaultValidity time.Duration
	logg            *logger.Logger
	now             func() time.Time
}

func NewService(repo Repository, tx txRunner, outbox outboxPublisher, requests RequestLifecycle, trips TripAssigner, defaultValidity time.Duration, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("bids repository required")
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
	if trips == nil {
		return nil, fmt.Errorf("trip assigner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if defaultValidity <= 0 {
		defaultValidity = 24 * time.Hour
	}
	return &service{
		repo:            repo,
		tx:              tx,
		outbox:          outbox,
		requests:        requests,
		trips:           trips,
		defaultValidity: defaultValidity,
		logg:            logg,
		now:             time.Now,
	}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.Bid, error) {
	if input.RequestID == uuid.Nil || input.DriverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id and driver id required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid amount must be positive")
	}
	if input.ValidFor < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid validity must be positive")
	}
	validFor := input.ValidFor
	if validFor == 0 {
		validFor = s.defaultValidity
	}

	var bid *models.Bid
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := s.requests.GetTx(ctx, tx, input.RequestID)
		if err != nil {
			return err
		}
		if request.Status != enums.CargoRequestStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cargo request is not open for bids").
				WithDetails(map[string]any{"status": request.Status})
		}
		if request.OwnerID == input.DriverID {
			return pkgerrors.New(pkgerrors.CodeValidation, "owner cannot bid on their own request")
		}
		if input.Currency != "" && input.Currency != request.Currency {
			return pkgerrors.New(pkgerrors.CodeValidation, "bid currency must match request currency")
		}

		now := s.now().UTC()
		open, err := repo.HasOpenBid(ctx, request.ID, input.DriverID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open bids")
		}
		if open {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "driver already has an open bid on this request")
		}

		bid = &models.Bid{
			CargoRequestID: request.ID,
			DriverID:       input.DriverID,
			Amount:         input.Amount,
			Currency:       request.Currency,
			Status:         enums.BidStatusPending,
			ExpiresAt:      now.Add(validFor),
			Version:        1,
		}
		if note := strings.TrimSpace(input.Note); note != "" {
			bid.Note = &note
		}
		if err := repo.Create(ctx, bid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bid")
		}
		return s.emit(ctx, tx, bid, enums.EventBidSubmitted, &outbox.ActorRef{ActorID: input.DriverID, Role: "driver"}, "")
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithCargoRequestID(ctx, bid.CargoRequestID.String())
	s.logg.Info(s.logg.WithField(logCtx, "bid_id", bid.ID.String()), "bid submitted")
	return bid, nil
}

func (s *service) Accept(ctx context.Context, input AcceptInput) (*AcceptResult, error) {
	if input.BidID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid id required")
	}
	var result *AcceptResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		bid, err := s.loadBid(ctx, s.repo.WithTx(tx), input.BidID)
		if err != nil {
			return err
		}
		result, err = s.acceptTx(ctx, tx, bid, input.OwnerID, &outbox.ActorRef{ActorID: input.OwnerID, Role: "owner"})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// acceptTx makes bid the winner. The cargo request compare-and-swap runs first
// so a concurrent acceptance of a sibling bid fails before any bid row moves.
func (s *service) acceptTx(ctx context.Context, tx *gorm.DB, bid *models.Bid, ownerID uuid.UUID, actor *outbox.ActorRef) (*AcceptResult, error) {
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	if bid.Status != enums.BidStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "bid is no longer pending").
			WithDetails(map[string]any{"status": bid.Status})
	}
	if bid.IsExpired(now) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "bid has expired").
			WithDetails(map[string]any{"expires_at": bid.ExpiresAt})
	}

	request, err := s.requests.GetTx(ctx, tx, bid.CargoRequestID)
	if err != nil {
		return nil, err
	}
	if ownerID != uuid.Nil && request.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the request owner may accept bids")
	}

	request, err = s.requests.AcceptTx(ctx, tx, cargo.AcceptInput{
		RequestID:       request.ID,
		DriverID:        bid.DriverID,
		ExpectedVersion: request.Version,
		Actor:           actor,
	})
	if err != nil {
		return nil, err
	}

	ok, err := repo.CompareAndSwap(ctx, bid.ID, enums.BidStatusPending, bid.Version, map[string]any{
		"status":      enums.BidStatusAccepted,
		"accepted_at": now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept bid")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "bid changed concurrently")
	}
	accepted, err := s.loadBid(ctx, repo, bid.ID)
	if err != nil {
		return nil, err
	}

	if err := s.rejectSiblings(ctx, tx, accepted, now); err != nil {
		return nil, err
	}

	trip, err := s.trips.AssignTx(ctx, tx, request, accepted)
	if err != nil {
		return nil, err
	}

	if err := s.emit(ctx, tx, accepted, enums.EventBidAccepted, actor, ""); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithCargoRequestID(ctx, request.ID.String())
	logCtx = s.logg.WithTripID(logCtx, trip.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "bid_id", accepted.ID.String()), "bid accepted")
	return &AcceptResult{Bid: accepted, Request: request, Trip: trip}, nil
}

func (s *service) rejectSiblings(ctx context.Context, tx *gorm.DB, accepted *models.Bid, now time.Time) error {
	repo := s.repo.WithTx(tx)
	siblings, err := repo.ListPendingForRequest(ctx, accepted.CargoRequestID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sibling bids")
	}
	reason := siblingRejectReason
	for i := range siblings {
		sibling := &siblings[i]
		if sibling.ID == accepted.ID {
			continue
		}
		ok, err := repo.CompareAndSwap(ctx, sibling.ID, enums.BidStatusPending, sibling.Version, map[string]any{
			"status":        enums.BidStatusRejected,
			"rejected_at":   now,
			"reject_reason": reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject sibling bid")
		}
		if !ok {
			// withdrawn or rejected in the meantime
			continue
		}
		sibling.Status = enums.BidStatusRejected
		sibling.RejectReason = &reason
		if err := s.emit(ctx, tx, sibling, enums.EventBidRejected, nil, reason); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) Reject(ctx context.Context, input RejectInput) (*models.Bid, error) {
	reason := strings.TrimSpace(input.Reason)
	var out *models.Bid
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bid, err := s.loadBid(ctx, repo, input.BidID)
		if err != nil {
			return err
		}
		request, err := s.requests.GetTx(ctx, tx, bid.CargoRequestID)
		if err != nil {
			return err
		}
		if request.OwnerID != input.OwnerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the request owner may reject bids")
		}
		if bid.Status != enums.BidStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "bid is no longer pending")
		}
		now := s.now().UTC()
		if bid.IsExpired(now) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "bid has expired")
		}

		updates := map[string]any{"status": enums.BidStatusRejected, "rejected_at": now}
		if reason != "" {
			updates["reject_reason"] = reason
		}
		ok, err := repo.CompareAndSwap(ctx, bid.ID, bid.Status, bid.Version, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject bid")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "bid changed concurrently")
		}
		out, err = s.loadBid(ctx, repo, bid.ID)
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, out, enums.EventBidRejected, &outbox.ActorRef{ActorID: input.OwnerID, Role: "owner"}, reason)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Withdraw(ctx context.Context, input WithdrawInput) (*models.Bid, error) {
	var out *models.Bid
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bid, err := s.loadBid(ctx, repo, input.BidID)
		if err != nil {
			return err
		}
		if bid.DriverID != input.DriverID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the bidding driver may withdraw a bid")
		}
		if bid.Status != enums.BidStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "bid is no longer pending")
		}
		ok, err := repo.CompareAndSwap(ctx, bid.ID, bid.Status, bid.Version, map[string]any{
			"status":       enums.BidStatusWithdrawn,
			"withdrawn_at": s.now().UTC(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdraw bid")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "bid changed concurrently")
		}
		out, err = s.loadBid(ctx, repo, bid.ID)
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, out, enums.EventBidWithdrawn, &outbox.ActorRef{ActorID: input.DriverID, Role: "driver"}, "")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AssignDirect records a system bid at the request price and accepts it, so
// bid acceptance stays the only path that creates a trip.
func (s *service) AssignDirect(ctx context.Context, input AssignDirectInput) (*AcceptResult, error) {
	if input.RequestID == uuid.Nil || input.DriverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id and driver id required")
	}
	if input.OperatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "operator identity missing")
	}

	actor := &outbox.ActorRef{ActorID: input.OperatorID, Role: "operator"}
	var result *AcceptResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		request, err := s.requests.GetTx(ctx, tx, input.RequestID)
		if err != nil {
			return err
		}
		if request.Status != enums.CargoRequestStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cargo request is not open for assignment")
		}
		if request.OwnerID == input.DriverID {
			return pkgerrors.New(pkgerrors.CodeValidation, "owner cannot carry their own cargo")
		}

		bid := &models.Bid{
			CargoRequestID: request.ID,
			DriverID:       input.DriverID,
			Amount:         request.PriceAmount,
			Currency:       request.Currency,
			Status:         enums.BidStatusPending,
			IsSystem:       true,
			ExpiresAt:      s.now().UTC().Add(s.defaultValidity),
			Version:        1,
		}
		if err := s.repo.WithTx(tx).Create(ctx, bid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create system bid")
		}
		if err := s.emit(ctx, tx, bid, enums.EventBidSubmitted, actor, ""); err != nil {
			return err
		}
		result, err = s.acceptTx(ctx, tx, bid, uuid.Nil, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ListForRequest(ctx context.Context, requestID uuid.UUID) ([]models.Bid, error) {
	bids, err := s.repo.ListForRequest(ctx, requestID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bids")
	}
	return bids, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, bid *models.Bid, eventType enums.OutboxEventType, actor *outbox.ActorRef, reason string) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateBid,
		AggregateID:   bid.ID,
		Actor:         actor,
		OccurredAt:    s.now().UTC(),
		Data: payloads.BidEvent{
			BidID:          bid.ID,
			CargoRequestID: bid.CargoRequestID,
			DriverID:       bid.DriverID,
			Amount:         bid.Amount,
			Currency:       bid.Currency,
			Status:         bid.Status,
			ExpiresAt:      bid.ExpiresAt,
			Reason:         reason,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit bid event")
	}
	return nil
}

func (s *service) loadBid(ctx context.Context, repo Repository, id uuid.UUID) (*models.Bid, error) {
	bid, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bid not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bid")
	}
	return bid, nil
}
