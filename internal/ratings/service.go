package ratings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/internal/trips"
	"github.com/angelmondragon/freightmarket-backend/pkg/db"
	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/freightmarket-backend/pkg/validate"
)

const maxDimensions = 8

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.Rating, error)
	ListForTrip(ctx context.Context, tripID uuid.UUID) ([]models.Rating, error)
	Summary(ctx context.Context, rateeID uuid.UUID) (Summary, error)
}

// SubmitInput is one participant rating the other after a completed trip.
// The rating kind follows from which side of the trip RaterID is on.
type SubmitInput struct {
	TripID     uuid.UUID      `json:"trip_id" validate:"required"`
	RaterID    uuid.UUID      `json:"rater_id" validate:"required"`
	Score      int            `json:"score" validate:"gte=1,lte=5"`
	Comment    string         `json:"comment" validate:"max=1000"`
	Dimensions map[string]int `json:"dimensions"`
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	trips  trips.Repository
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, tx txRunner, outbox outboxPublisher, tripRepo trips.Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ratings repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if tripRepo == nil {
		return nil, fmt.Errorf("trips repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox, trips: tripRepo, logg: logg, now: time.Now}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.Rating, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	dims, err := normalizeDimensions(input.Dimensions)
	if err != nil {
		return nil, err
	}

	var rating *models.Rating
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		trip, err := s.trips.WithTx(tx).FindByID(ctx, input.TripID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "trip not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trip")
		}
		if trip.Status != enums.TripStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only completed trips can be rated").
				WithDetails(map[string]any{"trip_status": trip.Status})
		}

		var kind enums.RatingKind
		var ratee uuid.UUID
		switch input.RaterID {
		case trip.OwnerID:
			kind, ratee = enums.RatingKindDriverByOwner, trip.DriverID
		case trip.DriverID:
			kind, ratee = enums.RatingKindOwnerByDriver, trip.OwnerID
		default:
			return pkgerrors.New(pkgerrors.CodeForbidden, "only trip participants can rate a trip")
		}

		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByTripAndKind(ctx, trip.ID, kind); err == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "trip already rated").
				WithDetails(map[string]any{"kind": kind})
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing rating")
		}

		rating = &models.Rating{
			TripID:     trip.ID,
			Kind:       kind,
			RaterID:    input.RaterID,
			RateeID:    ratee,
			Score:      input.Score,
			Dimensions: dims,
			CreatedAt:  s.now().UTC(),
		}
		if comment := strings.TrimSpace(input.Comment); comment != "" {
			rating.Comment = &comment
		}
		if err := repo.Create(ctx, rating); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "trip already rated")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create rating")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRatingSubmitted,
			AggregateType: enums.AggregateRating,
			AggregateID:   rating.ID,
			Actor:         &outbox.ActorRef{ActorID: input.RaterID},
			OccurredAt:    rating.CreatedAt,
			Data: payloads.RatingSubmittedEvent{
				RatingID: rating.ID,
				TripID:   trip.ID,
				Kind:     kind,
				RaterID:  input.RaterID,
				RateeID:  ratee,
				Score:    input.Score,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithTripID(ctx, rating.TripID.String()), map[string]any{
		"kind":  rating.Kind,
		"score": rating.Score,
	})
	s.logg.Info(logCtx, "rating submitted")
	return rating, nil
}

func (s *service) ListForTrip(ctx context.Context, tripID uuid.UUID) ([]models.Rating, error) {
	out, err := s.repo.ListForTrip(ctx, tripID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ratings")
	}
	return out, nil
}

func (s *service) Summary(ctx context.Context, rateeID uuid.UUID) (Summary, error) {
	if rateeID == uuid.Nil {
		return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "ratee id required")
	}
	out, err := s.repo.Summary(ctx, rateeID)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarize ratings")
	}
	return out, nil
}

// normalizeDimensions lower-cases keys and keeps every score in the 1..5 range.
func normalizeDimensions(in map[string]int) (models.RatingDimensions, error) {
	if len(in) == 0 {
		return nil, nil
	}
	if len(in) > maxDimensions {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many rating dimensions")
	}
	out := make(models.RatingDimensions, len(in))
	for name, score := range in {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || len(key) > 40 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid rating dimension").
				WithDetails(map[string]any{"dimension": name})
		}
		if score < 1 || score > 5 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "dimension score must be between 1 and 5").
				WithDetails(map[string]any{"dimension": key, "score": score})
		}
		out[key] = score
	}
	return out, nil
}
