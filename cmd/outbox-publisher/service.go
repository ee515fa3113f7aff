package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	Sink          sink
	Repository    outboxRepository
	Registry      registryResolver
	DLQRepository dlqRepository
	Metrics       *metrics.OutboxMetrics
}

// Service drains outbox_events into the configured sink. Each batch runs in
// one transaction so rows locked by this replica are not seen by others.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	repo        outboxRepository
	sink        sink
	registry    registryResolver
	dlq         dlqRepository
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Config == nil:
		return nil, errors.New("config is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Sink == nil:
		return nil, errors.New("event sink is required")
	case p.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	s := &Service{
		logg:        p.Logger,
		db:          p.DB,
		repo:        p.Repository,
		sink:        p.Sink,
		registry:    p.Registry,
		dlq:         p.DLQRepository,
		metrics:     p.Metrics,
		batchSize:   p.Config.Outbox.BatchSize,
		maxAttempts: p.Config.Outbox.MaxAttempts,
		poll:        time.Duration(p.Config.Outbox.PollIntervalMS) * time.Millisecond,
		now:         time.Now,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.poll <= 0 {
		s.poll = defaultPollInterval
	}
	return s, nil
}

func (s *Service) checkDependencies(ctx context.Context) error {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{s.sink.Name(), s.sink.Ping},
	}
	for _, p := range checks {
		if err := p.ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", p.name), "outbox.dependency_down", err)
			return fmt.Errorf("%s ping: %w", p.name, err)
		}
	}
	return nil
}

// Run polls until ctx is canceled. A failed batch backs off exponentially up
// to maxBackoff; a full batch is followed immediately by the next one.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "sink", s.sink.Name()), "outbox.publisher_ready")

	wait := s.poll
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		busy, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			wait = nextBackoff(wait, s.poll, maxBackoff)
		case busy:
			wait = s.poll
			continue
		default:
			wait = s.poll
		}
		if err := sleepCtx(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// disposition is what happened to one row within a batch.
type disposition int

const (
	delivered disposition = iota
	retryLater
	deadLettered
)

// processBatch reports whether any rows were fetched.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	started := s.now()
	fetched := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize)
		if err != nil {
			return err
		}
		fetched = len(events)
		for _, event := range events {
			if _, err := s.handle(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if fetched > 0 {
		s.metrics.ObserveBatch(s.now().Sub(started))
	}
	return fetched > 0, err
}

// handle publishes one row and records the outcome. Only bookkeeping
// failures are returned; they abort the batch transaction.
func (s *Service) handle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (disposition, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return deadLettered, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, "")
	}
	topic := resolved.Descriptor.Topic
	if topic == "" {
		err := fmt.Errorf("no topic configured for %s", event.EventType)
		return deadLettered, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonUnroutable, err, "")
	}

	logCtx := s.logg.WithFields(ctx, eventFields(event, resolved.Envelope.EventID, topic))
	pubErr := s.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return delivered, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.Delivered(topic)
		s.logg.Debug(logCtx, "outbox.delivered")
		return delivered, nil
	}

	var permanent registry.NonRetryableError
	if errors.As(pubErr, &permanent) {
		return deadLettered, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, pubErr, topic)
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		exhausted := fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, pubErr)
		return deadLettered, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, exhausted, topic)
	}

	s.logg.Warn(s.logg.WithField(logCtx, "error", pubErr.Error()), "outbox.publish_retry")
	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return retryLater, fmt.Errorf("mark failed %s: %w", event.ID, err)
	}
	s.metrics.Retried(string(event.EventType))
	return retryLater, nil
}

// deadLetter copies the row into outbox_dlq and takes it out of the queue.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, topic string) error {
	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.DeadLettered(string(reason))

	fields := eventFields(event, "", topic)
	fields["error_reason"] = string(reason)
	fields["error"] = msg
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox.dead_lettered")
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	aggregateID := event.AggregateID.String()
	msg := message{
		Key:  aggregateID,
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   aggregateID,
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	return s.sink.Publish(publishCtx, resolved.Descriptor.Topic, msg)
}

func eventFields(event models.OutboxEvent, eventID, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if eventID != "" {
		fields["event_id"] = eventID
	}
	if topic != "" {
		fields["topic"] = topic
	}
	return fields
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current < base {
		current = base
	}
	return min(current*2, ceiling)
}

func withJitter(d time.Duration) time.Duration {
	return d + rand.N(jitterWindow)
}
