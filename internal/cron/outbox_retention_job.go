package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90
	defaultRetentionInterval   = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedEventPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetterStore interface {
	DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
	CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository publishedEventPruner
	DeadLetter deadLetterStore
	// Retention and DLQRetention are in days.
	Retention    int
	DLQRetention int
	Interval     time.Duration
}

// NewOutboxRetentionJob prunes published outbox rows and old dead letters.
// Unpublished rows are never touched.
func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.DB == nil:
		return nil, errors.New("db runner required")
	case p.Repository == nil:
		return nil, errors.New("outbox repository required")
	case p.DeadLetter == nil:
		return nil, errors.New("dead letter store required")
	}
	job := &outboxRetentionJob{
		logg:     p.Logger,
		db:       p.DB,
		events:   p.Repository,
		dlq:      p.DeadLetter,
		keepDays: orDefault(p.Retention, defaultOutboxRetentionDays),
		dlqDays:  orDefault(p.DLQRetention, defaultDLQRetentionDays),
		interval: p.Interval,
		now:      time.Now,
	}
	if job.interval <= 0 {
		job.interval = defaultRetentionInterval
	}
	return job, nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

type outboxRetentionJob struct {
	logg     *logger.Logger
	db       txRunner
	events   publishedEventPruner
	dlq      deadLetterStore
	keepDays int
	dlqDays  int
	interval time.Duration
	now      func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Interval() time.Duration { return j.interval }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	today := j.now().UTC()
	eventCutoff := today.AddDate(0, 0, -j.keepDays)
	dlqCutoff := today.AddDate(0, 0, -j.dlqDays)

	var events, letters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.events.DeletePublishedBefore(tx, eventCutoff); err != nil {
			return err
		}
		letters, err = j.dlq.DeleteFailedBefore(tx, dlqCutoff)
		return err
	})
	if err != nil {
		return err
	}

	fields := map[string]any{
		"event_cutoff":   eventCutoff,
		"events_deleted": events,
		"dlq_cutoff":     dlqCutoff,
		"dlq_deleted":    letters,
	}
	backlog, err := j.dlq.CountByReason(ctx)
	if err != nil {
		return err
	}
	for reason, n := range backlog {
		fields["dlq_"+string(reason)] = n
	}
	logCtx := j.logg.WithFields(ctx, fields)
	if len(backlog) > 0 {
		j.logg.Warn(logCtx, "outbox.retention_done_with_dead_letters")
		return nil
	}
	j.logg.Info(logCtx, "outbox.retention_done")
	return nil
}
