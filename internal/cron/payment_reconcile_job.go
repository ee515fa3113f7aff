package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

const (
	defaultReconcileAfter = 30 * time.Minute
	defaultReconcileLimit = 100
)

// paymentSyncer is the slice of the payments service the reconcile job needs.
type paymentSyncer interface {
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payment, error)
	SyncStatus(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
}

type PaymentReconcileJobParams struct {
	Logger   *logger.Logger
	Payments paymentSyncer
	// After is how long a payment may sit in Processing before the gateway is asked.
	After time.Duration
	Limit int
}

func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	after := params.After
	if after <= 0 {
		after = defaultReconcileAfter
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &paymentReconcileJob{
		logg:     params.Logger,
		payments: params.Payments,
		after:    after,
		limit:    limit,
	}, nil
}

type paymentReconcileJob struct {
	logg     *logger.Logger
	payments paymentSyncer
	after    time.Duration
	limit    int
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

// Run asks the gateway about every stale Processing payment. Retryable
// failures leave the payment for the next run; everything else is collected
// into the returned error after the whole batch has been attempted.
func (j *paymentReconcileJob) Run(ctx context.Context) error {
	stale, err := j.payments.ListStale(ctx, j.after, j.limit)
	if err != nil {
		return fmt.Errorf("list stale payments: %w", err)
	}

	var errs error
	counts := map[string]int{}
	for i := range stale {
		payment := &stale[i]
		payCtx := j.logg.WithPaymentID(ctx, payment.ID.String())
		synced, err := j.payments.SyncStatus(payCtx, payment.ID)
		switch {
		case err == nil:
			counts[string(synced.Status)]++
		case pkgerrors.IsRetryable(err):
			counts["deferred"]++
			j.logg.Warn(j.logg.WithField(payCtx, "error", err.Error()), "payment reconcile deferred")
		default:
			counts["errored"]++
			errs = multierr.Append(errs, fmt.Errorf("sync payment %s: %w", payment.ID, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(stale),
		"completed":  counts[string(enums.PaymentStatusCompleted)],
		"failed":     counts[string(enums.PaymentStatusFailed)],
		"unchanged":  counts[string(enums.PaymentStatusProcessing)],
		"deferred":   counts["deferred"],
		"errored":    counts["errored"],
	}), "payment reconcile loop complete")
	return errs
}
