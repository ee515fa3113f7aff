package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
)

type fakeSyncer struct {
	stale     []models.Payment
	listErr   error
	results   map[uuid.UUID]error
	synced    []uuid.UUID
	olderThan time.Duration
	limit     int
}

func (f *fakeSyncer) ListStale(_ context.Context, olderThan time.Duration, limit int) ([]models.Payment, error) {
	f.olderThan = olderThan
	f.limit = limit
	return f.stale, f.listErr
}

func (f *fakeSyncer) SyncStatus(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	f.synced = append(f.synced, id)
	if err := f.results[id]; err != nil {
		return nil, err
	}
	return &models.Payment{ID: id, Status: enums.PaymentStatusCompleted}, nil
}

func newReconcileJob(t *testing.T, syncer *fakeSyncer, params PaymentReconcileJobParams) Job {
	t.Helper()
	params.Logger = testLogger()
	params.Payments = syncer
	job, err := NewPaymentReconcileJob(params)
	require.NoError(t, err)
	return job
}

func TestPaymentReconcileJobSyncsEveryStalePayment(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	syncer := &fakeSyncer{stale: []models.Payment{{ID: a}, {ID: b}}}
	job := newReconcileJob(t, syncer, PaymentReconcileJobParams{After: time.Hour, Limit: 5})

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, []uuid.UUID{a, b}, syncer.synced)
	require.Equal(t, time.Hour, syncer.olderThan)
	require.Equal(t, 5, syncer.limit)
}

func TestPaymentReconcileJobDefersRetryableAndCollectsErrors(t *testing.T) {
	retry, broken, fine, alsoBroken := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	syncer := &fakeSyncer{
		stale: []models.Payment{{ID: retry}, {ID: broken}, {ID: fine}, {ID: alsoBroken}},
		results: map[uuid.UUID]error{
			retry:      pkgerrors.New(pkgerrors.CodeDependency, "gateway timeout"),
			broken:     pkgerrors.New(pkgerrors.CodeValidation, "amount mismatch"),
			alsoBroken: errors.New("boom"),
		},
	}
	job := newReconcileJob(t, syncer, PaymentReconcileJobParams{})

	err := job.Run(context.Background())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
	require.Len(t, syncer.synced, 4, "one failure must not stop the batch")
	require.Equal(t, defaultReconcileAfter, syncer.olderThan)
	require.Equal(t, defaultReconcileLimit, syncer.limit)
}

func TestPaymentReconcileJobListError(t *testing.T) {
	job := newReconcileJob(t, &fakeSyncer{listErr: errors.New("db down")}, PaymentReconcileJobParams{})
	require.Error(t, job.Run(context.Background()))
}
