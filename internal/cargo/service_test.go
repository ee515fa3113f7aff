package cargo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox"
)

type fakeOutbox struct {
	events []outbox.DomainEvent
	err    error
}

func (f *fakeOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) types() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

func newTestService(t *testing.T) (Service, *fakeOutbox) {
	t.Helper()
	client := dbtest.Open(t)
	events := &fakeOutbox{}
	svc, err := NewService(NewRepository(client.DB()), client, events, logger.Nop())
	require.NoError(t, err)
	return svc, events
}

func validCreateInput() CreateInput {
	pickup := time.Now().UTC().Add(24 * time.Hour)
	return CreateInput{
		OwnerID:         uuid.New(),
		CargoType:       enums.CargoTypeGeneral,
		VehicleType:     enums.VehicleTypeHeavyTruck,
		Description:     "pallets",
		WeightKg:        decimal.RequireFromString("1200.5"),
		PickupAddress:   "Tehran, Azadi Sq",
		PickupLat:       35.6997,
		PickupLng:       51.3380,
		PickupAt:        pickup,
		DeliveryAddress: "Isfahan, Naqsh-e Jahan",
		DeliveryLat:     32.6575,
		DeliveryLng:     51.6776,
		DeliveryAt:      pickup.Add(10 * time.Hour),
		PriceAmount:     1000000,
		Currency:        enums.CurrencyIRR,
	}
}

func TestCreateRequest(t *testing.T) {
	svc, events := newTestService(t)

	request, err := svc.Create(context.Background(), validCreateInput())
	require.NoError(t, err)
	require.Equal(t, enums.CargoRequestStatusPending, request.Status)
	require.Equal(t, 1, request.Version)
	require.Equal(t, []enums.OutboxEventType{enums.EventCargoRequestCreated}, events.types())
}

func TestCreateValidation(t *testing.T) {
	svc, events := newTestService(t)

	tests := map[string]struct {
		mutate func(*CreateInput)
		field  string
	}{
		"zero price":           {mutate: func(in *CreateInput) { in.PriceAmount = 0 }, field: "price_amount"},
		"delivery before pick": {mutate: func(in *CreateInput) { in.DeliveryAt = in.PickupAt.Add(-time.Hour) }, field: "delivery_at"},
		"negative weight":      {mutate: func(in *CreateInput) { in.WeightKg = decimal.NewFromInt(-5) }, field: "weight_kg"},
		"latitude out of range": {
			mutate: func(in *CreateInput) { in.PickupLat = 120 },
			field:  "pickup_lat",
		},
		"unknown vehicle": {mutate: func(in *CreateInput) { in.VehicleType = "rocket" }, field: "vehicle_type"},
		"missing owner":   {mutate: func(in *CreateInput) { in.OwnerID = uuid.Nil }, field: "owner_id"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			input := validCreateInput()
			tc.mutate(&input)
			_, err := svc.Create(context.Background(), input)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			require.Equal(t, pkgerrors.CodeValidation, typed.Code())
			require.Contains(t, typed.Details(), tc.field)
		})
	}
	require.Empty(t, events.events)
}

func TestLifecycleHappyPath(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()
	driver := uuid.New()

	request, err := svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	request, err = svc.Accept(ctx, AcceptInput{RequestID: request.ID, DriverID: driver, ExpectedVersion: request.Version})
	require.NoError(t, err)
	require.Equal(t, enums.CargoRequestStatusAccepted, request.Status)
	require.Equal(t, driver, *request.DriverID)
	require.NotNil(t, request.AcceptedAt)

	request, err = svc.PickUp(ctx, TransitionInput{RequestID: request.ID})
	require.NoError(t, err)
	require.NotNil(t, request.PickedUpAt)

	request, err = svc.Deliver(ctx, TransitionInput{RequestID: request.ID})
	require.NoError(t, err)
	require.Equal(t, enums.CargoRequestStatusDelivered, request.Status)
	require.Equal(t, 4, request.Version)

	require.Equal(t, []enums.OutboxEventType{
		enums.EventCargoRequestCreated,
		enums.EventCargoRequestAccepted,
		enums.EventCargoRequestPickedUp,
		enums.EventCargoRequestDelivered,
	}, events.types())

	_, err = svc.Cancel(ctx, TransitionInput{RequestID: request.ID, Reason: "late"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestOutOfOrderTransitionsAreRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	request, err := svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	_, err = svc.PickUp(ctx, TransitionInput{RequestID: request.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = svc.Deliver(ctx, TransitionInput{RequestID: request.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.PickUp(ctx, TransitionInput{RequestID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAcceptStaleVersionConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	request, err := svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	price := int64(1100000)
	_, err = svc.Update(ctx, UpdateInput{RequestID: request.ID, OwnerID: request.OwnerID, PriceAmount: &price})
	require.NoError(t, err)

	_, err = svc.Accept(ctx, AcceptInput{RequestID: request.ID, DriverID: uuid.New(), ExpectedVersion: request.Version})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestSecondAcceptIsRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	request, err := svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	_, err = svc.Accept(ctx, AcceptInput{RequestID: request.ID, DriverID: uuid.New()})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, AcceptInput{RequestID: request.ID, DriverID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestOwnerCannotAcceptOwnRequest(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	request, err := svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	_, err = svc.Accept(ctx, AcceptInput{RequestID: request.ID, DriverID: request.OwnerID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCancelAndFailRequireReason(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()

	request, err := svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, TransitionInput{RequestID: request.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	cancelled, err := svc.Cancel(ctx, TransitionInput{RequestID: request.ID, Reason: "no longer needed"})
	require.NoError(t, err)
	require.Equal(t, enums.CargoRequestStatusCancelled, cancelled.Status)
	require.Equal(t, "no longer needed", *cancelled.CancelReason)

	_, err = svc.Fail(ctx, TransitionInput{RequestID: request.ID, Reason: "truck broke"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	other, err := svc.Create(ctx, validCreateInput())
	require.NoError(t, err)
	failed, err := svc.Fail(ctx, TransitionInput{RequestID: other.ID, Reason: "road closed"})
	require.NoError(t, err)
	require.Equal(t, enums.CargoRequestStatusFailed, failed.Status)
	require.Equal(t, enums.EventCargoRequestFailed, events.events[len(events.events)-1].EventType)
}

func TestUpdateOnlyWhilePending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	request, err := svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	price := int64(1200000)
	updated, err := svc.Update(ctx, UpdateInput{RequestID: request.ID, OwnerID: request.OwnerID, PriceAmount: &price})
	require.NoError(t, err)
	require.Equal(t, price, updated.PriceAmount)
	require.Equal(t, 2, updated.Version)

	_, err = svc.Update(ctx, UpdateInput{RequestID: request.ID, OwnerID: uuid.New(), PriceAmount: &price})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.Update(ctx, UpdateInput{RequestID: request.ID, OwnerID: request.OwnerID, ExpectedVersion: 1, PriceAmount: &price})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	early := request.PickupAt.Add(-time.Hour)
	_, err = svc.Update(ctx, UpdateInput{RequestID: request.ID, OwnerID: request.OwnerID, DeliveryAt: &early})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Accept(ctx, AcceptInput{RequestID: request.ID, DriverID: uuid.New()})
	require.NoError(t, err)
	_, err = svc.Update(ctx, UpdateInput{RequestID: request.ID, OwnerID: request.OwnerID, PriceAmount: &price})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestEmitFailureRollsBackTransition(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()

	request, err := svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	events.err = pkgerrors.New(pkgerrors.CodeInternal, "sink down")
	_, err = svc.Accept(ctx, AcceptInput{RequestID: request.ID, DriverID: uuid.New()})
	require.Error(t, err)

	reloaded, err := svc.Get(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CargoRequestStatusPending, reloaded.Status)
	require.Nil(t, reloaded.DriverID)
}
