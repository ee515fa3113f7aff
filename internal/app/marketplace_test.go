package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freightmarket-backend/internal/bids"
	"github.com/angelmondragon/freightmarket-backend/internal/cargo"
	"github.com/angelmondragon/freightmarket-backend/internal/ratings"
	"github.com/angelmondragon/freightmarket-backend/internal/trips"
	"github.com/angelmondragon/freightmarket-backend/internal/wallets"
	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

func TestMarketplaceDeliversAndSettlesFromWallet(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	cfg := &config.Config{}
	cfg.Payments.PlatformOwnerID = uuid.NewString()
	cfg.Payments.DefaultGateway = "wallet"
	cfg.Bidding.DefaultValidity = time.Hour

	mkt, err := NewMarketplace(ctx, cfg, client, prometheus.NewRegistry(), logger.Nop())
	require.NoError(t, err)

	ownerID, driverID := uuid.New(), uuid.New()
	ledger, err := wallets.NewService(wallets.NewRepository(client.DB()), client, nil, logger.Nop())
	require.NoError(t, err)
	payerWallet, err := ledger.Open(ctx, ownerID, enums.CurrencyIRR)
	require.NoError(t, err)
	_, err = ledger.Deposit(ctx, wallets.MutationInput{WalletID: payerWallet.ID, Amount: 1000000, CorrelationID: "topup-1"})
	require.NoError(t, err)

	pickup := time.Now().UTC().Add(24 * time.Hour)
	request, err := mkt.Cargo.Create(ctx, cargo.CreateInput{
		OwnerID:         ownerID,
		CargoType:       enums.CargoTypeGeneral,
		VehicleType:     enums.VehicleTypeHeavyTruck,
		WeightKg:        decimal.NewFromInt(12000),
		PickupAddress:   "Isfahan steel yard",
		PickupLat:       32.65,
		PickupLng:       51.67,
		PickupAt:        pickup,
		DeliveryAddress: "Tabriz depot",
		DeliveryLat:     38.08,
		DeliveryLng:     46.29,
		DeliveryAt:      pickup.Add(18 * time.Hour),
		PriceAmount:     1000000,
		Currency:        enums.CurrencyIRR,
	})
	require.NoError(t, err)

	bid, err := mkt.Bids.Submit(ctx, bids.SubmitInput{RequestID: request.ID, DriverID: driverID, Amount: 950000})
	require.NoError(t, err)
	accepted, err := mkt.Bids.Accept(ctx, bids.AcceptInput{BidID: bid.ID, OwnerID: ownerID})
	require.NoError(t, err)

	driver := trips.TransitionInput{TripID: accepted.Trip.ID, ActorID: driverID}
	for _, fn := range []func(context.Context, trips.TransitionInput) (*models.Trip, error){
		mkt.Trips.Accept, mkt.Trips.Start, mkt.Trips.StartLoading, mkt.Trips.FinishLoading,
		mkt.Trips.StartTransit, mkt.Trips.Arrive, mkt.Trips.Deliver,
	} {
		_, err = fn(ctx, driver)
		require.NoError(t, err)
	}

	result, err := mkt.Trips.Complete(ctx, trips.CompleteInput{TripID: accepted.Trip.ID, ActorID: ownerID})
	require.NoError(t, err)
	require.Equal(t, enums.TripStatusCompleted, result.Trip.Status)
	require.NotNil(t, result.Payment)
	require.Equal(t, enums.PaymentGatewayWallet, result.Payment.Gateway)
	require.Equal(t, enums.PaymentStatusCompleted, result.Payment.Status)

	driverWallet, err := ledger.GetByOwner(ctx, driverID, enums.CurrencyIRR)
	require.NoError(t, err)
	require.Equal(t, int64(950000), driverWallet.Available)
	payer, err := ledger.GetByOwner(ctx, ownerID, enums.CurrencyIRR)
	require.NoError(t, err)
	require.Equal(t, int64(50000), payer.Available)

	_, err = mkt.Ratings.Submit(ctx, ratings.SubmitInput{TripID: accepted.Trip.ID, RaterID: ownerID, Score: 5})
	require.NoError(t, err)
	summary, err := mkt.Ratings.Summary(ctx, driverID)
	require.NoError(t, err)
	require.Equal(t, int64(1), summary.Count)
	require.InDelta(t, 5.0, summary.Average, 0.001)
}
