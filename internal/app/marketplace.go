package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/freightmarket-backend/internal/bids"
	"github.com/angelmondragon/freightmarket-backend/internal/cargo"
	"github.com/angelmondragon/freightmarket-backend/internal/payments"
	"github.com/angelmondragon/freightmarket-backend/internal/ratings"
	"github.com/angelmondragon/freightmarket-backend/internal/trips"
	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/db"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox"
)

// Marketplace holds the core services sharing one database and outbox.
type Marketplace struct {
	Cargo    cargo.Service
	Bids     bids.Service
	Trips    trips.Service
	Payments payments.Service
	Ratings  ratings.Service
}

// NewMarketplace wires request, bid, trip, payment and rating services so
// that accepting a bid assigns a trip and completing a trip starts settlement.
func NewMarketplace(ctx context.Context, cfg *config.Config, dbClient *db.Client, reg prometheus.Registerer, logg *logger.Logger) (*Marketplace, error) {
	conn := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	paymentService, err := Payments(ctx, cfg, dbClient, reg, logg)
	if err != nil {
		return nil, err
	}
	cargoService, err := cargo.NewService(cargo.NewRepository(conn), dbClient, events, logg)
	if err != nil {
		return nil, err
	}
	tripRepo := trips.NewRepository(conn)
	tripService, err := trips.NewService(tripRepo, dbClient, events, cargoService, paymentService, logg)
	if err != nil {
		return nil, err
	}
	bidService, err := bids.NewService(bids.NewRepository(conn), dbClient, events, cargoService, tripService, cfg.Bidding.DefaultValidity, logg)
	if err != nil {
		return nil, err
	}
	ratingService, err := ratings.NewService(ratings.NewRepository(conn), dbClient, events, tripRepo, logg)
	if err != nil {
		return nil, err
	}

	return &Marketplace{
		Cargo:    cargoService,
		Bids:     bidService,
		Trips:    tripService,
		Payments: paymentService,
		Ratings:  ratingService,
	}, nil
}
