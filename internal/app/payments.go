// Package app assembles the services the binaries share.
package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/freightmarket-backend/internal/commission"
	"github.com/angelmondragon/freightmarket-backend/internal/payments"
	"github.com/angelmondragon/freightmarket-backend/internal/payments/gateway"
	"github.com/angelmondragon/freightmarket-backend/internal/trips"
	"github.com/angelmondragon/freightmarket-backend/internal/wallets"
	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/db"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox"
)

// Payments wires the payments service with its gateways, commission rules
// and wallet ledger. Metrics register on reg.
func Payments(ctx context.Context, cfg *config.Config, dbClient *db.Client, reg prometheus.Registerer, logg *logger.Logger) (payments.Service, error) {
	conn := dbClient.DB()

	paymentMetrics := metrics.NewPaymentMetrics(reg)
	gateways, err := gateway.FromConfig(ctx, cfg, paymentMetrics, logg)
	if err != nil {
		return nil, err
	}
	commissionService, err := commission.NewService(commission.NewRepository(conn), dbClient, logg)
	if err != nil {
		return nil, err
	}
	walletService, err := wallets.NewService(wallets.NewRepository(conn), dbClient, metrics.NewLedgerMetrics(reg), logg)
	if err != nil {
		return nil, err
	}
	platformOwner, err := uuid.Parse(cfg.Payments.PlatformOwnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse platform owner id")
	}
	defaultGateway, err := enums.ParsePaymentGateway(cfg.Payments.DefaultGateway)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse default gateway")
	}

	return payments.NewService(
		payments.NewRepository(conn),
		dbClient,
		outbox.NewService(outbox.NewRepository(conn), logg),
		trips.NewRepository(conn),
		commissionService,
		walletService,
		gateways,
		paymentMetrics,
		payments.Options{
			DefaultGateway:  defaultGateway,
			GatewayTimeout:  cfg.Payments.GatewayTimeout,
			CallbackBaseURL: cfg.Payments.CallbackURL,
			PlatformOwnerID: platformOwner,
		},
		logg,
	)
}
