package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
	"github.com/angelmondragon/freightmarket-backend/pkg/square"
	pkgstripe "github.com/angelmondragon/freightmarket-backend/pkg/stripe"
	"github.com/angelmondragon/freightmarket-backend/pkg/zarinpal"
)

// FromConfig registers the wallet adapter plus every provider whose
// credentials are configured, each wrapped with call metrics.
func FromConfig(ctx context.Context, cfg *config.Config, m *metrics.PaymentMetrics, logg *logger.Logger) (*Registry, error) {
	reg, err := NewRegistry(Instrument(NewWalletAdapter(), m))
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Zarinpal.MerchantID) != "" {
		client, err := zarinpal.NewClient(cfg.Zarinpal.MerchantID,
			zarinpal.WithBaseURL(cfg.Zarinpal.Host()),
			zarinpal.WithHTTPClient(&http.Client{Timeout: cfg.Payments.GatewayTimeout}),
		)
		if err != nil {
			return nil, fmt.Errorf("zarinpal client: %w", err)
		}
		if err := registerAdapter(reg, m, func() (Adapter, error) { return NewZarinpalAdapter(client) }); err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		if err := registerAdapter(reg, m, func() (Adapter, error) { return NewStripeAdapter(client) }); err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(cfg.Square.AccessToken) != "" {
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		if err := registerAdapter(reg, m, func() (Adapter, error) { return NewSquareAdapter(client) }); err != nil {
			return nil, err
		}
	}

	if logg != nil {
		names := make([]string, 0, len(reg.Names()))
		for _, name := range reg.Names() {
			names = append(names, string(name))
		}
		logg.Info(logg.WithField(ctx, "gateways", names), "payment gateways registered")
	}
	return reg, nil
}

func registerAdapter(reg *Registry, m *metrics.PaymentMetrics, build func() (Adapter, error)) error {
	adapter, err := build()
	if err != nil {
		return err
	}
	return reg.Register(Instrument(adapter, m))
}
