package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe's API client plus env-specific metadata.
type Client struct {
	api         *stripe.Client
	environment string
	logger      *logger.Logger
}

// NewClient initializes Stripe once with the configured key and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	api := stripe.NewClient(apiKey)
	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		api:         api,
		environment: env,
		logger:      logg,
	}, nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// IntentParams describes a manual-capture-free PaymentIntent for one trip.
type IntentParams struct {
	Amount         int64
	Currency       string
	Description    string
	Reference      string
	IdempotencyKey string
}

// CreateIntent opens a PaymentIntent whose client secret the payer confirms.
func (c *Client) CreateIntent(ctx context.Context, in IntentParams) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(in.Amount),
		Currency:    stripe.String(strings.ToLower(in.Currency)),
		Description: stripe.String(in.Description),
	}
	params.Context = ctx
	if in.Reference != "" {
		params.AddMetadata("reference", in.Reference)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		c.logError(ctx, "create_intent", err)
		return nil, MapError(err, "create payment intent")
	}
	return intent, nil
}

// GetIntent retrieves the current state of a PaymentIntent.
func (c *Client) GetIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := paymentintent.Get(id, params)
	if err != nil {
		c.logError(ctx, "get_intent", err)
		return nil, MapError(err, "get payment intent")
	}
	return intent, nil
}

// Refund refunds amount minor units of the intent's captured charge.
func (c *Client) Refund(ctx context.Context, intentID string, amount int64, idempotencyKey string) (*stripe.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	out, err := refund.New(params)
	if err != nil {
		c.logError(ctx, "refund", err)
		return nil, MapError(err, "refund payment intent")
	}
	return out, nil
}

func (c *Client) logError(ctx context.Context, op string, err error) {
	if c == nil || c.logger == nil {
		return
	}
	ctx = c.logger.WithField(ctx, "operation", op)
	c.logger.Error(ctx, "stripe call failed", err)
}

// MapError converts Stripe failures into domain codes. Card errors are
// declines; network failures and 5xx responses stay retryable.
func MapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := pkgerrors.CodeDependency
		switch {
		case stripeErr.Type == stripe.ErrorTypeCard:
			code = pkgerrors.CodeGatewayDeclined
		case stripeErr.HTTPStatusCode == http.StatusNotFound:
			code = pkgerrors.CodeNotFound
		case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
			code = pkgerrors.CodeUnauthorized
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
			code = pkgerrors.CodeRateLimit
		case stripeErr.HTTPStatusCode == http.StatusBadRequest:
			code = pkgerrors.CodeValidation
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("stripe %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe %s failed", op))
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
