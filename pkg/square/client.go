package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

var endpoints = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// Client is the slice of the Square Payments and Refunds APIs used to settle
// trips. Payments are authorized first and captured with CompletePayment.
type Client struct {
	sdk        *sqclient.Client
	env        string
	locationID string
	logg       *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env := strings.ToLower(strings.TrimSpace(cfg.Environment()))
	if env == "" {
		env = "sandbox"
	}
	baseURL, ok := endpoints[env]
	if !ok {
		return nil, fmt.Errorf("square environment must be sandbox or production, got %q", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square access token is required")
	}
	location := strings.TrimSpace(cfg.LocationID)
	if location == "" {
		return nil, errors.New("square location id is required")
	}

	c := &Client{
		sdk:        sqclient.NewClient(sqoption.WithBaseURL(baseURL), sqoption.WithToken(token)),
		env:        env,
		locationID: location,
		logg:       logg,
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"env": env, "location_id": location}), "square.ready")
	return c, nil
}

func (c *Client) CreatePayment(ctx context.Context, p PaymentCreateParams) (*sq.Payment, error) {
	if strings.TrimSpace(p.LocationID) == "" {
		p.LocationID = c.locationID
	}
	req := p.request(idempotencyKey("payment", p.IdempotencyKey))
	fields := map[string]any{
		"location_id":  p.LocationID,
		"reference_id": p.ReferenceID,
		"amount":       p.AmountCents,
		"source_id":    p.SourceID,
	}
	return invoke(ctx, c, "create_payment", fields, func() (*sq.Payment, error) {
		resp, err := c.sdk.Payments.Create(ctx, req)
		return resp.GetPayment(), err
	}, paymentSummary)
}

func (c *Client) CompletePayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	return invoke(ctx, c, "complete_payment", map[string]any{"payment_id": paymentID}, func() (*sq.Payment, error) {
		resp, err := c.sdk.Payments.Complete(ctx, &sq.CompletePaymentRequest{PaymentID: paymentID})
		return resp.GetPayment(), err
	}, paymentSummary)
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	return invoke(ctx, c, "get_payment", map[string]any{"payment_id": paymentID}, func() (*sq.Payment, error) {
		resp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
		return resp.GetPayment(), err
	}, paymentSummary)
}

// RefundPayment refunds part or all of a completed payment.
func (c *Client) RefundPayment(ctx context.Context, p RefundParams) (*sq.PaymentRefund, error) {
	req := p.request(idempotencyKey("refund", p.IdempotencyKey))
	fields := map[string]any{"payment_id": p.PaymentID, "amount": p.AmountCents}
	return invoke(ctx, c, "refund_payment", fields, func() (*sq.PaymentRefund, error) {
		resp, err := c.sdk.Refunds.RefundPayment(ctx, req)
		return resp.GetRefund(), err
	}, func(r *sq.PaymentRefund) map[string]any {
		return map[string]any{"refund_id": r.GetID(), "status": deref(r.GetStatus())}
	})
}

// invoke logs one SDK call and maps its failure into a domain error.
func invoke[T any](ctx context.Context, c *Client, op string, fields map[string]any, call func() (T, error), summary func(T) map[string]any) (T, error) {
	logCtx := c.logg.WithFields(ctx, scrub(fields))
	logCtx = c.logg.WithField(logCtx, "operation", op)
	c.logg.Debug(logCtx, "square.request")

	out, err := call()
	if err != nil {
		var zero T
		mapped := mapError(err, op)
		c.logg.Warn(c.logg.WithField(logCtx, "error", mapped.Error()), "square.failed")
		return zero, mapped
	}
	c.logg.Info(c.logg.WithFields(logCtx, summary(out)), "square.ok")
	return out, nil
}

func paymentSummary(p *sq.Payment) map[string]any {
	return map[string]any{"payment_id": deref(p.GetID()), "status": deref(p.GetStatus())}
}

func idempotencyKey(prefix, provided string) string {
	if key := strings.TrimSpace(provided); key != "" {
		return key
	}
	return prefix + "-" + uuid.NewString()
}

var sensitiveFragments = []string{"card", "nonce", "token", "source", "cvv", "secret", "email", "phone"}

// scrub masks values whose key looks like it holds card or contact data.
func scrub(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
		lower := strings.ToLower(k)
		for _, frag := range sensitiveFragments {
			if strings.Contains(lower, frag) {
				out[k] = "[REDACTED]"
				break
			}
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
