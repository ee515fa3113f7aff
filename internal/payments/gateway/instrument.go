package gateway

import (
	"context"
	"time"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
	"github.com/angelmondragon/freightmarket-backend/pkg/money"
)

type instrumented struct {
	next    Adapter
	metrics *metrics.PaymentMetrics
	now     func() time.Time
}

// Instrument records call latency and outcome for every adapter call.
func Instrument(next Adapter, m *metrics.PaymentMetrics) Adapter {
	if m == nil {
		return next
	}
	return &instrumented{next: next, metrics: m, now: time.Now}
}

func (i *instrumented) Name() enums.PaymentGateway { return i.next.Name() }

func (i *instrumented) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	start := i.now()
	out, err := i.next.Create(ctx, req)
	i.observe("create", err, start)
	return out, err
}

func (i *instrumented) Verify(ctx context.Context, authority string, amount money.Money) (*VerifyResult, error) {
	start := i.now()
	out, err := i.next.Verify(ctx, authority, amount)
	i.observe("verify", err, start)
	return out, err
}

func (i *instrumented) Refund(ctx context.Context, req RefundRequest) error {
	start := i.now()
	err := i.next.Refund(ctx, req)
	i.observe("refund", err, start)
	return err
}

func (i *instrumented) Status(ctx context.Context, authority string) (Status, error) {
	start := i.now()
	out, err := i.next.Status(ctx, authority)
	i.observe("status", err, start)
	return out, err
}

func (i *instrumented) observe(op string, err error, start time.Time) {
	i.metrics.ObserveGatewayCall(string(i.next.Name()), op, Outcome(err), i.now().Sub(start))
}
