package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sq "github.com/square/square-go-sdk"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
	"github.com/angelmondragon/freightmarket-backend/pkg/money"
	"github.com/angelmondragon/freightmarket-backend/pkg/square"
	pkgstripe "github.com/angelmondragon/freightmarket-backend/pkg/stripe"
	"github.com/angelmondragon/freightmarket-backend/pkg/zarinpal"
)

func irr(amount int64) money.Money {
	return money.Money{Amount: amount, Currency: enums.CurrencyIRR}
}

type fakeStripe struct {
	created []pkgstripe.IntentParams
	intent  *stripe.PaymentIntent
	refund  *stripe.Refund
	err     error
}

func (f *fakeStripe) CreateIntent(_ context.Context, in pkgstripe.IntentParams) (*stripe.PaymentIntent, error) {
	f.created = append(f.created, in)
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: in.Amount, Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, nil
}

func (f *fakeStripe) GetIntent(context.Context, string) (*stripe.PaymentIntent, error) {
	return f.intent, f.err
}

func (f *fakeStripe) Refund(context.Context, string, int64, string) (*stripe.Refund, error) {
	return f.refund, f.err
}

func TestStripeAdapterLifecycle(t *testing.T) {
	api := &fakeStripe{}
	adapter, err := NewStripeAdapter(api)
	require.NoError(t, err)

	paymentID := uuid.New()
	created, err := adapter.Create(context.Background(), CreateRequest{PaymentID: paymentID, Amount: irr(950000), Description: "trip"})
	require.NoError(t, err)
	require.Equal(t, "pi_1", created.Authority)
	require.Equal(t, "pi_1_secret", created.ClientToken)
	require.Equal(t, "payment-"+paymentID.String(), api.created[0].IdempotencyKey)

	api.intent = &stripe.PaymentIntent{ID: "pi_1", Amount: 950000, Status: stripe.PaymentIntentStatusProcessing}
	_, err = adapter.Verify(context.Background(), "pi_1", irr(950000))
	require.True(t, pkgerrors.IsRetryable(err), "processing intents are not settled yet")

	api.intent = &stripe.PaymentIntent{ID: "pi_1", Amount: 950000, Status: stripe.PaymentIntentStatusSucceeded, LatestCharge: &stripe.Charge{ID: "ch_1"}}
	verified, err := adapter.Verify(context.Background(), "pi_1", irr(950000))
	require.NoError(t, err)
	require.Equal(t, "ch_1", verified.ReferenceID)

	_, err = adapter.Verify(context.Background(), "pi_1", irr(900000))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	status, err := adapter.Status(context.Background(), "pi_1")
	require.NoError(t, err)
	require.Equal(t, StatusPaid, status)

	api.refund = &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusFailed}
	require.True(t, IsDecline(adapter.Refund(context.Background(), RefundRequest{Authority: "pi_1", Amount: irr(950000)})))

	api.refund = &stripe.Refund{ID: "re_2", Status: stripe.RefundStatusSucceeded}
	require.NoError(t, adapter.Refund(context.Background(), RefundRequest{Authority: "pi_1", Amount: irr(950000)}))
}

func TestStripeAdapterCanceledIntentIsDecline(t *testing.T) {
	adapter, err := NewStripeAdapter(&fakeStripe{intent: &stripe.PaymentIntent{ID: "pi_1", Amount: 10, Status: stripe.PaymentIntentStatusCanceled}})
	require.NoError(t, err)

	_, err = adapter.Verify(context.Background(), "pi_1", irr(10))
	require.True(t, IsDecline(err))
}

type fakeSquare struct {
	payment   *sq.Payment
	completed int
	refund    *sq.PaymentRefund
	createErr error
}

func (f *fakeSquare) CreatePayment(_ context.Context, params square.PaymentCreateParams) (*sq.Payment, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.payment, nil
}

func (f *fakeSquare) CompletePayment(context.Context, string) (*sq.Payment, error) {
	f.completed++
	completed := *f.payment
	completed.Status = strPtr(squareCompleted)
	f.payment = &completed
	return f.payment, nil
}

func (f *fakeSquare) GetPayment(context.Context, string) (*sq.Payment, error) {
	return f.payment, nil
}

func (f *fakeSquare) RefundPayment(context.Context, square.RefundParams) (*sq.PaymentRefund, error) {
	return f.refund, nil
}

func TestSquareAdapterCapturesOnce(t *testing.T) {
	amount := int64(950000)
	api := &fakeSquare{payment: &sq.Payment{ID: strPtr("sq_1"), Status: strPtr(squareApproved), AmountMoney: &sq.Money{Amount: &amount}, ReceiptNumber: strPtr("R1")}}
	adapter, err := NewSquareAdapter(api)
	require.NoError(t, err)

	_, err = adapter.Create(context.Background(), CreateRequest{PaymentID: uuid.New(), Amount: irr(amount)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "source token required")

	created, err := adapter.Create(context.Background(), CreateRequest{PaymentID: uuid.New(), Amount: irr(amount), SourceToken: "cnon:ok"})
	require.NoError(t, err)
	require.Equal(t, "sq_1", created.Authority)

	status, err := adapter.Status(context.Background(), "sq_1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, status)

	for i := 0; i < 2; i++ {
		verified, err := adapter.Verify(context.Background(), "sq_1", irr(amount))
		require.NoError(t, err)
		require.Equal(t, "R1", verified.ReferenceID)
	}
	require.Equal(t, 1, api.completed)

	api.refund = &sq.PaymentRefund{ID: "ref_1", Status: strPtr("REJECTED")}
	require.True(t, IsDecline(adapter.Refund(context.Background(), RefundRequest{Authority: "sq_1", Amount: irr(amount)})))
}

type fakeZarinpal struct {
	inquiry   string
	verifyErr error
}

func (f *fakeZarinpal) Request(_ context.Context, req zarinpal.PaymentRequest) (*zarinpal.PaymentResponse, error) {
	return &zarinpal.PaymentResponse{Authority: "A1", RedirectURL: "https://zp/StartPay/A1"}, nil
}

func (f *fakeZarinpal) Verify(context.Context, string, int64) (*zarinpal.VerifyResponse, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &zarinpal.VerifyResponse{RefID: 201}, nil
}

func (f *fakeZarinpal) Inquiry(context.Context, string) (string, error) {
	return f.inquiry, nil
}

func (f *fakeZarinpal) Reverse(context.Context, string) error {
	return nil
}

func TestZarinpalAdapter(t *testing.T) {
	api := &fakeZarinpal{inquiry: zarinpal.StatusReversed}
	adapter, err := NewZarinpalAdapter(api)
	require.NoError(t, err)

	created, err := adapter.Create(context.Background(), CreateRequest{PaymentID: uuid.New(), Amount: irr(950000)})
	require.NoError(t, err)
	require.Equal(t, "https://zp/StartPay/A1", created.RedirectURL)

	verified, err := adapter.Verify(context.Background(), "A1", irr(950000))
	require.NoError(t, err)
	require.Equal(t, "201", verified.ReferenceID)

	status, err := adapter.Status(context.Background(), "A1")
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, status)

	api.inquiry = "SOMETHING_NEW"
	_, err = adapter.Status(context.Background(), "A1")
	require.True(t, pkgerrors.IsRetryable(err))
}

func TestWalletAdapterAuthority(t *testing.T) {
	adapter := NewWalletAdapter()
	paymentID := uuid.New()
	created, err := adapter.Create(context.Background(), CreateRequest{PaymentID: paymentID})
	require.NoError(t, err)
	require.Equal(t, "wallet-"+paymentID.String(), created.Authority)

	verified, err := adapter.Verify(context.Background(), created.Authority, irr(1))
	require.NoError(t, err)
	require.Equal(t, created.Authority, verified.ReferenceID)

	_, err = adapter.Verify(context.Background(), "A1", irr(1))
	require.Error(t, err)
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(NewWalletAdapter())
	require.NoError(t, err)

	adapter, err := reg.Get(enums.PaymentGatewayWallet)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentGatewayWallet, adapter.Name())

	_, err = reg.Get(enums.PaymentGatewayStripe)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.Error(t, reg.Register(NewWalletAdapter()))
	require.Len(t, reg.Names(), 1)
}

func TestInstrumentRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPaymentMetrics(reg)
	adapter := Instrument(&ZarinpalAdapter{api: &fakeZarinpal{verifyErr: pkgerrors.New(pkgerrors.CodeGatewayDeclined, "no")}, now: time.Now}, m)

	_, err := adapter.Verify(context.Background(), "A1", irr(1))
	require.True(t, IsDecline(err))
	require.Equal(t, "declined", Outcome(err))
	require.Equal(t, "ok", Outcome(nil))
	require.Equal(t, 1, testutil.CollectAndCount(reg, "freight_gateway_call_duration_seconds"))
}

func strPtr(v string) *string {
	return &v
}

func TestFromConfigRegistersConfiguredProviders(t *testing.T) {
	cfg := &config.Config{}
	reg, err := FromConfig(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []enums.PaymentGateway{enums.PaymentGatewayWallet}, reg.Names())

	cfg.Zarinpal.MerchantID = "00000000-0000-0000-0000-000000000000"
	cfg.Zarinpal.Sandbox = true
	cfg.Payments.GatewayTimeout = time.Second
	reg, err = FromConfig(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	_, err = reg.Get(enums.PaymentGatewayZarinpal)
	require.NoError(t, err)
}
