package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freightmarket-backend/internal/payments"
	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
)

type fakeVerifier struct {
	inputs []payments.VerifyInput
	err    error
	during func()
}

func (f *fakeVerifier) VerifyPayment(_ context.Context, input payments.VerifyInput) (*models.Payment, error) {
	f.inputs = append(f.inputs, input)
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return nil, f.err
	}
	ref := "201"
	return &models.Payment{
		ID:          uuid.New(),
		TripID:      uuid.New(),
		Status:      enums.PaymentStatusCompleted,
		GrossAmount: input.Amount,
		Currency:    enums.CurrencyIRR,
		ReferenceID: &ref,
	}, nil
}

func callbackRouter(svc PaymentVerifier, guard claimGuard) http.Handler {
	r := chi.NewRouter()
	r.Post("/webhooks/payments/{gateway}/verify", PaymentCallback(svc, guard, nil))
	return r
}

func postCallback(h http.Handler, gateway, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/"+gateway+"/verify", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPaymentCallbackVerifies(t *testing.T) {
	guard, store := newClaims(t)
	svc := &fakeVerifier{}
	h := callbackRouter(svc, guard)

	rec := postCallback(h, "zarinpal", `{"authority":"A000000000000000000000000000000123","amount":950000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Equal(t, []payments.VerifyInput{{Gateway: enums.PaymentGatewayZarinpal, Authority: "A000000000000000000000000000000123", Amount: 950000}}, svc.inputs)

	var body verifyCallbackResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &body))
	require.Equal(t, enums.PaymentStatusCompleted, body.Status)
	require.Equal(t, "201", *body.ReferenceID)

	require.False(t, store.holds(callbackScope("zarinpal"), "A000000000000000000000000000000123"), "claim released after verification")
}

func TestPaymentCallbackRejectsDuplicateInFlight(t *testing.T) {
	guard, _ := newClaims(t)
	svc := &fakeVerifier{}
	h := callbackRouter(svc, guard)

	var nested *httptest.ResponseRecorder
	svc.during = func() {
		svc.during = nil
		nested = postCallback(h, "zarinpal", `{"authority":"A1","amount":10}`)
	}

	first := postCallback(h, "zarinpal", `{"authority":"A1","amount":10}`)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusConflict, nested.Code)
	require.Equal(t, string(pkgerrors.CodeConflict), decodeEnvelope(t, nested).Error.Code)
	require.Len(t, svc.inputs, 1)

	again := postCallback(h, "zarinpal", `{"authority":"A1","amount":10}`)
	require.Equal(t, http.StatusOK, again.Code)
	require.Len(t, svc.inputs, 2)
}

func TestPaymentCallbackValidation(t *testing.T) {
	svc := &fakeVerifier{}
	guard, _ := newClaims(t)
	h := callbackRouter(svc, guard)

	rec := postCallback(h, "paypal", `{"authority":"A1","amount":10}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postCallback(h, "zarinpal", `{"authority":"","amount":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, string(pkgerrors.CodeValidation), decodeEnvelope(t, rec).Error.Code)

	require.Empty(t, svc.inputs)
}

func TestPaymentCallbackMapsServiceErrors(t *testing.T) {
	guard, store := newClaims(t)
	svc := &fakeVerifier{err: pkgerrors.New(pkgerrors.CodeGatewayDeclined, "payment declined by gateway")}
	h := callbackRouter(svc, guard)

	rec := postCallback(h, "stripe", `{"authority":"pi_1","amount":10}`)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Equal(t, "payment declined by gateway", decodeEnvelope(t, rec).Error.Message)
	require.False(t, store.holds(callbackScope("stripe"), "pi_1"))
}
