package square

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	_, err := NewClient(ctx, config.SquareConfig{AccessToken: "tok", LocationID: "L1"}, nil)
	require.Error(t, err)

	_, err = NewClient(ctx, config.SquareConfig{LocationID: "L1"}, logger.Nop())
	require.ErrorContains(t, err, "access token")

	_, err = NewClient(ctx, config.SquareConfig{AccessToken: "tok"}, logger.Nop())
	require.ErrorContains(t, err, "location")

	c, err := NewClient(ctx, config.SquareConfig{AccessToken: "tok", LocationID: " L1 "}, logger.Nop())
	require.NoError(t, err)
	require.Equal(t, "L1", c.locationID)
}

func TestIdempotencyKey(t *testing.T) {
	require.Equal(t, "custom-key", idempotencyKey("payment", " custom-key "))
	generated := idempotencyKey("refund", "")
	require.True(t, strings.HasPrefix(generated, "refund-"))
	require.NotEqual(t, generated, idempotencyKey("refund", ""))
}

func TestScrubMasksCardData(t *testing.T) {
	out := scrub(map[string]any{"source_id": "cnon:card-nonce-ok", "status": "APPROVED", "buyer_email": "a@b.c"})
	require.Equal(t, "[REDACTED]", out["source_id"])
	require.Equal(t, "[REDACTED]", out["buyer_email"])
	require.Equal(t, "APPROVED", out["status"])
}

func TestCodeForStatus(t *testing.T) {
	cases := map[int]pkgerrors.Code{
		http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
		http.StatusForbidden:           pkgerrors.CodeForbidden,
		http.StatusNotFound:            pkgerrors.CodeNotFound,
		http.StatusConflict:            pkgerrors.CodeConflict,
		http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
		http.StatusBadRequest:          pkgerrors.CodeValidation,
		http.StatusPaymentRequired:     pkgerrors.CodeGatewayDeclined,
		http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
		http.StatusTeapot:              pkgerrors.CodeValidation,
		http.StatusInternalServerError: pkgerrors.CodeDependency,
	}
	for status, want := range cases {
		require.Equal(t, want, codeForStatus(status), "status %d", status)
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   pkgerrors.Code
	}{
		{"authentication", http.StatusUnauthorized, `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`, pkgerrors.CodeUnauthorized},
		{"idempotency reuse", http.StatusConflict, `{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`, pkgerrors.CodeIdempotency},
		{"card declined", http.StatusBadRequest, `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CARD_DECLINED"}]}`, pkgerrors.CodeGatewayDeclined},
		{"outage", http.StatusBadGateway, `{"errors":[{"category":"API_ERROR","code":"BAD_GATEWAY"}]}`, pkgerrors.CodeDependency},
		{"unparseable body", http.StatusNotFound, `<html>`, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := mapError(sqcore.NewAPIError(tc.status, errors.New(tc.body)), "get_payment")
			require.True(t, pkgerrors.IsCode(mapped, tc.want), "got %v", mapped)
		})
	}

	transport := mapError(errors.New("dial tcp: timeout"), "get_payment")
	require.True(t, pkgerrors.IsCode(transport, pkgerrors.CodeDependency))
	require.True(t, pkgerrors.IsRetryable(transport))
}

func TestRefundRequest(t *testing.T) {
	req := RefundParams{PaymentID: "pay_1", AmountCents: 950000, Currency: "usd", Reason: " trip disputed "}.request("key-1")
	require.Equal(t, "key-1", req.IdempotencyKey)
	require.Equal(t, "pay_1", *req.PaymentID)
	require.EqualValues(t, 950000, *req.AmountMoney.Amount)
	require.Equal(t, sq.Currency("USD"), *req.AmountMoney.Currency)
	require.Equal(t, "trip disputed", *req.Reason)
}

func TestPaymentRequestAuthorizesOnly(t *testing.T) {
	req := PaymentCreateParams{AmountCents: 100, SourceID: "cnon:ok", LocationID: "L1", Note: "  "}.request("key-2")
	require.False(t, *req.Autocomplete)
	require.Equal(t, "L1", *req.LocationID)
	require.Equal(t, sq.Currency("USD"), *req.AmountMoney.Currency)
	require.Nil(t, req.Note)
	require.Nil(t, req.ReferenceID)
}
