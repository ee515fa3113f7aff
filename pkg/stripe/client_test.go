package stripe

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
)

func TestNewClientValidatesKeyForEnvironment(t *testing.T) {
	_, err := NewClient(context.Background(), config.StripeConfig{Env: "test"}, nil)
	require.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_live_123", Env: "test"}, nil)
	require.Error(t, err)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_123", Env: "staging"}, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)

	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_123", Env: " TEST "}, nil)
	require.NoError(t, err)
	require.Equal(t, "test", client.Environment())
	require.NotNil(t, client.API())
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want pkgerrors.Code
	}{
		{"card declined", &stripe.Error{Type: stripe.ErrorTypeCard, HTTPStatusCode: http.StatusPaymentRequired}, pkgerrors.CodeGatewayDeclined},
		{"missing intent", &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusNotFound}, pkgerrors.CodeNotFound},
		{"rate limited", &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusTooManyRequests}, pkgerrors.CodeRateLimit},
		{"server error", &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusInternalServerError}, pkgerrors.CodeDependency},
		{"transport", errors.New("connection reset"), pkgerrors.CodeDependency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err, "op")
			require.True(t, pkgerrors.IsCode(mapped, tc.want), "got %v", mapped)
		})
	}
	require.NoError(t, MapError(nil, "op"))
}
