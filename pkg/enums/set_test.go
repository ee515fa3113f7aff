package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKnownValues(t *testing.T) {
	gateway, err := ParsePaymentGateway("zarinpal")
	require.NoError(t, err)
	require.Equal(t, PaymentGatewayZarinpal, gateway)

	status, err := ParseTripStatus("in_transit")
	require.NoError(t, err)
	require.Equal(t, TripStatusInTransit, status)
}

func TestParseRejectsUnknownValues(t *testing.T) {
	_, err := ParseCurrency("usd")
	require.EqualError(t, err, `invalid currency "usd"`)

	_, err = ParseOutboxEventType("")
	require.Error(t, err)
}

func TestIsValid(t *testing.T) {
	require.True(t, PaymentMethodWallet.IsValid())
	require.False(t, PaymentMethod("cash").IsValid())
	require.True(t, AggregateRating.IsValid())
	require.True(t, OutboxDLQReasonUnroutable.IsValid())
	require.False(t, OutboxDLQErrorReason("timeout").IsValid())
}
