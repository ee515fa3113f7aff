package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEveryCodeHasMetadata(t *testing.T) {
	codes := []Code{
		CodeValidation, CodeUnauthorized, CodeForbidden, CodeNotFound, CodeConflict, CodeStateConflict,
		CodeIdempotency, CodeRateLimit, CodeInternal, CodeDependency, CodeInsufficientFunds, CodeGatewayDeclined,
	}
	require.Len(t, metadataByCode, len(codes))
	for _, code := range codes {
		meta, ok := metadataByCode[code]
		require.True(t, ok, code)
		require.NotEmpty(t, meta.PublicMessage, code)
		require.NotZero(t, meta.HTTPStatus, code)
		require.NotEmpty(t, meta.Kind, code)
	}
}

func TestMetadataSurface(t *testing.T) {
	require.Equal(t, Metadata{
		Kind:           KindExternal,
		HTTPStatus:     http.StatusPaymentRequired,
		PublicMessage:  "payment declined",
		EchoMessage:    true,
		DetailsAllowed: true,
	}, MetadataFor(CodeGatewayDeclined))

	internal := MetadataFor(CodeInternal)
	require.False(t, internal.EchoMessage)
	require.False(t, internal.DetailsAllowed)
	require.Equal(t, internal, MetadataFor("SOMETHING_UNKNOWN"))

	require.Equal(t, http.StatusUnprocessableEntity, MetadataFor(CodeInsufficientFunds).HTTPStatus)
	require.Equal(t, http.StatusConflict, MetadataFor(CodeIdempotency).HTTPStatus)
}

func TestWrapKeepsCauseAndDetails(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "accept bid").WithDetails(map[string]any{"bid_id": "b-1"})
	require.ErrorIs(t, wrapped, cause)
	require.Equal(t, CodeConflict, wrapped.Code())
	require.Equal(t, "accept bid", wrapped.Message())
	require.NotNil(t, wrapped.Details())

	require.Nil(t, Wrap(CodeValidation, nil, "x").Unwrap())
	require.Nil(t, As(nil))
	require.Nil(t, As(stdErrors.New("plain")))
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	require.Equal(t, CodeInternal, e.Code())
	require.Empty(t, e.Message())
	require.Empty(t, e.Error())
	require.Nil(t, e.WithDetails("x"))
}

func TestIsCodeAndRetryable(t *testing.T) {
	conflict := fmt.Errorf("accept bid: %w", New(CodeConflict, "request version changed"))
	require.True(t, IsCode(conflict, CodeConflict))
	require.True(t, IsRetryable(conflict))

	declined := Wrap(CodeGatewayDeclined, stdErrors.New("card declined"), "verify payment")
	require.False(t, IsRetryable(declined))
	require.False(t, IsCode(declined, CodeDependency))
	require.False(t, IsRetryable(stdErrors.New("plain")))
}

func TestKindOfGroupsCodes(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{New(CodeValidation, "weight must be positive"), KindValidation},
		{New(CodeStateConflict, "trip is not loaded"), KindInvariant},
		{New(CodeInsufficientFunds, "available below amount"), KindInvariant},
		{fmt.Errorf("verify: %w", New(CodeGatewayDeclined, "no")), KindExternal},
		{New(CodeConflict, "request version changed"), KindConcurrency},
		{stdErrors.New("disk full"), KindInternal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, KindOf(tc.err), tc.err.Error())
	}
}

func TestErrorString(t *testing.T) {
	require.Equal(t, "DEPENDENCY_ERROR: gateway verify: dial tcp: timeout",
		Wrap(CodeDependency, stdErrors.New("dial tcp: timeout"), "gateway verify").Error())
	require.Equal(t, "NOT_FOUND: trip not found", New(CodeNotFound, "trip not found").Error())
}
