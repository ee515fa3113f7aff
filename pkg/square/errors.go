package square

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
)

// mapError turns SDK failures into domain codes. Payment method errors are
// declines; failures Square did not answer stay retryable dependency errors.
func mapError(err error, op string) error {
	msg := "square " + op + " failed"
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
	code := codeForStatus(apiErr.StatusCode)
	for _, detail := range apiErrors(apiErr) {
		if override, ok := codeForDetail(detail); ok {
			code = override
			break
		}
	}
	return pkgerrors.Wrap(code, err, msg)
}

func codeForDetail(detail *sq.Error) (pkgerrors.Code, bool) {
	switch {
	case detail == nil:
		return "", false
	case detail.Code == sq.ErrorCodeIdempotencyKeyReused:
		return pkgerrors.CodeIdempotency, true
	case detail.Category == sq.ErrorCategoryAuthenticationError:
		return pkgerrors.CodeUnauthorized, true
	case detail.Category == sq.ErrorCategoryPaymentMethodError:
		return pkgerrors.CodeGatewayDeclined, true
	}
	return "", false
}

// apiErrors decodes the errors array Square returns in the response body.
func apiErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body); err != nil {
		return nil
	}
	return body.Errors
}

var statusCodes = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusPaymentRequired:     pkgerrors.CodeGatewayDeclined,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
}

func codeForStatus(status int) pkgerrors.Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}
