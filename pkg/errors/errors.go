package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// CodeInsufficientFunds is the ledger-specific invariant violation raised
	// when a debit or release would drive a balance below zero.
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	// CodeGatewayDeclined is a terminal decline reported by a payment provider.
	// Unlike CodeDependency it must not be retried.
	CodeGatewayDeclined Code = "GATEWAY_DECLINED"
)

// Kind groups codes by how a caller should react to them.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindAccess      Kind = "access"
	KindNotFound    Kind = "not_found"
	KindInvariant   Kind = "invariant"
	KindConcurrency Kind = "concurrency"
	KindExternal    Kind = "external"
	KindInternal    Kind = "internal"
)

// Metadata is how a code surfaces over HTTP. EchoMessage codes return the
// error's own message; the rest return PublicMessage.
type Metadata struct {
	Kind           Kind
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	EchoMessage    bool
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		Kind: KindValidation, HTTPStatus: http.StatusBadRequest,
		PublicMessage: "validation failed", EchoMessage: true, DetailsAllowed: true,
	},
	CodeUnauthorized: {
		Kind: KindAccess, HTTPStatus: http.StatusUnauthorized,
		PublicMessage: "authentication required",
	},
	CodeForbidden: {
		Kind: KindAccess, HTTPStatus: http.StatusForbidden,
		PublicMessage: "access denied",
	},
	CodeNotFound: {
		Kind: KindNotFound, HTTPStatus: http.StatusNotFound,
		PublicMessage: "resource not found", EchoMessage: true,
	},
	CodeConflict: {
		Kind: KindConcurrency, HTTPStatus: http.StatusConflict, Retryable: true,
		PublicMessage: "conflict detected", EchoMessage: true,
	},
	CodeStateConflict: {
		Kind: KindInvariant, HTTPStatus: http.StatusUnprocessableEntity,
		PublicMessage: "state transition disallowed", EchoMessage: true, DetailsAllowed: true,
	},
	CodeInsufficientFunds: {
		Kind: KindInvariant, HTTPStatus: http.StatusUnprocessableEntity,
		PublicMessage: "insufficient funds", EchoMessage: true, DetailsAllowed: true,
	},
	CodeIdempotency: {
		Kind: KindValidation, HTTPStatus: http.StatusConflict,
		PublicMessage: "idempotency key reused", EchoMessage: true, DetailsAllowed: true,
	},
	CodeRateLimit: {
		Kind: KindAccess, HTTPStatus: http.StatusTooManyRequests,
		PublicMessage: "rate limit exceeded", EchoMessage: true,
	},
	CodeDependency: {
		Kind: KindExternal, HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		PublicMessage: "dependency unavailable", DetailsAllowed: true,
	},
	CodeGatewayDeclined: {
		Kind: KindExternal, HTTPStatus: http.StatusPaymentRequired,
		PublicMessage: "payment declined", EchoMessage: true, DetailsAllowed: true,
	},
	CodeInternal: {
		Kind: KindInternal, HTTPStatus: http.StatusInternalServerError, Retryable: true,
		PublicMessage: "internal server error",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// KindOf classifies err. Untyped errors are internal.
func KindOf(err error) Kind {
	if typed := As(err); typed != nil {
		return MetadataFor(typed.code).Kind
	}
	return KindInternal
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err (or anything it wraps) is a typed error with the given code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// IsRetryable reports whether the caller may retry the failed operation.
// Untyped errors are treated as infrastructure failures and are not retryable.
func IsRetryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).Retryable
}
