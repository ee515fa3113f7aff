package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	_ = writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteError renders err as the public error envelope and logs it: client
// faults at warn, server faults at error with the cause chain.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	status, body := Public(err)
	if logg != nil {
		logError(ctx, logg, status, err)
	}
	if werr := writeJSON(w, status, ErrorEnvelope{Error: body}); werr != nil && logg != nil {
		logg.Error(ctx, "response.encode_failed", werr)
	}
}

// Public is the status and body a client may see for err. Untyped errors are
// reported as internal without their text.
func Public(err error) (int, APIError) {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := APIError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.EchoMessage && typed.Message() != "" {
		body.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}
	return meta.HTTPStatus, body
}

func logError(ctx context.Context, logg *logger.Logger, status int, err error) {
	serverSide := status >= http.StatusInternalServerError
	fields := pkgerrors.Dump(err).Fields(serverSide)
	fields["http_status"] = status
	ctx = logg.WithFields(ctx, fields)
	if serverSide {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(ctx, "request.rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}
