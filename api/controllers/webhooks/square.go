package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"

	squarewebhook "github.com/angelmondragon/freightmarket-backend/internal/webhooks/square"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

const squareSignatureHeader = "X-Square-Hmacsha256-Signature"

type SquareWebhookService interface {
	HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error
}

// SquareSigning holds what Square signs a notification with: the
// subscription's signature key and the exact URL it was delivered to.
type SquareSigning struct {
	SignatureKey    string
	NotificationURL string
}

func (s SquareSigning) configured() bool {
	return s.SignatureKey != "" && s.NotificationURL != ""
}

// SquareWebhook accepts signed payment notifications. The payment id stands
// in for a missing event id.
func SquareWebhook(svc SquareWebhookService, signing SquareSigning, guard claimGuard, logg *logger.Logger) http.HandlerFunc {
	ready := svc != nil && signing.configured()
	return providerWebhook("square", squareEventScope, ready, guard, logg, func(r *http.Request, body []byte) (verifiedEvent, error) {
		sig := r.Header.Get(squareSignatureHeader)
		if sig == "" {
			return verifiedEvent{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "square signature missing")
		}
		if !validSquareSignature(body, signing, sig) {
			return verifiedEvent{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature")
		}
		event, err := squarewebhook.DecodeEvent(body)
		if err != nil {
			return verifiedEvent{}, err
		}
		id := strings.TrimSpace(event.EventID)
		if id == "" {
			id = event.Data.ID
		}
		return verifiedEvent{
			id:     id,
			handle: func(ctx context.Context) error { return svc.HandleEvent(ctx, event) },
		}, nil
	})
}

// validSquareSignature checks base64(HMAC-SHA256(key, url + body)).
func validSquareSignature(payload []byte, signing SquareSigning, header string) bool {
	mac := hmac.New(sha256.New, []byte(signing.SignatureKey))
	mac.Write([]byte(signing.NotificationURL))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
