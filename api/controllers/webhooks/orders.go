package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payswitch-backend/api/responses"
	"github.com/angelmondragon/payswitch-backend/internal/usage"
	orderwebhook "github.com/angelmondragon/payswitch-backend/internal/webhooks/orders"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Payswitch-Signature"

const maxPayloadBytes = 1 << 20

type OrderWebhookService interface {
	HandleEvent(ctx context.Context, event *orderwebhook.OrderEvent) (*usage.Result, error)
}

type orderWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type orderEventResponse struct {
	EventID   string           `json:"event_id"`
	Duplicate bool             `json:"duplicate"`
	Status    usage.Status     `json:"status,omitempty"`
	OrderID   string           `json:"order_id,omitempty"`
	AccountID *uuid.UUID       `json:"account_id,omitempty"`
	Usage     *decimal.Decimal `json:"usage,omitempty"`
	Switched  bool             `json:"switched,omitempty"`
}

// OrderWebhook applies signed storefront order events. Each event id is applied at most
// once; a failed event is released so the sender's retry can apply it.
func OrderWebhook(svc OrderWebhookService, secret string, guard orderWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}
		if secret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook signing secret not configured"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := strings.TrimSpace(r.Header.Get(SignatureHeader))
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing"))
			return
		}
		if !ValidSignature(payload, secret, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var event orderwebhook.OrderEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		eventID := strings.TrimSpace(event.EventID)
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"event_id": eventID, "event_type": event.Type})
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, orderEventResponse{EventID: eventID, Duplicate: true})
			return
		}

		result, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			_ = guard.Delete(ctx, eventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "webhook.order_event_processed")
		}
		resp := orderEventResponse{EventID: eventID}
		if result != nil {
			resp.Status = result.Status
			resp.OrderID = result.OrderID
			resp.AccountID = result.AccountID
			resp.Usage = result.Usage
			resp.Switched = result.Switch != nil && result.Switch.Switched
		}
		responses.WriteSuccess(w, resp)
	}
}

// ValidSignature reports whether header is the hex HMAC-SHA256 of payload under secret.
func ValidSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(strings.ToLower(header)))
}

// Sign computes the signature a sender puts in SignatureHeader.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
