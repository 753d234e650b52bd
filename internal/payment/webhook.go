package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/desawali/storefront-api/internal/common"
	"github.com/desawali/storefront-api/internal/notify"
	"github.com/desawali/storefront-api/internal/obs"
	"github.com/desawali/storefront-api/internal/order"
)

// OrderWriter is the slice of the order store the webhook needs.
type OrderWriter interface {
	ApplyPayment(ctx context.Context, id string, upd order.PaymentUpdate) error
}

// Locker serialises work on a named resource.
type Locker interface {
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error
}

// SettlementNotifier is told about orders that reached Paid or Cancelled.
type SettlementNotifier interface {
	NotifySettled(ctx context.Context, s notify.Settlement) error
}

type replayStore interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Webhook receives signed payment notifications and applies them to orders.
type Webhook struct {
	Secret    string
	Orders    OrderWriter
	Replay    replayStore
	ReplayTTL time.Duration
	Locker    Locker
	LockTTL   time.Duration
	Notifier  SettlementNotifier
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Notification is the decoded provider callback.
type Notification struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantID            string `json:"merchantId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		State                 string `json:"state"`
		ResponseCode          string `json:"responseCode"`
	} `json:"data"`
}

// Outcome is the effect a verified notification had on its order.
type Outcome struct {
	OrderID       string
	Status        order.Status
	PaymentStatus string
	Replayed      bool
}

type webhookBody struct {
	Response string `json:"response"`
}

const webhookAckMessage = "Webhook processed successfully"

// Handle is the HTTP entry point for provider callbacks.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	var body webhookBody
	if h.configured() {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
				return
			}
			body.Response = ""
		}
	}
	out, err := h.Process(r.Context(), r.Header.Get(headerVerify), body.Response)
	if err != nil {
		if errors.Is(err, errMissingWebhookInput) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "Missing required headers or body")
			return
		}
		if errors.Is(err, errMalformedNotification) {
			common.JSONError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "Invalid response payload")
			return
		}
		writeError(w, r, h.Logger, err)
		return
	}
	h.logger(r.Context()).Info().
		Str("order_id", out.OrderID).
		Str("order_status", string(out.Status)).
		Str("payment_status", out.PaymentStatus).
		Bool("replayed", out.Replayed).
		Msg("payment_webhook_applied")
	common.JSON(w, http.StatusOK, map[string]any{
		"status":  common.StatusSuccess,
		"success": true,
		"message": webhookAckMessage,
	})
}

var (
	errMissingWebhookInput   = errors.New("payment: webhook signature or response missing")
	errMalformedNotification = errors.New("payment: malformed notification")
)

// Process runs the webhook gates in order: configuration, presence, signature, decode,
// order resolution, status mapping and persistence. Nothing is decoded before the
// signature verifies, and no state changes unless every earlier gate passed.
func (h Webhook) Process(ctx context.Context, signature, response string) (Outcome, error) {
	ctx, span := otel.Tracer("payment.Webhook").Start(ctx, "PaymentWebhook.Process")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.webhook.result", result))
		obs.Count(obs.PaymentWebhookTotal, result)
	}()

	if !h.configured() {
		result = "not_configured"
		return Outcome{}, ErrNotConfigured
	}
	signature = strings.TrimSpace(signature)
	if signature == "" || response == "" {
		result = "invalid"
		return Outcome{}, errMissingWebhookInput
	}
	if !Verify(signature, response, StatusPathPrefix, h.Secret) {
		result = "bad_signature"
		return Outcome{}, ErrInvalidSignature
	}

	replayKey := "payment:webhook:seen:" + common.Sha256Hex(response)
	replayed := h.seen(ctx, replayKey)

	n, out, err := resolve(response)
	if err != nil {
		result = "invalid"
		return Outcome{}, err
	}
	if replayed {
		result = "replayed"
		out.Replayed = true
		return out, nil
	}
	orderID, status, paymentStatus := out.OrderID, out.Status, out.PaymentStatus
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("payment.state", n.Data.State),
	)
	upd := order.PaymentUpdate{
		PaymentReference: n.Data.TransactionID,
		PaymentStatus:    paymentStatus,
		Status:           status,
		UpdatedAt:        h.now(),
	}

	apply := func(ctx context.Context) error {
		if err := h.Orders.ApplyPayment(ctx, orderID, upd); err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return err
			}
			return &PersistenceError{OrderID: orderID, Err: err}
		}
		h.markSeen(ctx, replayKey)
		return nil
	}
	if h.Locker != nil {
		err = h.Locker.WithLock(ctx, orderID, h.lockTTL(), apply)
		var pErr *PersistenceError
		if err != nil && !errors.Is(err, order.ErrNotFound) && !errors.As(err, &pErr) {
			err = &PersistenceError{OrderID: orderID, Err: err}
		}
	} else {
		err = apply(ctx)
	}
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, order.ErrNotFound) {
			result = "unknown_order"
		}
		return Outcome{}, err
	}
	result = "applied"
	h.notify(ctx, out, n.Data.MerchantTransactionID, n.Data.TransactionID)
	return out, nil
}

// DecodeNotification base64-decodes and parses a verified response field.
func DecodeNotification(response string) (Notification, error) {
	raw, err := base64.StdEncoding.DecodeString(response)
	if err != nil {
		return Notification{}, errMalformedNotification
	}
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return Notification{}, errMalformedNotification
	}
	return n, nil
}

func resolve(response string) (Notification, Outcome, error) {
	n, err := DecodeNotification(response)
	if err != nil {
		return Notification{}, Outcome{}, err
	}
	orderID, err := ParseTransactionID(n.Data.MerchantTransactionID)
	if err != nil {
		return Notification{}, Outcome{}, err
	}
	status, paymentStatus := MapState(n.Data.State, n.Data.ResponseCode)
	return n, Outcome{OrderID: orderID, Status: status, PaymentStatus: paymentStatus}, nil
}

func (h Webhook) notify(ctx context.Context, out Outcome, merchantTxnID, providerTxnID string) {
	if h.Notifier == nil || (out.Status != order.StatusPaid && out.Status != order.StatusCancelled) {
		return
	}
	err := h.Notifier.NotifySettled(ctx, notify.Settlement{
		OrderID:          out.OrderID,
		TransactionID:    merchantTxnID,
		PaymentReference: providerTxnID,
		Status:           out.Status,
		PaymentStatus:    out.PaymentStatus,
	})
	if err != nil {
		h.logger(ctx).Warn().Err(err).Str("order_id", out.OrderID).Msg("settlement_notification_not_queued")
	}
}

func (h Webhook) seen(ctx context.Context, key string) bool {
	if h.Replay == nil || h.ReplayTTL <= 0 {
		return false
	}
	n, err := h.Replay.Exists(ctx, key).Result()
	if err != nil {
		h.logger(ctx).Warn().Err(err).Msg("webhook_replay_lookup_failed")
		return false
	}
	return n > 0
}

func (h Webhook) markSeen(ctx context.Context, key string) {
	if h.Replay == nil || h.ReplayTTL <= 0 {
		return
	}
	if err := h.Replay.Set(ctx, key, "1", h.ReplayTTL).Err(); err != nil {
		h.logger(ctx).Warn().Err(err).Msg("webhook_replay_mark_failed")
	}
}

func (h Webhook) configured() bool {
	return h.Secret != "" && h.Orders != nil
}

func (h Webhook) lockTTL() time.Duration {
	if h.LockTTL > 0 {
		return h.LockTTL
	}
	return 10 * time.Second
}

func (h Webhook) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h Webhook) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.Logger
}
