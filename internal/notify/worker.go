package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/desawali/storefront-api/internal/common"
	"github.com/desawali/storefront-api/internal/obs"
	"github.com/desawali/storefront-api/internal/order"
)

// AttemptLookup resolves the customer contact recorded when payment was initiated.
type AttemptLookup interface {
	AttemptByTransaction(ctx context.Context, txnID string) (order.Attempt, error)
}

// Worker sends customer emails for settled payments.
type Worker struct {
	Attempts AttemptLookup
	Mail     common.EmailSender
	Logger   zerolog.Logger
}

// Register wires the worker's handlers into mux.
func (w Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskPaymentSettled, w.HandleSettled)
}

// HandleSettled processes a payment:settled task. Malformed payloads are not retried.
func (w Worker) HandleSettled(ctx context.Context, t *asynq.Task) error {
	var s Settlement
	if err := json.Unmarshal(t.Payload(), &s); err != nil {
		obs.Count(obs.NotificationsTotal, "send", "invalid")
		return fmt.Errorf("notify: decode settlement: %v: %w", err, asynq.SkipRetry)
	}
	if s.OrderID == "" || s.TransactionID == "" {
		obs.Count(obs.NotificationsTotal, "send", "invalid")
		return fmt.Errorf("notify: settlement missing ids: %w", asynq.SkipRetry)
	}
	logger := w.Logger.With().Str("order_id", s.OrderID).Str("transaction_id", s.TransactionID).Logger()
	if w.Mail == nil || w.Attempts == nil {
		obs.Count(obs.NotificationsTotal, "send", "skipped")
		return nil
	}

	attempt, err := w.Attempts.AttemptByTransaction(ctx, s.TransactionID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			logger.Info().Msg("settlement_without_attempt")
			obs.Count(obs.NotificationsTotal, "send", "skipped")
			return nil
		}
		obs.Count(obs.NotificationsTotal, "send", "error")
		return fmt.Errorf("notify: load attempt: %w", err)
	}
	if attempt.UserEmail == nil || strings.TrimSpace(*attempt.UserEmail) == "" {
		obs.Count(obs.NotificationsTotal, "send", "skipped")
		return nil
	}

	subject, body := renderSettlement(s, attempt)
	if err := w.Mail.Send(strings.TrimSpace(*attempt.UserEmail), subject, body); err != nil {
		obs.Count(obs.NotificationsTotal, "send", "error")
		return fmt.Errorf("notify: send email: %w", err)
	}
	obs.Count(obs.NotificationsTotal, "send", "sent")
	logger.Info().Str("status", string(s.Status)).Msg("settlement_email_sent")
	return nil
}

func renderSettlement(s Settlement, a order.Attempt) (string, string) {
	id := html.EscapeString(s.OrderID)
	amount := formatRupees(a.Amount)
	switch s.Status {
	case order.StatusPaid:
		return fmt.Sprintf("Payment received for order %s", s.OrderID),
			fmt.Sprintf("<p>Thank you! We received your payment of %s for order <strong>%s</strong>.</p><p>Reference: %s</p>",
				amount, id, html.EscapeString(s.PaymentReference))
	default:
		return fmt.Sprintf("Payment for order %s was not completed", s.OrderID),
			fmt.Sprintf("<p>Your payment of %s for order <strong>%s</strong> did not go through and the order was cancelled.</p>",
				amount, id)
	}
}

// formatRupees renders an amount in paise.
func formatRupees(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%s₹%d.%02d", sign, paise/100, paise%100)
}
