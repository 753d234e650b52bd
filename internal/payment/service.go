package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/desawali/storefront-api/internal/obs"
	"github.com/desawali/storefront-api/internal/order"
)

// AttemptRecorder persists accepted transactions for later lookup.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a order.Attempt) error
}

// Service coordinates payment initiation and status polling.
type Service struct {
	Gateway         Gateway
	Attempts        AttemptRecorder
	Validate        *validator.Validate
	StorefrontURL   string
	CallbackBaseURL string
	Now             func() time.Time
	Logger          zerolog.Logger
}

// InitiateInput is the create-payment request.
type InitiateInput struct {
	OrderID   string `json:"order_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"required"`
	UserPhone string `json:"user_phone" validate:"required"`
	UserEmail string `json:"user_email,omitempty" validate:"omitempty,email"`
}

// Initiated is returned once the provider accepted a transaction.
type Initiated struct {
	TransactionID string
	PaymentURL    string
}

var defaultValidate = validator.New()

// Initiate validates the input, opens a provider transaction and returns the pay-page URL.
// Input is validated before configuration so malformed requests never reach the provider.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (Initiated, error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Initiate")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.initiate.result", result))
		obs.Count(obs.PaymentInitiateTotal, result)
	}()

	in = normaliseInput(in)
	if err := s.validate(in); err != nil {
		result = "invalid"
		return Initiated{}, err
	}
	if s == nil || s.Gateway == nil || !s.Gateway.Configured() {
		result = "not_configured"
		return Initiated{}, ErrNotConfigured
	}
	span.SetAttributes(attribute.String("order.id", in.OrderID))

	txnID := FormatTransactionID(in.OrderID, s.now())
	res, err := s.Gateway.Pay(ctx, PayRequest{
		TransactionID:  txnID,
		MerchantUserID: MerchantUserID(in.OrderID),
		Amount:         in.Amount,
		RedirectURL:    s.redirectURL(in.OrderID),
		CallbackURL:    s.callbackURL(),
		MobileNumber:   in.UserPhone,
	})
	if err != nil {
		span.RecordError(err)
		var upErr *UpstreamError
		if errors.As(err, &upErr) {
			result = "rejected"
		}
		return Initiated{}, err
	}
	result = "success"
	s.recordAttempt(ctx, txnID, in)
	return Initiated{TransactionID: txnID, PaymentURL: res.RedirectURL}, nil
}

// Status proxies the provider status document for transactionID.
func (s *Service) Status(ctx context.Context, transactionID string) (json.RawMessage, error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Status")
	defer span.End()

	result := "error"
	defer func() { obs.Count(obs.PaymentStatusTotal, result) }()

	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		result = "invalid"
		return nil, &ValidationError{Message: "Transaction ID is required"}
	}
	if !ValidTransactionID(transactionID) {
		result = "invalid"
		return nil, ErrInvalidTransactionID
	}
	if s == nil || s.Gateway == nil || !s.Gateway.Configured() {
		result = "not_configured"
		return nil, ErrNotConfigured
	}
	span.SetAttributes(attribute.String("payment.transaction_id", transactionID))
	raw, err := s.Gateway.Status(ctx, transactionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result = "success"
	return raw, nil
}

func (s *Service) validate(in InitiateInput) error {
	v := defaultValidate
	if s != nil && s.Validate != nil {
		v = s.Validate
	}
	if err := v.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ValidationError{Message: "Invalid request"}
		}
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				return &ValidationError{Message: MissingFieldsMessage}
			}
		}
		return &ValidationError{Message: "user_email must be a valid email address"}
	}
	if in.Amount < 0 {
		return &ValidationError{Message: "amount must be greater than zero"}
	}
	if !ValidOrderID(in.OrderID) {
		return &ValidationError{Message: "order_id may only contain letters, digits, '-' and '_'"}
	}
	return nil
}

func (s *Service) recordAttempt(ctx context.Context, txnID string, in InitiateInput) {
	if s.Attempts == nil {
		return
	}
	a := order.Attempt{
		TransactionID: txnID,
		OrderID:       in.OrderID,
		Amount:        in.Amount,
		UserPhone:     in.UserPhone,
		CreatedAt:     s.now(),
	}
	if in.UserEmail != "" {
		email := in.UserEmail
		a.UserEmail = &email
	}
	if err := s.Attempts.RecordAttempt(ctx, a); err != nil {
		s.logger(ctx).Warn().Err(err).Str("transaction_id", txnID).Str("order_id", in.OrderID).Msg("payment_attempt_not_recorded")
	}
}

func (s *Service) redirectURL(orderID string) string {
	return strings.TrimRight(s.StorefrontURL, "/") + "/payment/success?order_id=" + url.QueryEscape(orderID)
}

func (s *Service) callbackURL() string {
	base := strings.TrimRight(s.CallbackBaseURL, "/")
	if base == "" {
		base = strings.TrimRight(s.StorefrontURL, "/")
	}
	return base + "/payments/webhook"
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.Logger
}

func normaliseInput(in InitiateInput) InitiateInput {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.UserPhone = strings.TrimSpace(in.UserPhone)
	in.UserEmail = strings.TrimSpace(in.UserEmail)
	return in
}
