package payment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/desawali/storefront-api/internal/common"
	"github.com/desawali/storefront-api/internal/order"
)

// Handler exposes the create and verify payment endpoints.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

type createResponse struct {
	Status     string `json:"status"`
	PaymentURL string `json:"payment_url"`
	PaymentID  string `json:"payment_id"`
	Message    string `json:"message"`
}

type verifyResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// Create opens a provider pay page for an order.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in InitiateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
			return
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}
	if h == nil || h.Svc == nil {
		writeError(w, r, zerolog.Nop(), ErrNotConfigured)
		return
	}
	res, err := h.Svc.Initiate(r.Context(), in)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	common.JSON(w, http.StatusOK, createResponse{
		Status:     common.StatusSuccess,
		PaymentURL: res.PaymentURL,
		PaymentID:  res.TransactionID,
		Message:    "Payment initiated successfully",
	})
}

// Verify returns the provider's status document for the transaction_id query parameter.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		writeError(w, r, zerolog.Nop(), ErrNotConfigured)
		return
	}
	raw, err := h.Svc.Status(r.Context(), r.URL.Query().Get("transaction_id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	common.JSON(w, http.StatusOK, verifyResponse{Status: common.StatusSuccess, Data: raw})
}

// writeError maps payment errors to the unified error body. Internal details are logged only.
func writeError(w http.ResponseWriter, r *http.Request, fallback zerolog.Logger, err error) {
	logger := zerolog.Ctx(r.Context())
	if logger.GetLevel() == zerolog.Disabled {
		logger = &fallback
	}
	appErr := toAppError(err)
	switch appErr.Code {
	case "PAYMENT_NOT_CONFIGURED":
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("payment_gateway_not_configured")
	case "INVALID_SIGNATURE":
		logger.Warn().Str("path", r.URL.Path).Str("remote_ip", common.ClientIP(r)).Msg("payment_signature_rejected")
	case "PAYMENT_FAILED":
		var upErr *UpstreamError
		if errors.As(err, &upErr) {
			logger.Warn().Str("operation", upErr.Operation).Int("provider_status", upErr.StatusCode).Str("provider_code", upErr.Code).Msg("payment_provider_rejected")
		}
	case "PERSISTENCE_ERROR":
		var pErr *PersistenceError
		if errors.As(err, &pErr) {
			logger.Error().Err(err).Str("order_id", pErr.OrderID).Msg("payment_persist_failed")
		}
	case "INTERNAL":
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("payment_request_failed")
	}
	common.WriteAppError(w, appErr)
}

func toAppError(err error) *common.AppError {
	var (
		verr  *ValidationError
		upErr *UpstreamError
		pErr  *PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		return common.NewAppError("VALIDATION_ERROR", verr.Message, http.StatusBadRequest, err)
	case errors.Is(err, ErrNotConfigured):
		return common.NewAppError("PAYMENT_NOT_CONFIGURED", "Payment gateway not configured", http.StatusInternalServerError, err)
	case errors.Is(err, ErrInvalidSignature):
		return common.NewAppError("INVALID_SIGNATURE", "Invalid signature", http.StatusBadRequest, err)
	case errors.Is(err, ErrInvalidTransactionID):
		return common.NewAppError("INVALID_TRANSACTION_ID", "Invalid transaction ID format", http.StatusBadRequest, err)
	case errors.As(err, &upErr):
		msg := upErr.Message
		if msg == "" {
			msg = "Payment initiation failed"
		}
		return common.NewAppError("PAYMENT_FAILED", msg, http.StatusBadRequest, err)
	case errors.Is(err, order.ErrNotFound):
		return common.NewAppError("ORDER_NOT_FOUND", "Order not found", http.StatusNotFound, err)
	case errors.As(err, &pErr):
		return common.NewAppError("PERSISTENCE_ERROR", "Database update failed", http.StatusInternalServerError, err)
	default:
		return common.NewAppError("INTERNAL", "Internal server error", http.StatusInternalServerError, err)
	}
}
