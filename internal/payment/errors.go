package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when merchant credentials or the order store are missing.
	ErrNotConfigured = errors.New("payment: gateway not configured")
	// ErrInvalidSignature is returned when an inbound checksum does not verify.
	ErrInvalidSignature = errors.New("payment: invalid signature")
	// ErrInvalidTransactionID is returned when no order id can be recovered from a transaction id.
	ErrInvalidTransactionID = errors.New("payment: invalid transaction id")
)

// MissingFieldsMessage is reported when a create request lacks a required field.
const MissingFieldsMessage = "Missing required fields: order_id, amount, user_phone"

// ValidationError describes caller input that was rejected before any provider call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "payment: " + e.Message }

// UpstreamError carries a failure reported by the provider.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("payment: provider %s failed (http %d, code %q): %s", e.Operation, e.StatusCode, e.Code, e.Message)
}

// PersistenceError wraps an order store failure.
type PersistenceError struct {
	OrderID string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("payment: persist order %s: %v", e.OrderID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
