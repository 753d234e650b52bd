package payment

import "github.com/desawali/storefront-api/internal/order"

// Provider states and response codes that drive the order lifecycle.
const (
	StateCompleted      = "COMPLETED"
	StateFailed         = "FAILED"
	ResponseCodeSuccess = "SUCCESS"

	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)

// MapState converts a provider (state, responseCode) pair into the order status and the
// payment status to store. Every input maps to exactly one outcome; unknown states leave
// the order Pending and pass the state through.
func MapState(state, responseCode string) (order.Status, string) {
	switch {
	case state == StateCompleted && responseCode == ResponseCodeSuccess:
		return order.StatusPaid, PaymentStatusSuccess
	case state == StateFailed:
		return order.StatusCancelled, PaymentStatusFailed
	default:
		return order.StatusPending, state
	}
}
