package payment_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/desawali/storefront-api/internal/order"
	"github.com/desawali/storefront-api/internal/payment"
)

func TestMapStateTotal(t *testing.T) {
	states := []string{"COMPLETED", "FAILED", "PENDING", "completed", "", "UNKNOWN"}
	codes := []string{"SUCCESS", "PAYMENT_ERROR", "PAYMENT_PENDING", "", "success"}

	for _, state := range states {
		for _, code := range codes {
			status, paymentStatus := payment.MapState(state, code)
			switch {
			case state == "COMPLETED" && code == "SUCCESS":
				require.Equal(t, order.StatusPaid, status)
				require.Equal(t, "SUCCESS", paymentStatus)
			case state == "FAILED":
				require.Equal(t, order.StatusCancelled, status)
				require.Equal(t, "FAILED", paymentStatus)
			default:
				require.Equal(t, order.StatusPending, status, "%s/%s", state, code)
				require.Equal(t, state, paymentStatus)
			}
		}
	}
}

func TestMapStateCompletedWithoutSuccessStaysPending(t *testing.T) {
	status, paymentStatus := payment.MapState("COMPLETED", "PAYMENT_PENDING")
	require.Equal(t, order.StatusPending, status)
	require.Equal(t, "COMPLETED", paymentStatus)
}
