package payment

import (
	"context"
	"encoding/json"
)

// PayRequest captures what the provider needs to open a hosted pay page.
type PayRequest struct {
	TransactionID  string
	MerchantUserID string
	Amount         int64
	RedirectURL    string
	CallbackURL    string
	MobileNumber   string
}

// PayResult is the redirect the customer follows to complete payment.
type PayResult struct {
	RedirectURL string
	Raw         json.RawMessage
}

// Gateway abstracts the payment provider operations the storefront uses.
type Gateway interface {
	// Configured reports whether merchant credentials are present.
	Configured() bool
	Pay(ctx context.Context, req PayRequest) (PayResult, error)
	// Status returns the provider's status document for a transaction unmodified.
	Status(ctx context.Context, transactionID string) (json.RawMessage, error)
}
