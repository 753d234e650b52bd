package order

import (
	"strings"
	"time"
)

// Status is the storefront lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusPaid      Status = "Paid"
	StatusPreparing Status = "Preparing"
	StatusShipped   Status = "Shipped"
	StatusDelivered Status = "Delivered"
	StatusCancelled Status = "Cancelled"
	StatusRefunded  Status = "Refunded"
)

var knownStatuses = []Status{
	StatusPending, StatusPaid, StatusPreparing, StatusShipped,
	StatusDelivered, StatusCancelled, StatusRefunded,
}

// Terminal reports whether no further lifecycle transition is expected.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	for _, known := range knownStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus matches a stored status case-insensitively.
func ParseStatus(raw string) (Status, bool) {
	raw = strings.TrimSpace(raw)
	for _, known := range knownStatuses {
		if strings.EqualFold(raw, string(known)) {
			return known, true
		}
	}
	return "", false
}

// Order is the slice of the storefront order record the payment flow reads and writes.
type Order struct {
	ID               string
	TotalAmount      int64
	Status           Status
	PaymentReference *string
	PaymentStatus    *string
	UpdatedAt        time.Time
}

// PaymentUpdate is the set of fields overwritten when a provider reports a payment outcome.
type PaymentUpdate struct {
	PaymentReference string
	PaymentStatus    string
	Status           Status
	UpdatedAt        time.Time
}

// Attempt records a transaction the provider accepted for an order.
type Attempt struct {
	TransactionID string
	OrderID       string
	Amount        int64
	UserPhone     string
	UserEmail     *string
	CreatedAt     time.Time
}
