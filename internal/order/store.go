package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the order or attempt does not exist.
	ErrNotFound = errors.New("order: not found")
	// ErrStoreUnavailable indicates the database dependency is not configured.
	ErrStoreUnavailable = errors.New("order: store unavailable")
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and writes orders and payment attempts in Postgres.
type Store struct {
	db  DBTX
	now func() time.Time
}

// NewStore returns a Store on the given pool or transaction.
func NewStore(db DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// Get loads an order by id.
func (s *Store) Get(ctx context.Context, id string) (Order, error) {
	if s == nil || s.db == nil {
		return Order{}, ErrStoreUnavailable
	}
	row := s.db.QueryRow(ctx, `SELECT id, total_amount, status, payment_reference, payment_status, updated_at
FROM orders WHERE id = $1`, id)
	var (
		o         Order
		status    string
		reference sql.NullString
		payStatus sql.NullString
	)
	if err := row.Scan(&o.ID, &o.TotalAmount, &status, &reference, &payStatus, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	parsed, ok := ParseStatus(status)
	if !ok {
		return Order{}, fmt.Errorf("get order %s: unknown status %q", id, status)
	}
	o.Status = parsed
	if reference.Valid {
		o.PaymentReference = &reference.String
	}
	if payStatus.Valid {
		o.PaymentStatus = &payStatus.String
	}
	return o, nil
}

// Create inserts a new order in Pending state.
func (s *Store) Create(ctx context.Context, o Order, userID string) error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	if strings.TrimSpace(o.ID) == "" {
		return errors.New("order: id is required")
	}
	status := o.Status
	if status == "" {
		status = StatusPending
	}
	if !status.Valid() {
		return fmt.Errorf("create order %s: invalid status %q", o.ID, status)
	}
	var user any
	if strings.TrimSpace(userID) != "" {
		user = strings.TrimSpace(userID)
	}
	now := s.now().UTC()
	_, err := s.db.Exec(ctx, `INSERT INTO orders (id, user_id, total_amount, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`, o.ID, user, o.TotalAmount, string(status), now)
	if err != nil {
		return fmt.Errorf("create order %s: %w", o.ID, err)
	}
	return nil
}

// ApplyPayment overwrites the payment fields and lifecycle status of an order.
// Writing the same update twice leaves the row in the same state.
func (s *Store) ApplyPayment(ctx context.Context, id string, upd PaymentUpdate) error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	if !upd.Status.Valid() {
		return fmt.Errorf("apply payment to order %s: invalid status %q", id, upd.Status)
	}
	updatedAt := upd.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	tag, err := s.db.Exec(ctx, `UPDATE orders
SET payment_reference = $2, payment_status = $3, status = $4, updated_at = $5
WHERE id = $1`, id, upd.PaymentReference, upd.PaymentStatus, string(upd.Status), updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("apply payment to order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAttempt inserts or refreshes the attempt keyed by its transaction id.
func (s *Store) RecordAttempt(ctx context.Context, a Attempt) error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	if strings.TrimSpace(a.TransactionID) == "" || strings.TrimSpace(a.OrderID) == "" {
		return errors.New("order: attempt requires transaction and order ids")
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	var email any
	if a.UserEmail != nil && strings.TrimSpace(*a.UserEmail) != "" {
		email = strings.TrimSpace(*a.UserEmail)
	}
	_, err := s.db.Exec(ctx, `INSERT INTO payment_attempts (transaction_id, order_id, amount, user_phone, user_email, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (transaction_id) DO UPDATE
SET amount = EXCLUDED.amount, user_phone = EXCLUDED.user_phone, user_email = EXCLUDED.user_email`,
		a.TransactionID, a.OrderID, a.Amount, a.UserPhone, email, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("record attempt %s: %w", a.TransactionID, err)
	}
	return nil
}

// AttemptByTransaction returns the attempt recorded for a provider transaction id.
func (s *Store) AttemptByTransaction(ctx context.Context, txnID string) (Attempt, error) {
	if s == nil || s.db == nil {
		return Attempt{}, ErrStoreUnavailable
	}
	row := s.db.QueryRow(ctx, `SELECT transaction_id, order_id, amount, user_phone, user_email, created_at
FROM payment_attempts WHERE transaction_id = $1`, txnID)
	var (
		a     Attempt
		email sql.NullString
	)
	if err := row.Scan(&a.TransactionID, &a.OrderID, &a.Amount, &a.UserPhone, &email, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Attempt{}, ErrNotFound
		}
		return Attempt{}, fmt.Errorf("get attempt %s: %w", txnID, err)
	}
	if email.Valid {
		a.UserEmail = &email.String
	}
	return a, nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	var one int
	return s.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
}
