package order_test

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/desawali/storefront-api/internal/order"
)

type fakeRow struct {
	err    error
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *int64:
			*p = r.values[i].(int64)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			if sc, ok := d.(interface{ Scan(any) error }); ok {
				if err := sc.Scan(r.values[i]); err != nil {
					return err
				}
				continue
			}
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type fakeDB struct {
	tag     pgconn.CommandTag
	execErr error
	row     fakeRow
	args    []any
}

func (f *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.args = args
	return f.tag, f.execErr
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.args = args
	return f.row
}

func TestApplyPaymentUnknownOrder(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")}
	err := order.NewStore(db).ApplyPayment(context.Background(), "ORD1", order.PaymentUpdate{
		PaymentReference: "T1", PaymentStatus: "SUCCESS", Status: order.StatusPaid,
	})
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestApplyPaymentWritesAllFields(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 1")}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	err := order.NewStore(db).ApplyPayment(context.Background(), "ORD1", order.PaymentUpdate{
		PaymentReference: "T1", PaymentStatus: "FAILED", Status: order.StatusCancelled, UpdatedAt: at,
	})
	require.NoError(t, err)
	require.Equal(t, []any{"ORD1", "T1", "FAILED", "Cancelled", at}, db.args)
}

func TestApplyPaymentRejectsUnknownStatus(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 1")}
	err := order.NewStore(db).ApplyPayment(context.Background(), "ORD1", order.PaymentUpdate{Status: "Lost"})
	require.Error(t, err)
	require.Nil(t, db.args)
}

func TestGetMapsNoRows(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	_, err := order.NewStore(db).Get(context.Background(), "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestGetScansNullableColumns(t *testing.T) {
	at := time.Now().UTC()
	db := &fakeDB{row: fakeRow{values: []any{"ORD1", int64(49900), "Pending", nil, "PENDING", at}}}
	o, err := order.NewStore(db).Get(context.Background(), "ORD1")
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, o.Status)
	require.Nil(t, o.PaymentReference)
	require.NotNil(t, o.PaymentStatus)
	require.Equal(t, "PENDING", *o.PaymentStatus)
}

func TestCreateDefaultsToPending(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("INSERT 0 1")}
	err := order.NewStore(db).Create(context.Background(), order.Order{ID: "ORD1", TotalAmount: 49900}, "")
	require.NoError(t, err)
	require.Len(t, db.args, 5)
	require.Equal(t, "ORD1", db.args[0])
	require.Nil(t, db.args[1])
	require.Equal(t, "Pending", db.args[3])

	require.Error(t, order.NewStore(db).Create(context.Background(), order.Order{ID: " "}, ""))
	require.Error(t, order.NewStore(db).Create(context.Background(), order.Order{ID: "ORD2", Status: "Lost"}, ""))
}

func TestNilStoreUnavailable(t *testing.T) {
	var s *order.Store
	_, err := s.Get(context.Background(), "x")
	require.ErrorIs(t, err, order.ErrStoreUnavailable)
	require.ErrorIs(t, s.ApplyPayment(context.Background(), "x", order.PaymentUpdate{}), order.ErrStoreUnavailable)
}

// Runs against a real database when TEST_DATABASE_URL is set.
func TestStorePostgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	m, err := order.NewMigrator(dsn)
	require.NoError(t, err)
	require.NoError(t, order.MigrateUp(m))
	t.Cleanup(func() { _, _ = m.Close() })

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	id := "ORD-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	store := order.NewStore(pool)
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Create(ctx, order.Order{ID: id, TotalAmount: 49900}, ""))
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM orders WHERE id = $1`, id) })

	created, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, created.Status)

	upd := order.PaymentUpdate{PaymentReference: "T123", PaymentStatus: "SUCCESS", Status: order.StatusPaid}
	require.NoError(t, store.ApplyPayment(ctx, id, upd))
	require.NoError(t, store.ApplyPayment(ctx, id, upd))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, got.Status)
	require.Equal(t, "T123", *got.PaymentReference)
	require.Equal(t, "SUCCESS", *got.PaymentStatus)

	email := "buyer@example.com"
	txn := "TXN_" + id + "_1700000000000"
	require.NoError(t, store.RecordAttempt(ctx, order.Attempt{TransactionID: txn, OrderID: id, Amount: 49900, UserPhone: "9999999999", UserEmail: &email}))
	attempt, err := store.AttemptByTransaction(ctx, txn)
	require.NoError(t, err)
	require.Equal(t, id, attempt.OrderID)
	require.Equal(t, email, *attempt.UserEmail)

	_, err = store.AttemptByTransaction(ctx, "TXN_missing_1")
	require.ErrorIs(t, err, order.ErrNotFound)
}
