package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/desawali/storefront-api/internal/common"
	"github.com/desawali/storefront-api/internal/notify"
	"github.com/desawali/storefront-api/internal/order"
)

type fakeClient struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "x"}, nil
}

type fakeAttempts map[string]order.Attempt

func (f fakeAttempts) AttemptByTransaction(_ context.Context, txn string) (order.Attempt, error) {
	a, ok := f[txn]
	if !ok {
		return order.Attempt{}, order.ErrNotFound
	}
	return a, nil
}

func settlement() notify.Settlement {
	return notify.Settlement{
		OrderID:          "ORD1",
		TransactionID:    "TXN_ORD1_1700000000000",
		PaymentReference: "T2405011234",
		Status:           order.StatusPaid,
		PaymentStatus:    "SUCCESS",
	}
}

func TestEnqueuerPublishesSettledTask(t *testing.T) {
	client := &fakeClient{}
	require.NoError(t, notify.Enqueuer{Client: client, Queue: "notifications"}.NotifySettled(context.Background(), settlement()))
	require.Len(t, client.tasks, 1)
	require.Equal(t, notify.TaskPaymentSettled, client.tasks[0].Type())

	var got notify.Settlement
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &got))
	require.Equal(t, settlement(), got)
}

func TestEnqueuerTreatsConflictAsSuccess(t *testing.T) {
	client := &fakeClient{err: asynq.ErrTaskIDConflict}
	require.NoError(t, notify.Enqueuer{Client: client}.NotifySettled(context.Background(), settlement()))

	client.err = errors.New("redis down")
	require.Error(t, notify.Enqueuer{Client: client}.NotifySettled(context.Background(), settlement()))
}

func TestEnqueuerRejectsIncompleteSettlement(t *testing.T) {
	s := settlement()
	s.TransactionID = ""
	require.Error(t, notify.Enqueuer{Client: &fakeClient{}}.NotifySettled(context.Background(), s))
}

func TestWorkerSendsPaidEmail(t *testing.T) {
	email := "buyer@example.com"
	mail := &common.InMemoryEmail{}
	w := notify.Worker{
		Attempts: fakeAttempts{"TXN_ORD1_1700000000000": {TransactionID: "TXN_ORD1_1700000000000", OrderID: "ORD1", Amount: 49900, UserEmail: &email}},
		Mail:     mail,
	}
	task, err := notify.NewSettledTask(settlement())
	require.NoError(t, err)

	require.NoError(t, w.HandleSettled(context.Background(), task))
	sent := mail.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, email, sent[0].To)
	require.Contains(t, sent[0].Subject, "ORD1")
	require.Contains(t, sent[0].HTML, "₹499.00")
}

func TestWorkerSkipsWithoutEmail(t *testing.T) {
	mail := &common.InMemoryEmail{}
	w := notify.Worker{Attempts: fakeAttempts{}, Mail: mail}
	task, err := notify.NewSettledTask(settlement())
	require.NoError(t, err)

	require.NoError(t, w.HandleSettled(context.Background(), task))
	require.Empty(t, mail.Sent())
}

func TestWorkerSkipsRetryOnMalformedPayload(t *testing.T) {
	w := notify.Worker{Attempts: fakeAttempts{}, Mail: &common.InMemoryEmail{}}
	err := w.HandleSettled(context.Background(), asynq.NewTask(notify.TaskPaymentSettled, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
