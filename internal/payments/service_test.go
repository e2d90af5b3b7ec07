package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tijarahq/tijara-backend/internal/orders"
	"github.com/tijarahq/tijara-backend/pkg/db/models"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
)

type memoryIdempotencyStore struct {
	keys map[string]string
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{keys: map[string]string{}}
}

func (s *memoryIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	return s.keys[key], nil
}

func (s *memoryIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = "1"
	return true, nil
}

func (s *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "tj:idem:" + scope + ":" + id
}

func (s *memoryIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

type stubGateway struct {
	method  enums.PaymentMethod
	session *ChargeSession
	result  *ChargeResult
	err     error
}

func (g *stubGateway) Method() enums.PaymentMethod {
	return g.method
}

func (g *stubGateway) CreateCharge(ctx context.Context, order *models.Order) (*ChargeSession, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.session, nil
}

func (g *stubGateway) VerifyCharge(ctx context.Context, externalID string) (*ChargeResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func newPaymentService(t *testing.T, f *reconcileFixture, gateway Gateway) Service {
	t.Helper()

	guard, err := NewIdempotencyGuard(newMemoryIdempotencyStore(), time.Hour, "gateway")
	require.NoError(t, err)

	svc, err := NewService(orders.NewRepository(f.db), NewSelector(gateway, NewCashGateway()), f.reconciler, guard, nil)
	require.NoError(t, err)
	return svc
}

func TestInitiate_ReturnsChargeSession(t *testing.T) {
	f := newReconcileFixture(t)
	gateway := &stubGateway{
		method:  enums.PaymentMethodGateway,
		session: &ChargeSession{ChargeID: "ch_1", RedirectURL: "https://pay.example.com/ch_1"},
	}
	svc := newPaymentService(t, f, gateway)

	session, err := svc.Initiate(context.Background(), f.order.ID, f.order.BuyerID)
	require.NoError(t, err)
	assert.Equal(t, "ch_1", session.ChargeID)

	// initiation never mutates the order
	assert.Equal(t, enums.OrderStatusPendingPayment, f.orderStatus(t))
}

func TestInitiate_GatewayFailureLeavesOrderPending(t *testing.T) {
	f := newReconcileFixture(t)
	gateway := &stubGateway{
		method: enums.PaymentMethodGateway,
		err:    pkgerrors.New(pkgerrors.CodeGatewayTimeout, "gateway call timed out"),
	}
	svc := newPaymentService(t, f, gateway)

	_, err := svc.Initiate(context.Background(), f.order.ID, f.order.BuyerID)
	require.Error(t, err)

	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeGatewayTimeout, appErr.Code())
	assert.Equal(t, enums.OrderStatusPendingPayment, f.orderStatus(t))
}

func TestInitiate_WrongBuyer(t *testing.T) {
	f := newReconcileFixture(t)
	svc := newPaymentService(t, f, &stubGateway{method: enums.PaymentMethodGateway})

	_, err := svc.Initiate(context.Background(), f.order.ID, uuid.New())
	require.Error(t, err)

	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeForbidden, appErr.Code())
}

func TestInitiate_NotPendingPayment(t *testing.T) {
	f := newReconcileFixture(t)
	require.NoError(t, f.db.Model(&models.Order{}).
		Where("id = ?", f.order.ID).
		Update("status", enums.OrderStatusPaid).Error)
	svc := newPaymentService(t, f, &stubGateway{method: enums.PaymentMethodGateway})

	_, err := svc.Initiate(context.Background(), f.order.ID, f.order.BuyerID)
	require.Error(t, err)

	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
}

func TestHandleWebhook_AppliesOnce(t *testing.T) {
	f := newReconcileFixture(t)
	svc := newPaymentService(t, f, &stubGateway{method: enums.PaymentMethodGateway})
	ctx := context.Background()

	event := WebhookEvent{
		EventID:       "evt_1",
		TransactionID: "txn_hook",
		Status:        "captured",
		OrderID:       f.order.ID,
		Amount:        "60.00",
		Currency:      "USD",
	}

	first, err := svc.HandleWebhook(ctx, event)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, OutcomePaid, first.Outcome)

	// exact redelivery stops at the redis guard
	second, err := svc.HandleWebhook(ctx, event)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, OutcomeNotPending, second.Outcome)

	assert.Equal(t, enums.OrderStatusPaid, f.orderStatus(t))
}

func TestHandleWebhook_SameChargeDifferentEventID(t *testing.T) {
	f := newReconcileFixture(t)
	svc := newPaymentService(t, f, &stubGateway{method: enums.PaymentMethodGateway})
	ctx := context.Background()

	_, err := svc.HandleWebhook(ctx, WebhookEvent{
		EventID:       "evt_a",
		TransactionID: "txn_dup",
		Status:        "captured",
		OrderID:       f.order.ID,
		Amount:        "60.00",
		Currency:      "USD",
	})
	require.NoError(t, err)

	// the guard passes a fresh event id; the DB status check still wins
	result, err := svc.HandleWebhook(ctx, WebhookEvent{
		EventID:       "evt_b",
		TransactionID: "txn_dup",
		Status:        "captured",
		OrderID:       f.order.ID,
		Amount:        "60.00",
		Currency:      "USD",
	})
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, OutcomeNotPending, result.Outcome)

	item := f.inventoryState(t)
	assert.Equal(t, 7, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)
}

func TestHandleCallback_VerifiesThenReconciles(t *testing.T) {
	f := newReconcileFixture(t)
	gateway := &stubGateway{
		method: enums.PaymentMethodGateway,
		result: &ChargeResult{
			TransactionID: "txn_cb",
			Status:        enums.ChargeStatusCaptured,
			AmountCents:   6000,
			Currency:      "USD",
			OrderID:       f.order.ID,
		},
	}
	svc := newPaymentService(t, f, gateway)

	result, err := svc.HandleCallback(context.Background(), "txn_cb")
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, OutcomePaid, result.Outcome)
	assert.Equal(t, enums.OrderStatusPaid, f.orderStatus(t))
}

func TestHandleCallback_WebhookAlreadyWon(t *testing.T) {
	f := newReconcileFixture(t)
	gateway := &stubGateway{
		method: enums.PaymentMethodGateway,
		result: &ChargeResult{
			TransactionID: "txn_race",
			Status:        enums.ChargeStatusCaptured,
			AmountCents:   6000,
			Currency:      "USD",
			OrderID:       f.order.ID,
		},
	}
	svc := newPaymentService(t, f, gateway)
	ctx := context.Background()

	_, err := svc.HandleWebhook(ctx, WebhookEvent{
		EventID:       "evt_race",
		TransactionID: "txn_race",
		Status:        "captured",
		OrderID:       f.order.ID,
		Amount:        "60.00",
		Currency:      "USD",
	})
	require.NoError(t, err)

	result, err := svc.HandleCallback(ctx, "txn_race")
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, OutcomeNotPending, result.Outcome)
}
