package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tijarahq/tijara-backend/internal/inventory"
	"github.com/tijarahq/tijara-backend/internal/orders"
	"github.com/tijarahq/tijara-backend/pkg/db/models"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	"github.com/tijarahq/tijara-backend/pkg/metrics"
	"github.com/tijarahq/tijara-backend/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:payments_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Supplier{},
		&models.Product{},
		&models.InventoryItem{},
		&models.Order{},
		&models.OrderLine{},
		&models.OrderDetail{},
		&models.StatusHistory{},
		&models.Payment{},
	))
	return db
}

type reconcileFixture struct {
	db         *gorm.DB
	reconciler *Reconciler
	events     *recordingOutbox
	order      *models.Order
	productID  uuid.UUID
}

// newReconcileFixture seeds an order awaiting payment with 3 units reserved.
func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	db := newTestDB(t)

	supplier := models.Supplier{Name: "Reconcile Supplier", IsActive: true}
	require.NoError(t, db.Create(&supplier).Error)

	product := models.Product{
		SupplierID: supplier.ID,
		SKU:        "SKU-" + uuid.NewString()[:8],
		Name:       "Case of Widgets",
		PriceCents: 2000,
		Status:     enums.ProductStatusPublished,
		IsActive:   true,
	}
	require.NoError(t, db.Create(&product).Error)
	require.NoError(t, db.Create(&models.InventoryItem{
		ProductID:    product.ID,
		AvailableQty: 7,
		ReservedQty:  3,
	}).Error)

	order := models.Order{
		BuyerID:       uuid.New(),
		SupplierID:    supplier.ID,
		Status:        enums.OrderStatusPendingPayment,
		Currency:      "USD",
		SubtotalCents: 6000,
		TotalCents:    6000,
		ExpiresAt:     time.Now().Add(30 * time.Minute),
	}
	require.NoError(t, db.Create(&order).Error)
	require.NoError(t, db.Create(&models.OrderLine{
		OrderID:        order.ID,
		ProductID:      product.ID,
		Name:           product.Name,
		Qty:            3,
		UnitPriceCents: 2000,
		TotalCents:     6000,
	}).Error)
	require.NoError(t, db.Create(&models.OrderDetail{
		OrderID:       order.ID,
		PaymentMethod: enums.PaymentMethodGateway,
		PaymentStatus: enums.PaymentStatusUnpaid,
	}).Error)

	events := &recordingOutbox{}
	reconciler, err := NewReconciler(
		NewRepository(db),
		orders.NewRepository(db),
		orders.NewMachine(),
		inventory.NewLedger(),
		gormTxRunner{db: db},
		events,
		metrics.NewReconcileMetrics(prometheus.NewRegistry()),
	)
	require.NoError(t, err)

	return &reconcileFixture{
		db:         db,
		reconciler: reconciler,
		events:     events,
		order:      &order,
		productID:  product.ID,
	}
}

func (f *reconcileFixture) inventoryState(t *testing.T) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, f.db.Where("product_id = ?", f.productID).First(&item).Error)
	return item
}

func (f *reconcileFixture) orderStatus(t *testing.T) enums.OrderStatus {
	t.Helper()
	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", f.order.ID).Error)
	return stored.Status
}

func TestReconcile_CapturedSettlesOrder(t *testing.T) {
	f := newReconcileFixture(t)

	result, err := f.reconciler.Reconcile(context.Background(), ReconcileInput{
		TransactionID:  "txn-100",
		ExternalStatus: enums.ChargeStatusCaptured,
		OrderID:        f.order.ID,
		AmountCents:    6000,
		Currency:       "USD",
	})
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, OutcomePaid, result.Outcome)
	assert.Equal(t, enums.OrderStatusPaid, f.orderStatus(t))

	// reservation committed: reserved drops, available is NOT incremented
	item := f.inventoryState(t)
	assert.Equal(t, 7, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)

	var payment models.Payment
	require.NoError(t, f.db.Where("transaction_id = ?", "txn-100").First(&payment).Error)
	assert.Equal(t, f.order.ID, payment.OrderID)
	assert.Equal(t, enums.PaymentStatusPaid, payment.Status)
	assert.Equal(t, 6000, payment.AmountCents)

	var detail models.OrderDetail
	require.NoError(t, f.db.Where("order_id = ?", f.order.ID).First(&detail).Error)
	assert.Equal(t, enums.PaymentStatusPaid, detail.PaymentStatus)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, enums.EventOrderPaid, f.events.events[0].EventType)
}

func TestReconcile_ReplayedWebhookIsNoOp(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	input := ReconcileInput{
		TransactionID:  "txn-200",
		ExternalStatus: enums.ChargeStatusCaptured,
		OrderID:        f.order.ID,
		AmountCents:    6000,
		Currency:       "USD",
	}

	first, err := f.reconciler.Reconcile(ctx, input)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := f.reconciler.Reconcile(ctx, input)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, OutcomeNotPending, second.Outcome)
	assert.Equal(t, enums.OrderStatusPaid, second.OrderStatus)

	// no duplicate stock effect, history entry, or payment row
	item := f.inventoryState(t)
	assert.Equal(t, 7, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)

	var historyCount int64
	require.NoError(t, f.db.Model(&models.StatusHistory{}).
		Where("order_id = ?", f.order.ID).Count(&historyCount).Error)
	assert.EqualValues(t, 1, historyCount)

	var paymentCount int64
	require.NoError(t, f.db.Model(&models.Payment{}).
		Where("transaction_id = ?", "txn-200").Count(&paymentCount).Error)
	assert.EqualValues(t, 1, paymentCount)
}

func TestReconcile_FailedReleasesStock(t *testing.T) {
	f := newReconcileFixture(t)

	result, err := f.reconciler.Reconcile(context.Background(), ReconcileInput{
		TransactionID:  "txn-300",
		ExternalStatus: enums.ChargeStatusFailed,
		OrderID:        f.order.ID,
		AmountCents:    6000,
		Currency:       "USD",
	})
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, enums.OrderStatusFailed, f.orderStatus(t))

	// reserved units go back to available
	item := f.inventoryState(t)
	assert.Equal(t, 10, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)

	var detail models.OrderDetail
	require.NoError(t, f.db.Where("order_id = ?", f.order.ID).First(&detail).Error)
	assert.Equal(t, enums.PaymentStatusFailed, detail.PaymentStatus)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, enums.EventOrderFailed, f.events.events[0].EventType)
}

func TestReconcile_FailedAfterPaidLoses(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	_, err := f.reconciler.Reconcile(ctx, ReconcileInput{
		TransactionID:  "txn-400",
		ExternalStatus: enums.ChargeStatusCaptured,
		OrderID:        f.order.ID,
	})
	require.NoError(t, err)

	// a second event for the same order reports failure out of order
	result, err := f.reconciler.Reconcile(ctx, ReconcileInput{
		TransactionID:  "txn-401",
		ExternalStatus: enums.ChargeStatusFailed,
		OrderID:        f.order.ID,
	})
	require.NoError(t, err)

	assert.False(t, result.Applied)
	assert.Equal(t, OutcomeNotPending, result.Outcome)
	assert.Equal(t, enums.OrderStatusPaid, f.orderStatus(t))

	// the paid commit stands; nothing was released
	item := f.inventoryState(t)
	assert.Equal(t, 7, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)
}

func TestReconcile_UnknownStatusLeavesOrderPending(t *testing.T) {
	f := newReconcileFixture(t)

	result, err := f.reconciler.Reconcile(context.Background(), ReconcileInput{
		TransactionID:  "txn-500",
		ExternalStatus: enums.ChargeStatusPending,
		OrderID:        f.order.ID,
	})
	require.NoError(t, err)

	assert.False(t, result.Applied)
	assert.Equal(t, OutcomeIgnored, result.Outcome)
	assert.Equal(t, enums.OrderStatusPendingPayment, f.orderStatus(t))

	item := f.inventoryState(t)
	assert.Equal(t, 7, item.AvailableQty)
	assert.Equal(t, 3, item.ReservedQty)
	assert.Empty(t, f.events.events)
}

func TestReconcile_UnknownOrder(t *testing.T) {
	f := newReconcileFixture(t)

	_, err := f.reconciler.Reconcile(context.Background(), ReconcileInput{
		TransactionID:  "txn-600",
		ExternalStatus: enums.ChargeStatusCaptured,
		OrderID:        uuid.New(),
	})
	require.Error(t, err)
}
