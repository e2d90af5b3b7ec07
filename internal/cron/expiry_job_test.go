package cron

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tijarahq/tijara-backend/internal/inventory"
	"github.com/tijarahq/tijara-backend/internal/orders"
	"github.com/tijarahq/tijara-backend/pkg/db/models"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	"github.com/tijarahq/tijara-backend/pkg/logger"
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

	dsn := fmt.Sprintf("file:cron_%s?mode=memory&cache=shared", uuid.NewString())
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
	))
	return db
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

type sweepFixture struct {
	db     *gorm.DB
	job    Job
	events *recordingOutbox
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	db := newTestDB(t)
	events := &recordingOutbox{}

	job, err := NewExpiryJob(ExpiryJobParams{
		Logger:    testLogger(),
		DB:        gormTxRunner{db: db},
		Orders:    orders.NewRepository(db),
		Machine:   orders.NewMachine(),
		Stock:     inventory.NewLedger(),
		Outbox:    events,
		BatchSize: 50,
	})
	require.NoError(t, err)

	return &sweepFixture{db: db, job: job, events: events}
}

// seedDeadlineOrder creates an order with qty units reserved and the given
// status/deadline.
func (f *sweepFixture) seedDeadlineOrder(t *testing.T, status enums.OrderStatus, expiresAt time.Time, qty, reserved int) (*models.Order, uuid.UUID) {
	t.Helper()

	supplier := models.Supplier{Name: "Sweep Supplier", IsActive: true}
	require.NoError(t, f.db.Create(&supplier).Error)

	product := models.Product{
		SupplierID: supplier.ID,
		SKU:        "SKU-" + uuid.NewString()[:8],
		Name:       "Drum of Widgets",
		PriceCents: 1500,
		Status:     enums.ProductStatusPublished,
		IsActive:   true,
	}
	require.NoError(t, f.db.Create(&product).Error)
	require.NoError(t, f.db.Create(&models.InventoryItem{
		ProductID:    product.ID,
		AvailableQty: 10,
		ReservedQty:  reserved,
	}).Error)

	order := models.Order{
		BuyerID:       uuid.New(),
		SupplierID:    supplier.ID,
		Status:        status,
		Currency:      "USD",
		SubtotalCents: qty * 1500,
		TotalCents:    qty * 1500,
		ExpiresAt:     expiresAt,
	}
	require.NoError(t, f.db.Create(&order).Error)
	require.NoError(t, f.db.Create(&models.OrderLine{
		OrderID:        order.ID,
		ProductID:      product.ID,
		Name:           product.Name,
		Qty:            qty,
		UnitPriceCents: 1500,
		TotalCents:     qty * 1500,
	}).Error)
	return &order, product.ID
}

func (f *sweepFixture) reload(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.db.First(&order, "id = ?", id).Error)
	return order
}

func (f *sweepFixture) inventoryFor(t *testing.T, productID uuid.UUID) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, f.db.Where("product_id = ?", productID).First(&item).Error)
	return item
}

func TestExpiryJob_ExpiresOverduePendingPayment(t *testing.T) {
	f := newSweepFixture(t)
	order, productID := f.seedDeadlineOrder(t, enums.OrderStatusPendingPayment, time.Now().Add(-time.Hour), 3, 3)

	require.NoError(t, f.job.Run(context.Background()))

	stored := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusExpired, stored.Status)
	assert.True(t, stored.IsExpired)

	// reserved stock returned
	item := f.inventoryFor(t, productID)
	assert.Equal(t, 13, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)

	// audit trail records the system-driven transition
	var history []models.StatusHistory
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].ActorID)
	assert.Equal(t, enums.OrderStatusExpired, history[0].NewStatus)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, enums.EventOrderExpired, f.events.events[0].EventType)
}

func TestExpiryJob_RerunIsNoOp(t *testing.T) {
	f := newSweepFixture(t)
	order, productID := f.seedDeadlineOrder(t, enums.OrderStatusPendingPayment, time.Now().Add(-time.Hour), 2, 2)
	ctx := context.Background()

	require.NoError(t, f.job.Run(ctx))
	require.NoError(t, f.job.Run(ctx))

	// second pass found nothing: no double release, no extra history
	item := f.inventoryFor(t, productID)
	assert.Equal(t, 12, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)

	var historyCount int64
	require.NoError(t, f.db.Model(&models.StatusHistory{}).
		Where("order_id = ?", order.ID).Count(&historyCount).Error)
	assert.EqualValues(t, 1, historyCount)

	assert.Len(t, f.events.events, 1)
}

func TestExpiryJob_FailedOrderOnlyFlagged(t *testing.T) {
	f := newSweepFixture(t)
	// failed orders had their stock released at reconciliation time
	order, productID := f.seedDeadlineOrder(t, enums.OrderStatusFailed, time.Now().Add(-time.Hour), 2, 0)

	require.NoError(t, f.job.Run(context.Background()))

	stored := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusFailed, stored.Status)
	assert.True(t, stored.IsExpired)

	// no release happened
	item := f.inventoryFor(t, productID)
	assert.Equal(t, 10, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)
}

func TestExpiryJob_LeavesPaidOrdersAlone(t *testing.T) {
	f := newSweepFixture(t)
	// paid after selection but before the sweep reached it: the status
	// re-check under the lock must keep its stock committed
	order, productID := f.seedDeadlineOrder(t, enums.OrderStatusPaid, time.Now().Add(-time.Hour), 2, 0)

	job, ok := f.job.(*expiryJob)
	require.True(t, ok)
	require.NoError(t, job.expireOrder(context.Background(), order.ID))

	stored := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusPaid, stored.Status)
	assert.False(t, stored.IsExpired)

	item := f.inventoryFor(t, productID)
	assert.Equal(t, 10, item.AvailableQty)
	assert.Empty(t, f.events.events)
}

func TestExpiryJob_FutureDeadlinesUntouched(t *testing.T) {
	f := newSweepFixture(t)
	order, _ := f.seedDeadlineOrder(t, enums.OrderStatusPendingPayment, time.Now().Add(time.Hour), 2, 2)

	require.NoError(t, f.job.Run(context.Background()))

	stored := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusPendingPayment, stored.Status)
	assert.False(t, stored.IsExpired)
	assert.Empty(t, f.events.events)
}
