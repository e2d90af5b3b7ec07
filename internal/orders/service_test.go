package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tijarahq/tijara-backend/internal/inventory"
	"github.com/tijarahq/tijara-backend/pkg/db/models"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
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

type orderFixture struct {
	order     *models.Order
	productID uuid.UUID
}

// seedReservedOrder creates an order whose single line has qty units
// reserved against the product's inventory, mirroring checkout state.
func seedReservedOrder(t *testing.T, db *gorm.DB, status enums.OrderStatus, qty int) orderFixture {
	t.Helper()

	supplier := models.Supplier{Name: "Fixture Supplier", IsActive: true}
	require.NoError(t, db.Create(&supplier).Error)

	product := models.Product{
		SupplierID: supplier.ID,
		SKU:        "SKU-" + uuid.NewString()[:8],
		Name:       "Crate of Widgets",
		PriceCents: 2000,
		Status:     enums.ProductStatusPublished,
		IsActive:   true,
	}
	require.NoError(t, db.Create(&product).Error)
	require.NoError(t, db.Create(&models.InventoryItem{
		ProductID:    product.ID,
		AvailableQty: 10,
		ReservedQty:  qty,
	}).Error)

	order := seedOrder(t, db, status)
	order.SupplierID = supplier.ID
	require.NoError(t, db.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("supplier_id", supplier.ID).Error)

	line := models.OrderLine{
		OrderID:        order.ID,
		ProductID:      product.ID,
		Name:           product.Name,
		Qty:            qty,
		UnitPriceCents: product.PriceCents,
		TotalCents:     qty * product.PriceCents,
	}
	require.NoError(t, db.Create(&line).Error)
	require.NoError(t, db.Create(&models.OrderDetail{
		OrderID:       order.ID,
		PaymentMethod: enums.PaymentMethodGateway,
		PaymentStatus: enums.PaymentStatusUnpaid,
	}).Error)

	order.Lines = []models.OrderLine{line}
	return orderFixture{order: order, productID: product.ID}
}

func newOrderService(t *testing.T, db *gorm.DB) (Service, *recordingOutbox) {
	t.Helper()
	events := &recordingOutbox{}
	svc, err := NewService(NewRepository(db), gormTxRunner{db: db}, NewMachine(), events, inventory.NewLedger())
	require.NoError(t, err)
	return svc, events
}

func inventoryFor(t *testing.T, db *gorm.DB, productID uuid.UUID) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, db.Where("product_id = ?", productID).First(&item).Error)
	return item
}

func TestDecide_AcceptPendingOrder(t *testing.T) {
	db := newTestDB(t)
	fixture := seedReservedOrder(t, db, enums.OrderStatusPending, 2)
	svc, events := newOrderService(t, db)

	err := svc.Decide(context.Background(), DecisionInput{
		OrderID:    fixture.order.ID,
		Decision:   DecisionAccept,
		ActorID:    uuid.New(),
		SupplierID: fixture.order.SupplierID,
	})
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", fixture.order.ID).Error)
	assert.Equal(t, enums.OrderStatusAccepted, stored.Status)

	// accept keeps the reservation in place
	item := inventoryFor(t, db, fixture.productID)
	assert.Equal(t, 2, item.ReservedQty)

	require.Len(t, events.events, 1)
	assert.Equal(t, enums.EventOrderDecided, events.events[0].EventType)
}

func TestDecide_RejectReleasesStock(t *testing.T) {
	db := newTestDB(t)
	fixture := seedReservedOrder(t, db, enums.OrderStatusPending, 3)
	svc, _ := newOrderService(t, db)

	err := svc.Decide(context.Background(), DecisionInput{
		OrderID:    fixture.order.ID,
		Decision:   DecisionReject,
		ActorID:    uuid.New(),
		SupplierID: fixture.order.SupplierID,
	})
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", fixture.order.ID).Error)
	assert.Equal(t, enums.OrderStatusRejected, stored.Status)

	item := inventoryFor(t, db, fixture.productID)
	assert.Equal(t, 13, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)
}

func TestDecide_WrongSupplierForbidden(t *testing.T) {
	db := newTestDB(t)
	fixture := seedReservedOrder(t, db, enums.OrderStatusPending, 1)
	svc, _ := newOrderService(t, db)

	err := svc.Decide(context.Background(), DecisionInput{
		OrderID:    fixture.order.ID,
		Decision:   DecisionAccept,
		ActorID:    uuid.New(),
		SupplierID: uuid.New(),
	})
	require.Error(t, err)

	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeForbidden, appErr.Code())
}

func TestShip_RecordsTracking(t *testing.T) {
	db := newTestDB(t)
	fixture := seedReservedOrder(t, db, enums.OrderStatusPaid, 1)
	svc, events := newOrderService(t, db)

	err := svc.Ship(context.Background(), ShipInput{
		OrderID:        fixture.order.ID,
		ActorID:        uuid.New(),
		SupplierID:     fixture.order.SupplierID,
		TrackingNumber: "TRACK-42",
	})
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", fixture.order.ID).Error)
	assert.Equal(t, enums.OrderStatusShipped, stored.Status)

	var detail models.OrderDetail
	require.NoError(t, db.Where("order_id = ?", fixture.order.ID).First(&detail).Error)
	require.NotNil(t, detail.TrackingNumber)
	assert.Equal(t, "TRACK-42", *detail.TrackingNumber)

	require.Len(t, events.events, 1)
	assert.Equal(t, enums.EventOrderShipped, events.events[0].EventType)
}

func TestShip_FromPendingPaymentRejected(t *testing.T) {
	db := newTestDB(t)
	fixture := seedReservedOrder(t, db, enums.OrderStatusPendingPayment, 1)
	svc, _ := newOrderService(t, db)

	err := svc.Ship(context.Background(), ShipInput{
		OrderID:        fixture.order.ID,
		ActorID:        uuid.New(),
		SupplierID:     fixture.order.SupplierID,
		TrackingNumber: "TRACK-1",
	})
	require.Error(t, err)

	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
}

func TestDeliver_CompletesShippedOrder(t *testing.T) {
	db := newTestDB(t)
	fixture := seedReservedOrder(t, db, enums.OrderStatusShipped, 1)
	svc, events := newOrderService(t, db)

	err := svc.Deliver(context.Background(), DeliverInput{
		OrderID:    fixture.order.ID,
		ActorID:    uuid.New(),
		SupplierID: fixture.order.SupplierID,
	})
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", fixture.order.ID).Error)
	assert.Equal(t, enums.OrderStatusDelivered, stored.Status)

	// gateway orders commit their reservation at payment settlement
	item := inventoryFor(t, db, fixture.productID)
	assert.Equal(t, 1, item.ReservedQty)

	require.Len(t, events.events, 1)
	assert.Equal(t, enums.EventOrderDelivered, events.events[0].EventType)
}

func TestDeliver_CashOrderCommitsReservation(t *testing.T) {
	db := newTestDB(t)
	fixture := seedReservedOrder(t, db, enums.OrderStatusShipped, 3)
	require.NoError(t, db.Model(&models.OrderDetail{}).
		Where("order_id = ?", fixture.order.ID).
		Update("payment_method", enums.PaymentMethodCash).Error)
	svc, _ := newOrderService(t, db)

	err := svc.Deliver(context.Background(), DeliverInput{
		OrderID:    fixture.order.ID,
		ActorID:    uuid.New(),
		SupplierID: fixture.order.SupplierID,
	})
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", fixture.order.ID).Error)
	assert.Equal(t, enums.OrderStatusDelivered, stored.Status)

	// cash never reaches paid, so delivery settles the reservation
	item := inventoryFor(t, db, fixture.productID)
	assert.Equal(t, 0, item.ReservedQty)
	assert.Equal(t, 10, item.AvailableQty)
}

func TestCancel_ReleasesStockAndAudits(t *testing.T) {
	db := newTestDB(t)
	fixture := seedReservedOrder(t, db, enums.OrderStatusPendingPayment, 4)
	svc, events := newOrderService(t, db)

	err := svc.Cancel(context.Background(), CancelInput{
		OrderID: fixture.order.ID,
		BuyerID: fixture.order.BuyerID,
	})
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", fixture.order.ID).Error)
	assert.Equal(t, enums.OrderStatusCancelled, stored.Status)

	item := inventoryFor(t, db, fixture.productID)
	assert.Equal(t, 14, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)

	var history []models.StatusHistory
	require.NoError(t, db.Where("order_id = ?", fixture.order.ID).Find(&history).Error)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].ActorID)
	assert.Equal(t, fixture.order.BuyerID, *history[0].ActorID)

	require.Len(t, events.events, 1)
	assert.Equal(t, enums.EventOrderCancelled, events.events[0].EventType)
}

func TestCancel_WrongBuyerForbidden(t *testing.T) {
	db := newTestDB(t)
	fixture := seedReservedOrder(t, db, enums.OrderStatusPendingPayment, 1)
	svc, _ := newOrderService(t, db)

	err := svc.Cancel(context.Background(), CancelInput{
		OrderID: fixture.order.ID,
		BuyerID: uuid.New(),
	})
	require.Error(t, err)

	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeForbidden, appErr.Code())
}
