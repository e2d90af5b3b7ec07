package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tijarahq/tijara-backend/pkg/db/models"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:orders_%s?mode=memory&cache=shared", uuid.NewString())
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

func seedOrder(t *testing.T, db *gorm.DB, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := models.Order{
		BuyerID:       uuid.New(),
		SupplierID:    uuid.New(),
		Status:        status,
		Currency:      "USD",
		SubtotalCents: 5000,
		TotalCents:    5000,
		ExpiresAt:     time.Now().Add(30 * time.Minute),
	}
	require.NoError(t, db.Create(&order).Error)
	return &order
}

func TestCanTransition_Table(t *testing.T) {
	cases := []struct {
		from    enums.OrderStatus
		to      enums.OrderStatus
		allowed bool
	}{
		{enums.OrderStatusPendingPayment, enums.OrderStatusPaid, true},
		{enums.OrderStatusPendingPayment, enums.OrderStatusFailed, true},
		{enums.OrderStatusPendingPayment, enums.OrderStatusExpired, true},
		{enums.OrderStatusPendingPayment, enums.OrderStatusCancelled, true},
		{enums.OrderStatusPendingPayment, enums.OrderStatusShipped, false},
		{enums.OrderStatusPending, enums.OrderStatusAccepted, true},
		{enums.OrderStatusPending, enums.OrderStatusRejected, true},
		{enums.OrderStatusPending, enums.OrderStatusPaid, false},
		{enums.OrderStatusAccepted, enums.OrderStatusShipped, true},
		{enums.OrderStatusAccepted, enums.OrderStatusDelivered, false},
		{enums.OrderStatusPaid, enums.OrderStatusShipped, true},
		{enums.OrderStatusShipped, enums.OrderStatusDelivered, true},
		{enums.OrderStatusDelivered, enums.OrderStatusShipped, false},
		{enums.OrderStatusCancelled, enums.OrderStatusPending, false},
		{enums.OrderStatusExpired, enums.OrderStatusPaid, false},
		{enums.OrderStatusRejected, enums.OrderStatusAccepted, false},
		{enums.OrderStatusFailed, enums.OrderStatusPaid, false},
	}

	for _, tc := range cases {
		name := fmt.Sprintf("%s_to_%s", tc.from, tc.to)
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range []enums.OrderStatus{
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
		enums.OrderStatusRejected,
		enums.OrderStatusExpired,
	} {
		assert.True(t, IsTerminal(status), status.String())
		assert.Empty(t, NextStates(status), status.String())
	}
	assert.False(t, IsTerminal(enums.OrderStatusPendingPayment))
	assert.False(t, IsTerminal(enums.OrderStatusFailed))
}

func TestTransition_UpdatesStatusAndHistory(t *testing.T) {
	db := newTestDB(t)
	order := seedOrder(t, db, enums.OrderStatusPendingPayment)
	machine := NewMachine()
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		return machine.Transition(ctx, tx, order, enums.OrderStatusPaid, nil)
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPaid, stored.Status)

	var history []models.StatusHistory
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&history).Error)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].OldStatus)
	assert.Equal(t, enums.OrderStatusPendingPayment, *history[0].OldStatus)
	assert.Equal(t, enums.OrderStatusPaid, history[0].NewStatus)
	assert.Nil(t, history[0].ActorID)
}

func TestTransition_IllegalMoveRejected(t *testing.T) {
	db := newTestDB(t)
	order := seedOrder(t, db, enums.OrderStatusDelivered)
	machine := NewMachine()

	err := db.Transaction(func(tx *gorm.DB) error {
		return machine.Transition(context.Background(), tx, order, enums.OrderStatusShipped, nil)
	})
	require.Error(t, err)

	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())

	var count int64
	require.NoError(t, db.Model(&models.StatusHistory{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTransition_ConcurrentLoserShortCircuits(t *testing.T) {
	db := newTestDB(t)
	order := seedOrder(t, db, enums.OrderStatusPendingPayment)
	machine := NewMachine()
	ctx := context.Background()

	// simulate a racing callback: the row was already moved to paid by the
	// time this stale in-memory copy tries to apply failed
	require.NoError(t, db.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("status", enums.OrderStatusPaid).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		return machine.Transition(ctx, tx, order, enums.OrderStatusFailed, nil)
	})
	require.Error(t, err)

	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPaid, stored.Status)
}

func TestRecordCreation_SyntheticEntry(t *testing.T) {
	db := newTestDB(t)
	order := seedOrder(t, db, enums.OrderStatusPendingPayment)
	machine := NewMachine()
	actor := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return machine.RecordCreation(context.Background(), tx, order, &actor)
	})
	require.NoError(t, err)

	var history []models.StatusHistory
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].OldStatus)
	assert.Equal(t, enums.OrderStatusPendingPayment, history[0].NewStatus)
	require.NotNil(t, history[0].ActorID)
	assert.Equal(t, actor, *history[0].ActorID)
}
