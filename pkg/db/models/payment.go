package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tijarahq/tijara-backend/pkg/enums"
)

// Payment correlates an external gateway transaction with an order. The
// gateway transaction id is the idempotency key for reconciliation.
type Payment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	TransactionID  string              `gorm:"column:transaction_id;not null;uniqueIndex:ux_payments_transaction_id"`
	ExternalStatus enums.ChargeStatus  `gorm:"column:external_status;type:text;not null"`
	Status         enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	AmountCents    int                 `gorm:"column:amount_cents;not null"`
	Currency       string              `gorm:"column:currency;not null;default:'USD'"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
