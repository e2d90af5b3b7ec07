package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tijarahq/tijara-backend/pkg/enums"
)

// StatusHistory is the append-only audit trail of order status changes.
// OldStatus is nil only for the synthetic creation entry; ActorID is nil
// when the system (sweeper, reconciliation) drove the change.
type StatusHistory struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	ActorID   *uuid.UUID         `gorm:"column:actor_id;type:uuid"`
	OldStatus *enums.OrderStatus `gorm:"column:old_status;type:text"`
	NewStatus enums.OrderStatus  `gorm:"column:new_status;type:text;not null"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (h *StatusHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
