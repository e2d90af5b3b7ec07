package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tijarahq/tijara-backend/pkg/db/models"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
)

// transitions is the closed table of legal status moves. A status missing
// from the map, or a target missing from its set, is an illegal transition;
// there are no defaults. Terminal statuses (delivered, cancelled, rejected,
// expired) have no entry. Failed orders keep their status until the expiry
// sweep flags them, so failed has an empty set rather than none.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPendingPayment: {
		enums.OrderStatusPaid,
		enums.OrderStatusFailed,
		enums.OrderStatusExpired,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPending: {
		enums.OrderStatusAccepted,
		enums.OrderStatusRejected,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusAccepted: {
		enums.OrderStatusShipped,
	},
	enums.OrderStatusPaid: {
		enums.OrderStatusShipped,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered,
	},
	enums.OrderStatusFailed: {},
}

// terminalStatuses have no outgoing transitions and never will.
var terminalStatuses = map[enums.OrderStatus]bool{
	enums.OrderStatusDelivered: true,
	enums.OrderStatusCancelled: true,
	enums.OrderStatusRejected:  true,
	enums.OrderStatusExpired:   true,
}

// CanTransition reports whether the table allows moving from one status to
// another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// NextStates returns the permitted targets from the given status.
func NextStates(from enums.OrderStatus) []enums.OrderStatus {
	targets := transitions[from]
	out := make([]enums.OrderStatus, len(targets))
	copy(out, targets)
	return out
}

// IsTerminal reports whether the status permits no further transitions.
func IsTerminal(status enums.OrderStatus) bool {
	return terminalStatuses[status]
}

// Machine applies status transitions to orders and records the audit trail.
// Callers must hold the order's row lock (load inside a transaction) so two
// concurrent transition attempts on the same order serialize; the loser sees
// the updated status and fails the table check instead of corrupting state.
type Machine struct{}

// NewMachine returns a stateless transition machine.
func NewMachine() *Machine {
	return &Machine{}
}

// Transition moves order to next, persisting the status change and one
// StatusHistory row in the supplied transaction. actorID is nil when the
// system (reconciliation, sweeper) drives the change. The order's in-memory
// status is updated on success.
func (m *Machine) Transition(ctx context.Context, tx *gorm.DB, order *models.Order, next enums.OrderStatus, actorID *uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for status transition")
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !next.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": string(next)})
	}
	if !CanTransition(order.Status, next) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "status transition not allowed").
			WithDetails(map[string]any{
				"order_id": order.ID.String(),
				"from":     string(order.Status),
				"to":       string(next),
			})
	}

	old := order.Status
	res := tx.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, old).
		Update("status", next)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update order status")
	}
	if res.RowsAffected == 0 {
		// another transaction moved the order first
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently").
			WithDetails(map[string]any{"order_id": order.ID.String()})
	}

	history := models.StatusHistory{
		OrderID:   order.ID,
		ActorID:   actorID,
		OldStatus: &old,
		NewStatus: next,
	}
	if err := tx.WithContext(ctx).Create(&history).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
	}

	order.Status = next
	return nil
}

// RecordCreation appends the synthetic first history row for a freshly
// created order; old status is nil by definition.
func (m *Machine) RecordCreation(ctx context.Context, tx *gorm.DB, order *models.Order, actorID *uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for status history")
	}
	history := models.StatusHistory{
		OrderID:   order.ID,
		ActorID:   actorID,
		NewStatus: order.Status,
	}
	if err := tx.WithContext(ctx).Create(&history).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append creation history")
	}
	return nil
}
