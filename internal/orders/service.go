package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tijarahq/tijara-backend/pkg/db/models"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
	"github.com/tijarahq/tijara-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockFinalizer settles checkout reservations as the order winds down:
// Release returns reserved stock on reject/cancel, Commit burns the
// reservation once a cash order is delivered. Gateway orders commit at
// payment settlement instead.
type StockFinalizer interface {
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Commit(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// Decision represents the supplier's call on a pending order.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// DecisionInput captures a supplier accept/reject request.
type DecisionInput struct {
	OrderID    uuid.UUID
	Decision   Decision
	ActorID    uuid.UUID
	SupplierID uuid.UUID
}

// ShipInput captures a supplier ship request.
type ShipInput struct {
	OrderID        uuid.UUID
	ActorID        uuid.UUID
	SupplierID     uuid.UUID
	TrackingNumber string
	ShippingMethod *string
}

// DeliverInput marks a shipped order as delivered.
type DeliverInput struct {
	OrderID    uuid.UUID
	ActorID    uuid.UUID
	SupplierID uuid.UUID
}

// CancelInput captures a buyer cancellation.
type CancelInput struct {
	OrderID uuid.UUID
	BuyerID uuid.UUID
}

// OrderStatusEvent is the payload emitted on every lifecycle event.
type OrderStatusEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	BuyerID    uuid.UUID         `json:"buyer_id"`
	SupplierID uuid.UUID         `json:"supplier_id"`
	Status     enums.OrderStatus `json:"status"`
	TotalCents int               `json:"total_cents"`
}

// Service exposes order lifecycle operations beyond repository reads.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error)
	ListForSupplier(ctx context.Context, supplierID uuid.UUID) ([]models.Order, error)
	Decide(ctx context.Context, input DecisionInput) error
	Ship(ctx context.Context, input ShipInput) error
	Deliver(ctx context.Context, input DeliverInput) error
	Cancel(ctx context.Context, input CancelInput) error
}

type service struct {
	repo    Repository
	tx      txRunner
	machine *Machine
	outbox  outboxPublisher
	stock   StockFinalizer
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, machine *Machine, publisher outboxPublisher, stock StockFinalizer) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if machine == nil {
		return nil, fmt.Errorf("state machine required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock finalizer required")
	}
	return &service{repo: repo, tx: tx, machine: machine, outbox: publisher, stock: stock}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	orders, err := s.repo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return orders, nil
}

func (s *service) ListForSupplier(ctx context.Context, supplierID uuid.UUID) ([]models.Order, error) {
	orders, err := s.repo.ListBySupplier(ctx, supplierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list supplier orders")
	}
	return orders, nil
}

// Decide applies a supplier accept/reject to a pending order. Rejection
// returns every reserved line back to available stock.
func (s *service) Decide(ctx context.Context, input DecisionInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.SupplierID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "supplier context missing")
	}

	var target enums.OrderStatus
	switch input.Decision {
	case DecisionAccept:
		target = enums.OrderStatusAccepted
	case DecisionReject:
		target = enums.OrderStatusRejected
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown decision").
			WithDetails(map[string]any{"decision": string(input.Decision)})
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadSupplierOrder(ctx, repo, input.OrderID, input.SupplierID)
		if err != nil {
			return err
		}
		if order.Status == target {
			return nil
		}

		actorID := input.ActorID
		if err := s.machine.Transition(ctx, tx, order, target, &actorID); err != nil {
			return err
		}

		if target == enums.OrderStatusRejected {
			for _, line := range order.Lines {
				if err := s.stock.Release(ctx, tx, line.ProductID, line.Qty); err != nil {
					return err
				}
			}
		}

		return s.outbox.Emit(ctx, tx, s.statusEvent(enums.EventOrderDecided, order, &actorID))
	})
}

// Ship moves an accepted or paid order to shipped and records tracking.
func (s *service) Ship(ctx context.Context, input ShipInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.SupplierID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "supplier context missing")
	}
	if input.TrackingNumber == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "tracking number required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadSupplierOrder(ctx, repo, input.OrderID, input.SupplierID)
		if err != nil {
			return err
		}

		actorID := input.ActorID
		if err := s.machine.Transition(ctx, tx, order, enums.OrderStatusShipped, &actorID); err != nil {
			return err
		}

		updates := map[string]any{"tracking_number": input.TrackingNumber}
		if input.ShippingMethod != nil {
			updates["shipping_method"] = *input.ShippingMethod
		}
		if err := repo.UpdateDetail(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shipping detail")
		}

		return s.outbox.Emit(ctx, tx, s.statusEvent(enums.EventOrderShipped, order, &actorID))
	})
}

// Deliver completes a shipped order.
func (s *service) Deliver(ctx context.Context, input DeliverInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.SupplierID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "supplier context missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadSupplierOrder(ctx, repo, input.OrderID, input.SupplierID)
		if err != nil {
			return err
		}

		actorID := input.ActorID
		if err := s.machine.Transition(ctx, tx, order, enums.OrderStatusDelivered, &actorID); err != nil {
			return err
		}

		// Cash orders never pass through PAID, so their checkout
		// reservation is still open when the goods arrive.
		if order.Detail != nil && order.Detail.PaymentMethod == enums.PaymentMethodCash {
			for _, line := range order.Lines {
				if err := s.stock.Commit(ctx, tx, line.ProductID, line.Qty); err != nil {
					return err
				}
			}
		}

		return s.outbox.Emit(ctx, tx, s.statusEvent(enums.EventOrderDelivered, order, &actorID))
	})
}

// Cancel lets the buyer abandon an order that has not progressed past the
// payment/decision stage. Reserved stock goes back to available.
func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.BuyerID != input.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
		}

		actorID := input.BuyerID
		if err := s.machine.Transition(ctx, tx, order, enums.OrderStatusCancelled, &actorID); err != nil {
			return err
		}

		for _, line := range order.Lines {
			if err := s.stock.Release(ctx, tx, line.ProductID, line.Qty); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, s.statusEvent(enums.EventOrderCancelled, order, &actorID))
	})
}

func (s *service) loadSupplierOrder(ctx context.Context, repo Repository, orderID, supplierID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.SupplierID != supplierID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to supplier")
	}
	return order, nil
}

func (s *service) statusEvent(eventType enums.OutboxEventType, order *models.Order, actorID *uuid.UUID) outbox.DomainEvent {
	var actor *outbox.ActorRef
	if actorID != nil {
		actor = &outbox.ActorRef{UserID: *actorID}
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Actor:         actor,
		Data: OrderStatusEvent{
			OrderID:    order.ID,
			BuyerID:    order.BuyerID,
			SupplierID: order.SupplierID,
			Status:     order.Status,
			TotalCents: order.TotalCents,
		},
	}
}
