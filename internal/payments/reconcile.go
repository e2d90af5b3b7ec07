package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tijarahq/tijara-backend/internal/orders"
	"github.com/tijarahq/tijara-backend/pkg/db/models"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
	"github.com/tijarahq/tijara-backend/pkg/metrics"
	"github.com/tijarahq/tijara-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockFinalizer settles a checkout-time reservation: Commit clears it once
// payment lands, Release returns it when payment fails.
type StockFinalizer interface {
	Commit(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// Outcome classifies a reconciliation pass.
type Outcome string

const (
	// OutcomePaid — the event settled the order as paid.
	OutcomePaid Outcome = "paid"
	// OutcomeFailed — the event marked the order's payment failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeNotPending — the order already left PENDING_PAYMENT; the event
	// was a replay or lost the race and changed nothing.
	OutcomeNotPending Outcome = "not_pending"
	// OutcomeIgnored — the external status carries no state change yet.
	OutcomeIgnored Outcome = "ignored"
)

// ReconcileInput is one external payment event, from either the webhook or
// the redirect callback.
type ReconcileInput struct {
	TransactionID  string
	ExternalStatus enums.ChargeStatus
	OrderID        uuid.UUID
	AmountCents    int
	Currency       string
}

// ReconcileResult tells the caller what happened without exposing
// internals; controllers redirect or respond off Outcome alone.
type ReconcileResult struct {
	Applied     bool
	Outcome     Outcome
	OrderStatus enums.OrderStatus
}

// Reconciler applies external payment events to orders exactly once. The
// whole pass runs in one transaction with the order row locked, so two
// channels reporting the same charge serialize; whichever arrives second
// finds the order no longer pending and short-circuits.
type Reconciler struct {
	payments Repository
	orders   orders.Repository
	machine  *orders.Machine
	stock    StockFinalizer
	tx       txRunner
	outbox   outboxPublisher
	metrics  *metrics.ReconcileMetrics
}

// NewReconciler builds the reconciliation service.
func NewReconciler(
	payments Repository,
	ordersRepo orders.Repository,
	machine *orders.Machine,
	stock StockFinalizer,
	tx txRunner,
	publisher outboxPublisher,
	reconcileMetrics *metrics.ReconcileMetrics,
) (*Reconciler, error) {
	if payments == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if machine == nil {
		return nil, fmt.Errorf("state machine required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock finalizer required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &Reconciler{
		payments: payments,
		orders:   ordersRepo,
		machine:  machine,
		stock:    stock,
		tx:       tx,
		outbox:   publisher,
		metrics:  reconcileMetrics,
	}, nil
}

// PaymentSettledEvent is the outbox payload for a settled payment.
type PaymentSettledEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	TransactionID string              `json:"transaction_id"`
	Status        enums.PaymentStatus `json:"status"`
	AmountCents   int                 `json:"amount_cents"`
	Currency      string              `json:"currency"`
}

// Reconcile applies one external payment event. Captured charges move the
// order to paid and commit its reservation; failed charges move it to
// failed and return the reserved stock; any other status is a no-op. The
// idempotency key is the external transaction id, backed by the order's
// current status checked under the row lock.
func (r *Reconciler) Reconcile(ctx context.Context, input ReconcileInput) (*ReconcileResult, error) {
	if input.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var result *ReconcileResult
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := r.orders.WithTx(tx)
		paymentsRepo := r.payments.WithTx(tx)

		order, err := ordersRepo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
					WithDetails(map[string]any{"order_id": input.OrderID.String()})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		// the event only wins if the order is still awaiting payment;
		// replays and racing channels land here and change nothing
		if order.Status != enums.OrderStatusPendingPayment {
			result = &ReconcileResult{Outcome: OutcomeNotPending, OrderStatus: order.Status}
			return nil
		}

		switch input.ExternalStatus {
		case enums.ChargeStatusCaptured:
			if err := r.applyPaid(ctx, tx, paymentsRepo, order, input); err != nil {
				return err
			}
			result = &ReconcileResult{Applied: true, Outcome: OutcomePaid, OrderStatus: order.Status}
			return nil
		case enums.ChargeStatusFailed:
			if err := r.applyFailed(ctx, tx, paymentsRepo, order, input); err != nil {
				return err
			}
			result = &ReconcileResult{Applied: true, Outcome: OutcomeFailed, OrderStatus: order.Status}
			return nil
		default:
			// created/pending/voided/unknown carry no transition yet
			result = &ReconcileResult{Outcome: OutcomeIgnored, OrderStatus: order.Status}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	r.metrics.IncOutcome(string(result.Outcome))
	return result, nil
}

func (r *Reconciler) applyPaid(ctx context.Context, tx *gorm.DB, paymentsRepo Repository, order *models.Order, input ReconcileInput) error {
	if err := r.upsertPayment(ctx, paymentsRepo, order, input, enums.PaymentStatusPaid); err != nil {
		return err
	}
	if err := r.machine.Transition(ctx, tx, order, enums.OrderStatusPaid, nil); err != nil {
		return err
	}

	// the reservation already decremented available stock at checkout;
	// settling only clears the reserved counter, never a second decrement
	for _, line := range order.Lines {
		if err := r.stock.Commit(ctx, tx, line.ProductID, line.Qty); err != nil {
			return err
		}
	}

	if err := r.updateDetailStatus(ctx, tx, order.ID, enums.PaymentStatusPaid); err != nil {
		return err
	}

	return r.outbox.Emit(ctx, tx, r.settledEvent(enums.EventOrderPaid, order, input, enums.PaymentStatusPaid))
}

func (r *Reconciler) applyFailed(ctx context.Context, tx *gorm.DB, paymentsRepo Repository, order *models.Order, input ReconcileInput) error {
	if err := r.upsertPayment(ctx, paymentsRepo, order, input, enums.PaymentStatusFailed); err != nil {
		return err
	}
	if err := r.machine.Transition(ctx, tx, order, enums.OrderStatusFailed, nil); err != nil {
		return err
	}

	for _, line := range order.Lines {
		if err := r.stock.Release(ctx, tx, line.ProductID, line.Qty); err != nil {
			return err
		}
	}

	if err := r.updateDetailStatus(ctx, tx, order.ID, enums.PaymentStatusFailed); err != nil {
		return err
	}

	return r.outbox.Emit(ctx, tx, r.settledEvent(enums.EventOrderFailed, order, input, enums.PaymentStatusFailed))
}

func (r *Reconciler) upsertPayment(ctx context.Context, paymentsRepo Repository, order *models.Order, input ReconcileInput, status enums.PaymentStatus) error {
	amount := input.AmountCents
	if amount == 0 {
		amount = order.TotalCents
	}
	currency := input.Currency
	if currency == "" {
		currency = order.Currency
	}

	existing, err := paymentsRepo.FindByTransactionID(ctx, input.TransactionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		payment := &models.Payment{
			OrderID:        order.ID,
			TransactionID:  input.TransactionID,
			ExternalStatus: input.ExternalStatus,
			Status:         status,
			AmountCents:    amount,
			Currency:       currency,
		}
		if err := paymentsRepo.Create(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment record")
		}
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment record")
	}

	existing.Status = status
	existing.ExternalStatus = input.ExternalStatus
	if err := paymentsRepo.UpdateStatus(ctx, existing); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment record")
	}
	return nil
}

func (r *Reconciler) updateDetailStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error {
	err := tx.WithContext(ctx).
		Model(&models.OrderDetail{}).
		Where("order_id = ?", orderID).
		Update("payment_status", status).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	return nil
}

func (r *Reconciler) settledEvent(eventType enums.OutboxEventType, order *models.Order, input ReconcileInput, status enums.PaymentStatus) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: PaymentSettledEvent{
			OrderID:       order.ID,
			TransactionID: input.TransactionID,
			Status:        status,
			AmountCents:   input.AmountCents,
			Currency:      input.Currency,
		},
	}
}
