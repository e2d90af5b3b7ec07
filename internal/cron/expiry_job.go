package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tijarahq/tijara-backend/internal/orders"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	"github.com/tijarahq/tijara-backend/pkg/logger"
	"github.com/tijarahq/tijara-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type stockReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// ExpiryJobParams configure the payment-deadline sweeper.
type ExpiryJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Orders    orders.Repository
	Machine   *orders.Machine
	Stock     stockReleaser
	Outbox    outboxEmitter
	BatchSize int
}

// OrderExpiredEvent is the outbox payload for an expired order.
type OrderExpiredEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	BuyerID    uuid.UUID         `json:"buyer_id"`
	SupplierID uuid.UUID         `json:"supplier_id"`
	WasStatus  enums.OrderStatus `json:"was_status"`
	ExpiredAt  time.Time         `json:"expired_at"`
}

// NewExpiryJob builds the job that sweeps orders whose payment deadline
// passed.
func NewExpiryJob(params ExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Machine == nil {
		return nil, fmt.Errorf("state machine required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock releaser required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &expiryJob{
		logg:      params.Logger,
		db:        params.DB,
		orders:    params.Orders,
		machine:   params.Machine,
		stock:     params.Stock,
		outbox:    params.Outbox,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type expiryJob struct {
	logg      *logger.Logger
	db        txRunner
	orders    orders.Repository
	machine   *orders.Machine
	stock     stockReleaser
	outbox    outboxEmitter
	batchSize int
	now       func() time.Time
}

func (j *expiryJob) Name() string { return "order-expiry" }

// Run selects orders past their payment deadline and expires each in its
// own transaction. One bad order never blocks the rest of the batch.
func (j *expiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	ids, err := j.orders.FindExpiredIDs(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("select expired orders: %w", err)
	}

	var errs []error
	swept := 0
	for _, id := range ids {
		if err := j.expireOrder(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("expire order %s: %w", id, err))
			continue
		}
		swept++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"selected": len(ids), "swept": swept})
	j.logg.Info(logCtx, "expiry sweep complete")
	return multierr.Combine(errs...)
}

func (j *expiryJob) expireOrder(ctx context.Context, orderID uuid.UUID) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.orders.WithTx(tx)

		// re-check under the lock: an order paid between selection and now
		// must keep its stock and status
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.IsExpired {
			return nil
		}

		wasStatus := order.Status
		switch wasStatus {
		case enums.OrderStatusPendingPayment:
			// reservation is still held; give it back before expiring
			for _, line := range order.Lines {
				if err := j.stock.Release(ctx, tx, line.ProductID, line.Qty); err != nil {
					return err
				}
			}
			if err := j.machine.Transition(ctx, tx, order, enums.OrderStatusExpired, nil); err != nil {
				return err
			}
		case enums.OrderStatusFailed:
			// reconciliation already released the stock; the status stays
			// failed and only the flag below stops reprocessing
		default:
			return nil
		}

		if err := repo.MarkExpired(ctx, orderID); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    j.now().UTC(),
			Data: OrderExpiredEvent{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				SupplierID: order.SupplierID,
				WasStatus:  wasStatus,
				ExpiredAt:  j.now().UTC(),
			},
		}
		return j.outbox.Emit(ctx, tx, event)
	})
}
