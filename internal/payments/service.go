package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tijarahq/tijara-backend/internal/orders"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
	"github.com/tijarahq/tijara-backend/pkg/logger"
)

// WebhookEvent is the gateway's push notification for a charge.
type WebhookEvent struct {
	EventID       string
	TransactionID string
	Status        string
	OrderID       uuid.UUID
	Amount        string
	Currency      string
}

// Service fronts payment initiation and both reconciliation channels.
type Service interface {
	Initiate(ctx context.Context, orderID, buyerID uuid.UUID) (*ChargeSession, error)
	HandleWebhook(ctx context.Context, event WebhookEvent) (*ReconcileResult, error)
	HandleCallback(ctx context.Context, transactionID string) (*ReconcileResult, error)
}

type service struct {
	orders     orders.Repository
	selector   *Selector
	reconciler *Reconciler
	guard      *IdempotencyGuard
	logg       *logger.Logger
}

// NewService builds the payment service. The idempotency guard is optional;
// without it every webhook delivery reaches the reconciler, which remains
// correct, just slower.
func NewService(
	ordersRepo orders.Repository,
	selector *Selector,
	reconciler *Reconciler,
	guard *IdempotencyGuard,
	logg *logger.Logger,
) (Service, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if selector == nil {
		return nil, fmt.Errorf("gateway selector required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &service{
		orders:     ordersRepo,
		selector:   selector,
		reconciler: reconciler,
		guard:      guard,
		logg:       logg,
	}, nil
}

// Initiate opens a gateway charge for an order awaiting payment. The order
// is not mutated: a failed or timed-out initiation leaves it pending so the
// buyer can retry.
func (s *service) Initiate(ctx context.Context, orderID, buyerID uuid.UUID) (*ChargeSession, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": string(order.Status)})
	}

	method := enums.PaymentMethodGateway
	if order.Detail != nil {
		method = order.Detail.PaymentMethod
	}
	gateway := s.selector.ForMethod(method)
	if gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no gateway for payment method").
			WithDetails(map[string]any{"payment_method": string(method)})
	}

	session, err := gateway.CreateCharge(ctx, order)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// HandleWebhook applies a pushed gateway event. Duplicate deliveries are
// dropped by the redis guard before touching the database; a failed pass
// forgets the event id so the gateway's retry gets through.
func (s *service) HandleWebhook(ctx context.Context, event WebhookEvent) (*ReconcileResult, error) {
	if event.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, event.EventID)
		if err != nil {
			// redis trouble is not a reason to drop a payment event
			if s.logg != nil {
				s.logg.Warn(ctx, "webhook idempotency check failed, proceeding")
			}
		} else if seen {
			return &ReconcileResult{Outcome: OutcomeNotPending}, nil
		}
	}

	amountCents, err := amountToCents(event.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse webhook amount")
	}

	result, err := s.reconciler.Reconcile(ctx, ReconcileInput{
		TransactionID:  event.TransactionID,
		ExternalStatus: enums.NormalizeChargeStatus(event.Status),
		OrderID:        event.OrderID,
		AmountCents:    amountCents,
		Currency:       event.Currency,
	})
	if err != nil {
		if s.guard != nil {
			if delErr := s.guard.Delete(ctx, event.EventID); delErr != nil && s.logg != nil {
				s.logg.Warn(ctx, "failed to release webhook idempotency key")
			}
		}
		return nil, err
	}
	return result, nil
}

// HandleCallback serves the buyer's redirect back from the gateway. The
// charge is re-verified against the gateway rather than trusting query
// parameters, then funneled through the same reconcile path the webhook
// uses.
func (s *service) HandleCallback(ctx context.Context, transactionID string) (*ReconcileResult, error) {
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	gateway := s.selector.ForMethod(enums.PaymentMethodGateway)
	if gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway not configured")
	}

	charge, err := gateway.VerifyCharge(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if charge.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway charge has no order reference")
	}

	return s.reconciler.Reconcile(ctx, ReconcileInput{
		TransactionID:  charge.TransactionID,
		ExternalStatus: charge.Status,
		OrderID:        charge.OrderID,
		AmountCents:    charge.AmountCents,
		Currency:       charge.Currency,
	})
}
