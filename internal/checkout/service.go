package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tijarahq/tijara-backend/internal/cart"
	"github.com/tijarahq/tijara-backend/internal/catalog"
	"github.com/tijarahq/tijara-backend/internal/inventory"
	"github.com/tijarahq/tijara-backend/internal/orders"
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

// StockReserver takes reservations for every line of a checkout inside the
// surrounding transaction.
type StockReserver interface {
	ReserveAll(ctx context.Context, tx *gorm.DB, requests []inventory.ReservationRequest) error
}

// Input carries the buyer's checkout choices.
type Input struct {
	PaymentMethod  enums.PaymentMethod
	ShippingMethod *string
	Notes          *string
}

// OrderCreatedEvent is the outbox payload for a fresh order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	SupplierID    uuid.UUID           `json:"supplier_id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalCents    int                 `json:"total_cents"`
	ExpiresAt     time.Time           `json:"expires_at"`
}

// Service converts validated carts into orders.
type Service interface {
	CreateFromCart(ctx context.Context, buyerID uuid.UUID, input Input) (*models.Order, error)
}

type service struct {
	carts    cart.Repository
	catalog  catalog.Repository
	orders   orders.Repository
	machine  *orders.Machine
	chain    *cart.Chain
	stock    StockReserver
	tx       txRunner
	outbox   outboxPublisher
	orderTTL time.Duration
	now      func() time.Time
}

// NewService builds a checkout service. orderTTL bounds how long a created
// order may wait for payment before the sweep expires it.
func NewService(
	carts cart.Repository,
	catalogRepo catalog.Repository,
	ordersRepo orders.Repository,
	machine *orders.Machine,
	chain *cart.Chain,
	stock StockReserver,
	tx txRunner,
	publisher outboxPublisher,
	orderTTL time.Duration,
) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if machine == nil {
		return nil, fmt.Errorf("state machine required")
	}
	if chain == nil {
		return nil, fmt.Errorf("validation chain required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock reserver required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if orderTTL <= 0 {
		return nil, fmt.Errorf("order ttl must be positive")
	}
	return &service{
		carts:    carts,
		catalog:  catalogRepo,
		orders:   ordersRepo,
		machine:  machine,
		chain:    chain,
		stock:    stock,
		tx:       tx,
		outbox:   publisher,
		orderTTL: orderTTL,
		now:      time.Now,
	}, nil
}

// CreateFromCart validates the buyer's active cart, reserves stock for
// every line, snapshots prices into an order, and retires the cart — all in
// one transaction. Any reservation shortfall rolls the whole operation
// back; no partial order survives.
func (s *service) CreateFromCart(ctx context.Context, buyerID uuid.UUID, input Input) (*models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method").
			WithDetails(map[string]any{"payment_method": string(input.PaymentMethod)})
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.carts.WithTx(tx)
		catalogRepo := s.catalog.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)

		cartRecord, err := cartRepo.FindActiveByBuyer(ctx, buyerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no active cart to check out")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		state, err := cart.LoadCheckoutState(ctx, catalogRepo, cartRecord)
		if err != nil {
			return err
		}
		if err := s.chain.ValidateCheckout(ctx, state); err != nil {
			return err
		}
		if cartRecord.SupplierID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart has no supplier")
		}

		requests := make([]inventory.ReservationRequest, 0, len(cartRecord.Lines))
		for _, line := range cartRecord.Lines {
			requests = append(requests, inventory.ReservationRequest{
				LineID:    line.ID,
				ProductID: line.ProductID,
				Qty:       line.Qty,
			})
		}
		if err := s.stock.ReserveAll(ctx, tx, requests); err != nil {
			return err
		}

		now := s.now()
		status := enums.OrderStatusPendingPayment
		if input.PaymentMethod == enums.PaymentMethodCash {
			status = enums.OrderStatusPending
		}

		order := &models.Order{
			BuyerID:    buyerID,
			SupplierID: *cartRecord.SupplierID,
			Status:     status,
			Currency:   "USD",
			ExpiresAt:  now.Add(s.orderTTL),
		}

		// snapshot current catalog prices; the order never re-reads them
		lines := make([]models.OrderLine, 0, len(cartRecord.Lines))
		subtotal := 0
		for _, cartLine := range cartRecord.Lines {
			product := state.Products[cartLine.ProductID]
			unitPrice := product.PriceCents
			lineTotal := cartLine.Qty * unitPrice
			subtotal += lineTotal
			lines = append(lines, models.OrderLine{
				ProductID:      cartLine.ProductID,
				Name:           product.Name,
				Qty:            cartLine.Qty,
				UnitPriceCents: unitPrice,
				TotalCents:     lineTotal,
			})
		}
		order.SubtotalCents = subtotal
		order.TotalCents = subtotal - order.DiscountCents

		if err := orderRepo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		for i := range lines {
			lines[i].OrderID = order.ID
		}
		if err := tx.WithContext(ctx).Create(&lines).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order lines")
		}
		order.Lines = lines

		detail := models.OrderDetail{
			OrderID:        order.ID,
			PaymentMethod:  input.PaymentMethod,
			PaymentStatus:  enums.PaymentStatusUnpaid,
			ShippingMethod: input.ShippingMethod,
			Notes:          input.Notes,
		}
		if err := tx.WithContext(ctx).Create(&detail).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order detail")
		}
		order.Detail = &detail

		actorID := buyerID
		if err := s.machine.RecordCreation(ctx, tx, order, &actorID); err != nil {
			return err
		}

		if err := cartRepo.SetStatus(ctx, cartRecord.ID, enums.CartStatusConverted); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "convert cart")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: buyerID, Role: "buyer"},
			Data: OrderCreatedEvent{
				OrderID:       order.ID,
				BuyerID:       order.BuyerID,
				SupplierID:    order.SupplierID,
				Status:        order.Status,
				PaymentMethod: input.PaymentMethod,
				TotalCents:    order.TotalCents,
				ExpiresAt:     order.ExpiresAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
