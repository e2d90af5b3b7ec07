package payments

import (
	"context"

	"github.com/google/uuid"

	"github.com/tijarahq/tijara-backend/pkg/db/models"
	"github.com/tijarahq/tijara-backend/pkg/enums"
)

// ChargeSession is what buyers need to complete payment after initiation.
type ChargeSession struct {
	ChargeID    string
	RedirectURL string
}

// ChargeResult is the gateway's view of a charge after verification.
type ChargeResult struct {
	TransactionID string
	Status        enums.ChargeStatus
	AmountCents   int
	Currency      string
	OrderID       uuid.UUID
}

// Gateway abstracts a third-party charge API behind a uniform surface.
// Implementations never mutate order state; only reconciliation does that.
type Gateway interface {
	Method() enums.PaymentMethod
	CreateCharge(ctx context.Context, order *models.Order) (*ChargeSession, error)
	VerifyCharge(ctx context.Context, externalID string) (*ChargeResult, error)
}

// CashGateway is the zero-network strategy for pay-on-delivery orders. The
// charge is settled out of band; verification always reports pending.
type CashGateway struct{}

// NewCashGateway returns the pay-on-delivery gateway.
func NewCashGateway() *CashGateway {
	return &CashGateway{}
}

func (*CashGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodCash
}

func (*CashGateway) CreateCharge(ctx context.Context, order *models.Order) (*ChargeSession, error) {
	return &ChargeSession{ChargeID: "cash-" + order.ID.String()}, nil
}

func (*CashGateway) VerifyCharge(ctx context.Context, externalID string) (*ChargeResult, error) {
	return &ChargeResult{
		TransactionID: externalID,
		Status:        enums.ChargeStatusPending,
	}, nil
}

// Selector picks the gateway matching the order's configured payment
// method. Orders carry their method permanently; adapters never swap
// mid-order.
type Selector struct {
	gateways map[enums.PaymentMethod]Gateway
}

// NewSelector indexes the provided gateways by payment method.
func NewSelector(gateways ...Gateway) *Selector {
	indexed := make(map[enums.PaymentMethod]Gateway, len(gateways))
	for _, gw := range gateways {
		indexed[gw.Method()] = gw
	}
	return &Selector{gateways: indexed}
}

// ForMethod returns the gateway for the method, or nil when unsupported.
func (s *Selector) ForMethod(method enums.PaymentMethod) Gateway {
	return s.gateways[method]
}
