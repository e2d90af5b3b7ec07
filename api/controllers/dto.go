package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/tijarahq/tijara-backend/internal/catalog"
	"github.com/tijarahq/tijara-backend/pkg/db/models"
	"github.com/tijarahq/tijara-backend/pkg/enums"
)

type cartLineResponse struct {
	ProductID      uuid.UUID `json:"product_id"`
	Qty            int       `json:"qty"`
	UnitPriceCents int       `json:"unit_price_cents"`
	LowStock       bool      `json:"low_stock"`
}

type cartResponse struct {
	ID            uuid.UUID          `json:"id"`
	SupplierID    *uuid.UUID         `json:"supplier_id,omitempty"`
	Status        enums.CartStatus   `json:"status"`
	Lines         []cartLineResponse `json:"lines"`
	SubtotalCents int                `json:"subtotal_cents"`
}

func toCartResponse(cart *models.Cart) cartResponse {
	resp := cartResponse{
		ID:         cart.ID,
		SupplierID: cart.SupplierID,
		Status:     cart.Status,
		Lines:      make([]cartLineResponse, 0, len(cart.Lines)),
	}
	for _, line := range cart.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			ProductID:      line.ProductID,
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
			LowStock:       catalog.LowStock(line.Product),
		})
		resp.SubtotalCents += line.Qty * line.UnitPriceCents
	}
	return resp
}

type orderLineResponse struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	Qty            int       `json:"qty"`
	UnitPriceCents int       `json:"unit_price_cents"`
	TotalCents     int       `json:"total_cents"`
}

type orderDetailResponse struct {
	PaymentMethod  enums.PaymentMethod `json:"payment_method"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	ShippingMethod *string             `json:"shipping_method,omitempty"`
	TrackingNumber *string             `json:"tracking_number,omitempty"`
	Notes          *string             `json:"notes,omitempty"`
}

type statusHistoryResponse struct {
	ActorID   *uuid.UUID         `json:"actor_id,omitempty"`
	OldStatus *enums.OrderStatus `json:"old_status,omitempty"`
	NewStatus enums.OrderStatus  `json:"new_status"`
	CreatedAt time.Time          `json:"created_at"`
}

type orderResponse struct {
	ID            uuid.UUID               `json:"id"`
	BuyerID       uuid.UUID               `json:"buyer_id"`
	SupplierID    uuid.UUID               `json:"supplier_id"`
	Status        enums.OrderStatus       `json:"status"`
	StatusLabel   string                  `json:"status_label"`
	StatusColor   string                  `json:"status_color"`
	Currency      string                  `json:"currency"`
	SubtotalCents int                     `json:"subtotal_cents"`
	DiscountCents int                     `json:"discount_cents"`
	TotalCents    int                     `json:"total_cents"`
	ExpiresAt     time.Time               `json:"expires_at"`
	IsExpired     bool                    `json:"is_expired"`
	Lines         []orderLineResponse     `json:"lines,omitempty"`
	Detail        *orderDetailResponse    `json:"detail,omitempty"`
	History       []statusHistoryResponse `json:"history,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

func toOrderResponse(order *models.Order) orderResponse {
	display := order.Status.Display()
	resp := orderResponse{
		ID:            order.ID,
		BuyerID:       order.BuyerID,
		SupplierID:    order.SupplierID,
		Status:        order.Status,
		StatusLabel:   display.Label,
		StatusColor:   display.Color,
		Currency:      order.Currency,
		SubtotalCents: order.SubtotalCents,
		DiscountCents: order.DiscountCents,
		TotalCents:    order.TotalCents,
		ExpiresAt:     order.ExpiresAt,
		IsExpired:     order.IsExpired,
		CreatedAt:     order.CreatedAt,
	}
	for _, line := range order.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ProductID:      line.ProductID,
			Name:           line.Name,
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
			TotalCents:     line.TotalCents,
		})
	}
	if order.Detail != nil {
		resp.Detail = &orderDetailResponse{
			PaymentMethod:  order.Detail.PaymentMethod,
			PaymentStatus:  order.Detail.PaymentStatus,
			ShippingMethod: order.Detail.ShippingMethod,
			TrackingNumber: order.Detail.TrackingNumber,
			Notes:          order.Detail.Notes,
		}
	}
	for _, entry := range order.History {
		resp.History = append(resp.History, statusHistoryResponse{
			ActorID:   entry.ActorID,
			OldStatus: entry.OldStatus,
			NewStatus: entry.NewStatus,
			CreatedAt: entry.CreatedAt,
		})
	}
	return resp
}

func toOrderListResponse(orders []models.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	return out
}
