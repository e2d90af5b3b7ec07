package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tijarahq/tijara-backend/api/middleware"
	"github.com/tijarahq/tijara-backend/api/responses"
	"github.com/tijarahq/tijara-backend/api/validators"
	"github.com/tijarahq/tijara-backend/internal/orders"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
	"github.com/tijarahq/tijara-backend/pkg/logger"
)

type orderDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=accept reject"`
}

type orderShipRequest struct {
	TrackingNumber string  `json:"tracking_number" validate:"required,min=1"`
	ShippingMethod *string `json:"shipping_method,omitempty" validate:"omitempty,min=1"`
}

// OrdersList returns the caller's orders from their side of the marketplace.
func OrdersList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity missing"))
			return
		}
		role, _ := middleware.RoleFromContext(r.Context())

		if role == enums.ActorRoleSupplier {
			supplierID, ok := middleware.SupplierIDFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "supplier context missing"))
				return
			}
			list, err := svc.ListForSupplier(r.Context(), supplierID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, toOrderListResponse(list))
			return
		}

		list, err := svc.ListForBuyer(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderListResponse(list))
	}
}

// OrdersGet returns a single order after an ownership check.
func OrdersGet(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity missing"))
			return
		}

		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		role, _ := middleware.RoleFromContext(r.Context())
		supplierID, _ := middleware.SupplierIDFromContext(r.Context())
		owned := order.BuyerID == userID || (role == enums.ActorRoleSupplier && order.SupplierID == supplierID)
		if !owned {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to caller"))
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

// OrderDecision lets the supplier accept or reject a pending order.
func OrderDecision(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, supplierID, err := supplierIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req orderDecisionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Decide(r.Context(), orders.DecisionInput{
			OrderID:    orderID,
			Decision:   orders.Decision(req.Decision),
			ActorID:    actorID,
			SupplierID: supplierID,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": req.Decision + "ed"})
	}
}

// OrderShip records tracking data and moves the order to shipped.
func OrderShip(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, supplierID, err := supplierIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req orderShipRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Ship(r.Context(), orders.ShipInput{
			OrderID:        orderID,
			ActorID:        actorID,
			SupplierID:     supplierID,
			TrackingNumber: req.TrackingNumber,
			ShippingMethod: req.ShippingMethod,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "shipped"})
	}
}

// OrderDeliver marks a shipped order as delivered.
func OrderDeliver(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, supplierID, err := supplierIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Deliver(r.Context(), orders.DeliverInput{
			OrderID:    orderID,
			ActorID:    actorID,
			SupplierID: supplierID,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "delivered"})
	}
}

// OrderCancel lets the buyer cancel an order that has not progressed past
// the pending stages.
func OrderCancel(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing"))
			return
		}

		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Cancel(r.Context(), orders.CancelInput{
			OrderID: orderID,
			BuyerID: buyerID,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}

func supplierIdentity(r *http.Request) (actorID, supplierID uuid.UUID, err error) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity missing")
	}
	supplierID, ok = middleware.SupplierIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "supplier context missing")
	}
	return actorID, supplierID, nil
}
