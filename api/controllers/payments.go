package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tijarahq/tijara-backend/api/middleware"
	"github.com/tijarahq/tijara-backend/api/responses"
	"github.com/tijarahq/tijara-backend/api/validators"
	"github.com/tijarahq/tijara-backend/internal/payments"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
	"github.com/tijarahq/tijara-backend/pkg/logger"
)

type gatewayWebhookRequest struct {
	EventID       string    `json:"event_id" validate:"required"`
	TransactionID string    `json:"transaction_id" validate:"required"`
	Status        string    `json:"status" validate:"required"`
	OrderID       uuid.UUID `json:"order_id" validate:"required"`
	Amount        string    `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
}

// PaymentInitiate opens a gateway charge for an order awaiting payment and
// returns the redirect session. The order itself is untouched.
func PaymentInitiate(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
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

		session, err := svc.Initiate(r.Context(), orderID, buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{
			"charge_id":    session.ChargeID,
			"redirect_url": session.RedirectURL,
		})
	}
}

// GatewayWebhook receives charge status pushes from the payment gateway.
// Unauthenticated route; the reconciler trusts only verifiable state.
func GatewayWebhook(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gatewayWebhookRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.HandleWebhook(r.Context(), payments.WebhookEvent{
			EventID:       req.EventID,
			TransactionID: req.TransactionID,
			Status:        req.Status,
			OrderID:       req.OrderID,
			Amount:        req.Amount,
			Currency:      req.Currency,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"applied": result.Applied,
			"outcome": string(result.Outcome),
		})
	}
}

// PaymentCallback handles the buyer's redirect back from the gateway. The
// charge is re-verified with the gateway; query parameters are never
// trusted as a settlement source.
func PaymentCallback(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transactionID := validators.ParseQueryString(r, "transaction_id")
		if transactionID == "" {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "transaction_id is required"))
			return
		}

		result, err := svc.HandleCallback(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"applied":      result.Applied,
			"outcome":      string(result.Outcome),
			"order_status": string(result.OrderStatus),
		})
	}
}
