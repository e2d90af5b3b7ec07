package controllers

import (
	"net/http"

	"github.com/tijarahq/tijara-backend/api/middleware"
	"github.com/tijarahq/tijara-backend/api/responses"
	"github.com/tijarahq/tijara-backend/api/validators"
	"github.com/tijarahq/tijara-backend/internal/checkout"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
	"github.com/tijarahq/tijara-backend/pkg/logger"
)

type checkoutRequest struct {
	PaymentMethod  string  `json:"payment_method" validate:"required,oneof=gateway cash"`
	ShippingMethod *string `json:"shipping_method,omitempty" validate:"omitempty,min=1"`
	Notes          *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// Checkout converts the buyer's active cart into an order.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing"))
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		order, err := svc.CreateFromCart(r.Context(), buyerID, checkout.Input{
			PaymentMethod:  method,
			ShippingMethod: req.ShippingMethod,
			Notes:          req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toOrderResponse(order))
	}
}
