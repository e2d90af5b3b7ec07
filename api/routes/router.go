package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tijarahq/tijara-backend/api/controllers"
	"github.com/tijarahq/tijara-backend/api/middleware"
	"github.com/tijarahq/tijara-backend/internal/cart"
	"github.com/tijarahq/tijara-backend/internal/checkout"
	"github.com/tijarahq/tijara-backend/internal/orders"
	"github.com/tijarahq/tijara-backend/internal/payments"
	"github.com/tijarahq/tijara-backend/pkg/config"
	"github.com/tijarahq/tijara-backend/pkg/db"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	"github.com/tijarahq/tijara-backend/pkg/logger"
	"github.com/tijarahq/tijara-backend/pkg/redis"
)

// Services bundles everything the router wires into handlers.
type Services struct {
	Cart     cart.Service
	Checkout checkout.Service
	Orders   orders.Service
	Payments payments.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	r.Handle("/metrics", promhttp.Handler())

	// gateway-facing routes carry no bearer token
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", controllers.GatewayWebhook(svcs.Payments, logg))
	})
	r.Get("/api/v1/payments/callback", controllers.PaymentCallback(svcs.Payments, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.ActorRoleBuyer, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartGet(svcs.Cart, logg))
				r.Delete("/", controllers.CartClear(svcs.Cart, logg))
				r.Post("/items", controllers.CartAddItem(svcs.Cart, logg))
				r.Delete("/items/{productId}", controllers.CartRemoveItem(svcs.Cart, logg))
			})

			r.Post("/checkout", controllers.Checkout(svcs.Checkout, logg))
			r.Post("/orders/{orderId}/payment", controllers.PaymentInitiate(svcs.Payments, logg))
			r.Post("/orders/{orderId}/cancel", controllers.OrderCancel(svcs.Orders, logg))
		})

		r.Get("/orders", controllers.OrdersList(svcs.Orders, logg))
		r.Get("/orders/{orderId}", controllers.OrdersGet(svcs.Orders, logg))

		r.Route("/supplier/orders", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.ActorRoleSupplier, logg))
			r.Post("/{orderId}/decision", controllers.OrderDecision(svcs.Orders, logg))
			r.Post("/{orderId}/ship", controllers.OrderShip(svcs.Orders, logg))
			r.Post("/{orderId}/deliver", controllers.OrderDeliver(svcs.Orders, logg))
		})
	})

	return r
}
