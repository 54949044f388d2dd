package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cargolink/cargolink-backend/api/controllers"
	webhookcontrollers "github.com/cargolink/cargolink-backend/api/controllers/webhooks"
	"github.com/cargolink/cargolink-backend/api/middleware"
	"github.com/cargolink/cargolink-backend/internal/audit"
	"github.com/cargolink/cargolink-backend/internal/closing"
	"github.com/cargolink/cargolink-backend/internal/contracts"
	"github.com/cargolink/cargolink-backend/internal/notifications"
	"github.com/cargolink/cargolink-backend/internal/orders"
	"github.com/cargolink/cargolink-backend/internal/settlement"
	gatewaywebhook "github.com/cargolink/cargolink-backend/internal/webhooks/gateway"
	"github.com/cargolink/cargolink-backend/pkg/config"
	"github.com/cargolink/cargolink-backend/pkg/db"
	"github.com/cargolink/cargolink-backend/pkg/gateway"
	"github.com/cargolink/cargolink-backend/pkg/logger"
	"github.com/cargolink/cargolink-backend/pkg/redis"
)

// RouterParams collects everything the HTTP surface depends on.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *redis.Client
	Orders        orders.Service
	Closing       closing.Service
	Settlements   settlement.Service
	Contracts     contracts.Service
	Notifications notifications.Service
	Audit         audit.Recorder
	Gateway       *gateway.Client
	Webhook       *gatewaywebhook.Service
	WebhookGuard  *gatewaywebhook.IdempotencyGuard
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(p.Webhook, p.Gateway, p.WebhookGuard, cfg.Gateway.WebhookURL, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ActorContext(logg))
		r.Use(middleware.Idempotency(p.Redis, cfg.Idempotency.TTL, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.RegisterOrder(p.Orders, logg))
			r.Get("/", controllers.ListOrders(p.Orders, logg))

			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", controllers.GetOrder(p.Orders, logg))

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(logg, "admin"))
					r.Post("/transition", controllers.TransitionOrder(p.Orders, logg))
					r.Post("/match", controllers.MatchOrder(p.Orders, logg))
				})

				r.Route("/closing-report", func(r chi.Router) {
					r.Get("/", controllers.GetClosingReport(p.Closing, logg))
					r.With(middleware.RequireRole(logg, "helper", "admin")).
						Post("/", controllers.SubmitClosingReport(p.Closing, logg))
					r.Group(func(r chi.Router) {
						r.Use(middleware.RequireRole(logg, "admin"))
						r.Post("/approve", controllers.ApproveClosingReport(p.Closing, logg))
						r.Post("/correct", controllers.CorrectClosingReport(p.Closing, logg))
					})
				})

				r.Route("/settlement", func(r chi.Router) {
					r.Get("/", controllers.SettlementFigures(p.Settlements, logg))
					r.Group(func(r chi.Router) {
						r.Use(middleware.RequireRole(logg, "admin"))
						r.Post("/approve", controllers.ApproveSettlement(p.Settlements, logg))
						r.Post("/pay", controllers.PaySettlement(p.Settlements, logg))
						r.Post("/cancel", controllers.CancelSettlement(p.Settlements, logg))
						r.Post("/dispute", controllers.DisputeSettlement(p.Settlements, logg))
						r.Post("/dispute/resolve", controllers.ResolveSettlementDispute(p.Settlements, logg))
					})
				})
			})
		})

		r.Route("/contracts/{contractId}", func(r chi.Router) {
			r.Get("/", controllers.GetContract(p.Contracts, logg))
			r.With(middleware.RequireRole(logg, "admin")).
				Post("/payments/{phase}", controllers.RecordContractPayment(p.Contracts, p.Gateway, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, "admin"))
			r.Get("/notifications", controllers.ListOperatorNotifications(p.Notifications, logg))
			r.Post("/notifications/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
			r.Get("/orders/{orderId}/audit", controllers.ListOrderAudit(p.Audit, logg))
		})
	})

	return r
}
