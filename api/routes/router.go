package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/payswitch-backend/api/controllers"
	"github.com/angelmondragon/payswitch-backend/api/controllers/admin"
	webhookcontrollers "github.com/angelmondragon/payswitch-backend/api/controllers/webhooks"
	"github.com/angelmondragon/payswitch-backend/api/middleware"
	"github.com/angelmondragon/payswitch-backend/internal/accounts"
	orderwebhook "github.com/angelmondragon/payswitch-backend/internal/webhooks/orders"
	"github.com/angelmondragon/payswitch-backend/pkg/config"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
	"github.com/angelmondragon/payswitch-backend/pkg/metrics"
	"github.com/angelmondragon/payswitch-backend/pkg/redis"
)

// Services bundles the domain services mounted on the router.
type Services struct {
	Accounts     accounts.Service
	Allocator    admin.AllocatorService
	Rotation     admin.RotationService
	Usage        admin.UsageService
	Resets       admin.ResetService
	OrderWebhook webhookcontrollers.OrderWebhookService
	WebhookGuard *orderwebhook.IdempotencyGuard
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	metricsHandler http.Handler,
	httpMetrics *metrics.HTTPMetrics,
	svc Services,
) http.Handler {
	var (
		idempotencyStore redis.IdempotencyStore
		cachePinger      controllers.Pinger
	)
	if redisClient != nil {
		idempotencyStore = redisClient
		cachePinger = redisClient
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, cachePinger))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if svc.WebhookGuard == nil {
			r.Post("/orders", webhookcontrollers.OrderWebhook(svc.OrderWebhook, cfg.Webhooks.SigningSecret, nil, logg))
			return
		}
		r.Post("/orders", webhookcontrollers.OrderWebhook(svc.OrderWebhook, cfg.Webhooks.SigningSecret, svc.WebhookGuard, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.Get("/ping", controllers.AdminPing())

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", admin.AccountList(svc.Accounts, logg))
			r.Get("/active", admin.AccountActive(svc.Accounts, logg))
			r.Get("/active/company", admin.AccountActiveCompany(svc.Accounts, logg))
			r.Get("/usage-stats", admin.AccountUsageStats(svc.Usage, logg))
			r.Get("/{accountId}", admin.AccountGet(svc.Accounts, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireOperator(logg))
				r.Post("/", admin.AccountCreate(svc.Accounts, logg))
				r.Patch("/{accountId}", admin.AccountUpdate(svc.Accounts, logg))
				r.Delete("/{accountId}", admin.AccountDelete(svc.Accounts, logg))
			})
		})

		r.Route("/rotation", func(r chi.Router) {
			r.Get("/history", admin.RotationHistory(svc.Rotation, logg))
			r.Get("/reconcile", admin.RotationReconcile(svc.Rotation, logg))
			r.Get("/allocation", admin.RotationAllocation(svc.Allocator, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireOperator(logg))
				r.Post("/switch", admin.RotationManualSwitch(svc.Rotation, logg))
				r.Post("/auto", admin.RotationAutoSwitch(svc.Rotation, logg))
				r.Post("/check", admin.RotationPrePaymentCheck(svc.Rotation, logg))
				r.Post("/resync", admin.RotationResync(svc.Rotation, logg))
				r.Delete("/history", admin.RotationClearHistory(svc.Rotation, logg))
			})
		})

		r.Route("/usage", func(r chi.Router) {
			r.Get("/associations", admin.UsageAssociations(svc.Usage, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireOperator(logg))
				r.Post("/reset", admin.UsageReset(svc.Usage, logg))
				r.Post("/recompute", admin.UsageRecompute(svc.Usage, logg))
			})
		})

		r.Route("/resets", func(r chi.Router) {
			r.Get("/history", admin.ResetHistory(svc.Resets, logg))
			r.Get("/backups", admin.ResetBackups(svc.Resets, logg))
			r.Get("/stats", admin.ResetStats(svc.Resets, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireOperator(logg))
				r.Post("/", admin.ResetManual(svc.Resets, logg))
				r.Delete("/history", admin.ResetClearHistory(svc.Resets, logg))
				r.Delete("/backups", admin.ResetClearBackups(svc.Resets, logg))
			})
		})
	})

	return r
}
