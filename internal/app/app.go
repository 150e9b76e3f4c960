// Package app assembles the account ledger and the services layered on it. The api
// server, the cron worker and the operator CLI share this graph.
package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/payswitch-backend/internal/accounts"
	"github.com/angelmondragon/payswitch-backend/internal/allocator"
	"github.com/angelmondragon/payswitch-backend/internal/gateway"
	"github.com/angelmondragon/payswitch-backend/internal/notifications"
	"github.com/angelmondragon/payswitch-backend/internal/reset"
	"github.com/angelmondragon/payswitch-backend/internal/rotation"
	"github.com/angelmondragon/payswitch-backend/internal/usage"
	orderwebhook "github.com/angelmondragon/payswitch-backend/internal/webhooks/orders"
	"github.com/angelmondragon/payswitch-backend/pkg/config"
	"github.com/angelmondragon/payswitch-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
	"github.com/angelmondragon/payswitch-backend/pkg/metrics"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox"
	"github.com/angelmondragon/payswitch-backend/pkg/redis"
	"github.com/angelmondragon/payswitch-backend/pkg/security"
)

const webhookScope = "order-webhook"

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Container holds the wired services.
type Container struct {
	Accounts     accounts.Service
	Allocator    *allocator.Service
	Rotation     *rotation.Service
	Usage        *usage.Service
	Resets       *reset.Service
	OrderWebhook *orderwebhook.Service
	WebhookGuard *orderwebhook.IdempotencyGuard
	Gateway      *gateway.SettingsStore
	Outbox       *outbox.Repository
	Metrics      *metrics.RotationMetrics
}

func Build(params Params) (*Container, error) {
	cfg := params.Config
	if cfg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "config required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	if params.Redis == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redis client required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	conn := params.DB.DB()
	rotationMetrics := metrics.NewRotationMetrics(params.Registerer)

	sealer, err := security.NewSealer(cfg.Security.CredentialKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "credential sealer")
	}
	settings, err := gateway.NewSettingsStore(params.Redis, cfg.Gateway.SettingsNamespace, cfg.Gateway.PaymentMethods)
	if err != nil {
		return nil, err
	}

	outboxRepo := outbox.NewRepository(conn)
	notifier, err := notifications.NewNotifier(notifications.Params{
		Outbox:            outbox.NewService(outboxRepo, logg),
		TransactionRunner: params.DB,
		Logger:            logg,
		Enabled:           cfg.FeatureFlags.NotificationsEnabled,
	})
	if err != nil {
		return nil, err
	}

	switchHistory := rotation.NewHistoryRepository(conn)
	recorder, err := rotation.NewRecorder(rotation.RecorderParams{
		History:    switchHistory,
		Notifier:   notifier,
		Metrics:    rotationMetrics,
		HistoryCap: cfg.Rotation.SwitchHistoryCap,
	})
	if err != nil {
		return nil, err
	}

	ledger, err := accounts.NewService(accounts.ServiceParams{
		Repository:         accounts.NewRepository(conn),
		TransactionRunner:  params.DB,
		Sealer:             sealer,
		Sink:               settings,
		Notifier:           notifier,
		Metrics:            rotationMetrics,
		Recorder:           recorder,
		Logger:             logg,
		ClampNegativeUsage: cfg.FeatureFlags.ClampNegativeUsage,
	})
	if err != nil {
		return nil, err
	}

	alloc, err := allocator.NewService(ledger)
	if err != nil {
		return nil, err
	}

	rotationSvc, err := rotation.NewService(rotation.ServiceParams{
		Ledger:            ledger,
		History:           switchHistory,
		Notifier:          notifier,
		Metrics:           rotationMetrics,
		GatewaySource:     settings,
		Logger:            logg,
		AutoSwitchEnabled: cfg.FeatureFlags.AutoSwitchEnabled,
		HistoryCap:        cfg.Rotation.SwitchHistoryCap,
		HistoryPageSize:   cfg.Rotation.HistoryPageSize,
	})
	if err != nil {
		return nil, err
	}

	resetSvc, err := reset.NewService(reset.ServiceParams{
		Repository: reset.NewRepository(conn),
		Ledger:     ledger,
		Rotation:   rotationSvc,
		Notifier:   notifier,
		Metrics:    rotationMetrics,
		Logger:     logg,
		Schedule: reset.Schedule{
			DayOfMonth: cfg.Reset.DayOfMonth,
			Hour:       cfg.Reset.Hour,
			Minute:     cfg.Reset.Minute,
			Location:   cfg.Reset.Location(),
		},
		AllowManualReset: cfg.FeatureFlags.AllowManualReset,
		BackupCap:        cfg.Reset.BackupCap,
		HistoryCap:       cfg.Reset.ResetHistoryCap,
		HistoryPageSize:  cfg.Rotation.HistoryPageSize,
	})
	if err != nil {
		return nil, err
	}

	usageSvc, err := usage.NewService(usage.ServiceParams{
		Repository:         usage.NewRepository(conn),
		Ledger:             ledger,
		Switcher:           rotationSvc,
		Cycle:              resetSvc,
		Logger:             logg,
		ProcessedOrdersCap: cfg.Rotation.ProcessedOrdersCap,
	})
	if err != nil {
		return nil, err
	}

	webhookSvc, err := orderwebhook.NewService(orderwebhook.ServiceParams{Usage: usageSvc, Logger: logg})
	if err != nil {
		return nil, err
	}
	ttl := cfg.Webhooks.IdempotencyTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	guard, err := orderwebhook.NewIdempotencyGuard(params.Redis, ttl, webhookScope)
	if err != nil {
		return nil, err
	}

	return &Container{
		Accounts:     ledger,
		Allocator:    alloc,
		Rotation:     rotationSvc,
		Usage:        usageSvc,
		Resets:       resetSvc,
		OrderWebhook: webhookSvc,
		WebhookGuard: guard,
		Gateway:      settings,
		Outbox:       outboxRepo,
		Metrics:      rotationMetrics,
	}, nil
}
