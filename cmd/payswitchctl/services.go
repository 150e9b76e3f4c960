package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/angelmondragon/payswitch-backend/internal/app"
	"github.com/angelmondragon/payswitch-backend/pkg/config"
	"github.com/angelmondragon/payswitch-backend/pkg/db"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
	"github.com/angelmondragon/payswitch-backend/pkg/migrate"
	"github.com/angelmondragon/payswitch-backend/pkg/redis"
)

// services is the wired service graph a command operates on.
type services struct {
	cfg       *config.Config
	logg      *logger.Logger
	db        *db.Client
	redis     *redis.Client
	container *app.Container
}

func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	cfg.Service.Kind = "payswitchctl"
	logg := logger.New(logger.Options{
		ServiceName: "payswitchctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      cmd.ErrOrStderr(),
	})
	return cfg, logg, nil
}

func openServices(cmd *cobra.Command) (*services, error) {
	ctx := cmd.Context()
	cfg, logg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, err
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return nil, multierr.Append(err, dbClient.Close())
	}
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return nil, multierr.Append(err, dbClient.Close())
	}

	container, err := app.Build(app.Params{Config: cfg, Logger: logg, DB: dbClient, Redis: redisClient})
	if err != nil {
		return nil, multierr.Combine(err, redisClient.Close(), dbClient.Close())
	}
	return &services{cfg: cfg, logg: logg, db: dbClient, redis: redisClient, container: container}, nil
}

func (r *services) Close() error {
	return multierr.Combine(r.redis.Close(), r.db.Close())
}

// withServices opens the service graph for the duration of fn.
func withServices(fn func(ctx context.Context, cmd *cobra.Command, rt *services, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		rt, err := openServices(cmd)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, rt.Close()) }()
		return fn(cmd.Context(), cmd, rt, args)
	}
}
