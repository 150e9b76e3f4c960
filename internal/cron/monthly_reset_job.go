package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/payswitch-backend/internal/reset"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
)

const monthlyClaimTTL = 40 * 24 * time.Hour

type monthlyResetter interface {
	RunIfDue(ctx context.Context) (*reset.Run, bool, error)
	CycleStart(now time.Time) time.Time
}

// cycleClaimer records that a cycle boundary was handled, independent of the reset
// history an operator may clear.
type cycleClaimer interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type MonthlyResetJobParams struct {
	Logger  *logger.Logger
	Resets  monthlyResetter
	Claimer cycleClaimer
}

func NewMonthlyResetJob(params MonthlyResetJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Resets == nil {
		return nil, fmt.Errorf("reset service required")
	}
	return &monthlyResetJob{
		logg:    params.Logger,
		resets:  params.Resets,
		claimer: params.Claimer,
		now:     time.Now,
	}, nil
}

type monthlyResetJob struct {
	logg    *logger.Logger
	resets  monthlyResetter
	claimer cycleClaimer
	now     func() time.Time
}

func (j *monthlyResetJob) Name() string { return "monthly-reset" }

func (j *monthlyResetJob) Run(ctx context.Context) error {
	boundary := j.resets.CycleStart(j.now())
	var claimKey string
	if j.claimer != nil {
		claimKey = j.claimer.IdempotencyKey("monthly-reset", boundary.UTC().Format(time.RFC3339))
		claimed, err := j.claimer.SetNX(ctx, claimKey, j.now().UTC().Format(time.RFC3339), monthlyClaimTTL)
		if err != nil {
			return fmt.Errorf("claim reset cycle: %w", err)
		}
		if !claimed {
			return nil
		}
	}

	run, ran, err := j.resets.RunIfDue(ctx)
	if claimKey != "" && (!ran || run == nil) {
		if delErr := j.claimer.Del(ctx, claimKey); delErr != nil {
			j.logg.Error(ctx, "cron.monthly_reset.unclaim_failed", delErr)
		}
	}
	if err != nil {
		return err
	}
	if !ran {
		return nil
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"run_id":   run.RunID.String(),
		"accounts": run.AccountsCount,
		"boundary": boundary,
	}), "cron.monthly_reset.done")
	return nil
}
