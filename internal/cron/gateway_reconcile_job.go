package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/payswitch-backend/internal/rotation"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
)

type gatewayReconciler interface {
	Reconcile(ctx context.Context) (*rotation.ReconcileReport, error)
	Resync(ctx context.Context) (*rotation.ReconcileReport, error)
}

type GatewayReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler gatewayReconciler
	Repair     bool
}

// NewGatewayReconcileJob checks that the gateway settings still carry the active
// account and, when Repair is set, pushes the credentials again on drift.
func NewGatewayReconcileJob(params GatewayReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &gatewayReconcileJob{logg: params.Logger, reconciler: params.Reconciler, repair: params.Repair}, nil
}

type gatewayReconcileJob struct {
	logg       *logger.Logger
	reconciler gatewayReconciler
	repair     bool
}

func (j *gatewayReconcileJob) Name() string { return "gateway-reconcile" }

func (j *gatewayReconcileJob) Run(ctx context.Context) error {
	report, err := j.reconciler.Reconcile(ctx)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		j.logg.Warn(ctx, "cron.gateway_reconcile.no_active_account")
		return nil
	}
	if err != nil {
		return err
	}
	if report.InSync {
		return nil
	}

	drift := driftError(report)
	logCtx := j.logg.WithField(ctx, "account_id", report.AccountID.String())
	if !j.repair {
		j.logg.Error(logCtx, "cron.gateway_reconcile.drift", drift)
		return drift
	}
	j.logg.Warn(j.logg.WithField(logCtx, "drift", drift.Error()), "cron.gateway_reconcile.resyncing")
	repaired, err := j.reconciler.Resync(ctx)
	if err != nil {
		return multierr.Append(drift, err)
	}
	if !repaired.InSync {
		return multierr.Append(drift, driftError(repaired))
	}
	return nil
}

func driftError(report *rotation.ReconcileReport) error {
	var errs error
	for _, method := range report.Methods {
		if method.Status == rotation.SyncStatusInSync {
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %s %s", method.Method, method.Status, method.Error))
	}
	return errs
}
