package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payswitch-backend/internal/reset"
	"github.com/angelmondragon/payswitch-backend/internal/rotation"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
)

type fakeResetter struct {
	due   bool
	err   error
	calls int
}

func (f *fakeResetter) RunIfDue(context.Context) (*reset.Run, bool, error) {
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	if !f.due {
		return nil, false, nil
	}
	f.due = false
	return &reset.Run{RunID: uuid.New(), AccountsCount: 2}, true, nil
}

func (f *fakeResetter) CycleStart(time.Time) time.Time {
	return time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC)
}

type memoryClaimer struct {
	*memoryLockStore
}

func (m memoryClaimer) IdempotencyKey(scope, id string) string { return "ps:idempotency:" + scope + ":" + id }

func TestMonthlyResetJobClaimsCycleOnlyWhenReset(t *testing.T) {
	resetter := &fakeResetter{}
	claimer := memoryClaimer{newMemoryLockStore()}
	job, err := NewMonthlyResetJob(MonthlyResetJobParams{Logger: logger.Nop(), Resets: resetter, Claimer: claimer})
	if err != nil {
		t.Fatalf("NewMonthlyResetJob: %v", err)
	}
	ctx := context.Background()

	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(claimer.values) != 0 {
		t.Fatalf("claim must be released when nothing was due, got %v", claimer.values)
	}

	resetter.due = true
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(claimer.values) != 1 {
		t.Fatalf("expected the cycle to stay claimed, got %v", claimer.values)
	}

	resetter.due = true
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resetter.calls != 2 {
		t.Fatalf("claimed cycle must not reset again, calls=%d", resetter.calls)
	}
}

func TestMonthlyResetJobReleasesClaimOnError(t *testing.T) {
	resetter := &fakeResetter{err: errors.New("db down")}
	claimer := memoryClaimer{newMemoryLockStore()}
	job, _ := NewMonthlyResetJob(MonthlyResetJobParams{Logger: logger.Nop(), Resets: resetter, Claimer: claimer})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(claimer.values) != 0 {
		t.Fatal("failed run must release the claim")
	}
}

type fakeReconciler struct {
	report  *rotation.ReconcileReport
	err     error
	resyncs int
}

func (f *fakeReconciler) Reconcile(context.Context) (*rotation.ReconcileReport, error) {
	return f.report, f.err
}

func (f *fakeReconciler) Resync(context.Context) (*rotation.ReconcileReport, error) {
	f.resyncs++
	return &rotation.ReconcileReport{InSync: true}, nil
}

func driftedReport() *rotation.ReconcileReport {
	return &rotation.ReconcileReport{
		AccountID: uuid.New(),
		Methods: []rotation.MethodStatus{
			{Method: "newebpay", Status: rotation.SyncStatusInSync},
			{Method: "newebpay_atm", Status: rotation.SyncStatusMismatch},
		},
	}
}

func TestGatewayReconcileJob(t *testing.T) {
	t.Run("in sync", func(t *testing.T) {
		rec := &fakeReconciler{report: &rotation.ReconcileReport{InSync: true}}
		job, _ := NewGatewayReconcileJob(GatewayReconcileJobParams{Logger: logger.Nop(), Reconciler: rec, Repair: true})
		if err := job.Run(context.Background()); err != nil || rec.resyncs != 0 {
			t.Fatalf("unexpected err=%v resyncs=%d", err, rec.resyncs)
		}
	})

	t.Run("drift without repair fails", func(t *testing.T) {
		rec := &fakeReconciler{report: driftedReport()}
		job, _ := NewGatewayReconcileJob(GatewayReconcileJobParams{Logger: logger.Nop(), Reconciler: rec})
		if err := job.Run(context.Background()); err == nil || rec.resyncs != 0 {
			t.Fatalf("expected drift error without resync, err=%v resyncs=%d", err, rec.resyncs)
		}
	})

	t.Run("drift with repair resyncs", func(t *testing.T) {
		rec := &fakeReconciler{report: driftedReport()}
		job, _ := NewGatewayReconcileJob(GatewayReconcileJobParams{Logger: logger.Nop(), Reconciler: rec, Repair: true})
		if err := job.Run(context.Background()); err != nil || rec.resyncs != 1 {
			t.Fatalf("expected repair, err=%v resyncs=%d", err, rec.resyncs)
		}
	})

	t.Run("no active account is not a failure", func(t *testing.T) {
		rec := &fakeReconciler{err: pkgerrors.New(pkgerrors.CodeNotFound, "no active merchant account")}
		job, _ := NewGatewayReconcileJob(GatewayReconcileJobParams{Logger: logger.Nop(), Reconciler: rec})
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	})
}
