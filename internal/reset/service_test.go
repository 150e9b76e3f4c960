package reset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/payswitch-backend/internal/accounts"
	"github.com/angelmondragon/payswitch-backend/internal/gateway"
	"github.com/angelmondragon/payswitch-backend/internal/rotation"
	"github.com/angelmondragon/payswitch-backend/pkg/db"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/db/sqlitetest"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/payswitch-backend/pkg/security"
)

const testCredentialKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

type nopSink struct{}

func (nopSink) SyncCredentials(context.Context, gateway.Credentials) error { return nil }

type recordingNotifier struct {
	resets   []payloads.MonthlyResetEvent
	switches []payloads.AccountSwitchedEvent
	resetErr error
}

func (n *recordingNotifier) MonthlyReset(_ context.Context, _ *gorm.DB, _ outbox.ActorRef, event payloads.MonthlyResetEvent) error {
	if n.resetErr != nil {
		return n.resetErr
	}
	n.resets = append(n.resets, event)
	return nil
}

func (n *recordingNotifier) AccountSwitched(_ context.Context, _ *gorm.DB, _ outbox.ActorRef, event payloads.AccountSwitchedEvent) error {
	n.switches = append(n.switches, event)
	return nil
}

func (n *recordingNotifier) AllocationFailed(context.Context, payloads.AllocationFailedEvent) {}

type countingMetrics struct{ resets map[string]int }

func (m *countingMetrics) IncReset(resetType string) {
	if m.resets == nil {
		m.resets = map[string]int{}
	}
	m.resets[resetType]++
}

type harness struct {
	svc      *Service
	ledger   accounts.Service
	notifier *recordingNotifier
	metrics  *countingMetrics
}

type harnessOptions struct {
	allowManual bool
	backupCap   int
	now         time.Time
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	conn := sqlitetest.Open(t)
	sealer, err := security.NewSealer(testCredentialKey)
	require.NoError(t, err)
	ledger, err := accounts.NewService(accounts.ServiceParams{
		Repository:        accounts.NewRepository(conn),
		TransactionRunner: db.Wrap(conn),
		Sealer:            sealer,
		Sink:              nopSink{},
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	rot, err := rotation.NewService(rotation.ServiceParams{
		Ledger:   ledger,
		History:  rotation.NewHistoryRepository(conn),
		Notifier: notifier,
	})
	require.NoError(t, err)

	metrics := &countingMetrics{}
	svc, err := NewService(ServiceParams{
		Repository:       NewRepository(conn),
		Ledger:           ledger,
		Rotation:         rot,
		Notifier:         notifier,
		Metrics:          metrics,
		Schedule:         Schedule{DayOfMonth: 1, Hour: 2},
		AllowManualReset: opts.allowManual,
		BackupCap:        opts.backupCap,
	})
	require.NoError(t, err)
	if !opts.now.IsZero() {
		svc.now = func() time.Time { return opts.now }
	}
	return &harness{svc: svc, ledger: ledger, notifier: notifier, metrics: metrics}
}

func (h *harness) add(t *testing.T, name string, limit, usage int64, active bool) *models.MerchantAccount {
	t.Helper()
	account, err := h.ledger.Add(context.Background(), accounts.AddInput{
		Name:         name,
		MerchantID:   "MS" + name + "0001",
		SecretKey:    "key-" + name,
		SecretIV:     "iv-" + name,
		MonthlyLimit: decimal.NewFromInt(limit),
		IsActive:     active,
	})
	require.NoError(t, err)
	if usage != 0 {
		account, err = h.ledger.ApplyUsageDelta(context.Background(), account.ID, decimal.NewFromInt(usage), nil)
		require.NoError(t, err)
	}
	return account
}

func TestPerformResetsBacksUpAndActivatesBaseline(t *testing.T) {
	h := newHarness(t, harnessOptions{allowManual: true})
	a := h.add(t, "A", 1000, 1000, false)
	b := h.add(t, "B", 1000, 400, true)

	run, err := h.svc.Perform(context.Background(), enums.ResetTypeMonthly, outbox.ActorRef{Kind: enums.ActorScheduler})
	require.NoError(t, err)
	assert.Equal(t, 2, run.AccountsCount)
	require.NotNil(t, run.Baseline)
	assert.Equal(t, a.ID, run.Baseline.Account.ID)
	assert.Equal(t, enums.SwitchReasonMonthlyReset, run.Baseline.Reason)

	all, err := h.ledger.List(context.Background())
	require.NoError(t, err)
	for _, account := range all {
		assert.True(t, account.MonthlyUsage.IsZero(), account.Name)
	}
	active, err := h.ledger.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a.ID, active.ID)

	backups, err := h.svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.Len(t, backups[0].Accounts, 2)
	usage := map[uuid.UUID]decimal.Decimal{}
	for _, row := range backups[0].Accounts {
		usage[row.AccountID] = row.Usage
	}
	assert.True(t, usage[a.ID].Equal(decimal.NewFromInt(1000)))
	assert.True(t, usage[b.ID].Equal(decimal.NewFromInt(400)))

	history, err := h.svc.ListHistory(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, enums.ResetTypeMonthly, history[0].Type)
	assert.Equal(t, 2, history[0].AccountsCount)

	require.Len(t, h.notifier.resets, 1)
	require.NotNil(t, h.notifier.resets[0].ActiveAccountID)
	assert.Equal(t, b.ID, *h.notifier.resets[0].ActiveAccountID)
	assert.Equal(t, 1, h.metrics.resets[string(enums.ResetTypeMonthly)])
}

func TestPerformRollsBackWhenRecordingFails(t *testing.T) {
	h := newHarness(t, harnessOptions{allowManual: true})
	a := h.add(t, "A", 1000, 300, true)
	h.notifier.resetErr = errors.New("outbox unavailable")

	_, err := h.svc.Perform(context.Background(), enums.ResetTypeManual, outbox.ActorRef{Kind: enums.ActorAdmin})
	require.Error(t, err)

	account, err := h.ledger.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, account.MonthlyUsage.Equal(decimal.NewFromInt(300)))
	backups, err := h.svc.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestManualResetRespectsFlag(t *testing.T) {
	h := newHarness(t, harnessOptions{allowManual: false})
	h.add(t, "A", 1000, 300, true)

	_, err := h.svc.ManualReset(context.Background(), "ops@example.com")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFeatureDisabled))

	enabled := newHarness(t, harnessOptions{allowManual: true})
	enabled.add(t, "A", 1000, 300, true)
	run, err := enabled.svc.ManualReset(context.Background(), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, enums.ResetTypeManual, run.Type)
}

func TestResetWithEmptyLedger(t *testing.T) {
	h := newHarness(t, harnessOptions{allowManual: true})

	run, err := h.svc.Perform(context.Background(), enums.ResetTypeMonthly, outbox.ActorRef{Kind: enums.ActorScheduler})
	require.NoError(t, err)
	assert.Zero(t, run.AccountsCount)
	assert.Equal(t, rotation.SkipNoAccounts, run.Baseline.Skipped)
}

func TestBackupsKeepNewestRuns(t *testing.T) {
	h := newHarness(t, harnessOptions{allowManual: true, backupCap: 2})
	h.add(t, "A", 1000, 10, true)

	base := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	var runs []uuid.UUID
	for i := 0; i < 4; i++ {
		at := base.AddDate(0, i, 0)
		h.svc.now = func() time.Time { return at }
		run, err := h.svc.Perform(context.Background(), enums.ResetTypeMonthly, outbox.ActorRef{Kind: enums.ActorScheduler})
		require.NoError(t, err)
		runs = append(runs, run.RunID)
	}

	backups, err := h.svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, runs[3], backups[0].RunID)
	assert.Equal(t, runs[2], backups[1].RunID)

	stats, err := h.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalBackups)
	assert.EqualValues(t, 4, stats.TotalResets)
	require.NotNil(t, stats.LastReset)
	assert.True(t, stats.LastReset.Equal(base.AddDate(0, 3, 0)))
	assert.True(t, stats.NextReset.Equal(base.AddDate(0, 4, 0)))

	deleted, err := h.svc.ClearBackups(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)
	cleared, err := h.svc.ClearHistory(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, cleared)
}

func TestRunIfDue(t *testing.T) {
	boundary := time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC)

	t.Run("fresh install mid cycle does nothing", func(t *testing.T) {
		h := newHarness(t, harnessOptions{now: boundary.Add(10 * 24 * time.Hour)})
		h.add(t, "A", 1000, 500, true)

		_, ran, err := h.svc.RunIfDue(context.Background())
		require.NoError(t, err)
		assert.False(t, ran)
	})

	t.Run("fresh install just after boundary resets once", func(t *testing.T) {
		h := newHarness(t, harnessOptions{now: boundary.Add(time.Hour)})
		h.add(t, "A", 1000, 500, true)

		run, ran, err := h.svc.RunIfDue(context.Background())
		require.NoError(t, err)
		require.True(t, ran)
		assert.Equal(t, enums.ResetTypeMonthly, run.Type)

		_, ran, err = h.svc.RunIfDue(context.Background())
		require.NoError(t, err)
		assert.False(t, ran)
	})

	t.Run("catches up a missed boundary", func(t *testing.T) {
		h := newHarness(t, harnessOptions{now: boundary.AddDate(0, -1, 0).Add(time.Minute)})
		h.add(t, "A", 1000, 500, true)
		_, ran, err := h.svc.RunIfDue(context.Background())
		require.NoError(t, err)
		require.True(t, ran)

		later := boundary.Add(5 * 24 * time.Hour)
		h.svc.now = func() time.Time { return later }
		_, ran, err = h.svc.RunIfDue(context.Background())
		require.NoError(t, err)
		assert.True(t, ran)
	})
}
