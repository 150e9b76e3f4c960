// Package reset zeroes monthly usage on the configured boundary, keeping backups and a
// history of every run.
package reset

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payswitch-backend/internal/accounts"
	"github.com/angelmondragon/payswitch-backend/internal/rotation"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox/payloads"
)

const firstRunWindow = 24 * time.Hour

type ledger interface {
	ResetAllUsage(ctx context.Context, hook accounts.ResetHook) ([]models.MerchantAccount, error)
}

type baselineActivator interface {
	ActivateBaseline(ctx context.Context, actor outbox.ActorRef) (*rotation.SwitchResult, error)
}

type resetNotifier interface {
	MonthlyReset(ctx context.Context, tx *gorm.DB, actor outbox.ActorRef, event payloads.MonthlyResetEvent) error
}

type resetMetrics interface {
	IncReset(resetType string)
}

type ServiceParams struct {
	Repository       Repository
	Ledger           ledger
	Rotation         baselineActivator
	Notifier         resetNotifier
	Metrics          resetMetrics
	Logger           *logger.Logger
	Schedule         Schedule
	AllowManualReset bool
	BackupCap        int
	HistoryCap       int
	HistoryPageSize  int
}

type Service struct {
	repo        Repository
	ledger      ledger
	rotation    baselineActivator
	notifier    resetNotifier
	metrics     resetMetrics
	logg        *logger.Logger
	schedule    Schedule
	allowManual bool
	backupCap   int
	historyCap  int
	pageSize    int
	now         func() time.Time
}

// Run is the outcome of one reset.
type Run struct {
	RunID         uuid.UUID              `json:"run_id"`
	Type          enums.ResetType        `json:"type"`
	AccountsCount int                    `json:"accounts_count"`
	ResetAt       time.Time              `json:"reset_at"`
	Baseline      *rotation.SwitchResult `json:"baseline,omitempty"`
}

// BackupRun groups the per-account snapshots taken by one reset.
type BackupRun struct {
	RunID      uuid.UUID            `json:"run_id"`
	BackupDate time.Time            `json:"backup_date"`
	Accounts   []models.UsageBackup `json:"accounts"`
}

type Stats struct {
	TotalBackups int64      `json:"total_backups"`
	TotalResets  int64      `json:"total_resets"`
	LastReset    *time.Time `json:"last_reset,omitempty"`
	NextReset    time.Time  `json:"next_reset"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reset repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "account ledger required")
	}
	if params.Rotation == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "rotation controller required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	svc := &Service{
		repo:        params.Repository,
		ledger:      params.Ledger,
		rotation:    params.Rotation,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		logg:        logg,
		schedule:    params.Schedule,
		allowManual: params.AllowManualReset,
		backupCap:   params.BackupCap,
		historyCap:  params.HistoryCap,
		pageSize:    params.HistoryPageSize,
		now:         time.Now,
	}
	if svc.backupCap <= 0 {
		svc.backupCap = 12
	}
	if svc.historyCap <= 0 {
		svc.historyCap = 100
	}
	if svc.pageSize <= 0 {
		svc.pageSize = 50
	}
	return svc, nil
}

// ManualReset runs the monthly sequence on an operator's request.
func (s *Service) ManualReset(ctx context.Context, operator string) (*Run, error) {
	if !s.allowManual {
		return nil, pkgerrors.New(pkgerrors.CodeFeatureDisabled, "manual reset is disabled")
	}
	return s.Perform(ctx, enums.ResetTypeManual, outbox.ActorRef{Kind: enums.ActorAdmin, Subject: operator})
}

// RunIfDue performs the scheduled reset when this cycle's boundary has passed and no
// monthly reset has been recorded since. Without any recorded monthly reset it only
// fires within firstRunWindow of a boundary, so a fresh deployment never wipes a
// cycle in progress. ok reports whether a reset ran.
func (s *Service) RunIfDue(ctx context.Context) (*Run, bool, error) {
	now := s.now()
	boundary := s.schedule.Previous(now)
	last, err := s.repo.LastReset(ctx, enums.ResetTypeMonthly)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load last reset")
	}
	if last != nil && !last.Before(boundary) {
		return nil, false, nil
	}
	if last == nil && now.Sub(boundary) > firstRunWindow {
		return nil, false, nil
	}
	run, err := s.Perform(ctx, enums.ResetTypeMonthly, outbox.ActorRef{Kind: enums.ActorScheduler})
	if run == nil {
		return nil, false, err
	}
	return run, true, err
}

// Perform snapshots every account, zeroes usage, records the run and re-activates the
// earliest created account. The snapshot, zeroing and records commit together; a
// failure activating the baseline is returned alongside the committed run.
func (s *Service) Perform(ctx context.Context, resetType enums.ResetType, actor outbox.ActorRef) (*Run, error) {
	if !resetType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown reset type")
	}
	run := &Run{RunID: uuid.New(), Type: resetType, ResetAt: s.now().UTC()}

	_, err := s.ledger.ResetAllUsage(ctx, func(tx *gorm.DB, snapshot []models.MerchantAccount) error {
		run.AccountsCount = len(snapshot)
		return s.record(ctx, tx, run, snapshot, actor)
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncReset(string(resetType))
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"run_id":   run.RunID.String(),
		"type":     string(resetType),
		"accounts": run.AccountsCount,
	})
	s.logg.Info(logCtx, "reset.completed")

	baseline, err := s.rotation.ActivateBaseline(ctx, actor)
	run.Baseline = baseline
	if err != nil {
		s.logg.Error(logCtx, "reset.baseline_failed", err)
		return run, err
	}
	return run, nil
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, run *Run, snapshot []models.MerchantAccount, actor outbox.ActorRef) error {
	repo := s.repo.WithTx(tx)

	backups := make([]models.UsageBackup, 0, len(snapshot))
	event := payloads.MonthlyResetEvent{
		RunID:    run.RunID,
		Type:     run.Type,
		Accounts: make([]payloads.AccountUsageSnapshot, 0, len(snapshot)),
	}
	for _, account := range snapshot {
		backups = append(backups, models.UsageBackup{
			RunID:       run.RunID,
			AccountID:   account.ID,
			AccountName: account.Name,
			Usage:       account.MonthlyUsage,
			Limit:       account.MonthlyLimit,
			BackupDate:  run.ResetAt,
		})
		event.Accounts = append(event.Accounts, payloads.AccountUsageSnapshot{
			AccountID:   account.ID,
			AccountName: account.Name,
			Usage:       account.MonthlyUsage,
			Limit:       account.MonthlyLimit,
		})
		if account.IsActive {
			id := account.ID
			event.ActiveAccountID = &id
		}
	}

	if err := repo.InsertBackups(ctx, backups); err != nil {
		return fmt.Errorf("write usage backups: %w", err)
	}
	if _, err := repo.TrimBackupRuns(ctx, s.backupCap); err != nil {
		return fmt.Errorf("trim usage backups: %w", err)
	}
	entry := &models.ResetHistoryEntry{
		RunID:         run.RunID,
		Type:          run.Type,
		Description:   describe(run.Type, len(snapshot)),
		AccountsCount: len(snapshot),
		CreatedAt:     run.ResetAt,
	}
	if err := repo.AppendHistory(ctx, entry, s.historyCap); err != nil {
		return fmt.Errorf("write reset history: %w", err)
	}
	return s.notifier.MonthlyReset(ctx, tx, actor, event)
}

func describe(resetType enums.ResetType, accounts int) string {
	if resetType == enums.ResetTypeManual {
		return fmt.Sprintf("manual reset of %d account(s)", accounts)
	}
	return fmt.Sprintf("monthly reset of %d account(s)", accounts)
}

// CycleStart returns the boundary the current usage cycle began at.
func (s *Service) CycleStart(now time.Time) time.Time {
	return s.schedule.Previous(now)
}

func (s *Service) NextResetTime(now time.Time) time.Time {
	return s.schedule.Next(now)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	backups, err := s.repo.CountBackupRuns(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count backups")
	}
	resets, err := s.repo.CountHistory(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count resets")
	}
	last, err := s.repo.LastReset(ctx, "")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load last reset")
	}
	return &Stats{
		TotalBackups: backups,
		TotalResets:  resets,
		LastReset:    last,
		NextReset:    s.schedule.Next(s.now()),
	}, nil
}

func (s *Service) ListHistory(ctx context.Context, limit int) ([]models.ResetHistoryEntry, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > s.historyCap {
		limit = s.historyCap
	}
	entries, err := s.repo.ListHistory(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reset history")
	}
	return entries, nil
}

func (s *Service) ClearHistory(ctx context.Context) (int64, error) {
	deleted, err := s.repo.ClearHistory(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear reset history")
	}
	s.logg.Info(s.logg.WithField(ctx, "deleted", deleted), "reset.history_cleared")
	return deleted, nil
}

// ListBackups returns backup runs newest first.
func (s *Service) ListBackups(ctx context.Context) ([]BackupRun, error) {
	rows, err := s.repo.ListBackups(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list backups")
	}
	runs := []BackupRun{}
	index := map[uuid.UUID]int{}
	for _, row := range rows {
		i, ok := index[row.RunID]
		if !ok {
			i = len(runs)
			index[row.RunID] = i
			runs = append(runs, BackupRun{RunID: row.RunID, BackupDate: row.BackupDate})
		}
		runs[i].Accounts = append(runs[i].Accounts, row)
	}
	return runs, nil
}

func (s *Service) ClearBackups(ctx context.Context) (int64, error) {
	deleted, err := s.repo.ClearBackups(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear backups")
	}
	s.logg.Info(s.logg.WithField(ctx, "deleted", deleted), "reset.backups_cleared")
	return deleted, nil
}
