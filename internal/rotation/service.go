// Package rotation owns the "which account is active" decision: automatic switches when
// an account fills up, pre-payment switches for a specific charge, manual switches, and
// the capped history of every change.
package rotation

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/payswitch-backend/internal/accounts"
	"github.com/angelmondragon/payswitch-backend/internal/allocator"
	"github.com/angelmondragon/payswitch-backend/internal/gateway"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox/payloads"
)

// Skip reasons reported when a switch request leaves the active account alone.
const (
	SkipAutoSwitchDisabled = "auto_switch_disabled"
	SkipAlreadyActive      = "already_active"
	SkipActiveHasHeadroom  = "active_has_headroom"
	SkipActiveCanCover     = "active_can_cover"
	SkipNoAccounts         = "no_accounts"
)

type ledger interface {
	List(ctx context.Context) ([]models.MerchantAccount, error)
	GetActive(ctx context.Context) (*models.MerchantAccount, error)
	Activate(ctx context.Context, id uuid.UUID, hook accounts.ActivationHook) (*accounts.Activation, error)
	Credentials(account *models.MerchantAccount) (gateway.Credentials, error)
	SyncActive(ctx context.Context) (*models.MerchantAccount, error)
}

type switchNotifier interface {
	AccountSwitched(ctx context.Context, tx *gorm.DB, actor outbox.ActorRef, event payloads.AccountSwitchedEvent) error
	AllocationFailed(ctx context.Context, event payloads.AllocationFailedEvent)
}

type switchMetrics interface {
	IncSwitch(reason string)
	IncAllocationFailure()
}

// ServiceParams wires the rotation controller.
type ServiceParams struct {
	Ledger            ledger
	History           HistoryRepository
	Notifier          switchNotifier
	Metrics           switchMetrics
	GatewaySource     gateway.CredentialSource
	Logger            *logger.Logger
	AutoSwitchEnabled bool
	HistoryCap        int
	HistoryPageSize   int
}

type Service struct {
	// mu serializes switch decisions so two triggers never pick different targets
	// from the same snapshot.
	mu          sync.Mutex
	ledger      ledger
	history     HistoryRepository
	notifier    switchNotifier
	metrics     switchMetrics
	recorder    *Recorder
	source      gateway.CredentialSource
	logg        *logger.Logger
	autoEnabled bool
	historyCap  int
	pageSize    int
}

// SwitchResult describes what a switch request did.
type SwitchResult struct {
	Switched bool                    `json:"switched"`
	Skipped  string                  `json:"skipped,omitempty"`
	Reason   enums.SwitchReason      `json:"reason,omitempty"`
	Account  *models.MerchantAccount `json:"account,omitempty"`
	Previous *models.MerchantAccount `json:"previous,omitempty"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "account ledger required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	var counter switchCounter
	if params.Metrics != nil {
		counter = params.Metrics
	}
	recorder, err := NewRecorder(RecorderParams{
		History:    params.History,
		Notifier:   params.Notifier,
		Metrics:    counter,
		HistoryCap: params.HistoryCap,
	})
	if err != nil {
		return nil, err
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	pageSize := params.HistoryPageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Service{
		ledger:      params.Ledger,
		history:     params.History,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		recorder:    recorder,
		source:      params.GatewaySource,
		logg:        logg,
		autoEnabled: params.AutoSwitchEnabled,
		historyCap:  recorder.historyCap,
		pageSize:    pageSize,
	}, nil
}

// AutoSwitchEnabled reports the feature flag state.
func (s *Service) AutoSwitchEnabled() bool {
	return s.autoEnabled
}

// AutoSwitch moves off an active account that has no headroom left. It picks the
// eligible account with the lowest usage, else the default account. When neither
// exists the active account is kept and the failure is logged and notified.
func (s *Service) AutoSwitch(ctx context.Context) (*SwitchResult, error) {
	if !s.autoEnabled {
		s.logg.Warn(ctx, "rotation.auto_switch.disabled")
		return &SwitchResult{Skipped: SkipAutoSwitchDisabled}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, active, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, s.allocationFailed(ctx, nil, nil, len(all), enums.SwitchReasonLimitReached, "no merchant accounts configured")
	}
	if active != nil && allocator.Eligible(*active, decimal.Zero) {
		return &SwitchResult{Skipped: SkipActiveHasHeadroom, Account: active}, nil
	}

	selection, _ := allocator.Select(all, decimal.Zero)
	if selection.Outcome == allocator.OutcomeOldest || (active != nil && selection.Account.ID == active.ID) {
		return nil, s.allocationFailed(ctx, active, nil, len(all), enums.SwitchReasonLimitReached, "no account with remaining headroom and no usable default")
	}

	return s.switchTo(ctx, selection.Account.ID, selection.Reason(enums.SwitchReasonLimitReached), outbox.ActorRef{Kind: enums.ActorSystem})
}

// PrePaymentSwitch makes sure the active account can cover amount, switching to one
// that can when it cannot.
func (s *Service) PrePaymentSwitch(ctx context.Context, amount decimal.Decimal) (*SwitchResult, error) {
	if amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	if !s.autoEnabled {
		s.logg.Warn(ctx, "rotation.pre_payment.auto_switch_disabled")
		return &SwitchResult{Skipped: SkipAutoSwitchDisabled}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, active, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil && allocator.Eligible(*active, amount) {
		return &SwitchResult{Skipped: SkipActiveCanCover, Account: active}, nil
	}

	selection, ok := allocator.Select(all, amount)
	if !ok || !selection.CanHandle() {
		return nil, s.allocationFailed(ctx, active, &amount, len(all), enums.SwitchReasonPrePayment, "no account can cover the charge")
	}
	if active != nil && selection.Account.ID == active.ID {
		return &SwitchResult{Skipped: SkipAlreadyActive, Account: active}, nil
	}

	return s.switchTo(ctx, selection.Account.ID, selection.Reason(enums.SwitchReasonPrePayment), outbox.ActorRef{Kind: enums.ActorSystem})
}

// ManualSwitch activates id on an operator's request. Re-selecting the active account
// succeeds without touching the gateway.
func (s *Service) ManualSwitch(ctx context.Context, id uuid.UUID, operator string) (*SwitchResult, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.switchTo(ctx, id, enums.SwitchReasonManual, outbox.ActorRef{Kind: enums.ActorAdmin, Subject: operator})
}

// ActivateBaseline activates the earliest created account after a reset.
func (s *Service) ActivateBaseline(ctx context.Context, actor outbox.ActorRef) (*SwitchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return &SwitchResult{Skipped: SkipNoAccounts}, nil
	}
	baseline := all[0]
	for _, account := range all[1:] {
		if account.CreatedAt.Before(baseline.CreatedAt) ||
			(account.CreatedAt.Equal(baseline.CreatedAt) && account.ID.String() < baseline.ID.String()) {
			baseline = account
		}
	}
	return s.switchTo(ctx, baseline.ID, enums.SwitchReasonMonthlyReset, actor)
}

// switchTo activates id. The ledger pushes the new credentials to the gateway before
// Activate returns, so a SyncFailed error comes back with the committed result.
func (s *Service) switchTo(ctx context.Context, id uuid.UUID, reason enums.SwitchReason, actor outbox.ActorRef) (*SwitchResult, error) {
	activation, err := s.ledger.Activate(ctx, id, func(tx *gorm.DB, previous, activated *models.MerchantAccount) error {
		return s.recorder.RecordSwitch(ctx, tx, previous, activated, reason, actor)
	})
	if activation == nil {
		return nil, err
	}

	result := &SwitchResult{
		Switched: activation.Changed,
		Reason:   reason,
		Account:  activation.Account,
		Previous: activation.Previous,
	}
	if !activation.Changed {
		result.Skipped = SkipAlreadyActive
		result.Reason = ""
		return result, err
	}

	s.recorder.CountSwitch(reason)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"account_id": activation.Account.ID.String(),
		"reason":     string(reason),
		"actor":      string(actor.Kind),
	})
	s.logg.Info(logCtx, "rotation.switched")
	return result, err
}

func (s *Service) allocationFailed(ctx context.Context, active *models.MerchantAccount, amount *decimal.Decimal, count int, reason enums.SwitchReason, message string) error {
	if s.metrics != nil {
		s.metrics.IncAllocationFailure()
	}
	event := payloads.AllocationFailedEvent{
		Reason:          reason,
		RequestedAmount: amount,
		AccountsCount:   count,
		Message:         message,
	}
	fields := map[string]any{"accounts": count, "reason": string(reason)}
	if active != nil {
		event.AccountID = &active.ID
		fields["account_id"] = active.ID.String()
	}
	if amount != nil {
		fields["amount"] = amount.String()
	}
	err := pkgerrors.New(pkgerrors.CodeNoAccountsAvailable, message).WithDetails(fields)
	s.logg.Error(s.logg.WithFields(ctx, fields), "rotation.allocation_failed", err)
	s.notifier.AllocationFailed(ctx, event)
	return err
}

func (s *Service) snapshot(ctx context.Context) ([]models.MerchantAccount, *models.MerchantAccount, error) {
	all, err := s.ledger.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for i := range all {
		if all[i].IsActive {
			active := all[i]
			return all, &active, nil
		}
	}
	return all, nil, nil
}

// ListSwitchHistory returns the newest entries first.
func (s *Service) ListSwitchHistory(ctx context.Context, limit int) ([]models.SwitchHistoryEntry, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > s.historyCap {
		limit = s.historyCap
	}
	entries, err := s.history.ListRecent(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list switch history")
	}
	return entries, nil
}

func (s *Service) ClearSwitchHistory(ctx context.Context) (int64, error) {
	deleted, err := s.history.Clear(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear switch history")
	}
	s.logg.Info(s.logg.WithField(ctx, "deleted", deleted), "rotation.history_cleared")
	return deleted, nil
}
