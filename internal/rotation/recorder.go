package rotation

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/payswitch-backend/pkg/security"
)

type switchEventNotifier interface {
	AccountSwitched(ctx context.Context, tx *gorm.DB, actor outbox.ActorRef, event payloads.AccountSwitchedEvent) error
}

type switchCounter interface {
	IncSwitch(reason string)
}

// RecorderParams wires a Recorder.
type RecorderParams struct {
	History    HistoryRepository
	Notifier   switchEventNotifier
	Metrics    switchCounter
	HistoryCap int
}

// Recorder writes the audit trail of an activation: a capped history entry and an
// AccountSwitched event in the activating transaction, and the switch counter once it
// commits. The ledger uses it for activations made through account edits.
type Recorder struct {
	history    HistoryRepository
	notifier   switchEventNotifier
	metrics    switchCounter
	historyCap int
}

func NewRecorder(params RecorderParams) (*Recorder, error) {
	if params.History == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "switch history repository required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	historyCap := params.HistoryCap
	if historyCap <= 0 {
		historyCap = 100
	}
	return &Recorder{
		history:    params.History,
		notifier:   params.Notifier,
		metrics:    params.Metrics,
		historyCap: historyCap,
	}, nil
}

func (r *Recorder) RecordSwitch(ctx context.Context, tx *gorm.DB, previous, activated *models.MerchantAccount, reason enums.SwitchReason, actor outbox.ActorRef) error {
	entry := &models.SwitchHistoryEntry{
		AccountID:        activated.ID,
		AccountName:      activated.Name,
		MaskedMerchantID: security.MaskMerchantID(activated.MerchantID),
		Reason:           reason,
		IsDefault:        activated.IsDefault,
		UsageSnapshot:    activated.MonthlyUsage,
		LimitSnapshot:    activated.MonthlyLimit,
		Actor:            actor.Kind,
	}
	event := payloads.AccountSwitchedEvent{
		AccountID:        activated.ID,
		AccountName:      activated.Name,
		MaskedMerchantID: entry.MaskedMerchantID,
		Reason:           reason,
		IsDefault:        activated.IsDefault,
		Usage:            activated.MonthlyUsage,
		Limit:            activated.MonthlyLimit,
	}
	if previous != nil {
		entry.PreviousAccountID = &previous.ID
		event.PreviousAccountID = &previous.ID
		event.PreviousName = previous.Name
	}
	if err := r.history.WithTx(tx).Append(ctx, entry, r.historyCap); err != nil {
		return err
	}
	return r.notifier.AccountSwitched(ctx, tx, actor, event)
}

func (r *Recorder) CountSwitch(reason enums.SwitchReason) {
	if r.metrics != nil {
		r.metrics.IncSwitch(string(reason))
	}
}
