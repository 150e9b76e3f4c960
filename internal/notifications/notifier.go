// Package notifications turns rotation and reset outcomes into outbox events for the
// operator notification topic.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payswitch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox/payloads"
)

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Params wires a Notifier.
type Params struct {
	Outbox            emitter
	TransactionRunner txRunner
	Logger            *logger.Logger
	Enabled           bool
}

// Notifier emits operator notifications when enabled. Methods taking a tx join the
// caller's transaction; a nil tx opens a dedicated one.
type Notifier struct {
	outbox  emitter
	tx      txRunner
	logg    *logger.Logger
	enabled bool
	now     func() time.Time
}

func NewNotifier(params Params) (*Notifier, error) {
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Notifier{
		outbox:  params.Outbox,
		tx:      params.TransactionRunner,
		logg:    logg,
		enabled: params.Enabled,
		now:     time.Now,
	}, nil
}

// Enabled reports whether notifications are emitted at all.
func (n *Notifier) Enabled() bool {
	return n != nil && n.enabled
}

func (n *Notifier) AccountSwitched(ctx context.Context, tx *gorm.DB, actor outbox.ActorRef, event payloads.AccountSwitchedEvent) error {
	if event.SwitchedAt.IsZero() {
		event.SwitchedAt = n.now().UTC()
	}
	return n.emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventAccountSwitched,
		AggregateType: enums.AggregateMerchantAccount,
		AggregateID:   event.AccountID,
		Actor:         &actor,
		Data:          event,
		OccurredAt:    event.SwitchedAt,
	})
}

func (n *Notifier) MonthlyReset(ctx context.Context, tx *gorm.DB, actor outbox.ActorRef, event payloads.MonthlyResetEvent) error {
	if event.ResetAt.IsZero() {
		event.ResetAt = n.now().UTC()
	}
	return n.emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventMonthlyReset,
		AggregateType: enums.AggregateResetRun,
		AggregateID:   event.RunID,
		Actor:         &actor,
		Data:          event,
		OccurredAt:    event.ResetAt,
	})
}

// AllocationFailed is best effort: the failure it reports is already logged by the caller,
// so an emit error is only logged here.
func (n *Notifier) AllocationFailed(ctx context.Context, event payloads.AllocationFailedEvent) {
	if event.FailedAt.IsZero() {
		event.FailedAt = n.now().UTC()
	}
	aggregateID := uuid.Nil
	if event.AccountID != nil {
		aggregateID = *event.AccountID
	}
	if aggregateID == uuid.Nil {
		aggregateID = uuid.New()
	}
	err := n.emit(ctx, nil, outbox.DomainEvent{
		EventType:     enums.EventAllocationFailed,
		AggregateType: enums.AggregateMerchantAccount,
		AggregateID:   aggregateID,
		Actor:         &outbox.ActorRef{Kind: enums.ActorSystem},
		Data:          event,
		OccurredAt:    event.FailedAt,
	})
	if err != nil {
		n.logg.Error(ctx, "notifications.allocation_failed.emit_failed", err)
	}
}

func (n *Notifier) GatewaySyncFailed(ctx context.Context, event payloads.GatewaySyncFailedEvent) {
	if event.FailedAt.IsZero() {
		event.FailedAt = n.now().UTC()
	}
	err := n.emit(ctx, nil, outbox.DomainEvent{
		EventType:     enums.EventGatewaySyncFailed,
		AggregateType: enums.AggregateMerchantAccount,
		AggregateID:   event.AccountID,
		Actor:         &outbox.ActorRef{Kind: enums.ActorSystem},
		Data:          event,
		OccurredAt:    event.FailedAt,
	})
	if err != nil {
		n.logg.Error(ctx, "notifications.gateway_sync_failed.emit_failed", err)
	}
}

func (n *Notifier) emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if !n.Enabled() {
		return nil
	}
	if tx != nil {
		return n.outbox.Emit(ctx, tx, event)
	}
	return n.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return n.outbox.Emit(ctx, tx, event)
	})
}
