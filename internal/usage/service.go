// Package usage turns order and refund events into usage deltas on merchant accounts.
package usage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/payswitch-backend/internal/accounts"
	"github.com/angelmondragon/payswitch-backend/internal/allocator"
	"github.com/angelmondragon/payswitch-backend/internal/rotation"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
	"github.com/angelmondragon/payswitch-backend/pkg/pagination"
)

// Status reports what an order or refund event did to the ledger.
type Status string

const (
	StatusApplied   Status = "applied"
	StatusDuplicate Status = "duplicate"
	StatusIgnored   Status = "ignored"
	StatusRefunded  Status = "refunded"
)

const legacyRefundReason = "negative_order_total"

var (
	errAlreadyProcessed = errors.New("order already processed")
	errDuplicateRefund  = errors.New("refund already recorded")
)

type ledger interface {
	Get(ctx context.Context, id uuid.UUID) (*models.MerchantAccount, error)
	GetActive(ctx context.Context) (*models.MerchantAccount, error)
	ApplyUsageDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal, hook accounts.UsageHook) (*models.MerchantAccount, error)
	ResetAllUsage(ctx context.Context, hook accounts.ResetHook) ([]models.MerchantAccount, error)
	RebuildUsage(ctx context.Context, totals map[uuid.UUID]decimal.Decimal) error
}

type autoSwitcher interface {
	AutoSwitch(ctx context.Context) (*rotation.SwitchResult, error)
}

type cycleStarter interface {
	CycleStart(now time.Time) time.Time
}

type ServiceParams struct {
	Repository         Repository
	Ledger             ledger
	Switcher           autoSwitcher
	Cycle              cycleStarter
	Logger             *logger.Logger
	ProcessedOrdersCap int
}

type Service struct {
	repo         Repository
	ledger       ledger
	switcher     autoSwitcher
	cycle        cycleStarter
	logg         *logger.Logger
	processedCap int
	now          func() time.Time
}

// OrderCompletion is a completed order as reported by the storefront.
type OrderCompletion struct {
	OrderID       string
	Amount        decimal.Decimal
	PaymentMethod string
}

// Refund is a refund posted against an order. RefundID makes the event idempotent when set.
type Refund struct {
	OrderID  string
	RefundID string
	Amount   decimal.Decimal
	Reason   string
}

type Result struct {
	Status    Status                 `json:"status"`
	OrderID   string                 `json:"order_id"`
	AccountID *uuid.UUID             `json:"account_id,omitempty"`
	Usage     *decimal.Decimal       `json:"usage,omitempty"`
	Switch    *rotation.SwitchResult `json:"switch,omitempty"`
}

type Stats struct {
	AccountID       uuid.UUID       `json:"account_id"`
	AccountName     string          `json:"account_name"`
	ProcessedOrders int64           `json:"processed_orders"`
	Usage           decimal.Decimal `json:"usage"`
	Limit           decimal.Decimal `json:"limit"`
	Remaining       decimal.Decimal `json:"remaining"`
}

type AssociationPage struct {
	Items      []models.OrderAccountAssociation `json:"items"`
	NextCursor string                           `json:"next_cursor,omitempty"`
}

type Recompute struct {
	Since  time.Time                     `json:"since"`
	Totals map[uuid.UUID]decimal.Decimal `json:"totals"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "usage repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "account ledger required")
	}
	if params.Cycle == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cycle source required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	processedCap := params.ProcessedOrdersCap
	if processedCap <= 0 {
		processedCap = 10000
	}
	return &Service{
		repo:         params.Repository,
		ledger:       params.Ledger,
		switcher:     params.Switcher,
		cycle:        params.Cycle,
		logg:         logg,
		processedCap: processedCap,
		now:          time.Now,
	}, nil
}

// OnOrderCreated pins the order to the currently active account. An existing
// association is returned unchanged.
func (s *Service) OnOrderCreated(ctx context.Context, orderID, paymentMethod string) (*models.OrderAccountAssociation, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}
	if !acceptsPaymentMethod(paymentMethod) {
		return nil, nil
	}
	active, err := s.ledger.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNoAccountsAvailable, "no active merchant account")
	}

	assoc := newAssociation(orderID, paymentMethod, active)
	created, err := s.repo.CreateAssociation(ctx, assoc)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order association")
	}
	if !created {
		existing, err := s.repo.FindAssociation(ctx, orderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order association")
		}
		return existing, nil
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":   orderID,
		"account_id": active.ID.String(),
	}), "usage.order_associated")
	return assoc, nil
}

// OnOrderCompleted charges the order's amount to its account exactly once, then runs the
// auto-switch check when that account has no headroom left. A negative total is booked
// as a refund of its absolute value against the active account.
func (s *Service) OnOrderCompleted(ctx context.Context, order OrderCompletion) (*Result, error) {
	order.OrderID = strings.TrimSpace(order.OrderID)
	if order.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}
	result := &Result{OrderID: order.OrderID}
	if !acceptsPaymentMethod(order.PaymentMethod) {
		result.Status = StatusIgnored
		return result, nil
	}

	processed, err := s.repo.IsProcessed(ctx, order.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check processed order")
	}
	if processed {
		result.Status = StatusDuplicate
		return result, nil
	}

	if order.Amount.IsNegative() {
		return s.legacyRefund(ctx, order)
	}

	assoc, err := s.repo.FindAssociation(ctx, order.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order association")
	}
	target, err := s.chargeTarget(ctx, assoc)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	updated, err := s.ledger.ApplyUsageDelta(ctx, target.ID, order.Amount, func(tx *gorm.DB, account *models.MerchantAccount) error {
		repo := s.repo.WithTx(tx)
		inserted, err := repo.InsertProcessed(ctx, &models.ProcessedOrder{
			OrderID:     order.OrderID,
			AccountID:   account.ID,
			Amount:      order.Amount,
			ProcessedAt: now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return errAlreadyProcessed
		}
		if assoc == nil {
			if _, err := repo.CreateAssociation(ctx, newAssociation(order.OrderID, order.PaymentMethod, account)); err != nil {
				return err
			}
		}
		if err := repo.MarkAssociationCompleted(ctx, order.OrderID, order.Amount, now); err != nil {
			return err
		}
		_, err = repo.TrimProcessed(ctx, s.processedCap)
		return err
	})
	if errors.Is(err, errAlreadyProcessed) {
		result.Status = StatusDuplicate
		return result, nil
	}
	if err != nil {
		return nil, wrapLedgerError(err, "apply order usage")
	}

	result.Status = StatusApplied
	result.AccountID = &updated.ID
	result.Usage = &updated.MonthlyUsage
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":   order.OrderID,
		"account_id": updated.ID.String(),
		"amount":     order.Amount.String(),
		"usage":      updated.MonthlyUsage.String(),
	})
	s.logg.Info(logCtx, "usage.order_applied")

	if s.switcher != nil && !allocator.Eligible(*updated, decimal.Zero) {
		switched, err := s.switcher.AutoSwitch(ctx)
		if err != nil {
			s.logg.Error(logCtx, "usage.auto_switch_failed", err)
		}
		result.Switch = switched
	}
	return result, nil
}

func (s *Service) legacyRefund(ctx context.Context, order OrderCompletion) (*Result, error) {
	active, err := s.ledger.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNoAccountsAvailable, "no active merchant account")
	}
	amount := order.Amount.Abs()
	now := s.now().UTC()
	updated, err := s.ledger.ApplyUsageDelta(ctx, active.ID, amount.Neg(), func(tx *gorm.DB, account *models.MerchantAccount) error {
		repo := s.repo.WithTx(tx)
		inserted, err := repo.InsertProcessed(ctx, &models.ProcessedOrder{
			OrderID:     order.OrderID,
			AccountID:   account.ID,
			Amount:      order.Amount,
			ProcessedAt: now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return errAlreadyProcessed
		}
		if _, err := repo.InsertRefund(ctx, &models.RefundRecord{
			OrderID:   order.OrderID,
			AccountID: account.ID,
			Amount:    amount,
			Reason:    legacyRefundReason,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		_, err = repo.TrimProcessed(ctx, s.processedCap)
		return err
	})
	if errors.Is(err, errAlreadyProcessed) {
		return &Result{Status: StatusDuplicate, OrderID: order.OrderID}, nil
	}
	if err != nil {
		return nil, wrapLedgerError(err, "apply negative order total")
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"order_id":   order.OrderID,
		"account_id": updated.ID.String(),
		"amount":     amount.String(),
	}), "usage.negative_total_refunded")
	return &Result{Status: StatusRefunded, OrderID: order.OrderID, AccountID: &updated.ID, Usage: &updated.MonthlyUsage}, nil
}

// OnRefund debits the refund from the account that charged the order. Refunds never
// trigger a switch.
func (s *Service) OnRefund(ctx context.Context, refund Refund) (*Result, error) {
	refund.OrderID = strings.TrimSpace(refund.OrderID)
	refund.RefundID = strings.TrimSpace(refund.RefundID)
	if refund.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}
	if !refund.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive").
			WithDetails(map[string]any{"amount": refund.Amount.String()})
	}

	target, err := s.ResolveRefundTarget(ctx, refund.OrderID)
	if err != nil {
		return nil, err
	}

	record := &models.RefundRecord{
		OrderID: refund.OrderID,
		Amount:  refund.Amount,
		Reason:  refund.Reason,
	}
	if refund.RefundID != "" {
		record.RefundID = &refund.RefundID
	}
	updated, err := s.ledger.ApplyUsageDelta(ctx, target.ID, refund.Amount.Neg(), func(tx *gorm.DB, account *models.MerchantAccount) error {
		record.AccountID = account.ID
		record.CreatedAt = s.now().UTC()
		inserted, err := s.repo.WithTx(tx).InsertRefund(ctx, record)
		if err != nil {
			return err
		}
		if !inserted {
			return errDuplicateRefund
		}
		return nil
	})
	if errors.Is(err, errDuplicateRefund) {
		return &Result{Status: StatusDuplicate, OrderID: refund.OrderID}, nil
	}
	if err != nil {
		return nil, wrapLedgerError(err, "apply refund")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":   refund.OrderID,
		"refund_id":  refund.RefundID,
		"account_id": updated.ID.String(),
		"amount":     refund.Amount.String(),
	}), "usage.refund_applied")
	return &Result{Status: StatusRefunded, OrderID: refund.OrderID, AccountID: &updated.ID, Usage: &updated.MonthlyUsage}, nil
}

// ResolveRefundTarget returns the account that charged orderID. Orders without a usable
// association fall back to the active account.
func (s *Service) ResolveRefundTarget(ctx context.Context, orderID string) (*models.MerchantAccount, error) {
	assoc, err := s.repo.FindAssociation(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order association")
	}
	if assoc != nil {
		account, err := s.ledger.Get(ctx, assoc.AccountID)
		if err == nil {
			return account, nil
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"order_id":   orderID,
			"account_id": assoc.AccountID.String(),
		}), "usage.associated_account_missing")
	}

	active, err := s.ledger.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNoAccountAssociation, "order has no account association and no account is active").
			WithDetails(map[string]any{"order_id": orderID})
	}
	return active, nil
}

func (s *Service) chargeTarget(ctx context.Context, assoc *models.OrderAccountAssociation) (*models.MerchantAccount, error) {
	if assoc != nil {
		account, err := s.ledger.Get(ctx, assoc.AccountID)
		if err == nil {
			return account, nil
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
	}
	active, err := s.ledger.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNoAccountsAvailable, "no active merchant account")
	}
	return active, nil
}

func (s *Service) ListAssociations(ctx context.Context, params pagination.Params) (*AssociationPage, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	items, next, err := s.repo.ListAssociations(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order associations")
	}
	if items == nil {
		items = []models.OrderAccountAssociation{}
	}
	return &AssociationPage{Items: items, NextCursor: next}, nil
}

// UsageStats summarizes the active account.
func (s *Service) UsageStats(ctx context.Context) (*Stats, error) {
	active, err := s.ledger.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active merchant account")
	}
	count, err := s.repo.CountProcessed(ctx, active.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count processed orders")
	}
	return &Stats{
		AccountID:       active.ID,
		AccountName:     active.Name,
		ProcessedOrders: count,
		Usage:           active.MonthlyUsage,
		Limit:           active.MonthlyLimit,
		Remaining:       active.Remaining(),
	}, nil
}

// RecomputeUsage rebuilds every account's usage for the current cycle from completed
// order charges minus recorded refunds.
func (s *Service) RecomputeUsage(ctx context.Context) (*Recompute, error) {
	since := s.cycle.CycleStart(s.now())
	charges, err := s.repo.ChargesSince(ctx, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum order charges")
	}
	refunds, err := s.repo.RefundsSince(ctx, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum refunds")
	}

	totals := make(map[uuid.UUID]decimal.Decimal, len(charges))
	for id, amount := range charges {
		totals[id] = amount
	}
	for id, amount := range refunds {
		totals[id] = totals[id].Sub(amount)
	}
	if err := s.ledger.RebuildUsage(ctx, totals); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"since":    since.Format(time.RFC3339),
		"accounts": len(totals),
	}), "usage.recomputed")
	return &Recompute{Since: since, Totals: totals}, nil
}

// ResetUsage zeroes every account without writing backups or reset history.
func (s *Service) ResetUsage(ctx context.Context) (int, error) {
	snapshot, err := s.ledger.ResetAllUsage(ctx, nil)
	if err != nil {
		return 0, err
	}
	s.logg.Warn(s.logg.WithField(ctx, "accounts", len(snapshot)), "usage.reset_without_backup")
	return len(snapshot), nil
}

func newAssociation(orderID, paymentMethod string, account *models.MerchantAccount) *models.OrderAccountAssociation {
	return &models.OrderAccountAssociation{
		OrderID:       orderID,
		AccountID:     account.ID,
		MerchantID:    account.MerchantID,
		AccountName:   account.Name,
		CompanyName:   account.CompanyName,
		PaymentMethod: strings.ToLower(strings.TrimSpace(paymentMethod)),
	}
}

// acceptsPaymentMethod treats a missing method as a gateway order.
func acceptsPaymentMethod(method string) bool {
	return strings.TrimSpace(method) == "" || enums.IsGatewayPaymentMethod(method)
}

func wrapLedgerError(err error, action string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
