package admin

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payswitch-backend/api/responses"
	"github.com/angelmondragon/payswitch-backend/api/validators"
	"github.com/angelmondragon/payswitch-backend/internal/allocator"
	"github.com/angelmondragon/payswitch-backend/internal/rotation"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
)

const maxHistoryLimit = 1000

type RotationService interface {
	AutoSwitch(ctx context.Context) (*rotation.SwitchResult, error)
	PrePaymentSwitch(ctx context.Context, amount decimal.Decimal) (*rotation.SwitchResult, error)
	ManualSwitch(ctx context.Context, id uuid.UUID, operator string) (*rotation.SwitchResult, error)
	ListSwitchHistory(ctx context.Context, limit int) ([]models.SwitchHistoryEntry, error)
	ClearSwitchHistory(ctx context.Context) (int64, error)
	Reconcile(ctx context.Context) (*rotation.ReconcileReport, error)
	Resync(ctx context.Context) (*rotation.ReconcileReport, error)
}

type AllocatorService interface {
	SelectAccount(ctx context.Context, amount decimal.Decimal) (*allocator.Selection, error)
	WouldExceedLimit(ctx context.Context, amount decimal.Decimal) (bool, error)
}

type manualSwitchRequest struct {
	AccountID uuid.UUID `json:"account_id" validate:"required"`
}

type prePaymentRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

type allocationResponse struct {
	Amount           decimal.Decimal   `json:"amount"`
	Outcome          allocator.Outcome `json:"outcome"`
	CanHandle        bool              `json:"can_handle"`
	WouldExceedLimit bool              `json:"would_exceed_limit"`
	Account          *switchAccount    `json:"account"`
}

func RotationManualSwitch(svc RotationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rotation service unavailable"))
			return
		}
		var payload manualSwitchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.ManualSwitch(r.Context(), payload.AccountID, operator(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSwitchResponse(res))
	}
}

func RotationAutoSwitch(svc RotationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rotation service unavailable"))
			return
		}
		res, err := svc.AutoSwitch(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSwitchResponse(res))
	}
}

// RotationPrePaymentCheck makes sure the active account can take the amount, switching
// first when it cannot.
func RotationPrePaymentCheck(svc RotationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rotation service unavailable"))
			return
		}
		var payload prePaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.PrePaymentSwitch(r.Context(), *payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSwitchResponse(res))
	}
}

func RotationHistory(svc RotationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rotation service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, maxHistoryLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.ListSwitchHistory(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSwitchHistory(items))
	}
}

func RotationClearHistory(svc RotationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rotation service unavailable"))
			return
		}
		deleted, err := svc.ClearSwitchHistory(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"deleted": deleted})
	}
}

func RotationReconcile(svc RotationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rotation service unavailable"))
			return
		}
		report, err := svc.Reconcile(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func RotationResync(svc RotationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rotation service unavailable"))
			return
		}
		report, err := svc.Resync(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// RotationAllocation previews which account the allocator would pick for an amount.
func RotationAllocation(svc AllocatorService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "allocator unavailable"))
			return
		}
		amount, err := amountQuery(r, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		selection, err := svc.SelectAccount(r.Context(), amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		exceeds, err := svc.WouldExceedLimit(r.Context(), amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, allocationResponse{
			Amount:           amount,
			Outcome:          selection.Outcome,
			CanHandle:        selection.CanHandle(),
			WouldExceedLimit: exceeds,
			Account:          newSwitchAccount(&selection.Account),
		})
	}
}
