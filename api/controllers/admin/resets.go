package admin

import (
	"context"
	"net/http"

	"github.com/angelmondragon/payswitch-backend/api/responses"
	"github.com/angelmondragon/payswitch-backend/api/validators"
	"github.com/angelmondragon/payswitch-backend/internal/reset"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
)

type ResetService interface {
	ManualReset(ctx context.Context, operator string) (*reset.Run, error)
	ListHistory(ctx context.Context, limit int) ([]models.ResetHistoryEntry, error)
	ClearHistory(ctx context.Context) (int64, error)
	ListBackups(ctx context.Context) ([]reset.BackupRun, error)
	ClearBackups(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*reset.Stats, error)
}

// ResetManual runs the monthly reset sequence now. A baseline activation failure after
// the reset committed still reports the run alongside the error.
func ResetManual(svc ResetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reset service unavailable"))
			return
		}
		run, err := svc.ManualReset(r.Context(), operator(r))
		if err != nil {
			if run != nil {
				if typed := pkgerrors.As(err); typed != nil {
					err = typed.WithDetails(map[string]any{"run": newResetRunResponse(run)})
				}
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newResetRunResponse(run))
	}
}

func ResetHistory(svc ResetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reset service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, maxHistoryLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.ListHistory(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newResetHistory(items))
	}
}

func ResetClearHistory(svc ResetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reset service unavailable"))
			return
		}
		deleted, err := svc.ClearHistory(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"deleted": deleted})
	}
}

func ResetBackups(svc ResetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reset service unavailable"))
			return
		}
		runs, err := svc.ListBackups(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBackupRuns(runs))
	}
}

func ResetClearBackups(svc ResetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reset service unavailable"))
			return
		}
		deleted, err := svc.ClearBackups(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"deleted": deleted})
	}
}

func ResetStats(svc ResetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reset service unavailable"))
			return
		}
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
