package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/payswitch-backend/api/responses"
	"github.com/angelmondragon/payswitch-backend/api/validators"
	"github.com/angelmondragon/payswitch-backend/internal/usage"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
	"github.com/angelmondragon/payswitch-backend/pkg/pagination"
)

type UsageService interface {
	UsageStats(ctx context.Context) (*usage.Stats, error)
	ResetUsage(ctx context.Context) (int, error)
	RecomputeUsage(ctx context.Context) (*usage.Recompute, error)
	ListAssociations(ctx context.Context, params pagination.Params) (*usage.AssociationPage, error)
}

// UsageReset zeroes every account's usage without backups or reset history.
func UsageReset(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}
		count, err := svc.ResetUsage(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"accounts_reset": count})
	}
}

func UsageRecompute(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}
		result, err := svc.RecomputeUsage(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func UsageAssociations(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListAssociations(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAssociationPage(page))
	}
}
