package admin

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payswitch-backend/api/responses"
	"github.com/angelmondragon/payswitch-backend/api/validators"
	"github.com/angelmondragon/payswitch-backend/internal/accounts"
	"github.com/angelmondragon/payswitch-backend/internal/usage"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
)

type createAccountRequest struct {
	Name         string           `json:"name" validate:"required,max=100"`
	MerchantID   string           `json:"merchant_id" validate:"required,max=64"`
	SecretKey    string           `json:"secret_key" validate:"required"`
	SecretIV     string           `json:"secret_iv" validate:"required"`
	MonthlyLimit *decimal.Decimal `json:"monthly_limit" validate:"required"`
	IsActive     bool             `json:"is_active"`
	IsDefault    bool             `json:"is_default"`
	CompanyName  string           `json:"company_name" validate:"max=200"`
	TaxID        string           `json:"tax_id" validate:"max=32"`
	Address      string           `json:"address" validate:"max=300"`
	Phone        string           `json:"phone" validate:"max=32"`
}

type updateAccountRequest struct {
	Name         *string          `json:"name" validate:"omitempty,max=100"`
	MerchantID   *string          `json:"merchant_id" validate:"omitempty,max=64"`
	SecretKey    *string          `json:"secret_key"`
	SecretIV     *string          `json:"secret_iv"`
	MonthlyLimit *decimal.Decimal `json:"monthly_limit"`
	IsActive     *bool            `json:"is_active"`
	IsDefault    *bool            `json:"is_default"`
	CompanyName  *string          `json:"company_name" validate:"omitempty,max=200"`
	TaxID        *string          `json:"tax_id" validate:"omitempty,max=32"`
	Address      *string          `json:"address" validate:"omitempty,max=300"`
	Phone        *string          `json:"phone" validate:"omitempty,max=32"`
}

type usageStatsService interface {
	UsageStats(ctx context.Context) (*usage.Stats, error)
}

func AccountList(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}
		items, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAccountList(items))
	}
}

func AccountCreate(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		var payload createAccountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Add(r.Context(), accounts.AddInput{
			Name:         validators.SanitizeAccountField(validators.FieldAccountName, payload.Name),
			MerchantID:   validators.SanitizeAccountField(validators.FieldMerchantID, payload.MerchantID),
			SecretKey:    payload.SecretKey,
			SecretIV:     payload.SecretIV,
			MonthlyLimit: *payload.MonthlyLimit,
			IsActive:     payload.IsActive,
			IsDefault:    payload.IsDefault,
			CompanyName:  validators.SanitizeAccountField(validators.FieldCompanyName, payload.CompanyName),
			TaxID:        validators.SanitizeAccountField(validators.FieldTaxID, payload.TaxID),
			Address:      validators.SanitizeAccountField(validators.FieldAddress, payload.Address),
			Phone:        validators.SanitizeAccountField(validators.FieldPhone, payload.Phone),
			Operator:     operator(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newAccountResponse(created))
	}
}

func AccountGet(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}
		id, err := accountIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		account, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAccountResponse(account))
	}
}

func AccountUpdate(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}
		id, err := accountIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateAccountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.Update(r.Context(), id, accounts.UpdateInput{
			Name:         validators.SanitizeAccountFieldPtr(validators.FieldAccountName, payload.Name),
			MerchantID:   validators.SanitizeAccountFieldPtr(validators.FieldMerchantID, payload.MerchantID),
			SecretKey:    payload.SecretKey,
			SecretIV:     payload.SecretIV,
			MonthlyLimit: payload.MonthlyLimit,
			IsActive:     payload.IsActive,
			IsDefault:    payload.IsDefault,
			CompanyName:  validators.SanitizeAccountFieldPtr(validators.FieldCompanyName, payload.CompanyName),
			TaxID:        validators.SanitizeAccountFieldPtr(validators.FieldTaxID, payload.TaxID),
			Address:      validators.SanitizeAccountFieldPtr(validators.FieldAddress, payload.Address),
			Phone:        validators.SanitizeAccountFieldPtr(validators.FieldPhone, payload.Phone),
			Operator:     operator(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAccountResponse(updated))
	}
}

func AccountDelete(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}
		id, err := accountIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "deleted": true})
	}
}

func AccountActive(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}
		active, err := svc.GetActive(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if active == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no active merchant account"))
			return
		}
		responses.WriteSuccess(w, newAccountResponse(active))
	}
}

func AccountActiveCompany(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}
		info, err := svc.ActiveCompanyInfo(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}

func AccountUsageStats(svc usageStatsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}
		stats, err := svc.UsageStats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
