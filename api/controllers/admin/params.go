// Package admin exposes the merchant account ledger, rotation, usage and reset
// operations to operators.
package admin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payswitch-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
)

const defaultOperator = "admin"

func accountIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "accountId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid account id").WithDetails(map[string]any{"field": "accountId"})
	}
	return id, nil
}

func amountQuery(r *http.Request, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "query parameter required").WithDetails(map[string]any{"field": key})
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be a decimal").WithDetails(map[string]any{"field": key})
	}
	return amount, nil
}

func operator(r *http.Request) string {
	if subject := middleware.SubjectFromContext(r.Context()); subject != "" {
		return subject
	}
	return defaultOperator
}
