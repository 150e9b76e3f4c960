package admin

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payswitch-backend/internal/reset"
	"github.com/angelmondragon/payswitch-backend/internal/rotation"
	"github.com/angelmondragon/payswitch-backend/internal/usage"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
	"github.com/angelmondragon/payswitch-backend/pkg/security"
)

// accountResponse never carries sealed secrets.
type accountResponse struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	MerchantID   string          `json:"merchant_id"`
	MonthlyLimit decimal.Decimal `json:"monthly_limit"`
	MonthlyUsage decimal.Decimal `json:"monthly_usage"`
	Remaining    decimal.Decimal `json:"remaining"`
	IsActive     bool            `json:"is_active"`
	IsDefault    bool            `json:"is_default"`
	CompanyName  string          `json:"company_name,omitempty"`
	TaxID        string          `json:"tax_id,omitempty"`
	Address      string          `json:"address,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func newAccountResponse(a *models.MerchantAccount) *accountResponse {
	if a == nil {
		return nil
	}
	return &accountResponse{
		ID:           a.ID,
		Name:         a.Name,
		MerchantID:   a.MerchantID,
		MonthlyLimit: a.MonthlyLimit,
		MonthlyUsage: a.MonthlyUsage,
		Remaining:    a.Remaining(),
		IsActive:     a.IsActive,
		IsDefault:    a.IsDefault,
		CompanyName:  a.CompanyName,
		TaxID:        a.TaxID,
		Address:      a.Address,
		Phone:        a.Phone,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func newAccountList(items []models.MerchantAccount) []accountResponse {
	out := make([]accountResponse, 0, len(items))
	for i := range items {
		out = append(out, *newAccountResponse(&items[i]))
	}
	return out
}

// switchAccount is the reduced view used in switch and allocation payloads.
type switchAccount struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	MaskedMerchantID string          `json:"masked_merchant_id"`
	MonthlyUsage     decimal.Decimal `json:"monthly_usage"`
	MonthlyLimit     decimal.Decimal `json:"monthly_limit"`
	IsDefault        bool            `json:"is_default"`
}

func newSwitchAccount(a *models.MerchantAccount) *switchAccount {
	if a == nil {
		return nil
	}
	return &switchAccount{
		ID:               a.ID,
		Name:             a.Name,
		MaskedMerchantID: security.MaskMerchantID(a.MerchantID),
		MonthlyUsage:     a.MonthlyUsage,
		MonthlyLimit:     a.MonthlyLimit,
		IsDefault:        a.IsDefault,
	}
}

type switchResponse struct {
	Switched bool               `json:"switched"`
	Skipped  string             `json:"skipped,omitempty"`
	Reason   enums.SwitchReason `json:"reason,omitempty"`
	Account  *switchAccount     `json:"account,omitempty"`
	Previous *switchAccount     `json:"previous,omitempty"`
}

func newSwitchResponse(res *rotation.SwitchResult) *switchResponse {
	if res == nil {
		return nil
	}
	return &switchResponse{
		Switched: res.Switched,
		Skipped:  res.Skipped,
		Reason:   res.Reason,
		Account:  newSwitchAccount(res.Account),
		Previous: newSwitchAccount(res.Previous),
	}
}

type switchHistoryResponse struct {
	ID                uuid.UUID          `json:"id"`
	AccountID         uuid.UUID          `json:"account_id"`
	PreviousAccountID *uuid.UUID         `json:"previous_account_id,omitempty"`
	AccountName       string             `json:"account_name"`
	MaskedMerchantID  string             `json:"masked_merchant_id"`
	Reason            enums.SwitchReason `json:"reason"`
	IsDefault         bool               `json:"is_default"`
	Usage             decimal.Decimal    `json:"usage"`
	Limit             decimal.Decimal    `json:"limit"`
	Actor             enums.Actor        `json:"actor"`
	Timestamp         time.Time          `json:"timestamp"`
}

func newSwitchHistory(items []models.SwitchHistoryEntry) []switchHistoryResponse {
	out := make([]switchHistoryResponse, 0, len(items))
	for _, e := range items {
		out = append(out, switchHistoryResponse{
			ID:                e.ID,
			AccountID:         e.AccountID,
			PreviousAccountID: e.PreviousAccountID,
			AccountName:       e.AccountName,
			MaskedMerchantID:  e.MaskedMerchantID,
			Reason:            e.Reason,
			IsDefault:         e.IsDefault,
			Usage:             e.UsageSnapshot,
			Limit:             e.LimitSnapshot,
			Actor:             e.Actor,
			Timestamp:         e.CreatedAt,
		})
	}
	return out
}

type resetRunResponse struct {
	RunID         uuid.UUID       `json:"run_id"`
	Type          enums.ResetType `json:"type"`
	AccountsCount int             `json:"accounts_count"`
	ResetAt       time.Time       `json:"reset_at"`
	Baseline      *switchResponse `json:"baseline,omitempty"`
}

func newResetRunResponse(run *reset.Run) *resetRunResponse {
	if run == nil {
		return nil
	}
	return &resetRunResponse{
		RunID:         run.RunID,
		Type:          run.Type,
		AccountsCount: run.AccountsCount,
		ResetAt:       run.ResetAt,
		Baseline:      newSwitchResponse(run.Baseline),
	}
}

type resetHistoryResponse struct {
	ID            uuid.UUID       `json:"id"`
	RunID         uuid.UUID       `json:"run_id"`
	Type          enums.ResetType `json:"type"`
	Description   string          `json:"description"`
	AccountsCount int             `json:"accounts_count"`
	Timestamp     time.Time       `json:"timestamp"`
}

func newResetHistory(items []models.ResetHistoryEntry) []resetHistoryResponse {
	out := make([]resetHistoryResponse, 0, len(items))
	for _, e := range items {
		out = append(out, resetHistoryResponse{
			ID:            e.ID,
			RunID:         e.RunID,
			Type:          e.Type,
			Description:   e.Description,
			AccountsCount: e.AccountsCount,
			Timestamp:     e.CreatedAt,
		})
	}
	return out
}

type backupAccountResponse struct {
	AccountID   uuid.UUID       `json:"account_id"`
	AccountName string          `json:"account_name"`
	Usage       decimal.Decimal `json:"usage"`
	Limit       decimal.Decimal `json:"limit"`
}

type backupRunResponse struct {
	RunID      uuid.UUID               `json:"run_id"`
	BackupDate time.Time               `json:"backup_date"`
	Accounts   []backupAccountResponse `json:"accounts"`
}

func newBackupRuns(runs []reset.BackupRun) []backupRunResponse {
	out := make([]backupRunResponse, 0, len(runs))
	for _, run := range runs {
		accounts := make([]backupAccountResponse, 0, len(run.Accounts))
		for _, b := range run.Accounts {
			accounts = append(accounts, backupAccountResponse{
				AccountID:   b.AccountID,
				AccountName: b.AccountName,
				Usage:       b.Usage,
				Limit:       b.Limit,
			})
		}
		out = append(out, backupRunResponse{RunID: run.RunID, BackupDate: run.BackupDate, Accounts: accounts})
	}
	return out
}

type associationResponse struct {
	OrderID          string           `json:"order_id"`
	AccountID        uuid.UUID        `json:"account_id"`
	AccountName      string           `json:"account_name"`
	MaskedMerchantID string           `json:"masked_merchant_id"`
	CompanyName      string           `json:"company_name,omitempty"`
	PaymentMethod    string           `json:"payment_method"`
	ChargedAmount    *decimal.Decimal `json:"charged_amount,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

type associationPageResponse struct {
	Items      []associationResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

func newAssociationPage(page *usage.AssociationPage) associationPageResponse {
	resp := associationPageResponse{Items: []associationResponse{}}
	if page == nil {
		return resp
	}
	resp.NextCursor = page.NextCursor
	for _, a := range page.Items {
		item := associationResponse{
			OrderID:          a.OrderID,
			AccountID:        a.AccountID,
			AccountName:      a.AccountName,
			MaskedMerchantID: security.MaskMerchantID(a.MerchantID),
			CompanyName:      a.CompanyName,
			PaymentMethod:    a.PaymentMethod,
			CompletedAt:      a.CompletedAt,
			CreatedAt:        a.CreatedAt,
		}
		if a.ChargedAmount.Valid {
			charged := a.ChargedAmount.Decimal
			item.ChargedAmount = &charged
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}
