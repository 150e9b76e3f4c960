package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payswitch-backend/pkg/enums"
)

// AccountSwitchedEvent is emitted whenever the active merchant account changes.
type AccountSwitchedEvent struct {
	AccountID         uuid.UUID          `json:"account_id"`
	AccountName       string             `json:"account_name"`
	MaskedMerchantID  string             `json:"masked_merchant_id"`
	PreviousAccountID *uuid.UUID         `json:"previous_account_id,omitempty"`
	PreviousName      string             `json:"previous_account_name,omitempty"`
	Reason            enums.SwitchReason `json:"reason"`
	IsDefault         bool               `json:"is_default"`
	Usage             decimal.Decimal    `json:"usage"`
	Limit             decimal.Decimal    `json:"limit"`
	SwitchedAt        time.Time          `json:"switched_at"`
}

// AccountUsageSnapshot captures one account's counters inside a reset notification.
type AccountUsageSnapshot struct {
	AccountID   uuid.UUID       `json:"account_id"`
	AccountName string          `json:"account_name"`
	Usage       decimal.Decimal `json:"usage"`
	Limit       decimal.Decimal `json:"limit"`
}

// MonthlyResetEvent summarises a completed reset run.
type MonthlyResetEvent struct {
	RunID           uuid.UUID              `json:"run_id"`
	Type            enums.ResetType        `json:"type"`
	Accounts        []AccountUsageSnapshot `json:"accounts"`
	ActiveAccountID *uuid.UUID             `json:"active_account_id,omitempty"`
	ResetAt         time.Time              `json:"reset_at"`
}

// AllocationFailedEvent is the loud signal that the store cannot take payments.
type AllocationFailedEvent struct {
	AccountID       *uuid.UUID         `json:"account_id,omitempty"`
	Reason          enums.SwitchReason `json:"reason"`
	RequestedAmount *decimal.Decimal   `json:"requested_amount,omitempty"`
	AccountsCount   int                `json:"accounts_count"`
	Message         string             `json:"message"`
	FailedAt        time.Time          `json:"failed_at"`
}

// GatewaySyncFailedEvent reports that the ledger and gateway settings disagree.
type GatewaySyncFailedEvent struct {
	AccountID        uuid.UUID `json:"account_id"`
	MaskedMerchantID string    `json:"masked_merchant_id"`
	Error            string    `json:"error"`
	FailedAt         time.Time `json:"failed_at"`
}
