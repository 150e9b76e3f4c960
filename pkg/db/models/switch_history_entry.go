package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payswitch-backend/pkg/enums"
)

// SwitchHistoryEntry is an append-only audit row written on every active account change.
type SwitchHistoryEntry struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID         uuid.UUID          `gorm:"column:account_id;type:uuid;not null"`
	PreviousAccountID *uuid.UUID         `gorm:"column:previous_account_id;type:uuid"`
	AccountName       string             `gorm:"column:account_name;not null"`
	MaskedMerchantID  string             `gorm:"column:masked_merchant_id;not null"`
	Reason            enums.SwitchReason `gorm:"column:reason;type:switch_reason_enum;not null"`
	IsDefault         bool               `gorm:"column:is_default;not null;default:false"`
	UsageSnapshot     decimal.Decimal    `gorm:"column:usage_snapshot;type:numeric(15,2);not null"`
	LimitSnapshot     decimal.Decimal    `gorm:"column:limit_snapshot;type:numeric(15,2);not null"`
	Actor             enums.Actor        `gorm:"column:actor;not null"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (SwitchHistoryEntry) TableName() string { return "switch_history" }
