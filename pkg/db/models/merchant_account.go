package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MerchantAccount is one gateway credential set together with its monthly volume ceiling.
// Secrets are stored sealed; only the gateway sync path opens them.
type MerchantAccount struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string          `gorm:"column:name;not null"`
	MerchantID      string          `gorm:"column:merchant_id;not null"`
	SecretKeySealed string          `gorm:"column:secret_key_sealed;not null"`
	SecretIVSealed  string          `gorm:"column:secret_iv_sealed;not null"`
	MonthlyLimit    decimal.Decimal `gorm:"column:monthly_limit;type:numeric(15,2);not null;default:0"`
	MonthlyUsage    decimal.Decimal `gorm:"column:monthly_usage;type:numeric(15,2);not null;default:0"`
	IsActive        bool            `gorm:"column:is_active;not null;default:false"`
	IsDefault       bool            `gorm:"column:is_default;not null;default:false"`
	CompanyName     string          `gorm:"column:company_name;not null;default:''"`
	TaxID           string          `gorm:"column:tax_id;not null;default:''"`
	Address         string          `gorm:"column:address;not null;default:''"`
	Phone           string          `gorm:"column:phone;not null;default:''"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (MerchantAccount) TableName() string { return "merchant_accounts" }

// Remaining returns the headroom left before the limit, never below zero.
func (a MerchantAccount) Remaining() decimal.Decimal {
	left := a.MonthlyLimit.Sub(a.MonthlyUsage)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}
