package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderAccountAssociation pins an external order to the account that charged it,
// with a snapshot of the credentials in use at the time.
type OrderAccountAssociation struct {
	OrderID       string              `gorm:"column:order_id;primaryKey"`
	AccountID     uuid.UUID           `gorm:"column:account_id;type:uuid;not null"`
	MerchantID    string              `gorm:"column:merchant_id;not null"`
	AccountName   string              `gorm:"column:account_name;not null"`
	CompanyName   string              `gorm:"column:company_name;not null;default:''"`
	PaymentMethod string              `gorm:"column:payment_method;not null;default:''"`
	ChargedAmount decimal.NullDecimal `gorm:"column:charged_amount;type:numeric(15,2)"`
	CompletedAt   *time.Time          `gorm:"column:completed_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (OrderAccountAssociation) TableName() string { return "order_account_associations" }
