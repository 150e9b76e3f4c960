package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RefundRecord struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   string          `gorm:"column:order_id;not null"`
	RefundID  *string         `gorm:"column:refund_id"`
	AccountID uuid.UUID       `gorm:"column:account_id;type:uuid;not null"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(15,2);not null"`
	Reason    string          `gorm:"column:reason;not null;default:''"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (RefundRecord) TableName() string { return "refund_records" }
