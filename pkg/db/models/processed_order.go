package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProcessedOrder marks an order whose completion has already been counted.
type ProcessedOrder struct {
	OrderID     string          `gorm:"column:order_id;primaryKey"`
	AccountID   uuid.UUID       `gorm:"column:account_id;type:uuid;not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(15,2);not null"`
	ProcessedAt time.Time       `gorm:"column:processed_at;not null"`
}

func (ProcessedOrder) TableName() string { return "processed_orders" }
