package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageBackup snapshots one account's counters right before a reset run zeroes them.
type UsageBackup struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RunID       uuid.UUID       `gorm:"column:run_id;type:uuid;not null"`
	AccountID   uuid.UUID       `gorm:"column:account_id;type:uuid;not null"`
	AccountName string          `gorm:"column:account_name;not null"`
	Usage       decimal.Decimal `gorm:"column:usage;type:numeric(15,2);not null"`
	Limit       decimal.Decimal `gorm:"column:monthly_limit;type:numeric(15,2);not null"`
	BackupDate  time.Time       `gorm:"column:backup_date;not null"`
}

func (UsageBackup) TableName() string { return "usage_backups" }
