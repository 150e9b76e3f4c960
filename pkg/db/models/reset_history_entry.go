package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payswitch-backend/pkg/enums"
)

type ResetHistoryEntry struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RunID         uuid.UUID       `gorm:"column:run_id;type:uuid;not null"`
	Type          enums.ResetType `gorm:"column:type;type:reset_type_enum;not null"`
	Description   string          `gorm:"column:description;not null"`
	AccountsCount int             `gorm:"column:accounts_count;not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (ResetHistoryEntry) TableName() string { return "reset_history" }
