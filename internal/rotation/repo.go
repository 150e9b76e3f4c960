package rotation

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	baserepo "github.com/angelmondragon/payswitch-backend/internal/repo"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
)

// HistoryRepository persists the capped switch history log.
type HistoryRepository interface {
	WithTx(tx *gorm.DB) HistoryRepository
	Append(ctx context.Context, entry *models.SwitchHistoryEntry, keep int) error
	ListRecent(ctx context.Context, limit int) ([]models.SwitchHistoryEntry, error)
	Clear(ctx context.Context) (int64, error)
}

type historyRepository struct {
	base baserepo.Base
}

func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{base: baserepo.NewBase(db)}
}

func (r *historyRepository) WithTx(tx *gorm.DB) HistoryRepository {
	if tx == nil {
		return r
	}
	return &historyRepository{base: r.base.WithTx(tx)}
}

// Append writes entry and drops the oldest rows beyond keep.
func (r *historyRepository) Append(ctx context.Context, entry *models.SwitchHistoryEntry, keep int) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := r.base.DB(ctx).Create(entry).Error; err != nil {
		return err
	}
	_, err := r.base.TrimNewest(ctx, baserepo.TrimSpec{
		Table:      models.SwitchHistoryEntry{}.TableName(),
		TimeColumn: "created_at",
		IDColumn:   "id",
		Keep:       keep,
	})
	return err
}

func (r *historyRepository) ListRecent(ctx context.Context, limit int) ([]models.SwitchHistoryEntry, error) {
	var entries []models.SwitchHistoryEntry
	err := r.base.DB(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *historyRepository) Clear(ctx context.Context) (int64, error) {
	res := r.base.DB(ctx).Where("1 = 1").Delete(&models.SwitchHistoryEntry{})
	return res.RowsAffected, res.Error
}
