package reset

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	baserepo "github.com/angelmondragon/payswitch-backend/internal/repo"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
)

// Repository stores usage backups and the reset history log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertBackups(ctx context.Context, backups []models.UsageBackup) error
	TrimBackupRuns(ctx context.Context, keepRuns int) (int64, error)
	ListBackups(ctx context.Context) ([]models.UsageBackup, error)
	CountBackupRuns(ctx context.Context) (int64, error)
	ClearBackups(ctx context.Context) (int64, error)
	AppendHistory(ctx context.Context, entry *models.ResetHistoryEntry, keep int) error
	ListHistory(ctx context.Context, limit int) ([]models.ResetHistoryEntry, error)
	CountHistory(ctx context.Context) (int64, error)
	ClearHistory(ctx context.Context) (int64, error)
	LastReset(ctx context.Context, resetType enums.ResetType) (*time.Time, error)
}

type repository struct {
	base baserepo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{base: baserepo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.WithTx(tx)}
}

func (r *repository) InsertBackups(ctx context.Context, backups []models.UsageBackup) error {
	if len(backups) == 0 {
		return nil
	}
	for i := range backups {
		if backups[i].ID == uuid.Nil {
			backups[i].ID = uuid.New()
		}
	}
	return r.base.DB(ctx).Create(&backups).Error
}

// TrimBackupRuns keeps the newest keepRuns reset runs and deletes the rest. Every row
// of a run shares its backup_date.
func (r *repository) TrimBackupRuns(ctx context.Context, keepRuns int) (int64, error) {
	if keepRuns <= 0 {
		return 0, nil
	}
	var rows []models.UsageBackup
	if err := r.base.DB(ctx).
		Distinct("run_id", "backup_date").
		Order("backup_date DESC").
		Order("run_id DESC").
		Find(&rows).Error; err != nil {
		return 0, err
	}
	seen := make(map[uuid.UUID]struct{}, len(rows))
	var stale []uuid.UUID
	for _, row := range rows {
		if _, ok := seen[row.RunID]; ok {
			continue
		}
		seen[row.RunID] = struct{}{}
		if len(seen) > keepRuns {
			stale = append(stale, row.RunID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	res := r.base.DB(ctx).Where("run_id IN ?", stale).Delete(&models.UsageBackup{})
	return res.RowsAffected, res.Error
}

func (r *repository) ListBackups(ctx context.Context) ([]models.UsageBackup, error) {
	var backups []models.UsageBackup
	err := r.base.DB(ctx).
		Order("backup_date DESC").
		Order("run_id").
		Order("account_name").
		Find(&backups).Error
	return backups, err
}

func (r *repository) CountBackupRuns(ctx context.Context) (int64, error) {
	var n int64
	err := r.base.DB(ctx).Model(&models.UsageBackup{}).Distinct("run_id").Count(&n).Error
	return n, err
}

func (r *repository) ClearBackups(ctx context.Context) (int64, error) {
	res := r.base.DB(ctx).Where("1 = 1").Delete(&models.UsageBackup{})
	return res.RowsAffected, res.Error
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.ResetHistoryEntry, keep int) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := r.base.DB(ctx).Create(entry).Error; err != nil {
		return err
	}
	_, err := r.base.TrimNewest(ctx, baserepo.TrimSpec{
		Table:      models.ResetHistoryEntry{}.TableName(),
		TimeColumn: "created_at",
		IDColumn:   "id",
		Keep:       keep,
	})
	return err
}

func (r *repository) ListHistory(ctx context.Context, limit int) ([]models.ResetHistoryEntry, error) {
	var entries []models.ResetHistoryEntry
	err := r.base.DB(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *repository) CountHistory(ctx context.Context) (int64, error) {
	var n int64
	err := r.base.DB(ctx).Model(&models.ResetHistoryEntry{}).Count(&n).Error
	return n, err
}

func (r *repository) ClearHistory(ctx context.Context) (int64, error) {
	res := r.base.DB(ctx).Where("1 = 1").Delete(&models.ResetHistoryEntry{})
	return res.RowsAffected, res.Error
}

// LastReset returns when the newest reset of resetType ran, or nil if none is on record.
// An empty resetType matches any reset.
func (r *repository) LastReset(ctx context.Context, resetType enums.ResetType) (*time.Time, error) {
	query := r.base.DB(ctx).Model(&models.ResetHistoryEntry{})
	if resetType != "" {
		query = query.Where("type = ?", resetType)
	}
	var entry models.ResetHistoryEntry
	err := query.Order("created_at DESC").Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	at := entry.CreatedAt
	return &at, nil
}
