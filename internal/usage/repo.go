package usage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	baserepo "github.com/angelmondragon/payswitch-backend/internal/repo"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/pagination"
)

// Repository persists order associations, the processed-order set and refund records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAssociation(ctx context.Context, assoc *models.OrderAccountAssociation) (bool, error)
	FindAssociation(ctx context.Context, orderID string) (*models.OrderAccountAssociation, error)
	MarkAssociationCompleted(ctx context.Context, orderID string, amount decimal.Decimal, at time.Time) error
	ListAssociations(ctx context.Context, params pagination.Params) ([]models.OrderAccountAssociation, string, error)
	InsertProcessed(ctx context.Context, order *models.ProcessedOrder) (bool, error)
	IsProcessed(ctx context.Context, orderID string) (bool, error)
	CountProcessed(ctx context.Context, accountID uuid.UUID) (int64, error)
	TrimProcessed(ctx context.Context, keep int) (int64, error)
	InsertRefund(ctx context.Context, record *models.RefundRecord) (bool, error)
	ChargesSince(ctx context.Context, since time.Time) (map[uuid.UUID]decimal.Decimal, error)
	RefundsSince(ctx context.Context, since time.Time) (map[uuid.UUID]decimal.Decimal, error)
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

// CreateAssociation inserts assoc unless the order already has one. The boolean reports
// whether a row was written.
func (r *repository) CreateAssociation(ctx context.Context, assoc *models.OrderAccountAssociation) (bool, error) {
	res := r.base.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(assoc)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) FindAssociation(ctx context.Context, orderID string) (*models.OrderAccountAssociation, error) {
	var assoc models.OrderAccountAssociation
	err := r.base.DB(ctx).Where("order_id = ?", orderID).Take(&assoc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &assoc, nil
}

func (r *repository) MarkAssociationCompleted(ctx context.Context, orderID string, amount decimal.Decimal, at time.Time) error {
	return r.base.DB(ctx).
		Model(&models.OrderAccountAssociation{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{
			"charged_amount": amount,
			"completed_at":   at.UTC(),
		}).Error
}

// ListAssociations pages newest first. The cursor carries created_at and order id.
func (r *repository) ListAssociations(ctx context.Context, params pagination.Params) ([]models.OrderAccountAssociation, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.base.DB(ctx).Model(&models.OrderAccountAssociation{})
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND order_id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.Key)
	}

	var rows []models.OrderAccountAssociation
	if err := query.
		Order("created_at DESC").
		Order("order_id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		last := rows[limit-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, Key: last.OrderID})
		rows = rows[:limit]
	}
	return rows, next, nil
}

// InsertProcessed adds the order to the processed set. false means it was already there.
func (r *repository) InsertProcessed(ctx context.Context, order *models.ProcessedOrder) (bool, error) {
	res := r.base.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(order)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) IsProcessed(ctx context.Context, orderID string) (bool, error) {
	var n int64
	err := r.base.DB(ctx).Model(&models.ProcessedOrder{}).Where("order_id = ?", orderID).Count(&n).Error
	return n > 0, err
}

func (r *repository) CountProcessed(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var n int64
	err := r.base.DB(ctx).Model(&models.ProcessedOrder{}).Where("account_id = ?", accountID).Count(&n).Error
	return n, err
}

func (r *repository) TrimProcessed(ctx context.Context, keep int) (int64, error) {
	return r.base.TrimNewest(ctx, baserepo.TrimSpec{
		Table:      models.ProcessedOrder{}.TableName(),
		TimeColumn: "processed_at",
		IDColumn:   "order_id",
		Keep:       keep,
	})
}

// InsertRefund records a refund. false means the refund id was already recorded.
func (r *repository) InsertRefund(ctx context.Context, record *models.RefundRecord) (bool, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	res := r.base.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	return res.RowsAffected > 0, res.Error
}

type accountAmount struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
}

func (r *repository) ChargesSince(ctx context.Context, since time.Time) (map[uuid.UUID]decimal.Decimal, error) {
	var rows []accountAmount
	err := r.base.DB(ctx).
		Model(&models.OrderAccountAssociation{}).
		Select("account_id, charged_amount AS amount").
		Where("charged_amount IS NOT NULL AND completed_at >= ?", since.UTC()).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return sumByAccount(rows), nil
}

func (r *repository) RefundsSince(ctx context.Context, since time.Time) (map[uuid.UUID]decimal.Decimal, error) {
	var rows []accountAmount
	err := r.base.DB(ctx).
		Model(&models.RefundRecord{}).
		Select("account_id, amount").
		Where("created_at >= ?", since.UTC()).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return sumByAccount(rows), nil
}

func sumByAccount(rows []accountAmount) map[uuid.UUID]decimal.Decimal {
	totals := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.AccountID] = totals[row.AccountID].Add(row.Amount)
	}
	return totals
}
