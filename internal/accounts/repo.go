package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
)

// Repository manages persistence for merchant accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.MerchantAccount) error
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.MerchantAccount, error)
	FindByMerchantID(ctx context.Context, merchantID string) (*models.MerchantAccount, error)
	FindActive(ctx context.Context) (*models.MerchantAccount, error)
	FindDefault(ctx context.Context) (*models.MerchantAccount, error)
	List(ctx context.Context) ([]models.MerchantAccount, error)
	LockAll(ctx context.Context) ([]models.MerchantAccount, error)
	DeactivateAll(ctx context.Context) error
	UnsetDefaultAll(ctx context.Context) error
	SetActive(ctx context.Context, id uuid.UUID) error
	AddUsage(ctx context.Context, id uuid.UUID, delta decimal.Decimal, clampAtZero bool) error
	SetUsage(ctx context.Context, id uuid.UUID, usage decimal.Decimal) error
	ResetAllUsage(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an account repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, account *models.MerchantAccount) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.MerchantAccount{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.MerchantAccount{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MerchantAccount, error) {
	var account models.MerchantAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindByMerchantID(ctx context.Context, merchantID string) (*models.MerchantAccount, error) {
	var account models.MerchantAccount
	err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at ASC").
		Order("id ASC").
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindActive returns nil without error when no account is active.
func (r *repository) FindActive(ctx context.Context) (*models.MerchantAccount, error) {
	return r.findFlagged(ctx, "is_active")
}

// FindDefault returns nil without error when no default is configured.
func (r *repository) FindDefault(ctx context.Context) (*models.MerchantAccount, error) {
	return r.findFlagged(ctx, "is_default")
}

func (r *repository) findFlagged(ctx context.Context, column string) (*models.MerchantAccount, error) {
	var account models.MerchantAccount
	err := r.db.WithContext(ctx).Where(column+" = ?", true).Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// List orders accounts active first, then by creation time and id.
func (r *repository) List(ctx context.Context) ([]models.MerchantAccount, error) {
	var accounts []models.MerchantAccount
	err := r.db.WithContext(ctx).
		Order("is_active DESC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}

// LockAll reads every account in creation order. On Postgres the rows stay locked
// until the surrounding transaction ends.
func (r *repository) LockAll(ctx context.Context) ([]models.MerchantAccount, error) {
	var accounts []models.MerchantAccount
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Order("created_at ASC").
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}

func (r *repository) DeactivateAll(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Model(&models.MerchantAccount{}).
		Where("is_active = ?", true).
		Update("is_active", false).Error
}

func (r *repository) UnsetDefaultAll(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Model(&models.MerchantAccount{}).
		Where("is_default = ?", true).
		Update("is_default", false).Error
}

func (r *repository) SetActive(ctx context.Context, id uuid.UUID) error {
	return r.UpdateFields(ctx, id, map[string]any{"is_active": true})
}

// AddUsage adds delta to the stored usage in decimal arithmetic. The row is read under
// a lock so concurrent deltas queue behind each other; sqlite gets the same effect from
// its single writer. Run it inside a transaction.
func (r *repository) AddUsage(ctx context.Context, id uuid.UUID, delta decimal.Decimal, clampAtZero bool) error {
	var account models.MerchantAccount
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "monthly_usage").
		Where("id = ?", id).
		Take(&account).Error
	if err != nil {
		return err
	}
	usage := account.MonthlyUsage.Add(delta)
	if clampAtZero && usage.IsNegative() {
		usage = decimal.Zero
	}
	return r.SetUsage(ctx, id, usage)
}

// SetUsage stores usage rounded to cents, the precision of numeric(15,2).
func (r *repository) SetUsage(ctx context.Context, id uuid.UUID, usage decimal.Decimal) error {
	return r.UpdateFields(ctx, id, map[string]any{"monthly_usage": usage.Round(2)})
}

func (r *repository) ResetAllUsage(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.MerchantAccount{}).
		Where("1 = 1").
		Update("monthly_usage", decimal.Zero)
	return res.RowsAffected, res.Error
}
