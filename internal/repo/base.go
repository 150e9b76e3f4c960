package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Base provides a shared foundation for domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// WithTx returns a Base bound to tx, or b itself when tx is nil.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// TrimSpec describes a capped append-only table: rows are ranked newest first by
// TimeColumn then IDColumn, and everything past Keep is deleted.
type TrimSpec struct {
	Table      string
	TimeColumn string
	IDColumn   string
	Keep       int
}

type trimCutoff struct {
	At time.Time
	ID string
}

// TrimNewest enforces the retention cap described by trim and reports deleted rows.
func (b Base) TrimNewest(ctx context.Context, trim TrimSpec) (int64, error) {
	if trim.Table == "" || trim.TimeColumn == "" || trim.IDColumn == "" {
		return 0, errors.New("trim target incomplete")
	}
	if trim.Keep <= 0 {
		return 0, nil
	}

	var cutoff trimCutoff
	res := b.DB(ctx).
		Table(trim.Table).
		Select(trim.TimeColumn+" AS at, "+trim.IDColumn+" AS id").
		Order(trim.TimeColumn + " DESC").
		Order(trim.IDColumn + " DESC").
		Offset(trim.Keep).
		Limit(1).
		Scan(&cutoff)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, nil
	}

	del := b.DB(ctx).Exec(
		"DELETE FROM "+trim.Table+" WHERE "+trim.TimeColumn+" < ? OR ("+trim.TimeColumn+" = ? AND "+trim.IDColumn+" <= ?)",
		cutoff.At, cutoff.At, cutoff.ID,
	)
	return del.RowsAffected, del.Error
}
