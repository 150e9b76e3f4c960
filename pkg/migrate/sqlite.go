package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for the embedded sqlite driver. Postgres
// enum columns become TEXT and uuid defaults are assigned by the repositories.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS merchant_accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		merchant_id TEXT NOT NULL,
		secret_key_sealed TEXT NOT NULL,
		secret_iv_sealed TEXT NOT NULL,
		monthly_limit NUMERIC NOT NULL DEFAULT 0,
		monthly_usage NUMERIC NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 0,
		is_default BOOLEAN NOT NULL DEFAULT 0,
		company_name TEXT NOT NULL DEFAULT '',
		tax_id TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK (monthly_limit >= 0)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_merchant_accounts_single_active ON merchant_accounts (is_active) WHERE is_active`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_merchant_accounts_single_default ON merchant_accounts (is_default) WHERE is_default`,
	`CREATE TABLE IF NOT EXISTS order_account_associations (
		order_id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		merchant_id TEXT NOT NULL,
		account_name TEXT NOT NULL,
		company_name TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL DEFAULT '',
		charged_amount NUMERIC,
		completed_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS processed_orders (
		order_id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		processed_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refund_records (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		refund_id TEXT,
		account_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		CHECK (amount > 0)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_refund_records_refund_id ON refund_records (refund_id) WHERE refund_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS switch_history (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		previous_account_id TEXT,
		account_name TEXT NOT NULL,
		masked_merchant_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT 0,
		usage_snapshot NUMERIC NOT NULL,
		limit_snapshot NUMERIC NOT NULL,
		actor TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reset_history (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		accounts_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS usage_backups (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		account_name TEXT NOT NULL,
		usage NUMERIC NOT NULL,
		monthly_limit NUMERIC NOT NULL,
		backup_date DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		available_at DATETIME NOT NULL,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME NOT NULL
	)`,
}

// ApplySQLiteSchema creates every table on a sqlite connection. It is idempotent.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
