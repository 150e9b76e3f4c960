package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	path, err := createSQLMigrationAt(dir, "  Add Refund-Reason ", at)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260301123000_add_refund_reason.sql"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "-- +goose Up")
	require.Contains(t, string(data), "-- rollback add_refund_reason")

	_, err = createSQLMigrationAt(dir, "add refund reason", at)
	require.Error(t, err, "duplicate version must not overwrite")
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	_, err := CreateSQLMigration(t.TempDir(), "!!!")
	require.Error(t, err)
}

func TestValidateDirAcceptsRepositoryMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, ValidateDir(dir))

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_x.sql"), []byte("-- +goose Up\n"), 0o644))
	require.Error(t, ValidateDir(dir))

	require.Error(t, ValidateDir(t.TempDir()), "empty dir should fail")
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("20260105090400")
	require.NoError(t, err)
	require.Equal(t, int64(20260105090400), v)

	_, err = ParseVersion("42")
	require.Error(t, err)
}

func TestApplySQLiteSchemaIsIdempotent(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_schema?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ApplySQLiteSchema(ctx, conn))
	require.NoError(t, ApplySQLiteSchema(ctx, conn))

	for _, table := range []string{"merchant_accounts", "order_account_associations", "processed_orders", "refund_records", "switch_history", "reset_history", "usage_backups", "outbox_events", "outbox_dlq"} {
		require.True(t, conn.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestMerchantAccountMigrationEnforcesSingleActive(t *testing.T) {
	content := readMigration(t, "*_create_merchant_accounts.sql")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS merchant_accounts",
		"monthly_usage numeric(15,2) NOT NULL DEFAULT 0",
		"ON merchant_accounts (is_active) WHERE is_active",
		"ON merchant_accounts (is_default) WHERE is_default",
		"CHECK (monthly_limit >= 0)",
		"DROP TABLE IF EXISTS merchant_accounts",
	} {
		require.Contains(t, content, sub)
	}
}

func TestOrderTrackingMigrationKeysIdempotence(t *testing.T) {
	content := readMigration(t, "*_create_order_tracking.sql")
	for _, sub := range []string{
		"order_id text PRIMARY KEY",
		"CREATE TABLE IF NOT EXISTS processed_orders",
		"ON refund_records (refund_id) WHERE refund_id IS NOT NULL",
		"CHECK (amount > 0)",
	} {
		require.Contains(t, content, sub)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}
