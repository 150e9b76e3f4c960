package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeStoreFaultReadsPostgresUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "merchant_accounts_merchant_id_key",
		TableName:      "merchant_accounts",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeConflict, fmt.Errorf("insert: %w", pgErr), "create merchant account")

	f := DescribeStoreFault(err)
	assert.Equal(t, CodeConflict, f.Code)
	assert.Equal(t, "pgx", f.Driver)
	assert.Equal(t, "23505", f.SQLState)
	assert.Equal(t, "merchant_accounts_merchant_id_key", f.Constraint)
	assert.Equal(t, "merchant_accounts", f.Table)
	require.Len(t, f.Chain, 3)

	fields := f.Fields()
	assert.Equal(t, "23505", fields["db_sql_state"])
	assert.Equal(t, "pgx", fields["db_driver"])
}

func TestDescribeStoreFaultParsesSQLiteConstraint(t *testing.T) {
	f := DescribeStoreFault(errors.New("UNIQUE constraint failed: merchant_accounts.is_active"))

	assert.Equal(t, "sqlite", f.Driver)
	assert.Equal(t, "unique", f.Constraint)
	assert.Equal(t, "merchant_accounts", f.Table)
	assert.Equal(t, "is_active", f.Column)
}

func TestDescribeStoreFaultLeavesPlainErrorsWithoutDriverFields(t *testing.T) {
	f := DescribeStoreFault(New(CodeNotFound, "merchant account not found"))

	assert.Equal(t, CodeNotFound, f.Code)
	assert.Empty(t, f.Driver)
	_, hasTable := f.Fields()["db_table"]
	assert.False(t, hasTable)

	assert.Equal(t, StoreFault{}, DescribeStoreFault(nil))
}
