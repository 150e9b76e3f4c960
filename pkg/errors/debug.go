package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// StoreFault is the log-only view of a failed ledger write or read. It never
// reaches an HTTP body; responses carry only the public code and message.
type StoreFault struct {
	Message string `json:"message"`
	Code    Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	Driver     string `json:"driver,omitempty"`
	SQLState   string `json:"sql_state,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	DBMessage  string `json:"db_message,omitempty"`
}

// Fields flattens the fault into logger fields.
func (f StoreFault) Fields() map[string]any {
	fields := map[string]any{
		"error":       f.Message,
		"error_code":  f.Code,
		"error_chain": f.Chain,
	}
	if f.Driver == "" {
		return fields
	}
	fields["db_driver"] = f.Driver
	fields["db_sql_state"] = f.SQLState
	fields["db_constraint"] = f.Constraint
	fields["db_table"] = f.Table
	fields["db_column"] = f.Column
	fields["db_detail"] = f.Detail
	fields["db_message"] = f.DBMessage
	return fields
}

// DescribeStoreFault walks err and pulls out what the postgres drivers or
// sqlite reported, so a duplicate merchant id or a second active account can
// be told apart in the logs.
func DescribeStoreFault(err error) StoreFault {
	if err == nil {
		return StoreFault{}
	}

	f := StoreFault{Message: err.Error()}
	if te := As(err); te != nil {
		f.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		f.Chain = append(f.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		f.Driver = "pgx"
		f.SQLState = pgxErr.Code
		f.Constraint = pgxErr.ConstraintName
		f.Table = pgxErr.TableName
		f.Column = pgxErr.ColumnName
		f.Detail = pgxErr.Detail
		f.DBMessage = pgxErr.Message
		return f
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		f.Driver = "pq"
		f.SQLState = string(pqErr.Code)
		f.Constraint = pqErr.Constraint
		f.Table = pqErr.Table
		f.Column = pqErr.Column
		f.Detail = pqErr.Detail
		f.DBMessage = pqErr.Message
		return f
	}

	describeSQLiteConstraint(&f, err)
	return f
}

// sqlite reports constraint failures only as text, e.g.
// "UNIQUE constraint failed: merchant_accounts.merchant_id".
func describeSQLiteConstraint(f *StoreFault, err error) {
	msg := err.Error()
	idx := strings.Index(msg, " constraint failed: ")
	if idx < 0 {
		return
	}
	kind := msg[strings.LastIndex(msg[:idx], " ")+1 : idx]
	target := strings.TrimSpace(msg[idx+len(" constraint failed: "):])
	if comma := strings.Index(target, ","); comma >= 0 {
		target = target[:comma]
	}

	f.Driver = "sqlite"
	f.Constraint = strings.ToLower(kind)
	f.DBMessage = msg
	if table, column, ok := strings.Cut(target, "."); ok {
		f.Table = table
		f.Column = column
		return
	}
	f.Table = target
}
