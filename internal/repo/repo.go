package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"disruptline/internal/domain"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo is the ledger store: typed point lookups, filtered scans, inserts
// and field-level updates per record kind.
type Repo struct {
	DB *sql.DB
	tx *sql.Tx
}

var ErrNotFound = domain.ErrNotFound

// tsLayout is fixed width so lexical order in SQLite matches time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func (r Repo) conn() DBTX {
	if r.tx != nil {
		return r.tx
	}
	return r.DB
}

// InTx runs fn against a repo bound to one transaction. Nested calls reuse
// the outer transaction.
func (r Repo) InTx(ctx context.Context, fn func(Repo) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer tx.Rollback()
	if err := fn(Repo{DB: r.DB, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se domain.StorageError
	if errors.As(err, &se) {
		return err
	}
	return domain.StorageError{Op: op, Err: err}
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}

func parseNullTS(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTS(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTS(*t)
}

// marshalNullable stores nil and empty values as SQL NULL.
func marshalNullable(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if s := string(b); s == "null" || s == "{}" || s == "[]" {
		return nil, nil
	}
	return string(b), nil
}

func unmarshalNullable(s sql.NullString, out any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), out)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func inClause(column string, values []string) (string, []any) {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return fmt.Sprintf("%s IN (%s)", column, placeholders(len(values))), args
}
