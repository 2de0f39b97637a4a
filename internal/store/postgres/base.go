// Package postgres implements store.Stores against PostgreSQL, generalizing
// pkg/storage/postgres/base_store.go's BaseStore/SelectBuilder/transaction
// pattern from a single-table oracle store to the full entity set of
// spec.md §3.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
)

type txKey struct{}

// ContextWithTx stashes an in-flight transaction on ctx so nested store
// calls reuse it instead of opening a second one.
func ContextWithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func TxFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok
}

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// BaseStore wraps a *sqlx.DB and resolves the right Querier (db or
// in-flight tx) from context on every call, the way base_store.go's
// Querier(ctx) does.
type BaseStore struct {
	DB *sqlx.DB
}

func NewBaseStore(db *sql.DB) *BaseStore {
	return &BaseStore{DB: sqlx.NewDb(db, "postgres")}
}

func (b *BaseStore) Querier(ctx context.Context) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return b.DB
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic, mirroring base_store.go's WithTx.
func (b *BaseStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}
	tx, beginErr := b.DB.BeginTxx(ctx, nil)
	if beginErr != nil {
		return apperrors.DatabaseError("begin_tx", beginErr)
	}
	txCtx := ContextWithTx(ctx, tx)
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(txCtx)
	return err
}

// SelectBuilder is a small fluent query builder for dynamic WHERE/ORDER/LIMIT
// clauses, grounded directly on base_store.go's SelectBuilder.
type SelectBuilder struct {
	table   string
	columns []string
	wheres  []string
	args    []any
	orderBy string
	limit   int
	offset  int
}

func Select(table string) *SelectBuilder {
	return &SelectBuilder{table: table, columns: []string{"*"}}
}

func (sb *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	sb.columns = cols
	return sb
}

func (sb *SelectBuilder) WhereEq(col string, val any) *SelectBuilder {
	sb.args = append(sb.args, val)
	sb.wheres = append(sb.wheres, fmt.Sprintf("%s = $%d", col, len(sb.args)))
	return sb
}

func (sb *SelectBuilder) WhereIn(col string, vals []any) *SelectBuilder {
	if len(vals) == 0 {
		sb.wheres = append(sb.wheres, "1 = 0")
		return sb
	}
	placeholders := make([]string, len(vals))
	for i, v := range vals {
		sb.args = append(sb.args, v)
		placeholders[i] = fmt.Sprintf("$%d", len(sb.args))
	}
	sb.wheres = append(sb.wheres, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ",")))
	return sb
}

func (sb *SelectBuilder) OrderBy(clause string) *SelectBuilder {
	sb.orderBy = clause
	return sb
}

func (sb *SelectBuilder) Limit(n int) *SelectBuilder {
	sb.limit = n
	return sb
}

func (sb *SelectBuilder) Offset(n int) *SelectBuilder {
	sb.offset = n
	return sb
}

func (sb *SelectBuilder) Build() (string, []any) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(sb.columns, ", "), sb.table)
	if len(sb.wheres) > 0 {
		query += " WHERE " + strings.Join(sb.wheres, " AND ")
	}
	if sb.orderBy != "" {
		query += " ORDER BY " + sb.orderBy
	}
	if sb.limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", sb.limit)
	}
	if sb.offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", sb.offset)
	}
	return query, sb.args
}

// NullString/NullFloat64/NullTime conversions, grounded on base_store.go's
// null-type helpers.

func PtrToNullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func NullStringToPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func PtrToNullFloat64(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func NullFloat64ToPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func wrapErr(operation string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return err
	}
	return apperrors.DatabaseError(operation, err)
}
