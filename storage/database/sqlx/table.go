package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/strmangle"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/table"
)

// more postgres error codes, raised by the generic row writes
const (
	notNullViolation  = "23502"
	checkViolation    = "23514"
	invalidText       = "22P02"
	stringTooLong     = "22001"
	numericOutOfRange = "22003"
)

const (
	introspectColumnsSQL = `
SELECT column_name, data_type, is_nullable = 'YES' AS is_nullable, column_default,
       is_identity = 'YES' AS is_identity, is_generated = 'ALWAYS' AS is_generated, ordinal_position
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`

	introspectPrimaryKeySQL = `
SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = current_schema() AND tc.table_name = $1
ORDER BY kcu.ordinal_position`

	introspectForeignKeysSQL = `
SELECT kcu.column_name, ccu.table_name AS ref_table, ccu.column_name AS ref_column
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = current_schema() AND tc.table_name = $1
ORDER BY kcu.ordinal_position`
)

type tableRepository struct {
	base
}

var _ table.Repository = (*tableRepository)(nil) // interface compliance check

func NewTableRepository(exec core.DBExecutor) *tableRepository {
	return &tableRepository{base{exec: exec}}
}

func quote(ident string) string {
	return strmangle.IdentQuote('"', '"', ident)
}

func (repo tableRepository) IntrospectColumns(ctx context.Context, tbl string, exec ...core.DBExecutor) ([]table.Column, error) {
	cols := make([]table.Column, 0)
	if err := repo.getExec(exec).SelectContext(ctx, &cols, introspectColumnsSQL, tbl); err != nil {
		return nil, errors.Wrap(err, "querying columns")
	}
	return cols, nil
}

func (repo tableRepository) IntrospectPrimaryKey(ctx context.Context, tbl string, exec ...core.DBExecutor) ([]string, error) {
	pk := make([]string, 0, 1)
	if err := repo.getExec(exec).SelectContext(ctx, &pk, introspectPrimaryKeySQL, tbl); err != nil {
		return nil, errors.Wrap(err, "querying primary key")
	}
	return pk, nil
}

func (repo tableRepository) IntrospectForeignKeys(ctx context.Context, tbl string, exec ...core.DBExecutor) ([]table.ForeignKey, error) {
	fks := make([]table.ForeignKey, 0)
	if err := repo.getExec(exec).SelectContext(ctx, &fks, introspectForeignKeysSQL, tbl); err != nil {
		return nil, errors.Wrap(err, "querying foreign keys")
	}
	return fks, nil
}

func scoped(q sq.SelectBuilder, scope *table.Scope) sq.SelectBuilder {
	if scope != nil {
		q = q.Where(sq.Eq{quote(scope.Column): scope.Value})
	}
	return q
}

func rowFilter(q table.RowQuery) sq.And {
	where := sq.And{}
	if q.Scope != nil {
		where = append(where, sq.Eq{quote(q.Scope.Column): q.Scope.Value})
	}
	cols := make([]string, 0, len(q.Filters))
	for col := range q.Filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		where = append(where, sq.Expr(quote(col)+"::text = ?", q.Filters[col]))
	}
	if q.Search != "" && len(q.SearchColumns) > 0 {
		search := sq.Or{}
		for _, col := range q.SearchColumns {
			search = append(search, sq.ILike{quote(col): "%" + q.Search + "%"})
		}
		where = append(where, search)
	}
	return where
}

func (repo tableRepository) QueryRows(ctx context.Context, s table.Schema, q table.RowQuery, exec ...core.DBExecutor) ([]table.Row, int, error) {
	exe := repo.getExec(exec)
	where := rowFilter(q)

	var total int
	if err := get(ctx, exe, &total, psql.Select("COUNT(*)").From(quote(s.Table)).Where(where)); err != nil {
		return nil, 0, errors.Wrap(err, "counting rows")
	}

	sb := psql.Select("*").From(quote(s.Table)).Where(where)
	for _, ord := range q.Ordering {
		sb = sb.OrderBy(core.DBOrdering{Field: quote(ord.Field), Ascending: ord.Ascending}.String())
	}
	if q.Limit > 0 {
		sb = sb.Limit(q.Limit).Offset(q.Offset)
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, 0, errors.Wrap(err, "building query")
	}
	rows, err := exe.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying rows")
	}
	defer func() { _ = rows.Close() }()

	result := make([]table.Row, 0)
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, 0, errors.Wrap(err, "scanning row")
		}
		result = append(result, normalize(s, row))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "iterating rows")
	}
	return result, total, nil
}

func (repo tableRepository) GetRow(ctx context.Context, s table.Schema, pk string, scope *table.Scope, exec ...core.DBExecutor) (table.Row, error) {
	pkCol, ok := s.SinglePK()
	if !ok {
		return nil, table.ErrReadOnly
	}
	q := scoped(psql.Select("*").From(quote(s.Table)).Where(sq.Eq{quote(pkCol): pk}), scope)
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	return scanOne(s, repo.getExec(exec).QueryRowxContext(ctx, query, args...), true, "finding row")
}

func (repo tableRepository) InsertRow(ctx context.Context, s table.Schema, row table.Row, exec ...core.DBExecutor) (table.Row, error) {
	cols := sortedKeys(row)
	if len(cols) == 0 {
		query := "INSERT INTO " + quote(s.Table) + " DEFAULT VALUES RETURNING *"
		return scanOne(s, repo.getExec(exec).QueryRowxContext(ctx, query), false, "inserting row")
	}

	quoted := make([]string, 0, len(cols))
	vals := make([]interface{}, 0, len(cols))
	for _, col := range cols {
		quoted = append(quoted, quote(col))
		vals = append(vals, dbValue(s, col, row[col]))
	}
	query, args, err := psql.Insert(quote(s.Table)).Columns(quoted...).Values(vals...).Suffix("RETURNING *").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	return scanOne(s, repo.getExec(exec).QueryRowxContext(ctx, query, args...), false, "inserting row")
}

func (repo tableRepository) UpdateRow(ctx context.Context, s table.Schema, pk string, scope *table.Scope, row table.Row, exec ...core.DBExecutor) (table.Row, error) {
	pkCol, ok := s.SinglePK()
	if !ok {
		return nil, table.ErrReadOnly
	}
	q := psql.Update(quote(s.Table)).Where(sq.Eq{quote(pkCol): pk}).Suffix("RETURNING *")
	for _, col := range sortedKeys(row) {
		q = q.Set(quote(col), dbValue(s, col, row[col]))
	}
	if scope != nil {
		q = q.Where(sq.Eq{quote(scope.Column): scope.Value})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	return scanOne(s, repo.getExec(exec).QueryRowxContext(ctx, query, args...), false, "updating row")
}

func (repo tableRepository) DeleteRows(ctx context.Context, s table.Schema, pks []string, scope *table.Scope, exec ...core.DBExecutor) (int, error) {
	pkCol, ok := s.SinglePK()
	if !ok {
		return 0, table.ErrReadOnly
	}
	q := psql.Delete(quote(s.Table)).Where(sq.Eq{quote(pkCol): pks})
	if scope != nil {
		q = q.Where(sq.Eq{quote(scope.Column): scope.Value})
	}
	n, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		switch {
		case isPQError(err, invalidText):
			return 0, nil
		case isPQError(err, foreignKeyViolation):
			return 0, core.NewConflictError("these rows are referenced by other rows")
		}
		return 0, errors.Wrap(err, "deleting rows")
	}
	return int(n), nil
}

func (repo tableRepository) QueryOptions(ctx context.Context, s table.Schema, valueCol, labelCol string, scope *table.Scope, search string, limit uint64, exec ...core.DBExecutor) ([]table.Option, error) {
	labelExpr := quote(labelCol) + "::text"
	q := psql.Select(quote(valueCol)+" AS value", labelExpr+" AS label").
		From(quote(s.Table)).
		OrderBy(labelExpr).
		Limit(limit)
	q = scoped(q, scope)
	if search != "" {
		q = q.Where(sq.Expr(labelExpr+" ILIKE ?", "%"+search+"%"))
	}

	var rows []struct {
		Value interface{} `db:"value"`
		Label null.String `db:"label"`
	}
	if err := sel(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying options")
	}
	opts := make([]table.Option, 0, len(rows))
	for _, r := range rows {
		val := r.Value
		if b, ok := val.([]byte); ok {
			val = string(b)
		}
		opts = append(opts, table.Option{Value: val, Label: r.Label.String})
	}
	return opts, nil
}

// scanOne reads the single row of r. A malformed primary key finds nothing when lookup is set.
func scanOne(s table.Schema, r *sqlx.Row, lookup bool, msg string) (table.Row, error) {
	row := make(map[string]interface{})
	if err := r.MapScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) || (lookup && isPQError(err, invalidText)) {
			return nil, table.ErrRowNotFound
		}
		return nil, writeErr(err, msg)
	}
	return normalize(s, row), nil
}

// writeErr turns the constraint violations of a generic write into client errors.
func writeErr(err error, msg string) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return errors.Wrap(err, msg)
	}
	field := pqErr.Column
	if field == "" {
		field = "non_field_errors"
	}
	detail := pqErr.Detail
	if detail == "" {
		detail = pqErr.Message
	}
	switch string(pqErr.Code) {
	case uniqueViolation:
		return core.NewConflictError(detail)
	case foreignKeyViolation, notNullViolation, checkViolation, invalidText, stringTooLong, numericOutOfRange:
		return core.NewValidationError(err, core.FieldError{Field: field, Error: detail})
	}
	return errors.Wrap(err, msg)
}

func sortedKeys(row table.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// dbValue converts a decoded JSON value to what lib/pq can bind for the column type.
func dbValue(s table.Schema, col string, v interface{}) interface{} {
	c, _ := s.Column(col)
	switch val := v.(type) {
	case json.Number:
		return val.String()
	case map[string]interface{}:
		b, _ := json.Marshal(val)
		return string(b)
	case []interface{}:
		if c.DataType == "ARRAY" {
			items := make([]string, 0, len(val))
			for _, item := range val {
				items = append(items, fmt.Sprint(item))
			}
			return pq.StringArray(items)
		}
		b, _ := json.Marshal(val)
		return string(b)
	}
	return v
}

// normalize decodes the raw []byte values lib/pq returns for text, uuid, numeric and json columns.
func normalize(s table.Schema, raw map[string]interface{}) table.Row {
	row := make(table.Row, len(raw))
	for k, v := range raw {
		b, ok := v.([]byte)
		if !ok {
			row[k] = v
			continue
		}
		c, _ := s.Column(k)
		switch c.DataType {
		case "bytea":
			row[k] = b
		case "json", "jsonb":
			row[k] = json.RawMessage(append([]byte(nil), b...))
		case "ARRAY":
			var arr pq.StringArray
			if err := arr.Scan(b); err == nil {
				row[k] = []string(arr)
			} else {
				row[k] = string(b)
			}
		default:
			row[k] = string(b)
		}
	}
	return row
}
