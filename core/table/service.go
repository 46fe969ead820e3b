// Package table is a generic CRUD over the allowlisted database tables, driven by schema introspection.
package table

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

const (
	optionsLimit = 100
	cachePrefix  = "table:schema:"
)

var (
	ErrTableNotFound  = core.NewNotFoundError("table")
	ErrRowNotFound    = core.NewNotFoundError("row")
	ErrColumnNotFound = core.NewNotFoundError("column")

	ErrReadOnly     = core.NewValidationError(errors.New("rows of this table can not be addressed individually"))
	ErrNotReference = core.NewValidationError(errors.New("this column does not reference another table"))
	ErrNoPKs        = core.NewValidationError(errors.New("no primary key provided"))
)

type (
	Repository interface {
		// IntrospectColumns returns the columns of table by ordinal position; none when the table does not exist.
		IntrospectColumns(ctx context.Context, table string, exec ...core.DBExecutor) ([]Column, error)
		IntrospectPrimaryKey(ctx context.Context, table string, exec ...core.DBExecutor) ([]string, error)
		IntrospectForeignKeys(ctx context.Context, table string, exec ...core.DBExecutor) ([]ForeignKey, error)

		QueryRows(ctx context.Context, s Schema, q RowQuery, exec ...core.DBExecutor) ([]Row, int, error)
		GetRow(ctx context.Context, s Schema, pk string, scope *Scope, exec ...core.DBExecutor) (Row, error)
		InsertRow(ctx context.Context, s Schema, row Row, exec ...core.DBExecutor) (Row, error)
		UpdateRow(ctx context.Context, s Schema, pk string, scope *Scope, row Row, exec ...core.DBExecutor) (Row, error)
		DeleteRows(ctx context.Context, s Schema, pks []string, scope *Scope, exec ...core.DBExecutor) (int, error)
		QueryOptions(ctx context.Context, s Schema, valueCol, labelCol string, scope *Scope, search string, limit uint64, exec ...core.DBExecutor) ([]Option, error)
	}

	Service interface {
		Tables() []string
		Schema(ctx context.Context, table string) (Schema, error)
		InvalidateSchema(ctx context.Context, table string) error
		List(ctx context.Context, orgID, table string, params ListParams) (ListResult, error)
		Get(ctx context.Context, orgID, table, pk string) (Row, error)
		Create(ctx context.Context, orgID, table string, row Row) (Row, error)
		Update(ctx context.Context, orgID, table, pk string, row Row) (Row, error)
		Delete(ctx context.Context, orgID, table string, pks ...string) (int, error)
		Options(ctx context.Context, orgID, table, column, search string) ([]Option, error)
		Export(ctx context.Context, orgID, table string, params ListParams, w io.Writer) error
	}

	service struct {
		repo     Repository
		cache    core.Cache
		cacheTTL time.Duration
		tables   []string
		allowed  map[string]bool
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, cache core.Cache, conf *core.Config, logger core.Logger) Service {
	svc := &service{
		repo:     repo,
		cache:    cache,
		cacheTTL: conf.Redis.SchemaCacheTTL,
		allowed:  make(map[string]bool),
		logger:   logger,
	}
	for _, t := range conf.Admin.Tables {
		t = strings.TrimSpace(t)
		if !NameRegex.MatchString(t) {
			logger.Warn(fmt.Sprintf("table: ignoring invalid admin table name %q", t))
			continue
		}
		if !svc.allowed[t] {
			svc.allowed[t] = true
			svc.tables = append(svc.tables, t)
		}
	}
	sort.Strings(svc.tables)
	return svc
}

func label(table string) string {
	words := strings.Split(strings.Trim(table, "_"), "_")
	if len(words) > 0 && words[0] != "" {
		words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	}
	return strings.Join(words, " ")
}

func (svc *service) Tables() []string {
	return append([]string(nil), svc.tables...)
}

// introspect builds the schema of table, cached for cacheTTL. Tables outside the allowlist
// may be introspected to resolve foreign keys.
func (svc *service) introspect(ctx context.Context, table string) (Schema, error) {
	if !NameRegex.MatchString(table) {
		return Schema{}, ErrTableNotFound
	}
	if b, err := svc.cache.Get(ctx, cachePrefix+table); err == nil {
		var s Schema
		if err := json.Unmarshal(b, &s); err == nil {
			return s, nil
		}
	} else if err != core.ErrCacheMiss {
		svc.logger.Warn(fmt.Sprintf("table: reading schema cache of %s: %v", table, err), err)
	}

	cols, err := svc.repo.IntrospectColumns(ctx, table)
	if err != nil {
		return Schema{}, errors.Wrap(err, "introspecting columns")
	}
	if len(cols) == 0 {
		return Schema{}, ErrTableNotFound
	}
	pk, err := svc.repo.IntrospectPrimaryKey(ctx, table)
	if err != nil {
		return Schema{}, errors.Wrap(err, "introspecting primary key")
	}
	fks, err := svc.repo.IntrospectForeignKeys(ctx, table)
	if err != nil {
		return Schema{}, errors.Wrap(err, "introspecting foreign keys")
	}

	byColumn := make(map[string]ForeignKey, len(fks))
	for _, fk := range fks {
		byColumn[fk.Column] = fk
	}
	for i := range cols {
		cols[i].AutoGenerated = IsAutoGenerated(cols[i])
		if fk, ok := byColumn[cols[i].Name]; ok {
			fk := fk
			cols[i].ForeignKey = &fk
		}
	}
	if pk == nil {
		pk = []string{}
	}
	s := Schema{Table: table, Label: label(table), PrimaryKey: pk, Columns: cols}

	if b, err := json.Marshal(s); err == nil {
		if err := svc.cache.Set(ctx, cachePrefix+table, b, svc.cacheTTL); err != nil {
			svc.logger.Warn(fmt.Sprintf("table: caching schema of %s: %v", table, err), err)
		}
	}
	return s, nil
}

func (svc *service) Schema(ctx context.Context, table string) (Schema, error) {
	if !svc.allowed[table] {
		return Schema{}, ErrTableNotFound
	}
	return svc.introspect(ctx, table)
}

func (svc *service) InvalidateSchema(ctx context.Context, table string) error {
	return svc.cache.Delete(ctx, cachePrefix+table)
}

func scopeOf(s Schema, orgID string) *Scope {
	if col, ok := s.ScopeColumn(); ok {
		return &Scope{Column: col, Value: orgID}
	}
	return nil
}

func (svc *service) rowQuery(s Schema, orgID string, params ListParams) (RowQuery, error) {
	params.Pagination.Clean()
	q := RowQuery{
		Scope:   scopeOf(s, orgID),
		Filters: make(map[string]string, len(params.Filters)),
		Search:  core.CleanString(params.Search),
		Limit:   params.Limit(),
		Offset:  params.Offset(),
	}
	for col, val := range params.Filters {
		if _, ok := s.Column(col); !ok {
			return RowQuery{}, core.NewValidationError(nil, core.FieldError{Field: col, Error: "unknown column"})
		}
		q.Filters[col] = val
	}
	if q.Search != "" {
		q.SearchColumns = s.TextColumns()
	}

	names := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		names = append(names, c.Name)
	}
	q.Ordering = core.CleanOrderings(params.Ordering, names...)
	if len(q.Ordering) == 0 {
		for _, pk := range s.PrimaryKey {
			q.Ordering = append(q.Ordering, core.DBOrdering{Field: pk, Ascending: true})
		}
	}
	return q, nil
}

func (svc *service) List(ctx context.Context, orgID, table string, params ListParams) (ListResult, error) {
	s, err := svc.Schema(ctx, table)
	if err != nil {
		return ListResult{}, err
	}
	q, err := svc.rowQuery(s, orgID, params)
	if err != nil {
		return ListResult{}, err
	}
	rows, total, err := svc.repo.QueryRows(ctx, s, q)
	if err != nil {
		return ListResult{}, errors.Wrap(err, "querying rows")
	}
	if rows == nil {
		rows = []Row{}
	}
	params.Pagination.Clean()
	return ListResult{Rows: rows, Total: total, Page: params.Page, PageSize: params.PageSize}, nil
}

// addressable returns the schema of table when its rows have a single column primary key.
func (svc *service) addressable(ctx context.Context, table string) (Schema, string, error) {
	s, err := svc.Schema(ctx, table)
	if err != nil {
		return Schema{}, "", err
	}
	pkCol, ok := s.SinglePK()
	if !ok {
		return Schema{}, "", ErrReadOnly
	}
	return s, pkCol, nil
}

func (svc *service) Get(ctx context.Context, orgID, table, pk string) (Row, error) {
	s, _, err := svc.addressable(ctx, table)
	if err != nil {
		return nil, err
	}
	return svc.repo.GetRow(ctx, s, pk, scopeOf(s, orgID))
}

// writable strips the auto-generated columns from row.
func writable(s Schema, row Row) Row {
	cleaned := make(Row, len(row))
	for k, v := range row {
		if c, ok := s.Column(k); ok && c.AutoGenerated {
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}

func (svc *service) Create(ctx context.Context, orgID, table string, row Row) (Row, error) {
	s, err := svc.Schema(ctx, table)
	if err != nil {
		return nil, err
	}
	row = writable(s, row)
	if sc := scopeOf(s, orgID); sc != nil && sc.Column == OrgColumn {
		row[OrgColumn] = orgID
	}
	if err := validateRow(s, row, true); err != nil {
		return nil, err
	}
	created, err := svc.repo.InsertRow(ctx, s, row)
	return created, errors.Wrap(err, "inserting row")
}

// Update applies a partial row. Primary key and organization columns may be sent unchanged only.
func (svc *service) Update(ctx context.Context, orgID, table, pk string, row Row) (Row, error) {
	s, pkCol, err := svc.addressable(ctx, table)
	if err != nil {
		return nil, err
	}
	scope := scopeOf(s, orgID)
	current, err := svc.repo.GetRow(ctx, s, pk, scope)
	if err != nil {
		return nil, err
	}

	row = writable(s, row)
	locked := append([]string{}, s.PrimaryKey...)
	if scope != nil {
		locked = append(locked, scope.Column)
	}
	for _, col := range locked {
		val, ok := row[col]
		if !ok {
			continue
		}
		if fmt.Sprint(val) != fmt.Sprint(current[col]) {
			return nil, core.NewValidationError(nil, core.FieldError{Field: col, Error: "can not be changed"})
		}
		delete(row, col)
	}
	if len(row) == 0 {
		return current, nil
	}
	if err := validateRow(s, row, false); err != nil {
		return nil, err
	}
	updated, err := svc.repo.UpdateRow(ctx, s, fmt.Sprint(current[pkCol]), scope, row)
	return updated, errors.Wrap(err, "updating row")
}

func (svc *service) Delete(ctx context.Context, orgID, table string, pks ...string) (int, error) {
	s, _, err := svc.addressable(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(pks) == 0 {
		return 0, ErrNoPKs
	}
	n, err := svc.repo.DeleteRows(ctx, s, pks, scopeOf(s, orgID))
	if err != nil {
		return 0, errors.Wrap(err, "deleting rows")
	}
	if n == 0 {
		return 0, ErrRowNotFound
	}
	return n, nil
}

// Options lists up to 100 {value, label} pairs of the rows referenced by column.
func (svc *service) Options(ctx context.Context, orgID, table, column, search string) ([]Option, error) {
	s, err := svc.Schema(ctx, table)
	if err != nil {
		return nil, err
	}
	c, ok := s.Column(column)
	if !ok {
		return nil, ErrColumnNotFound
	}
	if c.ForeignKey == nil {
		return nil, ErrNotReference
	}

	ref, err := svc.introspect(ctx, c.ForeignKey.RefTable)
	if err != nil {
		return nil, err
	}
	labelCol := ref.LabelColumn(c.ForeignKey.RefColumn)
	opts, err := svc.repo.QueryOptions(ctx, ref, c.ForeignKey.RefColumn, labelCol, scopeOf(ref, orgID), core.CleanString(search), optionsLimit)
	if err != nil {
		return nil, errors.Wrap(err, "querying options")
	}
	if opts == nil {
		opts = []Option{}
	}
	return opts, nil
}

func (svc *service) Export(ctx context.Context, orgID, table string, params ListParams, w io.Writer) error {
	s, err := svc.Schema(ctx, table)
	if err != nil {
		return err
	}
	q, err := svc.rowQuery(s, orgID, params)
	if err != nil {
		return err
	}
	xw, err := newXLSXWriter(s)
	if err != nil {
		return err
	}
	defer xw.close()

	// every matching row, read exportBatchSize at a time
	q.Limit, q.Offset = exportBatchSize, 0
	for {
		rows, total, err := svc.repo.QueryRows(ctx, s, q)
		if err != nil {
			return errors.Wrap(err, "querying rows")
		}
		if err := xw.write(rows); err != nil {
			return err
		}
		q.Offset += uint64(len(rows))
		if len(rows) < exportBatchSize || q.Offset >= uint64(total) {
			break
		}
	}
	return xw.flush(w)
}
