package table

import (
	"regexp"

	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

// OrgColumn scopes the rows of a table to an organization.
const OrgColumn = "org_id"

var (
	NameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

	// AutoGeneratedDefault matches the column defaults filled in by the database itself.
	AutoGeneratedDefault = regexp.MustCompile(`(?i)^\s*(nextval\(|now\(\)|current_timestamp|current_date|gen_random_uuid\(\)|uuid_generate_v4\(\)|timezone\()`)

	// referenced row label candidates, by preference
	labelColumns = []string{"name", "title", "label", "email", "slug", "username"}
)

type (
	ForeignKey struct {
		Column    string `json:"column" db:"column_name"`
		RefTable  string `json:"ref_table" db:"ref_table"`
		RefColumn string `json:"ref_column" db:"ref_column"`
	}

	Column struct {
		Name          string      `json:"name" db:"column_name"`
		DataType      string      `json:"data_type" db:"data_type"`
		Nullable      bool        `json:"nullable" db:"is_nullable"`
		Default       null.String `json:"default" db:"column_default"`
		IsIdentity    bool        `json:"is_identity" db:"is_identity"`
		IsGenerated   bool        `json:"is_generated" db:"is_generated"`
		Position      int         `json:"position" db:"ordinal_position"`
		AutoGenerated bool        `json:"auto_generated" db:"-"`
		ForeignKey    *ForeignKey `json:"foreign_key,omitempty" db:"-"`
	}

	Schema struct {
		Table      string   `json:"table"`
		Label      string   `json:"label"`
		PrimaryKey []string `json:"primary_key"`
		Columns    []Column `json:"columns"`
	}

	Row map[string]interface{}

	// Scope restricts rows to those whose Column equals Value.
	Scope struct {
		Column string
		Value  string
	}

	ListParams struct {
		core.Pagination
		Search   string            `query:"search"`
		Filters  map[string]string `query:"-"`
		Ordering []core.DBOrdering `query:"-"`
	}

	ListResult struct {
		Rows     []Row `json:"results"`
		Total    int   `json:"total"`
		Page     int   `json:"page"`
		PageSize int   `json:"page_size"`
	}

	// RowQuery is a validated ListParams, ready for the repository.
	RowQuery struct {
		Scope         *Scope
		Filters       map[string]string
		Search        string
		SearchColumns []string
		Ordering      []core.DBOrdering
		Limit         uint64
		Offset        uint64
	}

	Option struct {
		Value interface{} `json:"value"`
		Label string      `json:"label"`
	}
)

// IsAutoGenerated reports whether the database fills c: identity and generated columns,
// or a default such as nextval(), now() or gen_random_uuid().
func IsAutoGenerated(c Column) bool {
	return c.IsIdentity || c.IsGenerated || (c.Default.Valid && AutoGeneratedDefault.MatchString(c.Default.String))
}

func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// SinglePK returns the primary key column of tables keyed by exactly one column.
func (s Schema) SinglePK() (string, bool) {
	if len(s.PrimaryKey) != 1 {
		return "", false
	}
	return s.PrimaryKey[0], true
}

// ScopeColumn is the column tying rows to an organization, if any.
func (s Schema) ScopeColumn() (string, bool) {
	if s.Table == "organizations" {
		return "id", true
	}
	if _, ok := s.Column(OrgColumn); ok {
		return OrgColumn, true
	}
	return "", false
}

// TextColumns are searchable with ILIKE.
func (s Schema) TextColumns() []string {
	var cols []string
	for _, c := range s.Columns {
		switch c.DataType {
		case "text", "character varying", "character", "citext":
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// LabelColumn picks the column naming the rows of s, defaulting to fallback.
func (s Schema) LabelColumn(fallback string) string {
	for _, name := range labelColumns {
		if _, ok := s.Column(name); ok {
			return name
		}
	}
	return fallback
}
