package services

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// TableSpec describes a table exposed through the table API.
type TableSpec struct {
	Name string
	// Columns maps each exposed column to its SQL type.
	Columns map[string]string
	Key     []string
	// OwnerColumn scopes every read and write to the caller. Empty means
	// the table is public and read-only.
	OwnerColumn string
}

var tableSpecs = map[string]TableSpec{
	"modules": {
		Name: "modules",
		Columns: map[string]string{
			"id": "text", "title": "text", "description": "text", "level": "text", "order": "integer",
		},
		Key: []string{"id"},
	},
	"lessons": {
		Name: "lessons",
		Columns: map[string]string{
			"id": "text", "module_id": "text", "title": "text", "order": "integer",
		},
		Key: []string{"id"},
	},
	"profiles": {
		Name: "profiles",
		Columns: map[string]string{
			"id": "text", "name": "text", "level": "text", "current_module": "text", "updated_at": "timestamptz",
		},
		Key:         []string{"id"},
		OwnerColumn: "id",
	},
	"lesson_progress": {
		Name: "lesson_progress",
		Columns: map[string]string{
			"user_id": "text", "lesson_id": "text", "score": "double precision", "completed": "boolean",
			"xp": "double precision", "watched": "boolean", "updated_at": "timestamptz", "answers": "jsonb",
		},
		Key:         []string{"user_id", "lesson_id"},
		OwnerColumn: "user_id",
	},
	"module_unlocks": {
		Name: "module_unlocks",
		Columns: map[string]string{
			"user_id": "text", "module_id": "text", "passed": "boolean", "status": "text", "score": "double precision",
			"correct_count": "integer", "total_count": "integer", "reason": "text", "unlocked_at": "timestamptz",
		},
		Key:         []string{"user_id", "module_id"},
		OwnerColumn: "user_id",
	},
}

func LookupTable(name string) (TableSpec, error) {
	spec, ok := tableSpecs[name]
	if !ok {
		return TableSpec{}, ErrNotFound("Unknown table")
	}
	return spec, nil
}

func (s TableSpec) Owned() bool { return s.OwnerColumn != "" }

func (s TableSpec) HasColumn(name string) bool {
	_, ok := s.Columns[name]
	return ok
}

// ColumnNames lists the columns in a stable order.
func (s TableSpec) ColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Filter struct {
	Column string
	Value  string
}

type Order struct {
	Column    string
	Ascending bool
}

type SelectQuery struct {
	Columns []string
	Filters []Filter
	Order   *Order
}

// ParseSelectQuery reads select=a,b&col=eq.v&order=col.asc.
func ParseSelectQuery(spec TableSpec, values url.Values) (SelectQuery, error) {
	var q SelectQuery
	for key, vals := range values {
		switch key {
		case "select":
			raw := strings.TrimSpace(vals[0])
			if raw == "" || raw == "*" {
				continue
			}
			for _, col := range strings.Split(raw, ",") {
				col = strings.TrimSpace(col)
				if !spec.HasColumn(col) {
					return SelectQuery{}, ErrBadRequest("Unknown column: " + col)
				}
				q.Columns = append(q.Columns, col)
			}
		case "order":
			col, dir, _ := strings.Cut(strings.TrimSpace(vals[0]), ".")
			if !spec.HasColumn(col) {
				return SelectQuery{}, ErrBadRequest("Unknown column: " + col)
			}
			q.Order = &Order{Column: col, Ascending: dir != "desc"}
		default:
			filters, err := parseFilters(spec, key, vals)
			if err != nil {
				return SelectQuery{}, err
			}
			q.Filters = append(q.Filters, filters...)
		}
	}
	sort.Slice(q.Filters, func(i, j int) bool { return q.Filters[i].Column < q.Filters[j].Column })
	return q, nil
}

// ParseFilters reads the col=eq.v pairs of a query string.
func ParseFilters(spec TableSpec, values url.Values) ([]Filter, error) {
	var filters []Filter
	for key, vals := range values {
		parsed, err := parseFilters(spec, key, vals)
		if err != nil {
			return nil, err
		}
		filters = append(filters, parsed...)
	}
	sort.Slice(filters, func(i, j int) bool { return filters[i].Column < filters[j].Column })
	return filters, nil
}

func parseFilters(spec TableSpec, column string, vals []string) ([]Filter, error) {
	if !spec.HasColumn(column) {
		return nil, ErrBadRequest("Unknown column: " + column)
	}
	filters := make([]Filter, 0, len(vals))
	for _, raw := range vals {
		value, ok := strings.CutPrefix(raw, "eq.")
		if !ok {
			return nil, ErrBadRequest("Only eq filters are supported")
		}
		filters = append(filters, Filter{Column: column, Value: value})
	}
	return filters, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}

// whereClause renders filters plus the owner condition. Comparisons are
// made on the text form so filter values need no typing.
func whereClause(spec TableSpec, filters []Filter, ownerID string, args []any) (string, []any) {
	var conds []string
	for _, f := range filters {
		args = append(args, f.Value)
		conds = append(conds, fmt.Sprintf("%s::text = $%d", quoteIdent(f.Column), len(args)))
	}
	if spec.Owned() {
		args = append(args, ownerID)
		conds = append(conds, fmt.Sprintf("%s = $%d", quoteIdent(spec.OwnerColumn), len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func BuildSelect(spec TableSpec, q SelectQuery, ownerID string) (string, []any) {
	columns := q.Columns
	if len(columns) == 0 {
		columns = spec.ColumnNames()
	}
	where, args := whereClause(spec, q.Filters, ownerID, nil)
	query := "SELECT " + quoteList(columns) + " FROM " + quoteIdent(spec.Name) + where
	if q.Order != nil {
		direction := "ASC"
		if !q.Order.Ascending {
			direction = "DESC"
		}
		query += " ORDER BY " + quoteIdent(q.Order.Column) + " " + direction
	}
	return query, args
}

const insertedFlag = "__inserted"

// BuildUpsert renders an insert-or-update by primary key. The owner column
// is always set to ownerID.
func BuildUpsert(spec TableSpec, row map[string]any, ownerID string) (string, []any, error) {
	if !spec.Owned() {
		return "", nil, ErrForbidden("Table is read-only")
	}
	values := make(map[string]any, len(row)+1)
	for col, value := range row {
		if !spec.HasColumn(col) {
			return "", nil, ErrBadRequest("Unknown column: " + col)
		}
		values[col] = value
	}
	values[spec.OwnerColumn] = ownerID
	for _, key := range spec.Key {
		if v, ok := values[key]; !ok || v == nil || v == "" {
			return "", nil, ErrBadRequest("Missing key column: " + key)
		}
	}

	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	args := make([]any, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	var updates []string
	for _, col := range columns {
		param, err := sqlParam(spec.Columns[col], values[col])
		if err != nil {
			return "", nil, ErrBadRequest(fmt.Sprintf("Invalid value for %s", col))
		}
		args = append(args, param)
		placeholders = append(placeholders, fmt.Sprintf("CAST($%d::text AS %s)", len(args), spec.Columns[col]))
		if !isKey(spec, col) {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(col), quoteIdent(col)))
		}
	}
	if len(updates) == 0 {
		key := quoteIdent(spec.Key[0])
		updates = append(updates, key+" = EXCLUDED."+key)
	}
	query := "INSERT INTO " + quoteIdent(spec.Name) + " (" + quoteList(columns) + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") ON CONFLICT (" + quoteList(spec.Key) + ") DO UPDATE SET " +
		strings.Join(updates, ", ") + " RETURNING " + quoteList(spec.ColumnNames()) +
		", (xmax = 0) AS " + insertedFlag
	return query, args, nil
}

func BuildDelete(spec TableSpec, filters []Filter, ownerID string) (string, []any, error) {
	if !spec.Owned() {
		return "", nil, ErrForbidden("Table is read-only")
	}
	if len(filters) == 0 {
		return "", nil, ErrBadRequest("At least one filter is required")
	}
	where, args := whereClause(spec, filters, ownerID, nil)
	return "DELETE FROM " + quoteIdent(spec.Name) + where + " RETURNING " + quoteList(spec.ColumnNames()), args, nil
}

func isKey(spec TableSpec, col string) bool {
	for _, key := range spec.Key {
		if key == col {
			return true
		}
	}
	return false
}

// sqlParam renders a decoded JSON value as the text the CAST in the query
// expects. Objects and arrays are only accepted for jsonb columns.
func sqlParam(sqlType string, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if sqlType == "jsonb" {
			raw, err := json.Marshal(v)
			return string(raw), err
		}
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case json.RawMessage:
		if sqlType != "jsonb" {
			return nil, fmt.Errorf("structured value for %s column", sqlType)
		}
		return string(v), nil
	default:
		if sqlType != "jsonb" {
			return nil, fmt.Errorf("structured value for %s column", sqlType)
		}
		raw, err := json.Marshal(v)
		return string(raw), err
	}
}

// Row is one result row keyed by column name.
type Row map[string]any

func SelectRows(db *sqlx.DB, spec TableSpec, q SelectQuery, ownerID string) ([]Row, error) {
	query, args := BuildSelect(spec, q, ownerID)
	return queryRows(db, spec, query, args...)
}

// UpsertRow stores row and reports whether it was newly inserted.
func UpsertRow(db *sqlx.DB, spec TableSpec, row map[string]any, ownerID string) (Row, bool, error) {
	query, args, err := BuildUpsert(spec, row, ownerID)
	if err != nil {
		return nil, false, err
	}
	rows, err := queryRows(db, spec, query, args...)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, fmt.Errorf("upsert %s returned no row", spec.Name)
	}
	stored := rows[0]
	inserted, _ := stored[insertedFlag].(bool)
	delete(stored, insertedFlag)
	return stored, inserted, nil
}

func DeleteRows(db *sqlx.DB, spec TableSpec, filters []Filter, ownerID string) ([]Row, error) {
	query, args, err := BuildDelete(spec, filters, ownerID)
	if err != nil {
		return nil, err
	}
	return queryRows(db, spec, query, args...)
}

func queryRows(db *sqlx.DB, spec TableSpec, query string, args ...any) ([]Row, error) {
	rows, err := db.Queryx(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Row{}
	for rows.Next() {
		raw := map[string]any{}
		if err := rows.MapScan(raw); err != nil {
			return nil, err
		}
		out = append(out, normalizeRow(spec, raw))
	}
	return out, rows.Err()
}

// normalizeRow turns driver byte slices into strings, or raw JSON for
// jsonb columns.
func normalizeRow(spec TableSpec, raw map[string]any) Row {
	row := make(Row, len(raw))
	for col, value := range raw {
		isJSON := spec.Columns[col] == "jsonb"
		switch v := value.(type) {
		case []byte:
			if isJSON {
				row[col] = json.RawMessage(append([]byte(nil), v...))
			} else {
				row[col] = string(v)
			}
		case string:
			if isJSON {
				row[col] = json.RawMessage(v)
			} else {
				row[col] = v
			}
		default:
			row[col] = v
		}
	}
	return row
}
