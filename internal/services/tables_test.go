package services

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTable(t *testing.T, name string) TableSpec {
	t.Helper()
	spec, err := LookupTable(name)
	require.NoError(t, err)
	return spec
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	svcErr, ok := AsServiceError(err)
	require.True(t, ok, "expected a ServiceError, got %v", err)
	return svcErr.Status
}

func TestLookupTable(t *testing.T) {
	_, err := LookupTable("users")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	assert.False(t, mustTable(t, "modules").Owned())
	assert.False(t, mustTable(t, "lessons").Owned())
	assert.Equal(t, "id", mustTable(t, "profiles").OwnerColumn)
	assert.Equal(t, "user_id", mustTable(t, "lesson_progress").OwnerColumn)
}

func TestParseSelectQuery(t *testing.T) {
	spec := mustTable(t, "lessons")
	values := url.Values{
		"select":    {"id,module_id"},
		"order":     {"order.desc"},
		"module_id": {"eq.m-1"},
	}
	q, err := ParseSelectQuery(spec, values)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "module_id"}, q.Columns)
	assert.Equal(t, []Filter{{Column: "module_id", Value: "m-1"}}, q.Filters)
	require.NotNil(t, q.Order)
	assert.Equal(t, Order{Column: "order", Ascending: false}, *q.Order)
}

func TestParseSelectQueryRejectsBadInput(t *testing.T) {
	spec := mustTable(t, "lessons")
	cases := []url.Values{
		{"select": {"id,password"}},
		{"order": {"nope.asc"}},
		{"module_id": {"gt.3"}},
		{"secret": {"eq.1"}},
	}
	for _, values := range cases {
		_, err := ParseSelectQuery(spec, values)
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err), values.Encode())
	}
}

func TestBuildSelectScopesOwnedTables(t *testing.T) {
	spec := mustTable(t, "lesson_progress")
	q := SelectQuery{Filters: []Filter{{Column: "user_id", Value: "u-1"}}}
	query, args := BuildSelect(spec, q, "u-1")
	assert.Equal(t,
		`SELECT "answers", "completed", "lesson_id", "score", "updated_at", "user_id", "watched", "xp" FROM "lesson_progress" WHERE "user_id"::text = $1 AND "user_id" = $2`,
		query)
	assert.Equal(t, []any{"u-1", "u-1"}, args)

	// A filter naming someone else still only reaches the caller's rows.
	q = SelectQuery{Filters: []Filter{{Column: "user_id", Value: "u-2"}}}
	_, args = BuildSelect(spec, q, "u-1")
	assert.Equal(t, []any{"u-2", "u-1"}, args)
}

func TestBuildSelectPublicTable(t *testing.T) {
	spec := mustTable(t, "modules")
	q := SelectQuery{Columns: []string{"id", "title"}, Order: &Order{Column: "order", Ascending: true}}
	query, args := BuildSelect(spec, q, "")
	assert.Equal(t, `SELECT "id", "title" FROM "modules" ORDER BY "order" ASC`, query)
	assert.Empty(t, args)
}

func TestBuildUpsertForcesOwner(t *testing.T) {
	spec := mustTable(t, "profiles")
	query, args, err := BuildUpsert(spec, map[string]any{"id": "someone-else", "name": "Ada"}, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []any{"u-1", "Ada"}, args)
	assert.Contains(t, query, `INSERT INTO "profiles" ("id", "name") VALUES (CAST($1::text AS text), CAST($2::text AS text))`)
	assert.Contains(t, query, `ON CONFLICT ("id") DO UPDATE SET "name" = EXCLUDED."name"`)
	assert.Contains(t, query, `(xmax = 0) AS __inserted`)
}

func TestBuildUpsertTypedColumns(t *testing.T) {
	spec := mustTable(t, "lesson_progress")
	row := map[string]any{
		"lesson_id": "l-1",
		"score":     json.Number("0.8"),
		"completed": true,
		"answers":   map[string]any{"q1": "b"},
	}
	query, args, err := BuildUpsert(spec, row, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []any{`{"q1":"b"}`, "true", "l-1", "0.8", "u-1"}, args)
	assert.Contains(t, query, `CAST($1::text AS jsonb)`)
	assert.Contains(t, query, `CAST($4::text AS double precision)`)
	assert.Contains(t, query, `ON CONFLICT ("user_id", "lesson_id")`)
}

func TestBuildUpsertRejects(t *testing.T) {
	_, _, err := BuildUpsert(mustTable(t, "modules"), map[string]any{"id": "m-1"}, "u-1")
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	_, _, err = BuildUpsert(mustTable(t, "lesson_progress"), map[string]any{"score": 1.0}, "u-1")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, _, err = BuildUpsert(mustTable(t, "lesson_progress"), map[string]any{"lesson_id": "l", "rank": 1.0}, "u-1")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, _, err = BuildUpsert(mustTable(t, "lesson_progress"), map[string]any{"lesson_id": "l", "score": []any{1.0}}, "u-1")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestBuildDelete(t *testing.T) {
	spec := mustTable(t, "lesson_progress")
	_, _, err := BuildDelete(spec, nil, "u-1")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, _, err = BuildDelete(mustTable(t, "lessons"), []Filter{{Column: "id", Value: "l-1"}}, "u-1")
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	query, args, err := BuildDelete(spec, []Filter{{Column: "lesson_id", Value: "l-1"}}, "u-1")
	require.NoError(t, err)
	assert.Contains(t, query, `DELETE FROM "lesson_progress" WHERE "lesson_id"::text = $1 AND "user_id" = $2 RETURNING`)
	assert.Equal(t, []any{"l-1", "u-1"}, args)
}

func TestSQLParam(t *testing.T) {
	v, err := sqlParam("double precision", 1.5)
	require.NoError(t, err)
	assert.Equal(t, "1.5", v)

	v, err = sqlParam("text", nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = sqlParam("jsonb", "plain")
	require.NoError(t, err)
	assert.Equal(t, `"plain"`, v)

	v, err = sqlParam("jsonb", json.RawMessage(`[1,2]`))
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, v)

	_, err = sqlParam("text", map[string]any{"a": 1})
	assert.Error(t, err)
}

func TestNormalizeRow(t *testing.T) {
	spec := mustTable(t, "lesson_progress")
	row := normalizeRow(spec, map[string]any{
		"answers":   []byte(`{"q1":"a"}`),
		"lesson_id": []byte("l-1"),
		"xp":        2.5,
		"completed": true,
	})
	assert.Equal(t, json.RawMessage(`{"q1":"a"}`), row["answers"])
	assert.Equal(t, "l-1", row["lesson_id"])
	assert.Equal(t, 2.5, row["xp"])
	assert.Equal(t, true, row["completed"])
}
