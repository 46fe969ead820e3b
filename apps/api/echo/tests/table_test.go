package tests

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/table"
)

func Test_tableApi(t *testing.T) {
	resetDB()
	f := newFixture(t, "acme")
	other := newFixture(t, "globex")
	token := getToken(t, f.owner)

	tests := []httpTest{
		{name: "auth required", path: "/api/tables", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "owners only", path: "/api/tables", token: getToken(t, f.admin), wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied)},
		{name: "tables", path: "/api/tables", token: token, wantCode: http.StatusOK, wantData: []byte(`["notes"]`)},
		{name: "not allowed", path: "/api/tables/users/schema", token: token, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "table not found"})},
		{name: "bad name", path: "/api/tables/Notes;drop/rows", token: token, wantCode: http.StatusNotFound},
		{name: "invalidate schema", method: http.MethodDelete, path: "/api/tables/notes/schema", token: token, wantCode: http.StatusNoContent},
		{name: "empty", path: "/api/tables/notes/rows", token: token, wantCode: http.StatusOK, wantData: []byte(`{"results":[],"total":0,"page":1,"page_size":25}`)},
	}
	runHTTPTests(t, tests)

	t.Run("schema", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/tables/notes/schema", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var s table.Schema
		decode(t, rec, &s)
		assert.Equal(t, "Notes", s.Label)
		assert.Equal(t, []string{"id"}, s.PrimaryKey)
		require.Len(t, s.Columns, 4)
		assert.True(t, s.Columns[0].AutoGenerated, "id has a generated default")
		assert.False(t, s.Columns[2].AutoGenerated)
	})

	var first table.Row
	t.Run("create", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/tables/notes/rows", token, []byte(`{"id":"forced","org_id":"lol","title":"First"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, &first)
		assert.NotEqual(t, "forced", first["id"], "auto generated columns are ignored")
		assert.Equal(t, f.org.ID, first["org_id"])
		assert.Equal(t, "First", first["title"])

		rec = do(http.MethodPost, "/api/tables/notes/rows", token, []byte(`{"title":"Second","pinned":true}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		rec = do(http.MethodPost, "/api/tables/notes/rows", getToken(t, other.owner), []byte(`{"title":"Globex note"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})
	t.Run("create: invalid", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/tables/notes/rows", token, []byte(`{"pinned":"yes"}`))
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		var errs map[string]string
		decode(t, rec, &errs)
		assert.Contains(t, errs, "title")
		assert.Contains(t, errs, "pinned")

		rec = do(http.MethodPost, "/api/tables/notes/rows", token, []byte(`[1, 2]`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/tables/notes/rows?page_size=1", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res table.ListResult
		decode(t, rec, &res)
		assert.Equal(t, 2, res.Total, "rows of other organizations are hidden")
		assert.Equal(t, 1, res.PageSize)
		assert.Len(t, res.Rows, 1)

		rec = do(http.MethodGet, "/api/tables/notes/rows?search=SEC", token)
		decode(t, rec, &res)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "Second", res.Rows[0]["title"])

		rec = do(http.MethodGet, "/api/tables/notes/rows?lol=1", token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"lol":"unknown column"}`, rec.Body.String())
	})

	pk := first["id"].(string)
	tests = []httpTest{
		{name: "get", path: "/api/tables/notes/rows/" + pk, token: token, wantCode: http.StatusOK},
		{name: "get: other org", path: "/api/tables/notes/rows/" + pk, token: getToken(t, other.owner), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "row not found"})},
		{
			name: "update: org is locked", method: http.MethodPut, path: "/api/tables/notes/rows/" + pk, token: token,
			body: []byte(`{"org_id":"` + other.org.ID + `"}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"org_id":"can not be changed"}`),
		},
		{name: "update: other org", method: http.MethodPut, path: "/api/tables/notes/rows/" + pk, token: getToken(t, other.owner), body: []byte(`{"title":"x"}`), wantCode: http.StatusNotFound},
		{name: "options: not a reference", path: "/api/tables/notes/options/title", token: token, wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "this column does not reference another table"})},
		{name: "options: unknown column", path: "/api/tables/notes/options/lol", token: token, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "column not found"})},
	}
	runHTTPTests(t, tests)

	t.Run("update", func(t *testing.T) {
		rec := do(http.MethodPut, "/api/tables/notes/rows/"+pk, token, []byte(`{"id":"`+pk+`","title":"Renamed"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var row table.Row
		decode(t, rec, &row)
		assert.Equal(t, "Renamed", row["title"])
		assert.Equal(t, pk, row["id"])
	})

	t.Run("export", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/tables/notes/export?ordering=title", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, `attachment; filename="notes.xlsx"`, rec.Header().Get("Content-Disposition"))

		book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer book.Close()
		rows, err := book.GetRows("Sheet1")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []string{"id", "org_id", "title", "pinned"}, rows[0])
		assert.Equal(t, "Renamed", rows[1][2])
		assert.Equal(t, "Second", rows[2][2])
	})

	t.Run("delete", func(t *testing.T) {
		rec := do(http.MethodDelete, "/api/tables/notes/rows/lol", token)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(http.MethodDelete, "/api/tables/notes/rows", token)
		assert.JSONEq(t, `{"deleted":0}`, rec.Body.String())

		rec = do(http.MethodDelete, "/api/tables/notes/rows?pk="+pk+"&pk=lol", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"deleted":1}`, rec.Body.String())
	})
}
