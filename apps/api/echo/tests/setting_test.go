package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/setting"
)

func Test_settingApi(t *testing.T) {
	resetDB()
	f := newFixture(t, "acme")
	other := newFixture(t, "globex")
	adminToken := getToken(t, f.admin)

	put := func(token, key, body string) int {
		return do(http.MethodPut, "/api/settings/"+key, token, []byte(body)).Code
	}

	t.Run("set", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, put(adminToken, "site.title", `{"value":"Acme Academy","is_public":true}`))
		assert.Equal(t, http.StatusOK, put(adminToken, "theme", `{"value":{"primary":"#112233"},"is_public":true}`))
		assert.Equal(t, http.StatusOK, put(adminToken, "stripe.mode", `{"value":"live"}`))
		assert.Equal(t, http.StatusOK, put(getToken(t, other.admin), "site.title", `{"value":"Globex","is_public":true}`))
	})

	t.Run("set overwrites", func(t *testing.T) {
		rec := do(http.MethodPut, "/api/settings/site.title", adminToken, []byte(`{"value":"Acme","is_public":true}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var s setting.Setting
		decode(t, rec, &s)
		assert.Equal(t, "site.title", s.Key)
		assert.JSONEq(t, `"Acme"`, string(s.Value))
	})

	tests := []httpTest{
		{name: "public: org required", path: "/api/settings/public", wantCode: http.StatusBadRequest, wantData: marchallObj(t, errOrgQueryMissed)},
		{name: "public: unknown org", path: "/api/settings/public?org=lol", wantCode: http.StatusNotFound},
		{
			name: "public: only public keys", path: "/api/settings/public?org=acme", wantCode: http.StatusOK,
			wantData: []byte(`{"site.title":"Acme","theme":{"primary":"#112233"}}`),
		},
		{name: "public: other org", path: "/api/settings/public?org=globex", wantCode: http.StatusOK, wantData: []byte(`{"site.title":"Globex"}`)},
		{name: "all: auth required", path: "/api/settings", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "all: admin required", path: "/api/settings", token: getToken(t, f.teacher), wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied)},
		{name: "get: private key", path: "/api/settings/stripe.mode", token: adminToken, wantCode: http.StatusOK},
		{
			name: "get: other org's key is not found", path: "/api/settings/stripe.mode", token: getToken(t, other.admin),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "setting not found"}),
		},
		{
			name: "set: invalid key & value", method: http.MethodPut, path: "/api/settings/Bad-Key", token: adminToken,
			body: []byte(`{"is_public":true}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"key":   "must start with a lowercase letter and only contain lowercase letters, digits, dots and underscores",
				"value": "must be a valid JSON value",
			}),
		},
		{name: "delete: unknown", method: http.MethodDelete, path: "/api/settings/lol", token: adminToken, wantCode: http.StatusNotFound},
		{name: "delete", method: http.MethodDelete, path: "/api/settings/theme", token: adminToken, wantCode: http.StatusNoContent},
		{name: "public: after delete", path: "/api/settings/public?org=acme", wantCode: http.StatusOK, wantData: []byte(`{"site.title":"Acme"}`)},
	}
	runHTTPTests(t, tests)

	t.Run("all", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/settings", adminToken)
		require.Equal(t, http.StatusOK, rec.Code)

		var settings []setting.Setting
		decode(t, rec, &settings)
		keys := make([]string, 0, len(settings))
		for _, s := range settings {
			keys = append(keys, s.Key)
		}
		assert.Equal(t, []string{"site.title", "stripe.mode"}, keys)
	})
}
