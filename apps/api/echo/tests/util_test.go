package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/org"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
	"github.com/onlineimmigrant/move-plan-next-sub025/testutil"
)

var (
	errMissingToken   = httpErr{Error: "missing or malformed jwt"}
	errPermDenied     = httpErr{Error: "permission denied"}
	errNotFound       = httpErr{Error: "not found"}
	errOrgQueryMissed = httpErr{Error: "the org query parameter is required"}
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// fixture holds an organization with one user per portal.
type fixture struct {
	org     org.Organization
	owner   user.User // admin:owner
	admin   user.User
	teacher user.User
	student user.User
}

func newFixture(t *testing.T, slug string) fixture {
	o := testutil.CreateOrg(t, orgRepo, "Org "+slug, slug, true)
	return fixture{
		org:     o,
		owner:   testutil.CreateUser(t, usrRepo, o.ID, "Owner", slug+"_owner", slug+".owner@test.cd", "pwd", []string{user.RoleAdminOwner}, true),
		admin:   testutil.CreateUser(t, usrRepo, o.ID, "Admin", slug+"_admin", slug+".admin@test.cd", "pwd", []string{user.RoleAdmin}, true),
		teacher: testutil.CreateUser(t, usrRepo, o.ID, "Teacher", slug+"_teacher", slug+".teacher@test.cd", "pwd", []string{user.RoleTeacher}, true),
		student: testutil.CreateUser(t, usrRepo, o.ID, "Student", slug+"_student", slug+".student@test.cd", "pwd", []string{user.RoleStudent}, true),
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// do serves a JSON request and returns the recorder.
func do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, usr user.User) string {
	claims := app.GetUserClaims(usr)
	token, err := app.GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

// decode unmarshals the body of rec into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}

func runHTTPTests(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
