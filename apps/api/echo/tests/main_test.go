package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"reflect"
	"testing"

	. "github.com/trezcool/edurise/apps/api/echo"
	"github.com/trezcool/edurise/core/mirror"
	remotesvc "github.com/trezcool/edurise/services/remote"
	inmemdb "github.com/trezcool/edurise/storage/database/inmem"
	testutil "github.com/trezcool/edurise/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	token    string
	wantCode int
	wantData []byte
}

type app struct {
	server *Server
	auth   *Auth
	svc    *mirror.Service
	remote *remotesvc.MemoryFetcher
}

func setup(t *testing.T) app {
	conf := testutil.NewConfig(t)
	logger := testutil.NewLogger(conf)

	remote := remotesvc.NewMemoryFetcher()
	svc := mirror.NewService(inmemdb.NewCacheStore(inmemdb.Open()), remote, logger, mirror.Options{})
	if err := svc.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() failed: %v", err)
	}

	auth := NewAuth(conf)
	server := NewServer(&Options{
		DisableReqLogs: true,
		TestMode:       true,
		Logger:         logger,
		Auth:           auth,
		Mirror:         svc,
	})
	t.Cleanup(func() { _ = server.Close() })

	return app{server: server, auth: auth, svc: svc, remote: remote}
}

func (a app) token(t *testing.T, roles ...string) string {
	token, err := a.auth.GenerateToken(a.auth.NewClaims("tester", roles...))
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}
	return token
}

func (a app) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, &bytes.Buffer{})
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, req)
	return rec
}

func seedSchool(remote *remotesvc.MemoryFetcher, schoolID string) {
	remote.PutSchool(schoolID, map[string]mirror.Value{"school_name": mirror.String("Hillside Academy")})
	remote.Put(schoolID, "students",
		mirror.Document{ID: "s1", Fields: map[string]mirror.Value{
			"student_id": mirror.String("s1"), "name": mirror.String("Asha"), "class_id": mirror.String("c1"), "section": mirror.String("A"),
		}},
		mirror.Document{ID: "s2", Fields: map[string]mirror.Value{
			"student_id": mirror.String("s2"), "name": mirror.String("Ravi"), "class_id": mirror.String("c1"), "section": mirror.String("B"),
		}},
	)
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj(): %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
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
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, a app, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(tt.method, tt.path, tt.token))
		})
	}
}
