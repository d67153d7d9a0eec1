package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookswap/internal/config"
	"bookswap/internal/middleware"
	"bookswap/internal/models"
	"bookswap/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret-key-12345678901234567890123456789012"

type testServer struct {
	srv *Server
	app *fiber.App
	db  *gorm.DB
	mr  *miniredis.Miniredis
	rdb *redis.Client
}

// envelope mirrors models.Response with Data left raw for per-test decoding.
type envelope struct {
	Status     bool              `json:"status"`
	Data       json.RawMessage   `json:"data"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	Pagination models.Pagination `json:"pagination"`
}

func newTestServer(t *testing.T, flags string) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := testutil.NewTestDB(t)
	cfg := &config.Config{
		JWTSecret:      testJWTSecret,
		JWTTTLHours:    1,
		AllowedOrigins: "http://localhost:5173",
		FeatureFlags:   flags,
		CoverUploadDir: t.TempDir(),
	}

	srv, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)

	return &testServer{srv: srv, app: srv.App(), db: db, mr: mr, rdb: rdb}
}

// do sends a JSON request and decodes the response envelope.
func (ts *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return ts.send(t, req)
}

func (ts *testServer) send(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

// member creates a user directly in the store and returns an access token for it.
func (ts *testServer) member(t *testing.T, name string) (*models.User, string) {
	t.Helper()
	u := testutil.CreateUser(t, ts.db, name)
	token, err := middleware.IssueAccessToken(testJWTSecret, u.ID, u.Username, time.Hour)
	require.NoError(t, err)
	return u, token
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}
