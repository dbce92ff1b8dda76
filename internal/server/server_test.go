package server_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/screen3/screen3/internal/auth"
	"github.com/screen3/screen3/internal/server"
)

const testJWTSecret = "test-secret"

type mockPinger struct{ err error }

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

func newServer(t *testing.T, cfg server.Config) *server.Server {
	t.Helper()
	srv, err := server.New(cfg)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

func newServerWithDB(t *testing.T) (*server.Server, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	return newServer(t, server.Config{
		DB:             mock,
		Pinger:         &mockPinger{},
		JWTSecret:      testJWTSecret,
		BaseURL:        "https://screen3.test",
		AllowedOrigins: []string{"https://app.screen3.test"},
		TempVideoDir:   t.TempDir(),
		MaxUploadBytes: 1 << 20,
	}), mock
}

func executeRequest(srv http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		db         server.Pinger
		redis      server.Pinger
		wantStatus int
		wantBody   string
	}{
		{"no dependencies", nil, nil, http.StatusOK, `{"status":"ok"}`},
		{"all healthy", &mockPinger{}, &mockPinger{}, http.StatusOK, `{"status":"ok"}`},
		{"database down", &mockPinger{err: errors.New("refused")}, &mockPinger{}, http.StatusServiceUnavailable, `{"status":"unhealthy","error":"database unreachable"}`},
		{"redis down", &mockPinger{}, server.PingerFunc(func(ctx context.Context) error { return errors.New("refused") }), http.StatusServiceUnavailable, `{"status":"unhealthy","error":"redis unreachable"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, server.Config{Pinger: tt.db, Redis: tt.redis})
			rec := executeRequest(srv, http.MethodGet, "/api/health")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestNew_RequiresJWTSecret(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	if _, err := server.New(server.Config{DB: mock}); err == nil {
		t.Error("expected error without JWT secret")
	}
}

func TestNilDBRoutesNotRegistered(t *testing.T) {
	srv := newServer(t, server.Config{})

	for _, path := range []string{"/api/auth/login", "/api/video/save", "/api/spaces"} {
		rec := executeRequest(srv, http.MethodPost, path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 for %s without DB, got %d", path, rec.Code)
		}
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv, mock := newServerWithDB(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/user/me"},
		{http.MethodGet, "/api/auth/sessions"},
		{http.MethodPost, "/api/spaces"},
		{http.MethodGet, "/api/spaces"},
		{http.MethodPost, "/api/video/save"},
		{http.MethodPost, "/api/video/upload"},
		{http.MethodGet, "/api/video/list"},
		{http.MethodGet, "/api/video/6f1f7a4e-4e0b-4c4f-9d0a-6f7d0d3b2a11"},
		{http.MethodPatch, "/api/video/6f1f7a4e-4e0b-4c4f-9d0a-6f7d0d3b2a11"},
		{http.MethodPut, "/api/video/6f1f7a4e-4e0b-4c4f-9d0a-6f7d0d3b2a11/collaborators"},
	}
	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rec := executeRequest(srv, route.method, route.path)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected DB calls: %v", err)
	}
}

func TestVideoListWithToken(t *testing.T) {
	srv, mock := newServerWithDB(t)
	userID := "0b8a4d8e-0d57-4f2e-9a8c-25d7d6d0f0c3"

	mock.ExpectQuery(`FROM videos v WHERE v.creator_id = \$1`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "bucket", "storage_id", "description",
			"video_thumbnail_url", "image_thumbnail_url", "url", "duration", "created_at"}))

	token, err := auth.GenerateAccessToken(testJWTSecret, userID)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/video/list", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestPinRequestWithoutStoreIsUnavailable(t *testing.T) {
	srv, _ := newServerWithDB(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/pin", strings.NewReader(`{"email":"a@example.com"}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	srv, _ := newServerWithDB(t)

	var last int
	for i := 0; i < 7; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{"))
		req.RemoteAddr = "198.51.100.7:4000"
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", last)
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	srv := newServer(t, server.Config{})
	rec := executeRequest(srv, http.MethodGet, "/nope")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"not found"}` {
		t.Errorf("body = %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newServerWithDB(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/video/save", nil)
	req.Header.Set("Origin", "https://app.screen3.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.screen3.test" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestRecoverer(t *testing.T) {
	srv := newServer(t, server.Config{Pinger: server.PingerFunc(func(ctx context.Context) error { panic("boom") })})
	rec := executeRequest(srv, http.MethodGet, "/api/health")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", rec.Code)
	}
}
