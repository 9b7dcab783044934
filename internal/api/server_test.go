package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/neobin-core/internal/auth"
	"github.com/nerrad567/neobin-core/internal/history"
	"github.com/nerrad567/neobin-core/internal/infrastructure/config"
	"github.com/nerrad567/neobin-core/internal/infrastructure/logging"
	"github.com/nerrad567/neobin-core/internal/lid"
)

const (
	testPassword = "lid-maintenance"
	testSecret   = "test-secret-key-at-least-32-characters-long"
)

var (
	hashOnce   sync.Once
	hashedPass string
)

// testHash hashes testPassword once per test binary.
func testHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := auth.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("HashPassword() error = %v", err)
		}
		hashedPass = h
	})
	return hashedPass
}

// fakeLid serves a fixed state.
type fakeLid struct {
	state lid.State
}

func (f *fakeLid) Snapshot() lid.State { return f.state }

func (f *fakeLid) Query(selector string) (lid.Event, error) {
	switch strings.ToUpper(selector) {
	case lid.SelectorAngle:
		return lid.Event{Key: lid.KeyAngle, Value: f.state.Angle}, nil
	case lid.SelectorOpened:
		return lid.Event{Key: lid.KeyOpened, Value: f.state.Opened}, nil
	case lid.SelectorStatus:
		return lid.Event{Key: lid.KeyStatus, Value: f.state.Status}, nil
	default:
		return lid.Event{}, fmt.Errorf("%w: unknown selector %q", lid.ErrInvalidArgument, selector)
	}
}

// fakeHistory records the requested limit.
type fakeHistory struct {
	entries   []history.Entry
	err       error
	lastLimit int
}

func (f *fakeHistory) GetHistory(_ context.Context, limit int) ([]history.Entry, error) {
	f.lastLimit = limit
	return f.entries, f.err
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// testServer creates a Server over fakes. The lid is at 180, open and on.
func testServer(t *testing.T, mutate ...func(*Deps)) *Server {
	t.Helper()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger: log,
		Lid: &fakeLid{state: lid.State{
			Angle:    180,
			Opened:   true,
			Status:   true,
			Settings: lid.DefaultSettings(),
		}},
		Auth:    auth.NewAuthenticator(testHash(t), testSecret, "neobin-test", 15*time.Minute),
		History: &fakeHistory{},
		Version: "test",
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

// serve runs one request through the router.
func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

// bearer logs in through the router and returns the access token.
func bearer(t *testing.T, srv *Server) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"password":"`+testPassword+`"}`))
	w := serve(srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	return resp.AccessToken
}

func authedGet(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+bearer(t, srv))
	return serve(srv, req)
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	authn := auth.NewAuthenticator("", "", "", 0)

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Lid: &fakeLid{}, Auth: authn}},
		{"no lid", Deps{Logger: log, Auth: authn}},
		{"no auth", Deps{Logger: log, Lid: &fakeLid{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

// ─── Health ────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv := testServer(t)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"database": checkFunc(func(context.Context) error { return nil }),
			"mqtt":     checkFunc(func(context.Context) error { return errors.New("not connected") }),
		}
	})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var resp struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Components["database"] != "ok" || resp.Components["mqtt"] != "not connected" {
		t.Errorf("components = %v", resp.Components)
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv := testServer(t)
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")

	w := serve(srv, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS(t *testing.T) {
	srv := testServer(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://dashboard.local"}
	})

	tests := []struct {
		origin string
		want   string
	}{
		{"http://dashboard.local", "http://dashboard.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/lid", nil)
		req.Header.Set("Origin", tt.origin)
		w := serve(srv, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: ACAO = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestRecovery(t *testing.T) {
	srv := testServer(t)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	srv := testServer(t)
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/nonexistent", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Auth ──────────────────────────────────────────────────────────

func TestLogin_Success(t *testing.T) {
	srv := testServer(t)
	token := bearer(t, srv)
	if token == "" {
		t.Fatal("empty access token")
	}
	if _, err := srv.auth.Verify(token); err != nil {
		t.Errorf("Verify(issued token) error = %v", err)
	}
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		mutate func(*Deps)
		want   int
	}{
		{name: "wrong password", body: `{"password":"nope"}`, want: http.StatusUnauthorized},
		{name: "invalid json", body: `{`, want: http.StatusBadRequest},
		{
			name:   "not configured",
			body:   `{"password":"x"}`,
			mutate: func(d *Deps) { d.Auth = auth.NewAuthenticator("", testSecret, "neobin-test", 0) },
			want:   http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mutate []func(*Deps)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			srv := testServer(t, mutate...)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(tt.body))
			if w := serve(srv, req); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestProtectedRoutes_RequireBearer(t *testing.T) {
	srv := testServer(t)

	for _, path := range []string{"/api/v1/lid", "/api/v1/lid/history", "/api/v1/lid/angle", "/api/v1/settings"} {
		w := serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, w.Code)
		}

		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		if w := serve(srv, req); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s with bad token = %d, want 401", path, w.Code)
		}
	}
}

func TestTicketStore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTicketStore()
	store.now = func() time.Time { return now }

	ticket := store.issue()
	if !store.consume(ticket) {
		t.Fatal("fresh ticket rejected")
	}
	if store.consume(ticket) {
		t.Error("ticket accepted twice")
	}

	expired := store.issue()
	now = now.Add(ticketTTL + time.Second)
	if store.consume(expired) {
		t.Error("expired ticket accepted")
	}

	store.issue()
	store.clean()
	if len(store.tickets) != 1 {
		t.Errorf("clean() left %d tickets, want 1 (unexpired)", len(store.tickets))
	}
	now = now.Add(ticketTTL)
	store.clean()
	if len(store.tickets) != 0 {
		t.Errorf("clean() left %d tickets, want 0", len(store.tickets))
	}
}

// ─── Lid ───────────────────────────────────────────────────────────

func TestGetLid(t *testing.T) {
	srv := testServer(t)
	w := authedGet(t, srv, "/api/v1/lid")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var state lid.State
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if state.Angle != 180 || !state.Opened || !state.Status {
		t.Errorf("state = %+v", state)
	}
}

func TestQueryLid(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		selector string
		code     int
		body     string
	}{
		{"angle", http.StatusOK, `{"Angle":180}`},
		{"OPENED", http.StatusOK, `{"Opened":true}`},
		{"status", http.StatusOK, `{"Status":true}`},
		{"colour", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		w := authedGet(t, srv, "/api/v1/lid/"+tt.selector)
		if w.Code != tt.code {
			t.Errorf("GET /lid/%s status = %d, want %d", tt.selector, w.Code, tt.code)
			continue
		}
		if tt.body != "" && strings.TrimSpace(w.Body.String()) != tt.body {
			t.Errorf("GET /lid/%s body = %s, want %s", tt.selector, w.Body.String(), tt.body)
		}
	}
}

func TestGetHistory(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hist := &fakeHistory{entries: []history.Entry{
		{ID: 2, Command: "Close", Angle: 0, Status: true, Source: lid.OriginSensor, CreatedAt: at},
		{ID: 1, Command: "Open", Angle: 180, Opened: true, Status: true, Source: lid.OriginCommand, CreatedAt: at},
	}}
	srv := testServer(t, func(d *Deps) { d.History = hist })

	w := authedGet(t, srv, "/api/v1/lid/history?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if hist.lastLimit != 2 {
		t.Errorf("limit passed = %d, want 2", hist.lastLimit)
	}

	var resp struct {
		Entries []history.Entry `json:"entries"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || resp.Entries[0].Source != lid.OriginSensor {
		t.Errorf("response = %+v", resp)
	}
}

func TestGetHistory_Errors(t *testing.T) {
	t.Run("bad limit", func(t *testing.T) {
		srv := testServer(t)
		if w := authedGet(t, srv, "/api/v1/lid/history?limit=abc"); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
	t.Run("disabled", func(t *testing.T) {
		srv := testServer(t, func(d *Deps) { d.History = nil })
		if w := authedGet(t, srv, "/api/v1/lid/history"); w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
	t.Run("repository failure", func(t *testing.T) {
		srv := testServer(t, func(d *Deps) { d.History = &fakeHistory{err: errors.New("disk I/O error")} })
		if w := authedGet(t, srv, "/api/v1/lid/history"); w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
}

func TestGetSettings(t *testing.T) {
	srv := testServer(t)
	w := authedGet(t, srv, "/api/v1/settings")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var got lid.Settings
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != lid.DefaultSettings() {
		t.Errorf("settings = %+v, want %+v", got, lid.DefaultSettings())
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() = nil, want error")
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
