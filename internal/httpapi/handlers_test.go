package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callshield/internal/auth"
	"callshield/internal/backend"
	"callshield/internal/calls"
	"callshield/internal/config"
	"callshield/internal/detection"
	"callshield/internal/history"
	"callshield/internal/rbac"
	"callshield/internal/routing"
	"callshield/internal/settings"
	"callshield/pkg/logger"

	"github.com/gin-gonic/gin"
)

type rejectingBackend struct{}

func (rejectingBackend) RouteCall(context.Context, backend.RouteRequest) backend.RouteResponse {
	return backend.RouteResponse{Success: true, Action: backend.ActionReject, Message: "Call from x blocked"}
}
func (rejectingBackend) NotifyCallStatus(context.Context, string, calls.NotifyStatus) bool { return true }
func (rejectingBackend) RegisterDevice(context.Context, string, string) bool               { return true }
func (rejectingBackend) TestConnection(context.Context) bool                               { return true }
func (rejectingBackend) GetRoutingConfig(context.Context) (map[string]any, bool)           { return nil, false }
func (rejectingBackend) UpdateConfig(string, string)                                       {}

type apiFixture struct {
	router *gin.Engine
	auth   *auth.Manager
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	feed := detection.NewFeed(nil)
	hist := history.NewService(history.NewMemoryRepo(0))
	orch := routing.New(routing.Options{
		DeviceID: "dev-1",
		Backend:  rejectingBackend{},
		Settings: settings.NewMemoryStore(settings.Defaults()),
		Source:   feed,
		History:  hist,
		Logger:   logger.Discard(),
	})

	r := gin.New()
	r.Use(logger.Middleware(logger.Discard()))
	Handlers{DeviceID: "dev-1", Routing: orch, History: hist, Feed: feed}.Register(r, auth.RequireAccessToken(m))
	return &apiFixture{router: r, auth: m}
}

func (f *apiFixture) do(t *testing.T, role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		tok, err := f.auth.Issue(time.Now(), "tester", "dev-1", role)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAPI_RequiresToken(t *testing.T) {
	f := newAPI(t)
	if w := f.do(t, "", http.MethodGet, "/v1/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAPI_ViewerCannotMutate(t *testing.T) {
	f := newAPI(t)
	if w := f.do(t, rbac.RoleViewer, http.MethodGet, "/v1/stats", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := f.do(t, rbac.RoleViewer, http.MethodPost, "/v1/routing/start", ""); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestAPI_PatchConfigValidates(t *testing.T) {
	f := newAPI(t)
	w := f.do(t, rbac.RoleOperator, http.MethodPatch, "/v1/config", `{"backend_url":"localhost"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, rbac.RoleOperator, http.MethodPatch, "/v1/config", `{"api_key":"sk_live_12345678"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var cfg settings.RoutingConfig
	_ = json.Unmarshal(w.Body.Bytes(), &cfg)
	if cfg.APIKey != "****5678" {
		t.Fatalf("expected masked key, got %q", cfg.APIKey)
	}
}

func TestAPI_StartDisabledIsConflict(t *testing.T) {
	f := newAPI(t)
	w := f.do(t, rbac.RoleOperator, http.MethodPost, "/v1/routing/start", "")
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), "disabled") {
		t.Fatalf("expected 409 disabled, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAPI_InjectedEventIsRouted(t *testing.T) {
	f := newAPI(t)
	ev := `{"caller_id":"+15559876543","status":"incoming"}`

	if w := f.do(t, rbac.RoleOperator, http.MethodPost, "/v1/events", ev); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while idle, got %d", w.Code)
	}

	if w := f.do(t, rbac.RoleOperator, http.MethodPatch, "/v1/config", `{"enabled":true}`); w.Code != http.StatusOK {
		t.Fatalf("enable: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, rbac.RoleOperator, http.MethodPost, "/v1/routing/start", ""); w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}

	w := f.do(t, rbac.RoleOperator, http.MethodPost, "/v1/events", ev)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var stats struct {
		TotalCalls    int `json:"total_calls"`
		RejectedCalls int `json:"rejected_calls"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.TotalCalls != 1 || stats.RejectedCalls != 1 {
		t.Fatalf("unexpected stats: %s", w.Body.String())
	}

	w = f.do(t, rbac.RoleViewer, http.MethodGet, "/v1/history?limit=5", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":1`) {
		t.Fatalf("unexpected history: %d %s", w.Code, w.Body.String())
	}

	if w := f.do(t, rbac.RoleOperator, http.MethodPost, "/v1/events", `{"caller_id":"","status":"incoming"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid event, got %d", w.Code)
	}

	if w := f.do(t, rbac.RoleOperator, http.MethodPost, "/v1/stats/reset", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total_calls":0`) {
		t.Fatalf("unexpected reset: %d %s", w.Code, w.Body.String())
	}
}

func TestAPI_BackendEndpoints(t *testing.T) {
	f := newAPI(t)
	w := f.do(t, rbac.RoleViewer, http.MethodPost, "/v1/backend/test", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"reachable":true`) {
		t.Fatalf("unexpected test response: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, rbac.RoleViewer, http.MethodGet, "/v1/backend/routing-config", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if w := f.do(t, rbac.RoleViewer, http.MethodGet, "/v1/history?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAPI_StatusNamesCaller(t *testing.T) {
	f := newAPI(t)
	w := f.do(t, rbac.RoleViewer, http.MethodGet, "/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Running      bool   `json:"running"`
		DeviceID     string `json:"device_id"`
		Subject      string `json:"subject"`
		PendingCalls int    `json:"pending_calls"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Subject != "tester" || body.DeviceID != "dev-1" || body.PendingCalls != 0 || body.Running {
		t.Fatalf("unexpected status: %+v", body)
	}
}
