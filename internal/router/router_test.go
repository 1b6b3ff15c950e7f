package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/config"
	"github.com/stemsi/quizlive-backend/internal/gateway"
	"github.com/stemsi/quizlive-backend/internal/handler"
	"github.com/stemsi/quizlive-backend/internal/relay"
	"github.com/stemsi/quizlive-backend/internal/service"
	"github.com/stemsi/quizlive-backend/internal/validator"
)

type fixture struct {
	engine *gin.Engine
	relay  *relay.Relay
	auth   *service.AuthService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	validator.Setup()

	cfg := &config.Config{
		GinMode:       gin.TestMode,
		JWTSecret:     "router-test",
		JWTExpiry:     time.Hour,
		TeacherPIN:    "2468",
		AuthRateLimit: 3,
	}
	log := zerolog.Nop()
	r := relay.New(relay.Options{
		Store:  relay.StoreOptions{Generate: func() (string, error) { return "ABC123", nil }},
		Logger: log,
	})
	g := gateway.New(r, gateway.Options{}, log)
	auth := service.NewAuthService(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	engine := SetupRouter(ctx, auth, &Handlers{
		Auth:    handler.NewAuthHandler(auth, log),
		Quiz:    handler.NewQuizHandler(nil, log),
		Session: handler.NewSessionHandler(service.NewSessionService(r.Store())),
		WS:      handler.NewWSHandler(g, auth, log, nil),
		System:  handler.NewSystemHandler(r, nil, log),
	}, cfg)
	return fixture{engine: engine, relay: r, auth: auth}
}

func (f fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"active_sessions"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Status != "ok" || body.Sessions != 0 {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestTeacherLogin(t *testing.T) {
	f := newFixture(t)

	if w := f.do(t, http.MethodPost, "/api/v1/auth/teacher", "", gin.H{"pin": "2468"}); w.Code != http.StatusBadRequest || errorCode(t, w) != "VALIDATION_ERROR" {
		t.Fatalf("missing name: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodPost, "/api/v1/auth/teacher", "", gin.H{"pin": "0000", "name": "Ms Rivera"}); w.Code != http.StatusUnauthorized || errorCode(t, w) != "INVALID_PIN" {
		t.Fatalf("wrong pin: %d %s", w.Code, w.Body.String())
	}

	w := f.do(t, http.MethodPost, "/api/v1/auth/teacher", "", gin.H{"pin": "2468", "name": "Ms Rivera"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}

	// the limiter allows three attempts per minute
	w = f.do(t, http.MethodPost, "/api/v1/auth/teacher", "", gin.H{"pin": "2468", "name": "Ms Rivera"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("fourth attempt: %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q", got)
	}
}

func TestSessionRoutes(t *testing.T) {
	f := newFixture(t)
	token, teacherID, err := f.auth.Login("2468", "Ms Rivera")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := f.relay.Handle(relay.Caller{ConnID: "c1", TeacherID: teacherID}, relay.StartSession{}); err != nil {
		t.Fatalf("start session: %v", err)
	}

	w := f.do(t, http.MethodGet, "/api/v1/sessions/abc123", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q", got)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/sessions/ZZZ999", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown: %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/sessions/bad", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed: %d", w.Code)
	}

	if w := f.do(t, http.MethodGet, "/api/v1/teacher/sessions/ABC123/leaderboard", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous leaderboard: %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/teacher/sessions/ABC123/leaderboard", token, nil); w.Code != http.StatusOK {
		t.Fatalf("leaderboard: %d %s", w.Code, w.Body.String())
	}

	other, _, _ := f.auth.Login("2468", "Mr Chen")
	if w := f.do(t, http.MethodGet, "/api/v1/teacher/sessions/ABC123/leaderboard", other, nil); w.Code != http.StatusForbidden {
		t.Fatalf("foreign leaderboard: %d", w.Code)
	}
}

func TestQuizRoutesWithoutPersistence(t *testing.T) {
	f := newFixture(t)
	token, _, _ := f.auth.Login("2468", "Ms Rivera")
	w := f.do(t, http.MethodGet, "/api/v1/teacher/quizzes", token, nil)
	if w.Code != http.StatusServiceUnavailable || errorCode(t, w) != "PERSISTENCE_DISABLED" {
		t.Fatalf("quizzes: %d %s", w.Code, w.Body.String())
	}
}
