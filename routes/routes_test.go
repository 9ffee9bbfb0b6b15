package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	svc "Skynet/pkg/services"
	"Skynet/pkg/store"
)

func newEngine(opts Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	llm := svc.NewLLMService(svc.LocalProvider{}, svc.LLMConfig{Models: []string{"m"}}, nil)
	chats := svc.NewChatService(store.NewMemoryStore(), llm, svc.ChatOptions{}, nil)
	r := gin.New()
	RegisterRoutes(r, chats, zap.NewNop(), opts)
	return r
}

func serve(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutesWithoutAuth(t *testing.T) {
	r := newEngine(Options{StoreDriver: "memory", MetricsEnabled: true})
	for _, path := range []string{"/", "/healthz", "/metrics", "/api/chats"} {
		if w := serve(r, http.MethodGet, path, ""); w.Code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestMetricsCanBeDisabled(t *testing.T) {
	r := newEngine(Options{StoreDriver: "memory"})
	if w := serve(r, http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with metrics off, got %d", w.Code)
	}
}

func TestRoutesWithAuth(t *testing.T) {
	const secret = "route-secret"
	r := newEngine(Options{StoreDriver: "memory", JWTSecret: secret})

	if w := serve(r, http.MethodGet, "/api/chats", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/ws/chat", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on ws upgrade without token, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("health must stay public, got %d", w.Code)
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "frontend",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	w := serve(r, http.MethodGet, "/api/chats", tok)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty list with token, got %d %s", w.Code, w.Body.String())
	}
}
