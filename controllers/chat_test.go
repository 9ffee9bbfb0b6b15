package controllers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"Skynet/middleware"
	svc "Skynet/pkg/services"
	"Skynet/pkg/store"
)

// failingProvider always errors, or reports no credentials.
type failingProvider struct{ unconfigured bool }

func (failingProvider) Name() string       { return "failing" }
func (p failingProvider) Configured() bool { return !p.unconfigured }
func (failingProvider) Complete(context.Context, string, []svc.ChatMessage) (string, error) {
	return "", errors.New("upstream down")
}
func (failingProvider) Stream(context.Context, string, []svc.ChatMessage, func(string)) (string, error) {
	return "", errors.New("upstream down")
}

func newTestRouter(p svc.Provider) *gin.Engine {
	gin.SetMode(gin.TestMode)
	middleware.SetDuplicateTTL(0)
	middleware.SetRateLimitConfig(time.Minute, 100, 4)
	llm := svc.NewLLMService(p, svc.LLMConfig{Models: []string{"m"}}, nil)
	chats := svc.NewChatService(store.NewMemoryStore(), llm, svc.ChatOptions{}, nil)

	r := gin.New()
	r.GET("/", Root())
	r.GET("/healthz", Health(chats, "memory"))
	r.POST("/api/chat", SendMessage(chats))
	r.POST("/api/chat/stream", SendMessageStream(chats, zap.NewNop()))
	r.GET("/api/chats", ListChats(chats))
	r.DELETE("/api/chats", DeleteAllChats(chats))
	r.GET("/api/chats/:id", GetChat(chats))
	r.DELETE("/api/chats/:id", DeleteChat(chats))
	r.GET("/ws/chat", ChatWS(chats, zap.NewNop()))
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestChatLifecycle(t *testing.T) {
	r := newTestRouter(svc.LocalProvider{})

	w := do(r, http.MethodGet, "/api/chats", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	sent := decode[map[string]string](t, w)
	id := sent["chatId"]
	if id == "" || !strings.Contains(sent["response"], "hello") {
		t.Fatalf("unexpected response %v", sent)
	}

	w = do(r, http.MethodPost, "/api/chat", `{"message":"again","chatId":"`+id+`","title":"Ignored"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = do(r, http.MethodGet, "/api/chats/"+id, "")
	chat := decode[struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}](t, w)
	if chat.Title != "Chat 1" || len(chat.Messages) != 4 {
		t.Fatalf("unexpected chat %+v", chat)
	}
	if chat.Messages[0].Role != "user" || chat.Messages[1].Role != "ai" {
		t.Fatalf("unexpected roles %+v", chat.Messages)
	}

	w = do(r, http.MethodGet, "/api/chats", "")
	list := decode[[]map[string]string](t, w)
	if len(list) != 1 || list[0]["id"] != id || list[0]["title"] != "Chat 1" {
		t.Fatalf("unexpected list %v", list)
	}

	w = do(r, http.MethodDelete, "/api/chats/"+id, "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"success":true}` {
		t.Fatalf("unexpected delete response %d %s", w.Code, w.Body.String())
	}
	w = do(r, http.MethodDelete, "/api/chats/"+id, "")
	if w.Code != http.StatusNotFound || strings.TrimSpace(w.Body.String()) != `{"error":"chat not found"}` {
		t.Fatalf("expected 404, got %d %s", w.Code, w.Body.String())
	}
	w = do(r, http.MethodGet, "/api/chats/"+id, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted chat, got %d", w.Code)
	}
}

func TestSendMessageErrors(t *testing.T) {
	cases := []struct {
		name     string
		provider svc.Provider
		body     string
		wantCode int
		wantBody string
	}{
		{"empty", svc.LocalProvider{}, `{"message":"   "}`, http.StatusBadRequest, `{"error":"empty message"}`},
		{"missing field", svc.LocalProvider{}, `{}`, http.StatusBadRequest, `{"error":"empty message"}`},
		{"no body", svc.LocalProvider{}, ``, http.StatusBadRequest, `{"error":"empty message"}`},
		{"bad json", svc.LocalProvider{}, `{"message":`, http.StatusBadRequest, `{"error":"invalid request"}`},
		{"no key", failingProvider{unconfigured: true}, `{"message":"hi"}`, http.StatusInternalServerError, `{"error":"no API key configured on the backend"}`},
		{"upstream", failingProvider{}, `{"message":"hi"}`, http.StatusInternalServerError, `{"error":"failed to process the request"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(tc.provider)
			w := do(r, http.MethodPost, "/api/chat", tc.body)
			if w.Code != tc.wantCode || strings.TrimSpace(w.Body.String()) != tc.wantBody {
				t.Fatalf("got %d %s, want %d %s", w.Code, w.Body.String(), tc.wantCode, tc.wantBody)
			}
			list := do(r, http.MethodGet, "/api/chats", "")
			if strings.TrimSpace(list.Body.String()) != "[]" {
				t.Fatalf("failed request must not store anything, got %s", list.Body.String())
			}
		})
	}
}

func TestDuplicateMessageRejected(t *testing.T) {
	r := newTestRouter(svc.LocalProvider{})
	middleware.SetDuplicateTTL(time.Minute)
	defer middleware.SetDuplicateTTL(0)

	body := `{"message":"same","chatId":"dup"}`
	if w := do(r, http.MethodPost, "/api/chat", body); w.Code != http.StatusOK {
		t.Fatalf("expected first send to pass, got %d", w.Code)
	}
	w := do(r, http.MethodPost, "/api/chat", body)
	if w.Code != http.StatusConflict || strings.TrimSpace(w.Body.String()) != `{"error":"duplicate message"}` {
		t.Fatalf("expected 409, got %d %s", w.Code, w.Body.String())
	}
}

func TestDeleteAllChats(t *testing.T) {
	r := newTestRouter(svc.LocalProvider{})
	for _, id := range []string{"a", "b"} {
		do(r, http.MethodPost, "/api/chat", `{"message":"hi","chatId":"`+id+`"}`)
	}
	w := do(r, http.MethodDelete, "/api/chats", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"deleted":2,"success":true}` {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestRootAndHealth(t *testing.T) {
	r := newTestRouter(svc.LocalProvider{})
	w := do(r, http.MethodGet, "/", "")
	if strings.TrimSpace(w.Body.String()) != `{"message":"Skynet backend running"}` {
		t.Fatalf("unexpected root body %s", w.Body.String())
	}
	w = do(r, http.MethodGet, "/healthz", "")
	h := decode[map[string]string](t, w)
	if w.Code != http.StatusOK || h["status"] != "ok" || h["store"] != "memory" || h["provider"] != "local" {
		t.Fatalf("unexpected health %d %v", w.Code, h)
	}
}

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.name != "" {
				out = append(out, cur)
			}
			cur = sseEvent{}
		}
	}
	return out
}

func TestSendMessageStream(t *testing.T) {
	r := newTestRouter(svc.LocalProvider{})
	w := do(r, http.MethodPost, "/api/chat/stream", `{"message":"stream me","chatId":"s1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := readSSE(t, w.Body.String())
	if len(events) < 3 || events[0].name != "chat" || events[len(events)-1].name != "done" {
		t.Fatalf("unexpected events %+v", events)
	}
	if events[0].data != `{"chatId":"s1"}` {
		t.Fatalf("unexpected chat event %s", events[0].data)
	}
	var text strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		var chunk string
		if ev.name != "delta" || json.Unmarshal([]byte(ev.data), &chunk) != nil {
			t.Fatalf("unexpected delta %+v", ev)
		}
		text.WriteString(chunk)
	}

	got := decode[map[string]any](t, do(r, http.MethodGet, "/api/chats/s1", ""))
	msgs := got["messages"].([]any)
	if msgs[1].(map[string]any)["content"] != text.String() {
		t.Fatalf("stored answer %v differs from streamed %q", msgs[1], text.String())
	}
}

func TestSendMessageStreamErrors(t *testing.T) {
	w := do(newTestRouter(svc.LocalProvider{}), http.MethodPost, "/api/chat/stream", `{"message":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected plain 400 before streaming, got %d", w.Code)
	}

	r := newTestRouter(failingProvider{})
	w = do(r, http.MethodPost, "/api/chat/stream", `{"message":"hi","chatId":"x"}`)
	events := readSSE(t, w.Body.String())
	if len(events) != 2 || events[0].name != "chat" || events[1].name != "error" {
		t.Fatalf("unexpected events %+v", events)
	}
	if events[1].data != `{"error":"failed to process the request"}` {
		t.Fatalf("unexpected error event %s", events[1].data)
	}
	if w := do(r, http.MethodGet, "/api/chats/x", ""); w.Code != http.StatusNotFound {
		t.Fatalf("failed stream must not store the chat, got %d", w.Code)
	}
}
