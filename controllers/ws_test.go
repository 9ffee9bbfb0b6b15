package controllers

import (
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"Skynet/middleware"
	svc "Skynet/pkg/services"
)

type wsReply struct {
	Type    string `json:"type"`
	ChatID  string `json:"chatId"`
	Data    string `json:"data"`
	OK      bool   `json:"ok"`
	Stopped bool   `json:"stopped"`
	Error   string `json:"error"`
}

func dialWS(t *testing.T, p svc.Provider) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(newTestRouter(p))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntilDone collects replies up to the first done or error.
func readUntilDone(t *testing.T, conn *websocket.Conn) []wsReply {
	t.Helper()
	var out []wsReply
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var r wsReply
		if err := conn.ReadJSON(&r); err != nil {
			t.Fatalf("read: %v (got %+v)", err, out)
		}
		out = append(out, r)
		if r.Type == "done" || r.Type == "error" {
			return out
		}
	}
}

func TestChatWSExchange(t *testing.T) {
	conn := dialWS(t, svc.LocalProvider{})

	if err := conn.WriteJSON(map[string]string{"type": "start", "message": "hello ws", "chatId": "w1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	replies := readUntilDone(t, conn)
	if replies[0].Type != "chat" || replies[0].ChatID != "w1" {
		t.Fatalf("expected chat reply first, got %+v", replies[0])
	}
	last := replies[len(replies)-1]
	if last.Type != "done" || !last.OK || last.Stopped {
		t.Fatalf("expected clean done, got %+v", last)
	}
	var text strings.Builder
	for _, r := range replies[1 : len(replies)-1] {
		text.WriteString(r.Data)
	}
	if !strings.Contains(text.String(), "hello ws") {
		t.Fatalf("unexpected streamed text %q", text.String())
	}

	// the same connection serves another exchange
	if err := conn.WriteJSON(map[string]string{"type": "start", "message": "second", "chatId": "w1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if replies := readUntilDone(t, conn); replies[len(replies)-1].Type != "done" {
		t.Fatalf("expected second exchange to finish, got %+v", replies)
	}
}

func TestChatWSErrors(t *testing.T) {
	conn := dialWS(t, svc.LocalProvider{})

	_ = conn.WriteJSON(map[string]string{"type": "start", "message": "  "})
	if r := readUntilDone(t, conn); r[0].Type != "error" || r[0].Error != "empty message" {
		t.Fatalf("expected empty message error, got %+v", r)
	}

	_ = conn.WriteJSON(map[string]string{"type": "bogus"})
	if r := readUntilDone(t, conn); r[0].Error != "unknown message type" {
		t.Fatalf("expected unknown type error, got %+v", r)
	}
}

// slowProvider emits one chunk and then waits for cancellation.
type slowProvider struct{}

func (slowProvider) Name() string     { return "slow" }
func (slowProvider) Configured() bool { return true }
func (slowProvider) Complete(ctx context.Context, _ string, _ []svc.ChatMessage) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
func (slowProvider) Stream(ctx context.Context, _ string, _ []svc.ChatMessage, onDelta func(string)) (string, error) {
	onDelta("partial")
	<-ctx.Done()
	return "partial", ctx.Err()
}

func TestChatWSStop(t *testing.T) {
	conn := dialWS(t, slowProvider{})

	_ = conn.WriteJSON(map[string]string{"type": "start", "message": "long one", "chatId": "w2"})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for _, want := range []string{"chat", "delta"} {
		var r wsReply
		if err := conn.ReadJSON(&r); err != nil || r.Type != want {
			t.Fatalf("expected %s, got %+v err=%v", want, r, err)
		}
	}

	_ = conn.WriteJSON(map[string]string{"type": "stop"})
	replies := readUntilDone(t, conn)
	last := replies[len(replies)-1]
	if last.Type != "done" || !last.Stopped {
		t.Fatalf("expected stopped done, got %+v", last)
	}
}

func TestChatWSStopRightAfterStart(t *testing.T) {
	for i := 0; i < 10; i++ {
		conn := dialWS(t, slowProvider{})
		_ = conn.WriteJSON(map[string]string{"type": "start", "message": "long one", "chatId": "w3"})
		_ = conn.WriteJSON(map[string]string{"type": "stop"})

		replies := readUntilDone(t, conn)
		last := replies[len(replies)-1]
		if last.Type != "done" || !last.Stopped {
			t.Fatalf("run %d: expected stopped done, got %+v", i, replies)
		}
		conn.Close()
	}
}

func TestChatWSRateLimitsEachStart(t *testing.T) {
	conn := dialWS(t, svc.LocalProvider{})
	middleware.SetRateLimitConfig(time.Minute, 2, 2)
	t.Cleanup(func() { middleware.SetRateLimitConfig(10*time.Second, 5, 2) })

	for i := 0; i < 2; i++ {
		_ = conn.WriteJSON(map[string]string{"type": "start", "message": "hi " + strconv.Itoa(i)})
		if r := readUntilDone(t, conn); r[len(r)-1].Type != "done" {
			t.Fatalf("start %d: expected done, got %+v", i, r)
		}
	}
	_ = conn.WriteJSON(map[string]string{"type": "start", "message": "one too many"})
	if r := readUntilDone(t, conn); r[0].Type != "error" || r[0].Error != "too many requests" {
		t.Fatalf("expected rate limit error, got %+v", r)
	}
}
