package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"Skynet/middleware"
	"Skynet/pkg/apperr"
	"Skynet/pkg/metrics"
	svc "Skynet/pkg/services"
)

const (
	wsReadLimit    = 1 << 20 // 1MB
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS handled at HTTP level; allow WS here
		return true
	},
}

type wsInbound struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
	Title   string `json:"title"`
}

// wsExchange is a start message with its own cancelable context, created by
// readLoop so a stop arriving right after the start still reaches it.
type wsExchange struct {
	in     wsInbound
	ctx    context.Context
	cancel context.CancelFunc
}

// ChatWS handles WebSocket chat streaming. Auth (when enabled) and rate
// limiting run as middleware on the upgrade request; every start then takes
// a token from the same per-client bucket.
// Client protocol (JSON messages):
//
//	-> {type: "start", message: string, chatId?: string, title?: string}
//	<- {type: "chat", chatId: string}
//	<- {type: "delta", data: string}
//	<- {type: "done", ok: true, stopped?: true}
//	<- {type: "error", error: string}
//	-> {type: "stop"} cancels the reply in flight
//
// One connection may carry several exchanges, one at a time.
func ChatWS(chats *svc.ChatService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("ws upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()
		metrics.WSConnections.Inc()
		defer metrics.WSConnections.Dec()

		s := &wsSession{
			conn:  conn,
			chats: chats,
			log:   log.With(zap.String("client", middleware.ClientKey(c))),
			key:   middleware.ClientKey(c),
		}
		s.serve(c.Request.Context())
	}
}

type wsSession struct {
	conn  *websocket.Conn
	chats *svc.ChatService
	log   *zap.Logger
	key   string

	writeMu sync.Mutex
	busy    atomic.Bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

func (s *wsSession) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s.conn.SetReadLimit(wsReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go s.pingLoop(ctx)

	starts := make(chan wsExchange, 1)
	go s.readLoop(ctx, cancel, starts)

	for ex := range starts {
		s.handle(ex)
		s.busy.Store(false)
	}
}

// readLoop owns all reads. It hands start messages to serve and turns stop
// messages into a cancel of the reply in flight.
func (s *wsSession) readLoop(ctx context.Context, closeSession context.CancelFunc, starts chan<- wsExchange) {
	defer close(starts)
	for {
		mt, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Info("ws read ended", zap.Error(err))
			}
			closeSession()
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var in wsInbound
		if err := json.Unmarshal(msg, &in); err != nil {
			s.write(gin.H{"type": "error", "error": "invalid payload"})
			continue
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "start":
			if !middleware.Allow(s.key) {
				s.writeError(apperr.ErrRateLimited)
				continue
			}
			if !s.busy.CompareAndSwap(false, true) {
				s.write(gin.H{"type": "error", "error": "a reply is already streaming"})
				continue
			}
			exCtx, exCancel := context.WithCancel(ctx)
			s.cancelMu.Lock()
			s.cancel = exCancel
			s.cancelMu.Unlock()
			starts <- wsExchange{in: in, ctx: exCtx, cancel: exCancel}
		case "stop":
			s.stop()
		default:
			s.write(gin.H{"type": "error", "error": "unknown message type"})
		}
	}
}

func (s *wsSession) handle(ex wsExchange) {
	ctx, in := ex.ctx, ex.in
	defer func() {
		s.cancelMu.Lock()
		s.cancel = nil
		s.cancelMu.Unlock()
		ex.cancel()
	}()

	if strings.TrimSpace(in.Message) != "" && !middleware.DuplicateGuard(s.key, in.ChatID+"\x00"+in.Message) {
		s.writeError(apperr.ErrDuplicate)
		return
	}
	release, err := middleware.AcquireSlot(ctx, s.key)
	if err != nil {
		// stopped while waiting for a slot
		s.write(gin.H{"type": "done", "ok": true, "stopped": true})
		return
	}
	defer release()

	req := svc.SendRequest{Message: in.Message, ChatID: in.ChatID, Title: in.Title}
	res, err := s.chats.StreamMessage(ctx, req,
		func(chatID string) { s.write(gin.H{"type": "chat", "chatId": chatID}) },
		func(chunk string) { s.write(gin.H{"type": "delta", "data": chunk}) },
	)
	if err != nil {
		s.log.Warn("ws stream failed", zap.Error(err))
		s.writeError(err)
		return
	}
	if res.Stopped {
		s.write(gin.H{"type": "done", "ok": true, "stopped": true})
		return
	}
	s.write(gin.H{"type": "done", "ok": true})
}

func (s *wsSession) stop() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *wsSession) pingLoop(ctx context.Context) {
	t := time.NewTicker(wsPingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *wsSession) write(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = s.conn.WriteJSON(v)
}

func (s *wsSession) writeError(err error) {
	_, msg := apperr.Status(err)
	s.write(gin.H{"type": "error", "error": msg})
}
