package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"Skynet/middleware"
	"Skynet/pkg/apperr"
	svc "Skynet/pkg/services"
)

// writeError renders err as {"error": msg} with its mapped status.
func writeError(c *gin.Context, err error) {
	code, msg := apperr.Status(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

func bindSend(c *gin.Context) (svc.SendRequest, error) {
	var req svc.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// no body at all is treated like a missing message
		if errors.Is(err, io.EOF) {
			return req, apperr.ErrEmptyMessage
		}
		return req, fmt.Errorf("%w: %v", apperr.ErrBadRequest, err)
	}
	return req, nil
}

// guard applies the duplicate guard and the per-client concurrency slot.
func guard(c *gin.Context, req svc.SendRequest) (release func(), err error) {
	key := middleware.ClientKey(c)
	if strings.TrimSpace(req.Message) != "" && !middleware.DuplicateGuard(key, req.ChatID+"\x00"+req.Message) {
		return nil, apperr.ErrDuplicate
	}
	return middleware.AcquireSlot(c.Request.Context(), key)
}

func Root() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Skynet backend running"})
	}
}

// Health reports the store driver and provider; a failing store read turns it 503.
func Health(chats *svc.ChatService, storeDriver string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if _, err := chats.List(c.Request.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "store": storeDriver, "provider": chats.ProviderName()})
	}
}

// SendMessage handles POST /api/chat.
func SendMessage(chats *svc.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := bindSend(c)
		if err != nil {
			writeError(c, err)
			return
		}
		release, err := guard(c, req)
		if err != nil {
			writeError(c, err)
			return
		}
		defer release()

		res, err := chats.SendMessage(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// SendMessageStream streams the reply using SSE.
// Events:
// - event: chat (once) with the chat id
// - event: delta (multiple) with JSON-encoded text chunks
// - event: done (once) when finished
// - event: error if the upstream call fails after the stream started
func SendMessageStream(chats *svc.ChatService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := bindSend(c)
		if err != nil {
			writeError(c, err)
			return
		}
		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			writeError(c, errors.New("streaming unsupported"))
			return
		}
		release, err := guard(c, req)
		if err != nil {
			writeError(c, err)
			return
		}
		defer release()

		started := false
		event := func(name string, payload any) {
			b, _ := json.Marshal(payload)
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, b)
			flusher.Flush()
		}
		onStart := func(chatID string) {
			started = true
			h := c.Writer.Header()
			h.Set("Content-Type", "text/event-stream")
			h.Set("Cache-Control", "no-cache")
			h.Set("Connection", "keep-alive")
			h.Set("X-Accel-Buffering", "no") // nginx buffering off
			c.Status(http.StatusOK)
			event("chat", gin.H{"chatId": chatID})
		}
		onDelta := func(chunk string) { event("delta", chunk) }

		res, err := chats.StreamMessage(c.Request.Context(), req, onStart, onDelta)
		if err != nil {
			if !started {
				writeError(c, err)
				return
			}
			_, msg := apperr.Status(err)
			log.Warn("sse stream failed", zap.Error(err))
			event("error", gin.H{"error": msg})
			return
		}
		if res.Stopped {
			// the client went away; nobody is listening for done
			return
		}
		event("done", gin.H{"ok": true})
	}
}

func ListChats(chats *svc.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := chats.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func GetChat(chats *svc.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		chat, err := chats.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, chat)
	}
}

func DeleteChat(chats *svc.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := chats.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// DeleteAllChats clears every chat.
func DeleteAllChats(chats *svc.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := chats.DeleteAll(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
	}
}
