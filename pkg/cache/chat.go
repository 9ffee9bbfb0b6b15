package cache

import (
	"strings"
	"time"
)

// ResponseStatus tells how a completion ended.
type ResponseStatus int

const (
	StatusCompleted ResponseStatus = iota
	StatusCanceled
	StatusFailed
)

// ChatResponse is what the completion cache stores.
type ChatResponse struct {
	Text     string
	Status   ResponseStatus
	StoredAt time.Time
}

// FallbackAnswer is the placeholder sent when a stream produced nothing; it
// must never be served from cache.
const FallbackAnswer = "Sorry, no answer yet."

func cacheable(text string) bool {
	t := strings.TrimSpace(text)
	return t != "" && t != FallbackAnswer
}

// SetChatResponse stores text only for completed, non-empty answers.
func (c *Cache) SetChatResponse(key, text string, status ResponseStatus, ttl time.Duration) {
	if status != StatusCompleted || !cacheable(text) {
		return
	}
	c.Set(key, ChatResponse{Text: text, Status: status, StoredAt: time.Now()}, ttl)
}

// GetChatResponse returns a cached answer. Plain strings stored with Set are
// accepted too.
func (c *Cache) GetChatResponse(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	switch r := v.(type) {
	case ChatResponse:
		if r.Status == StatusCompleted && cacheable(r.Text) {
			return r.Text, true
		}
	case string:
		if cacheable(r) {
			return r, true
		}
	}
	return "", false
}

// ChatKey keys an answer by provider, model and the normalized question.
func ChatKey(provider, model, message string) string {
	return KeyFromStrings("chat-final", provider, model, strings.ToLower(strings.TrimSpace(message)))
}
