package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
)

// Upstream roles. Stored "ai" messages are sent as RoleAssistant.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string
	Content string
}

// Provider is one LLM backend.
type Provider interface {
	Name() string
	// Configured reports whether the provider has the credentials it needs.
	Configured() bool
	Complete(ctx context.Context, model string, msgs []ChatMessage) (string, error)
	// Stream calls onDelta per chunk and returns the accumulated text, which
	// may be partial when err != nil.
	Stream(ctx context.Context, model string, msgs []ChatMessage, onDelta func(string)) (string, error)
}

// isRetriable reports upstream errors worth another attempt: rate limits,
// quota and 5xx/unavailable responses.
func isRetriable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	e := strings.ToLower(err.Error())
	for _, s := range []string{"status 429", "error 429", "resource_exhausted", "quota", "status 503", "error 503", "error 500", "unavailable"} {
		if strings.Contains(e, s) {
			return true
		}
	}
	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
