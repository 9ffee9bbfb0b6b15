package services

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// LocalProvider answers without any network call. It is meant for offline
// development and for the test suites.
type LocalProvider struct {
	// Delay between streamed chunks.
	Delay time.Duration
}

func (LocalProvider) Name() string     { return "local" }
func (LocalProvider) Configured() bool { return true }

func (LocalProvider) Complete(ctx context.Context, model string, msgs []ChatMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return localAnswer(msgs), nil
}

func (p LocalProvider) Stream(ctx context.Context, model string, msgs []ChatMessage, onDelta func(string)) (string, error) {
	full := []rune(localAnswer(msgs))
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var b strings.Builder
	for i := 0; i < len(full); {
		if err := ctx.Err(); err != nil {
			return b.String(), err
		}
		// chunks are cut on rune boundaries so every delta is valid UTF-8
		step := 8 + r.Intn(16)
		if i+step > len(full) {
			step = len(full) - i
		}
		part := string(full[i : i+step])
		b.WriteString(part)
		if onDelta != nil {
			onDelta(part)
		}
		i += step
		if p.Delay > 0 {
			sleepWithContext(ctx, p.Delay)
		}
	}
	return b.String(), nil
}

func localAnswer(msgs []ChatMessage) string {
	var last string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			last = strings.TrimSpace(msgs[i].Content)
			break
		}
	}
	if last == "" {
		last = "your question"
	}
	return fmt.Sprintf("(offline) You asked: %s", truncate(last, 200))
}
