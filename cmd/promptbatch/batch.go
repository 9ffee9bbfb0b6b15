package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	svc "Skynet/pkg/services"
)

type ResultItem struct {
	Query      string `json:"query"`
	Response   string `json:"response"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Timestamp  string `json:"timestamp"`
}

type RunSummary struct {
	RunID        string       `json:"run_id"`
	StartedAt    string       `json:"started_at"`
	EndedAt      string       `json:"ended_at"`
	Env          string       `json:"env"`
	Provider     string       `json:"provider"`
	Model        string       `json:"model"`
	SystemPrompt bool         `json:"system_prompt"`
	Only         string       `json:"only,omitempty"`
	TotalQueries int          `json:"total_queries"`
	Failures     int          `json:"failures"`
	Results      []ResultItem `json:"results"`
}

// parseQueries accepts either ["q1", "q2", ...] or [{"q": "..."}, ...].
func parseQueries(data []byte) ([]string, error) {
	var arrAny []any
	if err := json.Unmarshal(data, &arrAny); err != nil {
		return nil, fmt.Errorf("invalid queries file: %w", err)
	}
	out := make([]string, 0, len(arrAny))
	for _, v := range arrAny {
		var q string
		switch t := v.(type) {
		case string:
			q = t
		case map[string]any:
			q, _ = t["q"].(string)
		}
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("queries file is empty or malformed")
	}
	return out, nil
}

// filterQueries keeps the queries selected by only: comma separated 1-based
// indexes or case-insensitive substrings. An empty selection keeps everything.
func filterQueries(queries []string, only string) []string {
	only = strings.TrimSpace(only)
	if only == "" {
		return queries
	}
	wanted := map[int]bool{}
	var subs []string
	for _, tok := range strings.Split(only, ",") {
		v := strings.ToLower(strings.TrimSpace(tok))
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			if n >= 1 && n <= len(queries) {
				wanted[n-1] = true
			}
			continue
		}
		subs = append(subs, v)
	}
	var out []string
	for i, q := range queries {
		keep := wanted[i]
		ql := strings.ToLower(q)
		for _, sub := range subs {
			if keep {
				break
			}
			keep = strings.Contains(ql, sub)
		}
		if keep {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return queries
	}
	return out
}

// runQuery sends one query, optionally behind the system prompt.
func runQuery(ctx context.Context, llm *svc.LLMService, q, systemPrompt string, timeout time.Duration) ResultItem {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var msgs []svc.ChatMessage
	if systemPrompt != "" {
		msgs = append(msgs, svc.ChatMessage{Role: svc.RoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, svc.ChatMessage{Role: svc.RoleUser, Content: q})

	t0 := time.Now()
	resp, err := llm.Complete(ctx, msgs)
	r := ResultItem{
		Query:      q,
		Response:   strings.TrimSpace(resp),
		DurationMs: time.Since(t0).Milliseconds(),
		Provider:   llm.ProviderName(),
		Model:      llm.Model(),
		Timestamp:  time.Now().Format(time.RFC3339),
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func writeCSV(path string, items []ResultItem) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	_ = w.Write([]string{"query", "provider", "model", "duration_ms", "error", "response"})
	for _, it := range items {
		_ = w.Write([]string{
			it.Query,
			it.Provider,
			it.Model,
			strconv.FormatInt(it.DurationMs, 10),
			it.Error,
			it.Response,
		})
	}
	w.Flush()
	return w.Error()
}
