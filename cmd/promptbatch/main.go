// Command promptbatch runs a list of queries through the configured LLM and
// writes the answers as JSON and CSV, for comparing models or prompts offline.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"Skynet/pkg/config"
	"Skynet/pkg/logger"
	svc "Skynet/pkg/services"
)

func main() {
	if err := config.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	lg := logger.New(logger.Config{Level: config.LogLevel, Format: "console"})
	defer func() { _ = lg.Sync() }()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PROMPTBATCH_QUERIES", "queries.json")
	v.SetDefault("PROMPTBATCH_OUT_DIR", "results")
	v.SetDefault("PROMPTBATCH_TIMEOUT_SEC", 40)
	// pause between calls to stay under upstream rate limits
	v.SetDefault("PROMPTBATCH_SLEEP_MS", 600)

	if !config.HasCredentials() {
		lg.Warn("no API key for provider; every query will fail", zap.String("provider", config.LLMProvider))
	}

	data, err := os.ReadFile(v.GetString("PROMPTBATCH_QUERIES"))
	if err != nil {
		lg.Fatal("read queries", zap.Error(err))
	}
	queries, err := parseQueries(data)
	if err != nil {
		lg.Fatal("parse queries", zap.Error(err))
	}
	only := v.GetString("PROMPTBATCH_ONLY")
	queries = filterQueries(queries, only)

	ctx := context.Background()
	provider, err := svc.NewProvider(ctx)
	if err != nil {
		lg.Fatal("create provider", zap.Error(err))
	}
	// no cache: every query must reach the model
	llm := svc.NewLLMService(provider, svc.ConfiguredLLM(nil), lg.Named("llm"))

	started := time.Now()
	runID := fmt.Sprintf("run-%s-%s", started.Format("20060102-150405"), uuid.NewString()[:8])
	timeout := time.Duration(v.GetInt("PROMPTBATCH_TIMEOUT_SEC")) * time.Second
	sleep := time.Duration(v.GetInt("PROMPTBATCH_SLEEP_MS")) * time.Millisecond

	results := make([]ResultItem, 0, len(queries))
	failures := 0
	for i, q := range queries {
		r := runQuery(ctx, llm, q, config.LLMSystemPrompt, timeout)
		if r.Error != "" {
			failures++
		}
		results = append(results, r)
		lg.Info("query done", zap.Int("n", i+1), zap.Int("of", len(queries)),
			zap.Int64("ms", r.DurationMs), zap.Bool("failed", r.Error != ""))
		if i < len(queries)-1 && sleep > 0 {
			time.Sleep(sleep)
		}
	}

	outDir := v.GetString("PROMPTBATCH_OUT_DIR")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		lg.Fatal("create results dir", zap.Error(err))
	}
	stamp := time.Now().Format("20060102-150405")
	jsonPath := filepath.Join(outDir, fmt.Sprintf("promptbatch-%s.json", stamp))
	csvPath := filepath.Join(outDir, fmt.Sprintf("promptbatch-%s.csv", stamp))

	summary := RunSummary{
		RunID:        runID,
		StartedAt:    started.Format(time.RFC3339),
		EndedAt:      time.Now().Format(time.RFC3339),
		Env:          config.AppEnv,
		Provider:     llm.ProviderName(),
		Model:        llm.Model(),
		SystemPrompt: config.LLMSystemPrompt != "",
		Only:         only,
		TotalQueries: len(queries),
		Failures:     failures,
		Results:      results,
	}
	if err := writeJSON(jsonPath, summary); err != nil {
		lg.Fatal("write JSON", zap.Error(err))
	}
	if err := writeCSV(csvPath, results); err != nil {
		lg.Fatal("write CSV", zap.Error(err))
	}
	lg.Info("saved", zap.String("json", jsonPath), zap.String("csv", csvPath))
}
