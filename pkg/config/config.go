package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	AppEnv       string
	IsStaging    bool
	IsProduction bool
	Port         string

	// LLM upstream
	LLMProvider        string
	LLMBaseURL         string
	LLMAPIKey          string
	LLMModel           string
	LLMFallbackModel   string
	LLMTimeout         time.Duration
	LLMMaxRetries      int
	LLMTemperature     float64
	LLMMaxTokens       int
	LLMHistoryMessages int
	LLMSystemPrompt    string
	GeminiAPIKey       string
	GeminiModel        string

	// storage
	StoreDriver string
	StoreDSN    string

	CORSAllowOrigins []string
	APIJWTSecret     string
	MetricsEnabled   bool

	// runtime tunables
	RateLimitWindowSeconds int
	RateLimitCapacity      int
	ClientConcurrencyLimit int
	DuplicateWindowSeconds int
	ChatCacheTTLSeconds    int
	ChatCacheMaxItems      int
	BreakerMaxFailures     int
	BreakerTimeoutSeconds  int

	LogLevel  string
	LogFormat string
	LogFile   string
)

const (
	DefaultBaseURL     = "https://router.huggingface.co/v1"
	DefaultModel       = "deepseek-ai/DeepSeek-V3.2-Exp:novita"
	DefaultGeminiModel = "gemini-2.0-flash"
)

var (
	validEnvs      = []string{"development", "staging", "production"}
	validProviders = []string{"openai", "gemini", "local"}
	validDrivers   = []string{"memory", "sqlite", "mysql", "bolt"}
)

// loadDotEnv loads .env outside production. A missing file is fine.
func loadDotEnv() error {
	if strings.TrimSpace(os.Getenv("APP_ENV")) == "production" {
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func defaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LLM_PROVIDER", "openai")
	v.SetDefault("LLM_BASE_URL", DefaultBaseURL)
	v.SetDefault("LLM_MODEL", DefaultModel)
	v.SetDefault("LLM_TIMEOUT_SECONDS", 60)
	v.SetDefault("LLM_MAX_RETRIES", 2)
	v.SetDefault("LLM_TEMPERATURE", 0.0)
	v.SetDefault("LLM_MAX_TOKENS", 0)
	v.SetDefault("LLM_HISTORY_MESSAGES", 0)
	v.SetDefault("GEMINI_MODEL", DefaultGeminiModel)
	v.SetDefault("STORE_DRIVER", "memory")
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 10)
	v.SetDefault("RATE_LIMIT_CAPACITY", 5)
	v.SetDefault("CLIENT_CONCURRENCY_LIMIT", 2)
	v.SetDefault("DUPLICATE_WINDOW_SECONDS", 0)
	v.SetDefault("CHAT_CACHE_TTL_SECONDS", 600)
	v.SetDefault("CHAT_CACHE_MAX_ITEMS", 500)
	v.SetDefault("BREAKER_MAX_FAILURES", 5)
	v.SetDefault("BREAKER_TIMEOUT_SECONDS", 30)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Load reads .env (non-production) and the process environment into the
// package variables. It can be called again after the environment changes.
func Load() error {
	if err := loadDotEnv(); err != nil {
		return err
	}

	v := viper.New()
	v.AutomaticEnv()
	defaults(v)

	AppEnv = strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV")))
	if !slices.Contains(validEnvs, AppEnv) {
		return fmt.Errorf("APP_ENV must be one of %v, got %q", validEnvs, AppEnv)
	}
	IsStaging = AppEnv == "staging"
	IsProduction = AppEnv == "production"

	Port = strings.TrimSpace(v.GetString("PORT"))

	LLMProvider = strings.ToLower(strings.TrimSpace(v.GetString("LLM_PROVIDER")))
	if !slices.Contains(validProviders, LLMProvider) {
		return fmt.Errorf("LLM_PROVIDER must be one of %v, got %q", validProviders, LLMProvider)
	}
	LLMBaseURL = strings.TrimSpace(v.GetString("LLM_BASE_URL"))
	// LLM_API_KEY wins, then HF_TOKEN, then OPENAI_API_KEY
	LLMAPIKey = firstNonEmpty(v.GetString("LLM_API_KEY"), v.GetString("HF_TOKEN"), v.GetString("OPENAI_API_KEY"))
	LLMModel = strings.TrimSpace(v.GetString("LLM_MODEL"))
	LLMFallbackModel = strings.TrimSpace(v.GetString("LLM_FALLBACK_MODEL"))
	LLMTimeout = time.Duration(v.GetInt("LLM_TIMEOUT_SECONDS")) * time.Second
	LLMMaxRetries = v.GetInt("LLM_MAX_RETRIES")
	LLMTemperature = v.GetFloat64("LLM_TEMPERATURE")
	LLMMaxTokens = v.GetInt("LLM_MAX_TOKENS")
	LLMHistoryMessages = v.GetInt("LLM_HISTORY_MESSAGES")
	LLMSystemPrompt = strings.TrimSpace(v.GetString("LLM_SYSTEM_PROMPT"))
	GeminiAPIKey = strings.TrimSpace(v.GetString("GEMINI_API_KEY"))
	GeminiModel = strings.TrimSpace(v.GetString("GEMINI_MODEL"))

	StoreDriver = strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER")))
	if !slices.Contains(validDrivers, StoreDriver) {
		return fmt.Errorf("STORE_DRIVER must be one of %v, got %q", validDrivers, StoreDriver)
	}
	StoreDSN = strings.TrimSpace(v.GetString("STORE_DSN"))

	CORSAllowOrigins = splitList(v.GetString("CORS_ALLOW_ORIGINS"))
	APIJWTSecret = v.GetString("API_JWT_SECRET")
	MetricsEnabled = v.GetBool("METRICS_ENABLED")

	RateLimitWindowSeconds = v.GetInt("RATE_LIMIT_WINDOW_SECONDS")
	RateLimitCapacity = v.GetInt("RATE_LIMIT_CAPACITY")
	ClientConcurrencyLimit = v.GetInt("CLIENT_CONCURRENCY_LIMIT")
	DuplicateWindowSeconds = v.GetInt("DUPLICATE_WINDOW_SECONDS")
	ChatCacheTTLSeconds = v.GetInt("CHAT_CACHE_TTL_SECONDS")
	ChatCacheMaxItems = v.GetInt("CHAT_CACHE_MAX_ITEMS")
	BreakerMaxFailures = v.GetInt("BREAKER_MAX_FAILURES")
	BreakerTimeoutSeconds = v.GetInt("BREAKER_TIMEOUT_SECONDS")

	LogLevel = v.GetString("LOG_LEVEL")
	LogFormat = v.GetString("LOG_FORMAT")
	LogFile = strings.TrimSpace(v.GetString("LOG_FILE"))

	return nil
}

// HasCredentials reports whether the active provider has what it needs to call upstream.
func HasCredentials() bool {
	switch LLMProvider {
	case "gemini":
		return GeminiAPIKey != ""
	case "local":
		return true
	default:
		return LLMAPIKey != ""
	}
}

func firstNonEmpty(vals ...string) string {
	for _, s := range vals {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
