package services

import (
	"context"
	"fmt"
	"time"

	"Skynet/pkg/cache"
	"Skynet/pkg/config"
)

// NewProvider builds the provider selected by LLM_PROVIDER.
func NewProvider(ctx context.Context) (Provider, error) {
	switch config.LLMProvider {
	case "", "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:      config.LLMAPIKey,
			BaseURL:     config.LLMBaseURL,
			Temperature: config.LLMTemperature,
			MaxTokens:   config.LLMMaxTokens,
		}), nil
	case "gemini":
		return NewGeminiProvider(ctx, config.GeminiAPIKey, config.LLMTemperature, config.LLMMaxTokens)
	case "local":
		return LocalProvider{Delay: 20 * time.Millisecond}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", config.LLMProvider)
	}
}

// ConfiguredModels is the model chain for the active provider.
func ConfiguredModels() []string {
	switch config.LLMProvider {
	case "gemini":
		return []string{config.GeminiModel, config.LLMFallbackModel}
	case "local":
		return []string{"local"}
	default:
		return []string{config.LLMModel, config.LLMFallbackModel}
	}
}

// ConfiguredLLM assembles the LLMService settings from config. c may be nil
// to disable caching.
func ConfiguredLLM(c *cache.Cache) LLMConfig {
	return LLMConfig{
		Models:             ConfiguredModels(),
		Timeout:            config.LLMTimeout,
		MaxRetries:         config.LLMMaxRetries,
		BreakerMaxFailures: config.BreakerMaxFailures,
		BreakerTimeout:     time.Duration(config.BreakerTimeoutSeconds) * time.Second,
		Cache:              c,
		CacheTTL:           time.Duration(config.ChatCacheTTLSeconds) * time.Second,
	}
}
