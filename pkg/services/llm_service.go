package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"Skynet/pkg/apperr"
	"Skynet/pkg/cache"
	"Skynet/pkg/metrics"
)

type LLMConfig struct {
	// Models are tried in order; the first is the primary.
	Models         []string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration

	BreakerMaxFailures int
	BreakerTimeout     time.Duration

	// Cache is optional. Only single-message prompts are cached.
	Cache    *cache.Cache
	CacheTTL time.Duration
}

// LLMService adds retry, model fallback, a circuit breaker and caching on top
// of a Provider.
type LLMService struct {
	provider Provider
	cfg      LLMConfig
	breaker  *gobreaker.CircuitBreaker
	log      *zap.Logger
}

func NewLLMService(p Provider, cfg LLMConfig, log *zap.Logger) *LLMService {
	if log == nil {
		log = zap.NewNop()
	}
	models := cfg.Models[:0:0]
	for _, m := range cfg.Models {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	cfg.Models = models
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	maxFailures := uint32(5)
	if cfg.BreakerMaxFailures > 0 {
		maxFailures = uint32(cfg.BreakerMaxFailures)
	}

	st := gobreaker.Settings{
		Name:        "llm-" + p.Name(),
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// caller cancellations and local misconfiguration say nothing about upstream health
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, apperr.ErrNoAPIKey)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &LLMService{
		provider: p,
		cfg:      cfg,
		breaker:  gobreaker.NewCircuitBreaker(st),
		log:      log,
	}
}

func (s *LLMService) ProviderName() string { return s.provider.Name() }
func (s *LLMService) Configured() bool     { return s.provider.Configured() }

func (s *LLMService) Model() string {
	if len(s.cfg.Models) == 0 {
		return ""
	}
	return s.cfg.Models[0]
}

// Complete returns the first successful answer across the model chain.
func (s *LLMService) Complete(ctx context.Context, msgs []ChatMessage) (string, error) {
	return s.run(ctx, msgs, nil)
}

// Stream is Complete with incremental output. Once a chunk has been emitted
// the call is not retried, and on failure the partial text is returned with
// the error.
func (s *LLMService) Stream(ctx context.Context, msgs []ChatMessage, onDelta func(string)) (string, error) {
	if onDelta == nil {
		onDelta = func(string) {}
	}
	return s.run(ctx, msgs, onDelta)
}

func (s *LLMService) run(ctx context.Context, msgs []ChatMessage, onDelta func(string)) (string, error) {
	if !s.Configured() {
		return "", apperr.ErrNoAPIKey
	}
	if len(s.cfg.Models) == 0 {
		return "", errors.New("no model configured")
	}

	key, cacheable := s.cacheKey(msgs)
	if cacheable {
		if text, ok := s.cfg.Cache.GetChatResponse(key); ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			if onDelta != nil {
				onDelta(text)
			}
			return text, nil
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	var (
		lastErr error
		partial string
	)
	for _, model := range s.cfg.Models {
		text, emitted, err := s.callWithRetry(ctx, model, msgs, onDelta)
		if err == nil {
			// the key names the primary model; fallback answers stay uncached
			if cacheable && model == s.Model() {
				s.cfg.Cache.SetChatResponse(key, text, cache.StatusCompleted, s.cfg.CacheTTL)
			}
			return text, nil
		}
		lastErr, partial = err, text
		s.log.Warn("llm model failed", zap.String("provider", s.ProviderName()), zap.String("model", model), zap.Error(err))
		if emitted || ctx.Err() != nil || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, apperr.ErrNoAPIKey) {
			break
		}
	}
	return partial, fmt.Errorf("%s: %w", s.ProviderName(), lastErr)
}

// callWithRetry runs one model with exponential backoff on retriable errors.
// emitted reports whether any chunk reached onDelta.
func (s *LLMService) callWithRetry(ctx context.Context, model string, msgs []ChatMessage, onDelta func(string)) (string, bool, error) {
	var (
		text    string
		emitted bool
	)
	op := func() error {
		start := time.Now()
		callCtx, cancel := s.withTimeout(ctx)
		defer cancel()

		out, err := s.breaker.Execute(func() (any, error) {
			if onDelta == nil {
				return s.provider.Complete(callCtx, model, msgs)
			}
			return s.provider.Stream(callCtx, model, msgs, func(d string) {
				emitted = true
				onDelta(d)
			})
		})
		text, _ = out.(string)
		metrics.LLMDuration.WithLabelValues(s.ProviderName()).Observe(time.Since(start).Seconds())
		metrics.LLMRequests.WithLabelValues(s.ProviderName(), model, outcome(err)).Inc()

		if err != nil && !emitted && isRetriable(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.cfg.InitialBackoff
	exp.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.cfg.MaxRetries)), ctx)
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		s.log.Info("llm retry", zap.String("model", model), zap.Duration("wait", wait), zap.Error(err))
	})
	return text, emitted, err
}

func (s *LLMService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

// cacheKey only keys prompts that are a lone user message, so answers that
// depend on history or a system prompt are never shared.
func (s *LLMService) cacheKey(msgs []ChatMessage) (string, bool) {
	if s.cfg.Cache == nil || len(msgs) != 1 || msgs[0].Role != RoleUser {
		return "", false
	}
	return cache.ChatKey(s.ProviderName(), s.Model(), msgs[0].Content), true
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
