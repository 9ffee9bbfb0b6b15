package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"Skynet/pkg/apperr"
)

// OpenAIConfig points the provider at any OpenAI-compatible endpoint; the
// default is the Hugging Face router.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

type OpenAIProvider struct {
	client      openai.Client
	apiKey      string
	temperature float64
	maxTokens   int
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// LLMService owns retries
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (p *OpenAIProvider) Name() string     { return "openai" }
func (p *OpenAIProvider) Configured() bool { return p.apiKey != "" }

func (p *OpenAIProvider) Complete(ctx context.Context, model string, msgs []ChatMessage) (string, error) {
	params, err := p.params(model, msgs)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, model string, msgs []ChatMessage, onDelta func(string)) (string, error) {
	params, err := p.params(model, msgs)
	if err != nil {
		return "", err
	}
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var b strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		d := chunk.Choices[0].Delta.Content
		if d == "" {
			continue
		}
		b.WriteString(d)
		if onDelta != nil {
			onDelta(d)
		}
	}
	return b.String(), stream.Err()
}

func (p *OpenAIProvider) params(model string, msgs []ChatMessage) (openai.ChatCompletionNewParams, error) {
	if !p.Configured() {
		return openai.ChatCompletionNewParams{}, apperr.ErrNoAPIKey
	}
	if strings.TrimSpace(model) == "" {
		return openai.ChatCompletionNewParams{}, errors.New("model is required")
	}
	if len(msgs) == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("messages are required")
	}

	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: out,
	}
	if p.temperature > 0 {
		params.Temperature = openai.Float(p.temperature)
	}
	if p.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.maxTokens))
	}
	return params, nil
}
