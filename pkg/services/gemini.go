package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"Skynet/pkg/apperr"
)

type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GeminiProvider talks to the Gemini API through the genai SDK.
type GeminiProvider struct {
	models      geminiModels
	apiKey      string
	temperature float64
	maxTokens   int
}

// NewGeminiProvider returns an unconfigured provider when apiKey is empty
// so a missing key does not fail startup.
func NewGeminiProvider(ctx context.Context, apiKey string, temperature float64, maxTokens int) (*GeminiProvider, error) {
	p := &GeminiProvider{apiKey: strings.TrimSpace(apiKey), temperature: temperature, maxTokens: maxTokens}
	if p.apiKey == "" {
		return p, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	p.models = client.Models
	return p, nil
}

func (p *GeminiProvider) Name() string     { return "gemini" }
func (p *GeminiProvider) Configured() bool { return p.apiKey != "" && p.models != nil }

func (p *GeminiProvider) Complete(ctx context.Context, model string, msgs []ChatMessage) (string, error) {
	contents, cfg, err := p.request(msgs)
	if err != nil {
		return "", err
	}
	resp, err := p.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", err
	}
	return visibleText(resp), nil
}

func (p *GeminiProvider) Stream(ctx context.Context, model string, msgs []ChatMessage, onDelta func(string)) (string, error) {
	contents, cfg, err := p.request(msgs)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for resp, err := range p.models.GenerateContentStream(ctx, model, contents, cfg) {
		if err != nil {
			return b.String(), err
		}
		text := visibleText(resp)
		// some responses resend the whole text so far
		delta := text
		if strings.HasPrefix(text, b.String()) {
			delta = text[b.Len():]
		}
		if delta == "" {
			continue
		}
		b.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	return b.String(), nil
}

func (p *GeminiProvider) request(msgs []ChatMessage) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if !p.Configured() {
		return nil, nil, apperr.ErrNoAPIKey
	}
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			if s := strings.TrimSpace(m.Content); s != "" {
				system = append(system, s)
			}
		case RoleAssistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("at least one user message is required")
	}

	cfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	if p.temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(p.temperature))
	}
	if p.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.maxTokens)
	}
	return contents, cfg, nil
}

func visibleText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
