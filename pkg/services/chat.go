package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"Skynet/models"
	"Skynet/pkg/apperr"
	"Skynet/pkg/cache"
	"Skynet/pkg/metrics"
	"Skynet/pkg/store"
)

type ChatOptions struct {
	// HistoryMessages is how many stored messages precede the new one upstream.
	HistoryMessages int
	SystemPrompt    string
}

// ChatService runs the send-message flow: validate, ask the LLM, then record
// the exchange. Nothing is stored when the LLM call fails.
type ChatService struct {
	store store.Store
	llm   *LLMService
	opts  ChatOptions
	log   *zap.Logger

	idMu   sync.Mutex
	lastID int64
	now    func() time.Time
}

func NewChatService(st store.Store, llm *LLMService, opts ChatOptions, log *zap.Logger) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{store: st, llm: llm, opts: opts, log: log, now: time.Now}
}

type SendRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
	Title   string `json:"title"`
}

type SendResult struct {
	Response string `json:"response"`
	ChatID   string `json:"chatId"`
}

// StreamResult is the outcome of StreamMessage. Stopped is set when the
// caller canceled mid-answer; the partial answer is kept if non-empty.
type StreamResult struct {
	ChatID   string
	Response string
	Stopped  bool
	Stored   bool
}

func (s *ChatService) ProviderName() string { return s.llm.ProviderName() }

func (s *ChatService) SendMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	prompt, err := s.prompt(ctx, req)
	if err != nil {
		return nil, err
	}

	answer, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, s.upstreamErr(err)
	}

	id := s.chatID(req.ChatID)
	if err := s.record(ctx, id, req, answer); err != nil {
		return nil, err
	}
	return &SendResult{Response: answer, ChatID: id}, nil
}

// StreamMessage resolves the chat id, reports it through onStart, then
// forwards chunks to onDelta as they arrive.
func (s *ChatService) StreamMessage(ctx context.Context, req SendRequest, onStart func(chatID string), onDelta func(string)) (*StreamResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	prompt, err := s.prompt(ctx, req)
	if err != nil {
		return nil, err
	}

	res := &StreamResult{ChatID: s.chatID(req.ChatID)}
	if onStart != nil {
		onStart(res.ChatID)
	}
	if onDelta == nil {
		onDelta = func(string) {}
	}

	answer, err := s.llm.Stream(ctx, prompt, onDelta)
	switch {
	case err != nil && errors.Is(ctx.Err(), context.Canceled):
		res.Stopped = true
		res.Response = answer
		if strings.TrimSpace(answer) == "" {
			return res, nil
		}
	case err != nil:
		return res, s.upstreamErr(err)
	case strings.TrimSpace(answer) == "":
		answer = cache.FallbackAnswer
		onDelta(answer)
	}
	res.Response = answer

	// the caller may be gone; the exchange is still recorded
	if err := s.record(context.WithoutCancel(ctx), res.ChatID, req, answer); err != nil {
		return res, err
	}
	res.Stored = true
	return res, nil
}

func (s *ChatService) List(ctx context.Context) ([]models.ChatSummary, error) {
	return s.store.List(ctx)
}

func (s *ChatService) Get(ctx context.Context, id string) (*models.Chat, error) {
	return s.store.Get(ctx, id)
}

func (s *ChatService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	metrics.ChatsStored.Dec()
	return nil
}

func (s *ChatService) DeleteAll(ctx context.Context) (int, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	metrics.ChatsStored.Set(0)
	return n, nil
}

func (s *ChatService) validate(req SendRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return apperr.ErrEmptyMessage
	}
	if !s.llm.Configured() {
		return apperr.ErrNoAPIKey
	}
	return nil
}

// prompt builds the upstream messages: optional system prompt, the last
// HistoryMessages stored messages of the chat, then the new message.
func (s *ChatService) prompt(ctx context.Context, req SendRequest) ([]ChatMessage, error) {
	var out []ChatMessage
	if s.opts.SystemPrompt != "" {
		out = append(out, ChatMessage{Role: RoleSystem, Content: s.opts.SystemPrompt})
	}
	if s.opts.HistoryMessages > 0 && req.ChatID != "" {
		chat, err := s.store.Get(ctx, req.ChatID)
		switch {
		case errors.Is(err, apperr.ErrChatNotFound):
		case err != nil:
			return nil, err
		default:
			history := chat.Messages
			if len(history) > s.opts.HistoryMessages {
				history = history[len(history)-s.opts.HistoryMessages:]
			}
			for _, m := range history {
				role := RoleUser
				if m.Role == models.RoleAI {
					role = RoleAssistant
				}
				out = append(out, ChatMessage{Role: role, Content: m.Content})
			}
		}
	}
	return append(out, ChatMessage{Role: RoleUser, Content: req.Message}), nil
}

func (s *ChatService) record(ctx context.Context, id string, req SendRequest, answer string) error {
	chat, created, err := s.store.AppendExchange(ctx, id, req.Title, models.Exchange(req.Message, answer))
	if err != nil {
		s.log.Error("store exchange", zap.String("chat_id", id), zap.Error(err))
		return fmt.Errorf("store exchange: %w", err)
	}
	if created {
		metrics.ChatsStored.Inc()
	}
	s.log.Debug("exchange stored", zap.String("chat_id", id), zap.Bool("created", created), zap.Int("messages", len(chat.Messages)))
	return nil
}

func (s *ChatService) upstreamErr(err error) error {
	if errors.Is(err, apperr.ErrNoAPIKey) {
		return err
	}
	s.log.Error("llm request failed", zap.String("provider", s.llm.ProviderName()), zap.Error(err))
	return fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
}

// chatID keeps a client-supplied id, otherwise issues a millisecond
// timestamp that never repeats within the process.
func (s *ChatService) chatID(requested string) string {
	if requested != "" {
		return requested
	}
	s.idMu.Lock()
	defer s.idMu.Unlock()
	ms := s.now().UnixMilli()
	if ms <= s.lastID {
		ms = s.lastID + 1
	}
	s.lastID = ms
	return strconv.FormatInt(ms, 10)
}
