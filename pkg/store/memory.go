package store

import (
	"context"
	"sync"

	"Skynet/models"
)

// MemoryStore is the process-local store: a slice in insertion order plus an
// index by id.
type MemoryStore struct {
	mu    sync.RWMutex
	chats []*models.Chat
	byID  map[string]*models.Chat
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*models.Chat)}
}

func (s *MemoryStore) AppendExchange(_ context.Context, id, title string, msgs []models.Message) (*models.Chat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		c = &models.Chat{
			ID:    id,
			Title: models.ApplyTitle("", true, title, len(s.chats)),
		}
		s.chats = append(s.chats, c)
		s.byID[id] = c
	} else {
		c.Title = models.ApplyTitle(c.Title, false, title, len(s.chats))
	}
	c.Messages = append(c.Messages, msgs...)
	return cloneChat(c), !ok, nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.ChatSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChatSummary, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c.Summary())
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, notFound(id)
	}
	return cloneChat(c), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return notFound(id)
	}
	delete(s.byID, id)
	for i, c := range s.chats {
		if c.ID == id {
			s.chats = append(s.chats[:i], s.chats[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.chats)
	s.chats = nil
	s.byID = make(map[string]*models.Chat)
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }

// cloneChat detaches a chat from the store so callers never share the slice.
func cloneChat(c *models.Chat) *models.Chat {
	out := &models.Chat{ID: c.ID, Title: c.Title, Messages: make([]models.Message, len(c.Messages))}
	copy(out.Messages, c.Messages)
	return out
}

var _ Store = (*MemoryStore)(nil)
