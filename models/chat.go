package models

import (
	"fmt"
	"strings"
)

const (
	RoleUser = "user"
	RoleAI   = "ai"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Chat struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// ChatSummary is the list projection of a Chat.
type ChatSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (c *Chat) Summary() ChatSummary {
	return ChatSummary{ID: c.ID, Title: c.Title}
}

// DefaultTitle names a new chat after the number of chats stored before it.
func DefaultTitle(existing int) string {
	return fmt.Sprintf("Chat %d", existing+1)
}

// ApplyTitle returns the title a chat ends up with after an exchange.
// New chats take the requested title or a default. Existing chats only take
// a requested title while their current one does not contain "Chat".
func ApplyTitle(current string, isNew bool, requested string, existing int) string {
	requested = strings.TrimSpace(requested)
	if isNew {
		if requested != "" {
			return requested
		}
		return DefaultTitle(existing)
	}
	if requested != "" && !strings.Contains(current, "Chat") {
		return requested
	}
	return current
}

// Exchange is one user turn plus the model's answer.
func Exchange(user, answer string) []Message {
	return []Message{
		{Role: RoleUser, Content: user},
		{Role: RoleAI, Content: answer},
	}
}
