// Package store keeps chats and their message logs. Every driver implements
// the same ordering and title rules as the in-memory one.
package store

import (
	"context"
	"fmt"

	"Skynet/models"
	"Skynet/pkg/apperr"
)

// Store is the chat repository used by the chat service.
type Store interface {
	// AppendExchange creates chat id (when missing) or appends msgs to it,
	// applying models.ApplyTitle with the requested title. It returns the
	// chat as stored and whether it was created.
	AppendExchange(ctx context.Context, id, title string, msgs []models.Message) (*models.Chat, bool, error)
	List(ctx context.Context) ([]models.ChatSummary, error)
	// Get returns apperr.ErrChatNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.Chat, error)
	// Delete returns apperr.ErrChatNotFound for unknown ids.
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int, error)
	Close() error
}

// Open builds the store for driver. dsn is a file path for sqlite and bolt
// and a MySQL DSN for mysql; memory ignores it.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if dsn == "" {
			dsn = "skynet.db"
		}
		return OpenGorm("sqlite", dsn)
	case "mysql":
		if dsn == "" {
			return nil, fmt.Errorf("STORE_DSN is required for mysql")
		}
		return OpenGorm("mysql", dsn)
	case "bolt":
		if dsn == "" {
			dsn = "skynet.bolt"
		}
		return OpenBolt(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func notFound(id string) error {
	return fmt.Errorf("chat %q: %w", id, apperr.ErrChatNotFound)
}
