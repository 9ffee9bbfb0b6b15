package models

import "time"

// ChatRecord is the GORM row behind a Chat. Position keeps insertion order.
type ChatRecord struct {
	ID        string          `gorm:"primaryKey;size:191"`
	Title     string          `gorm:"type:text"`
	Position  int64           `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []MessageRecord `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
}

func (ChatRecord) TableName() string { return "chats" }

type MessageRecord struct {
	ID        uint      `gorm:"primaryKey"`
	ChatID    string    `gorm:"size:191;index;not null"`
	Role      string    `gorm:"size:20;not null"`
	Content   string    `gorm:"type:longtext;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (MessageRecord) TableName() string { return "messages" }

func (r *ChatRecord) ToChat() *Chat {
	c := &Chat{ID: r.ID, Title: r.Title, Messages: make([]Message, 0, len(r.Messages))}
	for _, m := range r.Messages {
		c.Messages = append(c.Messages, Message{Role: m.Role, Content: m.Content})
	}
	return c
}
