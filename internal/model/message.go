package model

import (
	"time"
)

type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

type Message struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"sessionId"`
	Content   string    `db:"content" json:"content"`
	IsBot     bool      `db:"is_bot" json:"isBot"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}

// Author derives the author enum from the stored is_bot flag.
func (m *Message) Author() Author {
	if m.IsBot {
		return AuthorAssistant
	}
	return AuthorUser
}

type CreateMessageParams struct {
	ID        string
	SessionID string
	Content   string
	IsBot     bool
}
