package model

import (
	"time"
)

type Session struct {
	SessionID        string     `db:"session_id" json:"sessionId"`
	ThreadID         *string    `db:"thread_id" json:"threadId,omitempty"`
	ContactEmail     *string    `db:"contact_email" json:"contactEmail,omitempty"`
	UserIP           string     `db:"user_ip" json:"-"`
	UserAgent        string     `db:"user_agent" json:"-"`
	Referrer         *string    `db:"referrer" json:"referrer,omitempty"`
	MessageCount     int        `db:"message_count" json:"messageCount"`
	Processed        bool       `db:"processed" json:"processed"`
	TranscriptSentAt *time.Time `db:"transcript_sent_at" json:"transcriptSentAt,omitempty"`
	IsActive         bool       `db:"is_active" json:"isActive"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	LastActivityAt   time.Time  `db:"last_activity_at" json:"lastActivityAt"`
}

type CreateSessionParams struct {
	SessionID string
	UserIP    string
	UserAgent string
	Referrer  *string
}
