package model

import (
	"time"
)

// Connection is the durable record of one live transport link (one tab).
// Many connections may reference the same session.
type Connection struct {
	ConnectionID string    `db:"connection_id" json:"connectionId"`
	SessionID    string    `db:"session_id" json:"sessionId"`
	UserIP       string    `db:"user_ip" json:"-"`
	UserAgent    string    `db:"user_agent" json:"-"`
	ConnectedAt  time.Time `db:"connected_at" json:"connectedAt"`
}

type CreateConnectionParams struct {
	ConnectionID string
	SessionID    string
	UserIP       string
	UserAgent    string
}
