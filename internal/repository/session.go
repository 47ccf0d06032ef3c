package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/greeterhq/chat-server-go/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, sessionID string) (*model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	Touch(ctx context.Context, sessionID string, messageCount int) error
	SetThreadID(ctx context.Context, sessionID string, threadID string) error
	SetContactEmail(ctx context.Context, sessionID string, email string) error
	MarkProcessed(ctx context.Context, sessionID string) error
	MarkInactive(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, sessionID string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE session_id = $1
	`, sessionID)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (session_id, user_ip, user_agent, referrer, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (session_id) DO UPDATE SET
			is_active = TRUE,
			last_activity_at = NOW()
		RETURNING *
	`, params.SessionID, params.UserIP, params.UserAgent, params.Referrer)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Touch(ctx context.Context, sessionID string, messageCount int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			message_count = $2,
			last_activity_at = $3
		WHERE session_id = $1
	`, sessionID, messageCount, time.Now())
	return err
}

func (r *sessionRepo) SetThreadID(ctx context.Context, sessionID string, threadID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			thread_id = $2,
			last_activity_at = NOW()
		WHERE session_id = $1
	`, sessionID, threadID)
	return err
}

func (r *sessionRepo) SetContactEmail(ctx context.Context, sessionID string, email string) error {
	// First detected e-mail wins; never overwrite one already recorded.
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			contact_email = $2,
			last_activity_at = NOW()
		WHERE session_id = $1 AND contact_email IS NULL
	`, sessionID, email)
	return err
}

func (r *sessionRepo) MarkProcessed(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			processed = TRUE,
			transcript_sent_at = $2
		WHERE session_id = $1 AND processed = FALSE
	`, sessionID, time.Now())
	return err
}

func (r *sessionRepo) MarkInactive(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			is_active = FALSE,
			last_activity_at = NOW()
		WHERE session_id = $1
	`, sessionID)
	return err
}

func (r *sessionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE session_id = $1
	`, sessionID)
	return err
}

func (r *sessionRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE is_active = FALSE AND last_activity_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
