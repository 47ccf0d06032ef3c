package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/greeterhq/chat-server-go/internal/model"
)

type MessageRepository interface {
	FindBySessionID(ctx context.Context, sessionID string) ([]model.Message, error)
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	DeleteBySessionID(ctx context.Context, sessionID string) (int64, error)
	WithTx(tx *sqlx.Tx) MessageRepository
}

type messageDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type messageRepo struct {
	db messageDB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) WithTx(tx *sqlx.Tx) MessageRepository {
	return &messageRepo{db: tx}
}

func (r *messageRepo) FindBySessionID(ctx context.Context, sessionID string) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	return msgs, err
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (id, session_id, content, is_bot)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.ID, params.SessionID, params.Content, params.IsBot)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM messages WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
