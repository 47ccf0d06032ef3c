package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/greeterhq/chat-server-go/internal/model"
)

type ConnectionRepository interface {
	Create(ctx context.Context, params model.CreateConnectionParams) (*model.Connection, error)
	Delete(ctx context.Context, connectionID string) error
	CountByIP(ctx context.Context, ip string) (int, error)
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

type connectionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type connectionRepo struct {
	db connectionDB
}

func NewConnectionRepository(db *sqlx.DB) ConnectionRepository {
	return &connectionRepo{db: db}
}

func (r *connectionRepo) Create(ctx context.Context, params model.CreateConnectionParams) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.GetContext(ctx, &conn, `
		INSERT INTO connections (connection_id, session_id, user_ip, user_agent)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (connection_id) DO UPDATE SET
			session_id = EXCLUDED.session_id
		RETURNING *
	`, params.ConnectionID, params.SessionID, params.UserIP, params.UserAgent)
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepo) Delete(ctx context.Context, connectionID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM connections WHERE connection_id = $1
	`, connectionID)
	return err
}

func (r *connectionRepo) CountByIP(ctx context.Context, ip string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM connections WHERE user_ip = $1
	`, ip)
	return count, err
}

func (r *connectionRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM connections WHERE connected_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
