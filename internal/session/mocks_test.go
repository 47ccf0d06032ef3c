package session

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/greeterhq/chat-server-go/internal/model"
	"github.com/greeterhq/chat-server-go/internal/repository"
)

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, sessionID string) (*model.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Touch(ctx context.Context, sessionID string, messageCount int) error {
	args := m.Called(ctx, sessionID, messageCount)
	return args.Error(0)
}

func (m *mockSessionRepo) SetThreadID(ctx context.Context, sessionID string, threadID string) error {
	args := m.Called(ctx, sessionID, threadID)
	return args.Error(0)
}

func (m *mockSessionRepo) SetContactEmail(ctx context.Context, sessionID string, email string) error {
	args := m.Called(ctx, sessionID, email)
	return args.Error(0)
}

func (m *mockSessionRepo) MarkProcessed(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockSessionRepo) MarkInactive(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockSessionRepo) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockSessionRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return m
}

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) FindBySessionID(ctx context.Context, sessionID string) ([]model.Message, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *mockMessageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *mockMessageRepo) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMessageRepo) WithTx(tx *sqlx.Tx) repository.MessageRepository {
	return m
}

type mockThreadCreator struct {
	mock.Mock
}

func (m *mockThreadCreator) CreateThread(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
