//go:build !production

package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/aircade/internal/protocol"
)

// MockAPI 会话 REST 接口的 mock
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) CreateSession(ctx context.Context, maxPlayers int) (*protocol.Session, error) {
	args := m.Called(ctx, maxPlayers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*protocol.Session), args.Error(1)
}

func (m *MockAPI) GetSession(ctx context.Context, code string) (*protocol.Session, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*protocol.Session), args.Error(1)
}

func (m *MockAPI) JoinSession(ctx context.Context, code, displayName string) (*protocol.JoinResponse, error) {
	args := m.Called(ctx, code, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*protocol.JoinResponse), args.Error(1)
}

func (m *MockAPI) LoadGame(ctx context.Context, sessionID, gameID string) (*protocol.LoadGameResponse, error) {
	args := m.Called(ctx, sessionID, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*protocol.LoadGameResponse), args.Error(1)
}

func (m *MockAPI) EndSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockAPI) ListPlayers(ctx context.Context, sessionID string) ([]protocol.Player, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]protocol.Player), args.Error(1)
}
