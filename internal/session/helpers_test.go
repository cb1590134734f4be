package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/storage"
	"github.com/palemoky/aircade/internal/testutil"
)

const testAPIBase = "http://api.test"

type fixture struct {
	store   *Store
	api     *testutil.MockAPI
	rec     *testutil.TransportRecorder
	records *storage.MemoryStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		api:     &testutil.MockAPI{},
		rec:     &testutil.TransportRecorder{},
		records: storage.NewMemoryStore(),
	}
	require.NoError(t, f.records.SetTokens(context.Background(), "tok", "refresh"))
	base := []Option{
		WithTransportFactory(func(url string) Transport { return f.rec.New(url) }),
		WithTokenSource(f.records),
		WithRecords(f.records),
	}
	f.store = New(f.api, testAPIBase, append(base, opts...)...)
	t.Cleanup(func() { f.api.AssertExpectations(t) })
	return f
}

func lobbySession() *protocol.Session {
	return &protocol.Session{
		ID:          "s1",
		HostID:      "u1",
		SessionCode: "AB12CD",
		Status:      protocol.StatusLobby,
		MaxPlayers:  8,
	}
}

// hosting 创建会话并打开主机连接
func (f *fixture) hosting(t *testing.T) *testutil.FakeTransport {
	t.Helper()
	f.api.On("CreateSession", mock.Anything, 0).Return(lobbySession(), nil).Once()
	require.NoError(t, f.store.CreateSession(context.Background(), 0))
	tr := f.rec.Last()
	require.NotNil(t, tr)
	tr.Open()
	return tr
}

// joined 以玩家身份加入并打开连接
func (f *fixture) joined(t *testing.T) *testutil.FakeTransport {
	t.Helper()
	f.api.On("JoinSession", mock.Anything, "AB12CD", "Alice").Return(&protocol.JoinResponse{
		Player:  protocol.Player{ID: "p1", SessionID: "s1", DisplayName: "Alice", ConnectionStatus: protocol.ConnectionConnected},
		Session: protocol.SessionInfo{ID: "s1", SessionCode: "AB12CD", Status: protocol.StatusLobby},
	}, nil).Once()
	require.NoError(t, f.store.JoinSession(context.Background(), "ab12cd", "Alice"))
	tr := f.rec.Last()
	require.NotNil(t, tr)
	tr.Open()
	return tr
}

func joinedPayload(id, name string) protocol.PlayerJoinedPayload {
	return protocol.PlayerJoinedPayload{Player: protocol.PlayerSummary{ID: id, DisplayName: name}}
}

func rosterIDs(st State) []string {
	ids := make([]string, 0, len(st.Players))
	for _, p := range st.Players {
		ids = append(ids, p.ID)
	}
	return ids
}
