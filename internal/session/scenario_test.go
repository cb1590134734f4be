package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/aircade/internal/api"
	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/storage"
	"github.com/palemoky/aircade/internal/testutil"
	"github.com/palemoky/aircade/internal/transport"
)

// 主机创建会话并加载游戏，另一个客户端用小写会话码加入
func TestScenario_HostAndPlayer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := testutil.NewBackend(t)
	backend.NextCode("AB12CD")
	backend.AddGame(testutil.Game{ID: "pong-id", VersionID: "v1", GameScreen: "drawPong()", ControllerScreen: "paddle()"})

	creds := storage.NewMemoryStore()
	token, refresh := backend.Tokens()
	require.NoError(t, creds.SetTokens(ctx, token, refresh))

	factory := DefaultTransportFactory(transport.WithHeartbeatInterval(time.Second))
	host := New(api.New(backend.URL(), api.WithTokenStore(creds)), backend.URL(),
		WithTransportFactory(factory), WithTokenSource(creds))
	t.Cleanup(host.Reset)

	require.NoError(t, host.CreateSession(ctx, 0))
	st := host.Snapshot()
	assert.Equal(t, "AB12CD", st.Session.SessionCode)
	require.Eventually(t, func() bool { return host.Snapshot().IsConnected() }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return backend.HostConnected(st.Session.ID) }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, host.LoadGame(ctx, "pong-id"))
	st = host.Snapshot()
	assert.Equal(t, protocol.StatusPlaying, st.Status())
	require.NotNil(t, st.GameVersion)
	assert.Equal(t, "paddle()", st.GameVersion.ControllerScreenCode)
	assert.Equal(t, "drawPong()", st.GameVersion.GameScreenCode)

	player := New(api.New(backend.URL()), backend.URL(), WithTransportFactory(factory))
	t.Cleanup(player.Reset)

	require.NoError(t, player.JoinSession(ctx, "ab12cd", "Alice"))
	pst := player.Snapshot()
	require.NotNil(t, pst.CurrentPlayer)
	assert.Equal(t, "Alice", pst.CurrentPlayer.DisplayName)
	assert.Equal(t, "AB12CD", pst.Session.SessionCode)

	require.Eventually(t, func() bool {
		players := host.Snapshot().Players
		return len(players) == 1 && players[0].DisplayName == "Alice"
	}, 2*time.Second, 5*time.Millisecond)

	// 玩家输入经中继到达主机，主机状态广播回玩家
	inputs := make(chan protocol.PlayerInputEventPayload, 1)
	host.SetOnPlayerInputEvent(func(p protocol.PlayerInputEventPayload) { inputs <- p })
	states := make(chan protocol.GameStatePayload, 1)
	player.SetOnGameStateEvent(func(p protocol.GameStatePayload) { states <- p })

	require.Eventually(t, func() bool { return player.Snapshot().IsConnected() }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return backend.PlayerConnected(pst.Session.ID, pst.CurrentPlayer.ID)
	}, 2*time.Second, 5*time.Millisecond)

	require.True(t, player.SendPlayerInput("move", map[string]any{"y": 0.5}))
	select {
	case in := <-inputs:
		assert.Equal(t, pst.CurrentPlayer.ID, in.PlayerID)
		assert.Equal(t, "move", in.InputType)
	case <-time.After(2 * time.Second):
		t.Fatal("host did not receive player input")
	}

	require.True(t, host.BroadcastGameState(map[string]any{"ball": 3.0}))
	select {
	case s := <-states:
		assert.Equal(t, 3.0, s.State["ball"])
	case <-time.After(2 * time.Second):
		t.Fatal("player did not receive game state")
	}

	// 主机结束会话，玩家收到 ended 后断开
	require.NoError(t, host.EndSession(ctx))
	assert.False(t, host.Snapshot().HasSession())
	require.Eventually(t, func() bool {
		s := player.Snapshot()
		return s.Status() == protocol.StatusEnded && !player.HasTransport()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScenario_ReconnectAfterDrop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := testutil.NewBackend(t)
	creds := storage.NewMemoryStore()
	token, refresh := backend.Tokens()
	require.NoError(t, creds.SetTokens(ctx, token, refresh))

	factory := DefaultTransportFactory(transport.WithReconnectPolicy(3, 10*time.Millisecond, 40*time.Millisecond))
	host := New(api.New(backend.URL(), api.WithTokenStore(creds)), backend.URL(),
		WithTransportFactory(factory), WithTokenSource(creds))
	t.Cleanup(host.Reset)

	require.NoError(t, host.CreateSession(ctx, 2))
	require.Eventually(t, func() bool { return host.Snapshot().IsConnected() }, 2*time.Second, 5*time.Millisecond)
	id := host.Snapshot().Session.ID
	require.Eventually(t, func() bool { return backend.HostConnected(id) }, 2*time.Second, 5*time.Millisecond)

	backend.DropConnections()

	require.Eventually(t, func() bool { return host.Snapshot().Connection != ConnectionConnected }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return host.Snapshot().IsConnected() }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return backend.HostConnected(id) }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, backend.PushToHost(id, protocol.MsgPlayerJoined, joinedPayload("late", "Late")))
	require.Eventually(t, func() bool { return len(host.Snapshot().Players) == 1 }, 2*time.Second, 5*time.Millisecond)
}
