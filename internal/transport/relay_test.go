package transport

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/protocol/codec"
)

// TestClient_RealWebsocket 通过真实的 gorilla 连接完成一次往返
func TestClient_RealWebsocket(t *testing.T) {
	t.Parallel()

	queries := make(chan url.Values, 1)
	received := make(chan *protocol.Message, 4)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sessions/s1/ws", r.URL.Path)
		queries <- r.URL.Query()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, _ := codec.Encode(codec.MustNewMessage(protocol.MsgPlayerJoined, protocol.PlayerJoinedPayload{
			Player: protocol.PlayerSummary{ID: "p1", DisplayName: "Ada"},
		}))
		_ = conn.WriteMessage(websocket.TextMessage, hello)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msg, err := codec.Decode(data); err == nil {
				received <- msg
			}
		}
	}))
	defer srv.Close()

	wsURL, err := BuildURL(srv.URL, "s1", HostParams("secret"))
	require.NoError(t, err)

	c := NewClient(wsURL)
	defer c.Disconnect()

	joined := make(chan protocol.PlayerJoinedPayload, 1)
	c.On(protocol.MsgPlayerJoined, func(msg *protocol.Message) {
		p, err := codec.ParsePayload[protocol.PlayerJoinedPayload](msg)
		if assert.NoError(t, err) {
			joined <- *p
		}
	})
	c.Connect()

	select {
	case q := <-queries:
		assert.Equal(t, "host", q.Get("role"))
		assert.Equal(t, "secret", q.Get("token"))
	case <-time.After(2 * time.Second):
		t.Fatal("relay never saw the upgrade request")
	}

	select {
	case p := <-joined:
		assert.Equal(t, "Ada", p.Player.DisplayName)
	case <-time.After(2 * time.Second):
		t.Fatal("player_joined not dispatched")
	}

	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)
	require.True(t, c.Send(protocol.MsgGameStateUpdate, protocol.GameStateUpdatePayload{State: map[string]any{"round": 1.0}}))

	select {
	case msg := <-received:
		assert.Equal(t, protocol.MsgGameStateUpdate, msg.Type)
		assert.JSONEq(t, `{"state":{"round":1}}`, string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not receive the update")
	}
}
