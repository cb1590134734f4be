package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/session"
)

func TestJoinURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://aircade.example.com/join/AB12CD", JoinURL("https://aircade.example.com/", "AB12CD"))
	assert.Equal(t, "http://localhost:3000/join/XY9Z", JoinURL("http://localhost:3000", "XY9Z"))
}

func TestParseInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line      string
		inputType string
		data      map[string]any
		ok        bool
	}{
		{"tap", "tap", map[string]any{}, true},
		{"  move left  ", "move", map[string]any{"text": "left"}, true},
		{"say hello there", "say", map[string]any{"text": "hello there"}, true},
		{"   ", "", nil, false},
		{"", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			t.Parallel()
			inputType, data, ok := parseInput(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.inputType, inputType)
			assert.Equal(t, tt.data, data)
		})
	}
}

func TestDescribeData_SortedKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", describeData(nil))
	assert.Equal(t, "a=1 b=x", describeData(map[string]any{"b": "x", "a": 1}))
}

func TestRenderRoster(t *testing.T) {
	t.Parallel()

	empty := renderRoster(nil, 8)
	assert.Contains(t, empty, "Players (0/8)")
	assert.Contains(t, empty, "Waiting for a player to connect")

	full := renderRoster([]protocol.Player{
		{ID: "p1", DisplayName: "Alice", ConnectionStatus: protocol.ConnectionConnected},
		{ID: "p2", DisplayName: "A very long display name indeed", ConnectionStatus: protocol.ConnectionDisconnected},
	}, 4)
	assert.Contains(t, full, "Players (2/4)")
	assert.Contains(t, full, "Alice")
	assert.Contains(t, full, "A very long display…")
	assert.NotContains(t, full, "Waiting for a player")
}

func TestConnectionBadge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		conn session.ConnectionState
		want string
	}{
		{session.ConnectionConnected, "Connected"},
		{session.ConnectionReconnecting, "Reconnecting…"},
		{session.ConnectionDisconnected, "Disconnected"},
		{session.ConnectionConnecting, "Connecting…"},
		{session.ConnectionNone, "Offline"},
	}
	for _, tt := range tests {
		assert.Contains(t, connectionBadge(session.State{Connection: tt.conn}), tt.want)
	}
}

func TestRenderQR(t *testing.T) {
	t.Parallel()

	assert.Empty(t, renderQR(""))
	qr := renderQR("https://aircade.example.com/join/AB12CD")
	assert.NotEmpty(t, qr)
	assert.Greater(t, strings.Count(qr, "\n"), 10)
}

func TestRenderState(t *testing.T) {
	t.Parallel()

	assert.Contains(t, renderState(nil), "No state yet")
	out := renderState(map[string]any{"b": 2, "a": 1})
	assert.Less(t, strings.Index(out, `"a"`), strings.Index(out, `"b"`))
}

func TestAppendFeed_KeepsRecentLines(t *testing.T) {
	t.Parallel()

	var feed []string
	for i := 0; i < maxFeedLines+3; i++ {
		feed = appendFeed(feed, strings.Repeat("x", i+1))
	}
	assert.Len(t, feed, maxFeedLines)
	assert.Equal(t, strings.Repeat("x", maxFeedLines+3), feed[len(feed)-1])
}
