package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/aircade/internal/protocol"
)

func TestParse_IgnoresForeignMessages(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`not json`,
		`{}`,
		`{"type":42}`,
		`{"type":"webpackOk"}`,
		`{"type":"init","payload":{}}`,
	} {
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, ErrForeign, raw)
	}
}

func TestParse_UnknownType(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`{"type":"aircade:teleport","payload":{}}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestParse_ValidatesPayloadShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"init without role", `{"type":"aircade:init","payload":{"sessionInfo":{}}}`},
		{"input without player", `{"type":"aircade:player_input","payload":{"inputType":"tap"}}`},
		{"input without type", `{"type":"aircade:player_input","payload":{"playerId":"p1"}}`},
		{"joined without id", `{"type":"aircade:player_joined","payload":{"player":{}}}`},
		{"left without id", `{"type":"aircade:player_left","payload":{}}`},
		{"state not object", `{"type":"aircade:broadcast_state","payload":{"state":[1,2]}}`},
		{"state missing", `{"type":"aircade:state_update","payload":{}}`},
		{"send without type", `{"type":"aircade:send_input","payload":{"data":{}}}`},
		{"payload not object", `{"type":"aircade:send_input","payload":"tap"}`},
		{"wrong field type", `{"type":"aircade:player_left","payload":{"playerId":7}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestParse_ReadyWithoutPayload(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(`{"type":"aircade:ready"}`))
	require.NoError(t, err)
	assert.Equal(t, Ready{}, m)
}

func TestEncode_RoundTripsThroughParse(t *testing.T) {
	t.Parallel()

	in := PlayerInput{PlayerID: "p1", InputType: "move", Data: map[string]any{"dx": 1.0}}
	data, err := Encode(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"aircade:player_input","payload":{"playerId":"p1","inputType":"move","data":{"dx":1}}}`, string(data))

	out, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestInit_MarshalShapeDependsOnRole(t *testing.T) {
	t.Parallel()

	info := SessionInfo{SessionID: "s1", SessionCode: "AB12CD", Status: protocol.StatusPlaying, MaxPlayers: 8}

	host, err := json.Marshal(Init{Role: protocol.RoleHost, SessionInfo: info})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"host","players":[],"sessionInfo":{"sessionId":"s1","sessionCode":"AB12CD","status":"playing","maxPlayers":8}}`, string(host))

	player, err := json.Marshal(Init{Role: protocol.RolePlayer, SessionInfo: info})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"player","player":null,"sessionInfo":{"sessionId":"s1","sessionCode":"AB12CD","status":"playing","maxPlayers":8}}`, string(player))
}
