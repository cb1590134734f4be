// Package bridge implements the message contract between a hosting page and
// the sandboxed, script-only frame that runs game code.
package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/palemoky/aircade/internal/protocol"
)

// Prefix 所有桥消息类型的命名空间
const Prefix = "aircade:"

// MessageType 桥消息类型
type MessageType string

const (
	TypeInit           MessageType = Prefix + "init"
	TypeReady          MessageType = Prefix + "ready"
	TypePlayerInput    MessageType = Prefix + "player_input"
	TypePlayerJoined   MessageType = Prefix + "player_joined"
	TypePlayerLeft     MessageType = Prefix + "player_left"
	TypeBroadcastState MessageType = Prefix + "broadcast_state" // game -> parent
	TypeSendInput      MessageType = Prefix + "send_input"      // controller -> parent
	TypeStateUpdate    MessageType = Prefix + "state_update"    // parent -> controller
)

var (
	// ErrForeign 没有命名空间前缀的消息，调用方应静默忽略
	ErrForeign = errors.New("bridge: not an aircade message")
	// ErrUnknownType 带前缀但类型未知
	ErrUnknownType = errors.New("bridge: unknown message type")
	// ErrInvalidPayload payload 与类型约定不符
	ErrInvalidPayload = errors.New("bridge: invalid payload")
)

// Message 桥消息，按类型区分的联合体
type Message interface {
	Type() MessageType
}

// SessionInfo 下发给帧的会话信息
type SessionInfo struct {
	SessionID   string                 `json:"sessionId"`
	SessionCode string                 `json:"sessionCode"`
	Status      protocol.SessionStatus `json:"status"`
	MaxPlayers  int                    `json:"maxPlayers"`
}

// Init 回应 ready 的初始化数据。主机帧携带 Players，控制器帧携带 Player
type Init struct {
	Role        protocol.Role            `json:"role"`
	Players     []protocol.PlayerSummary `json:"players,omitempty"`
	Player      *protocol.PlayerSummary  `json:"player,omitempty"`
	SessionInfo SessionInfo              `json:"sessionInfo"`
}

// Ready 帧已挂好监听
type Ready struct{}

// PlayerInput 转发给主机帧的玩家输入
type PlayerInput struct {
	PlayerID  string         `json:"playerId"`
	InputType string         `json:"inputType"`
	Data      map[string]any `json:"data"`
}

// PlayerJoined 玩家加入
type PlayerJoined struct {
	Player protocol.PlayerSummary `json:"player"`
}

// PlayerLeft 玩家离开
type PlayerLeft struct {
	PlayerID string `json:"playerId"`
}

// BroadcastState 主机帧要广播的状态
type BroadcastState struct {
	State map[string]any `json:"state"`
}

// SendInput 控制器帧发出的输入
type SendInput struct {
	InputType string         `json:"inputType"`
	Data      map[string]any `json:"data"`
}

// StateUpdate 下发给控制器帧的状态
type StateUpdate struct {
	State map[string]any `json:"state"`
}

// MarshalJSON 主机帧总是带 players 数组，控制器帧总是带 player（可为 null）
func (m Init) MarshalJSON() ([]byte, error) {
	if m.Role == protocol.RoleHost {
		players := m.Players
		if players == nil {
			players = []protocol.PlayerSummary{}
		}
		return json.Marshal(struct {
			Role        protocol.Role            `json:"role"`
			Players     []protocol.PlayerSummary `json:"players"`
			SessionInfo SessionInfo              `json:"sessionInfo"`
		}{m.Role, players, m.SessionInfo})
	}
	return json.Marshal(struct {
		Role        protocol.Role           `json:"role"`
		Player      *protocol.PlayerSummary `json:"player"`
		SessionInfo SessionInfo             `json:"sessionInfo"`
	}{m.Role, m.Player, m.SessionInfo})
}

func (Init) Type() MessageType           { return TypeInit }
func (Ready) Type() MessageType          { return TypeReady }
func (PlayerInput) Type() MessageType    { return TypePlayerInput }
func (PlayerJoined) Type() MessageType   { return TypePlayerJoined }
func (PlayerLeft) Type() MessageType     { return TypePlayerLeft }
func (BroadcastState) Type() MessageType { return TypeBroadcastState }
func (SendInput) Type() MessageType      { return TypeSendInput }
func (StateUpdate) Type() MessageType    { return TypeStateUpdate }

type wire struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode 编码为 {type, payload}
func Encode(m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	return json.Marshal(wire{Type: m.Type(), Payload: payload})
}

// Parse 在边界校验消息：前缀、已知类型、各类型的 payload 形状
func Parse(data []byte) (Message, error) {
	var w struct {
		Type    *string         `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &w); err != nil || w.Type == nil {
		return nil, ErrForeign
	}
	if !strings.HasPrefix(*w.Type, Prefix) {
		return nil, ErrForeign
	}

	payload := w.Payload
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		payload = []byte("{}")
	}
	if payload[0] != '{' {
		return nil, fmt.Errorf("%w: %s payload is not an object", ErrInvalidPayload, *w.Type)
	}

	switch MessageType(*w.Type) {
	case TypeInit:
		var m Init
		if err := decode(payload, &m); err != nil {
			return nil, err
		}
		if m.Role != protocol.RoleHost && m.Role != protocol.RolePlayer {
			return nil, fmt.Errorf("%w: init role %q", ErrInvalidPayload, m.Role)
		}
		return m, nil
	case TypeReady:
		return Ready{}, nil
	case TypePlayerInput:
		var m PlayerInput
		if err := decode(payload, &m); err != nil {
			return nil, err
		}
		if m.PlayerID == "" || m.InputType == "" {
			return nil, fmt.Errorf("%w: player_input needs playerId and inputType", ErrInvalidPayload)
		}
		return m, nil
	case TypePlayerJoined:
		var m PlayerJoined
		if err := decode(payload, &m); err != nil {
			return nil, err
		}
		if m.Player.ID == "" {
			return nil, fmt.Errorf("%w: player_joined needs player.id", ErrInvalidPayload)
		}
		return m, nil
	case TypePlayerLeft:
		var m PlayerLeft
		if err := decode(payload, &m); err != nil {
			return nil, err
		}
		if m.PlayerID == "" {
			return nil, fmt.Errorf("%w: player_left needs playerId", ErrInvalidPayload)
		}
		return m, nil
	case TypeBroadcastState:
		state, err := decodeState(payload)
		if err != nil {
			return nil, err
		}
		return BroadcastState{State: state}, nil
	case TypeStateUpdate:
		state, err := decodeState(payload)
		if err != nil {
			return nil, err
		}
		return StateUpdate{State: state}, nil
	case TypeSendInput:
		var m SendInput
		if err := decode(payload, &m); err != nil {
			return nil, err
		}
		if m.InputType == "" {
			return nil, fmt.Errorf("%w: send_input needs inputType", ErrInvalidPayload)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, *w.Type)
	}
}

func decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// decodeState state 必须是对象
func decodeState(payload []byte) (map[string]any, error) {
	var m struct {
		State json.RawMessage `json:"state"`
	}
	if err := decode(payload, &m); err != nil {
		return nil, err
	}
	if len(m.State) == 0 || m.State[0] != '{' {
		return nil, fmt.Errorf("%w: state must be an object", ErrInvalidPayload)
	}
	var state map[string]any
	if err := decode(m.State, &state); err != nil {
		return nil, err
	}
	return state, nil
}
