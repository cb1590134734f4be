package protocol

import "encoding/json"

// Message 中继消息信封，双向通用
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"` // ISO-8601
	MessageID string          `json:"messageId"`
}

// MessageType 消息类型
type MessageType string

// 客户端 → 中继 消息类型
const (
	MsgPing            MessageType = "ping"              // 心跳，payload 为空对象
	MsgPlayerInput     MessageType = "player_input"      // 玩家输入
	MsgGameStateUpdate MessageType = "game_state_update" // 主机广播游戏状态
)

// 中继 → 客户端 消息类型
const (
	MsgConnected           MessageType = "connected"             // 连接确认
	MsgPlayerJoined        MessageType = "player_joined"         // 玩家加入
	MsgPlayerLeft          MessageType = "player_left"           // 玩家离开
	MsgPlayerInputEvent    MessageType = "player_input_event"    // 转发给主机的玩家输入
	MsgGameLoaded          MessageType = "game_loaded"           // 游戏代码已下发
	MsgSessionStatusChange MessageType = "session_status_change" // 会话状态变更
	MsgGameState           MessageType = "game_state"            // 转发给玩家的游戏状态
	MsgError               MessageType = "error"                 // 错误消息
)

// Role 连接角色
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)
