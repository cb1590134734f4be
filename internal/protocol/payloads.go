package protocol

// --- 客户端发送 Payloads ---

// PlayerInputPayload 玩家输入
type PlayerInputPayload struct {
	InputType string         `json:"inputType"`
	Data      map[string]any `json:"data"`
}

// GameStateUpdatePayload 主机广播的游戏状态
type GameStateUpdatePayload struct {
	State map[string]any `json:"state"`
}

// --- 中继推送 Payloads ---

// ConnectedPayload 连接确认
type ConnectedPayload struct {
	SessionID string `json:"sessionId"`
	Role      Role   `json:"role"`
	PlayerID  string `json:"playerId,omitempty"`
}

// PlayerSummary 玩家摘要，房间广播与 iframe 桥共用
type PlayerSummary struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

// PlayerJoinedPayload 玩家加入
type PlayerJoinedPayload struct {
	Player PlayerSummary `json:"player"`
}

// PlayerLeftPayload 玩家离开
type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason"` // left/removed/disconnected
}

// PlayerInputEventPayload 转发给主机的玩家输入
type PlayerInputEventPayload struct {
	PlayerID  string         `json:"playerId"`
	InputType string         `json:"inputType"`
	Data      map[string]any `json:"data"`
}

// GameStatePayload 转发给玩家的游戏状态
type GameStatePayload struct {
	State map[string]any `json:"state"`
}

// SessionStatusChangePayload 会话状态变更
type SessionStatusChangePayload struct {
	Status         SessionStatus `json:"status"`
	PreviousStatus SessionStatus `json:"previousStatus"`
}

// GameLoadedPayload 游戏已加载。主机收到两份代码，玩家只收到控制器代码
type GameLoadedPayload struct {
	GameID               string `json:"gameId"`
	GameVersionID        string `json:"gameVersionId"`
	GameScreenCode       string `json:"gameScreenCode,omitempty"`
	ControllerScreenCode string `json:"controllerScreenCode,omitempty"`
}

// ErrorPayload 中继错误
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
