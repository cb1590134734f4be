package protocol

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// SessionStatus 会话状态
type SessionStatus string

const (
	StatusLobby   SessionStatus = "lobby"
	StatusPlaying SessionStatus = "playing"
	StatusPaused  SessionStatus = "paused"
	StatusEnded   SessionStatus = "ended"
)

// ConnectionStatus 玩家连接状态
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// DefaultMaxPlayers 服务端未返回容量时使用的默认值
const DefaultMaxPlayers = 8

// Session 会话
type Session struct {
	ID            string        `json:"id"`
	HostID        string        `json:"hostId"`
	GameID        *string       `json:"gameId"`
	GameVersionID *string       `json:"gameVersionId"`
	SessionCode   string        `json:"sessionCode"`
	Status        SessionStatus `json:"status"`
	MaxPlayers    int           `json:"maxPlayers"`
	CreatedAt     string        `json:"createdAt"`
	UpdatedAt     string        `json:"updatedAt"`
	EndedAt       *string       `json:"endedAt"`
}

// Player 玩家
type Player struct {
	ID               string           `json:"id"`
	SessionID        string           `json:"sessionId"`
	UserID           *string          `json:"userId"`
	DisplayName      string           `json:"displayName"`
	AvatarURL        *string          `json:"avatarUrl"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	CreatedAt        string           `json:"createdAt"`
}

// Summary 返回对外广播用的玩家摘要
func (p Player) Summary() PlayerSummary {
	return PlayerSummary{ID: p.ID, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL}
}

// SessionInfo 加入会话时返回的精简会话信息
type SessionInfo struct {
	ID          string        `json:"id"`
	SessionCode string        `json:"sessionCode"`
	Status      SessionStatus `json:"status"`
}

// JoinResponse 加入会话响应
type JoinResponse struct {
	Player  Player      `json:"player"`
	Session SessionInfo `json:"session"`
}

// GameVersion 已加载的游戏代码包
type GameVersion struct {
	ID                   string `json:"id"`
	VersionNumber        int    `json:"versionNumber"`
	GameScreenCode       string `json:"gameScreenCode"`
	ControllerScreenCode string `json:"controllerScreenCode"`
}

// LoadGameResponse 加载游戏响应
type LoadGameResponse struct {
	Session struct {
		ID            string        `json:"id"`
		Status        SessionStatus `json:"status"`
		GameID        string        `json:"gameId"`
		GameVersionID string        `json:"gameVersionId"`
	} `json:"session"`
	GameVersion GameVersion `json:"gameVersion"`
}

// CanTransition 判断会话状态能否从 from 迁移到 to。
// ended 为终态，只有 playing 与 paused 之间可以往返。
func CanTransition(from, to SessionStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusLobby:
		return to == StatusPlaying || to == StatusPaused || to == StatusEnded
	case StatusPlaying:
		return to == StatusPaused || to == StatusEnded
	case StatusPaused:
		return to == StatusPlaying || to == StatusEnded
	default:
		return false
	}
}

var sessionCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{4,6}$`)

// NormalizeSessionCode 会话码不区分大小写，统一存为大写
func NormalizeSessionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidSessionCode 会话码为 4-6 位字母数字
func ValidSessionCode(code string) bool {
	return sessionCodePattern.MatchString(code)
}

// MaxDisplayNameLength 昵称最大长度
const MaxDisplayNameLength = 30

// ValidDisplayName 昵称 1-30 个字符
func ValidDisplayName(name string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	return n >= 1 && n <= MaxDisplayNameLength
}
