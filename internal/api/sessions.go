package api

import (
	"context"
	"net/http"

	"github.com/palemoky/aircade/internal/protocol"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// TokenPair 刷新令牌接口的响应
type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type createSessionRequest struct {
	MaxPlayers int `json:"maxPlayers,omitempty"`
}

type joinSessionRequest struct {
	DisplayName string `json:"displayName"`
}

type loadGameRequest struct {
	GameID string `json:"gameId"`
}

// CreateSession 创建会话，maxPlayers 为 0 时由服务端决定
func (c *Client) CreateSession(ctx context.Context, maxPlayers int) (*protocol.Session, error) {
	var s protocol.Session
	if err := c.do(ctx, http.MethodPost, "/sessions", createSessionRequest{MaxPlayers: maxPlayers}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession 按会话码查询会话
func (c *Client) GetSession(ctx context.Context, code string) (*protocol.Session, error) {
	var s protocol.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/"+escape(code), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// JoinSession 以昵称加入会话
func (c *Client) JoinSession(ctx context.Context, code, displayName string) (*protocol.JoinResponse, error) {
	var r protocol.JoinResponse
	if err := c.do(ctx, http.MethodPost, "/sessions/"+escape(code)+"/join", joinSessionRequest{DisplayName: displayName}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadGame 为会话绑定游戏，返回游戏代码包
func (c *Client) LoadGame(ctx context.Context, sessionID, gameID string) (*protocol.LoadGameResponse, error) {
	var r protocol.LoadGameResponse
	if err := c.do(ctx, http.MethodPost, "/sessions/"+escape(sessionID)+"/game", loadGameRequest{GameID: gameID}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// EndSession 结束会话
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+escape(sessionID), nil, nil)
}

// ListPlayers 查询会话中的玩家
func (c *Client) ListPlayers(ctx context.Context, sessionID string) ([]protocol.Player, error) {
	var players []protocol.Player
	if err := c.do(ctx, http.MethodGet, "/sessions/"+escape(sessionID)+"/players", nil, &players); err != nil {
		return nil, err
	}
	return players, nil
}
