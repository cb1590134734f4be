package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/palemoky/aircade/internal/apperrors"
	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/storage"
)

// notFound 由 API 错误实现，用于判断会话是否已不存在
type notFound interface {
	IsNotFound() bool
}

// CreateSession 创建会话并以主机身份连接中继。maxPlayers 为 0 时使用默认值
func (s *Store) CreateSession(ctx context.Context, maxPlayers int) error {
	if maxPlayers <= 0 {
		maxPlayers = s.maxPlayers
	}
	s.update(func(st *State) { st.IsConnecting = true })

	sess, err := s.api.CreateSession(ctx, maxPlayers)
	if err != nil {
		s.update(func(st *State) { st.IsConnecting = false })
		s.log.Debug().Err(err).Msg("create session failed")
		return apperrors.NewOperationError("create session", err)
	}

	token := s.hostToken(ctx)

	s.mu.Lock()
	old := s.detachLocked()
	s.state = initialState()
	s.state.Role = protocol.RoleHost
	s.state.Session = sess
	t, err := s.connectLocked(protocol.RoleHost, token)
	s.mu.Unlock()

	disconnect(old)
	if t != nil {
		t.Connect()
	}
	s.notify()
	if err != nil {
		return apperrors.NewOperationError("create session", err)
	}

	s.saveRecord(ctx, &storage.SessionRecord{
		Role:        protocol.RoleHost,
		SessionID:   sess.ID,
		SessionCode: sess.SessionCode,
	})
	s.log.Info().Str("session", sess.ID).Str("code", sess.SessionCode).Msg("session created")
	return nil
}

// JoinSession 以昵称加入会话并以玩家身份连接中继。会话码不区分大小写
func (s *Store) JoinSession(ctx context.Context, code, displayName string) error {
	code = protocol.NormalizeSessionCode(code)
	if !protocol.ValidSessionCode(code) {
		return apperrors.NewOperationError("join session", apperrors.ErrInvalidSessionCode)
	}
	displayName = strings.TrimSpace(displayName)
	if !protocol.ValidDisplayName(displayName) {
		return apperrors.NewOperationError("join session", apperrors.ErrInvalidDisplayName)
	}

	s.update(func(st *State) { st.IsConnecting = true })

	resp, err := s.api.JoinSession(ctx, code, displayName)
	if err != nil {
		s.update(func(st *State) { st.IsConnecting = false })
		s.log.Debug().Err(err).Str("code", code).Msg("join session failed")
		return apperrors.NewOperationError("join session", err)
	}

	player := resp.Player
	s.mu.Lock()
	old := s.detachLocked()
	s.state = initialState()
	s.state.Role = protocol.RolePlayer
	s.state.Session = projectSession(resp.Session)
	s.state.CurrentPlayer = &player
	t, err := s.connectLocked(protocol.RolePlayer, player.ID)
	s.mu.Unlock()

	disconnect(old)
	if t != nil {
		t.Connect()
	}
	s.notify()
	if err != nil {
		return apperrors.NewOperationError("join session", err)
	}

	s.saveRecord(ctx, &storage.SessionRecord{
		Role:        protocol.RolePlayer,
		SessionID:   resp.Session.ID,
		SessionCode: resp.Session.SessionCode,
		PlayerID:    player.ID,
		DisplayName: player.DisplayName,
	})
	s.log.Info().Str("session", resp.Session.ID).Str("player", player.ID).Msg("joined session")
	return nil
}

// projectSession 加入响应只有精简信息，其余字段取默认值
func projectSession(info protocol.SessionInfo) *protocol.Session {
	return &protocol.Session{
		ID:          info.ID,
		SessionCode: info.SessionCode,
		Status:      info.Status,
		MaxPlayers:  protocol.DefaultMaxPlayers,
	}
}

// LoadGame 为会话加载游戏，并等待中继推送 game_loaded。
// REST 成功但等待超时返回 apperrors.ErrGameLoadTimeout，会话状态保持不变
func (s *Store) LoadGame(ctx context.Context, gameID string) error {
	s.mu.Lock()
	switch {
	case s.state.Session == nil:
		s.mu.Unlock()
		return apperrors.NewOperationError("load game", apperrors.ErrNoSession)
	case s.state.Role != protocol.RoleHost:
		s.mu.Unlock()
		return apperrors.NewOperationError("load game", apperrors.ErrNotHost)
	case s.pending != nil:
		s.mu.Unlock()
		return apperrors.NewOperationError("load game", apperrors.ErrAlreadyLoading)
	}
	// 先登记等待，game_loaded 可能早于 REST 响应到达
	wait := &loadWait{done: make(chan struct{})}
	s.pending = wait
	s.state.IsLoadingGame = true
	sessionID := s.state.Session.ID
	previous := s.state.GameVersion
	s.mu.Unlock()
	s.notify()

	resp, err := s.api.LoadGame(ctx, sessionID, gameID)
	if err != nil {
		s.finishLoad(wait, previous, false)
		return apperrors.NewOperationError("load game", err)
	}

	s.mu.Lock()
	if s.pending == wait && s.state.GameVersion == previous {
		gv := resp.GameVersion
		s.state.GameVersion = &gv
	}
	s.mu.Unlock()

	timer := time.NewTimer(s.loadTimeout)
	defer timer.Stop()

	select {
	case <-wait.done:
		if wait.err != nil {
			return apperrors.NewOperationError("load game", wait.err)
		}
		s.log.Info().Str("game", gameID).Msg("game loaded")
		return nil
	case <-timer.C:
		s.finishLoad(wait, previous, true)
		s.log.Warn().Str("game", gameID).Dur("timeout", s.loadTimeout).Msg("game_loaded not received")
		return apperrors.NewOperationError("load game", apperrors.ErrGameLoadTimeout)
	case <-ctx.Done():
		s.finishLoad(wait, previous, true)
		return apperrors.NewOperationError("load game", fmt.Errorf("wait for game_loaded: %w", ctx.Err()))
	}
}

// finishLoad 放弃一次等待；restore 为真时恢复请求前的游戏版本
func (s *Store) finishLoad(wait *loadWait, previous *protocol.GameVersion, restore bool) {
	s.mu.Lock()
	if s.pending != wait {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.state.IsLoadingGame = false
	if restore {
		s.state.GameVersion = previous
	}
	s.mu.Unlock()
	wait.resolve(apperrors.ErrGameLoadTimeout)
	s.notify()
}

// EndSession 结束会话。REST 失败被忽略，本地总会断开并重置
func (s *Store) EndSession(ctx context.Context) error {
	s.mu.Lock()
	sess, role := s.state.Session, s.state.Role
	s.mu.Unlock()
	if sess == nil {
		return nil
	}

	// 玩家离开只在本地进行
	if role == protocol.RoleHost {
		if err := s.api.EndSession(ctx, sess.ID); err != nil {
			s.log.Debug().Err(err).Str("session", sess.ID).Msg("end session request failed, leaving locally")
		}
	}
	s.Reset()
	s.deleteRecord(ctx)
	return nil
}

// Disconnect 断开中继，保留会话数据
func (s *Store) Disconnect() {
	s.mu.Lock()
	old := s.detachLocked()
	if s.state.Connection != ConnectionNone {
		s.state.Connection = ConnectionDisconnected
	}
	s.mu.Unlock()

	disconnect(old)
	s.notify()
}

// Reset 断开中继并回到无会话状态，同时清除转发回调
func (s *Store) Reset() {
	s.mu.Lock()
	old := s.detachLocked()
	s.state = initialState()
	s.onPlayerInput = nil
	s.onGameState = nil
	s.mu.Unlock()

	disconnect(old)
	s.notify()
}

// RefreshPlayers 从服务端重新拉取玩家列表
func (s *Store) RefreshPlayers(ctx context.Context) error {
	s.mu.Lock()
	sess := s.state.Session
	s.mu.Unlock()
	if sess == nil {
		return apperrors.NewOperationError("list players", apperrors.ErrNoSession)
	}

	players, err := s.api.ListPlayers(ctx, sess.ID)
	if err != nil {
		return apperrors.NewOperationError("list players", err)
	}

	s.update(func(st *State) {
		if st.Session != nil && st.Session.ID == sess.ID {
			st.Players = players
		}
	})
	return nil
}

// Resume 恢复上次保存的会话。身份由服务端重新校验，本地不解析令牌。
// 没有可恢复的会话时返回 false
func (s *Store) Resume(ctx context.Context) (bool, error) {
	if s.records == nil {
		return false, nil
	}
	rec, err := s.records.LoadSession(ctx)
	if err != nil || rec == nil {
		return false, err
	}

	sess, err := s.api.GetSession(ctx, rec.SessionCode)
	if err != nil {
		var nf notFound
		if errors.As(err, &nf) && nf.IsNotFound() {
			s.deleteRecord(ctx)
			return false, nil
		}
		return false, apperrors.NewOperationError("resume session", err)
	}
	if sess.Status == protocol.StatusEnded {
		s.deleteRecord(ctx)
		return false, nil
	}

	players, err := s.api.ListPlayers(ctx, sess.ID)
	if err != nil {
		return false, apperrors.NewOperationError("resume session", err)
	}

	var connectParam string
	var current *protocol.Player
	switch rec.Role {
	case protocol.RoleHost:
		connectParam = s.hostToken(ctx)
	case protocol.RolePlayer:
		for i := range players {
			if players[i].ID == rec.PlayerID {
				p := players[i]
				current = &p
				break
			}
		}
		if current == nil {
			// 玩家已被移出会话
			s.deleteRecord(ctx)
			return false, nil
		}
		connectParam = current.ID
	default:
		s.deleteRecord(ctx)
		return false, nil
	}

	s.mu.Lock()
	old := s.detachLocked()
	s.state = initialState()
	s.state.Role = rec.Role
	s.state.Session = sess
	s.state.CurrentPlayer = current
	if rec.Role == protocol.RoleHost {
		s.state.Players = players
	}
	t, err := s.connectLocked(rec.Role, connectParam)
	s.mu.Unlock()

	disconnect(old)
	if t != nil {
		t.Connect()
	}
	s.notify()
	if err != nil {
		return false, apperrors.NewOperationError("resume session", err)
	}
	s.log.Info().Str("session", sess.ID).Str("role", string(rec.Role)).Msg("session resumed")
	return true, nil
}

func (s *Store) hostToken(ctx context.Context) string {
	if s.tokens == nil {
		return ""
	}
	token, err := s.tokens.Token(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("read access token")
	}
	return token
}

func (s *Store) saveRecord(ctx context.Context, rec *storage.SessionRecord) {
	if s.records == nil {
		return
	}
	rec.SavedAt = s.now().Unix()
	if err := s.records.SaveSession(ctx, rec); err != nil {
		s.log.Warn().Err(err).Msg("save session record")
	}
}

func (s *Store) deleteRecord(ctx context.Context) {
	if s.records == nil {
		return
	}
	if err := s.records.DeleteSession(ctx); err != nil {
		s.log.Warn().Err(err).Msg("delete session record")
	}
}
