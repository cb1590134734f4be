package session

import (
	"context"
	"slices"
	"time"

	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/protocol/codec"
	"github.com/palemoky/aircade/internal/transport"
)

// connectLocked 创建新的中继连接并注册处理器，由调用方在锁外 Connect。
// 调用方须先 detachLocked，保证同一时刻只有一个活动连接
func (s *Store) connectLocked(role protocol.Role, credential string) (Transport, error) {
	params := transport.HostParams(credential)
	if role == protocol.RolePlayer {
		params = transport.PlayerParams(credential)
	}
	url, err := transport.BuildURL(s.apiBase, s.state.Session.ID, params)
	if err != nil {
		return nil, err
	}

	t := s.newTransport(url)
	s.transport = t
	s.state.Connection = ConnectionConnecting

	t.OnOpen(func() { s.handleOpen(t) })
	t.OnClose(func(code int) { s.handleClose(t, code) })

	if role == protocol.RoleHost {
		s.on(t, protocol.MsgPlayerJoined, s.handlePlayerJoined)
		s.on(t, protocol.MsgPlayerLeft, s.handlePlayerLeft)
		s.on(t, protocol.MsgPlayerInputEvent, s.handlePlayerInputEvent)
	} else {
		s.on(t, protocol.MsgGameState, s.handleGameState)
	}
	s.on(t, protocol.MsgGameLoaded, s.handleGameLoaded)
	s.on(t, protocol.MsgSessionStatusChange, s.handleStatusChange)
	s.on(t, protocol.MsgError, s.handleRelayError)
	return t, nil
}

// on 注册处理器，来自已被替换的连接的消息直接丢弃
func (s *Store) on(t Transport, msgType protocol.MessageType, h func(*protocol.Message)) {
	t.On(msgType, func(msg *protocol.Message) {
		if !s.owns(t) {
			return
		}
		h(msg)
	})
}

func (s *Store) owns(t Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport == t
}

// detachLocked 交出当前连接并清空句柄，同时放弃进行中的加载等待。
// 返回的连接须在锁外 Disconnect
func (s *Store) detachLocked() Transport {
	old := s.transport
	s.transport = nil
	if s.pending != nil {
		s.pending.resolve(errSessionClosed)
		s.pending = nil
		s.state.IsLoadingGame = false
	}
	return old
}

func disconnect(t Transport) {
	if t != nil {
		t.Disconnect()
	}
}

func (s *Store) handleOpen(t Transport) {
	s.mu.Lock()
	if s.transport != t {
		s.mu.Unlock()
		return
	}
	s.state.Connection = ConnectionConnected
	s.mu.Unlock()
	s.log.Debug().Msg("relay connected")
	s.notify()
}

func (s *Store) handleClose(t Transport, code int) {
	s.mu.Lock()
	if s.transport != t {
		s.mu.Unlock()
		return
	}
	if t.IsReconnecting() {
		s.state.Connection = ConnectionReconnecting
	} else {
		s.state.Connection = ConnectionDisconnected
	}
	s.mu.Unlock()
	s.log.Debug().Int("code", code).Msg("relay closed")
	s.notify()
}

func (s *Store) handlePlayerJoined(msg *protocol.Message) {
	p, err := codec.ParsePayload[protocol.PlayerJoinedPayload](msg)
	if err != nil || p.Player.ID == "" {
		s.log.Debug().Err(err).Msg("discard player_joined")
		return
	}

	s.update(func(st *State) {
		if st.Session == nil {
			return
		}
		player := protocol.Player{
			ID:               p.Player.ID,
			SessionID:        st.Session.ID,
			DisplayName:      p.Player.DisplayName,
			AvatarURL:        p.Player.AvatarURL,
			ConnectionStatus: protocol.ConnectionConnected,
			CreatedAt:        s.now().UTC().Format(time.RFC3339Nano),
		}
		// 重连后服务端可能重复推送同一玩家，原位替换
		if i := slices.IndexFunc(st.Players, func(x protocol.Player) bool { return x.ID == player.ID }); i >= 0 {
			player.CreatedAt = st.Players[i].CreatedAt
			st.Players[i] = player
			return
		}
		st.Players = append(st.Players, player)
	})
}

func (s *Store) handlePlayerLeft(msg *protocol.Message) {
	p, err := codec.ParsePayload[protocol.PlayerLeftPayload](msg)
	if err != nil {
		s.log.Debug().Err(err).Msg("discard player_left")
		return
	}
	s.update(func(st *State) {
		st.Players = slices.DeleteFunc(st.Players, func(x protocol.Player) bool { return x.ID == p.PlayerID })
	})
}

func (s *Store) handlePlayerInputEvent(msg *protocol.Message) {
	p, err := codec.ParsePayload[protocol.PlayerInputEventPayload](msg)
	if err != nil {
		s.log.Debug().Err(err).Msg("discard player_input_event")
		return
	}
	s.mu.Lock()
	cb := s.onPlayerInput
	s.mu.Unlock()
	if cb != nil {
		s.safeCall(func() { cb(*p) })
	}
}

func (s *Store) handleGameState(msg *protocol.Message) {
	p, err := codec.ParsePayload[protocol.GameStatePayload](msg)
	if err != nil {
		s.log.Debug().Err(err).Msg("discard game_state")
		return
	}
	s.mu.Lock()
	cb := s.onGameState
	s.mu.Unlock()
	if cb != nil {
		s.safeCall(func() { cb(*p) })
	}
}

// handleGameLoaded 主机保留两份代码，玩家只保留控制器代码
func (s *Store) handleGameLoaded(msg *protocol.Message) {
	p, err := codec.ParsePayload[protocol.GameLoadedPayload](msg)
	if err != nil {
		s.log.Debug().Err(err).Msg("discard game_loaded")
		return
	}

	s.mu.Lock()
	st := &s.state
	if st.Session == nil {
		s.mu.Unlock()
		return
	}
	if st.Role == protocol.RoleHost && p.GameScreenCode == "" {
		s.mu.Unlock()
		s.log.Debug().Msg("game_loaded without game screen ignored")
		return
	}

	st.Session.Status = protocol.StatusPlaying
	st.Session.GameID = &p.GameID
	st.Session.GameVersionID = &p.GameVersionID

	version := 1
	if st.GameVersion != nil && st.GameVersion.ID == p.GameVersionID {
		version = st.GameVersion.VersionNumber
	}
	switch {
	case st.Role == protocol.RoleHost:
		st.GameVersion = &protocol.GameVersion{
			ID:                   p.GameVersionID,
			VersionNumber:        version,
			GameScreenCode:       p.GameScreenCode,
			ControllerScreenCode: p.ControllerScreenCode,
		}
	case p.ControllerScreenCode != "":
		st.GameVersion = &protocol.GameVersion{
			ID:                   p.GameVersionID,
			VersionNumber:        version,
			ControllerScreenCode: p.ControllerScreenCode,
		}
	}

	st.IsLoadingGame = false
	wait := s.pending
	s.pending = nil
	s.mu.Unlock()

	if wait != nil {
		wait.resolve(nil)
	}
	s.notify()
}

// handleStatusChange 直接覆盖状态；ended 时立即拆除连接，重复收到只拆除一次
func (s *Store) handleStatusChange(msg *protocol.Message) {
	p, err := codec.ParsePayload[protocol.SessionStatusChangePayload](msg)
	if err != nil || p.Status == "" {
		s.log.Debug().Err(err).Msg("discard session_status_change")
		return
	}

	s.mu.Lock()
	if s.state.Session == nil {
		s.mu.Unlock()
		return
	}
	if !protocol.CanTransition(s.state.Session.Status, p.Status) {
		s.log.Debug().Str("from", string(s.state.Session.Status)).Str("to", string(p.Status)).Msg("unexpected status transition")
	}
	s.state.Session.Status = p.Status

	var old Transport
	if p.Status == protocol.StatusEnded {
		old = s.detachLocked()
		s.state.Connection = ConnectionDisconnected
	}
	s.mu.Unlock()

	if old != nil {
		s.log.Info().Msg("session ended by server")
		disconnect(old)
		s.deleteRecord(context.Background())
	}
	s.notify()
}

func (s *Store) handleRelayError(msg *protocol.Message) {
	p, err := codec.ParsePayload[protocol.ErrorPayload](msg)
	if err != nil {
		return
	}
	s.log.Warn().Str("code", p.Code).Str("message", p.Message).Msg("relay error")
}
