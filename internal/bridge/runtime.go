package bridge

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/palemoky/aircade/internal/logger"
	"github.com/palemoky/aircade/internal/protocol"
)

// frame 帧侧的公共部分：挂好监听后发 ready，再处理宿主消息
type frame struct {
	port Port
	log  zerolog.Logger

	initOnce sync.Once
	inited   chan struct{}
}

func newFrame(port Port, component string) frame {
	return frame{port: port, log: logger.L(component), inited: make(chan struct{})}
}

// Initialized 收到首个 init 后关闭
func (f *frame) Initialized() <-chan struct{} {
	return f.inited
}

func (f *frame) markInit() {
	f.initOnce.Do(func() { close(f.inited) })
}

func (f *frame) send(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return f.port.Post(data)
}

func (f *frame) run(ctx context.Context, handle func(Message)) error {
	if err := f.send(Ready{}); err != nil {
		return err
	}
	msgs := f.port.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgs:
			if !ok {
				return nil
			}
			m, err := Parse(data)
			if err != nil {
				if !errors.Is(err, ErrForeign) {
					f.log.Debug().Err(err).Msg("drop invalid bridge message")
				}
				continue
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.LogPanic("bridge.frame", r)
					}
				}()
				handle(m)
			}()
		}
	}
}

// GameRuntime 游戏画面帧内的运行时，对应 AirCade 主机 API
type GameRuntime struct {
	frame

	mu      sync.RWMutex
	players []protocol.PlayerSummary
	info    SessionInfo
	onInput []func(PlayerInput)
	onJoin  []func(protocol.PlayerSummary)
	onLeave []func(playerID string)
}

// NewGameRuntime 创建游戏帧运行时
func NewGameRuntime(port Port) *GameRuntime {
	return &GameRuntime{frame: newFrame(port, "bridge.game")}
}

// OnPlayerInput 注册玩家输入回调
func (r *GameRuntime) OnPlayerInput(cb func(PlayerInput)) {
	r.mu.Lock()
	r.onInput = append(r.onInput, cb)
	r.mu.Unlock()
}

// OnPlayerJoin 注册玩家加入回调
func (r *GameRuntime) OnPlayerJoin(cb func(protocol.PlayerSummary)) {
	r.mu.Lock()
	r.onJoin = append(r.onJoin, cb)
	r.mu.Unlock()
}

// OnPlayerLeave 注册玩家离开回调
func (r *GameRuntime) OnPlayerLeave(cb func(playerID string)) {
	r.mu.Lock()
	r.onLeave = append(r.onLeave, cb)
	r.mu.Unlock()
}

// Players 当前玩家列表副本
func (r *GameRuntime) Players() []protocol.PlayerSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.players)
}

// SessionInfo 会话信息
func (r *GameRuntime) SessionInfo() SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.info
}

// BroadcastState 请求宿主把状态广播给所有玩家
func (r *GameRuntime) BroadcastState(state map[string]any) error {
	return r.send(BroadcastState{State: state})
}

// Run 发送 ready 并处理宿主消息，端口关闭时返回 nil
func (r *GameRuntime) Run(ctx context.Context) error {
	return r.run(ctx, r.handle)
}

func (r *GameRuntime) handle(m Message) {
	switch m := m.(type) {
	case Init:
		r.mu.Lock()
		r.players = slices.Clone(m.Players)
		r.info = m.SessionInfo
		r.mu.Unlock()
		r.markInit()
	case PlayerInput:
		r.mu.RLock()
		cbs := slices.Clone(r.onInput)
		r.mu.RUnlock()
		for _, cb := range cbs {
			cb(m)
		}
	case PlayerJoined:
		r.mu.Lock()
		idx := slices.IndexFunc(r.players, func(p protocol.PlayerSummary) bool { return p.ID == m.Player.ID })
		if idx >= 0 {
			r.players[idx] = m.Player
		} else {
			r.players = append(r.players, m.Player)
		}
		cbs := slices.Clone(r.onJoin)
		r.mu.Unlock()
		for _, cb := range cbs {
			cb(m.Player)
		}
	case PlayerLeft:
		r.mu.Lock()
		r.players = slices.DeleteFunc(r.players, func(p protocol.PlayerSummary) bool { return p.ID == m.PlayerID })
		cbs := slices.Clone(r.onLeave)
		r.mu.Unlock()
		for _, cb := range cbs {
			cb(m.PlayerID)
		}
	}
}

// ControllerRuntime 控制器帧内的运行时，对应 AirCade 控制器 API
type ControllerRuntime struct {
	frame

	mu       sync.RWMutex
	player   *protocol.PlayerSummary
	info     SessionInfo
	onUpdate []func(state map[string]any)
}

// NewControllerRuntime 创建控制器帧运行时
func NewControllerRuntime(port Port) *ControllerRuntime {
	return &ControllerRuntime{frame: newFrame(port, "bridge.controller")}
}

// Player 当前玩家，init 之前为 nil
func (r *ControllerRuntime) Player() *protocol.PlayerSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.player == nil {
		return nil
	}
	p := *r.player
	return &p
}

// SessionInfo 会话信息
func (r *ControllerRuntime) SessionInfo() SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.info
}

// OnStateUpdate 注册状态更新回调
func (r *ControllerRuntime) OnStateUpdate(cb func(state map[string]any)) {
	r.mu.Lock()
	r.onUpdate = append(r.onUpdate, cb)
	r.mu.Unlock()
}

// SendInput 发送一次输入
func (r *ControllerRuntime) SendInput(inputType string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	return r.send(SendInput{InputType: inputType, Data: data})
}

// Run 发送 ready 并处理宿主消息
func (r *ControllerRuntime) Run(ctx context.Context) error {
	return r.run(ctx, r.handle)
}

func (r *ControllerRuntime) handle(m Message) {
	switch m := m.(type) {
	case Init:
		r.mu.Lock()
		r.player = m.Player
		r.info = m.SessionInfo
		r.mu.Unlock()
		r.markInit()
	case StateUpdate:
		r.mu.RLock()
		cbs := slices.Clone(r.onUpdate)
		r.mu.RUnlock()
		for _, cb := range cbs {
			cb(m.State)
		}
	}
}
