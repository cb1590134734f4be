package orchestrator

import (
	"context"
	"sync"

	"github.com/palemoky/aircade/internal/bridge"
	"github.com/palemoky/aircade/internal/protocol"
)

// Player 玩家侧编排：游戏状态转给控制器帧，帧的输入交给 Store
type Player struct {
	store Store
	opts  []Option

	mu      sync.Mutex
	current *mount
	bridge  *bridge.PlayerBridge
}

// NewPlayer 创建玩家编排器
func NewPlayer(store Store, opts ...Option) *Player {
	return &Player{store: store, opts: opts}
}

// Mount 挂载控制器帧
func (p *Player) Mount(ctx context.Context, port bridge.Port) error {
	if err := requireRole(p.store.Snapshot(), protocol.RolePlayer); err != nil {
		return err
	}
	p.Unmount()

	m := newMount("orchestrator.player", p.opts)
	if !m.keepConn {
		m.onTeardown(p.store.Disconnect)
	}

	b := bridge.NewPlayerBridge(port, p.store, bridge.WithLogger(m.log))
	m.run(ctx, b.Run)
	m.onTeardown(func() { _ = b.Close() })

	p.store.SetOnGameStateEvent(func(ev protocol.GameStatePayload) { b.StateUpdate(ev.State) })
	m.onTeardown(func() { p.store.SetOnGameStateEvent(nil) })

	p.mu.Lock()
	p.current, p.bridge = m, b
	p.mu.Unlock()
	m.log.Debug().Msg("controller mounted")
	return nil
}

// Unmount 逆序拆除，可重复调用
func (p *Player) Unmount() {
	p.mu.Lock()
	m := p.current
	p.current, p.bridge = nil, nil
	p.mu.Unlock()
	if m != nil {
		m.unmount()
	}
}

// Bridge 当前挂载的桥
func (p *Player) Bridge() *bridge.PlayerBridge {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bridge
}
