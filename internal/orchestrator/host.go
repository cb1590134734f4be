package orchestrator

import (
	"context"
	"sync"

	"github.com/palemoky/aircade/internal/bridge"
	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/session"
)

// Host 主机侧编排：玩家输入与名单变化转给游戏帧，帧的广播交给 Store
type Host struct {
	store Store
	opts  []Option

	mu      sync.Mutex
	current *mount
	bridge  *bridge.HostBridge
}

// NewHost 创建主机编排器
func NewHost(store Store, opts ...Option) *Host {
	return &Host{store: store, opts: opts}
}

// Mount 挂载游戏帧。已挂载时先卸载旧的
func (h *Host) Mount(ctx context.Context, port bridge.Port) error {
	if err := requireRole(h.store.Snapshot(), protocol.RoleHost); err != nil {
		return err
	}
	h.Unmount()

	m := newMount("orchestrator.host", h.opts)
	if !m.keepConn {
		m.onTeardown(h.store.Disconnect)
	}

	b := bridge.NewHostBridge(port, h.store, bridge.WithLogger(m.log))
	m.run(ctx, b.Run)
	m.onTeardown(func() { _ = b.Close() })

	h.store.SetOnPlayerInputEvent(func(ev protocol.PlayerInputEventPayload) { b.ForwardInput(ev) })
	m.onTeardown(func() { h.store.SetOnPlayerInputEvent(nil) })

	m.onTeardown(watchRoster(h.store, b))

	h.mu.Lock()
	h.current, h.bridge = m, b
	h.mu.Unlock()
	m.log.Debug().Msg("game screen mounted")
	return nil
}

// Unmount 逆序拆除，可重复调用
func (h *Host) Unmount() {
	h.mu.Lock()
	m := h.current
	h.current, h.bridge = nil, nil
	h.mu.Unlock()
	if m != nil {
		m.unmount()
	}
}

// Bridge 当前挂载的桥，未挂载时为 nil
func (h *Host) Bridge() *bridge.HostBridge {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bridge
}

// watchRoster 比较前后两次名单，把增减通知给帧
func watchRoster(store Store, b *bridge.HostBridge) (unsubscribe func()) {
	var mu sync.Mutex
	known := rosterOf(store.Snapshot())

	return store.Subscribe(func(st session.State) {
		mu.Lock()
		defer mu.Unlock()

		next := rosterOf(st)
		for _, p := range st.Players {
			if _, ok := known[p.ID]; !ok {
				b.PlayerJoined(p.Summary())
			}
		}
		for id := range known {
			if _, ok := next[id]; !ok {
				b.PlayerLeft(id)
			}
		}
		known = next
	})
}

func rosterOf(st session.State) map[string]struct{} {
	ids := make(map[string]struct{}, len(st.Players))
	for _, p := range st.Players {
		ids[p.ID] = struct{}{}
	}
	return ids
}
