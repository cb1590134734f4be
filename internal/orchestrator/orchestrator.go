// Package orchestrator wires a session Store to a frame bridge for the
// lifetime of one mounted game or controller screen.
package orchestrator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/palemoky/aircade/internal/apperrors"
	"github.com/palemoky/aircade/internal/logger"
	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/session"
)

// Store 编排器依赖的会话能力，*session.Store 满足该接口
type Store interface {
	Snapshot() session.State
	Subscribe(fn func(session.State)) (unsubscribe func())
	SetOnPlayerInputEvent(cb func(protocol.PlayerInputEventPayload))
	SetOnGameStateEvent(cb func(protocol.GameStatePayload))
	BroadcastGameState(state map[string]any) bool
	SendPlayerInput(inputType string, data map[string]any) bool
	Disconnect()
}

// Option 编排器选项
type Option func(*mount)

// KeepConnection 卸载时保留中继连接，用于同一会话内切换游戏
func KeepConnection() Option {
	return func(m *mount) { m.keepConn = true }
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(m *mount) { m.log = l }
}

// mount 一次挂载。teardown 按挂载的逆序执行，只执行一次
type mount struct {
	log      zerolog.Logger
	keepConn bool

	once     sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
	teardown []func()
}

func newMount(component string, opts []Option) *mount {
	m := &mount{log: logger.L(component), done: make(chan struct{})}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// onTeardown 登记清理步骤
func (m *mount) onTeardown(fn func()) {
	m.teardown = append(m.teardown, fn)
}

func (m *mount) run(ctx context.Context, serve func(context.Context) error) {
	ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		defer close(m.done)
		if err := serve(ctx); err != nil && ctx.Err() == nil {
			m.log.Warn().Err(err).Msg("bridge stopped")
		}
	}()
}

func (m *mount) unmount() {
	m.once.Do(func() {
		for i := len(m.teardown) - 1; i >= 0; i-- {
			m.teardown[i]()
		}
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
		m.log.Debug().Msg("unmounted")
	})
}

func requireRole(st session.State, role protocol.Role) error {
	if !st.HasSession() {
		return apperrors.ErrNoSession
	}
	if st.Role != role {
		if role == protocol.RoleHost {
			return apperrors.ErrNotHost
		}
		return apperrors.ErrNotPlayer
	}
	return nil
}
