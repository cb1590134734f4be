package bridge

import (
	"context"

	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/session"
)

// PlayerSource 玩家桥依赖的会话能力，*session.Store 满足该接口
type PlayerSource interface {
	Snapshot() session.State
	SendPlayerInput(inputType string, data map[string]any) bool
}

// PlayerBridge 宿主与控制器帧之间的桥
type PlayerBridge struct {
	endpoint
	src PlayerSource
}

// NewPlayerBridge 创建玩家桥
func NewPlayerBridge(port Port, src PlayerSource, opts ...Option) *PlayerBridge {
	b := &PlayerBridge{src: src}
	b.setup(port, "bridge.player", opts)
	return b
}

// Run 处理帧消息直到端口关闭或 ctx 取消
func (b *PlayerBridge) Run(ctx context.Context) error {
	return b.serve(ctx, b.handle)
}

func (b *PlayerBridge) handle(m Message) {
	switch m := m.(type) {
	case Ready:
		b.greet(b.init)
	case SendInput:
		if !b.src.SendPlayerInput(m.InputType, m.Data) {
			b.log.Debug().Str("input", m.InputType).Msg("relay not connected, input dropped")
		}
	default:
		b.log.Debug().Str("type", string(m.Type())).Msg("ignore message not meant for controller")
	}
}

func (b *PlayerBridge) init() Init {
	st := b.src.Snapshot()
	msg := Init{Role: protocol.RolePlayer, SessionInfo: sessionInfo(st)}
	if st.CurrentPlayer != nil {
		p := st.CurrentPlayer.Summary()
		msg.Player = &p
	}
	return msg
}

// StateUpdate 把游戏状态转给控制器帧，ready 之前丢弃
func (b *PlayerBridge) StateUpdate(state map[string]any) bool {
	return b.post(StateUpdate{State: state})
}
