package bridge

import (
	"context"

	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/session"
)

// HostSource 主机桥依赖的会话能力，*session.Store 满足该接口
type HostSource interface {
	Snapshot() session.State
	BroadcastGameState(state map[string]any) bool
}

// HostBridge 宿主与游戏画面帧之间的桥
type HostBridge struct {
	endpoint
	src HostSource
}

// NewHostBridge 创建主机桥，需调用 Run 开始处理帧消息
func NewHostBridge(port Port, src HostSource, opts ...Option) *HostBridge {
	b := &HostBridge{src: src}
	b.setup(port, "bridge.host", opts)
	return b
}

// Run 处理帧消息直到端口关闭或 ctx 取消
func (b *HostBridge) Run(ctx context.Context) error {
	return b.serve(ctx, b.handle)
}

func (b *HostBridge) handle(m Message) {
	switch m := m.(type) {
	case Ready:
		b.greet(b.init)
	case BroadcastState:
		if !b.src.BroadcastGameState(m.State) {
			b.log.Debug().Msg("relay not connected, state dropped")
		}
	default:
		b.log.Debug().Str("type", string(m.Type())).Msg("ignore message not meant for host")
	}
}

func (b *HostBridge) init() Init {
	st := b.src.Snapshot()
	players := make([]protocol.PlayerSummary, 0, len(st.Players))
	for _, p := range st.Players {
		players = append(players, p.Summary())
	}
	return Init{Role: protocol.RoleHost, Players: players, SessionInfo: sessionInfo(st)}
}

// ForwardInput 把玩家输入转给帧，ready 之前丢弃
func (b *HostBridge) ForwardInput(ev protocol.PlayerInputEventPayload) bool {
	return b.post(PlayerInput{PlayerID: ev.PlayerID, InputType: ev.InputType, Data: ev.Data})
}

// PlayerJoined 通知帧有玩家加入
func (b *HostBridge) PlayerJoined(p protocol.PlayerSummary) bool {
	return b.post(PlayerJoined{Player: p})
}

// PlayerLeft 通知帧有玩家离开
func (b *HostBridge) PlayerLeft(playerID string) bool {
	return b.post(PlayerLeft{PlayerID: playerID})
}
