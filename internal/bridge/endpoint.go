package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/palemoky/aircade/internal/logger"
	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/session"
)

// Option 桥选项
type Option func(*endpoint)

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(e *endpoint) { e.log = l }
}

// endpoint 宿主侧的公共部分：ready 门控与读循环
type endpoint struct {
	port Port
	log  zerolog.Logger

	mu     sync.Mutex // 串行化 ready 判断与投递
	ready  bool
	closed bool
}

// setup 原地初始化，endpoint 含锁不可复制
func (e *endpoint) setup(port Port, component string, opts []Option) {
	e.port = port
	e.log = logger.L(component)
	for _, opt := range opts {
		opt(e)
	}
}

// Ready 帧是否已经发过 ready
func (e *endpoint) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// post 投递非 init 消息，ready 之前直接丢弃
func (e *endpoint) post(m Message) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready || e.closed {
		return false
	}
	return e.write(m)
}

// greet 收到 ready 后打开门控并回 init。帧重载会再次 ready，每次都重新下发
func (e *endpoint) greet(build func() Init) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.ready = true
	e.write(build())
}

func (e *endpoint) write(m Message) bool {
	data, err := Encode(m)
	if err != nil {
		e.log.Warn().Err(err).Str("type", string(m.Type())).Msg("drop unencodable bridge message")
		return false
	}
	if err := e.port.Post(data); err != nil {
		return false
	}
	return true
}

// serve 读取帧消息直到端口关闭或 ctx 取消
func (e *endpoint) serve(ctx context.Context, handle func(Message)) error {
	msgs := e.port.Messages()
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
					e.log.Debug().Err(err).Msg("drop invalid bridge message")
				}
				continue
			}
			e.dispatch(handle, m)
		}
	}
}

func (e *endpoint) dispatch(handle func(Message), m Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic("bridge", r)
		}
	}()
	handle(m)
}

// Close 关闭门控与端口，可重复调用
func (e *endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.ready = false
	e.mu.Unlock()
	return e.port.Close()
}

// sessionInfo 会话信息，缺省状态为 playing，缺省人数为 8
func sessionInfo(st session.State) SessionInfo {
	var info SessionInfo
	if st.Session != nil {
		info.SessionID = st.Session.ID
		info.SessionCode = st.Session.SessionCode
		info.Status = st.Session.Status
		info.MaxPlayers = st.Session.MaxPlayers
	}
	if info.Status == "" {
		info.Status = protocol.StatusPlaying
	}
	if info.MaxPlayers <= 0 {
		info.MaxPlayers = protocol.DefaultMaxPlayers
	}
	return info
}
