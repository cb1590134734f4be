// Package transport maintains the reconnecting WebSocket connection to the
// session relay and dispatches typed envelopes to registered handlers.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/palemoky/aircade/internal/logger"
	"github.com/palemoky/aircade/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBufferSize = 256

	// 默认心跳间隔
	DefaultHeartbeatInterval = 25 * time.Second
	// 默认最大重连次数
	DefaultMaxReconnectAttempts = 10
	// 默认首次重连延迟与上限
	DefaultReconnectBaseDelay = time.Second
	DefaultReconnectMaxDelay  = 16 * time.Second
	// 默认握手超时
	DefaultHandshakeTimeout = 10 * time.Second
)

// Conn 底层连接，*websocket.Conn 满足该接口
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer 建立到中继的连接
type Dialer func(ctx context.Context, url string) (Conn, error)

// Handler 入站消息处理函数
type Handler func(msg *protocol.Message)

// HandlerID 由 On 返回，用于 Off
type HandlerID uint64

type handlerEntry struct {
	id HandlerID
	fn Handler
}

type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateOpen
)

// Client 可自动重连的 WebSocket 客户端
type Client struct {
	url string

	dial              Dialer
	schedule          Scheduler
	heartbeatInterval time.Duration
	maxAttempts       int
	baseDelay         time.Duration
	maxDelay          time.Duration
	log               zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.RWMutex
	state           connState
	gen             uint64 // 每次拨号递增，旧连接的回调据此丢弃
	conn            Conn
	send            chan []byte
	done            chan struct{}
	attempts        int
	shouldReconnect bool
	disconnected    bool
	cancelReconnect func()

	handlers map[protocol.MessageType][]handlerEntry
	nextID   HandlerID

	onOpen  func()
	onClose func(code int)
}

// Option 客户端选项
type Option func(*Client)

// WithDialer 替换拨号实现
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithScheduler 替换定时调度实现
func WithScheduler(s Scheduler) Option {
	return func(c *Client) { c.schedule = s }
}

// WithHeartbeatInterval 设置心跳间隔
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.heartbeatInterval = d
		}
	}
}

// WithReconnectPolicy 设置最大重连次数与退避参数
func WithReconnectPolicy(maxAttempts int, base, maxDelay time.Duration) Option {
	return func(c *Client) {
		if maxAttempts >= 0 {
			c.maxAttempts = maxAttempts
		}
		if base > 0 {
			c.baseDelay = base
		}
		if maxDelay > 0 {
			c.maxDelay = maxDelay
		}
	}
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewWebsocketDialer 基于 gorilla/websocket 的默认拨号器
func NewWebsocketDialer(handshakeTimeout time.Duration) Dialer {
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	return func(ctx context.Context, url string) (Conn, error) {
		conn, resp, err := d.DialContext(ctx, url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// NewClient 创建客户端，不会立即连接
func NewClient(url string, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:               url,
		dial:              NewWebsocketDialer(DefaultHandshakeTimeout),
		schedule:          AfterFunc,
		heartbeatInterval: DefaultHeartbeatInterval,
		maxAttempts:       DefaultMaxReconnectAttempts,
		baseDelay:         DefaultReconnectBaseDelay,
		maxDelay:          DefaultReconnectMaxDelay,
		log:               logger.L("transport"),
		ctx:               ctx,
		cancel:            cancel,
		shouldReconnect:   true,
		handlers:          make(map[protocol.MessageType][]handlerEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL 返回连接地址
func (c *Client) URL() string {
	return c.url
}

// Connect 连接中继。已连接或正在拨号时为空操作；Disconnect 之后不再连接
func (c *Client) Connect() {
	c.mu.Lock()
	if c.disconnected || c.state != stateIdle {
		c.mu.Unlock()
		return
	}
	c.state = stateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.dialAndServe(gen)
}

func (c *Client) dialAndServe(gen uint64) {
	conn, err := c.dial(c.ctx, c.url)

	c.mu.Lock()
	if gen != c.gen || c.disconnected {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.log.Debug().Err(err).Int("attempt", c.Attempts()).Msg("dial failed")
		c.handleClosed(gen, websocket.CloseAbnormalClosure)
		return
	}

	c.conn = conn
	c.state = stateOpen
	c.attempts = 0
	c.send = make(chan []byte, sendBufferSize)
	c.done = make(chan struct{})
	send, done := c.send, c.done
	onOpen := c.onOpen
	c.mu.Unlock()

	c.log.Debug().Str("url", c.url).Msg("connected")

	go c.writePump(conn, send, done)
	go c.heartbeat(done)
	if onOpen != nil {
		onOpen()
	}
	go c.readPump(gen, conn)
}

// Disconnect 永久关闭连接：停止重连与心跳，以 1000 关闭连接并清空处理器。
// 有打开的连接时 OnClose 回调收到一次 1000。可重复调用
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.shouldReconnect = false
	if c.disconnected {
		c.mu.Unlock()
		return
	}
	c.disconnected = true
	c.gen++
	if c.cancelReconnect != nil {
		c.cancelReconnect()
		c.cancelReconnect = nil
	}
	c.stopConnLocked()
	conn := c.conn
	c.conn = nil
	c.state = stateIdle
	c.handlers = make(map[protocol.MessageType][]handlerEntry)
	onClose := c.onClose
	c.mu.Unlock()

	c.cancel()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		if onClose != nil {
			onClose(websocket.CloseNormalClosure)
		}
	}
	c.log.Debug().Msg("disconnected")
}

// stopConnLocked 通知当前连接的写协程与心跳退出
func (c *Client) stopConnLocked() {
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.send = nil
}

// Send 发送消息。未连接时静默丢弃，不排队、不重试
func (c *Client) Send(msgType protocol.MessageType, payload any) bool {
	c.mu.RLock()
	if c.state != stateOpen {
		c.mu.RUnlock()
		return false
	}
	send, done := c.send, c.done
	c.mu.RUnlock()

	data, err := encodeEnvelope(msgType, payload)
	if err != nil {
		c.log.Warn().Err(err).Str("type", string(msgType)).Msg("drop unencodable message")
		return false
	}

	select {
	case <-done:
		return false
	default:
	}

	select {
	case send <- data:
		return true
	case <-done:
		return false
	default:
		c.log.Warn().Str("type", string(msgType)).Msg("send buffer full, message dropped")
		return false
	}
}

// On 注册某类型消息的处理器，同一类型可注册多个，按注册顺序调用
func (c *Client) On(msgType protocol.MessageType, h Handler) HandlerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.handlers[msgType] = append(c.handlers[msgType], handlerEntry{id: c.nextID, fn: h})
	return c.nextID
}

// Off 注销处理器
func (c *Client) Off(msgType protocol.MessageType, id HandlerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.handlers[msgType]
	for i, e := range entries {
		if e.id == id {
			c.handlers[msgType] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(c.handlers[msgType]) == 0 {
		delete(c.handlers, msgType)
	}
}

// OnOpen 设置连接成功回调
func (c *Client) OnOpen(cb func()) {
	c.mu.Lock()
	c.onOpen = cb
	c.mu.Unlock()
}

// OnClose 设置连接关闭回调，参数为关闭码
func (c *Client) OnClose(cb func(code int)) {
	c.mu.Lock()
	c.onClose = cb
	c.mu.Unlock()
}

// IsConnected 是否已连接
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateOpen
}

// IsReconnecting 是否有待执行的重连
func (c *Client) IsReconnecting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cancelReconnect != nil || (c.state == stateConnecting && c.attempts > 0)
}

// Attempts 当前连续重连次数
func (c *Client) Attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attempts
}
