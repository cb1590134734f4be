//go:build !production

package testutil

import (
	"slices"
	"sync"

	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/protocol/codec"
	"github.com/palemoky/aircade/internal/transport"
)

type fakeHandler struct {
	id transport.HandlerID
	fn transport.Handler
}

// FakeTransport 内存中的中继连接，由测试驱动打开、关闭与入站消息
type FakeTransport struct {
	URL string
	// KeepHandlers 为真时 Disconnect 不清空处理器，用于验证上层自行丢弃过期事件
	KeepHandlers bool

	mu           sync.Mutex
	handlers     map[protocol.MessageType][]fakeHandler
	nextID       transport.HandlerID
	onOpen       func()
	onClose      func(int)
	connected    bool
	reconnecting bool
	disconnected bool
	connects     int
	disconnects  int
	sent         []*protocol.Message
}

// NewFakeTransport 创建未连接的 FakeTransport
func NewFakeTransport(url string) *FakeTransport {
	return &FakeTransport{URL: url, handlers: make(map[protocol.MessageType][]fakeHandler)}
}

func (f *FakeTransport) Connect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
}

func (f *FakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.disconnected = true
	f.connected = false
	f.reconnecting = false
	if !f.KeepHandlers {
		f.handlers = make(map[protocol.MessageType][]fakeHandler)
	}
}

func (f *FakeTransport) Send(msgType protocol.MessageType, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return false
	}
	msg, err := codec.NewMessage(msgType, payload)
	if err != nil {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *FakeTransport) On(msgType protocol.MessageType, h transport.Handler) transport.HandlerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.handlers[msgType] = append(f.handlers[msgType], fakeHandler{id: f.nextID, fn: h})
	return f.nextID
}

func (f *FakeTransport) Off(msgType protocol.MessageType, id transport.HandlerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[msgType] = slices.DeleteFunc(f.handlers[msgType], func(h fakeHandler) bool { return h.id == id })
}

func (f *FakeTransport) OnOpen(cb func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onOpen = cb
}

func (f *FakeTransport) OnClose(cb func(int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClose = cb
}

func (f *FakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeTransport) IsReconnecting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnecting
}

// Open 模拟连接成功
func (f *FakeTransport) Open() {
	f.mu.Lock()
	if f.disconnected {
		f.mu.Unlock()
		return
	}
	f.connected = true
	f.reconnecting = false
	cb := f.onOpen
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Drop 模拟断线，reconnecting 表示是否还会重连
func (f *FakeTransport) Drop(code int, reconnecting bool) {
	f.mu.Lock()
	f.connected = false
	f.reconnecting = reconnecting
	cb := f.onClose
	f.mu.Unlock()
	if cb != nil {
		cb(code)
	}
}

// Deliver 模拟收到一条中继消息，按注册顺序同步分发
func (f *FakeTransport) Deliver(msgType protocol.MessageType, payload any) {
	f.DeliverMessage(codec.MustNewMessage(msgType, payload))
}

// DeliverMessage 分发已构造的消息
func (f *FakeTransport) DeliverMessage(msg *protocol.Message) {
	f.mu.Lock()
	hs := slices.Clone(f.handlers[msg.Type])
	f.mu.Unlock()
	for _, h := range hs {
		h.fn(msg)
	}
}

// Sent 已发送的消息
func (f *FakeTransport) Sent() []*protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

// Connects Connect 被调用的次数
func (f *FakeTransport) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Disconnects Disconnect 被调用的次数
func (f *FakeTransport) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// HandlerCount 某类型已注册的处理器数量
func (f *FakeTransport) HandlerCount(msgType protocol.MessageType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[msgType])
}

// TransportRecorder 记录由工厂创建的所有 FakeTransport
type TransportRecorder struct {
	KeepHandlers bool

	mu         sync.Mutex
	transports []*FakeTransport
}

// New 创建并记录一个 FakeTransport
func (r *TransportRecorder) New(url string) *FakeTransport {
	t := NewFakeTransport(url)
	t.KeepHandlers = r.KeepHandlers
	r.mu.Lock()
	r.transports = append(r.transports, t)
	r.mu.Unlock()
	return t
}

// All 所有已创建的连接
func (r *TransportRecorder) All() []*FakeTransport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.transports)
}

// Last 最近创建的连接，没有时为 nil
func (r *TransportRecorder) Last() *FakeTransport {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.transports) == 0 {
		return nil
	}
	return r.transports[len(r.transports)-1]
}
