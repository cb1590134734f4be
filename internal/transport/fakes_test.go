package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/protocol/codec"
)

// fakeConn 内存连接，记录写入的帧
type fakeConn struct {
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once

	mu        sync.Mutex
	closeCode int
	written   [][]byte
	controls  [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming:  make(chan []byte, 16),
		closed:    make(chan struct{}),
		closeCode: websocket.CloseAbnormalClosure,
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.incoming:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		f.mu.Lock()
		code := f.closeCode
		f.mu.Unlock()
		return 0, nil, &websocket.CloseError{Code: code}
	}
}

func (f *fakeConn) WriteMessage(mt int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	default:
	}
	if mt != websocket.TextMessage {
		return nil
	}
	f.mu.Lock()
	f.written = append(f.written, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) WriteControl(_ int, data []byte, _ time.Time) error {
	f.mu.Lock()
	f.controls = append(f.controls, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// drop 模拟网络断开
func (f *fakeConn) drop(code int) {
	f.mu.Lock()
	f.closeCode = code
	f.mu.Unlock()
	_ = f.Close()
}

func (f *fakeConn) push(msgType protocol.MessageType, payload any) {
	data, err := codec.Encode(codec.MustNewMessage(msgType, payload))
	if err != nil {
		panic(err)
	}
	f.incoming <- data
}

func (f *fakeConn) sent() []*protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*protocol.Message, 0, len(f.written))
	for _, data := range f.written {
		if msg, err := codec.Decode(data); err == nil {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeConn) sentOfType(t protocol.MessageType) int {
	n := 0
	for _, m := range f.sent() {
		if m.Type == t {
			n++
		}
	}
	return n
}

// fakeDialer 依次返回预置连接，用完后返回错误
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	calls atomic.Int32
	urls  []string
}

func (d *fakeDialer) add(c *fakeConn) *fakeConn {
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c
}

func (d *fakeDialer) dial(_ context.Context, url string) (Conn, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

// fakeScheduler 记录延迟，由测试手动触发
type fakeScheduler struct {
	mu      sync.Mutex
	delays  []time.Duration
	pending []func()
}

func (s *fakeScheduler) schedule(d time.Duration, f func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	idx := len(s.pending)
	s.pending = append(s.pending, f)
	return func() {
		s.mu.Lock()
		s.pending[idx] = nil
		s.mu.Unlock()
	}
}

func (s *fakeScheduler) scheduled() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// fireLast 执行最近一次仍有效的调度
func (s *fakeScheduler) fireLast() bool {
	s.mu.Lock()
	var f func()
	for i := len(s.pending) - 1; i >= 0; i-- {
		if s.pending[i] != nil {
			f = s.pending[i]
			s.pending[i] = nil
			break
		}
	}
	s.mu.Unlock()
	if f == nil {
		return false
	}
	f()
	return true
}

func (s *fakeScheduler) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.pending {
		if f != nil {
			n++
		}
	}
	return n
}
