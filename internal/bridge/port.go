package bridge

import (
	"errors"
	"sync"
)

// ErrPortClosed 端口已关闭
var ErrPortClosed = errors.New("bridge: port closed")

const pipeBuffer = 64

// Port 单帧的双向消息通道。消息按值传递，接收方拿到的是副本
type Port interface {
	Post(data []byte) error
	Messages() <-chan []byte
	Close() error
}

// Pipe 创建一对相连的内存端口，一端给宿主，一端给帧
func Pipe() (parent, frame Port) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	shared := &pipeShared{done: make(chan struct{})}
	a := &pipePort{in: ba, out: ab, shared: shared, recv: make(chan []byte)}
	b := &pipePort{in: ab, out: ba, shared: shared, recv: make(chan []byte)}
	go a.pump()
	go b.pump()
	return a, b
}

type pipeShared struct {
	once sync.Once
	done chan struct{}
}

type pipePort struct {
	in     chan []byte
	out    chan []byte
	recv   chan []byte
	shared *pipeShared
}

// Post 投递一条消息。对端缓冲区满时阻塞，任一端关闭后返回 ErrPortClosed
func (p *pipePort) Post(data []byte) error {
	select {
	case <-p.shared.done:
		return ErrPortClosed
	default:
	}
	msg := make([]byte, len(data))
	copy(msg, data)
	select {
	case p.out <- msg:
		return nil
	case <-p.shared.done:
		return ErrPortClosed
	}
}

// Messages 入站消息，关闭后被关闭
func (p *pipePort) Messages() <-chan []byte {
	return p.recv
}

// Close 关闭整条管道，可重复调用
func (p *pipePort) Close() error {
	p.shared.once.Do(func() { close(p.shared.done) })
	return nil
}

func (p *pipePort) pump() {
	defer close(p.recv)
	for {
		select {
		case msg := <-p.in:
			select {
			case p.recv <- msg:
			case <-p.shared.done:
				return
			}
		case <-p.shared.done:
			return
		}
	}
}
