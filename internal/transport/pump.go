package transport

import (
	"errors"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/palemoky/aircade/internal/logger"
	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/protocol/codec"
)

func encodeEnvelope(msgType protocol.MessageType, payload any) ([]byte, error) {
	msg, err := codec.NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	return codec.Encode(msg)
}

// readPump 从中继读取消息并分发
func (c *Client) readPump(gen uint64, conn Conn) {
	code := websocket.CloseAbnormalClosure
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic("transport", r)
		}
		_ = conn.Close()
		c.handleClosed(gen, code)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("connection lost")
			}
			return
		}
		// 任何入站数据都说明连接仍然存活
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := codec.Decode(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("discard malformed frame")
			continue
		}
		c.dispatch(msg)
	}
}

// dispatch 按注册顺序调用处理器，单个处理器 panic 不影响后续消息
func (c *Client) dispatch(msg *protocol.Message) {
	c.mu.RLock()
	entries := slices.Clone(c.handlers[msg.Type])
	c.mu.RUnlock()

	for _, e := range entries {
		c.invoke(e.fn, msg)
	}
}

func (c *Client) invoke(h Handler, msg *protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic("transport", r)
		}
	}()
	h(msg)
}

// writePump 向中继写入消息
func (c *Client) writePump(conn Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic("transport", r)
		}
		ticker.Stop()
	}()

	for {
		select {
		case message := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				// 关闭连接让 readPump 走关闭流程
				_ = conn.Close()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}

		case <-done:
			return
		}
	}
}

// heartbeat 定期发送 ping 信封，保持经过空闲代理的连接
func (c *Client) heartbeat(done <-chan struct{}) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Send(protocol.MsgPing, nil)
		case <-done:
			return
		}
	}
}
