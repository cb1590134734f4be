// Package codec encodes and decodes relay envelopes.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/palemoky/aircade/internal/protocol"
)

// ErrMalformedFrame 收到的帧不是合法的信封
var ErrMalformedFrame = errors.New("malformed frame")

var emptyPayload = json.RawMessage(`{}`)

// now 可在测试中替换
var now = time.Now

// NewMessage 创建一个带时间戳和唯一 ID 的消息。payload 为 nil 时编码为空对象
func NewMessage(msgType protocol.MessageType, payload any) (*protocol.Message, error) {
	data := emptyPayload
	if payload != nil {
		raw, err := marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
		}
		if !bytes.Equal(raw, []byte("null")) {
			data = raw
		}
	}
	return &protocol.Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: now().UTC().Format(time.RFC3339Nano),
		MessageID: uuid.NewString(),
	}, nil
}

// MustNewMessage 创建消息，失败时 panic
func MustNewMessage(msgType protocol.MessageType, payload any) *protocol.Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Encode 将消息编码为 JSON 字节
func Encode(m *protocol.Message) ([]byte, error) {
	return marshal(m)
}

// marshal 不转义 HTML 字符，游戏状态里的标记原样上线
func marshal(v any) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder 会追加换行，每帧一个信封
	return bytes.Clone(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Decode 从 JSON 字节解码消息。type 缺失或不是字符串的帧视为畸形
func Decode(data []byte) (*protocol.Message, error) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	if len(msg.Payload) == 0 || bytes.Equal(msg.Payload, []byte("null")) {
		msg.Payload = emptyPayload
	}
	return &msg, nil
}

// ParsePayload 解析消息的 Payload 到指定类型
func ParsePayload[T any](msg *protocol.Message) (*T, error) {
	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return &payload, nil
}
