package apperrors

import (
	"errors"
	"fmt"
)

// DefaultMessage 没有结构化错误信息时展示给用户的兜底文案
const DefaultMessage = "An unexpected error occurred. Please try again."

// 预定义错误
var (
	ErrNoSession          = errors.New("no active session")
	ErrNotHost            = errors.New("only the host can do this")
	ErrNotPlayer          = errors.New("only a joined player can do this")
	ErrInvalidSessionCode = errors.New("session code must be 4-6 letters or digits")
	ErrInvalidDisplayName = errors.New("display name must be 1-30 characters")
	ErrAlreadyLoading     = errors.New("a game is already loading")

	// ErrGameLoadTimeout 加载请求成功，但在等待窗口内没有收到 game_loaded
	ErrGameLoadTimeout = errors.New("game failed to load: game_loaded event not received in time")
)

// OperationError 会话生命周期操作（create/join/load/end）失败
type OperationError struct {
	Op      string
	Message string // 面向用户的可读信息
	Err     error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// MessageProvider 能给出面向用户信息的错误
type MessageProvider interface {
	UserMessage() string
}

// NewOperationError 包装底层错误，优先使用结构化的用户信息
func NewOperationError(op string, err error) *OperationError {
	return &OperationError{Op: op, Message: UserMessage(err), Err: err}
}

// UserMessage 提取可展示给用户的错误信息
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var op *OperationError
	if errors.As(err, &op) {
		return op.Message
	}
	var mp MessageProvider
	if errors.As(err, &mp) {
		if msg := mp.UserMessage(); msg != "" {
			return msg
		}
	}
	for _, known := range []error{ErrGameLoadTimeout, ErrInvalidSessionCode, ErrInvalidDisplayName, ErrNoSession, ErrNotHost, ErrAlreadyLoading} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return DefaultMessage
}
