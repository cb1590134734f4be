package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type structuredErr struct{ msg string }

func (e structuredErr) Error() string       { return "status 400" }
func (e structuredErr) UserMessage() string { return e.msg }

func TestUserMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("dial tcp: refused"), DefaultMessage},
		{"structured", structuredErr{"Session is full"}, "Session is full"},
		{"structured wrapped", fmt.Errorf("join: %w", structuredErr{"Invalid code"}), "Invalid code"},
		{"structured empty", structuredErr{""}, DefaultMessage},
		{"timeout", fmt.Errorf("load: %w", ErrGameLoadTimeout), ErrGameLoadTimeout.Error()},
		{"validation", ErrInvalidSessionCode, ErrInvalidSessionCode.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestOperationError(t *testing.T) {
	t.Parallel()

	cause := structuredErr{"Session not found"}
	err := NewOperationError("join session", cause)

	assert.Equal(t, "Session not found", err.Message)
	assert.Equal(t, "join session: Session not found", err.Error())
	assert.ErrorIs(t, err, cause)

	var op *OperationError
	assert.True(t, errors.As(fmt.Errorf("ui: %w", err), &op))
	assert.Equal(t, "Session not found", UserMessage(op))
}

func TestOperationError_KeepsTimeoutDistinct(t *testing.T) {
	t.Parallel()

	timeout := NewOperationError("load game", ErrGameLoadTimeout)
	rest := NewOperationError("load game", structuredErr{"Game not found"})

	assert.ErrorIs(t, timeout, ErrGameLoadTimeout)
	assert.NotErrorIs(t, rest, ErrGameLoadTimeout)
}
