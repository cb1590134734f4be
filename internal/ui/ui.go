// Package ui renders the host console and the player controller in the
// terminal. Both models read the session Store and never mutate it directly.
package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/palemoky/aircade/internal/orchestrator"
	"github.com/palemoky/aircade/internal/session"
)

// SessionStore 界面依赖的会话能力，*session.Store 满足该接口
type SessionStore interface {
	orchestrator.Store
	CreateSession(ctx context.Context, maxPlayers int) error
	JoinSession(ctx context.Context, code, displayName string) error
	LoadGame(ctx context.Context, gameID string) error
	EndSession(ctx context.Context) error
	Resume(ctx context.Context) (bool, error)
}

// StateMsg Store 状态变更
type StateMsg struct {
	State session.State
}

// ErrorMsg 操作失败
type ErrorMsg struct {
	Err error
}

// ClearErrorMsg 清除错误提示
type ClearErrorMsg struct{}

// watcher 把 Store 通知转成 tea.Msg。只保留最新一份快照
type watcher struct {
	ch          chan session.State
	unsubscribe func()
}

func watch(store SessionStore) *watcher {
	w := &watcher{ch: make(chan session.State, 1)}
	w.unsubscribe = store.Subscribe(func(st session.State) {
		for {
			select {
			case w.ch <- st:
				return
			default:
			}
			select {
			case <-w.ch:
			default:
			}
		}
	})
	return w
}

// listen 等待下一次状态变更
func (w *watcher) listen() tea.Cmd {
	return func() tea.Msg {
		st, ok := <-w.ch
		if !ok {
			return nil
		}
		return StateMsg{State: st}
	}
}

func (w *watcher) stop() {
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
}
