package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/palemoky/aircade/internal/bridge"
	"github.com/palemoky/aircade/internal/protocol"
)

// FrameEventMsg 终端帧里发生的事件
type FrameEventMsg struct {
	Line string
}

// FrameStateMsg 控制器帧收到的游戏状态
type FrameStateMsg struct {
	State map[string]any
}

// frameEvents 帧事件通道，满了就丢最旧的
type frameEvents chan tea.Msg

func (c frameEvents) push(msg tea.Msg) {
	for {
		select {
		case c <- msg:
			return
		default:
		}
		select {
		case <-c:
		default:
		}
	}
}

func (c frameEvents) listen() tea.Cmd {
	return func() tea.Msg {
		return <-c
	}
}

// tallyFrame 终端里的游戏画面：统计每位玩家的输入次数并广播给所有控制器
type tallyFrame struct {
	rt     *bridge.GameRuntime
	events frameEvents

	mu     sync.Mutex
	counts map[string]int
}

func newTallyFrame(port bridge.Port, events frameEvents) *tallyFrame {
	f := &tallyFrame{rt: bridge.NewGameRuntime(port), events: events, counts: make(map[string]int)}
	f.rt.OnPlayerInput(f.onInput)
	f.rt.OnPlayerJoin(func(p protocol.PlayerSummary) {
		f.events.push(FrameEventMsg{Line: okStyle.Render("+ " + p.DisplayName)})
	})
	f.rt.OnPlayerLeave(func(id string) {
		f.mu.Lock()
		delete(f.counts, id)
		f.mu.Unlock()
		f.events.push(FrameEventMsg{Line: mutedStyle.Render("- " + id)})
	})
	return f
}

func (f *tallyFrame) run(ctx context.Context) {
	_ = f.rt.Run(ctx)
}

func (f *tallyFrame) name(playerID string) string {
	for _, p := range f.rt.Players() {
		if p.ID == playerID {
			return p.DisplayName
		}
	}
	return playerID
}

func (f *tallyFrame) onInput(in bridge.PlayerInput) {
	f.mu.Lock()
	f.counts[in.PlayerID]++
	scores := make(map[string]any, len(f.counts))
	for id, n := range f.counts {
		scores[id] = n
	}
	f.mu.Unlock()

	f.events.push(FrameEventMsg{Line: fmt.Sprintf("%s %s %s", f.name(in.PlayerID), in.InputType, describeData(in.Data))})
	_ = f.rt.BroadcastState(map[string]any{
		"scores": scores,
		"last":   map[string]any{"playerId": in.PlayerID, "inputType": in.InputType},
	})
}

// describeData 输入数据的单行摘要
func describeData(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}

// parseInput 第一个词作为输入类型，其余部分放进 data.text
func parseInput(line string) (inputType string, data map[string]any, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, false
	}
	data = map[string]any{}
	if rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0])); rest != "" {
		data["text"] = rest
	}
	return fields[0], data, true
}

// writeFramePage 把帧文档写成可在浏览器打开的页面，返回路径
func writeFramePage(dir, name, title, srcdoc string) (string, error) {
	page, err := bridge.FramePage(title, srcdoc)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create render directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		return "", fmt.Errorf("failed to write frame page: %w", err)
	}
	return path, nil
}
