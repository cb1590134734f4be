package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/palemoky/aircade/internal/apperrors"
	"github.com/palemoky/aircade/internal/bridge"
	"github.com/palemoky/aircade/internal/orchestrator"
	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/session"
)

const errorDisplayTime = 5 * time.Second

// ConsoleOptions 主机控制台选项
type ConsoleOptions struct {
	MaxPlayers int
	GameID     string
	WebBase    string // 玩家加入页的站点地址
	RenderDir  string // 非空时把加载的游戏画面写成 HTML 页面
	Resume     bool   // 先尝试恢复上次的会话
}

type sessionReadyMsg struct{}

type gameLoadedMsg struct{}

type sessionEndedMsg struct{}

// ConsoleModel 主机控制台
type ConsoleModel struct {
	store  SessionStore
	host   *orchestrator.Host
	opts   ConsoleOptions
	ctx    context.Context
	cancel context.CancelFunc

	watch  *watcher
	events frameEvents

	state    session.State
	spinner  spinner.Model
	busy     string
	err      string
	feed     []string
	pagePath string
	mounted  string // 已挂载的游戏版本
	width    int
	quitting bool
}

// NewConsoleModel 创建主机控制台
func NewConsoleModel(store SessionStore, opts ConsoleOptions) *ConsoleModel {
	ctx, cancel := context.WithCancel(context.Background())
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = noticeStyle

	m := &ConsoleModel{
		store:   store,
		host:    orchestrator.NewHost(store, orchestrator.KeepConnection()),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(frameEvents, 32),
		state:   store.Snapshot(),
		spinner: sp,
		busy:    "Creating session…",
	}
	return m
}

func (m *ConsoleModel) Init() tea.Cmd {
	m.watch = watch(m.store)
	return tea.Batch(m.spinner.Tick, m.watch.listen(), m.events.listen(), m.createSession())
}

// createSession 创建会话，开启恢复时先尝试恢复
func (m *ConsoleModel) createSession() tea.Cmd {
	return func() tea.Msg {
		if m.opts.Resume {
			if ok, err := m.store.Resume(m.ctx); err == nil && ok && m.store.Snapshot().Role == protocol.RoleHost {
				return sessionReadyMsg{}
			}
		}
		if err := m.store.CreateSession(m.ctx, m.opts.MaxPlayers); err != nil {
			return ErrorMsg{Err: err}
		}
		return sessionReadyMsg{}
	}
}

func (m *ConsoleModel) loadGame() tea.Cmd {
	gameID := m.opts.GameID
	return func() tea.Msg {
		if err := m.store.LoadGame(m.ctx, gameID); err != nil {
			return ErrorMsg{Err: err}
		}
		return gameLoadedMsg{}
	}
}

func (m *ConsoleModel) endSession() tea.Cmd {
	return func() tea.Msg {
		if err := m.store.EndSession(m.ctx); err != nil {
			return ErrorMsg{Err: err}
		}
		return sessionEndedMsg{}
	}
}

func (m *ConsoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateMsg:
		m.state = msg.State
		m.syncFrame()
		return m, m.watch.listen()

	case sessionReadyMsg:
		m.busy = ""
		m.state = m.store.Snapshot()

	case gameLoadedMsg:
		m.busy = ""
		m.state = m.store.Snapshot()
		m.syncFrame()

	case sessionEndedMsg:
		m.busy = ""
		m.host.Unmount()
		m.mounted = ""
		m.state = m.store.Snapshot()

	case FrameEventMsg:
		m.feed = appendFeed(m.feed, msg.Line)
		return m, m.events.listen()

	case ErrorMsg:
		m.busy = ""
		m.err = apperrors.UserMessage(msg.Err)
		return m, tea.Tick(errorDisplayTime, func(time.Time) tea.Msg { return ClearErrorMsg{} })

	case ClearErrorMsg:
		m.err = ""

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ConsoleModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.shutdown()
		return m, tea.Quit
	case "l":
		if !m.canStart() {
			return m, nil
		}
		m.busy = "Starting…"
		return m, m.loadGame()
	case "e":
		if !m.state.HasSession() || m.busy != "" {
			return m, nil
		}
		m.busy = "Ending session…"
		return m, m.endSession()
	}
	return m, nil
}

// canStart 有会话、有玩家、没有进行中的操作
func (m *ConsoleModel) canStart() bool {
	st := m.state
	return st.HasSession() && st.Role == protocol.RoleHost && st.Status() != protocol.StatusEnded &&
		len(st.Players) > 0 && !st.IsLoadingGame && m.busy == "" && m.opts.GameID != ""
}

// syncFrame 只在 game_loaded 之后（playing/paused 且不在加载中）挂载终端帧，
// 其余情况卸载；游戏版本变化时重新挂载
func (m *ConsoleModel) syncFrame() {
	st := m.state
	status := st.Status()
	gv := st.GameVersion
	live := st.HasSession() && gv != nil && !st.IsLoadingGame &&
		(status == protocol.StatusPlaying || status == protocol.StatusPaused)
	if !live {
		if m.mounted != "" {
			m.host.Unmount()
			m.mounted = ""
		}
		return
	}
	if gv.ID == m.mounted {
		return
	}

	parent, framePort := bridge.Pipe()
	if err := m.host.Mount(m.ctx, parent); err != nil {
		m.err = apperrors.UserMessage(err)
		return
	}
	go newTallyFrame(framePort, m.events).run(m.ctx)
	m.mounted = gv.ID
	m.feed = nil

	if m.opts.RenderDir != "" && gv.GameScreenCode != "" {
		doc, err := bridge.GameScreenDocument(gv.GameScreenCode)
		if err == nil {
			m.pagePath, err = writeFramePage(m.opts.RenderDir, "game-"+gv.ID+".html", "AirCade "+st.Session.SessionCode, doc)
		}
		if err != nil {
			m.err = err.Error()
		}
	}
}

// shutdown 卸载帧并断开中继，会话保留以便恢复
func (m *ConsoleModel) shutdown() {
	if m.quitting {
		return
	}
	m.quitting = true
	m.host.Unmount()
	m.store.Disconnect()
	if m.watch != nil {
		m.watch.stop()
	}
	m.cancel()
}

func (m *ConsoleModel) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(center(m.width, titleStyle("🕹  AirCade Console")))
	sb.WriteString("\n\n")

	st := m.state
	switch {
	case !st.HasSession():
		if m.busy != "" {
			sb.WriteString(center(m.width, m.spinner.View()+" "+m.busy))
		} else {
			sb.WriteString(center(m.width, mutedStyle.Render("No active session. Press q to quit.")))
		}
	case st.Status() == protocol.StatusEnded:
		sb.WriteString(center(m.width, "Session ended."))
	default:
		sb.WriteString(m.sessionView())
	}

	if m.err != "" {
		sb.WriteString("\n\n")
		sb.WriteString(center(m.width, errorStyle.Render(m.err)))
	}
	sb.WriteString("\n\n")
	sb.WriteString(center(m.width, renderKeys("l", "start game", "e", "end session", "q", "quit")))
	return docStyle.Render(sb.String())
}

func (m *ConsoleModel) sessionView() string {
	st := m.state
	code := st.Session.SessionCode
	joinURL := ""
	if m.opts.WebBase != "" {
		joinURL = JoinURL(m.opts.WebBase, code)
	}

	left := lipgloss.JoinVertical(lipgloss.Left,
		mutedStyle.Render("Session Code"),
		codeStyle.Render(code),
		"",
		connectionBadge(st)+"  "+mutedStyle.Render(string(st.Status())),
		"",
		renderRoster(st.Players, st.Session.MaxPlayers),
	)
	if qr := renderQR(joinURL); qr != "" {
		left = lipgloss.JoinVertical(lipgloss.Left, left, "", qr, mutedStyle.Render("Scan or go to /join/"+code))
	}

	var right strings.Builder
	switch {
	case st.IsLoadingGame || m.busy != "":
		right.WriteString(m.spinner.View() + " " + m.busy)
	case m.mounted != "":
		right.WriteString(okStyle.Render("Game running") + "\n\n")
		right.WriteString(renderFeed(m.feed))
		if m.pagePath != "" {
			right.WriteString("\n\n" + mutedStyle.Render("Game screen: "+m.pagePath))
		}
	default:
		right.WriteString(mutedStyle.Render("Press l to start the game"))
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, "    ", boxStyle.Render(right.String()))
	return center(m.width, body)
}
