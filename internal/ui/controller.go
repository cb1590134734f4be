package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/palemoky/aircade/internal/apperrors"
	"github.com/palemoky/aircade/internal/bridge"
	"github.com/palemoky/aircade/internal/orchestrator"
	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/session"
)

// ControllerOptions 玩家控制器选项
type ControllerOptions struct {
	Code      string
	Name      string
	RenderDir string
	Resume    bool
}

type joinedMsg struct{}

// ControllerModel 玩家控制器
type ControllerModel struct {
	store  SessionStore
	player *orchestrator.Player
	opts   ControllerOptions
	ctx    context.Context
	cancel context.CancelFunc

	watch  *watcher
	events frameEvents
	ctrl   *bridge.ControllerRuntime

	state     session.State
	input     textinput.Model
	spinner   spinner.Model
	busy      string
	err       string
	lastState map[string]any
	sent      []string
	pagePath  string
	mounted   string
	width     int
	quitting  bool
}

// NewControllerModel 创建玩家控制器
func NewControllerModel(store SessionStore, opts ControllerOptions) *ControllerModel {
	ctx, cancel := context.WithCancel(context.Background())

	ti := textinput.New()
	ti.Placeholder = "tap / move left / say hello…"
	ti.CharLimit = 120
	ti.Width = 40
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = noticeStyle

	return &ControllerModel{
		store:   store,
		player:  orchestrator.NewPlayer(store, orchestrator.KeepConnection()),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(frameEvents, 32),
		state:   store.Snapshot(),
		input:   ti,
		spinner: sp,
		busy:    "Joining session…",
	}
}

func (m *ControllerModel) Init() tea.Cmd {
	m.watch = watch(m.store)
	return tea.Batch(m.spinner.Tick, textinput.Blink, m.watch.listen(), m.events.listen(), m.join())
}

func (m *ControllerModel) join() tea.Cmd {
	return func() tea.Msg {
		if m.opts.Resume {
			if ok, err := m.store.Resume(m.ctx); err == nil && ok && m.store.Snapshot().Role == protocol.RolePlayer {
				return joinedMsg{}
			}
		}
		if err := m.store.JoinSession(m.ctx, m.opts.Code, m.opts.Name); err != nil {
			return ErrorMsg{Err: err}
		}
		return joinedMsg{}
	}
}

func (m *ControllerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.shutdown()
			return m, tea.Quit
		case "enter":
			m.submit()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case StateMsg:
		m.state = msg.State
		m.syncFrame()
		return m, m.watch.listen()

	case joinedMsg:
		m.busy = ""
		m.state = m.store.Snapshot()
		m.syncFrame()

	case FrameStateMsg:
		m.lastState = msg.State
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

// submit 把输入行作为一次 player_input 交给控制器帧
func (m *ControllerModel) submit() {
	inputType, data, ok := parseInput(m.input.Value())
	if !ok {
		return
	}
	m.input.SetValue("")
	if m.ctrl == nil {
		m.err = "The game has not started yet."
		return
	}
	if err := m.ctrl.SendInput(inputType, data); err != nil {
		m.err = err.Error()
		return
	}
	m.sent = appendFeed(m.sent, inputType+" "+describeData(data))
}

// syncFrame 游戏进行中且控制器代码变化时挂载终端控制器帧
func (m *ControllerModel) syncFrame() {
	st := m.state
	status := st.Status()
	if !st.HasSession() || status == protocol.StatusEnded {
		if m.mounted != "" {
			m.player.Unmount()
			m.ctrl = nil
			m.mounted = ""
		}
		return
	}
	gv := st.GameVersion
	if gv == nil || gv.ID == m.mounted || (status != protocol.StatusPlaying && status != protocol.StatusPaused) {
		return
	}

	parent, framePort := bridge.Pipe()
	if err := m.player.Mount(m.ctx, parent); err != nil {
		m.err = apperrors.UserMessage(err)
		return
	}
	ctrl := bridge.NewControllerRuntime(framePort)
	events := m.events
	ctrl.OnStateUpdate(func(state map[string]any) { events.push(FrameStateMsg{State: state}) })
	go func() { _ = ctrl.Run(m.ctx) }()
	m.ctrl = ctrl
	m.mounted = gv.ID
	m.lastState = nil

	if m.opts.RenderDir != "" && gv.ControllerScreenCode != "" {
		doc, err := bridge.ControllerScreenDocument(gv.ControllerScreenCode)
		if err == nil {
			m.pagePath, err = writeFramePage(m.opts.RenderDir, "controller-"+gv.ID+".html", "AirCade controller", doc)
		}
		if err != nil {
			m.err = err.Error()
		}
	}
}

func (m *ControllerModel) shutdown() {
	if m.quitting {
		return
	}
	m.quitting = true
	m.player.Unmount()
	m.store.Disconnect()
	if m.watch != nil {
		m.watch.stop()
	}
	m.cancel()
}

func (m *ControllerModel) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(center(m.width, titleStyle("🎮 AirCade Controller")))
	sb.WriteString("\n\n")

	st := m.state
	switch {
	case !st.HasSession():
		if m.busy != "" {
			sb.WriteString(center(m.width, m.spinner.View()+" "+m.busy))
		} else {
			sb.WriteString(center(m.width, mutedStyle.Render("Not in a session.")))
		}
	case st.Status() == protocol.StatusEnded:
		sb.WriteString(center(m.width, lipgloss.JoinVertical(lipgloss.Center,
			"Session Ended",
			mutedStyle.Render("The host has ended the session."),
		)))
	case m.ctrl != nil:
		sb.WriteString(m.gameView())
	default:
		sb.WriteString(center(m.width, m.lobbyView()))
	}

	if m.err != "" {
		sb.WriteString("\n\n")
		sb.WriteString(center(m.width, errorStyle.Render(m.err)))
	}
	sb.WriteString("\n\n")
	sb.WriteString(center(m.width, renderKeys("enter", "send input", "esc", "quit")))
	return docStyle.Render(sb.String())
}

func (m *ControllerModel) lobbyView() string {
	st := m.state
	lines := []string{m.spinner.View() + " Waiting for host to start…"}
	if st.CurrentPlayer != nil {
		lines = append(lines, "Playing as "+st.CurrentPlayer.DisplayName)
	}
	lines = append(lines, "Session: "+st.Session.SessionCode, playerBadge(st))
	return lipgloss.JoinVertical(lipgloss.Center, lines...)
}

func (m *ControllerModel) gameView() string {
	st := m.state
	header := playerBadge(st)
	if st.Status() == protocol.StatusPaused {
		header += "  " + noticeStyle.Render("paused")
	}
	state := boxStyle.Render(renderState(m.lastState))
	sent := boxStyle.Render(renderFeed(m.sent))
	body := lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, state, "  ", sent),
		promptStyle.Render(m.input.View()),
	)
	if m.pagePath != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body, mutedStyle.Render("Controller screen: "+m.pagePath))
	}
	return center(m.width, body)
}

// playerBadge 玩家端只区分已连接与重连中
func playerBadge(st session.State) string {
	if st.IsConnected() {
		return okStyle.Render("● Connected")
	}
	return noticeStyle.Render("● Reconnecting…")
}
