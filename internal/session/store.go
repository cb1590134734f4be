// Package session is the client-side session state machine. A Store owns at
// most one relay transport and is the single source of truth for which
// session, if any, this client is in.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/palemoky/aircade/internal/logger"
	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/storage"
	"github.com/palemoky/aircade/internal/transport"
)

// DefaultLoadTimeout 等待 game_loaded 的默认时长
const DefaultLoadTimeout = 5 * time.Second

// API 会话 REST 接口，*api.Client 满足该接口
type API interface {
	CreateSession(ctx context.Context, maxPlayers int) (*protocol.Session, error)
	GetSession(ctx context.Context, code string) (*protocol.Session, error)
	JoinSession(ctx context.Context, code, displayName string) (*protocol.JoinResponse, error)
	LoadGame(ctx context.Context, sessionID, gameID string) (*protocol.LoadGameResponse, error)
	EndSession(ctx context.Context, sessionID string) error
	ListPlayers(ctx context.Context, sessionID string) ([]protocol.Player, error)
}

// Transport 中继连接，*transport.Client 满足该接口
type Transport interface {
	Connect()
	Disconnect()
	Send(msgType protocol.MessageType, payload any) bool
	On(msgType protocol.MessageType, h transport.Handler) transport.HandlerID
	Off(msgType protocol.MessageType, id transport.HandlerID)
	OnOpen(cb func())
	OnClose(cb func(code int))
	IsConnected() bool
	IsReconnecting() bool
}

// TransportFactory 为给定地址创建一个未连接的 Transport
type TransportFactory func(url string) Transport

// TokenSource 提供主机连接中继所需的访问令牌
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ConnectionState 连接子状态，独立于会话状态
type ConnectionState string

const (
	ConnectionNone         ConnectionState = "none"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionReconnecting ConnectionState = "reconnecting"
	ConnectionDisconnected ConnectionState = "disconnected"
)

// State 会话状态快照
type State struct {
	Role          protocol.Role
	Session       *protocol.Session
	Players       []protocol.Player
	GameVersion   *protocol.GameVersion
	CurrentPlayer *protocol.Player

	Connection    ConnectionState
	IsConnecting  bool // create/join 请求进行中
	IsLoadingGame bool
}

// Status 当前会话状态，没有会话时为空
func (s State) Status() protocol.SessionStatus {
	if s.Session == nil {
		return ""
	}
	return s.Session.Status
}

// HasSession 是否处于某个会话中
func (s State) HasSession() bool {
	return s.Session != nil
}

// IsConnected 中继是否已连接
func (s State) IsConnected() bool {
	return s.Connection == ConnectionConnected
}

func (s State) clone() State {
	out := s
	if s.Session != nil {
		sess := *s.Session
		out.Session = &sess
	}
	out.Players = slices.Clone(s.Players)
	if s.GameVersion != nil {
		gv := *s.GameVersion
		out.GameVersion = &gv
	}
	if s.CurrentPlayer != nil {
		p := *s.CurrentPlayer
		out.CurrentPlayer = &p
	}
	return out
}

func initialState() State {
	return State{Connection: ConnectionNone}
}

// loadWait 一次 LoadGame 等待，由 game_loaded 处理器或会话拆除完成
type loadWait struct {
	done chan struct{}
	once sync.Once
	err  error
}

func (w *loadWait) resolve(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.done)
	})
}

// Store 会话状态机
type Store struct {
	api          API
	newTransport TransportFactory
	tokens       TokenSource
	records      storage.SessionStore
	apiBase      string
	loadTimeout  time.Duration
	maxPlayers   int
	log          zerolog.Logger
	now          func() time.Time

	mu        sync.Mutex
	state     State
	transport Transport
	pending   *loadWait

	onPlayerInput func(protocol.PlayerInputEventPayload)
	onGameState   func(protocol.GameStatePayload)

	// notifyMu 串行化通知，快照在其内获取，监听者按状态顺序收到
	notifyMu     sync.Mutex
	listeners    map[int]func(State)
	nextListener int
}

// Option Store 选项
type Option func(*Store)

// WithTransportFactory 替换中继连接的创建方式
func WithTransportFactory(f TransportFactory) Option {
	return func(s *Store) { s.newTransport = f }
}

// WithTokenSource 设置主机令牌来源
func WithTokenSource(ts TokenSource) Option {
	return func(s *Store) { s.tokens = ts }
}

// WithRecords 持久化会话记录，用于重启后 Resume
func WithRecords(r storage.SessionStore) Option {
	return func(s *Store) { s.records = r }
}

// WithLoadTimeout 设置等待 game_loaded 的时长
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}

// WithMaxPlayers 创建会话时的默认人数上限，0 表示由服务端决定
func WithMaxPlayers(n int) Option {
	return func(s *Store) { s.maxPlayers = n }
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// DefaultTransportFactory 基于 transport.Client 的工厂
func DefaultTransportFactory(opts ...transport.Option) TransportFactory {
	return func(url string) Transport {
		return transport.NewClient(url, opts...)
	}
}

// New 创建 Store。apiBase 用于推导中继地址
func New(api API, apiBase string, opts ...Option) *Store {
	s := &Store{
		api:          api,
		newTransport: DefaultTransportFactory(),
		apiBase:      apiBase,
		loadTimeout:  DefaultLoadTimeout,
		log:          logger.L("session"),
		now:          time.Now,
		state:        initialState(),
		listeners:    make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot 返回当前状态的副本
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe 注册状态变更监听，返回取消函数。监听在状态锁之外按顺序调用，
// 不得同步调用会修改状态的 Store 方法
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// notify 通知所有监听者。后一次通知总是拿到不早于前一次的快照
func (s *Store) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	snap := s.state.clone()
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		s.safeCall(func() { fn(snap) })
	}
}

// update 在锁内修改状态并通知
func (s *Store) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic("session", r)
		}
	}()
	fn()
}

// SetOnPlayerInputEvent 设置玩家输入转发回调（主机），nil 表示清除
func (s *Store) SetOnPlayerInputEvent(cb func(protocol.PlayerInputEventPayload)) {
	s.mu.Lock()
	s.onPlayerInput = cb
	s.mu.Unlock()
}

// SetOnGameStateEvent 设置游戏状态转发回调（玩家），nil 表示清除
func (s *Store) SetOnGameStateEvent(cb func(protocol.GameStatePayload)) {
	s.mu.Lock()
	s.onGameState = cb
	s.mu.Unlock()
}

// SendPlayerInput 发送玩家输入，未连接时丢弃
func (s *Store) SendPlayerInput(inputType string, data map[string]any) bool {
	t := s.currentTransport()
	if t == nil {
		return false
	}
	return t.Send(protocol.MsgPlayerInput, protocol.PlayerInputPayload{InputType: inputType, Data: data})
}

// BroadcastGameState 主机广播游戏状态，未连接时丢弃
func (s *Store) BroadcastGameState(state map[string]any) bool {
	t := s.currentTransport()
	if t == nil {
		return false
	}
	return t.Send(protocol.MsgGameStateUpdate, protocol.GameStateUpdatePayload{State: state})
}

func (s *Store) currentTransport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// HasTransport 是否持有中继连接
func (s *Store) HasTransport() bool {
	return s.currentTransport() != nil
}

var errSessionClosed = errors.New("session closed while waiting for game")
