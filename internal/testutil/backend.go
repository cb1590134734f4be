//go:build !production

package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/protocol/codec"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Game 后端可加载的游戏
type Game struct {
	ID               string
	VersionID        string
	GameScreen       string
	ControllerScreen string
}

// Fault 注入到某个路由的错误响应
type Fault struct {
	Status  int
	Code    string
	Message string
	Raw     string // 非空时原样写出，用于非结构化错误
}

// Backend 内存中的会话服务：REST 接口与 WebSocket 中继
type Backend struct {
	Server *httptest.Server

	mu           sync.Mutex
	token        string
	refreshToken string
	sessions     map[string]*backendSession // id -> session
	codes        map[string]string          // code -> id
	games        map[string]Game
	faults       map[string]Fault // "METHOD /path" -> fault
	holdLoaded   bool
	nextCode     string
	requests     []string
	refreshCalls int
}

type backendSession struct {
	session protocol.Session
	players []protocol.Player
	host    *relayConn
	conns   map[string]*relayConn // playerID -> conn
}

type relayConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *relayConn) write(msgType protocol.MessageType, payload any) {
	data, err := codec.Encode(codec.MustNewMessage(msgType, payload))
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

// NewBackend 启动后端，测试结束时自动关闭
func NewBackend(t interface{ Cleanup(func()) }) *Backend {
	b := &Backend{
		token:        "access-1",
		refreshToken: "refresh-1",
		sessions:     make(map[string]*backendSession),
		codes:        make(map[string]string),
		games:        make(map[string]Game),
		faults:       make(map[string]Fault),
	}

	r := httprouter.New()
	r.POST("/api/v1/auth/refresh", b.refresh)
	r.POST("/api/v1/sessions", b.authed(b.createSession))
	r.GET("/api/v1/sessions/:id", b.getSession)
	r.DELETE("/api/v1/sessions/:id", b.authed(b.endSession))
	r.POST("/api/v1/sessions/:id/join", b.joinSession)
	r.POST("/api/v1/sessions/:id/game", b.authed(b.loadGame))
	r.GET("/api/v1/sessions/:id/players", b.listPlayers)
	r.GET("/api/v1/sessions/:id/ws", b.serveWS)

	b.Server = httptest.NewServer(b.middleware(r))
	t.Cleanup(b.Close)
	return b
}

// URL 服务根地址
func (b *Backend) URL() string {
	return b.Server.URL
}

// Close 关闭所有连接和服务
func (b *Backend) Close() {
	b.DropConnections()
	b.Server.Close()
}

// Tokens 当前有效的令牌对
func (b *Backend) Tokens() (token, refreshToken string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token, b.refreshToken
}

// RotateToken 使当前访问令牌失效，客户端下次请求会收到 401
func (b *Backend) RotateToken() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = "access-" + uuid.NewString()[:8]
}

// RefreshCalls 刷新接口被调用的次数
func (b *Backend) RefreshCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

// AddGame 注册一个可加载的游戏
func (b *Backend) AddGame(g Game) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.games[g.ID] = g
}

// Fail 让指定路由返回错误，例如 Fail("POST /api/v1/sessions", ...)
func (b *Backend) Fail(route string, f Fault) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[route] = f
}

// HoldGameLoaded 加载游戏时不推送 game_loaded
func (b *Backend) HoldGameLoaded(hold bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdLoaded = hold
}

// Requests 已收到的请求，格式为 "METHOD /path"
func (b *Backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

// Session 按 id 返回会话快照
func (b *Backend) Session(id string) (protocol.Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return protocol.Session{}, false
	}
	return s.session, true
}

// HostConnected 主机是否连在中继上
func (b *Backend) HostConnected(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	return ok && s.host != nil
}

// PlayerConnected 玩家是否连在中继上
func (b *Backend) PlayerConnected(sessionID, playerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return false
	}
	_, connected := s.conns[playerID]
	return connected
}

// DropConnections 以 1006 断开所有中继连接，模拟网络抖动
func (b *Backend) DropConnections() {
	b.mu.Lock()
	var conns []*relayConn
	for _, s := range b.sessions {
		if s.host != nil {
			conns = append(conns, s.host)
		}
		for _, c := range s.conns {
			conns = append(conns, c)
		}
	}
	b.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.Close()
	}
}

// PushToHost 向主机推送任意消息
func (b *Backend) PushToHost(sessionID string, msgType protocol.MessageType, payload any) bool {
	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	var host *relayConn
	if ok {
		host = s.host
	}
	b.mu.Unlock()
	if host == nil {
		return false
	}
	host.write(msgType, payload)
	return true
}

func (b *Backend) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		b.mu.Lock()
		b.requests = append(b.requests, route)
		f, faulted := b.faults[route]
		b.mu.Unlock()

		if faulted {
			if f.Raw != "" {
				w.WriteHeader(f.Status)
				_, _ = w.Write([]byte(f.Raw))
				return
			}
			writeError(w, f.Status, f.Code, f.Message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) authed(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		b.mu.Lock()
		valid := r.Header.Get("Authorization") == "Bearer "+b.token
		b.mu.Unlock()
		if !valid {
			writeError(w, http.StatusUnauthorized, protocol.ErrCodeUnauthorized, "Authentication required")
			return
		}
		h(w, r, ps)
	}
}

func (b *Backend) refresh(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshCalls++
	if req.RefreshToken != b.refreshToken {
		writeError(w, http.StatusUnauthorized, protocol.ErrCodeUnauthorized, "Invalid refresh token")
		return
	}
	b.token = "access-" + uuid.NewString()[:8]
	b.refreshToken = "refresh-" + uuid.NewString()[:8]
	writeJSON(w, http.StatusOK, map[string]string{"token": b.token, "refreshToken": b.refreshToken})
}

func (b *Backend) createSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		MaxPlayers int `json:"maxPlayers"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.MaxPlayers == 0 {
		req.MaxPlayers = protocol.DefaultMaxPlayers
	}
	if req.MaxPlayers < 1 || req.MaxPlayers > 100 {
		writeError(w, http.StatusBadRequest, protocol.ErrCodeValidation, "maxPlayers must be between 1 and 100")
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	b.mu.Lock()
	code := b.newCodeLocked()
	s := &backendSession{
		session: protocol.Session{
			ID:          uuid.NewString(),
			HostID:      "user-host",
			SessionCode: code,
			Status:      protocol.StatusLobby,
			MaxPlayers:  req.MaxPlayers,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		conns: make(map[string]*relayConn),
	}
	b.sessions[s.session.ID] = s
	b.codes[code] = s.session.ID
	out := s.session
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

// NextCode 指定下一个创建的会话使用的会话码
func (b *Backend) NextCode(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextCode = code
}

func (b *Backend) newCodeLocked() string {
	if code := b.nextCode; code != "" {
		b.nextCode = ""
		return code
	}
	for {
		code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
		if _, taken := b.codes[code]; !taken {
			return code
		}
	}
}

// lookupLocked 路径参数既可以是会话 id 也可以是会话码
func (b *Backend) lookupLocked(key string) *backendSession {
	if s, ok := b.sessions[key]; ok {
		return s
	}
	if id, ok := b.codes[strings.ToUpper(key)]; ok {
		return b.sessions[id]
	}
	return nil
}

func (b *Backend) getSession(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	b.mu.Lock()
	s := b.lookupLocked(ps.ByName("id"))
	var out protocol.Session
	if s != nil {
		out = s.session
	}
	b.mu.Unlock()

	if s == nil {
		writeError(w, http.StatusNotFound, protocol.ErrCodeSessionNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) joinSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		DisplayName string `json:"displayName"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	s := b.lookupLocked(ps.ByName("id"))
	switch {
	case s == nil:
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, protocol.ErrCodeSessionNotFound, "Session not found")
		return
	case s.session.Status == protocol.StatusEnded:
		b.mu.Unlock()
		writeError(w, http.StatusGone, protocol.ErrCodeSessionEnded, "Session has ended")
		return
	case len(s.players) >= s.session.MaxPlayers:
		b.mu.Unlock()
		writeError(w, http.StatusConflict, protocol.ErrCodeSessionFull, "Session is full")
		return
	case !protocol.ValidDisplayName(req.DisplayName):
		b.mu.Unlock()
		writeError(w, http.StatusBadRequest, protocol.ErrCodeValidation, "Display name must be 1-30 characters")
		return
	}

	p := protocol.Player{
		ID:               uuid.NewString(),
		SessionID:        s.session.ID,
		DisplayName:      req.DisplayName,
		ConnectionStatus: protocol.ConnectionConnected,
		CreatedAt:        time.Now().UTC().Format(time.RFC3339),
	}
	s.players = append(s.players, p)
	resp := protocol.JoinResponse{
		Player: p,
		Session: protocol.SessionInfo{
			ID:          s.session.ID,
			SessionCode: s.session.SessionCode,
			Status:      s.session.Status,
		},
	}
	host := s.host
	b.mu.Unlock()

	if host != nil {
		host.write(protocol.MsgPlayerJoined, protocol.PlayerJoinedPayload{Player: p.Summary()})
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (b *Backend) loadGame(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		GameID string `json:"gameId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	s := b.lookupLocked(ps.ByName("id"))
	if s == nil {
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, protocol.ErrCodeSessionNotFound, "Session not found")
		return
	}
	g, ok := b.games[req.GameID]
	if !ok {
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, "GAME_NOT_FOUND", "Game not found")
		return
	}
	previous := s.session.Status
	s.session.GameID = &g.ID
	s.session.GameVersionID = &g.VersionID
	s.session.Status = protocol.StatusPlaying
	hold := b.holdLoaded
	host := s.host
	players := make([]*relayConn, 0, len(s.conns))
	for _, c := range s.conns {
		players = append(players, c)
	}

	var resp protocol.LoadGameResponse
	resp.Session.ID = s.session.ID
	resp.Session.Status = s.session.Status
	resp.Session.GameID = g.ID
	resp.Session.GameVersionID = g.VersionID
	resp.GameVersion = protocol.GameVersion{
		ID:                   g.VersionID,
		VersionNumber:        1,
		GameScreenCode:       g.GameScreen,
		ControllerScreenCode: g.ControllerScreen,
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)

	if hold {
		return
	}
	full := protocol.GameLoadedPayload{
		GameID: g.ID, GameVersionID: g.VersionID,
		GameScreenCode: g.GameScreen, ControllerScreenCode: g.ControllerScreen,
	}
	controller := protocol.GameLoadedPayload{GameID: g.ID, GameVersionID: g.VersionID, ControllerScreenCode: g.ControllerScreen}
	status := protocol.SessionStatusChangePayload{Status: protocol.StatusPlaying, PreviousStatus: previous}
	if host != nil {
		host.write(protocol.MsgGameLoaded, full)
	}
	for _, c := range players {
		c.write(protocol.MsgGameLoaded, controller)
		c.write(protocol.MsgSessionStatusChange, status)
	}
}

func (b *Backend) endSession(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	b.mu.Lock()
	s := b.lookupLocked(ps.ByName("id"))
	if s == nil {
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, protocol.ErrCodeSessionNotFound, "Session not found")
		return
	}
	previous := s.session.Status
	now := time.Now().UTC().Format(time.RFC3339)
	s.session.Status = protocol.StatusEnded
	s.session.EndedAt = &now
	var conns []*relayConn
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	status := protocol.SessionStatusChangePayload{Status: protocol.StatusEnded, PreviousStatus: previous}
	for _, c := range conns {
		c.write(protocol.MsgSessionStatusChange, status)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) listPlayers(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	b.mu.Lock()
	s := b.lookupLocked(ps.ByName("id"))
	var out []protocol.Player
	if s != nil {
		out = append(out, s.players...)
	}
	b.mu.Unlock()

	if s == nil {
		writeError(w, http.StatusNotFound, protocol.ErrCodeSessionNotFound, "Session not found")
		return
	}
	if out == nil {
		out = []protocol.Player{}
	}
	writeJSON(w, http.StatusOK, out)
}

// serveWS 中继：玩家输入转给主机，主机状态广播给玩家
func (b *Backend) serveWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	q := r.URL.Query()
	role := protocol.Role(q.Get("role"))

	b.mu.Lock()
	s := b.sessions[ps.ByName("id")]
	token := b.token
	b.mu.Unlock()

	if s == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	playerID := q.Get("playerId")
	switch role {
	case protocol.RoleHost:
		if q.Get("token") != token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	case protocol.RolePlayer:
		if !b.hasPlayer(s, playerID) {
			http.Error(w, "unknown player", http.StatusForbidden)
			return
		}
	default:
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	rc := &relayConn{conn: conn}

	b.mu.Lock()
	if role == protocol.RoleHost {
		s.host = rc
	} else {
		s.conns[playerID] = rc
	}
	sessionID := s.session.ID
	b.mu.Unlock()

	rc.write(protocol.MsgConnected, protocol.ConnectedPayload{SessionID: sessionID, Role: role, PlayerID: playerID})
	b.readLoop(s, role, playerID, rc)
}

func (b *Backend) hasPlayer(s *backendSession, playerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range s.players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

func (b *Backend) readLoop(s *backendSession, role protocol.Role, playerID string, rc *relayConn) {
	defer func() {
		_ = rc.conn.Close()
		b.mu.Lock()
		if role == protocol.RoleHost && s.host == rc {
			s.host = nil
		} else if s.conns[playerID] == rc {
			delete(s.conns, playerID)
		}
		b.mu.Unlock()
	}()

	for {
		_, data, err := rc.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := codec.Decode(data)
		if err != nil {
			continue
		}
		switch {
		case role == protocol.RolePlayer && msg.Type == protocol.MsgPlayerInput:
			in, err := codec.ParsePayload[protocol.PlayerInputPayload](msg)
			if err != nil {
				continue
			}
			b.mu.Lock()
			host := s.host
			b.mu.Unlock()
			if host != nil {
				host.write(protocol.MsgPlayerInputEvent, protocol.PlayerInputEventPayload{
					PlayerID: playerID, InputType: in.InputType, Data: in.Data,
				})
			}
		case role == protocol.RoleHost && msg.Type == protocol.MsgGameStateUpdate:
			up, err := codec.ParsePayload[protocol.GameStateUpdatePayload](msg)
			if err != nil {
				continue
			}
			b.mu.Lock()
			conns := make([]*relayConn, 0, len(s.conns))
			for _, c := range s.conns {
				conns = append(conns, c)
			}
			b.mu.Unlock()
			for _, c := range conns {
				c.write(protocol.MsgGameState, protocol.GameStatePayload{State: up.State})
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.ErrorEnvelope{Error: &protocol.ErrorBody{Code: code, Message: message}})
}

// Route 拼出 Fail 使用的路由键
func Route(method, path string) string {
	return fmt.Sprintf("%s /api/v1%s", method, path)
}
