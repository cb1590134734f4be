package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/aircade/internal/apperrors"
	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/storage"
	"github.com/palemoky/aircade/internal/testutil"
)

func newTestClient(t *testing.T) (*Client, *testutil.Backend, *storage.MemoryStore) {
	t.Helper()
	backend := testutil.NewBackend(t)
	tokens := storage.NewMemoryStore()
	token, refresh := backend.Tokens()
	require.NoError(t, tokens.SetTokens(context.Background(), token, refresh))
	return New(backend.URL(), WithTokenStore(tokens)), backend, tokens
}

func TestClient_SessionLifecycle(t *testing.T) {
	t.Parallel()

	c, backend, _ := newTestClient(t)
	ctx := context.Background()
	backend.AddGame(testutil.Game{ID: "pong", VersionID: "v1", GameScreen: "g()", ControllerScreen: "c()"})

	s, err := c.CreateSession(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusLobby, s.Status)
	assert.Equal(t, 4, s.MaxPlayers)
	assert.Len(t, s.SessionCode, 6)

	got, err := c.GetSession(ctx, s.SessionCode)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	join, err := c.JoinSession(ctx, s.SessionCode, "Ada")
	require.NoError(t, err)
	assert.Equal(t, "Ada", join.Player.DisplayName)
	assert.Equal(t, s.ID, join.Session.ID)

	players, err := c.ListPlayers(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, join.Player.ID, players[0].ID)

	loaded, err := c.LoadGame(ctx, s.ID, "pong")
	require.NoError(t, err)
	assert.Equal(t, "g()", loaded.GameVersion.GameScreenCode)
	assert.Equal(t, "c()", loaded.GameVersion.ControllerScreenCode)
	assert.Equal(t, protocol.StatusPlaying, loaded.Session.Status)

	require.NoError(t, c.EndSession(ctx, s.ID))
	ended, ok := backend.Session(s.ID)
	require.True(t, ok)
	assert.Equal(t, protocol.StatusEnded, ended.Status)
}

func TestClient_StructuredError(t *testing.T) {
	t.Parallel()

	c, backend, _ := newTestClient(t)
	backend.Fail(testutil.Route(http.MethodPost, "/sessions"), testutil.Fault{
		Status: http.StatusConflict, Code: "TOO_MANY_SESSIONS", Message: "You already host a session",
	})

	_, err := c.CreateSession(context.Background(), 0)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "TOO_MANY_SESSIONS", apiErr.Code)
	assert.Equal(t, "You already host a session", apperrors.UserMessage(err))
}

func TestClient_UnstructuredErrorFallsBack(t *testing.T) {
	t.Parallel()

	c, backend, _ := newTestClient(t)
	backend.Fail(testutil.Route(http.MethodGet, "/sessions/ZZZZ"), testutil.Fault{
		Status: http.StatusBadGateway, Raw: "<html>bad gateway</html>",
	})

	_, err := c.GetSession(context.Background(), "ZZZZ")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, apperrors.DefaultMessage, apperrors.UserMessage(err))
}

func TestClient_NotFound(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestClient(t)
	_, err := c.JoinSession(context.Background(), "NOPE", "Ada")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, protocol.ErrCodeSessionNotFound, apiErr.Code)
}

func TestClient_RefreshesOnceOn401(t *testing.T) {
	t.Parallel()

	c, backend, tokens := newTestClient(t)
	ctx := context.Background()
	backend.RotateToken()

	_, err := c.CreateSession(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.RefreshCalls())

	// 新令牌已写回存储
	token, _ := tokens.Token(ctx)
	refresh, _ := tokens.RefreshToken(ctx)
	wantToken, wantRefresh := backend.Tokens()
	assert.Equal(t, wantToken, token)
	assert.Equal(t, wantRefresh, refresh)
}

func TestClient_RefreshFailureClearsCredentials(t *testing.T) {
	t.Parallel()

	c, backend, tokens := newTestClient(t)
	ctx := context.Background()
	backend.RotateToken()
	require.NoError(t, tokens.SetTokens(ctx, "stale", "revoked"))

	_, err := c.CreateSession(ctx, 2)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	token, _ := tokens.Token(ctx)
	assert.Empty(t, token)
	assert.Equal(t, 1, backend.RefreshCalls())
}

func TestClient_NoRefreshWithoutToken(t *testing.T) {
	t.Parallel()

	backend := testutil.NewBackend(t)
	c := New(backend.URL(), WithTokenStore(storage.NewMemoryStore()))

	_, err := c.CreateSession(context.Background(), 2)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Zero(t, backend.RefreshCalls())
}

func TestClient_SendsBearerAndJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sessions/s%201/players", r.URL.EscapedPath())
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	tokens := storage.NewMemoryStore()
	require.NoError(t, tokens.SetTokens(context.Background(), "tok", "r"))
	c := New(srv.URL+"/", WithTokenStore(tokens))
	assert.Equal(t, srv.URL, c.BaseURL())

	players, err := c.ListPlayers(context.Background(), "s 1")
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestClient_TransportError(t *testing.T) {
	t.Parallel()

	c := New("http://127.0.0.1:1")
	_, err := c.GetSession(context.Background(), "ABCD")
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.Equal(t, apperrors.DefaultMessage, apperrors.UserMessage(err))
}
