// Package api is the REST client for the AirCade session service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/palemoky/aircade/internal/logger"
)

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 * 1024
)

var errNoRefreshToken = errors.New("no refresh token")

// TokenStore 保存访问令牌与刷新令牌
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	SetTokens(ctx context.Context, token, refreshToken string) error
	Clear(ctx context.Context) error
}

// Client REST 客户端
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	log     zerolog.Logger

	refreshMu sync.Mutex
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout 设置单次请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithTokenStore 设置令牌存储，未设置时请求不携带 Authorization
func WithTokenStore(ts TokenStore) Option {
	return func(c *Client) { c.tokens = ts }
}

// New 创建客户端，baseURL 为服务根地址（不含 /api/v1）
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     logger.L("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL 返回服务根地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do 发送 JSON 请求并解码响应。401 时刷新一次令牌后重试
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	token := c.token(ctx)
	resp, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil {
		fresh, rerr := c.refresh(ctx, token)
		if rerr != nil {
			c.log.Debug().Err(rerr).Msg("token refresh failed")
			defer drain(resp)
			return parseError(resp)
		}
		drain(resp)
		resp, err = c.send(ctx, method, path, payload, fresh)
		if err != nil {
			return err
		}
	}
	defer drain(resp)

	if resp.StatusCode/100 != 2 {
		return parseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.log.Debug().Str("method", method).Str("path", path).Msg("request")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) token(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	t, err := c.tokens.Token(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("read access token")
		return ""
	}
	return t
}

// refresh 用刷新令牌换取新令牌。并发的 401 只刷新一次：
// 若存储中的令牌已不同于失败请求所用的令牌，直接使用新令牌
func (c *Client) refresh(ctx context.Context, used string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current := c.token(ctx); current != "" && current != used {
		return current, nil
	}

	rt, err := c.tokens.RefreshToken(ctx)
	if err != nil {
		return "", err
	}
	if rt == "" {
		return "", errNoRefreshToken
	}

	payload, _ := json.Marshal(refreshRequest{RefreshToken: rt})
	resp, err := c.send(ctx, http.MethodPost, "/auth/refresh", payload, "")
	if err != nil {
		_ = c.tokens.Clear(ctx)
		return "", err
	}
	defer drain(resp)

	if resp.StatusCode/100 != 2 {
		_ = c.tokens.Clear(ctx)
		return "", parseError(resp)
	}
	var out TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		_ = c.tokens.Clear(ctx)
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if out.Token == "" {
		_ = c.tokens.Clear(ctx)
		return "", errors.New("refresh response without token")
	}
	if err := c.tokens.SetTokens(ctx, out.Token, out.RefreshToken); err != nil {
		return "", err
	}
	return out.Token, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

func escape(segment string) string {
	return url.PathEscape(segment)
}
