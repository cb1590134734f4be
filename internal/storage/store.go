// Package storage persists credentials and the active session record so a
// restarted client can resume where it left off. The default driver keeps
// them in a yaml file under ~/.aircade.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/palemoky/aircade/internal/config"
	"github.com/palemoky/aircade/internal/protocol"
)

// sessionExpiration 会话记录的保留时间
const sessionExpiration = 2 * time.Hour

// SessionRecord 本地保存的会话身份，恢复时需服务端重新校验
type SessionRecord struct {
	Role        protocol.Role `json:"role" yaml:"role"`
	SessionID   string        `json:"session_id" yaml:"session_id"`
	SessionCode string        `json:"session_code" yaml:"session_code"`
	PlayerID    string        `json:"player_id,omitempty" yaml:"player_id,omitempty"`
	DisplayName string        `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	SavedAt     int64         `json:"saved_at" yaml:"saved_at"`
}

// CredentialStore 访问令牌与刷新令牌
type CredentialStore interface {
	Token(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	SetTokens(ctx context.Context, token, refreshToken string) error
	Clear(ctx context.Context) error
}

// SessionStore 当前会话记录
type SessionStore interface {
	SaveSession(ctx context.Context, rec *SessionRecord) error
	// LoadSession 没有记录时返回 nil, nil
	LoadSession(ctx context.Context) (*SessionRecord, error)
	DeleteSession(ctx context.Context) error
}

// Store 同时提供凭据与会话记录
type Store interface {
	CredentialStore
	SessionStore
	Close() error
}

// New 按配置创建存储。redis 驱动会先 PING 一次
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		dir := cfg.Dir
		if dir == "" {
			var err error
			if dir, err = DefaultDir(); err != nil {
				return nil, err
			}
		}
		profile := cfg.Profile
		if profile == "" {
			profile = "default"
		}
		return NewFileStore(filepath.Join(dir, profile+".yaml")), nil
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStore(client, cfg.Profile), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
