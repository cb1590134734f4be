package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "aircade:"

// RedisStore Redis 存储，同一实例上用 profile 区分多个终端
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client, profile string) *RedisStore {
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{client: client, prefix: keyPrefix + profile + ":"}
}

func (rs *RedisStore) credentialsKey() string { return rs.prefix + "credentials" }
func (rs *RedisStore) sessionKey() string     { return rs.prefix + "session" }

// --- 凭据 ---

// Token 返回访问令牌，不存在时为空
func (rs *RedisStore) Token(ctx context.Context) (string, error) {
	return rs.credential(ctx, "token")
}

// RefreshToken 返回刷新令牌，不存在时为空
func (rs *RedisStore) RefreshToken(ctx context.Context) (string, error) {
	return rs.credential(ctx, "refresh_token")
}

func (rs *RedisStore) credential(ctx context.Context, field string) (string, error) {
	v, err := rs.client.HGet(ctx, rs.credentialsKey(), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// SetTokens 原子地替换令牌对
func (rs *RedisStore) SetTokens(ctx context.Context, token, refreshToken string) error {
	return rs.client.HSet(ctx, rs.credentialsKey(), map[string]any{
		"token":         token,
		"refresh_token": refreshToken,
	}).Err()
}

// Clear 删除令牌
func (rs *RedisStore) Clear(ctx context.Context) error {
	return rs.client.Del(ctx, rs.credentialsKey()).Err()
}

// --- 会话记录 ---

// SaveSession 保存会话记录，两小时后过期
func (rs *RedisStore) SaveSession(ctx context.Context, rec *SessionRecord) error {
	if rec == nil {
		return nil
	}
	if rec.SavedAt == 0 {
		rec.SavedAt = time.Now().Unix()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	return rs.client.Set(ctx, rs.sessionKey(), data, sessionExpiration).Err()
}

// LoadSession 读取会话记录
func (rs *RedisStore) LoadSession(ctx context.Context) (*SessionRecord, error) {
	data, err := rs.client.Get(ctx, rs.sessionKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}
	return &rec, nil
}

// DeleteSession 删除会话记录
func (rs *RedisStore) DeleteSession(ctx context.Context) error {
	return rs.client.Del(ctx, rs.sessionKey()).Err()
}

// Close 关闭连接
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
