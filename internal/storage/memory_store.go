package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 进程内存储，进程退出即丢失
type MemoryStore struct {
	mu           sync.RWMutex
	token        string
	refreshToken string
	session      *SessionRecord
	expiresAt    time.Time
	now          func() time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) Token(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *MemoryStore) RefreshToken(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshToken, nil
}

func (m *MemoryStore) SetTokens(_ context.Context, token, refreshToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.refreshToken = token, refreshToken
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.refreshToken = "", ""
	return nil
}

func (m *MemoryStore) SaveSession(_ context.Context, rec *SessionRecord) error {
	if rec == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	if cp.SavedAt == 0 {
		cp.SavedAt = m.now().Unix()
	}
	m.session = &cp
	m.expiresAt = m.now().Add(sessionExpiration)
	return nil
}

func (m *MemoryStore) LoadSession(context.Context) (*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil || m.now().After(m.expiresAt) {
		return nil, nil
	}
	cp := *m.session
	return &cp, nil
}

func (m *MemoryStore) DeleteSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

func (m *MemoryStore) Close() error { return nil }
