package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// fileData 文件中的全部内容
type fileData struct {
	Token            string         `yaml:"token,omitempty"`
	RefreshToken     string         `yaml:"refresh_token,omitempty"`
	Session          *SessionRecord `yaml:"session,omitempty"`
	SessionExpiresAt int64          `yaml:"session_expires_at,omitempty"`
}

// FileStore 保存在本地 yaml 文件中，默认 ~/.aircade/<profile>.yaml
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// DefaultDir 返回 ~/.aircade
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".aircade"), nil
}

// NewFileStore 创建文件存储，文件在第一次写入时创建
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path 返回文件路径
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) read() (*fileData, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &fileData{}, nil
	}
	if err != nil {
		return nil, err
	}
	var d fileData
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return &d, nil
}

// write 先写临时文件再改名，避免中途退出留下半个文件
func (f *FileStore) write(d *fileData) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) modify(fn func(d *fileData)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.read()
	if err != nil {
		return err
	}
	fn(d)
	return f.write(d)
}

func (f *FileStore) load() (*fileData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *FileStore) Token(context.Context) (string, error) {
	d, err := f.load()
	if err != nil {
		return "", err
	}
	return d.Token, nil
}

func (f *FileStore) RefreshToken(context.Context) (string, error) {
	d, err := f.load()
	if err != nil {
		return "", err
	}
	return d.RefreshToken, nil
}

func (f *FileStore) SetTokens(_ context.Context, token, refreshToken string) error {
	return f.modify(func(d *fileData) {
		d.Token, d.RefreshToken = token, refreshToken
	})
}

func (f *FileStore) Clear(context.Context) error {
	return f.modify(func(d *fileData) {
		d.Token, d.RefreshToken = "", ""
	})
}

func (f *FileStore) SaveSession(_ context.Context, rec *SessionRecord) error {
	if rec == nil {
		return nil
	}
	now := f.now()
	return f.modify(func(d *fileData) {
		cp := *rec
		if cp.SavedAt == 0 {
			cp.SavedAt = now.Unix()
		}
		d.Session = &cp
		d.SessionExpiresAt = now.Add(sessionExpiration).Unix()
	})
}

func (f *FileStore) LoadSession(context.Context) (*SessionRecord, error) {
	d, err := f.load()
	if err != nil {
		return nil, err
	}
	if d.Session == nil || f.now().Unix() > d.SessionExpiresAt {
		return nil, nil
	}
	return d.Session, nil
}

func (f *FileStore) DeleteSession(context.Context) error {
	return f.modify(func(d *fileData) {
		d.Session = nil
		d.SessionExpiresAt = 0
	})
}

func (f *FileStore) Close() error { return nil }
