package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// 默认值
const (
	defaultAPIBaseURL        = "http://localhost:8080"
	defaultRequestTimeout    = 10   // 秒
	defaultHeartbeatInterval = 25   // 秒
	defaultMaxReconnects     = 10   // 次
	defaultReconnectBase     = 1000 // 毫秒
	defaultReconnectMax      = 16000
	defaultHandshakeTimeout  = 10   // 秒
	defaultLoadTimeout       = 5000 // 毫秒
	defaultMaxPlayers        = 8
	defaultStorageDriver     = "file"
	defaultRedisAddr         = "localhost:6379"
	defaultProfile           = "default"
	defaultLogLevel          = "info"
)

// Config 客户端配置
type Config struct {
	API       APIConfig       `yaml:"api"`
	Transport TransportConfig `yaml:"transport"`
	Session   SessionConfig   `yaml:"session"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// APIConfig REST 服务配置
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	RequestTimeout int    `yaml:"request_timeout"` // 请求超时（秒）
}

// TransportConfig WebSocket 连接配置
type TransportConfig struct {
	HeartbeatInterval    int `yaml:"heartbeat_interval"`     // 心跳间隔（秒）
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"` // 最大重连次数
	ReconnectBaseDelay   int `yaml:"reconnect_base_delay"`   // 首次重连延迟（毫秒）
	ReconnectMaxDelay    int `yaml:"reconnect_max_delay"`    // 重连延迟上限（毫秒）
	HandshakeTimeout     int `yaml:"handshake_timeout"`      // 握手超时（秒）
}

// SessionConfig 会话配置
type SessionConfig struct {
	LoadTimeout int `yaml:"load_timeout"` // 等待 game_loaded 的超时（毫秒）
	MaxPlayers  int `yaml:"max_players"`  // 创建会话时的默认人数上限
}

// StorageConfig 凭据与会话记录的存储
type StorageConfig struct {
	Driver        string `yaml:"driver"` // file/memory/redis
	Dir           string `yaml:"dir"`    // file 驱动的目录，默认 ~/.aircade
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Profile       string `yaml:"profile"` // 同一 Redis 上区分多个终端
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string `yaml:"level"`
	File    bool   `yaml:"file"`    // 写入 ~/.aircade/debug.log
	Console bool   `yaml:"console"` // 写入 stderr
}

// RequestTimeoutDuration 返回请求超时时长
func (c *APIConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// HeartbeatIntervalDuration 返回心跳间隔
func (c *TransportConfig) HeartbeatIntervalDuration() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}

// ReconnectBaseDelayDuration 返回首次重连延迟
func (c *TransportConfig) ReconnectBaseDelayDuration() time.Duration {
	return time.Duration(c.ReconnectBaseDelay) * time.Millisecond
}

// ReconnectMaxDelayDuration 返回重连延迟上限
func (c *TransportConfig) ReconnectMaxDelayDuration() time.Duration {
	return time.Duration(c.ReconnectMaxDelay) * time.Millisecond
}

// HandshakeTimeoutDuration 返回握手超时
func (c *TransportConfig) HandshakeTimeoutDuration() time.Duration {
	return time.Duration(c.HandshakeTimeout) * time.Second
}

// LoadTimeoutDuration 返回等待 game_loaded 的超时
func (c *SessionConfig) LoadTimeoutDuration() time.Duration {
	return time.Duration(c.LoadTimeout) * time.Millisecond
}

// Load 加载配置文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default 返回默认配置
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultAPIBaseURL
	}
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = defaultRequestTimeout
	}
	if c.Transport.HeartbeatInterval == 0 {
		c.Transport.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Transport.MaxReconnectAttempts == 0 {
		c.Transport.MaxReconnectAttempts = defaultMaxReconnects
	}
	if c.Transport.ReconnectBaseDelay == 0 {
		c.Transport.ReconnectBaseDelay = defaultReconnectBase
	}
	if c.Transport.ReconnectMaxDelay == 0 {
		c.Transport.ReconnectMaxDelay = defaultReconnectMax
	}
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.Session.LoadTimeout == 0 {
		c.Session.LoadTimeout = defaultLoadTimeout
	}
	if c.Session.MaxPlayers == 0 {
		c.Session.MaxPlayers = defaultMaxPlayers
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaultStorageDriver
	}
	if c.Storage.RedisAddr == "" {
		c.Storage.RedisAddr = defaultRedisAddr
	}
	if c.Storage.Profile == "" {
		c.Storage.Profile = defaultProfile
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}
