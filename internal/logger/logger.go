package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/palemoky/aircade/internal/config"
)

const maxLogSize = 10 * 1024 * 1024

var (
	mu      sync.RWMutex
	base    = zerolog.Nop()
	logFile *os.File
	logPath string
)

// Init initializes the process logger. The terminal UI owns stdout, so by
// default logs only go to ~/.aircade/debug.log.
func Init(cfg config.LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if cfg.File {
		f, path, err := openLogFile()
		if err != nil {
			return err
		}
		mu.Lock()
		logFile, logPath = f, path
		mu.Unlock()
		writers = append(writers, f)
	}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if len(writers) == 0 {
		return nil
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	SetLogger(l)

	l.Info().Str("path", logPath).Msg("logger initialized")
	return nil
}

func openLogFile() (*os.File, string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	logDir := filepath.Join(homeDir, ".aircade")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(logDir, "debug.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open log file: %w", err)
	}

	// Rotate if file is too large
	if info, err := f.Stat(); err == nil && info.Size() > maxLogSize {
		_ = f.Close()
		backupPath := filepath.Join(logDir, fmt.Sprintf("debug.log.%d", time.Now().Unix()))
		_ = os.Rename(path, backupPath)
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create new log file: %w", err)
		}
	}
	return f, path, nil
}

// SetLogger replaces the process logger (tests, embedding applications)
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	base = l
	mu.Unlock()
}

// L returns a logger tagged with the given component
func L(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("component", component).Logger()
}

// Close closes the debug log file
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// LogPanic logs a recovered panic with stack trace
func LogPanic(component string, r any) {
	l := L(component)
	l.Error().Str("stack", string(debug.Stack())).Msgf("panic recovered: %v", r)
}

// GetLogPath returns the current log file path
func GetLogPath() string {
	mu.RLock()
	defer mu.RUnlock()
	return logPath
}
