package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/aircade/internal/logger"
	"github.com/palemoky/aircade/internal/storage"
)

func writeCode(t *testing.T, code string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pong.js")
	require.NoError(t, os.WriteFile(path, []byte(code), 0o600))
	return path
}

func TestRenderCmd_WritesSandboxedPage(t *testing.T) {
	path := writeCode(t, "function setup() { createCanvas(100, 100); }")

	var out bytes.Buffer
	cmd := newRootCmd(&options{})
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"render", path, "--role", "player"})
	require.NoError(t, cmd.Execute())

	page := out.String()
	assert.Contains(t, page, `sandbox="allow-scripts"`)
	assert.Contains(t, page, "<title>pong.js</title>")
	assert.Contains(t, page, "onStateUpdate")
}

func TestRenderCmd_UnknownRole(t *testing.T) {
	path := writeCode(t, "")

	cmd := newRootCmd(&options{})
	cmd.SetArgs([]string{"render", path, "--role", "spectator"})
	assert.ErrorContains(t, cmd.Execute(), "unknown role")
}

func TestRootCmd_EnvFillsUnsetFlags(t *testing.T) {
	t.Setenv("AIRCADE_API_URL", "https://env.example.com")
	t.Setenv("AIRCADE_PROFILE", "kitchen")

	opts := &options{}
	cmd := newRootCmd(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"render", writeCode(t, ""), "--profile", "flag-wins"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "https://env.example.com", opts.apiURL)
	assert.Equal(t, "flag-wins", opts.profile)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: https://file.example.com\nstorage:\n  driver: redis\n"), 0o600))

	cfg, err := (&options{configPath: path, storage: "memory", profile: "den"}).loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://file.example.com", cfg.API.BaseURL)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "den", cfg.Storage.Profile)

	_, err = (&options{configPath: filepath.Join(t.TempDir(), "missing.yaml")}).loadConfig()
	assert.Error(t, err)
}

// isolateHome 日志与默认存储都写入临时目录
func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(logger.Close)
}

func TestLoginCmd_CredentialsOutliveTheCommand(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()

	var out bytes.Buffer
	cmd := newRootCmd(&options{})
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"login", "--token", "t1", "--refresh-token", "r1", "--storage-dir", dir})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Credentials saved.")

	ctx := context.Background()
	saved := storage.NewFileStore(filepath.Join(dir, "default.yaml"))
	token, err := saved.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", token)

	cmd = newRootCmd(&options{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"logout", "--storage-dir", dir})
	require.NoError(t, cmd.Execute())

	token, err = saved.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestLoginCmd_RefusesMemoryStorage(t *testing.T) {
	isolateHome(t)

	cmd := newRootCmd(&options{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"login", "--token", "t1", "--storage", "memory"})
	assert.ErrorContains(t, cmd.Execute(), "memory storage")
}

func TestHostCmd_ResumeRefusesMemoryStorage(t *testing.T) {
	isolateHome(t)

	cmd := newRootCmd(&options{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"host", "--resume", "--storage", "memory"})
	assert.ErrorIs(t, cmd.Execute(), errEphemeralStorage)
}
