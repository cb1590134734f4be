package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/aircade/internal/config"
)

func TestL_TagsComponent(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	t.Cleanup(func() { SetLogger(zerolog.Nop()) })

	l := L("transport")
	l.Info().Msg("connected")

	assert.Contains(t, buf.String(), `"component":"transport"`)
	assert.Contains(t, buf.String(), `"message":"connected"`)
}

func TestLogPanic_IncludesStack(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	t.Cleanup(func() { SetLogger(zerolog.Nop()) })

	LogPanic("pump", "boom")

	assert.Contains(t, buf.String(), "panic recovered: boom")
	assert.Contains(t, buf.String(), `"stack"`)
}

func TestInit_NoWritersKeepsLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	t.Cleanup(func() { SetLogger(zerolog.Nop()) })

	require.NoError(t, Init(config.LogConfig{Level: "debug"}))

	l := L("x")
	l.Info().Msg("still here")
	assert.Contains(t, buf.String(), "still here")
}

func TestInit_FileWriter(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(func() {
		Close()
		SetLogger(zerolog.Nop())
	})

	require.NoError(t, Init(config.LogConfig{Level: "info", File: true}))
	assert.Contains(t, GetLogPath(), ".aircade")
}
