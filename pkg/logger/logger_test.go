package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: LevelWarn, Format: "text", Output: &buf}))
	t.Cleanup(func() { _ = Init(Config{Level: LevelError, Output: &bytes.Buffer{}}) })

	Debug("hidden")
	Info("hidden too")
	Warn("shown", "procedure", "main")
	Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "main")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: LevelDebug, Format: "json", Output: &buf}))
	t.Cleanup(func() { _ = Init(Config{Level: LevelError, Output: &bytes.Buffer{}}) })

	LogProcedure("foo", "built")
	Named("abi").Infow("classified", "cc", "odin")
	With("arch", "arm64").Debugw("lowered")
	Sync()

	out := buf.String()
	assert.Contains(t, out, `"procedure":"foo"`)
	assert.Contains(t, out, `"event":"built"`)
	assert.Contains(t, out, `"logger":"abi"`)
	assert.Contains(t, out, `"arch":"arm64"`)
}

func TestInitProdWritesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitProd(dir))
	t.Cleanup(func() { _ = Init(Config{Level: LevelError, Output: &bytes.Buffer{}}) })

	LogFatal("main", "bad call")
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, "callgen.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "bad call")
}

func TestInitRejectsUnwritableFile(t *testing.T) {
	err := Init(Config{LogFile: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, os.Stderr, cfg.Output)
}
