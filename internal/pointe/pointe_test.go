package pointe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/config"
)

func TestGenerateErrorWrapping(t *testing.T) {
	inner := errors.New("exit status 1")
	err := &GenerateError{Stage: "inference", Prompt: "Old wood chair", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "inference")
	assert.Contains(t, err.Error(), "Old wood chair")
}

func TestCleanupRemovesRunFiles(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.Config{TempDir: tmp, EnvType: config.EnvSystem}
	p := NewPipeline(cfg, zaptest.NewLogger(t))

	a := Artifact{ID: "abc123", CreatedAt: time.Now()}
	for _, name := range []string{
		"temp_abc123.npz", "temp_abc123.ply", "temp_abc123.obj", "temp_abc123_convert.py",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(tmp, name), nil, 0o644))
	}
	// A different run's files must survive.
	other := filepath.Join(tmp, "temp_zzz.obj")
	require.NoError(t, os.WriteFile(other, nil, 0o644))

	p.Cleanup(a)

	matches, _ := filepath.Glob(filepath.Join(tmp, "temp_abc123*"))
	assert.Empty(t, matches)
	assert.FileExists(t, other)
}

func TestPipelineTimeoutFromConfig(t *testing.T) {
	cfg := config.Config{TempDir: t.TempDir(), EnvType: config.EnvSystem, GenerationTimeoutSeconds: 120}
	p := NewPipeline(cfg, zaptest.NewLogger(t))
	assert.Equal(t, 120*time.Second, p.timeout)

	cfg.GenerationTimeoutSeconds = 0
	p = NewPipeline(cfg, zaptest.NewLogger(t))
	assert.Equal(t, DefaultTimeout, p.timeout)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail([]byte("  short \n"), 400))

	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	got := tail(long, 400)
	assert.LessOrEqual(t, len(got), 404) // ellipsis rune + 400 bytes
}
