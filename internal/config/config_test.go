package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, ErrNotFound)

	// Missing file yields the detection-ready defaults, never a zero value.
	assert.Equal(t, "auto", cfg.PointEDir)
	assert.Equal(t, DefaultIntervalSeconds, cfg.IntervalSeconds)
	assert.Equal(t, OrderCyclic, cfg.PromptOrder)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exhibition_config.json")

	in := Config{
		PointEDir:                "/opt/point-e",
		ViewerDir:                "/opt/local3dviewer",
		ViewerModelsDir:          "/opt/local3dviewer/models",
		TempDir:                  "/tmp/exhibition",
		EnvType:                  EnvConda,
		PointEEnv:                "/opt/conda/envs/pointe",
		IntervalSeconds:          30,
		GenerationTimeoutSeconds: 120,
		PromptOrder:              OrderRandom,
		Host:                     "127.0.0.1",
		Port:                     9000,
	}
	require.NoError(t, Save(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestLoadFillsDerivedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"pointe_dir":"/a","viewer_dir":"/b"}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/b", "models"), cfg.ViewerModelsDir)
	assert.Equal(t, DefaultIntervalSeconds, cfg.IntervalSeconds)
	assert.Equal(t, DefaultGenerationTimeoutSeconds, cfg.GenerationTimeoutSeconds)
	assert.Equal(t, EnvSystem, cfg.EnvType)
	assert.Equal(t, 8000, cfg.Port)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	pointe := filepath.Join(dir, "point-e")
	viewerDir := filepath.Join(dir, "local3dviewer")
	require.NoError(t, os.MkdirAll(pointe, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(viewerDir, "models"), 0o755))

	valid := Config{
		PointEDir:       pointe,
		ViewerDir:       viewerDir,
		ViewerModelsDir: filepath.Join(viewerDir, "models"),
		IntervalSeconds: 30,
		PromptOrder:     OrderCyclic,
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unresolved pointe dir", func(c *Config) { c.PointEDir = "auto" }, "pointe_dir"},
		{"missing pointe dir", func(c *Config) { c.PointEDir = filepath.Join(dir, "gone") }, "pointe_dir"},
		{"unresolved viewer dir", func(c *Config) { c.ViewerDir = "" }, "viewer_dir"},
		{"zero interval", func(c *Config) { c.IntervalSeconds = 0 }, "interval_seconds"},
		{"bad order", func(c *Config) { c.PromptOrder = "shuffled" }, "prompt_order"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}
