// Package config defines the persisted exhibition configuration and its
// filesystem auto-detection.
//
// The configuration lives in a JSON file (default "exhibition_config.json")
// next to the binary. Path fields left empty or set to "auto" are filled in
// by Detect on startup and the resolved file is written back, so a fresh
// install needs no hand-edited config at all.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultIntervalSeconds is the tick period used when the config does not
// specify one. The right period depends on the venue and the machine, so it
// is a plain config value rather than a constant baked into the loop.
const DefaultIntervalSeconds = 600

// DefaultGenerationTimeoutSeconds bounds one generation cycle when the
// config does not say otherwise.
const DefaultGenerationTimeoutSeconds = 600

// Prompt selection orders.
const (
	OrderCyclic = "cyclic"
	OrderRandom = "random"
)

// Env types for the Point-E python environment.
const (
	EnvConda  = "conda"
	EnvVenv   = "venv"
	EnvSystem = "system"
)

// Config holds all settings for one exhibition run.
type Config struct {
	// PointEDir is the root of the Point-E finetuning checkout
	// (contains finetune/ and config/). "auto" or "" requests detection.
	PointEDir string `json:"pointe_dir"`

	// ViewerDir is the root of the local3dviewer checkout.
	ViewerDir string `json:"viewer_dir"`

	// ViewerModelsDir is the directory the viewer watches for new objects.
	// Defaults to <ViewerDir>/models.
	ViewerModelsDir string `json:"viewer_models_dir"`

	// TempDir holds intermediate point clouds and meshes between pipeline
	// stages. Contents are disposable.
	TempDir string `json:"temp_dir"`

	// PointEEnv is the python environment (conda env or venv root) used to
	// run the generation pipeline. Empty means the system python.
	PointEEnv string `json:"pointe_env"`

	// EnvType is one of "conda", "venv" or "system". Filled by detection
	// from PointEEnv's directory layout.
	EnvType string `json:"env_type"`

	// IntervalSeconds is the tick period of the generation loop.
	IntervalSeconds int `json:"interval_seconds"`

	// GenerationTimeoutSeconds bounds a single generation cycle; a hung
	// python process gives way to the next tick instead of wedging the run.
	GenerationTimeoutSeconds int `json:"generation_timeout_seconds"`

	// PromptOrder is "cyclic" (walk the CSV rows in order, wrapping) or
	// "random" (pick each word independently per tick).
	PromptOrder string `json:"prompt_order"`

	// Host and Port are the bind address of the viewer HTTP server.
	Host string `json:"host"`
	Port int    `json:"port"`

	// Browser is the preferred browser family ("chrome", "edge",
	// "firefox"); empty lets the platform opener pick.
	Browser string `json:"browser"`

	// OpenBrowser controls whether a fullscreen private window is opened
	// at startup.
	OpenBrowser bool `json:"open_browser"`
}

// ValidationError reports a configuration that cannot support a run:
// a required directory is missing or does not look like what it should be.
// It is fatal at startup.
type ValidationError struct {
	Field  string // config field, e.g. "pointe_dir"
	Path   string // the offending path, may be empty
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("config %s (%s): %s", e.Field, e.Path, e.Reason)
}

// ErrNotFound is returned by Load when the config file does not exist yet.
// Callers treat it as "run detection", not as a failure.
var ErrNotFound = errors.New("config file not found")

// Default returns a Config with every path marked for detection.
func Default() Config {
	return Config{
		PointEDir:                "auto",
		ViewerDir:                "auto",
		TempDir:                  "auto",
		PointEEnv:                "auto",
		IntervalSeconds:          DefaultIntervalSeconds,
		GenerationTimeoutSeconds: DefaultGenerationTimeoutSeconds,
		PromptOrder:              OrderCyclic,
		Host:                     "0.0.0.0",
		Port:                     8000,
		OpenBrowser:              true,
	}
}

// Load reads the config file at path. A missing file yields Default() and
// ErrNotFound; malformed JSON is an error.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), ErrNotFound
	}
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg Config) error {
	b, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Validate checks that the directories a run depends on actually exist.
// It never rewrites paths; detection is Detect's job.
func (c *Config) Validate() error {
	if c.PointEDir == "" || c.PointEDir == "auto" {
		return &ValidationError{Field: "pointe_dir", Reason: "not set and auto-detection found nothing"}
	}
	if !isDir(c.PointEDir) {
		return &ValidationError{Field: "pointe_dir", Path: c.PointEDir, Reason: "directory does not exist"}
	}
	if c.ViewerDir == "" || c.ViewerDir == "auto" {
		return &ValidationError{Field: "viewer_dir", Reason: "not set and auto-detection found nothing"}
	}
	if !isDir(c.ViewerDir) {
		return &ValidationError{Field: "viewer_dir", Path: c.ViewerDir, Reason: "directory does not exist"}
	}
	if c.ViewerModelsDir == "" {
		return &ValidationError{Field: "viewer_models_dir", Reason: "not set"}
	}
	if c.IntervalSeconds <= 0 {
		return &ValidationError{Field: "interval_seconds", Reason: "must be positive"}
	}
	switch c.PromptOrder {
	case OrderCyclic, OrderRandom:
	default:
		return &ValidationError{Field: "prompt_order", Reason: fmt.Sprintf("unknown order %q", c.PromptOrder)}
	}
	return nil
}

// applyDefaults fills derivable fields left empty by an older config file.
func (c *Config) applyDefaults() {
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = DefaultIntervalSeconds
	}
	if c.GenerationTimeoutSeconds == 0 {
		c.GenerationTimeoutSeconds = DefaultGenerationTimeoutSeconds
	}
	if c.PromptOrder == "" {
		c.PromptOrder = OrderCyclic
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.ViewerModelsDir == "" && c.ViewerDir != "" && c.ViewerDir != "auto" {
		c.ViewerModelsDir = filepath.Join(c.ViewerDir, "models")
	}
	if c.EnvType == "" {
		c.EnvType = EnvSystem
	}
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
