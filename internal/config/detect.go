package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Detect fills every field of cfg that is empty or set to "auto" by probing
// the filesystem for known directory signatures. It returns a
// *ValidationError when a required directory cannot be located; optional
// fields (python env) degrade to the system python instead of failing.
//
// Probing is rooted at root (usually the working directory) so tests can
// point it at a fixture tree.
func Detect(cfg *Config, root string) error {
	home, _ := os.UserHomeDir()

	if cfg.PointEDir == "" || cfg.PointEDir == "auto" {
		dir := findPointEDir(root, home)
		if dir == "" {
			return &ValidationError{Field: "pointe_dir", Reason: "no directory with finetune/ and config/ found in the usual locations"}
		}
		cfg.PointEDir = dir
	}

	if cfg.ViewerDir == "" || cfg.ViewerDir == "auto" {
		dir := findViewerDir(root, home)
		if dir == "" {
			return &ValidationError{Field: "viewer_dir", Reason: "no local3dviewer directory with a models/ subdirectory found"}
		}
		cfg.ViewerDir = dir
	}
	if cfg.ViewerModelsDir == "" {
		cfg.ViewerModelsDir = filepath.Join(cfg.ViewerDir, "models")
	}

	if cfg.PointEEnv == "" || cfg.PointEEnv == "auto" {
		if env := findPythonEnv(cfg.PointEDir, home); env != "" {
			cfg.PointEEnv = env
			cfg.EnvType = detectEnvType(env)
		} else {
			cfg.PointEEnv = ""
			cfg.EnvType = EnvSystem
		}
	} else if cfg.EnvType == "" || cfg.EnvType == "auto" {
		cfg.EnvType = detectEnvType(cfg.PointEEnv)
	}

	if cfg.TempDir == "" || cfg.TempDir == "auto" {
		cfg.TempDir = filepath.Join(os.TempDir(), "exhibition")
	}

	return nil
}

// EnsureDirs creates the directories the run writes into.
func EnsureDirs(cfg Config) error {
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(cfg.ViewerModelsDir, 0o755)
}

// findPointEDir looks for a Point-E finetuning checkout: a directory holding
// both finetune/ and config/. Candidates are checked directly and one level
// deep, covering layouts like ~/Desktop/point-e-finetuning.
func findPointEDir(root, home string) string {
	candidates := []string{
		root,
		filepath.Dir(root),
	}
	if home != "" {
		candidates = append(candidates,
			filepath.Join(home, "Desktop"),
			filepath.Join(home, "Documents"),
			filepath.Join(home, "Downloads"),
			filepath.Join(home, "point-e-finetuning"),
			filepath.Join(home, "point-e"),
		)
	}
	for _, c := range candidates {
		if looksLikePointE(c) {
			return c
		}
		entries, err := os.ReadDir(c)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			sub := filepath.Join(c, e.Name())
			if looksLikePointE(sub) {
				return sub
			}
		}
	}
	return ""
}

func looksLikePointE(dir string) bool {
	return isDir(filepath.Join(dir, "finetune")) && isDir(filepath.Join(dir, "config"))
}

// findViewerDir looks for the local3dviewer checkout (signature: a models/
// subdirectory).
func findViewerDir(root, home string) string {
	candidates := []string{
		filepath.Join(root, "local3dviewer"),
		filepath.Join(filepath.Dir(root), "local3dviewer"),
	}
	if home != "" {
		candidates = append(candidates,
			filepath.Join(home, "Desktop", "local3dviewer"),
			filepath.Join(home, "Documents", "local3dviewer"),
		)
	}
	for _, c := range candidates {
		if isDir(c) && isDir(filepath.Join(c, "models")) {
			return c
		}
	}
	return ""
}

// findPythonEnv locates the python environment for the pipeline:
// the currently activated conda env or venv wins, then conda envs whose name
// mentions "point", then a venv inside the Point-E checkout.
func findPythonEnv(pointeDir, home string) string {
	if os.Getenv("CONDA_DEFAULT_ENV") != "" {
		if p := os.Getenv("CONDA_PREFIX"); p != "" {
			return p
		}
	}
	if p := os.Getenv("VIRTUAL_ENV"); p != "" {
		return p
	}

	var condaRoots []string
	if home != "" {
		condaRoots = append(condaRoots,
			filepath.Join(home, "miniconda3", "envs"),
			filepath.Join(home, "anaconda3", "envs"),
		)
	}
	condaRoots = append(condaRoots, "/opt/conda/envs", "/usr/local/conda/envs")
	for _, envs := range condaRoots {
		entries, err := os.ReadDir(envs)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() && strings.Contains(strings.ToLower(e.Name()), "point") {
				return filepath.Join(envs, e.Name())
			}
		}
	}

	if pointeDir != "" && pointeDir != "auto" {
		for _, name := range []string{"venv", "env"} {
			p := filepath.Join(pointeDir, name)
			if isDir(p) {
				return p
			}
		}
	}
	return ""
}

// detectEnvType classifies an environment directory by its layout.
func detectEnvType(envPath string) string {
	if isDir(filepath.Join(envPath, "conda-meta")) {
		return EnvConda
	}
	if _, err := os.Stat(filepath.Join(envPath, "pyvenv.cfg")); err == nil {
		return EnvVenv
	}
	return EnvSystem
}
