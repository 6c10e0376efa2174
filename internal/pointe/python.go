package pointe

import (
	"path/filepath"
	"strings"

	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/config"
)

// pythonEnv resolves how python is invoked for the pipeline, mirroring how
// the environment would be activated in a shell:
//
//	conda  → conda run -n <env> python …
//	venv   → <env>/bin/python …, with <env>/bin prefixed onto PATH so that
//	         scripts the pipeline spawns also resolve the right python
//	system → python3 from PATH
type pythonEnv struct {
	Root string // environment root directory; unused for system
	Type string // config.EnvConda, EnvVenv or EnvSystem
}

// moduleArgv returns the argv for `python -m module args…`.
func (e pythonEnv) moduleArgv(module string, args ...string) []string {
	return e.argv(append([]string{"-m", module}, args...))
}

// scriptArgv returns the argv for `python script args…`.
func (e pythonEnv) scriptArgv(script string, args ...string) []string {
	return e.argv(append([]string{script}, args...))
}

// codeArgv returns the argv for `python -c code`.
func (e pythonEnv) codeArgv(code string) []string {
	return e.argv([]string{"-c", code})
}

func (e pythonEnv) argv(pyArgs []string) []string {
	switch e.Type {
	case config.EnvConda:
		return append([]string{"conda", "run", "-n", filepath.Base(e.Root), "python"}, pyArgs...)
	case config.EnvVenv:
		return append([]string{filepath.Join(e.Root, "bin", "python")}, pyArgs...)
	default:
		return append([]string{"python3"}, pyArgs...)
	}
}

// environ returns the process environment for a pipeline stage. For venvs
// the env's bin directory is prefixed onto PATH.
func (e pythonEnv) environ(base []string) []string {
	if e.Type != config.EnvVenv || e.Root == "" {
		return base
	}
	bin := filepath.Join(e.Root, "bin")
	out := make([]string, 0, len(base)+1)
	found := false
	for _, kv := range base {
		if strings.HasPrefix(kv, "PATH=") {
			kv = "PATH=" + bin + string(filepath.ListSeparator) + strings.TrimPrefix(kv, "PATH=")
			found = true
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, "PATH="+bin)
	}
	return out
}
