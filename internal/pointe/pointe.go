// Package pointe invokes the external Point-E text-to-3D pipeline.
//
// Point-E runs as python subprocesses inside its own checkout, in three
// stages:
//
//  1. finetune.inference      — text prompt → point cloud (.npz)
//  2. pointclouds_to_mesh.py  — point cloud → mesh (.ply)
//  3. trimesh one-shot script — mesh → wavefront object (.obj)
//
// The package knows nothing about the viewer; it returns the finished OBJ
// path and the caller decides where it goes.
package pointe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/config"
)

// DefaultTimeout bounds one full generation. Point cloud sampling dominates;
// ten minutes is generous even on CPU-only machines.
const DefaultTimeout = 10 * time.Minute

// Artifact is one finished generation.
type Artifact struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	OBJPath   string    `json:"obj_path"`
	CreatedAt time.Time `json:"created_at"`
}

// Runner produces one artifact from one text prompt. The exhibition loop
// depends on this interface so tests can substitute a fake pipeline.
type Runner interface {
	Generate(ctx context.Context, prompt string) (Artifact, error)
}

// GenerateError reports a failed pipeline stage. Generation failures are
// recoverable: the loop logs them and waits for the next tick.
type GenerateError struct {
	Stage  string // "inference", "mesh", "convert"
	Prompt string
	Err    error
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("generate %q: stage %s: %v", e.Prompt, e.Stage, e.Err)
}

func (e *GenerateError) Unwrap() error { return e.Err }

// Pipeline is the real Runner backed by the Point-E checkout.
type Pipeline struct {
	dir     string // Point-E checkout root, cwd for stages 1 and 2
	tempDir string
	env     pythonEnv
	timeout time.Duration
	log     *zap.Logger
}

// NewPipeline builds a Pipeline from the exhibition config.
func NewPipeline(cfg config.Config, log *zap.Logger) *Pipeline {
	timeout := DefaultTimeout
	if cfg.GenerationTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.GenerationTimeoutSeconds) * time.Second
	}
	return &Pipeline{
		dir:     cfg.PointEDir,
		tempDir: cfg.TempDir,
		env:     pythonEnv{Root: cfg.PointEEnv, Type: cfg.EnvType},
		timeout: timeout,
		log:     log,
	}
}

// CheckDeps verifies the pipeline's python can import trimesh, which the
// PLY→OBJ stage depends on, and installs it when missing. On an unattended
// gallery machine nobody is around to read a traceback at tick time, so this
// runs once at startup.
func (p *Pipeline) CheckDeps(ctx context.Context) error {
	if err := p.run(ctx, p.dir, p.env.codeArgv("import trimesh")); err == nil {
		return nil
	}
	p.log.Warn("trimesh not importable, attempting install")
	if err := p.run(ctx, p.dir, p.env.moduleArgv("pip", "install", "trimesh")); err != nil {
		return fmt.Errorf("trimesh is missing and could not be installed (try pip install trimesh in the Point-E env): %w", err)
	}
	return nil
}

// Generate runs the three pipeline stages for prompt and returns the OBJ
// artifact. Intermediate files live under the temp dir and are named by a
// per-run ID so overlapping manual triggers cannot collide.
func (p *Pipeline) Generate(ctx context.Context, prompt string) (Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	id := uuid.NewString()
	base := filepath.Join(p.tempDir, "temp_"+id)
	npz := base + ".npz"
	ply := base + ".ply"
	obj := base + ".obj"

	p.log.Info("generating object", zap.String("prompt", prompt), zap.String("id", id))

	// Stage 1: prompt → point cloud.
	args := p.env.moduleArgv("finetune.inference",
		"--config", "config/config.yaml",
		"--prompt", prompt,
		"--out", npz)
	if err := p.run(ctx, p.dir, args); err != nil {
		return Artifact{}, &GenerateError{Stage: "inference", Prompt: prompt, Err: err}
	}

	// Stage 2: point cloud → mesh. The script writes its output next to the
	// input with a .ply suffix.
	args = p.env.scriptArgv(filepath.Join("scripts", "pointclouds_to_mesh.py"), "--input", npz)
	if err := p.run(ctx, p.dir, args); err != nil {
		return Artifact{}, &GenerateError{Stage: "mesh", Prompt: prompt, Err: err}
	}

	// Stage 3: mesh → OBJ via trimesh.
	if err := p.convertPLY(ctx, id, ply, obj); err != nil {
		return Artifact{}, &GenerateError{Stage: "convert", Prompt: prompt, Err: err}
	}

	return Artifact{ID: id, Prompt: prompt, OBJPath: obj, CreatedAt: time.Now()}, nil
}

// Cleanup removes the run's intermediate files. Best effort; the temp dir is
// disposable anyway.
func (p *Pipeline) Cleanup(a Artifact) {
	matches, _ := filepath.Glob(filepath.Join(p.tempDir, "temp_"+a.ID+"*"))
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			p.log.Debug("temp cleanup", zap.String("path", m), zap.Error(err))
		}
	}
}

// convertPLY writes a one-shot trimesh conversion script into the temp dir
// and runs it under the pipeline's python. trimesh lives in the Point-E
// environment, not in this process. The script is named by the run ID so it
// is covered by the same cleanup glob as the run's other files.
func (p *Pipeline) convertPLY(ctx context.Context, id, ply, obj string) error {
	script := filepath.Join(p.tempDir, "temp_"+id+"_convert.py")
	content := fmt.Sprintf(`import sys
import trimesh
mesh = trimesh.load(%q)
mesh.export(%q)
print("Conversion successful")
`, ply, obj)
	if err := os.WriteFile(script, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write convert script: %w", err)
	}
	return p.run(ctx, p.tempDir, p.env.scriptArgv(script))
}

// run executes argv in dir and surfaces a trimmed tail of the combined
// output on failure, which is usually a python traceback.
func (p *Pipeline) run(ctx context.Context, dir string, args []string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = p.env.environ(os.Environ())

	start := time.Now()
	out, err := cmd.CombinedOutput()
	p.log.Debug("pipeline stage finished",
		zap.String("cmd", strings.Join(args, " ")),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", args[0], err, tail(out, 400))
	}
	return nil
}

// tail returns at most n trailing bytes of b as a string.
func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = "…" + s[len(s)-n:]
	}
	return s
}
