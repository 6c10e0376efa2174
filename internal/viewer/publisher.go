// Package viewer publishes finished artifacts into the web viewer's watched
// models directory. That directory is the whole contract with the viewer:
// drop a valid model1.obj there and the viewer picks it up on its next poll.
//
// Directory layout after a publish:
//
//	models/model1.obj       — the generated object (overwritten each cycle)
//	models/model1.mtl       — default material definition
//	models/last_prompt.txt  — timestamp + prompt, for the wall label
//	models/reload           — sentinel: recreated each publish so file
//	                          watchers see a fresh mtime
package viewer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/pointe"
)

const (
	objectFile   = "model1.obj"
	materialFile = "model1.mtl"
	promptFile   = "last_prompt.txt"
	sentinelFile = "reload"
)

// defaultMTL is the material the viewer applies to every generated object.
const defaultMTL = `# Default material
newmtl default
Ka 0.2 0.2 0.2
Kd 0.8 0.8 0.8
Ks 0.0 0.0 0.0
Ns 10.0
d 1.0
illum 1
`

// PublishError reports a failed write into the viewer directory. The viewer
// may be on a flaky mount; publish failures are recoverable and the next
// tick simply tries again with a fresh artifact.
type PublishError struct {
	Path string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to viewer: %s: %v", e.Path, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Publisher writes artifacts into one models directory.
type Publisher struct {
	modelsDir string
	log       *zap.Logger
}

// NewPublisher creates a Publisher for the viewer's models directory.
func NewPublisher(modelsDir string, log *zap.Logger) *Publisher {
	return &Publisher{modelsDir: modelsDir, log: log}
}

// Publish installs a into the viewer directory: object, material, prompt
// label, then the reload sentinel. Ownership of the object file transfers to
// the viewer once written.
func (p *Publisher) Publish(a pointe.Artifact) error {
	if err := os.MkdirAll(p.modelsDir, 0o755); err != nil {
		return &PublishError{Path: p.modelsDir, Err: err}
	}

	dst := filepath.Join(p.modelsDir, objectFile)
	if err := copyFile(a.OBJPath, dst); err != nil {
		return &PublishError{Path: dst, Err: err}
	}

	mtl := filepath.Join(p.modelsDir, materialFile)
	if err := os.WriteFile(mtl, []byte(defaultMTL), 0o644); err != nil {
		return &PublishError{Path: mtl, Err: err}
	}

	label := fmt.Sprintf("%s\n%s\n", a.CreatedAt.Format(time.RFC3339), a.Prompt)
	prompt := filepath.Join(p.modelsDir, promptFile)
	if err := os.WriteFile(prompt, []byte(label), 0o644); err != nil {
		return &PublishError{Path: prompt, Err: err}
	}

	// Touch the sentinel so directory watchers see a fresh event even when
	// the object path itself is unchanged.
	sentinel := filepath.Join(p.modelsDir, sentinelFile)
	f, err := os.Create(sentinel)
	if err != nil {
		return &PublishError{Path: sentinel, Err: err}
	}
	f.Close()

	p.log.Info("object published", zap.String("prompt", a.Prompt), zap.String("path", dst))
	return nil
}

// ObjectPath returns where the published object lives, for the API.
func (p *Publisher) ObjectPath() string {
	return filepath.Join(p.modelsDir, objectFile)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
