// Package exhibit runs the timed generation loop: one prompt, one Point-E
// invocation, one publish into the viewer, every interval, until the process
// is interrupted.
package exhibit

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/metrics"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/pointe"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/prompts"
)

// ErrBusy is returned by Cycle when a generation is already in flight.
// The loop never overlaps cycles; manual triggers from the API get a 409.
var ErrBusy = errors.New("a generation cycle is already running")

// Publisher installs a finished artifact where the viewer can see it.
// *viewer.Publisher is the real implementation.
type Publisher interface {
	Publish(a pointe.Artifact) error
}

// cleaner is implemented by runners that leave intermediate files behind.
type cleaner interface {
	Cleanup(a pointe.Artifact)
}

// Loop drives the exhibition. It owns no goroutines of its own; Run blocks
// until its context is cancelled.
type Loop struct {
	source   *prompts.Source
	runner   pointe.Runner
	pub      Publisher
	metrics  *metrics.Collector
	log      *zap.Logger
	interval time.Duration

	// onPublish, when set, is called after every successful publish.
	// The HTTP server uses it to fan out reload events.
	onPublish func()

	busy atomic.Bool
}

// New builds a Loop.
func New(source *prompts.Source, runner pointe.Runner, pub Publisher, mc *metrics.Collector, interval time.Duration, log *zap.Logger) *Loop {
	return &Loop{
		source:   source,
		runner:   runner,
		pub:      pub,
		metrics:  mc,
		log:      log,
		interval: interval,
	}
}

// OnPublish registers fn to run after each successful publish. Must be set
// before Run.
func (l *Loop) OnPublish(fn func()) {
	l.onPublish = fn
}

// Run generates the first object immediately, then one per interval. Cycle
// errors are logged and counted but never stop the loop; only context
// cancellation does, and that returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Cycle(ctx); err != nil && ctx.Err() != nil {
		return nil
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Info("exhibition loop stopped")
			return nil
		case <-ticker.C:
			l.Cycle(ctx)
		}
	}
}

// Cycle runs one generation end to end: pick a prompt, invoke Point-E,
// publish the result. Returns ErrBusy if a cycle is already in flight
// (manual trigger racing the timer), otherwise the cycle's error, which the
// timer path treats as non-fatal.
func (l *Loop) Cycle(ctx context.Context) error {
	if !l.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer l.busy.Store(false)
	return l.cycle(ctx)
}

// Trigger starts one cycle in the background, for the dashboard's manual
// button. The in-flight slot is claimed before this returns, so a caller
// that gets nil knows a cycle really started and a caller that gets ErrBusy
// knows nothing was queued behind the running one.
func (l *Loop) Trigger(ctx context.Context) error {
	if !l.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	go func() {
		defer l.busy.Store(false)
		l.cycle(ctx)
	}()
	return nil
}

func (l *Loop) cycle(ctx context.Context) error {
	done := l.metrics.CycleStart()
	defer done()

	prompt := l.source.Next().Prompt()
	start := time.Now()

	artifact, err := l.runner.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.metrics.RecordFailure(prompt, err)
		l.log.Warn("generation failed, skipping tick", zap.String("prompt", prompt), zap.Error(err))
		return err
	}
	if c, ok := l.runner.(cleaner); ok {
		defer c.Cleanup(artifact)
	}

	if err := l.pub.Publish(artifact); err != nil {
		l.metrics.RecordFailure(prompt, err)
		l.log.Warn("viewer publish failed, retrying next tick", zap.String("prompt", prompt), zap.Error(err))
		return err
	}

	l.metrics.RecordSuccess(prompt, time.Since(start))
	l.log.Info("cycle complete",
		zap.String("prompt", prompt),
		zap.Duration("took", time.Since(start)))

	if l.onPublish != nil {
		l.onPublish()
	}
	return nil
}
