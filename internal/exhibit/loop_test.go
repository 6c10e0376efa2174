package exhibit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/metrics"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/pointe"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/prompts"
)

// fakeRunner records prompts and can fail the first failFirst calls or
// block until release is closed.
type fakeRunner struct {
	mu        sync.Mutex
	prompts   []string
	cleaned   []string
	failFirst int
	release   chan struct{}
}

func (f *fakeRunner) Generate(ctx context.Context, prompt string) (pointe.Artifact, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	n := len(f.prompts)
	f.mu.Unlock()

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return pointe.Artifact{}, ctx.Err()
		}
	}
	if n <= f.failFirst {
		return pointe.Artifact{}, &pointe.GenerateError{Stage: "inference", Prompt: prompt, Err: errors.New("model crashed")}
	}
	return pointe.Artifact{ID: "fake", Prompt: prompt, OBJPath: "/tmp/fake.obj", CreatedAt: time.Now()}, nil
}

func (f *fakeRunner) Cleanup(a pointe.Artifact) {
	f.mu.Lock()
	f.cleaned = append(f.cleaned, a.Prompt)
	f.mu.Unlock()
}

func (f *fakeRunner) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}

type fakePublisher struct {
	mu        sync.Mutex
	published []pointe.Artifact
	err       error
}

func (f *fakePublisher) Publish(a pointe.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, a)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func testRows() []prompts.Row {
	return []prompts.Row{
		{Description: "Old", Material: "wood", Object: "chair"},
		{Description: "Broken", Material: "metal", Object: "table"},
	}
}

func newTestLoop(t *testing.T, runner pointe.Runner, pub Publisher, interval time.Duration) (*Loop, *metrics.Collector) {
	mc := metrics.NewCollector()
	l := New(prompts.NewSource(testRows()), runner, pub, mc, interval, zaptest.NewLogger(t))
	return l, mc
}

func TestCyclePublishes(t *testing.T) {
	runner := &fakeRunner{}
	pub := &fakePublisher{}
	l, mc := newTestLoop(t, runner, pub, time.Minute)

	var reloads int
	l.OnPublish(func() { reloads++ })

	require.NoError(t, l.Cycle(context.Background()))

	require.Equal(t, 1, pub.count())
	assert.Equal(t, "Old wood chair", pub.published[0].Prompt)
	assert.Equal(t, []string{"Old wood chair"}, runner.cleaned)
	assert.Equal(t, 1, reloads)

	snap := mc.Snapshot()
	assert.EqualValues(t, 1, snap.CyclesTotal)
	assert.EqualValues(t, 0, snap.CyclesFailed)
	assert.Equal(t, "Old wood chair", snap.LastPrompt)
}

func TestCycleGenerationFailure(t *testing.T) {
	runner := &fakeRunner{failFirst: 1}
	pub := &fakePublisher{}
	l, mc := newTestLoop(t, runner, pub, time.Minute)

	err := l.Cycle(context.Background())
	var gerr *pointe.GenerateError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 0, pub.count())

	snap := mc.Snapshot()
	assert.EqualValues(t, 1, snap.CyclesFailed)
	assert.Contains(t, snap.LastError, "model crashed")
}

func TestCyclePublishFailure(t *testing.T) {
	runner := &fakeRunner{}
	pub := &fakePublisher{err: errors.New("disk full")}
	l, mc := newTestLoop(t, runner, pub, time.Minute)

	require.Error(t, l.Cycle(context.Background()))
	assert.EqualValues(t, 1, mc.Snapshot().CyclesFailed)
}

func TestRunSurvivesFailures(t *testing.T) {
	// The first generation fails; the loop must keep ticking regardless.
	runner := &fakeRunner{failFirst: 1}
	pub := &fakePublisher{}
	l, mc := newTestLoop(t, runner, pub, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() >= 2 },
		2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	snap := mc.Snapshot()
	assert.EqualValues(t, 1, snap.CyclesFailed)
	assert.GreaterOrEqual(t, snap.CyclesTotal, int64(3))
}

func TestRunConsumesRowsInOrder(t *testing.T) {
	runner := &fakeRunner{}
	pub := &fakePublisher{}
	l, _ := newTestLoop(t, runner, pub, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return len(runner.seen()) >= 3 },
		2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// First cycle at t=0, then one per tick, wrapping after the last row.
	seen := runner.seen()
	assert.Equal(t, "Old wood chair", seen[0])
	assert.Equal(t, "Broken metal table", seen[1])
	assert.Equal(t, "Old wood chair", seen[2])
}

func TestCycleSingleFlight(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	pub := &fakePublisher{}
	l, _ := newTestLoop(t, runner, pub, time.Minute)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		l.Cycle(context.Background())
	}()
	require.Eventually(t, func() bool { return len(runner.seen()) == 1 },
		time.Second, time.Millisecond)

	assert.ErrorIs(t, l.Cycle(context.Background()), ErrBusy)

	close(runner.release)
	<-firstDone
	assert.Equal(t, 1, pub.count())
}

func TestTriggerClaimsSlotBeforeReturning(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	pub := &fakePublisher{}
	l, _ := newTestLoop(t, runner, pub, time.Minute)

	require.NoError(t, l.Trigger(context.Background()))

	// The first trigger returned, so the slot is taken: both another
	// trigger and a timer cycle must be refused, not queued.
	assert.ErrorIs(t, l.Trigger(context.Background()), ErrBusy)
	assert.ErrorIs(t, l.Cycle(context.Background()), ErrBusy)

	close(runner.release)

	// Slot released once the background cycle finishes.
	require.Eventually(t, func() bool { return l.Cycle(context.Background()) == nil },
		time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, pub.count(), 2)
}

func TestRunReturnsOnCancelledContext(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	pub := &fakePublisher{}
	l, _ := newTestLoop(t, runner, pub, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	// Cancel while the first generation is still in flight.
	require.Eventually(t, func() bool { return len(runner.seen()) == 1 },
		time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on cancellation")
	}
}
