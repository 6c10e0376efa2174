// Package metrics collects and exposes generation statistics for the
// dashboard.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time view of exhibition metrics — safe to marshal to JSON.
type Snapshot struct {
	CyclesTotal   int64   `json:"cycles_total"`
	CyclesFailed  int64   `json:"cycles_failed"`
	InFlight      int64   `json:"in_flight"`
	AvgGenSeconds float64 `json:"avg_generation_seconds"`
	LastPrompt    string  `json:"last_prompt"`
	LastError     string  `json:"last_error,omitempty"`
	LastSuccessAt string  `json:"last_success_at,omitempty"` // RFC3339, empty before the first success
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Collector is a thread-safe metrics store.
type Collector struct {
	startTime time.Time

	cyclesTotal  atomic.Int64
	cyclesFailed atomic.Int64
	inFlight     atomic.Int64

	mu          sync.Mutex
	durations   []float64 // seconds per successful generation
	lastPrompt  string
	lastError   string
	lastSuccess time.Time
}

// NewCollector creates a Collector.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// CycleStart marks a generation cycle as in flight and returns a done
// function that should be deferred by the caller.
func (c *Collector) CycleStart() func() {
	c.inFlight.Add(1)
	return func() {
		c.inFlight.Add(-1)
	}
}

// RecordSuccess records one completed generation.
func (c *Collector) RecordSuccess(prompt string, took time.Duration) {
	c.cyclesTotal.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPrompt = prompt
	c.lastError = ""
	c.lastSuccess = time.Now()
	c.durations = append(c.durations, took.Seconds())
	// Cap samples so a months-long installation doesn't grow without bound.
	if len(c.durations) > 1000 {
		c.durations = c.durations[len(c.durations)-1000:]
	}
}

// RecordFailure records a failed cycle. The loop keeps running; this only
// feeds the dashboard.
func (c *Collector) RecordFailure(prompt string, err error) {
	c.cyclesTotal.Add(1)
	c.cyclesFailed.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPrompt = prompt
	c.lastError = err.Error()
}

// Snapshot returns current metrics as an immutable value.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		CyclesTotal:   c.cyclesTotal.Load(),
		CyclesFailed:  c.cyclesFailed.Load(),
		InFlight:      c.inFlight.Load(),
		AvgGenSeconds: average(c.durations),
		LastPrompt:    c.lastPrompt,
		LastError:     c.lastError,
		UptimeSeconds: time.Since(c.startTime).Seconds(),
	}
	if !c.lastSuccess.IsZero() {
		s.LastSuccessAt = c.lastSuccess.Format(time.RFC3339)
	}
	return s
}

func average(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
