// Package stress drives the engines from many goroutines at once and checks
// that their invariants still hold afterwards.
package stress

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deeppomo/deeppomo/internal/apperr"
)

// Metrics collects stress test measurements.
type Metrics struct {
	// Operations
	Operations int64
	Succeeded  int64
	Rejected   int64 // typed refusals such as a cycle or a restore of a live task
	Failed     int64 // anything else

	// Concurrency
	PeakConcurrent    int64
	currentConcurrent int64
	InitialGoroutines int
	PeakGoroutines    int

	// Timing
	StartTime time.Time
	EndTime   time.Time

	mu sync.Mutex
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:         time.Now(),
		InitialGoroutines: runtime.NumGoroutine(),
		PeakGoroutines:    runtime.NumGoroutine(),
	}
}

// Begin marks the start of an operation and tracks concurrency.
func (m *Metrics) Begin() {
	current := atomic.AddInt64(&m.currentConcurrent, 1)

	m.mu.Lock()
	if current > m.PeakConcurrent {
		m.PeakConcurrent = current
	}
	if g := runtime.NumGoroutine(); g > m.PeakGoroutines {
		m.PeakGoroutines = g
	}
	m.mu.Unlock()
}

// End records the outcome of an operation started with Begin. Errors that
// carry an apperr kind count as rejections.
func (m *Metrics) End(err error) {
	atomic.AddInt64(&m.currentConcurrent, -1)
	atomic.AddInt64(&m.Operations, 1)
	switch {
	case err == nil:
		atomic.AddInt64(&m.Succeeded, 1)
	case apperr.Kind(err) != nil:
		atomic.AddInt64(&m.Rejected, 1)
	default:
		atomic.AddInt64(&m.Failed, 1)
	}
}

// Finalize captures the end time.
func (m *Metrics) Finalize() {
	m.mu.Lock()
	m.EndTime = time.Now()
	m.mu.Unlock()
}

// Duration returns the total test duration.
func (m *Metrics) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EndTime.IsZero() {
		return time.Since(m.StartTime)
	}
	return m.EndTime.Sub(m.StartTime)
}

// OpsPerSecond returns the operation rate.
func (m *Metrics) OpsPerSecond() float64 {
	d := m.Duration()
	if d == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&m.Operations)) / d.Seconds()
}

// Summary returns the counters in one line for t.Logf.
func (m *Metrics) Summary() string {
	m.mu.Lock()
	goroutines := fmt.Sprintf("%d->%d", m.InitialGoroutines, m.PeakGoroutines)
	m.mu.Unlock()
	return fmt.Sprintf("ops=%d ok=%d rejected=%d failed=%d peak_concurrent=%d goroutines=%s rate=%.0f/s",
		atomic.LoadInt64(&m.Operations),
		atomic.LoadInt64(&m.Succeeded),
		atomic.LoadInt64(&m.Rejected),
		atomic.LoadInt64(&m.Failed),
		atomic.LoadInt64(&m.PeakConcurrent),
		goroutines,
		m.OpsPerSecond(),
	)
}
