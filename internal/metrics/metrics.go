// Package metrics is a tiny facade so the import job can emit counters and
// timings without depending on a specific vendor. The default backend is a
// nop; the binary wires a real backend (see internal/metrics/datadog) at
// startup. Core code depends only on this package.
package metrics

import (
	"sync"
	"time"
)

// Backend is the minimal surface a metrics vendor must implement.
type Backend interface {
	// IncCounter adds delta to a named counter. Tags are "key:value" strings.
	IncCounter(name string, delta float64, tags ...string)

	// ObserveDuration records one duration sample for a named timing.
	ObserveDuration(name string, d time.Duration, tags ...string)

	// Flush submits buffered metrics. Safe to call multiple times.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, ...string)            {}
func (nopBackend) ObserveDuration(string, time.Duration, ...string) {}
func (nopBackend) Flush() error                                     { return nil }

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. Call once at startup,
// before the run begins.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	current = b
	mu.Unlock()
}

func backend() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func IncCounter(name string, delta float64, tags ...string) {
	backend().IncCounter(name, delta, tags...)
}

func ObserveDuration(name string, d time.Duration, tags ...string) {
	backend().ObserveDuration(name, d, tags...)
}

func Flush() error {
	return backend().Flush()
}
