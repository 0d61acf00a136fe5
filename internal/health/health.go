// Package health aggregates component status for the /health endpoint.
package health

import (
	"sort"
	"sync"
	"time"
)

// Status values reported by components.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// recoveryWindow is how long a component stays degraded after a failure it
// has since recovered from.
const recoveryWindow = 5 * time.Minute

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LastOK    time.Time `json:"last_ok"`
	LastError time.Time `json:"last_error,omitempty"`
	Successes int64     `json:"successes"`
	Failures  int64     `json:"failures"`
}

// Report aggregates health from all components.
type Report struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// Checker is implemented by components that report health.
type Checker interface {
	HealthCheck() ComponentHealth
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func() ComponentHealth

func (f CheckerFunc) HealthCheck() ComponentHealth { return f() }

// Tracker records call outcomes for one component. The zero value is ready to use.
type Tracker struct {
	mu           sync.RWMutex
	lastSuccess  time.Time
	lastError    time.Time
	lastErrorMsg string
	successes    int64
	failures     int64
}

// RecordSuccess records a successful operation.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSuccess = time.Now()
	t.successes++
}

// RecordError records a failed operation.
func (t *Tracker) RecordError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastError = time.Now()
	t.lastErrorMsg = err.Error()
	t.failures++
}

// Check summarizes the tracker as the named component. A failure newer than
// the last success is an error; a recent recovered failure is degraded.
func (t *Tracker) Check(name string) ComponentHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h := ComponentHealth{
		Name:      name,
		Status:    StatusOK,
		LastOK:    t.lastSuccess,
		Successes: t.successes,
		Failures:  t.failures,
	}
	if t.lastError.IsZero() {
		return h
	}
	h.LastError = t.lastError
	switch {
	case t.lastError.After(t.lastSuccess):
		h.Status = StatusError
		h.Message = t.lastErrorMsg
	case time.Since(t.lastError) < recoveryWindow:
		h.Status = StatusDegraded
		h.Message = "recovered from: " + t.lastErrorMsg
	}
	return h
}

// Registry holds health checkers for all components.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewRegistry creates a new health registry.
func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register adds a component health checker.
func (r *Registry) Register(name string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// Names returns registered component names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs all health checks and returns a report with the overall status:
// error if any component errors, else degraded if any is degraded, else ok.
func (r *Registry) Check() Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := Report{
		Status:     StatusOK,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth, len(r.checkers)),
	}
	for name, checker := range r.checkers {
		c := checker.HealthCheck()
		report.Components[name] = c
		switch {
		case c.Status == StatusError:
			report.Status = StatusError
		case c.Status == StatusDegraded && report.Status == StatusOK:
			report.Status = StatusDegraded
		}
	}
	return report
}
