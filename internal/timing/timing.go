// Package timing measures the phases of ledger startup.
package timing

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Timer tracks durations of named phases.
type Timer struct {
	now    func() time.Time
	start  time.Time
	last   time.Time
	phases []Phase
}

// Phase represents a timed phase with name and duration.
type Phase struct {
	Name     string
	Duration time.Duration
}

// New creates a new Timer starting from now.
func New() *Timer {
	return newWithClock(time.Now)
}

func newWithClock(now func() time.Time) *Timer {
	start := now()
	return &Timer{now: now, start: start, last: start}
}

// Mark records a named phase ending now.
// Duration is time since last mark (or since start if first mark).
func (t *Timer) Mark(name string) {
	now := t.now()
	t.phases = append(t.phases, Phase{Name: name, Duration: now.Sub(t.last)})
	t.last = now
}

// Total returns the total elapsed time since timer creation.
func (t *Timer) Total() time.Duration {
	return t.now().Sub(t.start)
}

// Phases returns all recorded phases.
func (t *Timer) Phases() []Phase {
	return t.phases
}

// Log writes one debug line per phase and the total at info.
func (t *Timer) Log(logger hclog.Logger) {
	for _, p := range t.phases {
		logger.Debug("startup phase", "phase", p.Name, "duration", p.Duration)
	}
	logger.Info("startup complete", "duration", t.Total())
}
