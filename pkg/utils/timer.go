package utils

import (
	"sync"
	"time"
)

// Phase is one timed step of a build.
type Phase struct {
	Name     string
	Duration time.Duration
}

// Timer records the duration of named phases in the order they ran. A
// disabled Timer still runs every phase but records nothing.
type Timer struct {
	name    string
	enabled bool
	logger  Logger
	clock   Clock
	start   time.Time

	mu     sync.Mutex
	phases []Phase
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// WithLogger sets the logger PrintSummary writes to.
func WithLogger(logger Logger) TimerOption {
	return func(t *Timer) { t.logger = logger }
}

// WithEnabled turns recording on or off.
func WithEnabled(enabled bool) TimerOption {
	return func(t *Timer) { t.enabled = enabled }
}

// WithClock replaces the time source.
func WithClock(clock Clock) TimerOption {
	return func(t *Timer) { t.clock = clock }
}

// NewTimer creates an enabled Timer.
func NewTimer(name string, opts ...TimerOption) *Timer {
	t := &Timer{name: name, enabled: true, clock: SystemClock}
	for _, opt := range opts {
		opt(t)
	}
	t.start = t.clock.Now()
	return t
}

// Time runs fn as the phase name and returns how long it took along with
// fn's error. Running a name twice records it twice.
func (t *Timer) Time(name string, fn func() error) (time.Duration, error) {
	if !t.enabled {
		return 0, fn()
	}
	begin := t.clock.Now()
	err := fn()
	d := t.clock.Now().Sub(begin)

	t.mu.Lock()
	t.phases = append(t.phases, Phase{Name: name, Duration: d})
	t.mu.Unlock()
	return d, err
}

// Duration returns the summed duration of every run of the phase name.
func (t *Timer) Duration(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total time.Duration
	for _, p := range t.phases {
		if p.Name == name {
			total += p.Duration
		}
	}
	return total
}

// Total returns the time elapsed since the timer was created.
func (t *Timer) Total() time.Duration {
	return t.clock.Now().Sub(t.start)
}

// Phases returns the recorded phases in run order.
func (t *Timer) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Phase(nil), t.phases...)
}

// PrintSummary logs one info line per phase and one for the total.
func (t *Timer) PrintSummary() {
	if !t.enabled || t.logger == nil {
		return
	}
	l := t.logger.WithField("timer", t.name)
	for i, p := range t.Phases() {
		l.Info("phase %d %s: %v", i+1, p.Name, p.Duration)
	}
	l.Info("total: %v", t.Total())
}
