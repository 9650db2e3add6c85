// Package timeutil provides a testable clock and stage timing for runs.
package timeutil

import (
	"sync"
	"time"

	"github.com/banshee-data/glitch.audit/internal/monitoring"
)

// Clock provides the current time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }

// Since returns time.Since(t).
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// MockClock is a Clock that only moves when told to.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a MockClock set to t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mock time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the mock time elapsed since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Set moves the clock to t.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Stages records how long each named step of a run took.
type Stages struct {
	clock Clock
	names []string
	took  map[string]time.Duration
}

// NewStages creates an empty stage recorder on clock.
func NewStages(clock Clock) *Stages {
	return &Stages{clock: clock, took: make(map[string]time.Duration)}
}

// Start begins timing name; the returned func stops it and logs the
// duration. A repeated name accumulates.
func (s *Stages) Start(name string) func() {
	start := s.clock.Now()
	return func() {
		d := s.clock.Since(start)
		if _, ok := s.took[name]; !ok {
			s.names = append(s.names, name)
		}
		s.took[name] += d
		monitoring.Logf("[timing] %s took %s", name, d.Round(time.Millisecond))
	}
}

// Durations returns each stage's total in first-started order.
func (s *Stages) Durations() []StageDuration {
	out := make([]StageDuration, len(s.names))
	for i, n := range s.names {
		out[i] = StageDuration{Name: n, Duration: s.took[n]}
	}
	return out
}

// StageDuration is one entry of Stages.Durations.
type StageDuration struct {
	Name     string
	Duration time.Duration
}
