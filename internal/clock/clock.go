package clock

import "time"

// Clock provides the current time. Injecting it instead of calling
// time.Now directly keeps derived values (cost amounts, job timestamps)
// deterministic under test.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual system time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FakeClock returns a fixed time that tests can move forward explicitly.
type FakeClock struct {
	Time time.Time
}

func NewFakeClock(t time.Time) *FakeClock { return &FakeClock{Time: t} }

func (f *FakeClock) Now() time.Time { return f.Time }

// Advance moves the fake clock forward by d.
func (f *FakeClock) Advance(d time.Duration) { f.Time = f.Time.Add(d) }
