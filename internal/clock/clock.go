package clock

import (
	"sync"
	"time"
)

// Clock supplies the current instant. The core never calls time.Now directly
// so aggregation and toggling stay deterministic under test.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a settable clock for tests.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// Locations resolves the calendar timezone configured for a group.
type Locations interface {
	Location(groupID string) *time.Location
}

// StaticLocations applies one timezone to every group.
type StaticLocations struct {
	Loc *time.Location
}

func (s StaticLocations) Location(string) *time.Location {
	if s.Loc == nil {
		return time.UTC
	}
	return s.Loc
}

// DayStart returns midnight of t's calendar day in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// NextDayStart returns midnight of the day following t in loc.
func NextDayStart(t time.Time, loc *time.Location) time.Time {
	return DayStart(t, loc).AddDate(0, 0, 1)
}

// DayKey formats a calendar date key; t must already carry the group location.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
