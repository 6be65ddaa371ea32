package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock provides time information to the quota tracker and rotation selector.
// This interface allows time to be mocked in tests.
type Clock interface {
	Now() time.Time
}

// RealClock provides actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// TestClock provides a settable time for testing.
type TestClock struct {
	mu          sync.Mutex
	CurrentTime time.Time
}

// NewTestClock returns a TestClock frozen at t.
func NewTestClock(t time.Time) *TestClock {
	return &TestClock{CurrentTime: t}
}

// Now returns the test time.
func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CurrentTime
}

// Set moves the clock to t.
func (c *TestClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentTime = t
}

// Advance moves the clock forward by d and returns the new time.
func (c *TestClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentTime = c.CurrentTime.Add(d)
	return c.CurrentTime
}

const dayLayout = "2006-01-02"

// DayKey identifies one local calendar day. The zero value is not a valid day;
// keys are only produced by DayOf and ParseDayKey so that every caller agrees on
// the same location.
type DayKey struct {
	date time.Time // midnight of the day, in the owning location
}

// DayOf returns the calendar day containing t in loc. A nil loc means time.Local.
func DayOf(t time.Time, loc *time.Location) DayKey {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	return DayKey{date: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)}
}

// ParseDayKey parses a stored YYYY-MM-DD value in loc.
func ParseDayKey(s string, loc *time.Location) (DayKey, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(dayLayout, s, loc)
	if err != nil {
		return DayKey{}, fmt.Errorf("invalid day key %q: %w", s, err)
	}
	return DayKey{date: d}, nil
}

// String returns the canonical YYYY-MM-DD form.
func (d DayKey) String() string {
	if d.date.IsZero() {
		return ""
	}
	return d.date.Format(dayLayout)
}

// IsZero reports whether d was never set.
func (d DayKey) IsZero() bool {
	return d.date.IsZero()
}

// Start returns local midnight at the beginning of the day.
func (d DayKey) Start() time.Time {
	return d.date
}

// AddDays returns the key n calendar days away. DST transitions do not shift the
// result because the arithmetic is done on the calendar date.
func (d DayKey) AddDays(n int) DayKey {
	return DayKey{date: d.date.AddDate(0, 0, n)}
}

// Before reports whether d is an earlier calendar day than other.
func (d DayKey) Before(other DayKey) bool {
	return d.String() < other.String()
}

// Equal reports whether both keys name the same calendar day.
func (d DayKey) Equal(other DayKey) bool {
	return d.String() == other.String()
}

// MarshalText implements encoding.TextMarshaler.
func (d DayKey) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadLocation resolves a timezone name. Empty and "Local" mean time.Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts epoch milliseconds to a time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
