package clock

import (
	"testing"
	"time"
)

func TestDayOfUsesLocation(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)

	// 2024-03-09 20:30 UTC is already 2024-03-10 in UTC+7.
	instant := time.Date(2024, 3, 9, 20, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		loc  *time.Location
		want string
	}{
		{"utc", time.UTC, "2024-03-09"},
		{"utc+7", jakarta, "2024-03-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DayOf(instant, tt.loc).String(); got != tt.want {
				t.Errorf("DayOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDayKeyMidnightBoundary(t *testing.T) {
	loc := time.FixedZone("TEST", 2*60*60)
	before := time.Date(2024, 5, 1, 23, 59, 59, 999_000_000, loc)
	after := before.Add(time.Millisecond)

	d1 := DayOf(before, loc)
	d2 := DayOf(after, loc)

	if d1.Equal(d2) {
		t.Fatalf("expected different days across midnight, got %s for both", d1)
	}
	if !d1.Before(d2) {
		t.Errorf("expected %s before %s", d1, d2)
	}
	if !d1.AddDays(1).Equal(d2) {
		t.Errorf("AddDays(1) = %s, want %s", d1.AddDays(1), d2)
	}
}

func TestParseDayKeyRoundTrip(t *testing.T) {
	d, err := ParseDayKey("2024-12-31", time.UTC)
	if err != nil {
		t.Fatalf("parse day key: %v", err)
	}
	if d.String() != "2024-12-31" {
		t.Errorf("String() = %s", d)
	}
	if next := d.AddDays(1).String(); next != "2025-01-01" {
		t.Errorf("AddDays(1) = %s, want 2025-01-01", next)
	}

	if _, err := ParseDayKey("31/12/2024", time.UTC); err == nil {
		t.Error("expected error for malformed day key")
	}
}

func TestZeroDayKey(t *testing.T) {
	var d DayKey
	if !d.IsZero() {
		t.Error("expected zero value to report IsZero")
	}
	if d.String() != "" {
		t.Errorf("zero String() = %q, want empty", d.String())
	}
}

func TestTestClockAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	c := NewTestClock(start)

	if got := c.Advance(15 * time.Minute); !got.Equal(start.Add(15 * time.Minute)) {
		t.Errorf("Advance() = %v", got)
	}
	if !c.Now().Equal(start.Add(15 * time.Minute)) {
		t.Errorf("Now() = %v after advance", c.Now())
	}
}
