package clock

import (
	"testing"
	"time"
)

func TestDayStart(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 01:30 UTC is still 20:30 the previous day in New York.
	at := time.Date(2024, 3, 2, 1, 30, 0, 0, time.UTC)
	start := DayStart(at, loc)
	if start.Year() != 2024 || start.Month() != 3 || start.Day() != 1 {
		t.Fatalf("expected NY day 2024-03-01, got %v", start)
	}
	if start.Hour() != 0 || start.Minute() != 0 {
		t.Fatalf("expected midnight, got %v", start)
	}
}

func TestNextDayStartAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 2024-03-10 is the US spring-forward day; it is 23 hours long.
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, loc)
	next := NextDayStart(at, loc)
	if DayKey(next) != "2024-03-11" {
		t.Fatalf("expected 2024-03-11, got %s", DayKey(next))
	}
	if got := next.Sub(DayStart(at, loc)); got != 23*time.Hour {
		t.Fatalf("expected 23h day, got %v", got)
	}
}

func TestFixedClockAdvance(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	f := NewFixed(base)
	if !f.Now().Equal(base) {
		t.Fatalf("unexpected now: %v", f.Now())
	}
	f.Advance(90 * time.Minute)
	if !f.Now().Equal(base.Add(90 * time.Minute)) {
		t.Fatalf("advance not applied: %v", f.Now())
	}
}

func TestStaticLocationsDefaultsToUTC(t *testing.T) {
	var s StaticLocations
	if s.Location("any") != time.UTC {
		t.Fatal("expected UTC fallback")
	}
}
