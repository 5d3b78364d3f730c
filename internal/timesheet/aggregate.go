package timesheet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"punchclock.org/internal/clock"
	"punchclock.org/internal/ledger"
)

const (
	MinDays     = 1
	MaxDays     = 31
	DefaultDays = 7
)

var (
	// ErrInvalidDayCount rejects day windows outside [1, 31] before any
	// ledger access.
	ErrInvalidDayCount = errors.New("timesheet: day count must be between 1 and 31")
	ErrInvalidInput    = errors.New("timesheet: invalid input")
)

// DayTotal is one calendar-day bucket in the group's timezone.
type DayTotal struct {
	Date   string // 2006-01-02
	Worked time.Duration
	Open   bool // an interval was still open in this bucket at asOf
}

// Anomaly flags ledger data the aggregator could not pair, such as an out
// event with no preceding in. Anomalies are reported, never silently
// dropped.
type Anomaly struct {
	At     time.Time
	Reason string
}

// Sheet is a member's aggregated time over a bounded day window. It is
// always derived from the event ledger on demand and never persisted.
type Sheet struct {
	GroupID   string
	MemberID  string
	From      time.Time // start of the first bucket day
	To        time.Time // asOf
	Days      []DayTotal
	Total     time.Duration
	Open      bool
	Anomalies []Anomaly
}

// MemberTotal is one row of the all-members view.
type MemberTotal struct {
	MemberID  string
	Total     time.Duration
	ClockedIn bool
}

// Aggregator reconstructs intervals from the ledger and buckets them per
// calendar day. Durations keep full sub-second precision; rounding is the
// presenter's business.
type Aggregator struct {
	store ledger.Store
	locs  clock.Locations
}

func NewAggregator(store ledger.Store, locs clock.Locations) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if locs == nil {
		locs = clock.StaticLocations{}
	}
	return &Aggregator{store: store, locs: locs}, nil
}

// Summarize builds the member's sheet for exactly days consecutive calendar
// days ending at asOf's day, zero-filling days without events. An interval
// still open at asOf is counted up to asOf and flagged open.
func (a *Aggregator) Summarize(ctx context.Context, groupID, memberID string, days int, asOf time.Time) (Sheet, error) {
	if days < MinDays || days > MaxDays {
		return Sheet{}, fmt.Errorf("%w: got %d", ErrInvalidDayCount, days)
	}
	if groupID == "" || memberID == "" {
		return Sheet{}, fmt.Errorf("%w: group and member are required", ErrInvalidInput)
	}

	loc := a.locs.Location(groupID)
	asOf = asOf.In(loc)
	windowStart := clock.DayStart(asOf, loc).AddDate(0, 0, -(days - 1))

	events, err := a.store.ListEvents(ctx, groupID, memberID, windowStart, asOf)
	if err != nil {
		return Sheet{}, err
	}

	// A member clocked in before the window carries the open interval in.
	var openStart time.Time
	open := false
	prev, err := a.store.EventBefore(ctx, groupID, memberID, windowStart)
	switch {
	case errors.Is(err, ledger.ErrNoEvents):
	case err != nil:
		return Sheet{}, err
	default:
		if prev.Direction == ledger.In {
			openStart = prev.At
			open = true
		}
	}

	buckets := make(map[string]time.Duration)
	var anomalies []Anomaly
	for _, ev := range events {
		switch ev.Direction {
		case ledger.In:
			if open {
				// Should not happen with the state machine in front;
				// close the dangling interval at the new in so no
				// recorded time vanishes.
				anomalies = append(anomalies, Anomaly{At: ev.At, Reason: "punch in while already clocked in"})
				bucketInterval(buckets, openStart, ev.At, loc)
			}
			openStart = ev.At
			open = true
		case ledger.Out:
			if !open {
				anomalies = append(anomalies, Anomaly{At: ev.At, Reason: "punch out without matching punch in"})
				continue
			}
			bucketInterval(buckets, openStart, ev.At, loc)
			open = false
		}
	}
	if open {
		bucketInterval(buckets, openStart, asOf, loc)
	}

	sheet := Sheet{
		GroupID:   groupID,
		MemberID:  memberID,
		From:      windowStart,
		To:        asOf,
		Anomalies: anomalies,
		Open:      open,
	}
	asOfKey := clock.DayKey(asOf)
	day := windowStart
	for i := 0; i < days; i++ {
		key := clock.DayKey(day)
		dt := DayTotal{Date: key, Worked: buckets[key]}
		if open && key == asOfKey {
			dt.Open = true
		}
		sheet.Days = append(sheet.Days, dt)
		sheet.Total += dt.Worked
		day = day.AddDate(0, 0, 1)
	}
	return sheet, nil
}

// SummarizeGroup builds range totals for every member of the group, ordered
// by member id. ClockedIn reflects the latest ledger event regardless of the
// day window.
func (a *Aggregator) SummarizeGroup(ctx context.Context, groupID string, days int, asOf time.Time) ([]MemberTotal, error) {
	if days < MinDays || days > MaxDays {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDayCount, days)
	}
	members, err := a.store.Members(ctx, groupID)
	if err != nil {
		return nil, err
	}

	res := make([]MemberTotal, 0, len(members))
	for _, memberID := range members {
		sheet, err := a.Summarize(ctx, groupID, memberID, days, asOf)
		if err != nil {
			return nil, err
		}
		clockedIn := false
		latest, err := a.store.LatestEvent(ctx, groupID, memberID)
		switch {
		case errors.Is(err, ledger.ErrNoEvents):
		case err != nil:
			return nil, err
		default:
			clockedIn = latest.Direction == ledger.In
		}
		res = append(res, MemberTotal{MemberID: memberID, Total: sheet.Total, ClockedIn: clockedIn})
	}
	return res, nil
}

// bucketInterval splits [start, end) across day boundaries in loc and adds
// each slice to its bucket. Contributions outside the reported window fall
// into keys the sheet never reads.
func bucketInterval(buckets map[string]time.Duration, start, end time.Time, loc *time.Location) {
	start = start.In(loc)
	end = end.In(loc)
	for start.Before(end) {
		boundary := clock.NextDayStart(start, loc)
		if boundary.After(end) {
			boundary = end
		}
		buckets[clock.DayKey(start)] += boundary.Sub(start)
		start = boundary
	}
}
