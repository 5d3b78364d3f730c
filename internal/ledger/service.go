package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"punchclock.org/internal/ids"
)

// Store defines punch event persistence. A store orders events and keeps
// them durable; it never interprets business meaning beyond ordering.
type Store interface {
	// Append records a new event, assigning its id and sequence number.
	// Appends older than the member's latest recorded event fail with
	// ErrOutOfOrder.
	Append(ctx context.Context, groupID, memberID string, dir Direction, at time.Time) (Event, error)
	// ListEvents returns the member's events with at in [from, to],
	// ascending by sequence.
	ListEvents(ctx context.Context, groupID, memberID string, from, to time.Time) ([]Event, error)
	// EventBefore returns the most recent event strictly before t,
	// or ErrNoEvents.
	EventBefore(ctx context.Context, groupID, memberID string, t time.Time) (Event, error)
	// LatestEvent returns the member's most recent event, or ErrNoEvents.
	LatestEvent(ctx context.Context, groupID, memberID string) (Event, error)
	// Members lists all members of the group with recorded events,
	// ordered by member id.
	Members(ctx context.Context, groupID string) ([]string, error)
}

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu     sync.RWMutex
	seq    uint64
	events map[string][]Event // (group, member) -> events ascending by sequence
	roster map[string]map[string]struct{}
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		events: make(map[string][]Event),
		roster: make(map[string]map[string]struct{}),
	}
}

func (s *InMemory) Append(ctx context.Context, groupID, memberID string, dir Direction, at time.Time) (Event, error) {
	if groupID == "" || memberID == "" {
		return Event{}, fmt.Errorf("%w: group and member are required", ErrInvalidEvent)
	}
	if !dir.Valid() {
		return Event{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidEvent, dir)
	}
	if at.IsZero() {
		return Event{}, fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey(groupID, memberID)
	if evs := s.events[key]; len(evs) > 0 && at.Before(evs[len(evs)-1].At) {
		return Event{}, ErrOutOfOrder
	}

	s.seq++
	ev := Event{
		ID:        ids.New(),
		GroupID:   groupID,
		MemberID:  memberID,
		Direction: dir,
		At:        at.UTC(),
		Sequence:  s.seq,
	}
	s.events[key] = append(s.events[key], ev)

	members, ok := s.roster[groupID]
	if !ok {
		members = make(map[string]struct{})
		s.roster[groupID] = members
	}
	members[memberID] = struct{}{}

	return ev, nil
}

func (s *InMemory) ListEvents(ctx context.Context, groupID, memberID string, from, to time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []Event
	for _, ev := range s.events[streamKey(groupID, memberID)] {
		if ev.At.Before(from) || ev.At.After(to) {
			continue
		}
		res = append(res, ev)
	}
	return res, nil
}

func (s *InMemory) EventBefore(ctx context.Context, groupID, memberID string, t time.Time) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.events[streamKey(groupID, memberID)]
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].At.Before(t) {
			return evs[i], nil
		}
	}
	return Event{}, ErrNoEvents
}

func (s *InMemory) LatestEvent(ctx context.Context, groupID, memberID string) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.events[streamKey(groupID, memberID)]
	if len(evs) == 0 {
		return Event{}, ErrNoEvents
	}
	return evs[len(evs)-1], nil
}

func (s *InMemory) Members(ctx context.Context, groupID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]string, 0, len(s.roster[groupID]))
	for id := range s.roster[groupID] {
		members = append(members, id)
	}
	sort.Strings(members)
	return members, nil
}

func streamKey(groupID, memberID string) string {
	return groupID + "\x00" + memberID
}
