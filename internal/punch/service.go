package punch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"punchclock.org/internal/ledger"
	"punchclock.org/internal/policy"
)

var (
	ErrInvalidInput = errors.New("punch: invalid input")
	// ErrClockSkew means the toggle timestamp precedes the member's last
	// recorded event. Retryable from the caller's side with a corrected
	// clock; the ledger is never reordered.
	ErrClockSkew = errors.New("punch: timestamp precedes last recorded event")
)

// Service applies punch-in/punch-out transitions against the ledger.
// A member is CLOCKED_IN after an in event and CLOCKED_OUT otherwise;
// Toggle is the only mutating operation.
type Service struct {
	store  ledger.Store
	policy *policy.Service

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(store ledger.Store, pol *policy.Service) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if pol == nil {
		return nil, errors.New("policy service is required")
	}
	return &Service{store: store, policy: pol, locks: make(map[string]*sync.Mutex)}, nil
}

// Toggle records the actor's next punch event: in when clocked out (or never
// punched), out when clocked in. Execution is serialized per (group, member)
// so two near-simultaneous presses cannot both append an in event; toggles
// for different members proceed in parallel.
func (s *Service) Toggle(ctx context.Context, groupID string, actor policy.Actor, now time.Time) (ledger.Event, error) {
	if groupID == "" || actor.MemberID == "" {
		return ledger.Event{}, fmt.Errorf("%w: group and member are required", ErrInvalidInput)
	}
	if now.IsZero() {
		return ledger.Event{}, fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}

	allowed, err := s.policy.CanPunch(ctx, groupID, actor)
	if err != nil {
		return ledger.Event{}, err
	}
	if !allowed {
		return ledger.Event{}, fmt.Errorf("%w: member %s may not punch in group %s", policy.ErrDenied, actor.MemberID, groupID)
	}

	lock := s.memberLock(groupID, actor.MemberID)
	lock.Lock()
	defer lock.Unlock()

	dir := ledger.In
	latest, err := s.store.LatestEvent(ctx, groupID, actor.MemberID)
	switch {
	case errors.Is(err, ledger.ErrNoEvents):
		// first punch ever: clock in
	case err != nil:
		return ledger.Event{}, err
	default:
		if now.Before(latest.At) {
			return ledger.Event{}, fmt.Errorf("%w: now=%s latest=%s", ErrClockSkew, now.UTC().Format(time.RFC3339Nano), latest.At.Format(time.RFC3339Nano))
		}
		if latest.Direction == ledger.In {
			dir = ledger.Out
		}
	}

	return s.store.Append(ctx, groupID, actor.MemberID, dir, now)
}

// ClockedIn reports the member's current state from the latest ledger event.
func (s *Service) ClockedIn(ctx context.Context, groupID, memberID string) (bool, error) {
	latest, err := s.store.LatestEvent(ctx, groupID, memberID)
	if errors.Is(err, ledger.ErrNoEvents) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return latest.Direction == ledger.In, nil
}

func (s *Service) memberLock(groupID, memberID string) *sync.Mutex {
	key := groupID + "\x00" + memberID
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
