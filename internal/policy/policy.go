package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrInvalidInput = errors.New("policy: invalid input")
	ErrNotFound     = errors.New("policy: binding not found")
	ErrDenied       = errors.New("policy: permission denied")
)

// Binding maps a platform role to its timeclock permissions within a group.
// At most one binding exists per (group, role).
type Binding struct {
	GroupID   string    `json:"group_id"`
	RoleID    string    `json:"role_id"`
	IsMod     bool      `json:"is_mod"`
	CanPunch  bool      `json:"can_punch"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Actor is a caller as resolved by the platform layer: the member id, the
// platform role ids it holds, and whether it administers the group. The core
// never stores actors.
type Actor struct {
	MemberID string
	Roles    []string
	Admin    bool
}

func (a Actor) holds(roleID string) bool {
	for _, r := range a.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// Store persists role bindings keyed by group.
type Store interface {
	// Upsert inserts the binding or replaces the flags of an existing one.
	Upsert(ctx context.Context, b Binding) (Binding, error)
	// Remove deletes a binding, returning ErrNotFound when absent.
	Remove(ctx context.Context, groupID, roleID string) error
	// List returns the group's bindings ordered by role id.
	List(ctx context.Context, groupID string) ([]Binding, error)
}

// Service answers permission questions from role configuration. Reads go
// through a per-group cache invalidated on every binding write, so policy
// is loaded per request rather than held as shared mutable state.
type Service struct {
	store Store

	mu    sync.RWMutex
	cache map[string][]Binding
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("policy store is required")
	}
	return &Service{store: store, cache: make(map[string][]Binding)}, nil
}

// AddBinding creates or updates the (group, role) binding.
func (s *Service) AddBinding(ctx context.Context, groupID, roleID string, isMod, canPunch bool) (Binding, error) {
	groupID = strings.TrimSpace(groupID)
	roleID = strings.TrimSpace(roleID)
	if groupID == "" || roleID == "" {
		return Binding{}, fmt.Errorf("%w: group_id and role_id are required", ErrInvalidInput)
	}
	b, err := s.store.Upsert(ctx, Binding{GroupID: groupID, RoleID: roleID, IsMod: isMod, CanPunch: canPunch})
	if err != nil {
		return Binding{}, err
	}
	s.invalidate(groupID)
	return b, nil
}

// RemoveBinding deletes the (group, role) binding and every permission it
// granted.
func (s *Service) RemoveBinding(ctx context.Context, groupID, roleID string) error {
	groupID = strings.TrimSpace(groupID)
	roleID = strings.TrimSpace(roleID)
	if groupID == "" || roleID == "" {
		return fmt.Errorf("%w: group_id and role_id are required", ErrInvalidInput)
	}
	if err := s.store.Remove(ctx, groupID, roleID); err != nil {
		return err
	}
	s.invalidate(groupID)
	return nil
}

// Bindings returns the group's current role configuration.
func (s *Service) Bindings(ctx context.Context, groupID string) ([]Binding, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, fmt.Errorf("%w: group_id is required", ErrInvalidInput)
	}
	return s.load(ctx, groupID)
}

// CanPunch reports whether the actor may record punch events. A group with
// zero can_punch bindings is open to every member.
func (s *Service) CanPunch(ctx context.Context, groupID string, actor Actor) (bool, error) {
	if actor.Admin {
		return true, nil
	}
	bindings, err := s.load(ctx, groupID)
	if err != nil {
		return false, err
	}
	configured := false
	for _, b := range bindings {
		if !b.CanPunch {
			continue
		}
		configured = true
		if actor.holds(b.RoleID) {
			return true, nil
		}
	}
	return !configured, nil
}

// CanModerate reports whether the actor may view other members' data and
// manage role bindings.
func (s *Service) CanModerate(ctx context.Context, groupID string, actor Actor) (bool, error) {
	if actor.Admin {
		return true, nil
	}
	bindings, err := s.load(ctx, groupID)
	if err != nil {
		return false, err
	}
	for _, b := range bindings {
		if b.IsMod && actor.holds(b.RoleID) {
			return true, nil
		}
	}
	return false, nil
}

// CanViewMember reports whether viewer may read memberID's timesheet:
// members always see themselves, moderators see everyone.
func (s *Service) CanViewMember(ctx context.Context, groupID string, viewer Actor, memberID string) (bool, error) {
	if viewer.MemberID != "" && viewer.MemberID == memberID {
		return true, nil
	}
	return s.CanModerate(ctx, groupID, viewer)
}

func (s *Service) load(ctx context.Context, groupID string) ([]Binding, error) {
	s.mu.RLock()
	cached, ok := s.cache[groupID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	bindings, err := s.store.List(ctx, groupID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[groupID] = bindings
	s.mu.Unlock()
	return bindings, nil
}

func (s *Service) invalidate(groupID string) {
	s.mu.Lock()
	delete(s.cache, groupID)
	s.mu.Unlock()
}
