package ledger

import (
	"errors"
	"time"
)

// Direction marks a punch event as clocking in or out.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

func (d Direction) Valid() bool { return d == In || d == Out }

// Event is a single immutable punch record. Once appended it is never
// mutated or deleted; sequence order is the source of truth for
// reconstructing member state.
type Event struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	MemberID  string    `json:"member_id"`
	Direction Direction `json:"direction"`
	At        time.Time `json:"at"`
	Sequence  uint64    `json:"sequence"` // monotonic, assigned on append
}

var (
	ErrNoEvents     = errors.New("no events recorded")
	ErrOutOfOrder   = errors.New("event precedes last recorded event")
	ErrInvalidEvent = errors.New("invalid event")
)
