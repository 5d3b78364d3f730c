package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"punchclock.org/internal/ids"
	"punchclock.org/internal/ledger"
	"punchclock.org/internal/policy"
)

// Store persists punch events and role bindings in PostgreSQL.
type Store struct {
	db *sql.DB
}

var (
	_ ledger.Store = (*Store)(nil)
	_ policy.Store = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle; used by tests.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Append(ctx context.Context, groupID, memberID string, dir ledger.Direction, at time.Time) (ledger.Event, error) {
	if groupID == "" || memberID == "" {
		return ledger.Event{}, ledger.ErrInvalidEvent
	}
	if !dir.Valid() {
		return ledger.Event{}, ledger.ErrInvalidEvent
	}
	if at.IsZero() {
		return ledger.Event{}, ledger.ErrInvalidEvent
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Event{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Serialize appends per (group, member) for the duration of the
	// transaction so the monotonicity check and the insert are one unit.
	if _, err := tx.ExecContext(ctx,
		`select pg_advisory_xact_lock(hashtextextended($1, 0))`,
		groupID+"/"+memberID,
	); err != nil {
		return ledger.Event{}, err
	}

	var last time.Time
	err = tx.QueryRowContext(ctx, `
		select at from punch_events
		where group_id=$1 and member_id=$2
		order by sequence desc limit 1
	`, groupID, memberID).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return ledger.Event{}, err
	default:
		if at.Before(last) {
			return ledger.Event{}, ledger.ErrOutOfOrder
		}
	}

	ev := ledger.Event{
		ID:        ids.New(),
		GroupID:   groupID,
		MemberID:  memberID,
		Direction: dir,
		At:        at.UTC(),
	}
	if err := tx.QueryRowContext(ctx, `
		insert into punch_events(id, group_id, member_id, direction, at)
		values ($1,$2,$3,$4,$5) returning sequence
	`, ev.ID, ev.GroupID, ev.MemberID, string(ev.Direction), ev.At).Scan(&ev.Sequence); err != nil {
		return ledger.Event{}, err
	}

	if err := tx.Commit(); err != nil {
		return ledger.Event{}, err
	}
	return ev, nil
}

func (s *Store) ListEvents(ctx context.Context, groupID, memberID string, from, to time.Time) ([]ledger.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, group_id, member_id, direction, at, sequence
		from punch_events
		where group_id=$1 and member_id=$2 and at >= $3 and at <= $4
		order by sequence asc
	`, groupID, memberID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ledger.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (s *Store) EventBefore(ctx context.Context, groupID, memberID string, t time.Time) (ledger.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, group_id, member_id, direction, at, sequence
		from punch_events
		where group_id=$1 and member_id=$2 and at < $3
		order by sequence desc limit 1
	`, groupID, memberID, t)
	return scanEventRow(row)
}

func (s *Store) LatestEvent(ctx context.Context, groupID, memberID string) (ledger.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, group_id, member_id, direction, at, sequence
		from punch_events
		where group_id=$1 and member_id=$2
		order by sequence desc limit 1
	`, groupID, memberID)
	return scanEventRow(row)
}

func (s *Store) Members(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct member_id from punch_events
		where group_id=$1
		order by member_id asc
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(sc scanner) (ledger.Event, error) {
	var (
		ev  ledger.Event
		dir string
	)
	if err := sc.Scan(&ev.ID, &ev.GroupID, &ev.MemberID, &dir, &ev.At, &ev.Sequence); err != nil {
		return ledger.Event{}, err
	}
	ev.Direction = ledger.Direction(dir)
	return ev, nil
}

func scanEventRow(row *sql.Row) (ledger.Event, error) {
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Event{}, ledger.ErrNoEvents
	}
	if err != nil {
		return ledger.Event{}, err
	}
	return ev, nil
}
