// Package sqlite implements store.Store on an embedded SQLite database.
//
// SQLite has a single writer. The database handle is capped at one connection and
// units of work begin IMMEDIATE, so a unit of work holds the write lock for its whole
// duration: concurrent registrations against any event queue behind it. Capacity and
// uniqueness hold as they do on PostgreSQL, but calls against different events do block
// each other here; the per-event independence of the PostgreSQL row lock is not
// provided. Use this store for embedded single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/store"
	"github.com/aura-events/backend/pkg/database"
)

const timestampLayout = "2006-01-02T15:04:05.000000000Z"

const eventColumns = `e.id, e.organizer_id, e.title, e.description, e.date, e.location, e.capacity,
	e.image_ref, e.state, e.moderation_note, e.created_at, e.updated_at`

// RETURNING clauses cannot use a table alias.
const returningColumns = `id, organizer_id, title, description, date, location, capacity,
	image_ref, state, moderation_note, created_at, updated_at`

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Store is a SQLite-backed store.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New wraps an open database. Callers are expected to have run database.MigrateSQLite.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Open opens the database at path and applies migrations.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	db, err := database.NewSQLite(ctx, path, logger)
	if err != nil {
		return nil, err
	}
	if err := database.MigrateSQLite(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return New(db), nil
}

// OpenMemory returns a migrated in-memory store.
func OpenMemory(ctx context.Context) (*Store, error) {
	return Open(ctx, ":memory:", nil)
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// WithinTx runs fn in one transaction. The transaction commits only if fn returns nil.
// fn must use the Tx it is given for all storage access.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&tx{q: sqlTx, now: s.now}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	return getEvent(ctx, s.db, `SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id)
}

// CountReservations returns the number of reservations held for an event.
func (s *Store) CountReservations(ctx context.Context, eventID int64) (int, error) {
	return countReservations(ctx, s.db, eventID)
}

// HasReservation reports whether the attendee holds a reservation for the event.
func (s *Store) HasReservation(ctx context.Context, eventID, attendeeID int64) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM reservations WHERE event_id = ? AND attendee_id = ?)`,
		eventID, attendeeID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("has reservation: %w", err)
	}
	return ok, nil
}

// ListEvents returns events matching the filter with their reservation counts.
func (s *Store) ListEvents(ctx context.Context, f store.EventFilter) ([]models.EventView, error) {
	var viewer int64
	if f.ViewerID != nil {
		viewer = *f.ViewerID
	}
	args := []any{viewer}
	var conds []string
	if len(f.States) > 0 {
		marks := make([]string, len(f.States))
		for i, st := range f.States {
			marks[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "e.state IN ("+strings.Join(marks, ", ")+")")
	}
	if f.OrganizerID != nil {
		conds = append(conds, "e.organizer_id = ?")
		args = append(args, *f.OrganizerID)
	}
	if f.From != nil {
		conds = append(conds, "e.date >= ?")
		args = append(args, f.From.Format(models.DateLayout))
	}

	q := `SELECT ` + eventColumns + `,
		(SELECT COUNT(*) FROM reservations r WHERE r.event_id = e.id),
		EXISTS(SELECT 1 FROM reservations r WHERE r.event_id = e.id AND r.attendee_id = ?)
		FROM events e`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += orderClause(f.Order)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var list []models.EventView
	for rows.Next() {
		var count int
		var registered bool
		e, err := scanEvent(rows, &count, &registered)
		if err != nil {
			return nil, err
		}
		v := models.NewEventView(*e, count)
		v.Registered = registered
		list = append(list, v)
	}
	return list, rows.Err()
}

func orderClause(o store.EventOrder) string {
	switch o {
	case store.OrderDate:
		return " ORDER BY e.date ASC, e.id ASC"
	case store.OrderStateThenDate:
		return ` ORDER BY CASE e.state WHEN 'pending' THEN 1 WHEN 'approved' THEN 2 ELSE 3 END, e.date ASC, e.id ASC`
	default:
		return " ORDER BY e.created_at DESC, e.id DESC"
	}
}

// Roster returns the attendees holding a reservation for an event, newest first.
func (s *Store) Roster(ctx context.Context, eventID int64) ([]models.RosterEntry, error) {
	const q = `SELECT u.id, u.name, u.email, r.created_at
		FROM reservations r
		JOIN users u ON u.id = r.attendee_id
		WHERE r.event_id = ?
		ORDER BY r.created_at DESC, u.id DESC`
	rows, err := s.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	defer rows.Close()
	var list []models.RosterEntry
	for rows.Next() {
		var entry models.RosterEntry
		var created string
		if err := rows.Scan(&entry.AttendeeID, &entry.Name, &entry.Email, &created); err != nil {
			return nil, err
		}
		if entry.CreatedAt, err = parseTimestamp(created); err != nil {
			return nil, err
		}
		list = append(list, entry)
	}
	return list, rows.Err()
}

// ReservationsByAttendee returns an attendee's reservations ordered by event date.
func (s *Store) ReservationsByAttendee(ctx context.Context, attendeeID int64) ([]models.AttendeeReservation, error) {
	q := `SELECT ` + eventColumns + `,
		(SELECT COUNT(*) FROM reservations c WHERE c.event_id = e.id),
		r.created_at
		FROM reservations r
		JOIN events e ON e.id = r.event_id
		WHERE r.attendee_id = ?
		ORDER BY e.date ASC, e.id ASC`
	rows, err := s.db.QueryContext(ctx, q, attendeeID)
	if err != nil {
		return nil, fmt.Errorf("reservations by attendee: %w", err)
	}
	defer rows.Close()
	var list []models.AttendeeReservation
	for rows.Next() {
		var count int
		var reserved string
		e, err := scanEvent(rows, &count, &reserved)
		if err != nil {
			return nil, err
		}
		at, err := parseTimestamp(reserved)
		if err != nil {
			return nil, err
		}
		v := models.NewEventView(*e, count)
		v.Registered = true
		list = append(list, models.AttendeeReservation{Event: v, ReservedAt: at})
	}
	return list, rows.Err()
}

// EventsByState returns the number of events in each moderation state.
func (s *Store) EventsByState(ctx context.Context) (map[models.ModerationState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM events GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("events by state: %w", err)
	}
	defer rows.Close()
	out := make(map[models.ModerationState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[models.ModerationState(state)] = n
	}
	return out, rows.Err()
}

// ReservationTotals returns the total reservation count and how many events hold at least one.
func (s *Store) ReservationTotals(ctx context.Context) (int, int, error) {
	var total, events int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT event_id) FROM reservations`).Scan(&total, &events)
	if err != nil {
		return 0, 0, fmt.Errorf("reservation totals: %w", err)
	}
	return total, events, nil
}

// PopularEvents returns approved events with the most reservations.
func (s *Store) PopularEvents(ctx context.Context, limit int) ([]models.EventView, error) {
	q := `SELECT ` + eventColumns + `, COUNT(r.attendee_id) AS n
		FROM events e
		LEFT JOIN reservations r ON r.event_id = e.id
		WHERE e.state = 'approved'
		GROUP BY e.id
		ORDER BY n DESC, e.date ASC, e.id ASC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("popular events: %w", err)
	}
	defer rows.Close()
	var list []models.EventView
	for rows.Next() {
		var count int
		e, err := scanEvent(rows, &count)
		if err != nil {
			return nil, err
		}
		list = append(list, models.NewEventView(*e, count))
	}
	return list, rows.Err()
}

// UsersByRole returns the number of users holding each role.
func (s *Store) UsersByRole(ctx context.Context) (map[models.Role]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("users by role: %w", err)
	}
	defer rows.Close()
	out := make(map[models.Role]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		out[models.Role(role)] = n
	}
	return out, rows.Err()
}

// ActiveOrganizers returns organizers ordered by the number of events they created.
func (s *Store) ActiveOrganizers(ctx context.Context, limit int) ([]models.OrganizerActivity, error) {
	const q = `SELECT u.id, u.name, u.email, COUNT(e.id) AS n
		FROM users u
		LEFT JOIN events e ON e.organizer_id = u.id
		WHERE u.role = 'organizer'
		GROUP BY u.id
		ORDER BY n DESC, u.id ASC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("active organizers: %w", err)
	}
	defer rows.Close()
	var list []models.OrganizerActivity
	for rows.Next() {
		var a models.OrganizerActivity
		if err := rows.Scan(&a.OrganizerID, &a.Name, &a.Email, &a.EventCount); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// TransitionState moves an event between moderation states in one conditional update.
func (s *Store) TransitionState(ctx context.Context, id int64, from, to models.ModerationState, note string) (*models.Event, error) {
	q := `UPDATE events SET state = ?, moderation_note = ?, updated_at = ?
		WHERE id = ? AND state = ?
		RETURNING ` + returningColumns
	e, err := getEvent(ctx, s.db, q, string(to), note, formatTimestamp(s.now()), id, string(from))
	if errors.Is(err, store.ErrNotFound) {
		if _, getErr := s.GetEvent(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, store.ErrStateMismatch
	}
	return e, err
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return getUser(ctx, s.db, `SELECT id, name, email, password_hash, role, created_at FROM users WHERE id = ?`, id)
}

// GetUserByEmail returns a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return getUser(ctx, s.db, `SELECT id, name, email, password_hash, role, created_at FROM users WHERE email = ?`, email)
}

// CreateUser inserts a new user. A taken email yields store.ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.CreatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.Name, u.Email, u.PasswordHash, string(u.Role), formatTimestamp(u.CreatedAt))
	if err != nil {
		if isConstraint(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

// ListUsers returns users newest first with their event and reservation counts.
func (s *Store) ListUsers(ctx context.Context, role *models.Role) ([]models.UserSummary, error) {
	q := `SELECT u.id, u.name, u.email, u.password_hash, u.role, u.created_at,
		(SELECT COUNT(*) FROM events e WHERE e.organizer_id = u.id),
		(SELECT COUNT(*) FROM reservations r WHERE r.attendee_id = u.id)
		FROM users u`
	var args []any
	if role != nil {
		q += " WHERE u.role = ?"
		args = append(args, string(*role))
	}
	q += " ORDER BY u.created_at DESC, u.id DESC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var list []models.UserSummary
	for rows.Next() {
		var us models.UserSummary
		var r, created string
		if err := rows.Scan(&us.ID, &us.Name, &us.Email, &us.PasswordHash, &r, &created,
			&us.EventCount, &us.ReservationCount); err != nil {
			return nil, err
		}
		us.Role = models.Role(r)
		if us.CreatedAt, err = parseTimestamp(created); err != nil {
			return nil, err
		}
		list = append(list, us)
	}
	return list, rows.Err()
}

// UpdateUserRole sets a user's role.
func (s *Store) UpdateUserRole(ctx context.Context, id int64, role models.Role) (*models.User, error) {
	return getUser(ctx, s.db,
		`UPDATE users SET role = ? WHERE id = ? RETURNING id, name, email, password_hash, role, created_at`,
		string(role), id)
}

type tx struct {
	q   querier
	now func() time.Time
}

// LockEvent reads the event. The IMMEDIATE transaction already holds the write lock.
func (t *tx) LockEvent(ctx context.Context, id int64) (*models.Event, error) {
	return getEvent(ctx, t.q, `SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id)
}

func (t *tx) LockOwnedEvent(ctx context.Context, id, organizerID int64) (*models.Event, error) {
	return getEvent(ctx, t.q, `SELECT `+eventColumns+` FROM events e WHERE e.id = ? AND e.organizer_id = ?`, id, organizerID)
}

func (t *tx) CountReservations(ctx context.Context, eventID int64) (int, error) {
	return countReservations(ctx, t.q, eventID)
}

func (t *tx) InsertEvent(ctx context.Context, e *models.Event) error {
	now := t.now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	const q = `INSERT INTO events (organizer_id, title, description, date, location, capacity, image_ref, state, moderation_note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.q.ExecContext(ctx, q, e.OrganizerID, e.Title, e.Description, e.DateString(), e.Location,
		e.Capacity, e.ImageRef, string(e.State), e.ModerationNote, formatTimestamp(now), formatTimestamp(now))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (t *tx) UpdateEvent(ctx context.Context, e *models.Event) error {
	e.UpdatedAt = t.now().UTC()
	const q = `UPDATE events SET title = ?, description = ?, date = ?, location = ?, capacity = ?,
		image_ref = ?, state = ?, moderation_note = ?, updated_at = ?
		WHERE id = ? AND organizer_id = ?`
	res, err := t.q.ExecContext(ctx, q, e.Title, e.Description, e.DateString(), e.Location, e.Capacity,
		e.ImageRef, string(e.State), e.ModerationNote, formatTimestamp(e.UpdatedAt), e.ID, e.OrganizerID)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) DeleteOwnedEvent(ctx context.Context, id, organizerID int64) (*models.Event, error) {
	q := `DELETE FROM events WHERE id = ? AND organizer_id = ? RETURNING ` + returningColumns
	return getEvent(ctx, t.q, q, id, organizerID)
}

func (t *tx) InsertReservation(ctx context.Context, r *models.Reservation) error {
	r.CreatedAt = t.now().UTC()
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO reservations (event_id, attendee_id, created_at) VALUES (?, ?, ?)`,
		r.EventID, r.AttendeeID, formatTimestamp(r.CreatedAt))
	if err != nil {
		if isConstraint(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (t *tx) DeleteReservation(ctx context.Context, eventID, attendeeID int64) (bool, error) {
	res, err := t.q.ExecContext(ctx, `DELETE FROM reservations WHERE event_id = ? AND attendee_id = ?`, eventID, attendeeID)
	if err != nil {
		return false, fmt.Errorf("delete reservation: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (t *tx) DeleteUser(ctx context.Context, id int64) ([]string, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT image_ref FROM events WHERE organizer_id = ? AND image_ref <> ''`, id)
	if err != nil {
		return nil, fmt.Errorf("user images: %w", err)
	}
	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			rows.Close()
			return nil, err
		}
		refs = append(refs, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res, err := t.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return refs, nil
}

func getEvent(ctx context.Context, q querier, query string, args ...any) (*models.Event, error) {
	e, err := scanEvent(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return e, err
}

func countReservations(ctx context.Context, q querier, eventID int64) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE event_id = ?`, eventID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reservations: %w", err)
	}
	return n, nil
}

// scanEvent scans the event columns followed by any extra destinations.
func scanEvent(row rowScanner, extra ...any) (*models.Event, error) {
	var e models.Event
	var date, state, created, updated string
	dest := []any{&e.ID, &e.OrganizerID, &e.Title, &e.Description, &date, &e.Location, &e.Capacity,
		&e.ImageRef, &state, &e.ModerationNote, &created, &updated}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	var err error
	if e.Date, err = models.ParseDate(date); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTimestamp(created); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return nil, err
	}
	e.State = models.ModerationState(state)
	return &e, nil
}

func getUser(ctx context.Context, q querier, query string, args ...any) (*models.User, error) {
	var u models.User
	var role, created string
	err := q.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = models.Role(role)
	if u.CreatedAt, err = parseTimestamp(created); err != nil {
		return nil, err
	}
	return &u, nil
}

func isConstraint(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
