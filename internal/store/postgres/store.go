// Package postgres implements store.Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/store"
)

const uniqueViolation = "23505"

const eventColumns = `e.id, e.organizer_id, e.title, e.description, e.date, e.location, e.capacity,
	e.image_ref, e.state, e.moderation_note, e.created_at, e.updated_at`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New creates a store over an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks taken by the Tx are held
// until commit or rollback.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = pgTx.Rollback(context.Background())
			panic(p)
		}
	}()

	if err := fn(&tx{q: pgTx}); err != nil {
		_ = pgTx.Rollback(ctx)
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	return getEvent(ctx, s.pool, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id)
}

// CountReservations returns the number of reservations held for an event.
func (s *Store) CountReservations(ctx context.Context, eventID int64) (int, error) {
	return countReservations(ctx, s.pool, eventID)
}

// HasReservation reports whether the attendee holds a reservation for the event.
func (s *Store) HasReservation(ctx context.Context, eventID, attendeeID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM reservations WHERE event_id = $1 AND attendee_id = $2)`,
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
		states := make([]string, len(f.States))
		for i, st := range f.States {
			states[i] = string(st)
		}
		args = append(args, states)
		conds = append(conds, fmt.Sprintf("e.state = ANY($%d)", len(args)))
	}
	if f.OrganizerID != nil {
		args = append(args, *f.OrganizerID)
		conds = append(conds, fmt.Sprintf("e.organizer_id = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		conds = append(conds, fmt.Sprintf("e.date >= $%d", len(args)))
	}

	q := `SELECT ` + eventColumns + `,
		(SELECT COUNT(*) FROM reservations r WHERE r.event_id = e.id),
		EXISTS(SELECT 1 FROM reservations r WHERE r.event_id = e.id AND r.attendee_id = $1)
		FROM events e`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += orderClause(f.Order)

	rows, err := s.pool.Query(ctx, q, args...)
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
		WHERE r.event_id = $1
		ORDER BY r.created_at DESC, u.id DESC`
	rows, err := s.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	defer rows.Close()
	var list []models.RosterEntry
	for rows.Next() {
		var entry models.RosterEntry
		if err := rows.Scan(&entry.AttendeeID, &entry.Name, &entry.Email, &entry.CreatedAt); err != nil {
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
		WHERE r.attendee_id = $1
		ORDER BY e.date ASC, e.id ASC`
	rows, err := s.pool.Query(ctx, q, attendeeID)
	if err != nil {
		return nil, fmt.Errorf("reservations by attendee: %w", err)
	}
	defer rows.Close()
	var list []models.AttendeeReservation
	for rows.Next() {
		var count int
		var ar models.AttendeeReservation
		e, err := scanEvent(rows, &count, &ar.ReservedAt)
		if err != nil {
			return nil, err
		}
		ar.Event = models.NewEventView(*e, count)
		ar.Event.Registered = true
		list = append(list, ar)
	}
	return list, rows.Err()
}

// EventsByState returns the number of events in each moderation state.
func (s *Store) EventsByState(ctx context.Context) (map[models.ModerationState]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, COUNT(*) FROM events GROUP BY state`)
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
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(DISTINCT event_id) FROM reservations`).Scan(&total, &events)
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
		LIMIT $1`
	rows, err := s.pool.Query(ctx, q, limit)
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
	rows, err := s.pool.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
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
		LIMIT $1`
	rows, err := s.pool.Query(ctx, q, limit)
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
	q := `UPDATE events e SET state = $1, moderation_note = $2, updated_at = NOW()
		WHERE e.id = $3 AND e.state = $4
		RETURNING ` + eventColumns
	e, err := getEvent(ctx, s.pool, q, string(to), note, id, string(from))
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
	return getUser(ctx, s.pool, `SELECT id, name, email, password_hash, role, created_at FROM users WHERE id = $1`, id)
}

// GetUserByEmail returns a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return getUser(ctx, s.pool, `SELECT id, name, email, password_hash, role, created_at FROM users WHERE email = $1`, email)
}

// CreateUser inserts a new user. A taken email yields store.ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users (name, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := s.pool.QueryRow(ctx, q, u.Name, u.Email, u.PasswordHash, string(u.Role)).Scan(&u.ID, &u.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// ListUsers returns users newest first with their event and reservation counts.
func (s *Store) ListUsers(ctx context.Context, role *models.Role) ([]models.UserSummary, error) {
	q := `SELECT u.id, u.name, u.email, u.password_hash, u.role, u.created_at,
		(SELECT COUNT(*) FROM events e WHERE e.organizer_id = u.id),
		(SELECT COUNT(*) FROM reservations r WHERE r.attendee_id = u.id)
		FROM users u`
	var args []any
	if role != nil {
		q += " WHERE u.role = $1"
		args = append(args, string(*role))
	}
	q += " ORDER BY u.created_at DESC, u.id DESC"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var list []models.UserSummary
	for rows.Next() {
		var us models.UserSummary
		var r string
		if err := rows.Scan(&us.ID, &us.Name, &us.Email, &us.PasswordHash, &r, &us.CreatedAt,
			&us.EventCount, &us.ReservationCount); err != nil {
			return nil, err
		}
		us.Role = models.Role(r)
		list = append(list, us)
	}
	return list, rows.Err()
}

// UpdateUserRole sets a user's role.
func (s *Store) UpdateUserRole(ctx context.Context, id int64, role models.Role) (*models.User, error) {
	return getUser(ctx, s.pool,
		`UPDATE users SET role = $1 WHERE id = $2 RETURNING id, name, email, password_hash, role, created_at`,
		string(role), id)
}

type tx struct {
	q querier
}

// LockEvent reads the event with SELECT ... FOR UPDATE.
func (t *tx) LockEvent(ctx context.Context, id int64) (*models.Event, error) {
	return getEvent(ctx, t.q, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1 FOR UPDATE`, id)
}

func (t *tx) LockOwnedEvent(ctx context.Context, id, organizerID int64) (*models.Event, error) {
	return getEvent(ctx, t.q, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1 AND e.organizer_id = $2 FOR UPDATE`, id, organizerID)
}

func (t *tx) CountReservations(ctx context.Context, eventID int64) (int, error) {
	return countReservations(ctx, t.q, eventID)
}

func (t *tx) InsertEvent(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (organizer_id, title, description, date, location, capacity, image_ref, state, moderation_note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`
	err := t.q.QueryRow(ctx, q, e.OrganizerID, e.Title, e.Description, e.Date, e.Location, e.Capacity,
		e.ImageRef, string(e.State), e.ModerationNote).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (t *tx) UpdateEvent(ctx context.Context, e *models.Event) error {
	const q = `UPDATE events SET title = $1, description = $2, date = $3, location = $4, capacity = $5,
		image_ref = $6, state = $7, moderation_note = $8, updated_at = NOW()
		WHERE id = $9 AND organizer_id = $10
		RETURNING updated_at`
	err := t.q.QueryRow(ctx, q, e.Title, e.Description, e.Date, e.Location, e.Capacity,
		e.ImageRef, string(e.State), e.ModerationNote, e.ID, e.OrganizerID).Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

func (t *tx) DeleteOwnedEvent(ctx context.Context, id, organizerID int64) (*models.Event, error) {
	q := `DELETE FROM events e WHERE e.id = $1 AND e.organizer_id = $2 RETURNING ` + eventColumns
	return getEvent(ctx, t.q, q, id, organizerID)
}

func (t *tx) InsertReservation(ctx context.Context, r *models.Reservation) error {
	const q = `INSERT INTO reservations (event_id, attendee_id) VALUES ($1, $2) RETURNING created_at`
	err := t.q.QueryRow(ctx, q, r.EventID, r.AttendeeID).Scan(&r.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (t *tx) DeleteReservation(ctx context.Context, eventID, attendeeID int64) (bool, error) {
	tag, err := t.q.Exec(ctx, `DELETE FROM reservations WHERE event_id = $1 AND attendee_id = $2`, eventID, attendeeID)
	if err != nil {
		return false, fmt.Errorf("delete reservation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteUser collects the image references of the user's events and deletes the user in
// one statement; the events and reservations go by cascade.
func (t *tx) DeleteUser(ctx context.Context, id int64) ([]string, error) {
	const q = `WITH refs AS (
			SELECT image_ref FROM events WHERE organizer_id = $1 AND image_ref <> ''
		), gone AS (
			DELETE FROM users WHERE id = $1 RETURNING id
		)
		SELECT (SELECT COUNT(*) FROM gone), COALESCE((SELECT array_agg(image_ref) FROM refs), '{}')`
	var deleted int
	var refs []string
	if err := t.q.QueryRow(ctx, q, id).Scan(&deleted, &refs); err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	if deleted == 0 {
		return nil, store.ErrNotFound
	}
	return refs, nil
}

func getEvent(ctx context.Context, q querier, sql string, args ...any) (*models.Event, error) {
	e, err := scanEvent(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return e, err
}

func countReservations(ctx context.Context, q querier, eventID int64) (int, error) {
	var n int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM reservations WHERE event_id = $1`, eventID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reservations: %w", err)
	}
	return n, nil
}

// scanEvent scans the event columns followed by any extra destinations.
func scanEvent(row pgx.Row, extra ...any) (*models.Event, error) {
	var e models.Event
	var state string
	dest := []any{&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.Date, &e.Location, &e.Capacity,
		&e.ImageRef, &state, &e.ModerationNote, &e.CreatedAt, &e.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	e.Date = models.DateOf(e.Date)
	e.State = models.ModerationState(state)
	return &e, nil
}

func getUser(ctx context.Context, q querier, sql string, args ...any) (*models.User, error) {
	var u models.User
	var role string
	err := q.QueryRow(ctx, sql, args...).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
