// Package store defines the persistence contract of the registration core.
//
// Every multi-step mutation runs inside Store.WithinTx. The Tx handed to the callback
// holds exclusive access to any event row it locked until the unit of work ends; the
// callback returning an error (or panicking) rolls the whole unit back.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/aura-events/backend/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert hits the (event, attendee) uniqueness constraint.
	ErrDuplicate = errors.New("duplicate")
	// ErrStateMismatch is returned by TransitionState when the event is not in the expected state.
	ErrStateMismatch = errors.New("state mismatch")
)

// Tx is one unit of work.
type Tx interface {
	// LockEvent reads an event and takes an exclusive lock on its row.
	LockEvent(ctx context.Context, id int64) (*models.Event, error)
	// LockOwnedEvent is LockEvent restricted to events owned by organizerID.
	LockOwnedEvent(ctx context.Context, id, organizerID int64) (*models.Event, error)
	CountReservations(ctx context.Context, eventID int64) (int, error)
	InsertEvent(ctx context.Context, e *models.Event) error
	// UpdateEvent writes the mutable fields and state of an event owned by e.OrganizerID.
	UpdateEvent(ctx context.Context, e *models.Event) error
	// DeleteOwnedEvent removes the event and, by cascade, its reservations.
	DeleteOwnedEvent(ctx context.Context, id, organizerID int64) (*models.Event, error)
	InsertReservation(ctx context.Context, r *models.Reservation) error
	// DeleteReservation reports whether a row was removed.
	DeleteReservation(ctx context.Context, eventID, attendeeID int64) (bool, error)
	// DeleteUser removes a user and, by cascade, their events and every reservation held
	// by or for them. It returns the image references of the removed events.
	DeleteUser(ctx context.Context, id int64) (imageRefs []string, err error)
}

// EventFilter selects events for listings.
type EventFilter struct {
	States      []models.ModerationState
	OrganizerID *int64
	// From keeps events dated on or after this day.
	From *time.Time
	// ViewerID marks events the viewer holds a reservation for.
	ViewerID *int64
	Order    EventOrder
}

// EventOrder selects the listing order.
type EventOrder int

const (
	// OrderNewest orders by creation time, newest first.
	OrderNewest EventOrder = iota
	// OrderDate orders by event date, soonest first.
	OrderDate
	// OrderStateThenDate orders pending, approved, rejected, then by date.
	OrderStateThenDate
)

// Reader is the read-only query side used by views.
type Reader interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	CountReservations(ctx context.Context, eventID int64) (int, error)
	HasReservation(ctx context.Context, eventID, attendeeID int64) (bool, error)
	ListEvents(ctx context.Context, f EventFilter) ([]models.EventView, error)
	Roster(ctx context.Context, eventID int64) ([]models.RosterEntry, error)
	ReservationsByAttendee(ctx context.Context, attendeeID int64) ([]models.AttendeeReservation, error)
	EventsByState(ctx context.Context) (map[models.ModerationState]int, error)
	ReservationTotals(ctx context.Context) (total int, eventsWithReservations int, err error)
	PopularEvents(ctx context.Context, limit int) ([]models.EventView, error)
	UsersByRole(ctx context.Context) (map[models.Role]int, error)
	// ActiveOrganizers returns organizers ordered by the number of events they created.
	ActiveOrganizers(ctx context.Context, limit int) ([]models.OrganizerActivity, error)
}

// Users is the identity directory.
type Users interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	// ListUsers returns users newest first, restricted to one role when role is non-nil.
	ListUsers(ctx context.Context, role *models.Role) ([]models.UserSummary, error)
	UpdateUserRole(ctx context.Context, id int64, role models.Role) (*models.User, error)
}

// Store is the full persistence contract.
type Store interface {
	Reader
	Users
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	// TransitionState moves an event from one moderation state to another in a single
	// atomic row update. It returns ErrNotFound or ErrStateMismatch when nothing changed.
	TransitionState(ctx context.Context, id int64, from, to models.ModerationState, note string) (*models.Event, error)
	Close() error
}
