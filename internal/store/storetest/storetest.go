// Package storetest seeds an in-memory store for service tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/store"
	"github.com/aura-events/backend/internal/store/sqlite"
)

// New returns a migrated in-memory store closed at the end of the test.
func New(t testing.TB) *sqlite.Store {
	t.Helper()
	st, err := sqlite.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// User creates a user with the given email and role.
func User(t testing.TB, st store.Store, email string, role models.Role) models.Actor {
	t.Helper()
	u := &models.User{Name: email, Email: email, PasswordHash: "-", Role: role}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return models.Actor{ID: u.ID, Role: u.Role}
}

// Day returns the UTC day offset from today.
func Day(offset int) time.Time {
	return models.DateOf(time.Now()).AddDate(0, 0, offset)
}

// Event inserts an event directly, bypassing validation, in the given state.
func Event(t testing.TB, st store.Store, organizerID int64, date time.Time, capacity int, state models.ModerationState) *models.Event {
	t.Helper()
	e := &models.Event{
		OrganizerID: organizerID,
		Title:       "Event",
		Description: "Description",
		Date:        models.DateOf(date),
		Location:    "Main hall",
		Capacity:    capacity,
		State:       state,
	}
	err := st.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertEvent(context.Background(), e)
	})
	require.NoError(t, err)
	return e
}

// Reserve inserts a reservation directly, bypassing the registration checks.
func Reserve(t testing.TB, st store.Store, eventID, attendeeID int64) {
	t.Helper()
	err := st.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertReservation(context.Background(), &models.Reservation{EventID: eventID, AttendeeID: attendeeID})
	})
	require.NoError(t, err)
}

// Count returns the committed reservation count for an event.
func Count(t testing.TB, st store.Store, eventID int64) int {
	t.Helper()
	n, err := st.CountReservations(context.Background(), eventID)
	require.NoError(t, err)
	return n
}
