package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *Store, email string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Name: email, Email: email, PasswordHash: "x", Role: role}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func createEvent(t *testing.T, s *Store, organizerID int64, date string, capacity int, state models.ModerationState) *models.Event {
	t.Helper()
	d, err := models.ParseDate(date)
	require.NoError(t, err)
	e := &models.Event{
		OrganizerID: organizerID,
		Title:       "Event " + date,
		Description: "desc",
		Date:        d,
		Location:    "Hall",
		Capacity:    capacity,
		State:       state,
	}
	err = s.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertEvent(context.Background(), e)
	})
	require.NoError(t, err)
	return e
}

func reserve(t *testing.T, s *Store, eventID, attendeeID int64) error {
	t.Helper()
	return s.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertReservation(context.Background(), &models.Reservation{EventID: eventID, AttendeeID: attendeeID})
	})
}

func TestEventRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := createUser(t, s, "org@example.com", models.RoleOrganizer)
	e := createEvent(t, s, org.ID, "2030-05-01", 10, models.StatePending)

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "2030-05-01", got.DateString())
	assert.Equal(t, models.StatePending, got.State)
	assert.Equal(t, 10, got.Capacity)
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)

	_, err = s.GetEvent(ctx, e.ID+100)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	createUser(t, s, "a@example.com", models.RoleAttendee)

	err := s.CreateUser(context.Background(), &models.User{Name: "b", Email: "a@example.com", PasswordHash: "x", Role: models.RoleAttendee})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	u, err := s.GetUserByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAttendee, u.Role)
}

func TestInsertReservationDuplicate(t *testing.T) {
	s := newTestStore(t)
	org := createUser(t, s, "org@example.com", models.RoleOrganizer)
	att := createUser(t, s, "att@example.com", models.RoleAttendee)
	e := createEvent(t, s, org.ID, "2030-05-01", 10, models.StateApproved)

	require.NoError(t, reserve(t, s, e.ID, att.ID))
	assert.ErrorIs(t, reserve(t, s, e.ID, att.ID), store.ErrDuplicate)

	n, err := s.CountReservations(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	org := createUser(t, s, "org@example.com", models.RoleOrganizer)
	att := createUser(t, s, "att@example.com", models.RoleAttendee)
	e := createEvent(t, s, org.ID, "2030-05-01", 10, models.StateApproved)

	boom := errors.New("boom")
	err := s.WithinTx(context.Background(), func(tx store.Tx) error {
		if err := tx.InsertReservation(context.Background(), &models.Reservation{EventID: e.ID, AttendeeID: att.ID}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := s.CountReservations(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteOwnedEventCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := createUser(t, s, "org@example.com", models.RoleOrganizer)
	other := createUser(t, s, "other@example.com", models.RoleOrganizer)
	att := createUser(t, s, "att@example.com", models.RoleAttendee)
	e := createEvent(t, s, org.ID, "2030-05-01", 10, models.StateApproved)
	require.NoError(t, reserve(t, s, e.ID, att.ID))

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.DeleteOwnedEvent(ctx, e.ID, other.ID)
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	var deleted *models.Event
	err = s.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		deleted, err = tx.DeleteOwnedEvent(ctx, e.ID, org.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, e.Title, deleted.Title)

	res, err := s.ReservationsByAttendee(ctx, att.ID)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestTransitionState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := createUser(t, s, "org@example.com", models.RoleOrganizer)
	e := createEvent(t, s, org.ID, "2030-05-01", 10, models.StatePending)

	got, err := s.TransitionState(ctx, e.ID, models.StatePending, models.StateRejected, "too vague")
	require.NoError(t, err)
	assert.Equal(t, models.StateRejected, got.State)
	assert.Equal(t, "too vague", got.ModerationNote)

	_, err = s.TransitionState(ctx, e.ID, models.StatePending, models.StateApproved, "")
	assert.ErrorIs(t, err, store.ErrStateMismatch)

	_, err = s.TransitionState(ctx, e.ID+1, models.StatePending, models.StateApproved, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListEventsFilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := createUser(t, s, "org@example.com", models.RoleOrganizer)
	att := createUser(t, s, "att@example.com", models.RoleAttendee)
	late := createEvent(t, s, org.ID, "2030-07-01", 5, models.StateApproved)
	early := createEvent(t, s, org.ID, "2030-06-01", 1, models.StateApproved)
	createEvent(t, s, org.ID, "2030-05-01", 5, models.StatePending)
	createEvent(t, s, org.ID, "2020-01-01", 5, models.StateApproved)
	require.NoError(t, reserve(t, s, early.ID, att.ID))

	from, _ := models.ParseDate("2026-01-01")
	list, err := s.ListEvents(ctx, store.EventFilter{
		States:   []models.ModerationState{models.StateApproved},
		From:     &from,
		ViewerID: &att.ID,
		Order:    store.OrderDate,
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, early.ID, list[0].ID)
	assert.Equal(t, 0, list[0].SeatsLeft)
	assert.True(t, list[0].Registered)
	assert.Equal(t, late.ID, list[1].ID)
	assert.Equal(t, 5, list[1].SeatsLeft)
	assert.False(t, list[1].Registered)

	mine, err := s.ListEvents(ctx, store.EventFilter{OrganizerID: &org.ID, Order: store.OrderStateThenDate})
	require.NoError(t, err)
	require.Len(t, mine, 4)
	assert.Equal(t, models.StatePending, mine[0].State)
	assert.Equal(t, "2020-01-01", mine[1].DateOnly)
}

func TestRosterAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := createUser(t, s, "org@example.com", models.RoleOrganizer)
	a := createUser(t, s, "a@example.com", models.RoleAttendee)
	b := createUser(t, s, "b@example.com", models.RoleAttendee)
	e1 := createEvent(t, s, org.ID, "2030-05-01", 10, models.StateApproved)
	e2 := createEvent(t, s, org.ID, "2030-06-01", 10, models.StateApproved)
	createEvent(t, s, org.ID, "2030-07-01", 10, models.StatePending)
	require.NoError(t, reserve(t, s, e1.ID, a.ID))
	require.NoError(t, reserve(t, s, e1.ID, b.ID))
	require.NoError(t, reserve(t, s, e2.ID, a.ID))

	roster, err := s.Roster(ctx, e1.ID)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, []string{roster[0].Email, roster[1].Email})

	byState, err := s.EventsByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, byState[models.StateApproved])
	assert.Equal(t, 1, byState[models.StatePending])

	total, withRes, err := s.ReservationTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, withRes)

	popular, err := s.PopularEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, popular, 1)
	assert.Equal(t, e1.ID, popular[0].ID)
	assert.Equal(t, 2, popular[0].ReservationCount)
}

func TestUserDirectory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createUser(t, s, "admin@example.com", models.RoleAdmin)
	busy := createUser(t, s, "busy@example.com", models.RoleOrganizer)
	idle := createUser(t, s, "idle@example.com", models.RoleOrganizer)
	att := createUser(t, s, "att@example.com", models.RoleAttendee)
	e := createEvent(t, s, busy.ID, "2030-05-01", 10, models.StateApproved)
	createEvent(t, s, busy.ID, "2030-06-01", 10, models.StatePending)
	require.NoError(t, reserve(t, s, e.ID, att.ID))

	byRole, err := s.UsersByRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.Role]int{models.RoleAdmin: 1, models.RoleOrganizer: 2, models.RoleAttendee: 1}, byRole)

	active, err := s.ActiveOrganizers(ctx, 5)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, busy.ID, active[0].OrganizerID)
	assert.Equal(t, 2, active[0].EventCount)
	assert.Equal(t, idle.ID, active[1].OrganizerID)
	assert.Zero(t, active[1].EventCount)

	role := models.RoleOrganizer
	orgs, err := s.ListUsers(ctx, &role)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, idle.ID, orgs[0].ID)
	assert.Equal(t, 2, orgs[1].EventCount)

	all, err := s.ListUsers(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, att.ID, all[0].ID)
	assert.Equal(t, 1, all[0].ReservationCount)

	u, err := s.UpdateUserRole(ctx, att.ID, models.RoleOrganizer)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOrganizer, u.Role)
	assert.Equal(t, "att@example.com", u.Email)

	_, err = s.UpdateUserRole(ctx, att.ID+100, models.RoleOrganizer)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteUserCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := createUser(t, s, "org@example.com", models.RoleOrganizer)
	att := createUser(t, s, "att@example.com", models.RoleAttendee)
	e := createEvent(t, s, org.ID, "2030-05-01", 10, models.StateApproved)
	e.ImageRef = "events/1/cover.png"
	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error { return tx.UpdateEvent(ctx, e) }))
	createEvent(t, s, org.ID, "2030-06-01", 10, models.StateApproved)
	require.NoError(t, reserve(t, s, e.ID, att.ID))

	var refs []string
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		refs, err = tx.DeleteUser(ctx, org.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"events/1/cover.png"}, refs)

	_, err = s.GetEvent(ctx, e.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	res, err := s.ReservationsByAttendee(ctx, att.ID)
	require.NoError(t, err)
	assert.Empty(t, res)

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.DeleteUser(ctx, org.ID)
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
