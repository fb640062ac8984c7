package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/internal/notify/notifytest"
	"github.com/aura-events/backend/internal/store/storetest"
)

func TestApproveNotifiesOrganizer(t *testing.T) {
	st := storetest.New(t)
	rec := &notifytest.Recorder{}
	svc := NewService(st, rec, nil)
	admin := storetest.User(t, st, "admin@example.com", models.RoleAdmin)
	org := storetest.User(t, st, "org@example.com", models.RoleOrganizer)
	ev := storetest.Event(t, st, org.ID, storetest.Day(7), 10, models.StatePending)

	got, err := svc.Approve(context.Background(), admin, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, got.State)

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, notify.KindEventApproved, calls[0].Kind)
	assert.Equal(t, "org@example.com", calls[0].To)

	_, err = svc.Approve(context.Background(), admin, ev.ID)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
	_, err = svc.Reject(context.Background(), admin, ev.ID, "late change of heart")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
}

func TestRejectStoresReasonAndKeepsReservations(t *testing.T) {
	st := storetest.New(t)
	rec := &notifytest.Recorder{}
	svc := NewService(st, rec, nil)
	admin := storetest.User(t, st, "admin@example.com", models.RoleAdmin)
	org := storetest.User(t, st, "org@example.com", models.RoleOrganizer)
	att := storetest.User(t, st, "att@example.com", models.RoleAttendee)
	ev := storetest.Event(t, st, org.ID, storetest.Day(7), 10, models.StatePending)
	storetest.Reserve(t, st, ev.ID, att.ID)

	got, err := svc.Reject(context.Background(), admin, ev.ID, "  Needs an agenda  ")
	require.NoError(t, err)
	assert.Equal(t, models.StateRejected, got.State)
	assert.Equal(t, "Needs an agenda", got.ModerationNote)
	assert.Equal(t, 1, got.ReservationCount)
	assert.Equal(t, 1, storetest.Count(t, st, ev.ID))

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Needs an agenda", calls[0].Reason)
}

func TestModerationRequiresAdmin(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st, &notifytest.Recorder{}, nil)
	org := storetest.User(t, st, "org@example.com", models.RoleOrganizer)
	ev := storetest.Event(t, st, org.ID, storetest.Day(7), 10, models.StatePending)

	_, err := svc.Approve(context.Background(), org, ev.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	_, err = svc.ListQueue(context.Background(), org, "")
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestApproveUnknownEvent(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st, &notifytest.Recorder{}, nil)
	admin := storetest.User(t, st, "admin@example.com", models.RoleAdmin)

	_, err := svc.Approve(context.Background(), admin, 999)
	assert.True(t, apperr.Is(err, apperr.CodeNotFoundOrUnauthorized))
}

func TestNotificationFailureDoesNotUndoApproval(t *testing.T) {
	st := storetest.New(t)
	rec := &notifytest.Recorder{Err: errors.New("smtp down")}
	svc := NewService(st, rec, nil)
	admin := storetest.User(t, st, "admin@example.com", models.RoleAdmin)
	org := storetest.User(t, st, "org@example.com", models.RoleOrganizer)
	ev := storetest.Event(t, st, org.ID, storetest.Day(7), 10, models.StatePending)

	_, err := svc.Approve(context.Background(), admin, ev.ID)
	require.NoError(t, err)
	stored, err := st.GetEvent(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, stored.State)
}

func TestListQueue(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st, &notifytest.Recorder{}, nil)
	admin := storetest.User(t, st, "admin@example.com", models.RoleAdmin)
	org := storetest.User(t, st, "org@example.com", models.RoleOrganizer)
	storetest.Event(t, st, org.ID, storetest.Day(3), 10, models.StatePending)
	storetest.Event(t, st, org.ID, storetest.Day(4), 10, models.StatePending)
	storetest.Event(t, st, org.ID, storetest.Day(5), 10, models.StateApproved)

	q, err := svc.ListQueue(context.Background(), admin, "")
	require.NoError(t, err)
	assert.Equal(t, "pending", q.Filter)
	assert.Len(t, q.Events, 2)
	assert.Equal(t, 2, q.Counts[models.StatePending])
	assert.Equal(t, 1, q.Counts[models.StateApproved])

	q, err = svc.ListQueue(context.Background(), admin, FilterAll)
	require.NoError(t, err)
	assert.Len(t, q.Events, 3)

	_, err = svc.ListQueue(context.Background(), admin, "archived")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}
