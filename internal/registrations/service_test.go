package registrations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/internal/notify/notifytest"
	"github.com/aura-events/backend/internal/store/sqlite"
	"github.com/aura-events/backend/internal/store/storetest"
)

func setup(t *testing.T) (*sqlite.Store, *Service, *notifytest.Recorder, models.Actor) {
	t.Helper()
	st := storetest.New(t)
	rec := &notifytest.Recorder{}
	org := storetest.User(t, st, "org@example.com", models.RoleOrganizer)
	return st, NewService(st, rec, nil), rec, org
}

func attendee(t *testing.T, st *sqlite.Store, name string) models.Actor {
	t.Helper()
	return storetest.User(t, st, name+"@example.com", models.RoleAttendee)
}

func TestRegisterThenCancelScenario(t *testing.T) {
	st, svc, rec, org := setup(t)
	ctx := context.Background()
	ev := storetest.Event(t, st, org.ID, storetest.Day(1), 1, models.StateApproved)
	a := attendee(t, st, "a")
	b := attendee(t, st, "b")

	view, err := svc.Register(ctx, a, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.ReservationCount)
	assert.Equal(t, 0, view.SeatsLeft)
	assert.True(t, view.Registered)

	_, err = svc.Register(ctx, b, ev.ID)
	assert.True(t, apperr.Is(err, apperr.CodeEventFull))

	require.NoError(t, svc.Cancel(ctx, a, ev.ID))
	assert.Equal(t, 0, storetest.Count(t, st, ev.ID))

	_, err = svc.Register(ctx, b, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, storetest.Count(t, st, ev.ID))

	assert.Equal(t, []notify.Kind{
		notify.KindRegistrationCreated,
		notify.KindRegistrationCancelled,
		notify.KindRegistrationCreated,
	}, rec.Kinds())
	calls := rec.Calls()
	assert.Equal(t, "a@example.com", calls[0].To)
	assert.Equal(t, "b@example.com", calls[2].To)
}

func TestRegisterTwiceIsAlreadyRegistered(t *testing.T) {
	st, svc, _, org := setup(t)
	ctx := context.Background()
	ev := storetest.Event(t, st, org.ID, storetest.Day(3), 10, models.StateApproved)
	a := attendee(t, st, "a")

	_, err := svc.Register(ctx, a, ev.ID)
	require.NoError(t, err)
	_, err = svc.Register(ctx, a, ev.ID)
	assert.True(t, apperr.Is(err, apperr.CodeAlreadyRegistered))
	assert.Equal(t, 1, storetest.Count(t, st, ev.ID))
}

func TestRegisterRejections(t *testing.T) {
	st, svc, rec, org := setup(t)
	ctx := context.Background()
	a := attendee(t, st, "a")

	pending := storetest.Event(t, st, org.ID, storetest.Day(3), 10, models.StatePending)
	rejected := storetest.Event(t, st, org.ID, storetest.Day(3), 10, models.StateRejected)
	past := storetest.Event(t, st, org.ID, storetest.Day(-1), 10, models.StateApproved)
	today := storetest.Event(t, st, org.ID, storetest.Day(0), 10, models.StateApproved)

	_, err := svc.Register(ctx, a, pending.ID)
	assert.True(t, apperr.Is(err, apperr.CodeEventNotApproved))
	_, err = svc.Register(ctx, a, rejected.ID)
	assert.True(t, apperr.Is(err, apperr.CodeEventNotApproved))
	_, err = svc.Register(ctx, a, past.ID)
	assert.True(t, apperr.Is(err, apperr.CodeEventPassed))
	_, err = svc.Register(ctx, a, past.ID+100)
	assert.True(t, apperr.Is(err, apperr.CodeNotFoundOrUnauthorized))
	_, err = svc.Register(ctx, org, today.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = svc.Register(ctx, a, today.ID)
	assert.NoError(t, err, "same-day registration is open")
	assert.Len(t, rec.Calls(), 1)
}

func TestConcurrentRegistrationsNeverOverbook(t *testing.T) {
	st, svc, _, org := setup(t)
	ctx := context.Background()
	const (
		capacity  = 5
		existing  = 2
		attempts  = 20
		available = capacity - existing
	)
	ev := storetest.Event(t, st, org.ID, storetest.Day(7), capacity, models.StateApproved)
	for i := 0; i < existing; i++ {
		storetest.Reserve(t, st, ev.ID, attendee(t, st, fmt.Sprintf("early%d", i)).ID)
	}
	actors := make([]models.Actor, attempts)
	for i := range actors {
		actors[i] = attendee(t, st, fmt.Sprintf("racer%d", i))
	}

	var (
		wg       sync.WaitGroup
		ok, full atomic.Int32
		other    atomic.Int32
	)
	start := make(chan struct{})
	for _, a := range actors {
		wg.Add(1)
		go func(a models.Actor) {
			defer wg.Done()
			<-start
			_, err := svc.Register(ctx, a, ev.ID)
			switch {
			case err == nil:
				ok.Add(1)
			case apperr.Is(err, apperr.CodeEventFull):
				full.Add(1)
			default:
				other.Add(1)
			}
		}(a)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(available), ok.Load())
	assert.Equal(t, int32(attempts-available), full.Load())
	assert.Zero(t, other.Load())
	assert.Equal(t, capacity, storetest.Count(t, st, ev.ID))
}

func TestConcurrentDuplicateRegistration(t *testing.T) {
	st, svc, _, org := setup(t)
	ctx := context.Background()
	ev := storetest.Event(t, st, org.ID, storetest.Day(7), 10, models.StateApproved)
	a := attendee(t, st, "a")

	var (
		wg        sync.WaitGroup
		ok, dupes atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(ctx, a, ev.ID)
			if err == nil {
				ok.Add(1)
			} else if apperr.Is(err, apperr.CodeAlreadyRegistered) {
				dupes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(7), dupes.Load())
	assert.Equal(t, 1, storetest.Count(t, st, ev.ID))
}

func TestCancelLockedOnEventDay(t *testing.T) {
	st, svc, rec, org := setup(t)
	ctx := context.Background()
	a := attendee(t, st, "a")
	for _, day := range []int{0, -2} {
		ev := storetest.Event(t, st, org.ID, storetest.Day(day), 10, models.StateApproved)
		storetest.Reserve(t, st, ev.ID, a.ID)

		err := svc.Cancel(ctx, a, ev.ID)
		assert.True(t, apperr.Is(err, apperr.CodeEventPassed))
		assert.Equal(t, 1, storetest.Count(t, st, ev.ID), "reservation stays")
	}
	assert.Empty(t, rec.Calls())
}

func TestCancelWithoutReservationSucceedsQuietly(t *testing.T) {
	st, svc, rec, org := setup(t)
	ctx := context.Background()
	ev := storetest.Event(t, st, org.ID, storetest.Day(2), 10, models.StateApproved)
	a := attendee(t, st, "a")

	assert.NoError(t, svc.Cancel(ctx, a, ev.ID))
	assert.Empty(t, rec.Calls())

	err := svc.Cancel(ctx, a, ev.ID+100)
	assert.True(t, apperr.Is(err, apperr.CodeNotFoundOrUnauthorized))
	assert.True(t, apperr.Is(svc.Cancel(ctx, org, ev.ID), apperr.CodeForbidden))
}

func TestNotificationFailureKeepsReservation(t *testing.T) {
	st := storetest.New(t)
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &notifytest.Recorder{Err: errors.New("smtp down")}
	svc := NewService(st, rec, zap.New(core))
	org := storetest.User(t, st, "org@example.com", models.RoleOrganizer)
	ev := storetest.Event(t, st, org.ID, storetest.Day(2), 10, models.StateApproved)
	a := attendee(t, st, "a")

	_, err := svc.Register(context.Background(), a, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, storetest.Count(t, st, ev.ID))
	assert.Equal(t, 1, logs.FilterMessage("notification failed").Len())
}

func TestMyReservations(t *testing.T) {
	st, svc, _, org := setup(t)
	ctx := context.Background()
	a := attendee(t, st, "a")
	later := storetest.Event(t, st, org.ID, storetest.Day(9), 10, models.StateApproved)
	sooner := storetest.Event(t, st, org.ID, storetest.Day(4), 10, models.StateApproved)
	storetest.Event(t, st, org.ID, storetest.Day(5), 10, models.StateApproved)

	list, err := svc.MyReservations(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, ev := range []*models.Event{later, sooner} {
		_, err := svc.Register(ctx, a, ev.ID)
		require.NoError(t, err)
	}
	list, err = svc.MyReservations(ctx, a)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, sooner.ID, list[0].Event.ID)
	assert.Equal(t, later.ID, list[1].Event.ID)

	_, err = svc.MyReservations(ctx, org)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}
