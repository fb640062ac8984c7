// Package registrations admits and cancels attendee reservations.
//
// Register locks the event row, re-checks its state and date, counts the committed
// reservations and inserts, all in one unit of work. Concurrent requests for the same
// event queue on the lock; requests for different events do not interact. The unique
// (event, attendee) key turns a duplicate that slips past the count into ALREADY_REGISTERED.
package registrations

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/capacity"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/moderation"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/internal/store"
)

// Service implements the reservation protocol.
type Service struct {
	store    store.Store
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a registration service.
func NewService(st store.Store, notifier notify.Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, notifier: notifier, logger: logger, now: time.Now}
}

// Register reserves a seat on an event for the attendee and returns the event as the
// attendee now sees it.
func (s *Service) Register(ctx context.Context, actor models.Actor, eventID int64) (*models.EventView, error) {
	if !actor.Is(models.RoleAttendee) {
		return nil, apperr.New(apperr.CodeForbidden, "only attendees can register for events")
	}
	var (
		ev    *models.Event
		count int
	)
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		if ev, err = s.lock(ctx, tx, eventID); err != nil {
			return err
		}
		if err := moderation.CheckRegistrable(ev, s.now()); err != nil {
			return err
		}
		if count, err = capacity.Admit(ctx, tx, ev); err != nil {
			return err
		}
		err = tx.InsertReservation(ctx, &models.Reservation{EventID: ev.ID, AttendeeID: actor.ID})
		if errors.Is(err, store.ErrDuplicate) {
			return apperr.New(apperr.CodeAlreadyRegistered, "already registered for this event")
		}
		return apperr.Storage(err)
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	s.logger.Info("registration created", zap.Int64("event_id", ev.ID), zap.Int64("attendee_id", actor.ID))

	notify.Dispatch(ctx, s.logger, s.store, actor.ID, notify.KindRegistrationCreated, ev.ID, func(to notify.Recipient) error {
		return s.notifier.RegistrationCreated(ctx, *ev, to)
	})
	v := models.NewEventView(*ev, count+1)
	v.Registered = true
	return &v, nil
}

// Cancel removes the attendee's reservation. Cancelling a reservation that does not exist
// succeeds; cancelling on or after the event day fails with EVENT_PASSED.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, eventID int64) error {
	if !actor.Is(models.RoleAttendee) {
		return apperr.New(apperr.CodeForbidden, "only attendees can cancel registrations")
	}
	var (
		ev      *models.Event
		deleted bool
	)
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		if ev, err = s.lock(ctx, tx, eventID); err != nil {
			return err
		}
		if err := moderation.CheckCancellable(ev, s.now()); err != nil {
			return err
		}
		deleted, err = tx.DeleteReservation(ctx, ev.ID, actor.ID)
		return apperr.Storage(err)
	})
	if err != nil {
		return apperr.Storage(err)
	}
	if !deleted {
		return nil
	}
	s.logger.Info("registration cancelled", zap.Int64("event_id", ev.ID), zap.Int64("attendee_id", actor.ID))

	notify.Dispatch(ctx, s.logger, s.store, actor.ID, notify.KindRegistrationCancelled, ev.ID, func(to notify.Recipient) error {
		return s.notifier.RegistrationCancelled(ctx, *ev, to)
	})
	return nil
}

// MyReservations lists the attendee's reservations, soonest event first.
func (s *Service) MyReservations(ctx context.Context, actor models.Actor) ([]models.AttendeeReservation, error) {
	if !actor.Is(models.RoleAttendee) {
		return nil, apperr.New(apperr.CodeForbidden, "only attendees hold reservations")
	}
	list, err := s.store.ReservationsByAttendee(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if list == nil {
		list = []models.AttendeeReservation{}
	}
	return list, nil
}

func (s *Service) lock(ctx context.Context, tx store.Tx, eventID int64) (*models.Event, error) {
	ev, err := tx.LockEvent(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFoundOrUnauthorized, "event not found")
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return ev, nil
}
