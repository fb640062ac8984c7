package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/internal/store"
)

// MaxReasonLength bounds a rejection reason, in characters.
const MaxReasonLength = 1000

// FilterAll selects every moderation state in the queue.
const FilterAll = "all"

// Queue is the moderator's view of events in one state.
type Queue struct {
	Filter string                         `json:"filter"`
	Events []models.EventView             `json:"events"`
	Counts map[models.ModerationState]int `json:"counts"`
}

// Service applies moderator decisions.
type Service struct {
	store    store.Store
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewService creates a moderation service.
func NewService(st store.Store, notifier notify.Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, notifier: notifier, logger: logger}
}

// Approve moves a pending event to approved and tells its organizer.
func (s *Service) Approve(ctx context.Context, actor models.Actor, eventID int64) (*models.EventView, error) {
	ev, err := s.transition(ctx, actor, eventID, ActionApprove, "")
	if err != nil {
		return nil, err
	}
	notify.Dispatch(ctx, s.logger, s.store, ev.OrganizerID, notify.KindEventApproved, ev.ID, func(to notify.Recipient) error {
		return s.notifier.EventApproved(ctx, *ev, to)
	})
	return s.view(ctx, ev)
}

// Reject moves a pending event to rejected, records the reason and tells its organizer.
func (s *Service) Reject(ctx context.Context, actor models.Actor, eventID int64, reason string) (*models.EventView, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return nil, apperr.New(apperr.CodeValidation, fmt.Sprintf("reason must be at most %d characters", MaxReasonLength))
	}
	ev, err := s.transition(ctx, actor, eventID, ActionReject, reason)
	if err != nil {
		return nil, err
	}
	notify.Dispatch(ctx, s.logger, s.store, ev.OrganizerID, notify.KindEventRejected, ev.ID, func(to notify.Recipient) error {
		return s.notifier.EventRejected(ctx, *ev, to, reason)
	})
	return s.view(ctx, ev)
}

func (s *Service) transition(ctx context.Context, actor models.Actor, eventID int64, action Action, note string) (*models.Event, error) {
	if !actor.Is(models.RoleAdmin) {
		return nil, apperr.New(apperr.CodeForbidden, "only administrators can moderate events")
	}
	current, err := s.store.GetEvent(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFoundOrUnauthorized, "event not found")
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	to, err := Next(current.State, action)
	if err != nil {
		return nil, err
	}

	ev, err := s.store.TransitionState(ctx, eventID, current.State, to, note)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.New(apperr.CodeNotFoundOrUnauthorized, "event not found")
	case errors.Is(err, store.ErrStateMismatch):
		return nil, apperr.New(apperr.CodeInvalidTransition, "event changed while it was being moderated")
	case err != nil:
		return nil, apperr.Storage(err)
	}
	s.logger.Info("event moderated",
		zap.Int64("event_id", ev.ID), zap.String("action", string(action)),
		zap.String("state", string(ev.State)), zap.Int64("admin_id", actor.ID))
	return ev, nil
}

func (s *Service) view(ctx context.Context, ev *models.Event) (*models.EventView, error) {
	n, err := s.store.CountReservations(ctx, ev.ID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	v := models.NewEventView(*ev, n)
	return &v, nil
}

// ListQueue returns events in the requested state, newest first, with per-state counts.
// An empty filter means pending.
func (s *Service) ListQueue(ctx context.Context, actor models.Actor, filter string) (*Queue, error) {
	if !actor.Is(models.RoleAdmin) {
		return nil, apperr.New(apperr.CodeForbidden, "only administrators can view the moderation queue")
	}
	if filter == "" {
		filter = string(models.StatePending)
	}
	f := store.EventFilter{Order: store.OrderNewest}
	if filter != FilterAll {
		st := models.ModerationState(filter)
		if !st.Valid() {
			return nil, apperr.New(apperr.CodeValidation, fmt.Sprintf("unknown state filter %q", filter))
		}
		f.States = []models.ModerationState{st}
	}

	events, err := s.store.ListEvents(ctx, f)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	counts, err := s.store.EventsByState(ctx)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if events == nil {
		events = []models.EventView{}
	}
	return &Queue{Filter: filter, Events: events, Counts: counts}, nil
}
