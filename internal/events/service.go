// Package events manages organizer-owned events and the role-scoped views over them.
//
// Every mutation checks ownership in the same locked read that precedes the write.
// An edit sends the event back to moderation, and a capacity change goes through the
// capacity guard before it is written.
package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/capacity"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/moderation"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/internal/store"
)

const (
	// DefaultMaxCapacity is the largest capacity accepted when none is configured.
	DefaultMaxCapacity = 10000
	// MaxTitleLength and MaxLocationLength bound the short text fields, in characters.
	MaxTitleLength    = 255
	MaxLocationLength = 255
	// MaxDescriptionLength bounds the description, in characters.
	MaxDescriptionLength = 10000
)

// ImageStore holds event images. References are opaque to this package.
type ImageStore interface {
	PutImage(ctx context.Context, eventID int64, filename, contentType string, body io.Reader, size int64) (string, error)
	DeleteImage(ctx context.Context, ref string) error
}

// Patch is a partial edit. Nil fields are left unchanged.
type Patch struct {
	Title       *string
	Description *string
	Date        *time.Time
	Location    *string
	Capacity    *int
}

// Upload is an image file submitted by an organizer.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Service implements event creation, editing, deletion and queries.
type Service struct {
	store       store.Store
	images      ImageStore
	notifier    notify.Notifier
	logger      *zap.Logger
	maxCapacity int
	now         func() time.Time
}

// NewService creates an event service. images may be nil, in which case image uploads
// fail and image references are never released.
func NewService(st store.Store, images ImageStore, notifier notify.Notifier, maxCapacity int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxCapacity
	}
	return &Service{
		store:       st,
		images:      images,
		notifier:    notifier,
		logger:      logger,
		maxCapacity: maxCapacity,
		now:         time.Now,
	}
}

// Create stores a new pending event for the organizer and tells them it awaits review.
func (s *Service) Create(ctx context.Context, actor models.Actor, f models.EventFields) (*models.EventView, error) {
	if !actor.Is(models.RoleOrganizer) {
		return nil, apperr.New(apperr.CodeForbidden, "only organizers can create events")
	}
	f = normalize(f)
	if err := s.validate(f); err != nil {
		return nil, err
	}
	if f.Date.Before(models.Today(s.now())) {
		return nil, apperr.New(apperr.CodeValidation, "date must be today or later")
	}

	ev := &models.Event{
		OrganizerID: actor.ID,
		Title:       f.Title,
		Description: f.Description,
		Date:        f.Date,
		Location:    f.Location,
		Capacity:    f.Capacity,
		ImageRef:    f.ImageRef,
		State:       models.StatePending,
	}
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertEvent(ctx, ev)
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	s.logger.Info("event created", zap.Int64("event_id", ev.ID), zap.Int64("organizer_id", actor.ID))

	notify.Dispatch(ctx, s.logger, s.store, ev.OrganizerID, notify.KindEventCreated, ev.ID, func(to notify.Recipient) error {
		return s.notifier.EventCreated(ctx, *ev, to)
	})
	v := models.NewEventView(*ev, 0)
	return &v, nil
}

// Update applies a patch to an event owned by the organizer. Past dates are accepted so
// that finished events can still be corrected. The edited event returns to pending.
func (s *Service) Update(ctx context.Context, actor models.Actor, eventID int64, p Patch) (*models.EventView, error) {
	view, _, err := s.edit(ctx, actor, eventID, func(ev *models.Event) error {
		f := fieldsOf(ev)
		if p.Title != nil {
			f.Title = *p.Title
		}
		if p.Description != nil {
			f.Description = *p.Description
		}
		if p.Date != nil {
			f.Date = models.DateOf(*p.Date)
		}
		if p.Location != nil {
			f.Location = *p.Location
		}
		if p.Capacity != nil {
			f.Capacity = *p.Capacity
		}
		f = normalize(f)
		if err := s.validate(f); err != nil {
			return err
		}
		ev.Title, ev.Description, ev.Date, ev.Location, ev.Capacity = f.Title, f.Description, f.Date, f.Location, f.Capacity
		return nil
	})
	return view, err
}

// SetImage uploads a new image for an owned event and releases the one it replaces.
func (s *Service) SetImage(ctx context.Context, actor models.Actor, eventID int64, up Upload) (*models.EventView, error) {
	if s.images == nil {
		return nil, apperr.New(apperr.CodeStorageUnavailable, "image storage is not configured")
	}
	// Fail fast before spending an upload. Ownership is checked again under the lock.
	current, err := s.store.GetEvent(ctx, eventID)
	if err != nil || !actor.Is(models.RoleOrganizer) || current.OrganizerID != actor.ID {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Storage(err)
		}
		return nil, notFound()
	}

	ref, err := s.images.PutImage(ctx, eventID, up.Filename, up.ContentType, up.Body, up.Size)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageUnavailable, err, "image upload failed")
	}

	view, replaced, err := s.edit(ctx, actor, eventID, func(ev *models.Event) error {
		ev.ImageRef = ref
		return nil
	})
	if err != nil {
		s.releaseImage(ctx, eventID, ref)
		return nil, err
	}
	if replaced != ref {
		s.releaseImage(ctx, eventID, replaced)
	}
	return view, nil
}

// edit runs mutate on the locked, owned event, then re-moderates, re-checks capacity and
// writes it back. It returns the image reference the event held before the edit.
func (s *Service) edit(ctx context.Context, actor models.Actor, eventID int64, mutate func(ev *models.Event) error) (*models.EventView, string, error) {
	if !actor.Is(models.RoleOrganizer) {
		return nil, "", notFound()
	}
	var (
		ev       *models.Event
		count    int
		oldImage string
	)
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		ev, err = tx.LockOwnedEvent(ctx, eventID, actor.ID)
		if errors.Is(err, store.ErrNotFound) {
			return notFound()
		}
		if err != nil {
			return apperr.Storage(err)
		}
		oldImage = ev.ImageRef
		oldCapacity := ev.Capacity

		if err := mutate(ev); err != nil {
			return err
		}
		if ev.Capacity != oldCapacity {
			if err := capacity.Resize(ctx, tx, ev, ev.Capacity); err != nil {
				return err
			}
		}
		if count, err = capacity.Count(ctx, tx, ev.ID); err != nil {
			return err
		}

		previous := ev.State
		ev.State = moderation.AfterEdit(ev.State)
		if ev.State != previous {
			ev.ModerationNote = ""
		}
		if err := tx.UpdateEvent(ctx, ev); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound()
			}
			return apperr.Storage(err)
		}
		return nil
	})
	if err != nil {
		return nil, "", apperr.Storage(err)
	}
	s.logger.Info("event updated",
		zap.Int64("event_id", ev.ID), zap.Int64("organizer_id", actor.ID), zap.String("state", string(ev.State)))
	v := models.NewEventView(*ev, count)
	return &v, oldImage, nil
}

// Delete removes an owned event together with its reservations and releases its image.
func (s *Service) Delete(ctx context.Context, actor models.Actor, eventID int64) error {
	if !actor.Is(models.RoleOrganizer) {
		return notFound()
	}
	var deleted *models.Event
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockOwnedEvent(ctx, eventID, actor.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound()
			}
			return apperr.Storage(err)
		}
		var err error
		deleted, err = tx.DeleteOwnedEvent(ctx, eventID, actor.ID)
		if errors.Is(err, store.ErrNotFound) {
			return notFound()
		}
		return apperr.Storage(err)
	})
	if err != nil {
		return apperr.Storage(err)
	}
	s.logger.Info("event deleted", zap.Int64("event_id", eventID), zap.Int64("organizer_id", actor.ID))
	s.releaseImage(ctx, eventID, deleted.ImageRef)
	return nil
}

// releaseImage deletes an image after the owning unit of work has committed. Failures
// leave an orphaned object behind and are only logged.
func (s *Service) releaseImage(ctx context.Context, eventID int64, ref string) {
	if ref == "" || s.images == nil {
		return
	}
	if err := s.images.DeleteImage(ctx, ref); err != nil {
		s.logger.Warn("image release failed", zap.Int64("event_id", eventID), zap.String("image_ref", ref), zap.Error(err))
	}
}

// Get returns an event if the actor may see it. Hidden and missing events are reported alike.
func (s *Service) Get(ctx context.Context, actor models.Actor, eventID int64) (*models.EventView, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if !moderation.Visible(ev, actor) {
		return nil, notFound()
	}
	n, err := s.store.CountReservations(ctx, eventID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	v := models.NewEventView(*ev, n)
	if actor.Is(models.RoleAttendee) {
		if v.Registered, err = s.store.HasReservation(ctx, eventID, actor.ID); err != nil {
			return nil, apperr.Storage(err)
		}
	}
	return &v, nil
}

// List returns the events the actor works with: attendees see approved upcoming events by
// date, organizers see their own events grouped by state, administrators see everything
// newest first.
func (s *Service) List(ctx context.Context, actor models.Actor) ([]models.EventView, error) {
	var f store.EventFilter
	switch actor.Role {
	case models.RoleAttendee:
		today := models.Today(s.now())
		f = store.EventFilter{
			States:   []models.ModerationState{models.StateApproved},
			From:     &today,
			ViewerID: &actor.ID,
			Order:    store.OrderDate,
		}
	case models.RoleOrganizer:
		f = store.EventFilter{OrganizerID: &actor.ID, Order: store.OrderStateThenDate}
	case models.RoleAdmin:
		f = store.EventFilter{Order: store.OrderNewest}
	default:
		return nil, apperr.New(apperr.CodeForbidden, "unknown role")
	}
	list, err := s.store.ListEvents(ctx, f)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if list == nil {
		list = []models.EventView{}
	}
	return list, nil
}

// Roster returns the attendees of an event to its organizer or an administrator.
func (s *Service) Roster(ctx context.Context, actor models.Actor, eventID int64) ([]models.RosterEntry, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if !moderation.CanManage(ev, actor) {
		return nil, notFound()
	}
	roster, err := s.store.Roster(ctx, eventID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if roster == nil {
		roster = []models.RosterEntry{}
	}
	return roster, nil
}

func (s *Service) validate(f models.EventFields) error {
	switch {
	case f.Title == "":
		return apperr.New(apperr.CodeValidation, "title is required")
	case utf8.RuneCountInString(f.Title) > MaxTitleLength:
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("title must be at most %d characters", MaxTitleLength))
	case f.Description == "":
		return apperr.New(apperr.CodeValidation, "description is required")
	case utf8.RuneCountInString(f.Description) > MaxDescriptionLength:
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength))
	case f.Location == "":
		return apperr.New(apperr.CodeValidation, "location is required")
	case utf8.RuneCountInString(f.Location) > MaxLocationLength:
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("location must be at most %d characters", MaxLocationLength))
	case f.Date.IsZero():
		return apperr.New(apperr.CodeValidation, "date is required")
	case f.Capacity < 1 || f.Capacity > s.maxCapacity:
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("capacity must be between 1 and %d", s.maxCapacity))
	}
	return nil
}

func normalize(f models.EventFields) models.EventFields {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	f.Location = strings.TrimSpace(f.Location)
	if !f.Date.IsZero() {
		f.Date = models.DateOf(f.Date)
	}
	return f
}

func fieldsOf(ev *models.Event) models.EventFields {
	return models.EventFields{
		Title:       ev.Title,
		Description: ev.Description,
		Date:        ev.Date,
		Location:    ev.Location,
		Capacity:    ev.Capacity,
		ImageRef:    ev.ImageRef,
	}
}

func notFound() error {
	return apperr.New(apperr.CodeNotFoundOrUnauthorized, "event not found")
}
