// Package moderation owns the approval lifecycle of events.
//
//	pending --approve--> approved
//	pending --reject---> rejected
//	approved|rejected --organizer edit--> pending
//
// Approved and rejected are terminal for the moderator. An organizer edit sends the
// event back for review.
package moderation

import (
	"fmt"
	"time"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
)

// Action is a moderator decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Next returns the state an event moves to when a moderator applies action.
func Next(from models.ModerationState, action Action) (models.ModerationState, error) {
	if from != models.StatePending {
		return "", apperr.New(apperr.CodeInvalidTransition,
			fmt.Sprintf("cannot %s an event that is %s", action, from))
	}
	switch action {
	case ActionApprove:
		return models.StateApproved, nil
	case ActionReject:
		return models.StateRejected, nil
	}
	return "", apperr.New(apperr.CodeValidation, fmt.Sprintf("unknown moderation action %q", action))
}

// AfterEdit returns the state of an event once its organizer has edited it.
func AfterEdit(models.ModerationState) models.ModerationState {
	return models.StatePending
}

// CheckRegistrable reports why an event cannot take a new reservation on the given day,
// capacity aside.
func CheckRegistrable(e *models.Event, today time.Time) error {
	if e.State != models.StateApproved {
		return apperr.New(apperr.CodeEventNotApproved, "event is not open for registration")
	}
	if e.Date.Before(models.DateOf(today)) {
		return apperr.New(apperr.CodeEventPassed, "event has already taken place")
	}
	return nil
}

// CheckCancellable reports whether a reservation for e may still be cancelled on the given
// day. Cancellation closes on the day of the event.
func CheckCancellable(e *models.Event, today time.Time) error {
	if !models.DateOf(today).Before(e.Date) {
		return apperr.New(apperr.CodeEventPassed, "cancellation is closed once the event has started")
	}
	return nil
}

// Visible reports whether actor may see e. Approved events are public; everything else
// is limited to its organizer and administrators.
func Visible(e *models.Event, actor models.Actor) bool {
	if e.State == models.StateApproved {
		return true
	}
	return CanManage(e, actor)
}

// CanManage reports whether actor is the event's organizer or an administrator.
func CanManage(e *models.Event, actor models.Actor) bool {
	return actor.Role == models.RoleAdmin || (actor.Role == models.RoleOrganizer && e.OrganizerID == actor.ID)
}
