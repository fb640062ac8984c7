package models

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of an event date.
const DateLayout = "2006-01-02"

// ModerationState is the approval lifecycle value of an event.
type ModerationState string

const (
	StatePending  ModerationState = "pending"
	StateApproved ModerationState = "approved"
	StateRejected ModerationState = "rejected"
)

// Valid reports whether s is a known moderation state.
func (s ModerationState) Valid() bool {
	switch s {
	case StatePending, StateApproved, StateRejected:
		return true
	}
	return false
}

// Event is an organizer-submitted event with a seat capacity.
type Event struct {
	ID             int64           `json:"id"`
	OrganizerID    int64           `json:"organizer_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Date           time.Time       `json:"-"`
	Location       string          `json:"location"`
	Capacity       int             `json:"capacity"`
	ImageRef       string          `json:"image_ref,omitempty"`
	State          ModerationState `json:"state"`
	ModerationNote string          `json:"moderation_note,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DateString returns the event date as YYYY-MM-DD.
func (e *Event) DateString() string {
	return e.Date.Format(DateLayout)
}

// EventFields are the organizer-editable attributes of an event.
type EventFields struct {
	Title       string
	Description string
	Date        time.Time
	Location    string
	Capacity    int
	ImageRef    string
}

// EventView is an event as exposed to readers, with its current reservation count.
type EventView struct {
	Event
	DateOnly         string `json:"date"`
	ReservationCount int    `json:"reservation_count"`
	SeatsLeft        int    `json:"seats_left"`
	Registered       bool   `json:"registered,omitempty"`
}

// NewEventView builds a view from an event and its reservation count.
func NewEventView(e Event, count int) EventView {
	left := e.Capacity - count
	if left < 0 {
		left = 0
	}
	return EventView{Event: e, DateOnly: e.DateString(), ReservationCount: count, SeatsLeft: left}
}

// ParseDate parses a YYYY-MM-DD date into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar day of now.
func Today(now time.Time) time.Time {
	return DateOf(now)
}
