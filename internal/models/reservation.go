package models

import "time"

// Reservation binds one attendee to one event. At most one exists per (event, attendee).
type Reservation struct {
	EventID    int64     `json:"event_id"`
	AttendeeID int64     `json:"attendee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// RosterEntry is one attendee on an event's roster.
type RosterEntry struct {
	AttendeeID int64     `json:"attendee_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"reserved_at"`
}

// AttendeeReservation is a reservation as seen by the attendee holding it.
type AttendeeReservation struct {
	Event      EventView `json:"event"`
	ReservedAt time.Time `json:"reserved_at"`
}

// Stats summarizes platform activity for the admin dashboard.
type Stats struct {
	EventsByState           map[ModerationState]int `json:"events_by_state"`
	TotalEvents             int                     `json:"total_events"`
	TotalReservations       int                     `json:"total_reservations"`
	AvgReservationsPerEvent float64                 `json:"avg_reservations_per_event"`
	PopularEvents           []EventView             `json:"popular_events"`
	UsersByRole             map[Role]int            `json:"users_by_role"`
	TotalUsers              int                     `json:"total_users"`
	ActiveOrganizers        []OrganizerActivity     `json:"active_organizers"`
}

// OrganizerActivity is an organizer with the number of events they created.
type OrganizerActivity struct {
	OrganizerID int64  `json:"organizer_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	EventCount  int    `json:"event_count"`
}
