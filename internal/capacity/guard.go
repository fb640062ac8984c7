// Package capacity enforces the seat limit of an event.
//
// The guard never caches a count. Callers pass the Tx of their unit of work so the count
// is read under the same event lock that protects the subsequent write.
package capacity

import (
	"context"
	"fmt"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
)

// Counter counts reservations for an event.
type Counter interface {
	CountReservations(ctx context.Context, eventID int64) (int, error)
}

// Count returns the current number of reservations for an event.
func Count(ctx context.Context, c Counter, eventID int64) (int, error) {
	n, err := c.CountReservations(ctx, eventID)
	if err != nil {
		return 0, apperr.Storage(err)
	}
	return n, nil
}

// Admit fails with EVENT_FULL when the event has no seat left for one more reservation.
// It returns the count it observed.
func Admit(ctx context.Context, c Counter, e *models.Event) (int, error) {
	n, err := Count(ctx, c, e.ID)
	if err != nil {
		return 0, err
	}
	if n >= e.Capacity {
		return n, apperr.New(apperr.CodeEventFull, "event is full")
	}
	return n, nil
}

// Resize fails with CAPACITY_VIOLATION when newCapacity is below the reservations already held.
func Resize(ctx context.Context, c Counter, e *models.Event, newCapacity int) error {
	n, err := Count(ctx, c, e.ID)
	if err != nil {
		return err
	}
	if newCapacity < n {
		return apperr.New(apperr.CodeCapacityViolation,
			fmt.Sprintf("capacity %d is below the %d reservations already held", newCapacity, n))
	}
	return nil
}
