// Package notifytest provides an in-memory notify.Notifier for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/notify"
)

// Call is one recorded notification.
type Call struct {
	Kind    notify.Kind
	EventID int64
	To      string
	Reason  string
}

// Recorder records every notification. When Err is set each call records and then fails with it.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	Err   error
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Kinds returns the kinds of the recorded calls in order.
func (r *Recorder) Kinds() []notify.Kind {
	var kinds []notify.Kind
	for _, c := range r.Calls() {
		kinds = append(kinds, c.Kind)
	}
	return kinds
}

func (r *Recorder) record(kind notify.Kind, ev models.Event, to notify.Recipient, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Kind: kind, EventID: ev.ID, To: to.Email, Reason: reason})
	return r.Err
}

func (r *Recorder) RegistrationCreated(_ context.Context, ev models.Event, to notify.Recipient) error {
	return r.record(notify.KindRegistrationCreated, ev, to, "")
}

func (r *Recorder) RegistrationCancelled(_ context.Context, ev models.Event, to notify.Recipient) error {
	return r.record(notify.KindRegistrationCancelled, ev, to, "")
}

func (r *Recorder) EventCreated(_ context.Context, ev models.Event, to notify.Recipient) error {
	return r.record(notify.KindEventCreated, ev, to, "")
}

func (r *Recorder) EventApproved(_ context.Context, ev models.Event, to notify.Recipient) error {
	return r.record(notify.KindEventApproved, ev, to, "")
}

func (r *Recorder) EventRejected(_ context.Context, ev models.Event, to notify.Recipient, reason string) error {
	return r.record(notify.KindEventRejected, ev, to, reason)
}
