package notify

import (
	"context"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/queue"
)

// EmailEnqueuer accepts email jobs.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// QueueNotifier renders notifications and hands them to the email worker queue.
type QueueNotifier struct {
	queue EmailEnqueuer
}

// NewQueueNotifier creates a notifier backed by q.
func NewQueueNotifier(q EmailEnqueuer) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

func (n *QueueNotifier) enqueue(ctx context.Context, kind Kind, ev models.Event, to Recipient, reason string) error {
	msg, err := Render(kind, ev, to, reason)
	if err != nil {
		return err
	}
	return n.queue.EnqueueEmail(ctx, queue.EmailPayload{
		Kind:           string(kind),
		EventID:        ev.ID,
		RecipientEmail: to.Email,
		RecipientName:  to.Name,
		Subject:        msg.Subject,
		BodyHTML:       msg.HTML,
		BodyText:       msg.Markdown,
	})
}

func (n *QueueNotifier) RegistrationCreated(ctx context.Context, ev models.Event, to Recipient) error {
	return n.enqueue(ctx, KindRegistrationCreated, ev, to, "")
}

func (n *QueueNotifier) RegistrationCancelled(ctx context.Context, ev models.Event, to Recipient) error {
	return n.enqueue(ctx, KindRegistrationCancelled, ev, to, "")
}

func (n *QueueNotifier) EventCreated(ctx context.Context, ev models.Event, to Recipient) error {
	return n.enqueue(ctx, KindEventCreated, ev, to, "")
}

func (n *QueueNotifier) EventApproved(ctx context.Context, ev models.Event, to Recipient) error {
	return n.enqueue(ctx, KindEventApproved, ev, to, "")
}

func (n *QueueNotifier) EventRejected(ctx context.Context, ev models.Event, to Recipient, reason string) error {
	return n.enqueue(ctx, KindEventRejected, ev, to, reason)
}
