// Package notify tells organizers and attendees about registration and moderation
// outcomes. Delivery is fire-and-forget: callers log a failure and carry on.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/models"
)

// Recipient is the addressee of a notification.
type Recipient struct {
	Email string
	Name  string
}

// RecipientOf returns the recipient for a user.
func RecipientOf(u *models.User) Recipient {
	return Recipient{Email: u.Email, Name: u.Name}
}

// Notifier receives notification events from the core.
type Notifier interface {
	RegistrationCreated(ctx context.Context, ev models.Event, to Recipient) error
	RegistrationCancelled(ctx context.Context, ev models.Event, to Recipient) error
	EventCreated(ctx context.Context, ev models.Event, to Recipient) error
	EventApproved(ctx context.Context, ev models.Event, to Recipient) error
	EventRejected(ctx context.Context, ev models.Event, to Recipient, reason string) error
}

// UserLookup resolves a user id to a user.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Dispatch resolves userID and hands the recipient to send. Failures are logged and dropped.
func Dispatch(ctx context.Context, logger *zap.Logger, users UserLookup, userID int64, kind Kind, eventID int64, send func(Recipient) error) {
	u, err := users.GetUser(ctx, userID)
	if err != nil {
		logger.Warn("notification recipient lookup failed",
			zap.String("kind", string(kind)), zap.Int64("event_id", eventID), zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if err := send(RecipientOf(u)); err != nil {
		logger.Warn("notification failed",
			zap.String("kind", string(kind)), zap.Int64("event_id", eventID), zap.Int64("user_id", userID), zap.Error(err))
	}
}

// LogNotifier logs notifications. Used when no queue is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) log(kind Kind, ev models.Event, to Recipient, fields ...zap.Field) error {
	n.logger.Info("notification",
		append([]zap.Field{
			zap.String("kind", string(kind)),
			zap.Int64("event_id", ev.ID),
			zap.String("recipient", to.Email),
		}, fields...)...)
	return nil
}

func (n *LogNotifier) RegistrationCreated(_ context.Context, ev models.Event, to Recipient) error {
	return n.log(KindRegistrationCreated, ev, to)
}

func (n *LogNotifier) RegistrationCancelled(_ context.Context, ev models.Event, to Recipient) error {
	return n.log(KindRegistrationCancelled, ev, to)
}

func (n *LogNotifier) EventCreated(_ context.Context, ev models.Event, to Recipient) error {
	return n.log(KindEventCreated, ev, to)
}

func (n *LogNotifier) EventApproved(_ context.Context, ev models.Event, to Recipient) error {
	return n.log(KindEventApproved, ev, to)
}

func (n *LogNotifier) EventRejected(_ context.Context, ev models.Event, to Recipient, reason string) error {
	return n.log(KindEventRejected, ev, to, zap.String("reason", reason))
}
