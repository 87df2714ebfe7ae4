// Package eventhandler contains the reactive side of the engine: handlers
// subscribed to the event bus that turn domain events into notifications
// and operator alerts. Delivery is fire-and-forget; a failed notification
// never affects the committed write that produced the event.
package eventhandler

import (
	"context"

	"github.com/classpoints/points-engine/pkg/logger"
)

// Notification is one outbound message to a student.
type Notification struct {
	// StudentID - recipient.
	StudentID string

	// TenantID - tenant scope, for routing.
	TenantID string

	// Title and Body - the message content.
	Title string
	Body  string
}

// Notifier delivers notifications to students. The transport lives outside
// the engine (the school's messenger, push gateway, or mailer).
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log instead of delivering them.
// Used in development and as the fallback when no transport is configured.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Default()
	}
	return &LogNotifier{log: log.With(logger.Component("notifier"))}
}

// Notify logs the notification.
func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.log.Info("notification",
		logger.StudentID(msg.StudentID),
		logger.TenantID(msg.TenantID),
		logger.String("title", msg.Title),
		logger.String("body", msg.Body),
	)
	return nil
}
