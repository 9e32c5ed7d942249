package realtime

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Level is the severity of a user notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	default:
		return "info"
	}
}

// Notifier shows a transient message to the user. Calls are fire-and-forget.
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, message string)

// Notify implements Notifier.
func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// LogNotifier writes notifications to a logger, for headless clients.
type LogNotifier struct {
	Logger logrus.FieldLogger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(level Level, message string) {
	logger := n.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithField("level", level.String())
	if level == LevelWarning {
		entry.Warn(message)
		return
	}
	entry.Info(message)
}

// Describe returns the notification shown for e.
func Describe(e Event) (Level, string) {
	switch e.Name {
	case EventBookingCreated:
		return LevelSuccess, "New booking received"
	case EventBookingUpdated:
		return LevelInfo, "A booking was updated"
	case EventBookingDeleted:
		return LevelWarning, "A booking was removed"
	case EventBookingStatusChanged:
		if e.Payload.Status != "" {
			return LevelInfo, fmt.Sprintf("Booking status changed to %s", e.Payload.Status)
		}
		return LevelInfo, "Booking status changed"
	default:
		return LevelInfo, fmt.Sprintf("Received %s", e.Name)
	}
}
