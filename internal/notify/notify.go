package notify

import (
	"context"
	"log"
	"time"
)

// Event types attached to guardian notifications.
const (
	EventEntry = "entry"
	EventExit  = "exit"
)

// Notification is the self-contained payload handed to the queue: the worker
// needs no further lookups to deliver it.
type Notification struct {
	SubjectName string    `json:"subject_name"`
	EventType   string    `json:"event_type"`
	EventTime   time.Time `json:"event_time"`
	Recipients  []string  `json:"recipients"`
}

// Dispatcher delivers guardian notifications. Best effort: callers log errors
// and never propagate them to the scan path.
type Dispatcher interface {
	Send(ctx context.Context, n Notification) error
}

// LogDispatcher writes notifications to the log. Used in dev and whenever no
// email provider is configured.
type LogDispatcher struct{}

// Send logs the notification.
func (LogDispatcher) Send(_ context.Context, n Notification) error {
	log.Printf("notify: %s %s at %s -> %v", n.SubjectName, n.EventType, n.EventTime.Format(time.RFC3339), n.Recipients)
	return nil
}
