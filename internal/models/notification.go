package models

import "time"

// NotificationKind classifies a user facing notification.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
	NotificationWarning NotificationKind = "warning"
)

// Notification is a toast-style message about a mutation outcome.
type Notification struct {
	ID          string           `json:"id"`
	Kind        NotificationKind `json:"kind"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	ActorID     string           `json:"actor_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
