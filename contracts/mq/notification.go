package mq

import "time"

const (
	RoutingKeyNotificationCreated = "notification.created"
	QueueNotificationCreated      = "notification.created.q"
)

// NotificationCreatedPayload is published by producers (booking, order and
// payment flows) whenever a recipient should see a new notification.
type NotificationCreatedPayload struct {
	EventID     string     `json:"event_id"`
	RecipientID string     `json:"recipient_id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Link        *string    `json:"link,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}
