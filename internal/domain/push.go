package domain

import (
	"time"

	"github.com/google/uuid"
)

type PushSubscription struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	Endpoint   string     `json:"endpoint" db:"endpoint"`
	P256dhKey  string     `json:"-" db:"p256dh_key"`
	AuthKey    string     `json:"-" db:"auth_key"`
	UserAgent  *string    `json:"user_agent,omitempty" db:"user_agent"`
	Active     bool       `json:"active" db:"active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

type PushSubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

type PushSubscriptionInput struct {
	Endpoint  string               `json:"endpoint"`
	Keys      PushSubscriptionKeys `json:"keys"`
	UserAgent *string              `json:"user_agent,omitempty"`
}

// PushPayload is the JSON body delivered to the service worker.
type PushPayload struct {
	Title string          `json:"title"`
	Body  string          `json:"body"`
	Icon  string          `json:"icon,omitempty"`
	Badge string          `json:"badge,omitempty"`
	Data  PushPayloadData `json:"data"`
}

type PushPayloadData struct {
	URL                string    `json:"url,omitempty"`
	NotificationID     uuid.UUID `json:"notificationId"`
	UserNotificationID uuid.UUID `json:"userNotificationId"`
}
