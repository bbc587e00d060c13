package notification

import (
	"context"

	"github.com/google/uuid"

	"civic-automation/internal/domain"
)

// Event is a domain event that should reach a set of users.
type Event struct {
	Type      domain.NotificationType
	Data      domain.InterpolationData
	Refs      domain.EntityRefs
	ActionURL string
	Priority  domain.NotificationPriority
}

func NewEvent(notifType domain.NotificationType, refs domain.EntityRefs, data domain.InterpolationData) Event {
	return Event{
		Type:     notifType,
		Data:     data,
		Refs:     refs,
		Priority: domain.PriorityNormal,
	}
}

func (e Event) WithActionURL(url string) Event {
	e.ActionURL = url
	return e
}

func (e Event) WithPriority(priority domain.NotificationPriority) Event {
	e.Priority = priority
	return e
}

// TitleKey and BodyKey name the translation entries of the event type.
func TitleKey(notifType domain.NotificationType) string {
	return "notifications." + string(notifType) + ".title"
}

func BodyKey(notifType domain.NotificationType) string {
	return "notifications." + string(notifType) + ".message"
}

func (e Event) notification() *domain.Notification {
	priority := e.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	data := e.Data
	if data == nil {
		data = domain.InterpolationData{}
	}

	notif := &domain.Notification{
		ID:                uuid.New(),
		Type:              e.Type,
		TitleKey:          TitleKey(e.Type),
		BodyKey:           BodyKey(e.Type),
		InterpolationData: data,
		EntityRefs:        e.Refs,
		Priority:          priority,
	}
	if e.ActionURL != "" {
		url := e.ActionURL
		notif.ActionURL = &url
	}
	return notif
}

// RecipientResolver yields the users an event is addressed to.
type RecipientResolver func(ctx context.Context) ([]uuid.UUID, error)

// Recipients resolves to a fixed list of users.
func Recipients(ids ...uuid.UUID) RecipientResolver {
	return func(context.Context) ([]uuid.UUID, error) {
		return ids, nil
	}
}

// uniqueRecipients drops nil ids and duplicates while keeping the first-seen order.
func uniqueRecipients(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
