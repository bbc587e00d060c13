package automation

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"civic-automation/internal/domain"
	"civic-automation/internal/service/notification"
)

type sentEvent struct {
	event      notification.Event
	recipients []uuid.UUID
}

// recordingNotifier resolves recipients inline and keeps every event.
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
	failOn domain.NotificationType
}

func (n *recordingNotifier) Notify(ctx context.Context, event notification.Event, resolve notification.RecipientResolver) (*notification.Dispatch, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if event.Type == n.failOn {
		return nil, errors.New("notification store unavailable")
	}
	ids, err := resolve(ctx)
	if err != nil {
		return nil, err
	}
	n.events = append(n.events, sentEvent{event: event, recipients: ids})
	return nil, nil
}

func (n *recordingNotifier) ofType(t domain.NotificationType) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.events {
		if e.event.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
