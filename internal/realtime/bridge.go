package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"civic-automation/internal/domain"
)

// NotifyChannel is the Postgres channel fired on user_notifications insert.
const NotifyChannel = "user_notification"

const defaultPingInterval = 90 * time.Second

// Listener is the subset of *pq.Listener the bridge drives.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
}

type ViewSource interface {
	GetView(ctx context.Context, id uuid.UUID) (*domain.UserNotificationView, error)
}

type insertEvent struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	NotificationID uuid.UUID `json:"notification_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Bridge relays user_notifications inserts to the per-user topic. It holds no
// business logic and never blocks fan-out.
type Bridge struct {
	listener     Listener
	views        ViewSource
	publisher    Publisher
	logger       *zap.Logger
	pingInterval time.Duration
}

func NewBridge(listener Listener, views ViewSource, publisher Publisher, logger *zap.Logger) *Bridge {
	return &Bridge{
		listener:     listener,
		views:        views,
		publisher:    publisher,
		logger:       logger,
		pingInterval: defaultPingInterval,
	}
}

// Run blocks until ctx is cancelled or the listener is closed.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.listener.Listen(NotifyChannel); err != nil && !errors.Is(err, pq.ErrChannelAlreadyOpen) {
		return fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}
	b.logger.Info("realtime.bridge_started", zap.String("channel", NotifyChannel))

	ticker := time.NewTicker(b.pingInterval)
	defer ticker.Stop()

	notifications := b.listener.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			// The driver sends nil after re-establishing the connection.
			if n == nil {
				b.logger.Info("realtime.bridge_reconnected")
				continue
			}
			b.relay(ctx, n.Extra)
		case <-ticker.C:
			if err := b.listener.Ping(); err != nil {
				b.logger.Warn("realtime.bridge_ping_failed", zap.Error(err))
			}
		}
	}
}

func (b *Bridge) relay(ctx context.Context, payload string) {
	var ev insertEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		b.logger.Error("realtime.bridge_decode_failed", zap.String("payload", payload), zap.Error(err))
		return
	}

	data := json.RawMessage(payload)
	view, err := b.views.GetView(ctx, ev.ID)
	switch {
	case err != nil:
		b.logger.Warn("realtime.bridge_view_failed", zap.String("user_notification_id", ev.ID.String()), zap.Error(err))
	case view != nil:
		if encoded, err := json.Marshal(view); err == nil {
			data = encoded
		}
	}

	msg := Message{Type: MessageNotification, Data: data}
	if err := b.publisher.Publish(ctx, UserTopic(ev.UserID), msg); err != nil {
		b.logger.Error("realtime.bridge_publish_failed",
			zap.String("user_id", ev.UserID.String()),
			zap.Error(err),
		)
	}
}
