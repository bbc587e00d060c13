package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"civic-automation/internal/domain"
)

type fakeListener struct {
	ch      chan *pq.Notification
	listens []string
	pings   int
	mu      sync.Mutex
}

func newFakeListener() *fakeListener {
	return &fakeListener{ch: make(chan *pq.Notification, 8)}
}

func (l *fakeListener) Listen(channel string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listens = append(l.listens, channel)
	return nil
}

func (l *fakeListener) NotificationChannel() <-chan *pq.Notification { return l.ch }

func (l *fakeListener) Ping() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pings++
	return nil
}

type fakeViews struct {
	views map[uuid.UUID]*domain.UserNotificationView
	err   error
}

func (v *fakeViews) GetView(_ context.Context, id uuid.UUID) (*domain.UserNotificationView, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.views[id], nil
}

type published struct {
	topic string
	msg   Message
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, msg: msg})
	return nil
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func insertPayload(id, userID uuid.UUID) string {
	return fmt.Sprintf(`{"id":"%s","user_id":"%s","notification_id":"%s","created_at":"2026-10-16T08:00:00Z"}`, id, userID, uuid.New())
}

func runBridge(t *testing.T, b *Bridge) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("bridge did not stop")
		}
	}
}

func TestBridge_RelaysInsertAsView(t *testing.T) {
	listener := newFakeListener()
	publisher := &recordingPublisher{}
	id, userID := uuid.New(), uuid.New()
	view := &domain.UserNotificationView{
		UserNotification: domain.UserNotification{ID: id, UserID: userID},
		Notification:     domain.Notification{Type: domain.NotifCommentAdded},
	}
	bridge := NewBridge(listener, &fakeViews{views: map[uuid.UUID]*domain.UserNotificationView{id: view}}, publisher, zap.NewNop())

	stop := runBridge(t, bridge)
	listener.ch <- nil
	listener.ch <- &pq.Notification{Channel: NotifyChannel, Extra: insertPayload(id, userID)}

	require.Eventually(t, func() bool { return len(publisher.all()) == 1 }, time.Second, 5*time.Millisecond)
	stop()

	got := publisher.all()[0]
	assert.Equal(t, UserTopic(userID), got.topic)
	assert.Equal(t, MessageNotification, got.msg.Type)

	expected, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, string(expected), string(got.msg.Data))
	assert.Equal(t, []string{NotifyChannel}, listener.listens)
}

func TestBridge_FallsBackToRawPayload(t *testing.T) {
	listener := newFakeListener()
	publisher := &recordingPublisher{}
	bridge := NewBridge(listener, &fakeViews{err: errors.New("pool exhausted")}, publisher, zap.NewNop())

	id, userID := uuid.New(), uuid.New()
	payload := insertPayload(id, userID)

	stop := runBridge(t, bridge)
	listener.ch <- &pq.Notification{Channel: NotifyChannel, Extra: "{broken"}
	listener.ch <- &pq.Notification{Channel: NotifyChannel, Extra: payload}

	require.Eventually(t, func() bool { return len(publisher.all()) == 1 }, time.Second, 5*time.Millisecond)
	stop()

	got := publisher.all()[0]
	assert.Equal(t, UserTopic(userID), got.topic)
	assert.JSONEq(t, payload, string(got.msg.Data))
}

func TestBridge_PingsListener(t *testing.T) {
	listener := newFakeListener()
	bridge := NewBridge(listener, &fakeViews{}, &recordingPublisher{}, zap.NewNop())
	bridge.pingInterval = 5 * time.Millisecond

	stop := runBridge(t, bridge)
	require.Eventually(t, func() bool {
		listener.mu.Lock()
		defer listener.mu.Unlock()
		return listener.pings >= 2
	}, time.Second, 5*time.Millisecond)
	stop()
}

func TestBridge_StopsWhenListenerCloses(t *testing.T) {
	listener := newFakeListener()
	bridge := NewBridge(listener, &fakeViews{}, &recordingPublisher{}, zap.NewNop())

	close(listener.ch)
	assert.NoError(t, bridge.Run(context.Background()))
}
