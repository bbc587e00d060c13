package notification_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ncobase/ncore/concurrency/worker"

	"civic-automation/internal/domain"
	"civic-automation/internal/service/notification"
)

type pairKey struct {
	notificationID uuid.UUID
	userID         uuid.UUID
}

type memNotificationRepo struct {
	mu     sync.Mutex
	notifs map[uuid.UUID]domain.Notification
	rows   map[uuid.UUID]*domain.UserNotification
	byPair map[pairKey]uuid.UUID
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{
		notifs: make(map[uuid.UUID]domain.Notification),
		rows:   make(map[uuid.UUID]*domain.UserNotification),
		byPair: make(map[pairKey]uuid.UUID),
	}
}

func (r *memNotificationRepo) Create(ctx context.Context, notif *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	notif.CreatedAt = time.Now()
	r.notifs[notif.ID] = *notif
	return nil
}

func (r *memNotificationRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, id := range ids {
		if n, ok := r.notifs[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memNotificationRepo) CreateForUser(ctx context.Context, un *domain.UserNotification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{un.NotificationID, un.UserID}
	if id, ok := r.byPair[key]; ok {
		*un = *r.rows[id]
		return false, nil
	}
	row := *un
	r.rows[un.ID] = &row
	r.byPair[key] = un.ID
	return true, nil
}

func (r *memNotificationRepo) GetUserNotification(ctx context.Context, id uuid.UUID) (*domain.UserNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *memNotificationRepo) GetView(ctx context.Context, id uuid.UUID) (*domain.UserNotificationView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &domain.UserNotificationView{UserNotification: *row, Notification: r.notifs[row.NotificationID]}, nil
}

func (r *memNotificationRepo) FindUserNotification(ctx context.Context, notificationID, userID uuid.UUID) (*domain.UserNotification, error) {
	r.mu.Lock()
	id, ok := r.byPair[pairKey{notificationID, userID}]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.GetUserNotification(ctx, id)
}

func (r *memNotificationRepo) RecordDelivery(ctx context.Context, id uuid.UUID, channel domain.Channel, result domain.ChannelResult, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return errors.New("no such row")
	}
	msg := result.Message
	switch {
	case result.IsSent():
		switch channel {
		case domain.ChannelInApp:
			row.InAppSent, row.InAppSentAt = true, &at
		case domain.ChannelEmail:
			if !row.EmailSent {
				row.EmailSent, row.EmailSentAt, row.EmailError = true, &at, nil
			}
		case domain.ChannelPush:
			if !row.PushSent {
				row.PushSent, row.PushSentAt, row.PushError = true, &at, nil
			}
		}
	case result.IsFailure():
		switch channel {
		case domain.ChannelEmail:
			if !row.EmailSent {
				row.EmailError = &msg
			}
		case domain.ChannelPush:
			if !row.PushSent {
				row.PushError = &msg
			}
		}
	}
	return nil
}

func (r *memNotificationRepo) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, page domain.PageRequest) ([]domain.UserNotificationView, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.UserNotificationView
	for _, row := range r.rows {
		if row.UserID != userID || (unreadOnly && row.Read) {
			continue
		}
		out = append(out, domain.UserNotificationView{UserNotification: *row, Notification: r.notifs[row.NotificationID]})
	}
	return out, int64(len(out)), nil
}

func (r *memNotificationRepo) ListAll(ctx context.Context, page domain.PageRequest) ([]domain.AdminNotificationView, int64, error) {
	return nil, 0, nil
}

func (r *memNotificationRepo) MarkAsRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.UserID != userID || row.Read {
		return false, nil
	}
	now := time.Now()
	row.Read, row.ReadAt = true, &now
	return true, nil
}

func (r *memNotificationRepo) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.UserID == userID && !row.Read {
			row.Read = true
			n++
		}
	}
	return n, nil
}

func (r *memNotificationRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.UserID == userID && !row.Read {
			n++
		}
	}
	return n, nil
}

func (r *memNotificationRepo) rowsFor(notificationID uuid.UUID) []domain.UserNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.UserNotification
	for _, row := range r.rows {
		if row.NotificationID == notificationID {
			out = append(out, *row)
		}
	}
	return out
}

func (r *memNotificationRepo) rowOf(notificationID, userID uuid.UUID) domain.UserNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.rows[r.byPair[pairKey{notificationID, userID}]]
}

type memSettingRepo struct {
	mu       sync.Mutex
	settings map[pairKey]domain.NotificationSetting
	err      error
}

func newMemSettingRepo() *memSettingRepo {
	return &memSettingRepo{settings: make(map[pairKey]domain.NotificationSetting)}
}

func typeKey(userID uuid.UUID, t domain.NotificationType) pairKey {
	return pairKey{notificationID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(t)), userID: userID}
}

func (r *memSettingRepo) Get(ctx context.Context, userID uuid.UUID, notifType domain.NotificationType) (*domain.NotificationSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	s, ok := r.settings[typeKey(userID, notifType)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memSettingRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.NotificationSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.NotificationSetting
	for _, s := range r.settings {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memSettingRepo) Upsert(ctx context.Context, setting *domain.NotificationSetting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[typeKey(setting.UserID, setting.NotificationType)] = *setting
	return nil
}

func (r *memSettingRepo) UpsertMany(ctx context.Context, settings []domain.NotificationSetting) error {
	for i := range settings {
		if err := r.Upsert(ctx, &settings[i]); err != nil {
			return err
		}
	}
	return nil
}

type memUserRepo struct {
	recipients map[uuid.UUID]domain.Recipient
}

func (r *memUserRepo) GetRecipient(ctx context.Context, id uuid.UUID) (*domain.Recipient, error) {
	rc, ok := r.recipients[id]
	if !ok {
		return nil, nil
	}
	return &rc, nil
}

func (r *memUserRepo) GetRecipients(ctx context.Context, ids []uuid.UUID) ([]domain.Recipient, error) {
	var out []domain.Recipient
	for _, id := range ids {
		if rc, ok := r.recipients[id]; ok {
			out = append(out, rc)
		}
	}
	return out, nil
}

type fakeEmail struct {
	mu    sync.Mutex
	sent  map[uuid.UUID][]string
	fails map[uuid.UUID]error
}

func newFakeEmail() *fakeEmail {
	return &fakeEmail{sent: make(map[uuid.UUID][]string), fails: make(map[uuid.UUID]error)}
}

func (e *fakeEmail) SendSingle(ctx context.Context, recipient domain.Recipient, notif domain.Notification, idempotencyKey string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fails[recipient.ID]; err != nil {
		return err
	}
	e.sent[recipient.ID] = append(e.sent[recipient.ID], idempotencyKey)
	return nil
}

func (e *fakeEmail) SendDigest(ctx context.Context, recipient domain.Recipient, notifs []domain.Notification, idempotencyKey string) error {
	return errors.New("digest not expected")
}

func (e *fakeEmail) count(userID uuid.UUID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sent[userID])
}

type fakePush struct {
	mu       sync.Mutex
	payloads map[uuid.UUID][]domain.PushPayload
	panicFor uuid.UUID
}

func newFakePush() *fakePush {
	return &fakePush{payloads: make(map[uuid.UUID][]domain.PushPayload)}
}

func (p *fakePush) PublicKey() string { return "public" }

func (p *fakePush) Subscribe(ctx context.Context, userID uuid.UUID, input domain.PushSubscriptionInput) (*domain.PushSubscription, error) {
	return nil, nil
}

func (p *fakePush) ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]domain.PushSubscription, error) {
	return nil, nil
}

func (p *fakePush) Unsubscribe(ctx context.Context, id, userID uuid.UUID) error { return nil }

func (p *fakePush) Deliver(ctx context.Context, userID uuid.UUID, payload domain.PushPayload, priority domain.NotificationPriority) domain.ChannelResult {
	if userID == p.panicFor {
		panic("push exploded")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads[userID] = append(p.payloads[userID], payload)
	return domain.Sent()
}

func (p *fakePush) count(userID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads[userID])
}

type queued struct {
	userID         uuid.UUID
	notificationID uuid.UUID
	frequency      domain.EmailFrequency
}

type fakeQueue struct {
	mu    sync.Mutex
	items []queued
}

func (q *fakeQueue) Queue(ctx context.Context, recipient domain.Recipient, notificationID uuid.UUID) (time.Time, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, queued{recipient.ID, notificationID, recipient.EmailFrequency})
	return time.Now(), nil
}

func (q *fakeQueue) all() []queued {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queued(nil), q.items...)
}

// rejectingPool refuses every task as if its queue were full.
type rejectingPool struct {
	err error
}

func (p rejectingPool) Submit(task any) error { return p.err }

func (p rejectingPool) Stop(ctx context.Context) {}

func (p rejectingPool) GetMetrics() map[string]int64 { return map[string]int64{} }

// saturatedPool reports a full queue for its first rejections submits and
// then hands tasks to the wrapped pool.
type saturatedPool struct {
	notification.Pool
	rejections atomic.Int32
}

func (p *saturatedPool) Submit(task any) error {
	if p.rejections.Add(-1) >= 0 {
		return worker.ErrQueueFull
	}
	return p.Pool.Submit(task)
}

// blackholePool accepts tasks and never runs them.
type blackholePool struct {
	held atomic.Int64
}

func (p *blackholePool) Submit(task any) error {
	p.held.Add(1)
	return nil
}

func (p *blackholePool) Stop(ctx context.Context) {}

func (p *blackholePool) GetMetrics() map[string]int64 {
	return map[string]int64{"pending_tasks": p.held.Load()}
}
