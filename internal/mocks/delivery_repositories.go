package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"civic-automation/internal/domain"
)

type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) GetRecipient(ctx context.Context, id uuid.UUID) (*domain.Recipient, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Recipient), args.Error(1)
}

func (m *UserRepository) GetRecipients(ctx context.Context, ids []uuid.UUID) ([]domain.Recipient, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]domain.Recipient), args.Error(1)
}

type PushSubscriptionRepository struct {
	mock.Mock
}

func (m *PushSubscriptionRepository) Upsert(ctx context.Context, sub *domain.PushSubscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *PushSubscriptionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.PushSubscription, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.PushSubscription), args.Error(1)
}

func (m *PushSubscriptionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.PushSubscription, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.PushSubscription), args.Error(1)
}

func (m *PushSubscriptionRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *PushSubscriptionRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *PushSubscriptionRepository) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, id, userID)
	return args.Bool(0), args.Error(1)
}

type PendingEmailRepository struct {
	mock.Mock
}

func (m *PendingEmailRepository) Enqueue(ctx context.Context, userID, notificationID uuid.UUID, scheduledFor time.Time) error {
	args := m.Called(ctx, userID, notificationID, scheduledFor)
	return args.Error(0)
}

func (m *PendingEmailRepository) ListDue(ctx context.Context, now time.Time, maxAttempts int) ([]domain.PendingEmailNotification, error) {
	args := m.Called(ctx, now, maxAttempts)
	return args.Get(0).([]domain.PendingEmailNotification), args.Error(1)
}

func (m *PendingEmailRepository) MarkSent(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	args := m.Called(ctx, ids, at)
	return args.Error(0)
}

func (m *PendingEmailRepository) RecordFailure(ctx context.Context, ids []uuid.UUID, message string) error {
	args := m.Called(ctx, ids, message)
	return args.Error(0)
}

func (m *PendingEmailRepository) DeleteSentBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type DeadlineReminderRepository struct {
	mock.Mock
}

func (m *DeadlineReminderRepository) Claim(ctx context.Context, reminder *domain.DeadlineReminderSent) (bool, error) {
	args := m.Called(ctx, reminder)
	return args.Bool(0), args.Error(1)
}

func (m *DeadlineReminderRepository) Release(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type NotificationSettingRepository struct {
	mock.Mock
}

func (m *NotificationSettingRepository) Get(ctx context.Context, userID uuid.UUID, notifType domain.NotificationType) (*domain.NotificationSetting, error) {
	args := m.Called(ctx, userID, notifType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.NotificationSetting), args.Error(1)
}

func (m *NotificationSettingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.NotificationSetting, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.NotificationSetting), args.Error(1)
}

func (m *NotificationSettingRepository) Upsert(ctx context.Context, setting *domain.NotificationSetting) error {
	args := m.Called(ctx, setting)
	return args.Error(0)
}

func (m *NotificationSettingRepository) UpsertMany(ctx context.Context, settings []domain.NotificationSetting) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

type NotificationRepository struct {
	mock.Mock
}

func (m *NotificationRepository) Create(ctx context.Context, notif *domain.Notification) error {
	args := m.Called(ctx, notif)
	return args.Error(0)
}

func (m *NotificationRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Notification, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]domain.Notification), args.Error(1)
}

func (m *NotificationRepository) CreateForUser(ctx context.Context, un *domain.UserNotification) (bool, error) {
	args := m.Called(ctx, un)
	return args.Bool(0), args.Error(1)
}

func (m *NotificationRepository) GetUserNotification(ctx context.Context, id uuid.UUID) (*domain.UserNotification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserNotification), args.Error(1)
}

func (m *NotificationRepository) GetView(ctx context.Context, id uuid.UUID) (*domain.UserNotificationView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserNotificationView), args.Error(1)
}

func (m *NotificationRepository) FindUserNotification(ctx context.Context, notificationID, userID uuid.UUID) (*domain.UserNotification, error) {
	args := m.Called(ctx, notificationID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserNotification), args.Error(1)
}

func (m *NotificationRepository) RecordDelivery(ctx context.Context, id uuid.UUID, channel domain.Channel, result domain.ChannelResult, at time.Time) error {
	args := m.Called(ctx, id, channel, result, at)
	return args.Error(0)
}

func (m *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, page domain.PageRequest) ([]domain.UserNotificationView, int64, error) {
	args := m.Called(ctx, userID, unreadOnly, page)
	return args.Get(0).([]domain.UserNotificationView), args.Get(1).(int64), args.Error(2)
}

func (m *NotificationRepository) ListAll(ctx context.Context, page domain.PageRequest) ([]domain.AdminNotificationView, int64, error) {
	args := m.Called(ctx, page)
	return args.Get(0).([]domain.AdminNotificationView), args.Get(1).(int64), args.Error(2)
}

func (m *NotificationRepository) MarkAsRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, id, userID)
	return args.Bool(0), args.Error(1)
}

func (m *NotificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
