package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/ncobase/ncore/concurrency/worker"
	"go.uber.org/zap"

	"civic-automation/internal/config"
	"civic-automation/internal/domain"
	"civic-automation/internal/pkg/i18n"
	"civic-automation/internal/repository"
	"civic-automation/internal/service/email"
	"civic-automation/internal/service/push"
)

var ErrClosed = errors.New("notification engine is closed")

const defaultPushURL = "/notifications"

// Pool runs channel deliveries in the background.
type Pool interface {
	Submit(task any) error
	Stop(ctx context.Context)
	GetMetrics() map[string]int64
}

// NewDeliveryPool starts the worker pool used for channel deliveries.
func NewDeliveryPool(cfg *config.Config) *worker.Pool {
	pool := worker.NewPool(&worker.Config{
		MaxWorkers:  cfg.DeliveryWorkers,
		QueueSize:   cfg.DeliveryQueueSize,
		TaskTimeout: cfg.DeliveryTaskTimeout,
	})
	pool.Start()
	return pool
}

// EmailQueue defers an email to the next send window of the recipient.
type EmailQueue interface {
	Queue(ctx context.Context, recipient domain.Recipient, notificationID uuid.UUID) (time.Time, error)
}

type Service interface {
	// Notify persists the event, creates one delivery row per recipient and
	// starts the enabled channels without waiting for them.
	Notify(ctx context.Context, event Event, resolve RecipientResolver) (*Dispatch, error)

	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page domain.PageRequest) (domain.Page[domain.UserNotificationView], error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	ListAll(ctx context.Context, page domain.PageRequest) (domain.Page[domain.AdminNotificationView], error)

	PoolMetrics() map[string]int64
	// Close stops accepting work and drains queued deliveries until ctx ends.
	Close(ctx context.Context)
}

type service struct {
	notifRepo   repository.NotificationRepository
	settingRepo repository.NotificationSettingRepository
	userRepo    repository.UserRepository
	emailSvc    email.Service
	pushSvc     push.Service
	emailQueue  EmailQueue
	pool        Pool
	taskTimeout time.Duration
	submitWait  time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.RWMutex
	closed    bool
	abandoned chan struct{}
}

func NewService(
	notifRepo repository.NotificationRepository,
	settingRepo repository.NotificationSettingRepository,
	userRepo repository.UserRepository,
	emailSvc email.Service,
	pushSvc push.Service,
	emailQueue EmailQueue,
	pool Pool,
	cfg *config.Config,
	logger *zap.Logger,
) Service {
	return &service{
		notifRepo:   notifRepo,
		settingRepo: settingRepo,
		userRepo:    userRepo,
		emailSvc:    emailSvc,
		pushSvc:     pushSvc,
		emailQueue:  emailQueue,
		pool:        pool,
		taskTimeout: cfg.DeliveryTaskTimeout,
		submitWait:  cfg.DeliverySubmitWait,
		logger:      logger,
		now:         time.Now,
		abandoned:   make(chan struct{}),
	}
}

func (s *service) Notify(ctx context.Context, event Event, resolve RecipientResolver) (*Dispatch, error) {
	if !event.Type.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidNotifType, event.Type)
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	notif := event.notification()
	if err := s.notifRepo.Create(ctx, notif); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	dispatch := newDispatch(notif, s.abandoned)
	defer dispatch.seal()

	ids, err := resolve(ctx)
	if err != nil {
		return dispatch, fmt.Errorf("failed to resolve recipients: %w", err)
	}

	type pending struct {
		row     domain.UserNotification
		setting domain.NotificationSetting
	}
	var rows []pending
	for _, userID := range uniqueRecipients(ids) {
		setting := s.settingFor(ctx, userID, notif.Type)

		un := &domain.UserNotification{
			ID:             uuid.New(),
			UserID:         userID,
			NotificationID: notif.ID,
		}
		if _, err := s.notifRepo.CreateForUser(ctx, un); err != nil {
			s.logger.Error("notification.recipient_failed",
				zap.String("notification_id", notif.ID.String()),
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
			continue
		}
		dispatch.Deliveries = append(dispatch.Deliveries, *un)
		rows = append(rows, pending{row: *un, setting: setting})
	}

	// Every row is stored before any channel runs so live pushes can resolve it.
	for _, p := range rows {
		for _, ch := range []domain.Channel{domain.ChannelInApp, domain.ChannelEmail, domain.ChannelPush} {
			un := p.row
			switch {
			case !p.setting.Enabled(ch):
				dispatch.record(un.ID, ch, domain.Skipped("disabled by user"))
			case un.Channels()[ch].IsSent():
				dispatch.record(un.ID, ch, domain.Sent())
			case ch == domain.ChannelInApp:
				s.finish(ctx, dispatch, un, ch, domain.Sent())
			default:
				s.submit(ctx, dispatch, un, ch)
			}
		}
	}

	s.logger.Info("notification.created",
		zap.String("notification_id", notif.ID.String()),
		zap.String("type", string(notif.Type)),
		zap.Int("recipients", len(dispatch.Deliveries)),
	)
	return dispatch, nil
}

// settingFor falls back to in-app only when preferences cannot be read.
func (s *service) settingFor(ctx context.Context, userID uuid.UUID, notifType domain.NotificationType) domain.NotificationSetting {
	setting, err := s.settingRepo.Get(ctx, userID, notifType)
	if err != nil {
		s.logger.Warn("notification.settings_unavailable", zap.String("user_id", userID.String()), zap.Error(err))
		return domain.NotificationSetting{UserID: userID, NotificationType: notifType, InAppEnabled: true}
	}
	if setting == nil {
		return domain.DefaultNotificationSetting(userID, notifType)
	}
	return *setting
}

func (s *service) submit(ctx context.Context, d *Dispatch, un domain.UserNotification, ch domain.Channel) {
	taskCtx := context.WithoutCancel(ctx)
	d.add()

	task := func() error {
		defer d.release()
		ctx, cancel := context.WithTimeout(taskCtx, s.taskTimeout)
		defer cancel()

		result := s.runChannel(ctx, d.Notification, un, ch)
		s.finish(ctx, d, un, ch, result)
		if result.IsFailure() {
			return errors.New(result.Message)
		}
		return nil
	}

	err := s.enqueue(taskCtx, task)
	if err == nil {
		return
	}

	defer d.release()
	s.logger.Warn("notification.submit_failed",
		zap.String("user_notification_id", un.ID.String()),
		zap.String("channel", string(ch)),
		zap.Error(err),
	)
	result := domain.Failed(err)
	if ch == domain.ChannelEmail && s.deferEmail(taskCtx, un) {
		result = domain.Queued()
	}
	s.finish(taskCtx, d, un, ch, result)
}

// enqueue retries a full delivery queue with backoff for up to submitWait.
func (s *service) enqueue(ctx context.Context, task func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond

	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if s.submitWait > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(s.submitWait))
	} else {
		opts = append(opts, backoff.WithMaxTries(1))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.closed {
			return struct{}{}, backoff.Permanent(ErrClosed)
		}
		err := s.pool.Submit(task)
		if err != nil && !errors.Is(err, worker.ErrQueueFull) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, opts...)
	return err
}

// runChannel converts a panic into a failed result.
func (s *service) runChannel(ctx context.Context, notif *domain.Notification, un domain.UserNotification, ch domain.Channel) (result domain.ChannelResult) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.Failed(fmt.Errorf("panic: %v", r))
		}
	}()

	switch ch {
	case domain.ChannelEmail:
		return s.deliverEmail(ctx, notif, un)
	case domain.ChannelPush:
		return s.deliverPush(ctx, notif, un)
	}
	return domain.Skipped("unknown channel")
}

func (s *service) finish(ctx context.Context, d *Dispatch, un domain.UserNotification, ch domain.Channel, result domain.ChannelResult) {
	d.record(un.ID, ch, result)
	if err := s.notifRepo.RecordDelivery(ctx, un.ID, ch, result, s.now().UTC()); err != nil {
		s.logger.Error("notification.record_failed",
			zap.String("user_notification_id", un.ID.String()),
			zap.String("channel", string(ch)),
			zap.Error(err),
		)
	}
	if result.IsFailure() {
		s.logger.Warn("notification.delivery_failed",
			zap.String("user_notification_id", un.ID.String()),
			zap.String("channel", string(ch)),
			zap.String("error", result.Message),
		)
	}
}

func (s *service) deliverEmail(ctx context.Context, notif *domain.Notification, un domain.UserNotification) domain.ChannelResult {
	recipient, err := s.userRepo.GetRecipient(ctx, un.UserID)
	if err != nil {
		return domain.Failed(fmt.Errorf("failed to load recipient: %w", err))
	}
	if recipient == nil {
		return domain.Skipped("recipient not found")
	}
	if recipient.Email == "" {
		return domain.Skipped("no email address")
	}

	if recipient.EmailFrequency.IsValid() && recipient.EmailFrequency != domain.EmailInstant {
		if _, err := s.emailQueue.Queue(ctx, *recipient, notif.ID); err != nil {
			return domain.Failed(fmt.Errorf("failed to queue email: %w", err))
		}
		return domain.Queued()
	}

	if err := s.emailSvc.SendSingle(ctx, *recipient, *notif, un.ID.String()); err != nil {
		instant := *recipient
		instant.EmailFrequency = domain.EmailInstant
		if _, qerr := s.emailQueue.Queue(ctx, instant, notif.ID); qerr != nil {
			s.logger.Error("notification.email_retry_queue_failed", zap.String("user_notification_id", un.ID.String()), zap.Error(qerr))
		}
		return domain.Failed(err)
	}
	return domain.Sent()
}

// deferEmail hands an email that could not be scheduled to the batch sweep
// and reports whether it was queued.
func (s *service) deferEmail(ctx context.Context, un domain.UserNotification) bool {
	recipient, err := s.userRepo.GetRecipient(ctx, un.UserID)
	if err != nil || recipient == nil || recipient.Email == "" {
		return false
	}
	if _, err := s.emailQueue.Queue(ctx, *recipient, un.NotificationID); err != nil {
		s.logger.Error("notification.email_defer_failed", zap.String("user_notification_id", un.ID.String()), zap.Error(err))
		return false
	}
	return true
}

func (s *service) deliverPush(ctx context.Context, notif *domain.Notification, un domain.UserNotification) domain.ChannelResult {
	locale := i18n.DefaultLocale
	if recipient, err := s.userRepo.GetRecipient(ctx, un.UserID); err == nil && recipient != nil && recipient.Locale != "" {
		locale = recipient.Locale
	}

	url := defaultPushURL
	if notif.ActionURL != nil && *notif.ActionURL != "" {
		url = *notif.ActionURL
	}

	payload := domain.PushPayload{
		Title: i18n.T(locale, notif.TitleKey, notif.InterpolationData),
		Body:  i18n.T(locale, notif.BodyKey, notif.InterpolationData),
		Icon:  "/icons/icon-192.png",
		Badge: "/icons/badge-72.png",
		Data: domain.PushPayloadData{
			URL:                url,
			NotificationID:     notif.ID,
			UserNotificationID: un.ID,
		},
	}
	return s.pushSvc.Deliver(ctx, un.UserID, payload, notif.Priority)
}

func (s *service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page domain.PageRequest) (domain.Page[domain.UserNotificationView], error) {
	page = page.Normalize()
	views, total, err := s.notifRepo.ListByUser(ctx, userID, unreadOnly, page)
	if err != nil {
		return domain.Page[domain.UserNotificationView]{}, fmt.Errorf("failed to list notifications: %w", err)
	}
	return domain.NewPage(views, page, total), nil
}

func (s *service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.notifRepo.CountUnread(ctx, userID)
}

func (s *service) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	updated, err := s.notifRepo.MarkAsRead(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	if !updated {
		return domain.ErrNotFound
	}
	return nil
}

func (s *service) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.notifRepo.MarkAllAsRead(ctx, userID)
}

func (s *service) ListAll(ctx context.Context, page domain.PageRequest) (domain.Page[domain.AdminNotificationView], error) {
	page = page.Normalize()
	views, total, err := s.notifRepo.ListAll(ctx, page)
	if err != nil {
		return domain.Page[domain.AdminNotificationView]{}, fmt.Errorf("failed to list notifications: %w", err)
	}
	return domain.NewPage(views, page, total), nil
}

func (s *service) PoolMetrics() map[string]int64 {
	return s.pool.GetMetrics()
}

func (s *service) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *service) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		m := s.pool.GetMetrics()
		if m["pending_tasks"] == 0 && m["active_workers"] == 0 {
			break
		}
		select {
		case <-ctx.Done():
			s.logger.Warn("notification.drain_incomplete", zap.Int64("pending_tasks", m["pending_tasks"]))
			close(s.abandoned)
			s.pool.Stop(ctx)
			return
		case <-ticker.C:
		}
	}
	s.pool.Stop(ctx)
}
