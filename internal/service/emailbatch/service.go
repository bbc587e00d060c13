package emailbatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"civic-automation/internal/domain"
	"civic-automation/internal/repository"
	"civic-automation/internal/service/email"
)

// SentRetention is how long delivered queue rows are kept.
const SentRetention = 30 * 24 * time.Hour

const digestHour = 9

// ScheduledFor returns the send window of an email queued at now.
func ScheduledFor(freq domain.EmailFrequency, now time.Time) time.Time {
	y, m, d := now.Date()
	loc := now.Location()
	switch freq {
	case domain.EmailHourly:
		return time.Date(y, m, d, now.Hour()+1, 0, 0, 0, loc)
	case domain.EmailDaily:
		return time.Date(y, m, d+1, digestHour, 0, 0, 0, loc)
	case domain.EmailWeekly:
		days := (8 - int(now.Weekday())) % 7
		if days == 0 {
			days = 7
		}
		return time.Date(y, m, d+days, digestHour, 0, 0, 0, loc)
	default:
		return now
	}
}

type Service interface {
	// Queue stores an email for the recipient's next send window.
	Queue(ctx context.Context, recipient domain.Recipient, notificationID uuid.UUID) (time.Time, error)
	// Run sends every due email, one message per user.
	Run(ctx context.Context) (domain.JobMetadata, error)
}

type service struct {
	pendingRepo repository.PendingEmailRepository
	userRepo    repository.UserRepository
	notifRepo   repository.NotificationRepository
	emailSvc    email.Service
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(
	pendingRepo repository.PendingEmailRepository,
	userRepo repository.UserRepository,
	notifRepo repository.NotificationRepository,
	emailSvc email.Service,
	maxAttempts int,
	logger *zap.Logger,
) Service {
	return &service{
		pendingRepo: pendingRepo,
		userRepo:    userRepo,
		notifRepo:   notifRepo,
		emailSvc:    emailSvc,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *service) Queue(ctx context.Context, recipient domain.Recipient, notificationID uuid.UUID) (time.Time, error) {
	at := ScheduledFor(recipient.EmailFrequency, s.now())
	if err := s.pendingRepo.Enqueue(ctx, recipient.ID, notificationID, at); err != nil {
		return time.Time{}, fmt.Errorf("failed to queue email: %w", err)
	}
	return at, nil
}

type userBatch struct {
	userID uuid.UUID
	rows   []domain.PendingEmailNotification
}

func (s *service) Run(ctx context.Context) (domain.JobMetadata, error) {
	now := s.now().UTC()

	due, err := s.pendingRepo.ListDue(ctx, now, s.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to list due emails: %w", err)
	}

	batches := groupByUser(due)
	var sent, failed int
	if len(batches) > 0 {
		recipients, notifs, err := s.load(ctx, batches, due)
		if err != nil {
			return nil, err
		}
		for _, b := range batches {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if s.deliver(ctx, b, recipients, notifs, now) {
				sent += len(b.rows)
			} else {
				failed += len(b.rows)
			}
		}
	}

	purged, err := s.pendingRepo.DeleteSentBefore(ctx, now.Add(-SentRetention))
	if err != nil {
		s.logger.Warn("emailbatch.purge_failed", zap.Error(err))
	}

	return domain.JobMetadata{
		"users":  len(batches),
		"sent":   sent,
		"failed": failed,
		"purged": purged,
	}, nil
}

func (s *service) load(ctx context.Context, batches []userBatch, due []domain.PendingEmailNotification) (map[uuid.UUID]domain.Recipient, map[uuid.UUID]domain.Notification, error) {
	userIDs := make([]uuid.UUID, 0, len(batches))
	for _, b := range batches {
		userIDs = append(userIDs, b.userID)
	}
	users, err := s.userRepo.GetRecipients(ctx, userIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load recipients: %w", err)
	}
	recipients := make(map[uuid.UUID]domain.Recipient, len(users))
	for _, u := range users {
		recipients[u.ID] = u
	}

	seen := make(map[uuid.UUID]struct{}, len(due))
	notifIDs := make([]uuid.UUID, 0, len(due))
	for _, row := range due {
		if _, ok := seen[row.NotificationID]; !ok {
			seen[row.NotificationID] = struct{}{}
			notifIDs = append(notifIDs, row.NotificationID)
		}
	}
	list, err := s.notifRepo.GetByIDs(ctx, notifIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	notifs := make(map[uuid.UUID]domain.Notification, len(list))
	for _, n := range list {
		notifs[n.ID] = n
	}
	return recipients, notifs, nil
}

// deliver sends one user's batch and reports whether the provider accepted it.
// Queue rows are marked sent only after that acknowledgement.
func (s *service) deliver(ctx context.Context, b userBatch, recipients map[uuid.UUID]domain.Recipient, notifs map[uuid.UUID]domain.Notification, now time.Time) bool {
	ids := make([]uuid.UUID, 0, len(b.rows))
	batch := make([]domain.Notification, 0, len(b.rows))
	for _, row := range b.rows {
		ids = append(ids, row.ID)
		if n, ok := notifs[row.NotificationID]; ok {
			batch = append(batch, n)
		}
	}

	recipient, ok := recipients[b.userID]
	var sendErr error
	switch {
	case !ok:
		sendErr = errors.New("recipient not found")
	case len(batch) == 0:
		sendErr = errors.New("notifications no longer exist")
	default:
		sendErr = s.emailSvc.SendDigest(ctx, recipient, batch, s.idempotencyKey(ctx, b))
	}

	if sendErr != nil {
		s.logger.Warn("emailbatch.send_failed",
			zap.String("user_id", b.userID.String()),
			zap.Int("emails", len(b.rows)),
			zap.Error(sendErr),
		)
		if err := s.pendingRepo.RecordFailure(ctx, ids, sendErr.Error()); err != nil {
			s.logger.Error("emailbatch.record_failure_failed", zap.Error(err))
		}
		s.recordDelivery(ctx, b, domain.Failed(sendErr), now)
		return false
	}

	if err := s.pendingRepo.MarkSent(ctx, ids, now); err != nil {
		s.logger.Error("emailbatch.mark_sent_failed", zap.String("user_id", b.userID.String()), zap.Error(err))
	}
	s.recordDelivery(ctx, b, domain.Sent(), now)
	return true
}

// idempotencyKey is the delivery row id for a single email, matching the key of
// an instant send, and a hash of the queue row ids for a digest.
func (s *service) idempotencyKey(ctx context.Context, b userBatch) string {
	if len(b.rows) == 1 {
		row := b.rows[0]
		if un, err := s.notifRepo.FindUserNotification(ctx, row.NotificationID, row.UserID); err == nil && un != nil {
			return un.ID.String()
		}
		return row.ID.String()
	}
	ids := make([]string, 0, len(b.rows))
	for _, row := range b.rows {
		ids = append(ids, row.ID.String())
	}
	sort.Strings(ids)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(ids, ","))).String()
}

func (s *service) recordDelivery(ctx context.Context, b userBatch, result domain.ChannelResult, at time.Time) {
	for _, row := range b.rows {
		un, err := s.notifRepo.FindUserNotification(ctx, row.NotificationID, row.UserID)
		if err != nil || un == nil {
			continue
		}
		if err := s.notifRepo.RecordDelivery(ctx, un.ID, domain.ChannelEmail, result, at); err != nil {
			s.logger.Warn("emailbatch.record_delivery_failed", zap.String("user_notification_id", un.ID.String()), zap.Error(err))
		}
	}
}

func groupByUser(rows []domain.PendingEmailNotification) []userBatch {
	index := make(map[uuid.UUID]int)
	var batches []userBatch
	for _, row := range rows {
		i, ok := index[row.UserID]
		if !ok {
			i = len(batches)
			index[row.UserID] = i
			batches = append(batches, userBatch{userID: row.UserID})
		}
		batches[i].rows = append(batches[i].rows, row)
	}
	return batches
}
