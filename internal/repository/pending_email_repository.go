package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"civic-automation/internal/domain"
)

type PendingEmailRepository interface {
	Enqueue(ctx context.Context, userID, notificationID uuid.UUID, scheduledFor time.Time) error
	// ListDue returns unsent rows scheduled at or before now, grouped by user.
	// maxAttempts <= 0 disables the attempt cap.
	ListDue(ctx context.Context, now time.Time, maxAttempts int) ([]domain.PendingEmailNotification, error)
	MarkSent(ctx context.Context, ids []uuid.UUID, at time.Time) error
	RecordFailure(ctx context.Context, ids []uuid.UUID, message string) error
	DeleteSentBefore(ctx context.Context, before time.Time) (int64, error)
}

type pendingEmailRepository struct {
	db *sqlx.DB
}

func NewPendingEmailRepository(db *sqlx.DB) PendingEmailRepository {
	return &pendingEmailRepository{db: db}
}

func (r *pendingEmailRepository) Enqueue(ctx context.Context, userID, notificationID uuid.UUID, scheduledFor time.Time) error {
	query := `
		INSERT INTO pending_email_notifications (id, user_id, notification_id, scheduled_for)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, notification_id) DO UPDATE
		SET scheduled_for = LEAST(pending_email_notifications.scheduled_for, EXCLUDED.scheduled_for)
		WHERE pending_email_notifications.sent = false`
	_, err := r.db.ExecContext(ctx, query, uuid.New(), userID, notificationID, scheduledFor)
	return err
}

func (r *pendingEmailRepository) ListDue(ctx context.Context, now time.Time, maxAttempts int) ([]domain.PendingEmailNotification, error) {
	var rows []domain.PendingEmailNotification
	query := `
		SELECT id, user_id, notification_id, sent, scheduled_for, sent_at, attempts, last_error, created_at
		FROM pending_email_notifications
		WHERE sent = false AND scheduled_for <= $1 AND ($2 <= 0 OR attempts < $2)
		ORDER BY user_id, scheduled_for ASC, created_at ASC`
	err := r.db.SelectContext(ctx, &rows, query, now, maxAttempts)
	return rows, err
}

func (r *pendingEmailRepository) MarkSent(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE pending_email_notifications
		SET sent = true, sent_at = $2, last_error = NULL
		WHERE id = ANY($1::uuid[]) AND sent = false`
	_, err := r.db.ExecContext(ctx, query, pq.Array(uuidStrings(ids)), at)
	return err
}

func (r *pendingEmailRepository) RecordFailure(ctx context.Context, ids []uuid.UUID, message string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE pending_email_notifications
		SET attempts = attempts + 1, last_error = $2
		WHERE id = ANY($1::uuid[]) AND sent = false`
	_, err := r.db.ExecContext(ctx, query, pq.Array(uuidStrings(ids)), truncate(message, maxErrorLength))
	return err
}

func (r *pendingEmailRepository) DeleteSentBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM pending_email_notifications WHERE sent = true AND sent_at < $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
