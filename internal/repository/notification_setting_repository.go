package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"civic-automation/internal/domain"
)

type NotificationSettingRepository interface {
	// Get returns nil when the user never stored a setting for the type.
	Get(ctx context.Context, userID uuid.UUID, notifType domain.NotificationType) (*domain.NotificationSetting, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.NotificationSetting, error)
	Upsert(ctx context.Context, setting *domain.NotificationSetting) error
	UpsertMany(ctx context.Context, settings []domain.NotificationSetting) error
}

type notificationSettingRepository struct {
	db *sqlx.DB
}

func NewNotificationSettingRepository(db *sqlx.DB) NotificationSettingRepository {
	return &notificationSettingRepository{db: db}
}

const upsertSettingQuery = `
	INSERT INTO notification_settings (user_id, notification_type, in_app_enabled, email_enabled, push_enabled)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id, notification_type) DO UPDATE
	SET in_app_enabled = EXCLUDED.in_app_enabled,
		email_enabled = EXCLUDED.email_enabled,
		push_enabled = EXCLUDED.push_enabled,
		updated_at = NOW()
	RETURNING updated_at`

func (r *notificationSettingRepository) Get(ctx context.Context, userID uuid.UUID, notifType domain.NotificationType) (*domain.NotificationSetting, error) {
	var setting domain.NotificationSetting
	query := `
		SELECT user_id, notification_type, in_app_enabled, email_enabled, push_enabled, updated_at
		FROM notification_settings
		WHERE user_id = $1 AND notification_type = $2`
	err := r.db.GetContext(ctx, &setting, query, userID, notifType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *notificationSettingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.NotificationSetting, error) {
	var settings []domain.NotificationSetting
	query := `
		SELECT user_id, notification_type, in_app_enabled, email_enabled, push_enabled, updated_at
		FROM notification_settings
		WHERE user_id = $1
		ORDER BY notification_type`
	err := r.db.SelectContext(ctx, &settings, query, userID)
	return settings, err
}

func (r *notificationSettingRepository) Upsert(ctx context.Context, s *domain.NotificationSetting) error {
	return r.db.QueryRowxContext(ctx, upsertSettingQuery,
		s.UserID, s.NotificationType, s.InAppEnabled, s.EmailEnabled, s.PushEnabled,
	).Scan(&s.UpdatedAt)
}

func (r *notificationSettingRepository) UpsertMany(ctx context.Context, settings []domain.NotificationSetting) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range settings {
		s := &settings[i]
		if err := tx.QueryRowxContext(ctx, upsertSettingQuery,
			s.UserID, s.NotificationType, s.InAppEnabled, s.EmailEnabled, s.PushEnabled,
		).Scan(&s.UpdatedAt); err != nil {
			return fmt.Errorf("failed to upsert setting %s: %w", s.NotificationType, err)
		}
	}

	return tx.Commit()
}
