package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"civic-automation/internal/domain"
)

type PushSubscriptionRepository interface {
	// Upsert registers the endpoint for the user, reactivating a deactivated row.
	Upsert(ctx context.Context, sub *domain.PushSubscription) error
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.PushSubscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.PushSubscription, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

type pushSubscriptionRepository struct {
	db *sqlx.DB
}

func NewPushSubscriptionRepository(db *sqlx.DB) PushSubscriptionRepository {
	return &pushSubscriptionRepository{db: db}
}

const pushSubscriptionColumns = `id, user_id, endpoint, p256dh_key, auth_key, user_agent, active, last_used_at, created_at, updated_at`

func (r *pushSubscriptionRepository) Upsert(ctx context.Context, sub *domain.PushSubscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	query := `
		INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh_key, auth_key, user_agent, active)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		ON CONFLICT (user_id, endpoint) DO UPDATE
		SET p256dh_key = EXCLUDED.p256dh_key,
			auth_key = EXCLUDED.auth_key,
			user_agent = EXCLUDED.user_agent,
			active = true,
			updated_at = NOW()
		RETURNING ` + pushSubscriptionColumns

	return r.db.QueryRowxContext(ctx, query,
		sub.ID, sub.UserID, sub.Endpoint, sub.P256dhKey, sub.AuthKey, sub.UserAgent,
	).StructScan(sub)
}

func (r *pushSubscriptionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.PushSubscription, error) {
	var subs []domain.PushSubscription
	query := `SELECT ` + pushSubscriptionColumns + ` FROM push_subscriptions WHERE user_id = $1 AND active = true ORDER BY created_at`
	err := r.db.SelectContext(ctx, &subs, query, userID)
	return subs, err
}

func (r *pushSubscriptionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.PushSubscription, error) {
	var subs []domain.PushSubscription
	query := `SELECT ` + pushSubscriptionColumns + ` FROM push_subscriptions WHERE user_id = $1 ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &subs, query, userID)
	return subs, err
}

func (r *pushSubscriptionRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE push_subscriptions SET active = false, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *pushSubscriptionRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE push_subscriptions SET last_used_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, at)
	return err
}

func (r *pushSubscriptionRepository) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	query := `DELETE FROM push_subscriptions WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}
