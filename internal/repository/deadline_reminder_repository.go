package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"civic-automation/internal/domain"
)

type DeadlineReminderRepository interface {
	// Claim records the reminder and reports false when it was already recorded.
	Claim(ctx context.Context, reminder *domain.DeadlineReminderSent) (bool, error)
	Release(ctx context.Context, id uuid.UUID) error
}

type deadlineReminderRepository struct {
	db *sqlx.DB
}

func NewDeadlineReminderRepository(db *sqlx.DB) DeadlineReminderRepository {
	return &deadlineReminderRepository{db: db}
}

func (r *deadlineReminderRepository) Claim(ctx context.Context, reminder *domain.DeadlineReminderSent) (bool, error) {
	if reminder.ID == uuid.Nil {
		reminder.ID = uuid.New()
	}

	query := `
		INSERT INTO deadline_reminders_sent (id, proposition_id, reminder_type, deadline_type, deadline_at, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
		RETURNING id`

	var id uuid.UUID
	err := r.db.QueryRowxContext(ctx, query,
		reminder.ID, reminder.PropositionID, reminder.ReminderType, reminder.DeadlineType,
		reminder.DeadlineAt, reminder.SentAt,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *deadlineReminderRepository) Release(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM deadline_reminders_sent WHERE id = $1`, id)
	return err
}
