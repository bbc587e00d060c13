package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"civic-automation/internal/domain"
)

type DeliverableRepository interface {
	// ListOverdue returns pending deliverables of the mandate whose evaluation
	// window closed at or before now.
	ListOverdue(ctx context.Context, mandateID uuid.UUID, now time.Time) ([]domain.Deliverable, error)
	Tally(ctx context.Context, deliverableID uuid.UUID) (domain.EvaluationTally, error)
	// Transition moves the deliverable only if it is still in status from.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.DeliverableStatus, flaggedAt *time.Time) (bool, error)
}

type deliverableRepository struct {
	db *sqlx.DB
}

func NewDeliverableRepository(db *sqlx.DB) DeliverableRepository {
	return &deliverableRepository{db: db}
}

func (r *deliverableRepository) ListOverdue(ctx context.Context, mandateID uuid.UUID, now time.Time) ([]domain.Deliverable, error) {
	var deliverables []domain.Deliverable
	query := `
		SELECT id, mandate_id, label, status, evaluation_deadline_snapshot, non_conformity_flagged_at
		FROM mandate_deliverables
		WHERE mandate_id = $1
			AND status = 'pending'
			AND (evaluation_deadline_snapshot IS NULL OR date_trunc('second', evaluation_deadline_snapshot) <= $2)
		ORDER BY uploaded_at ASC`
	err := r.db.SelectContext(ctx, &deliverables, query, mandateID, now)
	return deliverables, err
}

func (r *deliverableRepository) Tally(ctx context.Context, deliverableID uuid.UUID) (domain.EvaluationTally, error) {
	var tally domain.EvaluationTally
	query := `
		SELECT COUNT(*) AS total,
			COUNT(*) FILTER (WHERE verdict = $2) AS non_compliant
		FROM deliverable_evaluations
		WHERE deliverable_id = $1`
	err := r.db.GetContext(ctx, &tally, query, deliverableID, domain.VerdictNonCompliant)
	return tally, err
}

func (r *deliverableRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.DeliverableStatus, flaggedAt *time.Time) (bool, error) {
	query := `
		UPDATE mandate_deliverables
		SET status = $3,
			non_conformity_flagged_at = COALESCE($4, non_conformity_flagged_at),
			updated_at = NOW()
		WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, flaggedAt)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}
