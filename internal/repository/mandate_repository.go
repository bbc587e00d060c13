package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"civic-automation/internal/domain"
)

type MandateRepository interface {
	// ListElapsed returns open mandates whose deadline, at second precision, is
	// at or before now.
	ListElapsed(ctx context.Context, now time.Time) ([]domain.Mandate, error)
	// CompleteAutomationRun stamps the run time and shifts the deadline by shiftDays.
	CompleteAutomationRun(ctx context.Context, id uuid.UUID, runAt time.Time, shiftDays int) error
	// ListRevocationCandidates returns mandates with a non-conformity flagged at
	// or before flaggedBefore and no open revocation request.
	ListRevocationCandidates(ctx context.Context, flaggedBefore time.Time) ([]domain.RevocationCandidate, error)
}

type mandateRepository struct {
	db *sqlx.DB
}

func NewMandateRepository(db *sqlx.DB) MandateRepository {
	return &mandateRepository{db: db}
}

func (r *mandateRepository) ListElapsed(ctx context.Context, now time.Time) ([]domain.Mandate, error) {
	var mandates []domain.Mandate
	query := `
		SELECT m.id, m.proposition_id, p.title AS proposition_title, m.title, m.holder_user_id,
			p.creator_id AS initiator_id,
			m.status, m.current_deadline, m.last_automation_run_at
		FROM proposition_mandates m
		JOIN propositions p ON p.id = m.proposition_id
		WHERE m.current_deadline IS NOT NULL
			AND date_trunc('second', m.current_deadline) <= $1
			AND m.status = ANY($2)
		ORDER BY m.current_deadline ASC, m.id`
	err := r.db.SelectContext(ctx, &mandates, query, now, pq.Array(domain.OpenMandateStatuses))
	return mandates, err
}

func (r *mandateRepository) CompleteAutomationRun(ctx context.Context, id uuid.UUID, runAt time.Time, shiftDays int) error {
	query := `
		UPDATE proposition_mandates
		SET last_automation_run_at = $2,
			current_deadline = CASE WHEN $3::int > 0
				THEN current_deadline + make_interval(days => $3::int)
				ELSE current_deadline END,
			updated_at = NOW()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, runAt, shiftDays)
	return err
}

func (r *mandateRepository) ListRevocationCandidates(ctx context.Context, flaggedBefore time.Time) ([]domain.RevocationCandidate, error) {
	var candidates []domain.RevocationCandidate
	query := `
		SELECT DISTINCT ON (m.id)
			m.id AS mandate_id, m.proposition_id, p.title AS proposition_title,
			m.title AS mandate_title, m.holder_user_id,
			p.creator_id AS initiator_id, d.id AS deliverable_id,
			d.non_conformity_flagged_at AS oldest_flagged_at
		FROM mandate_deliverables d
		JOIN proposition_mandates m ON m.id = d.mandate_id
		JOIN propositions p ON p.id = m.proposition_id
		WHERE d.status = 'non_conform'
			AND d.non_conformity_flagged_at IS NOT NULL
			AND d.non_conformity_flagged_at <= $1
			AND m.status <> 'revoked'
			AND NOT EXISTS (
				SELECT 1 FROM mandate_revocation_requests rr
				WHERE rr.mandate_id = m.id AND rr.status IN ('pending', 'voting')
			)
		ORDER BY m.id, d.non_conformity_flagged_at ASC`
	err := r.db.SelectContext(ctx, &candidates, query, flaggedBefore)
	return candidates, err
}
