package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"civic-automation/internal/domain"
)

type PropositionRepository interface {
	// ListWithDeadlinesBetween returns propositions having at least one tracked
	// deadline inside [from, to].
	ListWithDeadlinesBetween(ctx context.Context, from, to time.Time) ([]domain.PropositionDeadlines, error)
	// Contributors returns the creator, rescue initiators, mandate holders,
	// commenters and voters of a proposition.
	Contributors(ctx context.Context, propositionID uuid.UUID) ([]uuid.UUID, error)
	// Initiators returns the creator and rescue initiators of a proposition.
	Initiators(ctx context.Context, propositionID uuid.UUID) ([]uuid.UUID, error)
}

type propositionRepository struct {
	db *sqlx.DB
}

func NewPropositionRepository(db *sqlx.DB) PropositionRepository {
	return &propositionRepository{db: db}
}

func (r *propositionRepository) ListWithDeadlinesBetween(ctx context.Context, from, to time.Time) ([]domain.PropositionDeadlines, error) {
	var propositions []domain.PropositionDeadlines
	query := `
		SELECT id, title, creator_id, clarification_deadline, amendment_deadline,
			vote_deadline, mandate_deadline, evaluation_deadline
		FROM propositions
		WHERE clarification_deadline BETWEEN $1 AND $2
			OR amendment_deadline BETWEEN $1 AND $2
			OR vote_deadline BETWEEN $1 AND $2
			OR mandate_deadline BETWEEN $1 AND $2
			OR evaluation_deadline BETWEEN $1 AND $2
		ORDER BY id`
	err := r.db.SelectContext(ctx, &propositions, query, from, to)
	return propositions, err
}

func (r *propositionRepository) Contributors(ctx context.Context, propositionID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `
		SELECT creator_id FROM propositions WHERE id = $1
		UNION
		SELECT user_id FROM proposition_rescue_initiators WHERE proposition_id = $1
		UNION
		SELECT holder_user_id FROM proposition_mandates WHERE proposition_id = $1 AND holder_user_id IS NOT NULL
		UNION
		SELECT author_id FROM proposition_comments WHERE proposition_id = $1
		UNION
		SELECT b.voter_id FROM vote_ballots b
		JOIN proposition_votes v ON v.id = b.vote_id
		WHERE v.proposition_id = $1`
	err := r.db.SelectContext(ctx, &ids, query, propositionID)
	return ids, err
}

func (r *propositionRepository) Initiators(ctx context.Context, propositionID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `
		SELECT creator_id FROM propositions WHERE id = $1
		UNION
		SELECT user_id FROM proposition_rescue_initiators WHERE proposition_id = $1`
	err := r.db.SelectContext(ctx, &ids, query, propositionID)
	return ids, err
}
