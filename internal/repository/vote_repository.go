package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"civic-automation/internal/domain"
)

type VoteRepository interface {
	// ListOpenClosingBetween returns open votes closing inside [from, to] with
	// their ballot count and the proposition's required participation.
	ListOpenClosingBetween(ctx context.Context, from, to time.Time) ([]domain.ClosingVote, error)
	// ListOpenOrUpcoming returns open votes and scheduled votes opening inside [now, until].
	ListOpenOrUpcoming(ctx context.Context, now, until time.Time) ([]domain.VoteSummary, error)
	CountEligibleVoters(ctx context.Context) (int, error)
	EligibleVoters(ctx context.Context) ([]uuid.UUID, error)
	// EligibleNonVoters returns enabled users without a ballot on the vote.
	EligibleNonVoters(ctx context.Context, voteID uuid.UUID) ([]uuid.UUID, error)
}

type voteRepository struct {
	db *sqlx.DB
}

func NewVoteRepository(db *sqlx.DB) VoteRepository {
	return &voteRepository{db: db}
}

func (r *voteRepository) ListOpenClosingBetween(ctx context.Context, from, to time.Time) ([]domain.ClosingVote, error) {
	var votes []domain.ClosingVote
	query := `
		SELECT v.id, v.proposition_id, p.title AS proposition_title, v.title, v.close_at,
			(SELECT COUNT(*) FROM vote_ballots b WHERE b.vote_id = v.id) AS ballots,
			NULLIF(p.settings_snapshot->>'requiredParticipation', '')::float8 AS required_participation
		FROM proposition_votes v
		JOIN propositions p ON p.id = v.proposition_id
		WHERE v.status = $1 AND v.close_at BETWEEN $2 AND $3
		ORDER BY v.close_at, v.id`
	err := r.db.SelectContext(ctx, &votes, query, domain.VoteOpen, from, to)
	return votes, err
}

func (r *voteRepository) ListOpenOrUpcoming(ctx context.Context, now, until time.Time) ([]domain.VoteSummary, error) {
	var votes []domain.VoteSummary
	query := `
		SELECT v.id, v.proposition_id, COALESCE(p.title, '') AS proposition_title, v.title,
			v.status, v.open_at, v.close_at
		FROM proposition_votes v
		LEFT JOIN propositions p ON p.id = v.proposition_id
		WHERE v.status = $1
			OR (v.status = $2 AND v.open_at BETWEEN $3 AND $4)
		ORDER BY v.close_at ASC NULLS LAST, v.id`
	err := r.db.SelectContext(ctx, &votes, query, domain.VoteOpen, domain.VoteScheduled, now, until)
	return votes, err
}

func (r *voteRepository) CountEligibleVoters(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users WHERE enabled = true`)
	return count, err
}

func (r *voteRepository) EligibleVoters(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM users WHERE enabled = true ORDER BY id`)
	return ids, err
}

func (r *voteRepository) EligibleNonVoters(ctx context.Context, voteID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `
		SELECT u.id FROM users u
		WHERE u.enabled = true
			AND NOT EXISTS (
				SELECT 1 FROM vote_ballots b WHERE b.vote_id = $1 AND b.voter_id = u.id
			)
		ORDER BY u.id`
	err := r.db.SelectContext(ctx, &ids, query, voteID)
	return ids, err
}
