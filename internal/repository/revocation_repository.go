package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"civic-automation/internal/domain"
)

type RevocationRepository interface {
	// OpenForMandate creates a pending revocation request, and the revocation
	// vote when requested, in one transaction. It returns
	// domain.ErrRevocationAlreadyOpen if another request is still open.
	OpenForMandate(ctx context.Context, input domain.OpenRevocationInput) (*domain.MandateRevocationRequest, error)
}

type revocationRepository struct {
	db *sqlx.DB
}

func NewRevocationRepository(db *sqlx.DB) RevocationRepository {
	return &revocationRepository{db: db}
}

func (r *revocationRepository) OpenForMandate(ctx context.Context, input domain.OpenRevocationInput) (*domain.MandateRevocationRequest, error) {
	c := input.Candidate

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked uuid.UUID
	if err := tx.GetContext(ctx, &locked, `SELECT id FROM proposition_mandates WHERE id = $1 FOR UPDATE`, c.MandateID); err != nil {
		return nil, fmt.Errorf("failed to lock mandate: %w", err)
	}

	var open bool
	openQuery := `
		SELECT EXISTS(
			SELECT 1 FROM mandate_revocation_requests
			WHERE mandate_id = $1 AND status IN ('pending', 'voting')
		)`
	if err := tx.GetContext(ctx, &open, openQuery, c.MandateID); err != nil {
		return nil, fmt.Errorf("failed to check open requests: %w", err)
	}
	if open {
		return nil, domain.ErrRevocationAlreadyOpen
	}

	request := &domain.MandateRevocationRequest{
		ID:                uuid.New(),
		MandateID:         c.MandateID,
		InitiatedByUserID: input.InitiatorID,
		Reason:            input.Reason,
		Status:            domain.RevocationPending,
	}

	if input.CreateVote {
		voteID, err := createRevocationVote(ctx, tx, input)
		if err != nil {
			return nil, err
		}
		request.VoteID = &voteID
	}

	insertQuery := `
		INSERT INTO mandate_revocation_requests (id, mandate_id, initiated_by_user_id, reason, status, vote_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`
	if err := tx.QueryRowxContext(ctx, insertQuery,
		request.ID, request.MandateID, request.InitiatedByUserID, request.Reason,
		request.Status, request.VoteID, input.Now,
	).Scan(&request.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create revocation request: %w", err)
	}

	escalateQuery := `
		UPDATE mandate_deliverables
		SET status = 'escalated', updated_at = NOW()
		WHERE mandate_id = $1 AND status = 'non_conform'`
	if _, err := tx.ExecContext(ctx, escalateQuery, c.MandateID); err != nil {
		return nil, fmt.Errorf("failed to escalate deliverables: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit revocation: %w", err)
	}
	return request, nil
}

type revocationVoteMetadata struct {
	Source        string    `json:"source"`
	MandateID     uuid.UUID `json:"mandateId"`
	DeliverableID uuid.UUID `json:"deliverableId"`
}

type voteOptionMetadata struct {
	Key string `json:"key"`
}

func createRevocationVote(ctx context.Context, tx *sqlx.Tx, input domain.OpenRevocationInput) (uuid.UUID, error) {
	c := input.Candidate
	voteID := uuid.New()

	metadata, err := json.Marshal(revocationVoteMetadata{
		Source:        "automation",
		MandateID:     c.MandateID,
		DeliverableID: c.DeliverableID,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode vote metadata: %w", err)
	}

	voteQuery := `
		INSERT INTO proposition_votes (id, proposition_id, phase, method, title, description, open_at, close_at, status, metadata)
		VALUES ($1, $2, 'revocation', 'binary', $3, $4, $5, $6, 'scheduled', $7)`
	if _, err := tx.ExecContext(ctx, voteQuery,
		voteID, c.PropositionID,
		fmt.Sprintf("Revocation of mandate %s", c.MandateTitle),
		fmt.Sprintf("Automatic vote after non-conformity of deliverable %s", c.DeliverableID),
		input.Now, input.Now.Add(input.VoteDuration), metadata,
	); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create revocation vote: %w", err)
	}

	optionQuery := `
		INSERT INTO vote_options (id, vote_id, label, position, metadata)
		VALUES ($1, $2, $3, $4, $5)`
	options := []struct {
		label string
		key   string
	}{
		{"Revoke the mandate", "revoke"},
		{"Keep the mandate", "keep"},
	}
	for i, opt := range options {
		meta, err := json.Marshal(voteOptionMetadata{Key: opt.key})
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to encode vote option metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, optionQuery, uuid.New(), voteID, opt.label, i, meta); err != nil {
			return uuid.Nil, fmt.Errorf("failed to create vote option: %w", err)
		}
	}

	return voteID, nil
}
