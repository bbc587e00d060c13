package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"civic-automation/internal/domain"
)

type UserRepository interface {
	GetRecipient(ctx context.Context, id uuid.UUID) (*domain.Recipient, error)
	GetRecipients(ctx context.Context, ids []uuid.UUID) ([]domain.Recipient, error)
}

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

const recipientColumns = `id, email, username, COALESCE(locale, 'en') AS locale, COALESCE(email_frequency, 'instant') AS email_frequency`

func (r *userRepository) GetRecipient(ctx context.Context, id uuid.UUID) (*domain.Recipient, error) {
	var recipient domain.Recipient
	query := `SELECT ` + recipientColumns + ` FROM users WHERE id = $1`
	err := r.db.GetContext(ctx, &recipient, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &recipient, nil
}

func (r *userRepository) GetRecipients(ctx context.Context, ids []uuid.UUID) ([]domain.Recipient, error) {
	if len(ids) == 0 {
		return []domain.Recipient{}, nil
	}

	var recipients []domain.Recipient
	query := `SELECT ` + recipientColumns + ` FROM users WHERE id = ANY($1::uuid[])`
	err := r.db.SelectContext(ctx, &recipients, query, pq.Array(uuidStrings(ids)))
	return recipients, err
}
