package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"civic-automation/internal/domain"
)

type JobExecutionRepository interface {
	// TryStart inserts a running execution unless one is already open for the job type.
	TryStart(ctx context.Context, exec *domain.JobExecution) error
	Finish(ctx context.Context, exec *domain.JobExecution) error
	IsRunning(ctx context.Context, jobType domain.JobType) (bool, error)
	ListRecent(ctx context.Context, jobType domain.JobType, limit int) ([]domain.JobExecution, error)
	CountByStatus(ctx context.Context, jobType domain.JobType) (map[domain.JobStatus]int, error)
	AverageDurationMs(ctx context.Context, jobType domain.JobType) (int64, error)
	LastCompleted(ctx context.Context, jobType domain.JobType) (*domain.JobExecution, error)
	FailOrphaned(ctx context.Context, message string, at time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type jobExecutionRepository struct {
	db *sqlx.DB
}

func NewJobExecutionRepository(db *sqlx.DB) JobExecutionRepository {
	return &jobExecutionRepository{db: db}
}

func (r *jobExecutionRepository) TryStart(ctx context.Context, exec *domain.JobExecution) error {
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
	}
	exec.Status = domain.JobStatusRunning

	query := `
		INSERT INTO job_executions (id, job_type, status, started_at, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_type) WHERE status = 'running' DO NOTHING
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		exec.ID, exec.JobType, exec.Status, exec.StartedAt, exec.Metadata,
	).Scan(&exec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrJobAlreadyRunning
	}
	return err
}

func (r *jobExecutionRepository) Finish(ctx context.Context, exec *domain.JobExecution) error {
	query := `
		UPDATE job_executions
		SET status = $2, completed_at = $3, duration_ms = $4, metadata = $5, error_message = $6
		WHERE id = $1 AND status = 'running'`

	result, err := r.db.ExecContext(ctx, query,
		exec.ID, exec.Status, exec.CompletedAt, exec.DurationMs, exec.Metadata, exec.ErrorMessage,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrExecutionFinished
	}
	return nil
}

func (r *jobExecutionRepository) IsRunning(ctx context.Context, jobType domain.JobType) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM job_executions WHERE job_type = $1 AND status = 'running')`
	err := r.db.GetContext(ctx, &exists, query, jobType)
	return exists, err
}

func (r *jobExecutionRepository) ListRecent(ctx context.Context, jobType domain.JobType, limit int) ([]domain.JobExecution, error) {
	var executions []domain.JobExecution
	query := `
		SELECT * FROM job_executions
		WHERE job_type = $1
		ORDER BY started_at DESC
		LIMIT $2`
	err := r.db.SelectContext(ctx, &executions, query, jobType, limit)
	return executions, err
}

func (r *jobExecutionRepository) CountByStatus(ctx context.Context, jobType domain.JobType) (map[domain.JobStatus]int, error) {
	var rows []struct {
		Status domain.JobStatus `db:"status"`
		Count  int              `db:"count"`
	}
	query := `SELECT status, COUNT(*) AS count FROM job_executions WHERE job_type = $1 GROUP BY status`
	if err := r.db.SelectContext(ctx, &rows, query, jobType); err != nil {
		return nil, err
	}

	counts := make(map[domain.JobStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *jobExecutionRepository) AverageDurationMs(ctx context.Context, jobType domain.JobType) (int64, error) {
	var avg sql.NullFloat64
	query := `SELECT AVG(duration_ms) FROM job_executions WHERE job_type = $1 AND duration_ms IS NOT NULL`
	if err := r.db.GetContext(ctx, &avg, query, jobType); err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, nil
	}
	return int64(avg.Float64), nil
}

func (r *jobExecutionRepository) LastCompleted(ctx context.Context, jobType domain.JobType) (*domain.JobExecution, error) {
	var exec domain.JobExecution
	query := `
		SELECT * FROM job_executions
		WHERE job_type = $1 AND status <> 'running'
		ORDER BY completed_at DESC
		LIMIT 1`
	err := r.db.GetContext(ctx, &exec, query, jobType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

func (r *jobExecutionRepository) FailOrphaned(ctx context.Context, message string, at time.Time) (int64, error) {
	query := `
		UPDATE job_executions
		SET status = 'failed', completed_at = $2,
			duration_ms = (EXTRACT(EPOCH FROM ($2 - started_at)) * 1000)::bigint,
			error_message = $1
		WHERE status = 'running'`

	result, err := r.db.ExecContext(ctx, query, message, at)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *jobExecutionRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM job_executions WHERE status <> 'running' AND started_at < $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
