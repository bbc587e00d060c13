package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"civic-automation/internal/domain"
)

type SettingsRepository interface {
	Get(ctx context.Context) (*domain.OrganizationSettings, error)
	SetSchedulingPaused(ctx context.Context, paused bool) error
	SetJobSchedule(ctx context.Context, jobType domain.JobType, schedule domain.JobSchedule) error
	SetWorkflowAutomation(ctx context.Context, settings domain.WorkflowAutomationSettings) error
}

type settingsRepository struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

// Get returns the singleton organization row, or defaults when none was saved.
func (r *settingsRepository) Get(ctx context.Context) (*domain.OrganizationSettings, error) {
	var settings domain.OrganizationSettings
	query := `
		SELECT scheduling_paused, job_schedules, workflow_automation, updated_at
		FROM organization_settings
		WHERE id = 1`
	err := r.db.GetContext(ctx, &settings, query)
	if err == sql.ErrNoRows {
		return domain.DefaultOrganizationSettings(), nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *settingsRepository) SetSchedulingPaused(ctx context.Context, paused bool) error {
	query := `
		INSERT INTO organization_settings (id, scheduling_paused)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET scheduling_paused = EXCLUDED.scheduling_paused, updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query, paused)
	return err
}

func (r *settingsRepository) SetJobSchedule(ctx context.Context, jobType domain.JobType, schedule domain.JobSchedule) error {
	patch := domain.JobSchedules{jobType: schedule}
	query := `
		INSERT INTO organization_settings (id, job_schedules)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE
		SET job_schedules = organization_settings.job_schedules || EXCLUDED.job_schedules, updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query, patch)
	return err
}

func (r *settingsRepository) SetWorkflowAutomation(ctx context.Context, settings domain.WorkflowAutomationSettings) error {
	query := `
		INSERT INTO organization_settings (id, workflow_automation)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET workflow_automation = EXCLUDED.workflow_automation, updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query, settings)
	return err
}
