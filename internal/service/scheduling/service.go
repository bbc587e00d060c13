package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"civic-automation/internal/domain"
	"civic-automation/internal/repository"
)

const (
	defaultStatisticsLimit = 10
	// ExecutionRetention is how long finished executions are kept.
	ExecutionRetention = 90 * 24 * time.Hour
	interruptedMessage = "interrupted: process stopped while the job was running"
)

// Service tracks job executions and owns the persisted scheduling configuration.
type Service interface {
	IsJobRunning(ctx context.Context, jobType domain.JobType) (bool, error)
	StartJobExecution(ctx context.Context, jobType domain.JobType, metadata domain.JobMetadata) (*domain.JobExecution, error)
	CompleteJobExecution(ctx context.Context, exec *domain.JobExecution, metadata domain.JobMetadata) error
	FailJobExecution(ctx context.Context, exec *domain.JobExecution, cause error) error

	GetJobStatistics(ctx context.Context, jobType domain.JobType, limit int) (*domain.JobStatistics, error)
	GetAllJobStatistics(ctx context.Context) (*domain.SchedulingOverview, error)

	IsSchedulingPaused(ctx context.Context) (bool, error)
	SetSchedulingPaused(ctx context.Context, paused bool) error
	GetJobSchedule(ctx context.Context, jobType domain.JobType) (domain.JobSchedule, error)
	UpdateJobSchedule(ctx context.Context, jobType domain.JobType, input domain.UpdateJobScheduleInput) (domain.JobSchedule, error)

	RecoverOrphanedExecutions(ctx context.Context) (int64, error)
	CleanupOldExecutions(ctx context.Context, olderThan time.Duration) (int64, error)
}

type service struct {
	execRepo     repository.JobExecutionRepository
	settingsRepo repository.SettingsRepository
	logger       *zap.Logger
	now          func() time.Time
}

func NewService(execRepo repository.JobExecutionRepository, settingsRepo repository.SettingsRepository, logger *zap.Logger) Service {
	return &service{
		execRepo:     execRepo,
		settingsRepo: settingsRepo,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *service) IsJobRunning(ctx context.Context, jobType domain.JobType) (bool, error) {
	if !jobType.IsValid() {
		return false, domain.ErrInvalidJobType
	}
	return s.execRepo.IsRunning(ctx, jobType)
}

// StartJobExecution inserts the running row in a single statement guarded by a
// partial unique index, so two concurrent starts cannot both succeed.
func (s *service) StartJobExecution(ctx context.Context, jobType domain.JobType, metadata domain.JobMetadata) (*domain.JobExecution, error) {
	if !jobType.IsValid() {
		return nil, domain.ErrInvalidJobType
	}
	if metadata == nil {
		metadata = domain.JobMetadata{}
	}

	exec := &domain.JobExecution{
		JobType:   jobType,
		StartedAt: s.now().UTC(),
		Metadata:  metadata,
	}
	if err := s.execRepo.TryStart(ctx, exec); err != nil {
		if errors.Is(err, domain.ErrJobAlreadyRunning) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to start job execution: %w", err)
	}

	s.logger.Info("scheduler.job_started",
		zap.String("job_type", string(jobType)),
		zap.String("execution_id", exec.ID.String()),
	)
	return exec, nil
}

func (s *service) CompleteJobExecution(ctx context.Context, exec *domain.JobExecution, metadata domain.JobMetadata) error {
	if exec.Status.IsTerminal() {
		return domain.ErrExecutionFinished
	}
	merged := domain.JobMetadata{}
	for k, v := range exec.Metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}

	s.finish(exec, domain.JobStatusSucceeded, merged, nil)
	if err := s.execRepo.Finish(ctx, exec); err != nil {
		return fmt.Errorf("failed to complete job execution: %w", err)
	}

	s.logger.Info("scheduler.job_completed",
		zap.String("job_type", string(exec.JobType)),
		zap.String("execution_id", exec.ID.String()),
		zap.Int64("duration_ms", *exec.DurationMs),
	)
	return nil
}

func (s *service) FailJobExecution(ctx context.Context, exec *domain.JobExecution, cause error) error {
	if exec.Status.IsTerminal() {
		return domain.ErrExecutionFinished
	}
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}

	s.finish(exec, domain.JobStatusFailed, exec.Metadata, &message)
	if err := s.execRepo.Finish(ctx, exec); err != nil {
		return fmt.Errorf("failed to record job failure: %w", err)
	}

	s.logger.Error("scheduler.job_failed",
		zap.String("job_type", string(exec.JobType)),
		zap.String("execution_id", exec.ID.String()),
		zap.String("error", message),
	)
	return nil
}

func (s *service) finish(exec *domain.JobExecution, status domain.JobStatus, metadata domain.JobMetadata, errMsg *string) {
	completedAt := s.now().UTC()
	duration := completedAt.Sub(exec.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	exec.Status = status
	exec.CompletedAt = &completedAt
	exec.DurationMs = &duration
	exec.Metadata = metadata
	exec.ErrorMessage = errMsg
}

func (s *service) GetJobStatistics(ctx context.Context, jobType domain.JobType, limit int) (*domain.JobStatistics, error) {
	if !jobType.IsValid() {
		return nil, domain.ErrInvalidJobType
	}
	if limit <= 0 {
		limit = defaultStatisticsLimit
	}

	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	recent, err := s.execRepo.ListRecent(ctx, jobType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	counts, err := s.execRepo.CountByStatus(ctx, jobType)
	if err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}
	avg, err := s.execRepo.AverageDurationMs(ctx, jobType)
	if err != nil {
		return nil, fmt.Errorf("failed to compute average duration: %w", err)
	}
	last, err := s.execRepo.LastCompleted(ctx, jobType)
	if err != nil {
		return nil, fmt.Errorf("failed to load last execution: %w", err)
	}

	if recent == nil {
		recent = []domain.JobExecution{}
	}

	stats := &domain.JobStatistics{
		JobType:           jobType,
		IsRunning:         counts[domain.JobStatusRunning] > 0,
		Schedule:          EffectiveSchedule(settings, jobType),
		SuccessCount:      counts[domain.JobStatusSucceeded],
		FailureCount:      counts[domain.JobStatusFailed],
		AverageDurationMs: avg,
		LastExecution:     last,
		RecentExecutions:  recent,
	}
	stats.TotalExecutions = stats.SuccessCount + stats.FailureCount + counts[domain.JobStatusRunning]

	if last != nil && last.CompletedAt != nil && stats.Schedule.Enabled && !settings.SchedulingPaused {
		if interval := stats.Schedule.Interval(); interval > 0 {
			next := last.CompletedAt.Add(interval)
			stats.NextRunAt = &next
		}
	}

	return stats, nil
}

func (s *service) GetAllJobStatistics(ctx context.Context) (*domain.SchedulingOverview, error) {
	paused, err := s.IsSchedulingPaused(ctx)
	if err != nil {
		return nil, err
	}

	overview := &domain.SchedulingOverview{Paused: paused, Jobs: make([]domain.JobStatistics, 0, len(domain.AllJobTypes))}
	for _, jobType := range domain.AllJobTypes {
		stats, err := s.GetJobStatistics(ctx, jobType, defaultStatisticsLimit)
		if err != nil {
			return nil, err
		}
		overview.Jobs = append(overview.Jobs, *stats)
	}
	return overview, nil
}

func (s *service) IsSchedulingPaused(ctx context.Context) (bool, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings.SchedulingPaused, nil
}

func (s *service) SetSchedulingPaused(ctx context.Context, paused bool) error {
	if err := s.settingsRepo.SetSchedulingPaused(ctx, paused); err != nil {
		return fmt.Errorf("failed to update scheduling pause: %w", err)
	}
	s.logger.Info("scheduler.pause_changed", zap.Bool("paused", paused))
	return nil
}

func (s *service) GetJobSchedule(ctx context.Context, jobType domain.JobType) (domain.JobSchedule, error) {
	if !jobType.IsValid() {
		return domain.JobSchedule{}, domain.ErrInvalidJobType
	}
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return domain.JobSchedule{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return EffectiveSchedule(settings, jobType), nil
}

func (s *service) UpdateJobSchedule(ctx context.Context, jobType domain.JobType, input domain.UpdateJobScheduleInput) (domain.JobSchedule, error) {
	current, err := s.GetJobSchedule(ctx, jobType)
	if err != nil {
		return domain.JobSchedule{}, err
	}

	if input.Enabled != nil {
		current.Enabled = *input.Enabled
	}
	if input.IntervalHours != nil {
		current.IntervalHours = *input.IntervalHours
	}
	if input.IntervalMinutes != nil {
		current.IntervalMinutes = *input.IntervalMinutes
	}

	if err := ValidateSchedule(current); err != nil {
		return domain.JobSchedule{}, err
	}

	if err := s.settingsRepo.SetJobSchedule(ctx, jobType, current); err != nil {
		return domain.JobSchedule{}, fmt.Errorf("failed to save job schedule: %w", err)
	}

	s.logger.Info("scheduler.schedule_updated",
		zap.String("job_type", string(jobType)),
		zap.Bool("enabled", current.Enabled),
		zap.Duration("interval", current.Interval()),
	)
	return current, nil
}

// RecoverOrphanedExecutions fails executions left running by a previous process.
func (s *service) RecoverOrphanedExecutions(ctx context.Context) (int64, error) {
	n, err := s.execRepo.FailOrphaned(ctx, interruptedMessage, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to recover orphaned executions: %w", err)
	}
	if n > 0 {
		s.logger.Warn("scheduler.orphaned_executions_failed", zap.Int64("count", n))
	}
	return n, nil
}

func (s *service) CleanupOldExecutions(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.execRepo.DeleteOlderThan(ctx, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up executions: %w", err)
	}
	return n, nil
}

// EffectiveSchedule resolves the schedule for a job. A schedule stored by an
// admin always wins; the revocation sweep otherwise follows the workflow
// setting revocationCheckFrequencyHours.
func EffectiveSchedule(settings *domain.OrganizationSettings, jobType domain.JobType) domain.JobSchedule {
	if stored, ok := settings.JobSchedules[jobType]; ok {
		return stored
	}
	schedule := domain.DefaultJobSchedule(jobType)
	if jobType == domain.JobRevocationSweep {
		if hours := settings.WorkflowAutomation.RevocationCheckFrequencyHours; hours > 0 {
			schedule.IntervalHours = hours
			schedule.IntervalMinutes = 0
		}
	}
	return schedule
}

func ValidateSchedule(schedule domain.JobSchedule) error {
	if schedule.IntervalHours < 0 || schedule.IntervalMinutes < 0 || schedule.IntervalMinutes > 59 {
		return fmt.Errorf("%w: interval out of range", domain.ErrInvalidSchedule)
	}
	if schedule.Enabled && schedule.Interval() <= 0 {
		return fmt.Errorf("%w: an enabled schedule needs a positive interval", domain.ErrInvalidSchedule)
	}
	return nil
}
