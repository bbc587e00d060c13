package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobEmailBatch        JobType = "email_batch"
	JobDeadlineSweep     JobType = "deadline_sweep"
	JobRevocationSweep   JobType = "revocation_sweep"
	JobDeadlineReminders JobType = "deadline_reminders"
)

// AllJobTypes is the fixed set of jobs the scheduler arms.
var AllJobTypes = []JobType{
	JobEmailBatch,
	JobDeadlineSweep,
	JobRevocationSweep,
	JobDeadlineReminders,
}

func (t JobType) IsValid() bool {
	for _, jt := range AllJobTypes {
		if jt == t {
			return true
		}
	}
	return false
}

type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// JobMetadata is stored as jsonb.
type JobMetadata map[string]any

func (m JobMetadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *JobMetadata) Scan(src any) error {
	if src == nil {
		*m = JobMetadata{}
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for job metadata")
	}

	out := JobMetadata{}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

type JobExecution struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	JobType      JobType     `json:"job_type" db:"job_type"`
	Status       JobStatus   `json:"status" db:"status"`
	StartedAt    time.Time   `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs   *int64      `json:"duration_ms,omitempty" db:"duration_ms"`
	Metadata     JobMetadata `json:"metadata" db:"metadata"`
	ErrorMessage *string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

type JobSchedule struct {
	Enabled         bool `json:"enabled"`
	IntervalHours   int  `json:"interval_hours"`
	IntervalMinutes int  `json:"interval_minutes"`
}

func (s JobSchedule) Interval() time.Duration {
	return time.Duration(s.IntervalHours)*time.Hour + time.Duration(s.IntervalMinutes)*time.Minute
}

type UpdateJobScheduleInput struct {
	Enabled         *bool `json:"enabled,omitempty"`
	IntervalHours   *int  `json:"interval_hours,omitempty"`
	IntervalMinutes *int  `json:"interval_minutes,omitempty"`
}

// DefaultJobSchedule is used when no schedule has been stored for the job.
func DefaultJobSchedule(jobType JobType) JobSchedule {
	switch jobType {
	case JobEmailBatch:
		return JobSchedule{Enabled: true, IntervalHours: 1}
	case JobDeadlineSweep:
		return JobSchedule{Enabled: true, IntervalHours: 6}
	case JobRevocationSweep:
		return JobSchedule{Enabled: true, IntervalHours: 24}
	case JobDeadlineReminders:
		return JobSchedule{Enabled: true, IntervalHours: 12}
	default:
		return JobSchedule{Enabled: false}
	}
}

type JobStatistics struct {
	JobType           JobType        `json:"job_type"`
	IsRunning         bool           `json:"is_running"`
	Schedule          JobSchedule    `json:"schedule"`
	TotalExecutions   int            `json:"total_executions"`
	SuccessCount      int            `json:"success_count"`
	FailureCount      int            `json:"failure_count"`
	AverageDurationMs int64          `json:"average_duration_ms"`
	LastExecution     *JobExecution  `json:"last_execution,omitempty"`
	NextRunAt         *time.Time     `json:"next_run_at,omitempty"`
	RecentExecutions  []JobExecution `json:"recent_executions"`
}

type SchedulingOverview struct {
	Paused   bool             `json:"paused"`
	Jobs     []JobStatistics  `json:"jobs"`
	Delivery map[string]int64 `json:"delivery,omitempty"`
}
