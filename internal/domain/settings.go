package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type NonConformityCombination string

const (
	// CombineAny flags when either the percentage or the absolute floor is crossed.
	CombineAny NonConformityCombination = "any"
	// CombineAll requires both to be crossed.
	CombineAll     NonConformityCombination = "all"
	CombinePercent NonConformityCombination = "percent"
	CombineCount   NonConformityCombination = "count"
)

func (c NonConformityCombination) IsValid() bool {
	switch c {
	case CombineAny, CombineAll, CombinePercent, CombineCount:
		return true
	}
	return false
}

type WorkflowAutomationSettings struct {
	DeliverableRecalcCooldownMinutes int                      `json:"deliverableRecalcCooldownMinutes"`
	EvaluationAutoShiftDays          int                      `json:"evaluationAutoShiftDays"`
	NonConformityPercentThreshold    float64                  `json:"nonConformityPercentThreshold"`
	NonConformityAbsoluteFloor       int                      `json:"nonConformityAbsoluteFloor"`
	NonConformityCombination         NonConformityCombination `json:"nonConformityCombination"`
	RevocationAutoTriggerDelayDays   int                      `json:"revocationAutoTriggerDelayDays"`
	RevocationCheckFrequencyHours    int                      `json:"revocationCheckFrequencyHours"`
	RevocationCreatesVote            *bool                    `json:"revocationCreatesVote,omitempty"`
	RevocationVoteDurationDays       int                      `json:"revocationVoteDurationDays"`
	NotifyContributorsOnRevocation   bool                     `json:"notifyContributorsOnRevocation"`
}

func DefaultWorkflowAutomationSettings() WorkflowAutomationSettings {
	createsVote := true
	return WorkflowAutomationSettings{
		DeliverableRecalcCooldownMinutes: 10,
		NonConformityPercentThreshold:    50,
		NonConformityAbsoluteFloor:       1,
		NonConformityCombination:         CombineAny,
		RevocationAutoTriggerDelayDays:   7,
		RevocationCheckFrequencyHours:    24,
		RevocationCreatesVote:            &createsVote,
		RevocationVoteDurationDays:       3,
	}
}

// Normalize fills zero values that have a non-zero default.
func (w WorkflowAutomationSettings) Normalize() WorkflowAutomationSettings {
	if w.DeliverableRecalcCooldownMinutes < 0 {
		w.DeliverableRecalcCooldownMinutes = 0
	}
	if !w.NonConformityCombination.IsValid() {
		w.NonConformityCombination = CombineAny
	}
	if w.RevocationCreatesVote == nil {
		createsVote := true
		w.RevocationCreatesVote = &createsVote
	}
	if w.RevocationVoteDurationDays <= 0 {
		w.RevocationVoteDurationDays = 3
	}
	return w
}

func (w WorkflowAutomationSettings) Cooldown() time.Duration {
	return time.Duration(w.DeliverableRecalcCooldownMinutes) * time.Minute
}

func (w WorkflowAutomationSettings) CreatesVote() bool {
	return w.RevocationCreatesVote == nil || *w.RevocationCreatesVote
}

func (w WorkflowAutomationSettings) Value() (driver.Value, error) {
	return json.Marshal(w)
}

func (w *WorkflowAutomationSettings) Scan(src any) error {
	data, err := jsonbBytes(src)
	if err != nil {
		return err
	}
	out := DefaultWorkflowAutomationSettings()
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
	}
	*w = out.Normalize()
	return nil
}

// JobSchedules maps a job type to its stored schedule.
type JobSchedules map[JobType]JobSchedule

func (s JobSchedules) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

func (s *JobSchedules) Scan(src any) error {
	data, err := jsonbBytes(src)
	if err != nil {
		return err
	}
	out := JobSchedules{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
	}
	*s = out
	return nil
}

type OrganizationSettings struct {
	SchedulingPaused   bool                       `json:"scheduling_paused" db:"scheduling_paused"`
	JobSchedules       JobSchedules               `json:"job_schedules" db:"job_schedules"`
	WorkflowAutomation WorkflowAutomationSettings `json:"workflow_automation" db:"workflow_automation"`
	UpdatedAt          time.Time                  `json:"updated_at" db:"updated_at"`
}

func DefaultOrganizationSettings() *OrganizationSettings {
	return &OrganizationSettings{
		JobSchedules:       JobSchedules{},
		WorkflowAutomation: DefaultWorkflowAutomationSettings(),
	}
}

// Schedule returns the stored schedule for the job or its default.
func (o *OrganizationSettings) Schedule(jobType JobType) JobSchedule {
	if s, ok := o.JobSchedules[jobType]; ok {
		return s
	}
	return DefaultJobSchedule(jobType)
}

func jsonbBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("unsupported jsonb source type")
	}
}
