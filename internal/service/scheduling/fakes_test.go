package scheduling_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"civic-automation/internal/domain"
	"civic-automation/internal/service/scheduling"
)

// memExecRepo mirrors the partial unique index on running executions.
type memExecRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.JobExecution
}

func newMemExecRepo() *memExecRepo {
	return &memExecRepo{rows: make(map[uuid.UUID]domain.JobExecution)}
}

func (r *memExecRepo) TryStart(ctx context.Context, exec *domain.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.JobType == exec.JobType && row.Status == domain.JobStatusRunning {
			return domain.ErrJobAlreadyRunning
		}
	}
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
	}
	exec.Status = domain.JobStatusRunning
	exec.CreatedAt = exec.StartedAt
	r.rows[exec.ID] = *exec
	return nil
}

func (r *memExecRepo) Finish(ctx context.Context, exec *domain.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[exec.ID]
	if !ok || row.Status != domain.JobStatusRunning {
		return domain.ErrExecutionFinished
	}
	r.rows[exec.ID] = *exec
	return nil
}

func (r *memExecRepo) IsRunning(ctx context.Context, jobType domain.JobType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.JobType == jobType && row.Status == domain.JobStatusRunning {
			return true, nil
		}
	}
	return false, nil
}

func (r *memExecRepo) byType(jobType domain.JobType) []domain.JobExecution {
	var out []domain.JobExecution
	for _, row := range r.rows {
		if row.JobType == jobType {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (r *memExecRepo) ListRecent(ctx context.Context, jobType domain.JobType, limit int) ([]domain.JobExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.byType(jobType)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r *memExecRepo) CountByStatus(ctx context.Context, jobType domain.JobType) (map[domain.JobStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[domain.JobStatus]int{}
	for _, row := range r.byType(jobType) {
		counts[row.Status]++
	}
	return counts, nil
}

func (r *memExecRepo) AverageDurationMs(ctx context.Context, jobType domain.JobType) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum, n int64
	for _, row := range r.byType(jobType) {
		if row.DurationMs != nil {
			sum += *row.DurationMs
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / n, nil
}

func (r *memExecRepo) LastCompleted(ctx context.Context, jobType domain.JobType) (*domain.JobExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.byType(jobType) {
		if row.Status != domain.JobStatusRunning {
			last := row
			return &last, nil
		}
	}
	return nil, nil
}

func (r *memExecRepo) FailOrphaned(ctx context.Context, message string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, row := range r.rows {
		if row.Status == domain.JobStatusRunning {
			msg := message
			row.Status = domain.JobStatusFailed
			row.CompletedAt = &at
			row.ErrorMessage = &msg
			r.rows[id] = row
			n++
		}
	}
	return n, nil
}

func (r *memExecRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, row := range r.rows {
		if row.Status != domain.JobStatusRunning && row.StartedAt.Before(before) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *memExecRepo) all() []domain.JobExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.JobExecution, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	return out
}

type memSettingsRepo struct {
	mu       sync.Mutex
	settings domain.OrganizationSettings
}

func newMemSettingsRepo() *memSettingsRepo {
	return &memSettingsRepo{settings: *domain.DefaultOrganizationSettings()}
}

func (r *memSettingsRepo) Get(ctx context.Context) (*domain.OrganizationSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := r.settings
	copied.JobSchedules = domain.JobSchedules{}
	for k, v := range r.settings.JobSchedules {
		copied.JobSchedules[k] = v
	}
	return &copied, nil
}

func (r *memSettingsRepo) SetSchedulingPaused(ctx context.Context, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.SchedulingPaused = paused
	return nil
}

func (r *memSettingsRepo) SetJobSchedule(ctx context.Context, jobType domain.JobType, schedule domain.JobSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.JobSchedules[jobType] = schedule
	return nil
}

func (r *memSettingsRepo) SetWorkflowAutomation(ctx context.Context, settings domain.WorkflowAutomationSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.WorkflowAutomation = settings
	return nil
}

// manualTimers hands armed callbacks to the test instead of a real clock.
type manualTimers struct {
	mu     sync.Mutex
	armed  []*manualTimer
	delays []time.Duration
}

type manualTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (m *manualTimers) AfterFunc(d time.Duration, f func()) scheduling.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{f: f}
	m.armed = append(m.armed, t)
	m.delays = append(m.delays, d)
	return t
}

// FireNext runs the most recently armed live timer synchronously.
func (m *manualTimers) FireNext() bool {
	m.mu.Lock()
	var next *manualTimer
	for i := len(m.armed) - 1; i >= 0; i-- {
		t := m.armed[i]
		t.mu.Lock()
		live := !t.stopped && !t.fired
		if live {
			t.fired = true
		}
		t.mu.Unlock()
		if live {
			next = t
			break
		}
	}
	m.mu.Unlock()

	if next == nil {
		return false
	}
	next.f()
	return true
}

func (m *manualTimers) LastDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.delays) == 0 {
		return 0
	}
	return m.delays[len(m.delays)-1]
}

func (m *manualTimers) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.armed {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}
