package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic-automation/internal/domain"
	"civic-automation/internal/middleware"
	"civic-automation/internal/service/notification"
	"civic-automation/internal/service/scheduling"
)

type fakeRunner struct {
	running     map[domain.JobType]bool
	rescheduled []domain.JobType
	next        time.Time
}

func (r *fakeRunner) Trigger(_ context.Context, jobType domain.JobType) (*domain.JobExecution, error) {
	if r.running[jobType] {
		return nil, fmt.Errorf("failed to start %s: %w", jobType, domain.ErrJobAlreadyRunning)
	}
	r.running[jobType] = true
	return &domain.JobExecution{ID: uuid.New(), JobType: jobType, Status: domain.JobStatusRunning}, nil
}

func (r *fakeRunner) Reschedule(jobType domain.JobType) {
	r.rescheduled = append(r.rescheduled, jobType)
}

func (r *fakeRunner) NextFire(domain.JobType) (time.Time, bool) {
	return r.next, !r.next.IsZero()
}

func (r *fakeRunner) Overview(context.Context) (*domain.SchedulingOverview, error) {
	return &domain.SchedulingOverview{Jobs: []domain.JobStatistics{{JobType: domain.JobEmailBatch}}}, nil
}

// fakeTracker implements only the calls the admin surface makes.
type fakeTracker struct {
	scheduling.Service
	paused   bool
	schedule domain.JobSchedule
}

func (t *fakeTracker) SetSchedulingPaused(_ context.Context, paused bool) error {
	t.paused = paused
	return nil
}

func (t *fakeTracker) IsSchedulingPaused(context.Context) (bool, error) {
	return t.paused, nil
}

func (t *fakeTracker) GetJobStatistics(_ context.Context, jobType domain.JobType, _ int) (*domain.JobStatistics, error) {
	return &domain.JobStatistics{JobType: jobType, Schedule: t.schedule, RecentExecutions: []domain.JobExecution{}}, nil
}

func (t *fakeTracker) UpdateJobSchedule(_ context.Context, _ domain.JobType, input domain.UpdateJobScheduleInput) (domain.JobSchedule, error) {
	if input.IntervalHours != nil && *input.IntervalHours < 0 {
		return domain.JobSchedule{}, domain.ErrInvalidSchedule
	}
	if input.IntervalHours != nil {
		t.schedule.IntervalHours = *input.IntervalHours
	}
	return t.schedule, nil
}

type fakeNotifications struct {
	notification.Service
	owned map[uuid.UUID]uuid.UUID
}

func (n *fakeNotifications) MarkAsRead(_ context.Context, id, userID uuid.UUID) error {
	if n.owned[id] != userID {
		return domain.ErrNotFound
	}
	return nil
}

func (n *fakeNotifications) PoolMetrics() map[string]int64 {
	return map[string]int64{"pending_tasks": 3}
}

func withUser(userID uuid.UUID, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(middleware.UserIDContextKey, userID)
		c.Locals(middleware.UserRoleContextKey, role)
		return c.Next()
	}
}

func newTestApp(userID uuid.UUID, runner *fakeRunner, tracker *fakeTracker, notifs *fakeNotifications) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Use(withUser(userID, domain.RoleAdmin))

	sh := NewSchedulingHandler(tracker, runner, notifs)
	app.Get("/admin/jobs", sh.Overview)
	app.Get("/admin/jobs/:jobType", sh.GetJobStatistics)
	app.Post("/admin/jobs/:jobType/trigger", sh.Trigger)
	app.Put("/admin/jobs/:jobType/schedule", sh.UpdateSchedule)
	app.Post("/admin/scheduling/pause", sh.Pause)

	nh := NewNotificationHandler(notifs)
	app.Patch("/notifications/:id/read", nh.MarkAsRead)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestSchedulingHandler_Trigger(t *testing.T) {
	runner := &fakeRunner{running: map[domain.JobType]bool{}}
	app := newTestApp(uuid.New(), runner, &fakeTracker{}, &fakeNotifications{})

	status, body := do(t, app, "POST", "/admin/jobs/deadline_sweep/trigger", "")
	assert.Equal(t, fiber.StatusAccepted, status)
	assert.Equal(t, "deadline_sweep", body["job_type"])

	status, body = do(t, app, "POST", "/admin/jobs/deadline_sweep/trigger", "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["code"])

	status, _ = do(t, app, "POST", "/admin/jobs/garbage_collect/trigger", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestSchedulingHandler_UpdateScheduleRearms(t *testing.T) {
	runner := &fakeRunner{running: map[domain.JobType]bool{}}
	tracker := &fakeTracker{schedule: domain.JobSchedule{Enabled: true, IntervalHours: 6}}
	app := newTestApp(uuid.New(), runner, tracker, &fakeNotifications{})

	status, body := do(t, app, "PUT", "/admin/jobs/revocation_sweep/schedule", `{"interval_hours":12}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 12, body["interval_hours"])
	assert.Equal(t, []domain.JobType{domain.JobRevocationSweep}, runner.rescheduled)

	status, _ = do(t, app, "PUT", "/admin/jobs/revocation_sweep/schedule", `{"interval_hours":-1}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Len(t, runner.rescheduled, 1)
}

func TestSchedulingHandler_OverviewIncludesDeliveryPool(t *testing.T) {
	app := newTestApp(uuid.New(), &fakeRunner{}, &fakeTracker{}, &fakeNotifications{})

	status, body := do(t, app, "GET", "/admin/jobs", "")
	require.Equal(t, fiber.StatusOK, status)
	delivery, ok := body["delivery"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, delivery["pending_tasks"])
}

func TestSchedulingHandler_Pause(t *testing.T) {
	tracker := &fakeTracker{}
	app := newTestApp(uuid.New(), &fakeRunner{}, tracker, &fakeNotifications{})

	status, body := do(t, app, "POST", "/admin/scheduling/pause", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["paused"])
	assert.True(t, tracker.paused)
}

func TestSchedulingHandler_JobStatisticsNextRun(t *testing.T) {
	next := time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)
	runner := &fakeRunner{next: next}
	tracker := &fakeTracker{schedule: domain.JobSchedule{Enabled: true, IntervalHours: 6}}
	app := newTestApp(uuid.New(), runner, tracker, &fakeNotifications{})

	status, body := do(t, app, "GET", "/admin/jobs/deadline_sweep", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, next.Format(time.RFC3339), body["next_run_at"])

	tracker.paused = true
	status, body = do(t, app, "GET", "/admin/jobs/deadline_sweep", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.NotContains(t, body, "next_run_at")

	tracker.paused = false
	tracker.schedule.Enabled = false
	_, body = do(t, app, "GET", "/admin/jobs/deadline_sweep", "")
	assert.NotContains(t, body, "next_run_at")
}

func TestNotificationHandler_MarkAsRead(t *testing.T) {
	userID, mine, theirs := uuid.New(), uuid.New(), uuid.New()
	notifs := &fakeNotifications{owned: map[uuid.UUID]uuid.UUID{mine: userID, theirs: uuid.New()}}
	app := newTestApp(userID, &fakeRunner{}, &fakeTracker{}, notifs)

	status, _ := do(t, app, "PATCH", "/notifications/"+mine.String()+"/read", "")
	assert.Equal(t, fiber.StatusNoContent, status)

	status, body := do(t, app, "PATCH", "/notifications/"+theirs.String()+"/read", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["code"])

	status, _ = do(t, app, "PATCH", "/notifications/not-a-uuid/read", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}
