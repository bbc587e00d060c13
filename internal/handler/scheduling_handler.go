package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"civic-automation/internal/domain"
	"civic-automation/internal/middleware"
	"civic-automation/internal/service/scheduling"
)

// JobRunner is the part of the scheduler the admin surface drives.
type JobRunner interface {
	Trigger(ctx context.Context, jobType domain.JobType) (*domain.JobExecution, error)
	Reschedule(jobType domain.JobType)
	NextFire(jobType domain.JobType) (time.Time, bool)
	Overview(ctx context.Context) (*domain.SchedulingOverview, error)
}

type PoolStats interface {
	PoolMetrics() map[string]int64
}

type SchedulingHandler struct {
	tracker  scheduling.Service
	runner   JobRunner
	delivery PoolStats
}

func NewSchedulingHandler(tracker scheduling.Service, runner JobRunner, delivery PoolStats) *SchedulingHandler {
	return &SchedulingHandler{tracker: tracker, runner: runner, delivery: delivery}
}

func jobTypeParam(c *fiber.Ctx) (domain.JobType, error) {
	jobType := domain.JobType(c.Params("jobType"))
	if !jobType.IsValid() {
		return "", middleware.BadRequest("Invalid job type")
	}
	return jobType, nil
}

func (h *SchedulingHandler) Overview(c *fiber.Ctx) error {
	overview, err := h.runner.Overview(c.Context())
	if err != nil {
		return err
	}
	overview.Delivery = h.delivery.PoolMetrics()

	return c.Status(fiber.StatusOK).JSON(overview)
}

func (h *SchedulingHandler) GetJobStatistics(c *fiber.Ctx) error {
	jobType, err := jobTypeParam(c)
	if err != nil {
		return err
	}

	stats, err := h.tracker.GetJobStatistics(c.Context(), jobType, c.QueryInt("limit", 10))
	if err != nil {
		return err
	}
	paused, err := h.tracker.IsSchedulingPaused(c.Context())
	if err != nil {
		return err
	}
	// A paused scheduler has no next run even though its timers stay armed.
	if next, ok := h.runner.NextFire(jobType); ok && stats.Schedule.Enabled && !paused {
		stats.NextRunAt = &next
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}

func (h *SchedulingHandler) Trigger(c *fiber.Ctx) error {
	jobType, err := jobTypeParam(c)
	if err != nil {
		return err
	}

	exec, err := h.runner.Trigger(c.Context(), jobType)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(exec)
}

func (h *SchedulingHandler) UpdateSchedule(c *fiber.Ctx) error {
	jobType, err := jobTypeParam(c)
	if err != nil {
		return err
	}

	var input domain.UpdateJobScheduleInput
	if err := c.BodyParser(&input); err != nil {
		return middleware.BadRequest("Invalid request body")
	}

	schedule, err := h.tracker.UpdateJobSchedule(c.Context(), jobType, input)
	if err != nil {
		return err
	}
	h.runner.Reschedule(jobType)

	return c.Status(fiber.StatusOK).JSON(schedule)
}

func (h *SchedulingHandler) Pause(c *fiber.Ctx) error {
	return h.setPaused(c, true)
}

func (h *SchedulingHandler) Resume(c *fiber.Ctx) error {
	return h.setPaused(c, false)
}

func (h *SchedulingHandler) setPaused(c *fiber.Ctx, paused bool) error {
	if err := h.tracker.SetSchedulingPaused(c.Context(), paused); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"paused": paused,
	})
}
