package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"civic-automation/internal/domain"
	"civic-automation/internal/middleware"
	"civic-automation/internal/realtime"
	"civic-automation/internal/service"
)

type Handlers struct {
	Scheduling           *SchedulingHandler
	Notification         *NotificationHandler
	NotificationSettings *NotificationSettingsHandler
	Push                 *PushHandler
	Stream               *StreamHandler
}

func NewHandlers(services *service.Services, hub *realtime.Hub) *Handlers {
	return &Handlers{
		Scheduling:           NewSchedulingHandler(services.Scheduling, services.Scheduler, services.Notification),
		Notification:         NewNotificationHandler(services.Notification),
		NotificationSettings: NewNotificationSettingsHandler(services.NotificationSettings),
		Push:                 NewPushHandler(services.Push),
		Stream:               NewStreamHandler(hub),
	}
}

func getPageRequest(c *fiber.Ctx) domain.PageRequest {
	return domain.PageRequest{
		Page:    c.QueryInt("page", 1),
		PerPage: c.QueryInt("per_page", domain.DefaultPageSize),
	}.Normalize()
}

func parseUUIDParam(c *fiber.Ctx, name, label string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, middleware.BadRequest("Invalid " + label)
	}
	return id, nil
}
