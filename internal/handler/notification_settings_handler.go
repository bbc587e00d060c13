package handler

import (
	"github.com/gofiber/fiber/v2"

	"civic-automation/internal/domain"
	"civic-automation/internal/middleware"
	"civic-automation/internal/service/notification"
)

type NotificationSettingsHandler struct {
	settingsService notification.SettingsService
}

func NewNotificationSettingsHandler(settingsService notification.SettingsService) *NotificationSettingsHandler {
	return &NotificationSettingsHandler{settingsService: settingsService}
}

type bulkSettingsRequest struct {
	Settings []domain.UpdateNotificationSettingInput `json:"settings"`
}

func (h *NotificationSettingsHandler) GetAll(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	settings, err := h.settingsService.GetAll(c.Context(), userID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"settings": settings,
	})
}

func (h *NotificationSettingsHandler) Update(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	var input domain.UpdateNotificationSettingInput
	if err := c.BodyParser(&input); err != nil {
		return middleware.BadRequest("Invalid request body")
	}
	input.NotificationType = domain.NotificationType(c.Params("type"))

	setting, err := h.settingsService.Update(c.Context(), userID, input)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(setting)
}

func (h *NotificationSettingsHandler) BulkUpdate(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	var req bulkSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.BadRequest("Invalid request body")
	}

	settings, err := h.settingsService.BulkUpdate(c.Context(), userID, req.Settings)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"settings": settings,
	})
}
