package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"civic-automation/internal/domain"
	"civic-automation/internal/middleware"
	"civic-automation/internal/service/push"
)

type PushHandler struct {
	pushService push.Service
}

func NewPushHandler(pushService push.Service) *PushHandler {
	return &PushHandler{pushService: pushService}
}

func (h *PushHandler) PublicKey(c *fiber.Ctx) error {
	key := h.pushService.PublicKey()
	if key == "" {
		return middleware.NotFound("Push notifications are not configured")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"public_key": key,
	})
}

func (h *PushHandler) Subscribe(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	var input domain.PushSubscriptionInput
	if err := c.BodyParser(&input); err != nil {
		return middleware.BadRequest("Invalid request body")
	}
	if input.UserAgent == nil {
		if ua := c.Get(fiber.HeaderUserAgent); ua != "" {
			input.UserAgent = &ua
		}
	}

	sub, err := h.pushService.Subscribe(c.Context(), userID, input)
	if err != nil {
		if errors.Is(err, push.ErrInvalidSubscription) {
			return middleware.BadRequest(err.Error())
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(sub)
}

func (h *PushHandler) List(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	subs, err := h.pushService.ListSubscriptions(c.Context(), userID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"subscriptions": subs,
	})
}

func (h *PushHandler) Delete(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	id, err := parseUUIDParam(c, "id", "subscription ID")
	if err != nil {
		return err
	}

	if err := h.pushService.Unsubscribe(c.Context(), id, userID); err != nil {
		return err
	}

	return c.Status(fiber.StatusNoContent).SendString("")
}
