package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func RequireRole(requiredRole string) fiber.Handler {
	return RequireAnyRole(requiredRole)
}

func RequireAnyRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetCurrentUserID(c) == uuid.Nil {
			return Unauthorized("User not found")
		}

		role := GetCurrentUserRole(c)
		for _, r := range roles {
			if role == r {
				return c.Next()
			}
		}

		return Forbidden("Insufficient permissions for this operation")
	}
}
