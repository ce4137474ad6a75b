package middleware

import (
	"messenger-sync/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// UserIDKey is the locals key holding the authenticated user id.
const UserIDKey = "user_id"

// OTP rejects sessions that still wait for second-factor verification and
// exposes the user id to the handlers. It runs after JWT.
func OTP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, _ := c.Locals("user").(*jwt.Token)
		meta, err := utils.ClaimsMetadata(user)
		if err != nil {
			return utils.Error(c, fiber.StatusUnauthorized, "Invalid or expired JWT")
		}

		if meta.Otp {
			return utils.Error(c, fiber.StatusBadRequest, "2FA required")
		}

		c.Locals(UserIDKey, meta.Id)
		return c.Next()
	}
}

// UserID returns the id stored by OTP.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDKey).(string)
	return id
}
