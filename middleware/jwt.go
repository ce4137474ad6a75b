package middleware

import (
	"strings"

	"messenger-sync/utils"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
)

func JWT(key string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{
			JWTAlg: "HS512",
			Key:    []byte(key),
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if strings.EqualFold(err.Error(), "missing or malformed JWT") {
				return utils.Error(c, fiber.StatusBadRequest, "Missing or malformed JWT")
			}
			return utils.Error(c, fiber.StatusUnauthorized, "Invalid or expired JWT")
		},
	})
}
