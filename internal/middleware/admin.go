package middleware

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
)

// AdminAuth requires the static admin token as a bearer credential.
// The ?token= query parameter is accepted for EventSource clients, which cannot set headers.
func AdminAuth(adminToken string) fiber.Handler {
	return func(c fiber.Ctx) error {
		var token string

		authHeader := c.Get("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = parts[1]
			}
		}
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			return unauthorized(c, "missing authorization")
		}
		if adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
			return unauthorized(c, "invalid token")
		}
		return c.Next()
	}
}

func unauthorized(c fiber.Ctx, reason string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": fmt.Errorf("%w: %s", port.ErrUnauthorized, reason).Error(),
	})
}
