package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/chamadopro/backend/internal/utils"
)

// JWTFromHeader authenticates requests from the Authorization bearer
// header. The WebSocket handshake reuses the same credential via a
// query parameter (browsers cannot set headers on WS upgrades).
func JWTFromHeader(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			return fiber.ErrUnauthorized
		}
		tokenStr := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

		token, err := jwt.ParseWithClaims(tokenStr, &utils.Claims{}, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})

		if err != nil || !token.Valid {
			return fiber.ErrUnauthorized
		}

		c.Locals("user", token)
		return c.Next()
	}
}
