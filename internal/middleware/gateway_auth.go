package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/albumforge/api/pkg/response"
)

// GatewayAuthMiddleware trusts the identity headers stamped by the edge
// proxy. In gateway deployments Traefik ForwardAuth calls /auth/verify,
// copies the X-User-* response headers onto the forwarded request, and this
// service never sees the raw token.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		c.Locals("userId", userID)
		c.Locals("email", c.Get("X-User-Email"))

		return c.Next()
	}
}
