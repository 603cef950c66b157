package auth

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"formlane/internal/config"
	"formlane/internal/users"
)

// Locals key for the authenticated user.
const userLocalKey = "current_user"

// RequireAuth rejects requests without a valid bearer token and loads the
// authenticated user into locals.
// Expects: Authorization: Bearer <token>
func RequireAuth(cfg *config.Config, db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := userFromRequest(cfg, db, c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Not authorized to access this route",
			})
		}
		c.Locals(userLocalKey, user)
		return c.Next()
	}
}

// OptionalAuth loads the authenticated user when a valid token is present
// and lets the request through either way. Used on public submission routes
// so responses can be linked to a respondent account when there is one.
func OptionalAuth(cfg *config.Config, db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if user, err := userFromRequest(cfg, db, c); err == nil {
			c.Locals(userLocalKey, user)
		}
		return c.Next()
	}
}

// RequireAdmin rejects authenticated users without the ADMIN role. Must run
// after RequireAuth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil || user.Role != users.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   "Admin role required to access this route",
			})
		}
		return c.Next()
	}
}

// CurrentUser returns the authenticated user stored by the middleware, or
// nil for anonymous requests.
func CurrentUser(c *fiber.Ctx) *users.User {
	user, _ := c.Locals(userLocalKey).(*users.User)
	return user
}

func userFromRequest(cfg *config.Config, db *gorm.DB, c *fiber.Ctx) (*users.User, error) {
	authHeader := c.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, ErrInvalidToken
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims, err := ParseToken(cfg, tokenString)
	if err != nil {
		return nil, err
	}

	return users.FindByID(db, claims.UserID)
}
