package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ombudsman-service/internal/domain"
)

// RequireRole ensures the caller has one of the allowed roles.
func RequireRole(allowed ...domain.StaffRole) fiber.Handler {
	allowedSet := make(map[domain.StaffRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		caller, ok := CallerFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[caller.Role]; !exists {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}

// RequireStaff ensures caller is authenticated.
func RequireStaff() fiber.Handler {
	return RequireRole()
}
