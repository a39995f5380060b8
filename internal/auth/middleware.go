package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

const callerKey = "auth_caller"

// AuthMiddleware validates bearer tokens and loads the calling staff member.
type AuthMiddleware struct {
	tokens *TokenManager
	staff  repository.StaffRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, staff repository.StaffRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, staff: staff}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	staff, err := m.staff.GetByID(c.UserContext(), claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("staff not found")
		}
		return apperrors.MapError(err)
	}
	if !staff.Active {
		return apperrors.NewUnauthorized("staff inactive")
	}

	c.Locals(callerKey, staff.Caller(c.IP(), c.Get(fiber.HeaderUserAgent)))
	return c.Next()
}

// CallerFromContext retrieves the authenticated caller.
func CallerFromContext(c *fiber.Ctx) (domain.Caller, bool) {
	caller, ok := c.Locals(callerKey).(domain.Caller)
	return caller, ok
}
