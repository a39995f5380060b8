package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ombudsman-service/internal/auth"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

func requireCaller(c *fiber.Ctx) (domain.Caller, error) {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return domain.Caller{}, apperrors.NewUnauthorized("authentication required")
	}
	return caller, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func parseBoolQuery(c *fiber.Ctx, key string) *bool {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return &parsed
		}
	}
	return nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	if val := c.Query(key); val != "" {
		return &val
	}
	return nil
}

func data(c *fiber.Ctx, status int, payload any) error {
	return c.Status(status).JSON(fiber.Map{"data": payload})
}
