package http

import (
	"context"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/observability"
	"github.com/spec-kit/ombudsman-service/internal/ratelimit"
	"github.com/spec-kit/ombudsman-service/internal/service"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(observability.RequestLogger(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := apperrors.ToDomainError(err)
				if metrics != nil {
					metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
				}
				response := fiber.Map{"error": fiber.Map{
					"code":    domainErr.Code,
					"message": domainErr.Message,
				}}
				if len(domainErr.Details) > 0 {
					response["error"].(fiber.Map)["details"] = domainErr.Details
				}
				if domainErr.HTTPStatus >= 500 {
					logger.Error("request failed", zap.Error(domainErr))
				}
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(response)
				err = nil
			}
		}()
		return c.Next()
	}
}

// RateLimitRule is a per-IP budget for one route group.
type RateLimitRule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// rateLimitMiddleware rejects callers over budget with 429 and records a
// security event for each rejection.
func rateLimitMiddleware(limiter *ratelimit.Limiter, audit *service.AuditRecorder, metrics *observability.Metrics, rule RateLimitRule) fiber.Handler {
	return func(c *fiber.Ctx) error {
		decision := limiter.Allow(c.UserContext(), rule.Name+":"+c.IP(), rule.Limit, rule.Window)
		c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if decision.Allowed {
			return c.Next()
		}

		retry := int(time.Until(decision.ResetAt).Seconds())
		if retry < 1 {
			retry = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
		if metrics != nil {
			metrics.Inc(observability.CounterRateLimited)
		}
		audit.RecordSecurity(c.UserContext(), service.SecurityEvent{
			Type:      "rate_limit_exceeded",
			IP:        c.IP(),
			Path:      c.Path(),
			UserAgent: c.Get(fiber.HeaderUserAgent),
			Details:   map[string]any{"scope": rule.Name, "count": decision.Count, "limit": decision.Limit},
		})
		return apperrors.NewTooManyRequests("too many requests")
	}
}
