package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ombudsman-service/internal/api/http/handlers"
	"github.com/spec-kit/ombudsman-service/internal/auth"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/observability"
	"github.com/spec-kit/ombudsman-service/internal/ratelimit"
	"github.com/spec-kit/ombudsman-service/internal/service"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Staff          *handlers.StaffHandler
	Cases          *handlers.CasesHandler
	Citizens       *handlers.CitizensHandler
	Routing        *handlers.RoutingHandler
	Public         *handlers.PublicHandler
	Webhooks       *handlers.WebhooksHandler
	AuthMiddleware *auth.AuthMiddleware
	Limiter        *ratelimit.Limiter
	Audit          *service.AuditRecorder
	Metrics        *observability.Metrics
	IntakeLimit    RateLimitRule
	LookupLimit    RateLimitRule
}

// DefaultIntakeLimit and DefaultLookupLimit are the public per-IP budgets.
var (
	DefaultIntakeLimit = RateLimitRule{Name: "public_cases", Limit: 10, Window: time.Hour}
	DefaultLookupLimit = RateLimitRule{Name: "public_lookup", Limit: 30, Window: time.Minute}
)

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.IntakeLimit.Limit == 0 {
		cfg.IntakeLimit = DefaultIntakeLimit
	}
	if cfg.LookupLimit.Limit == 0 {
		cfg.LookupLimit = DefaultLookupLimit
	}

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	public := app.Group("/public")
	public.Post("/cases", rateLimitMiddleware(cfg.Limiter, cfg.Audit, cfg.Metrics, cfg.IntakeLimit), cfg.Public.CreateCase)
	public.Get("/cases/:protocol", rateLimitMiddleware(cfg.Limiter, cfg.Audit, cfg.Metrics, cfg.LookupLimit), cfg.Public.Lookup)

	webhooks := app.Group("/webhooks")
	webhooks.Get("/whatsapp", cfg.Webhooks.VerifyWhatsApp)
	webhooks.Post("/whatsapp", cfg.Webhooks.ReceiveWhatsApp)
	webhooks.Post("/instagram", cfg.Webhooks.ReceiveInstagram)
	webhooks.Post("/automation/results", cfg.Webhooks.AgentResult)

	app.Post("/auth/login", cfg.Staff.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireStaff())

	protected.Get("/cases", cfg.Cases.List)
	protected.Get("/cases/:id", cfg.Cases.Get)
	protected.Patch("/cases/:id/status", cfg.Cases.SetStatus)
	protected.Patch("/cases/:id/priority", cfg.Cases.SetPriority)
	protected.Post("/cases/:id/tags", cfg.Cases.AttachTags)
	protected.Post("/cases/:id/transfer", cfg.Cases.Transfer)
	protected.Post("/cases/:id/assign", cfg.Cases.Assign)
	protected.Get("/cases/:id/messages", cfg.Cases.Messages)
	protected.Post("/cases/:id/reply", cfg.Cases.Reply)
	protected.Post("/cases/:id/notes", cfg.Cases.AddNote)
	protected.Get("/cases/:id/timeline", cfg.Cases.Timeline)
	protected.Post("/cases/:id/agent/run",
		auth.RequireRole(domain.StaffRoleAdmin, domain.StaffRoleManager, domain.StaffRoleGlobalManager),
		cfg.Cases.RunAgent)

	protected.Post("/messages/:id/resend", cfg.Cases.Resend)
	protected.Patch("/messages/:id/processed", cfg.Cases.MarkProcessed)

	protected.Put("/citizens/:id", cfg.Citizens.Update)

	protected.Post("/routing-rules/simulate",
		auth.RequireRole(domain.StaffRoleAdmin, domain.StaffRoleManager),
		cfg.Routing.Simulate)

	protected.Get("/staff", cfg.Staff.ListStaff)
	protected.Post("/staff", cfg.Staff.CreateStaff)
}
