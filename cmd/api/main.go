package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ombudsman-service/internal/api/http"
	"github.com/spec-kit/ombudsman-service/internal/api/http/handlers"
	"github.com/spec-kit/ombudsman-service/internal/auth"
	"github.com/spec-kit/ombudsman-service/internal/automation"
	"github.com/spec-kit/ombudsman-service/internal/channel"
	"github.com/spec-kit/ombudsman-service/internal/config"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/events"
	"github.com/spec-kit/ombudsman-service/internal/observability"
	"github.com/spec-kit/ombudsman-service/internal/persistence"
	"github.com/spec-kit/ombudsman-service/internal/ratelimit"
	"github.com/spec-kit/ombudsman-service/internal/routing"
	"github.com/spec-kit/ombudsman-service/internal/service"
	"github.com/spec-kit/ombudsman-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		repos  stores
		pinger = map[string]handlers.Pinger{"postgres": nil}
	)
	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		repos = postgresStores(pg.PoolHandle())
		pinger["postgres"] = pg
	} else {
		repos = memoryStores(cfg, logger)
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()
	pinger["redis"] = redis

	var timers worker.TimerQueue = worker.NewRedisTimerQueue(redis.Client, redis.Key("sla", "timers"))
	if err := redis.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, SLA timers kept in memory", zap.Error(err))
		timers = worker.NewMemoryTimerQueue()
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	meta := channel.MetaConfig{
		BaseURL:       cfg.Channels.GraphBaseURL,
		PhoneNumberID: cfg.Channels.WhatsAppPhoneNumberID,
		PageID:        cfg.Channels.InstagramPageID,
		WhatsAppToken: cfg.Channels.WhatsAppAccessToken,
		InstagramKey:  cfg.Channels.InstagramAccessToken,
		Timeout:       time.Duration(cfg.Channels.OutboundTimeoutSeconds) * time.Second,
	}
	sender := channel.NewRouter().
		Register(domain.ChannelWhatsApp, channel.NewWhatsAppSender(meta, logger)).
		Register(domain.ChannelInstagram, channel.NewInstagramSender(meta, logger))

	automationClient := automation.NewClient(
		cfg.Automation.EndpointURL,
		cfg.Automation.HMACSecret,
		time.Duration(cfg.Automation.TimeoutSeconds)*time.Second,
		logger,
	)
	notifications := service.NewNotificationService(dispatcher, automationClient, metrics, logger)
	worker.StartNotificationWorker(notifications)

	audit := service.NewAuditRecorder(repos.audit, repos.security, logger, metrics)
	citizens := service.NewCitizenResolver(repos.citizens, repos.cases, audit, logger)
	engine := routing.NewEngine(
		repos.rules, repos.queues, repos.slaRules, repos.tags, repos.missing, repos.cases,
		routing.Options{TriageQueueSlug: cfg.Routing.TriageQueueSlug, DefaultSLAHours: cfg.SLA.DefaultHours},
		logger,
	)
	sla := service.NewSLAScheduler(service.SLADependencies{
		CaseRepo:     repos.cases,
		QueueRepo:    repos.queues,
		Timer:        timers,
		Audit:        audit,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
		DefaultHours: cfg.SLA.DefaultHours,
	})
	scopes := auth.NewScopeResolver(repos.queues, cfg.RBAC.GlobalSecretariatCodes, cfg.RBAC.LegacyGlobalAccess, logger, metrics)
	cases := service.NewCaseService(service.CaseDependencies{
		CaseRepo:         repos.cases,
		MessageRepo:      repos.messages,
		TagRepo:          repos.tags,
		MissingFieldRepo: repos.missing,
		QueueRepo:        repos.queues,
		StaffRepo:        repos.staff,
		Scopes:           scopes,
		SLA:              sla,
		Sender:           sender,
		Audit:            audit,
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		Logger:           logger,
	})
	intake := service.NewIntakeService(service.IntakeDependencies{
		Transactor:       repos.tx,
		CaseRepo:         repos.cases,
		MessageRepo:      repos.messages,
		MissingFieldRepo: repos.missing,
		Citizens:         citizens,
		Protocols:        service.NewProtocolGenerator(repos.cases),
		Engine:           engine,
		SLA:              sla,
		Audit:            audit,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	agent := service.NewAgentService(service.AgentDependencies{
		AgentRunRepo: repos.agentRuns,
		MessageRepo:  repos.messages,
		QueueRepo:    repos.queues,
		Cases:        cases,
		Audit:        audit,
		Dispatcher:   dispatcher,
		Policy: service.AgentPolicy{
			AllowedActions:        cfg.Agent.AllowedActions,
			AutoSendEnabled:       cfg.Agent.AutoSendEnabled,
			HandoffThreshold:      cfg.Agent.HandoffThreshold,
			EscalationSecretariat: cfg.Agent.EscalationSecretariat,
			EscalationQueue:       cfg.Agent.EscalationQueueSlug,
		},
		TriageQueueSlug: cfg.Routing.TriageQueueSlug,
		Logger:          logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(tokens, repos.staff, audit)
	staffService := service.NewStaffService(repos.staff, repos.queues, audit, cfg.Auth.BcryptCost)

	go worker.NewSLAPoller(timers, sla, cfg.SLA.PollInterval(), logger).Run(ctx)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pinger),
		Staff:    handlers.NewStaffHandler(authService, staffService),
		Cases:    handlers.NewCasesHandler(cases, agent),
		Citizens: handlers.NewCitizensHandler(citizens),
		Routing:  handlers.NewRoutingHandler(engine),
		Public:   handlers.NewPublicHandler(intake, cfg.Public.IntakeEnabled),
		Webhooks: handlers.NewWebhooksHandler(intake, agent, audit, automationClient, handlers.WebhookConfig{
			MetaAppSecret:       cfg.Channels.MetaAppSecret,
			WhatsAppVerifyToken: cfg.Channels.WhatsAppVerifyToken,
		}, logger),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, repos.staff),
		Limiter:        ratelimit.New(redis.Client, redis.Key("rl")+":", logger),
		Audit:          audit,
		Metrics:        metrics,
		IntakeLimit:    httptransport.RateLimitRule{Name: "public_cases", Limit: cfg.Public.IntakeLimitPerHour, Window: time.Hour},
		LookupLimit:    httptransport.RateLimitRule{Name: "public_lookup", Limit: cfg.Public.LookupLimitPerMinute, Window: time.Minute},
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
