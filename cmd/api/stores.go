package main

import (
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/auth"
	"github.com/spec-kit/ombudsman-service/internal/config"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/persistence"
	"github.com/spec-kit/ombudsman-service/internal/repository"
	"github.com/spec-kit/ombudsman-service/internal/repository/memory"
)

// stores is the full set of repositories the services need.
type stores struct {
	tx        repository.Transactor
	citizens  repository.CitizenRepository
	cases     repository.CaseRepository
	messages  repository.MessageRepository
	missing   repository.MissingFieldRepository
	queues    repository.QueueRepository
	slaRules  repository.SLARuleRepository
	tags      repository.TagRepository
	rules     repository.RoutingRuleRepository
	audit     repository.AuditRepository
	security  repository.SecurityEventRepository
	agentRuns repository.AgentRunRepository
	staff     repository.StaffRepository
}

func postgresStores(pool *pgxpool.Pool) stores {
	return stores{
		tx:        persistence.NewTxManager(pool),
		citizens:  repository.NewCitizenRepository(pool),
		cases:     repository.NewCaseRepository(pool),
		messages:  repository.NewMessageRepository(pool),
		missing:   repository.NewMissingFieldRepository(pool),
		queues:    repository.NewQueueRepository(pool),
		slaRules:  repository.NewSLARuleRepository(pool),
		tags:      repository.NewTagRepository(pool),
		rules:     repository.NewRoutingRuleRepository(pool),
		audit:     repository.NewAuditRepository(pool),
		security:  repository.NewSecurityEventRepository(pool),
		agentRuns: repository.NewAgentRunRepository(pool),
		staff:     repository.NewStaffRepository(pool),
	}
}

// memoryStores backs a development run without postgres. The triage queue
// and, when configured, an admin account are seeded so the API is usable.
func memoryStores(cfg *config.Config, logger *zap.Logger) stores {
	store := memory.NewStore()
	secretariat := store.AddSecretariat(cfg.Agent.EscalationSecretariat, "Ouvidoria")
	store.AddQueue(domain.Queue{
		SecretariatID: secretariat,
		Slug:          cfg.Routing.TriageQueueSlug,
		Name:          "Triagem",
		SLAHours:      cfg.SLA.DefaultHours,
		IsActive:      true,
	})

	if cfg.Auth.BootstrapAdminEmail != "" && cfg.Auth.BootstrapAdminPassword != "" {
		hash, err := auth.HashStaffPassword(cfg.Auth.BootstrapAdminPassword, cfg.Auth.BcryptCost)
		if err != nil {
			logger.Fatal("failed to hash bootstrap admin password", zap.Error(err))
		}
		store.AddStaff(domain.StaffMember{
			Name:         "Administrator",
			Email:        strings.ToLower(strings.TrimSpace(cfg.Auth.BootstrapAdminEmail)),
			PasswordHash: hash,
			Role:         domain.StaffRoleAdmin,
			Active:       true,
		})
	}
	logger.Warn("POSTGRES_DSN not set, using in-memory storage")

	return stores{
		tx:        store,
		citizens:  store.Citizens(),
		cases:     store.Cases(),
		messages:  store.Messages(),
		missing:   store.MissingFields(),
		queues:    store.Queues(),
		slaRules:  store.SLARules(),
		tags:      store.Tags(),
		rules:     store.RoutingRules(),
		audit:     store.Audit(),
		security:  store.SecurityEventLog(),
		agentRuns: store.AgentRuns(),
		staff:     store.Staff(),
	}
}
