package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/persistence"
)

// AgentRunRepository stores automation agent invocations.
type AgentRunRepository interface {
	Create(ctx context.Context, run *domain.AgentRun) error
	GetByID(ctx context.Context, id string) (*domain.AgentRun, error)
	Complete(ctx context.Context, run *domain.AgentRun) error
}

type agentRunRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRunRepository builds repository.
func NewAgentRunRepository(pool *pgxpool.Pool) AgentRunRepository {
	return &agentRunRepository{pool: pool}
}

func (r *agentRunRepository) Create(ctx context.Context, run *domain.AgentRun) error {
	const query = `
        INSERT INTO agent_runs (case_id, message_id, request_json, status)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	if run.Status == "" {
		run.Status = domain.AgentRunPending
	}
	return persistence.Querier(ctx, r.pool).QueryRow(ctx, query,
		run.CaseID,
		run.MessageID,
		string(run.RequestJSON),
		run.Status,
	).Scan(&run.ID, &run.CreatedAt)
}

func (r *agentRunRepository) GetByID(ctx context.Context, id string) (*domain.AgentRun, error) {
	const query = `
        SELECT id, case_id, message_id, request_json, response_json, confidence, risk_level, status, created_at, completed_at
        FROM agent_runs WHERE id=$1`
	var run domain.AgentRun
	var request, response []byte
	if err := persistence.Querier(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.CaseID,
		&run.MessageID,
		&request,
		&response,
		&run.Confidence,
		&run.RiskLevel,
		&run.Status,
		&run.CreatedAt,
		&run.CompletedAt,
	); err != nil {
		return nil, err
	}
	run.RequestJSON = request
	run.ResponseJSON = response
	return &run, nil
}

func (r *agentRunRepository) Complete(ctx context.Context, run *domain.AgentRun) error {
	const query = `
        UPDATE agent_runs SET response_json=$1, confidence=$2, risk_level=$3, status=$4, completed_at=NOW()
        WHERE id=$5
        RETURNING completed_at`
	run.Status = domain.AgentRunCompleted
	return persistence.Querier(ctx, r.pool).QueryRow(ctx, query,
		nullableJSON(run.ResponseJSON),
		run.Confidence,
		run.RiskLevel,
		run.Status,
		run.ID,
	).Scan(&run.CompletedAt)
}
