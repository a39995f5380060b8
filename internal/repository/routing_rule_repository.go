package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/persistence"
)

// RoutingRuleRepository loads routing rules and keeps their match counters.
type RoutingRuleRepository interface {
	// ListEnabled returns enabled, non-fallback rules by descending priority.
	ListEnabled(ctx context.Context) ([]domain.RoutingRule, error)
	// GetFallback returns the enabled fallback rule or pgx.ErrNoRows.
	GetFallback(ctx context.Context) (*domain.RoutingRule, error)
	IncrementMatchCount(ctx context.Context, id string) error
}

type routingRuleRepository struct {
	pool *pgxpool.Pool
}

// NewRoutingRuleRepository builds repository.
func NewRoutingRuleRepository(pool *pgxpool.Pool) RoutingRuleRepository {
	return &routingRuleRepository{pool: pool}
}

const routingRuleColumns = `id, name, description, priority, enabled, is_fallback, conditions, actions, match_count, created_at, updated_at`

func (r *routingRuleRepository) ListEnabled(ctx context.Context) ([]domain.RoutingRule, error) {
	rows, err := persistence.Querier(ctx, r.pool).Query(ctx,
		`SELECT `+routingRuleColumns+` FROM routing_rules WHERE enabled AND NOT is_fallback ORDER BY priority DESC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RoutingRule
	for rows.Next() {
		rule, err := scanRoutingRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func (r *routingRuleRepository) GetFallback(ctx context.Context) (*domain.RoutingRule, error) {
	return scanRoutingRule(persistence.Querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+routingRuleColumns+` FROM routing_rules WHERE enabled AND is_fallback LIMIT 1`))
}

func (r *routingRuleRepository) IncrementMatchCount(ctx context.Context, id string) error {
	_, err := persistence.Querier(ctx, r.pool).Exec(ctx,
		`UPDATE routing_rules SET match_count = match_count + 1 WHERE id=$1`, id)
	return err
}

func scanRoutingRule(row pgx.Row) (*domain.RoutingRule, error) {
	var rule domain.RoutingRule
	var conditions, actions []byte
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.Priority,
		&rule.Enabled,
		&rule.IsFallback,
		&conditions,
		&actions,
		&rule.MatchCount,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rule.Conditions = conditions
	rule.Actions = actions
	return &rule, nil
}
