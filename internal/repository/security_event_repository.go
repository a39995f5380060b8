package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/persistence"
)

// SecurityEventRepository records authentication and abuse signals.
type SecurityEventRepository interface {
	Create(ctx context.Context, event *domain.SecurityEvent) error
}

type securityEventRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityEventRepository builds repository.
func NewSecurityEventRepository(pool *pgxpool.Pool) SecurityEventRepository {
	return &securityEventRepository{pool: pool}
}

func (r *securityEventRepository) Create(ctx context.Context, event *domain.SecurityEvent) error {
	const query = `
        INSERT INTO security_events (type, user_id, ip, path, user_agent, details)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return persistence.Querier(ctx, r.pool).QueryRow(ctx, query,
		event.Type,
		event.UserID,
		event.IP,
		event.Path,
		event.UserAgent,
		nullableJSON(event.Details),
	).Scan(&event.ID, &event.CreatedAt)
}
