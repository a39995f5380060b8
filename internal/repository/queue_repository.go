package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/persistence"
)

// QueueRepository resolves queues and their owning secretariats.
type QueueRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Queue, error)
	// FindActiveBySlug resolves an active queue in an active secretariat, best priority first.
	FindActiveBySlug(ctx context.Context, slug string) (*domain.Queue, error)
	// FindBySlugOrName matches an active queue by slug, or by name ignoring case.
	FindBySlugOrName(ctx context.Context, ref string) (*domain.Queue, error)
	// FirstBySecretariat returns the highest-priority active queue of an
	// active secretariat referenced by code or id.
	FirstBySecretariat(ctx context.Context, ref string) (*domain.Queue, error)
	GetSecretariat(ctx context.Context, id string) (*domain.Secretariat, error)
	FindSecretariatByCode(ctx context.Context, code string) (*domain.Secretariat, error)
	ListStaffQueueIDs(ctx context.Context, staffID string) ([]string, error)
}

type queueRepository struct {
	pool *pgxpool.Pool
}

// NewQueueRepository builds the repository.
func NewQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &queueRepository{pool: pool}
}

const queueColumns = `q.id, q.secretariat_id, q.slug, q.name, q.priority, q.sla_hours, q.is_active, q.created_at, q.updated_at`

func (r *queueRepository) GetByID(ctx context.Context, id string) (*domain.Queue, error) {
	return scanQueue(persistence.Querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+queueColumns+` FROM queues q WHERE q.id=$1`, id))
}

func (r *queueRepository) FindActiveBySlug(ctx context.Context, slug string) (*domain.Queue, error) {
	return scanQueue(persistence.Querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+queueColumns+` FROM queues q
        JOIN secretariats s ON s.id = q.secretariat_id
        WHERE q.slug=$1 AND q.is_active AND s.is_active ORDER BY q.priority DESC LIMIT 1`, slug))
}

func (r *queueRepository) FindBySlugOrName(ctx context.Context, ref string) (*domain.Queue, error) {
	const query = `SELECT ` + queueColumns + ` FROM queues q
        JOIN secretariats s ON s.id = q.secretariat_id
        WHERE q.is_active AND s.is_active AND (q.slug=$1 OR LOWER(q.name)=LOWER($1))
        ORDER BY (q.slug=$1) DESC, q.priority DESC LIMIT 1`
	return scanQueue(persistence.Querier(ctx, r.pool).QueryRow(ctx, query, ref))
}

func (r *queueRepository) FirstBySecretariat(ctx context.Context, ref string) (*domain.Queue, error) {
	const query = `SELECT ` + queueColumns + ` FROM queues q
        JOIN secretariats s ON s.id = q.secretariat_id
        WHERE (s.code=$1 OR s.id::text=$1) AND s.is_active AND q.is_active
        ORDER BY q.priority DESC, q.created_at ASC LIMIT 1`
	return scanQueue(persistence.Querier(ctx, r.pool).QueryRow(ctx, query, ref))
}

func (r *queueRepository) GetSecretariat(ctx context.Context, id string) (*domain.Secretariat, error) {
	return scanSecretariat(persistence.Querier(ctx, r.pool).QueryRow(ctx,
		`SELECT id, code, name, is_active, created_at, updated_at FROM secretariats WHERE id=$1`, id))
}

func (r *queueRepository) FindSecretariatByCode(ctx context.Context, code string) (*domain.Secretariat, error) {
	return scanSecretariat(persistence.Querier(ctx, r.pool).QueryRow(ctx,
		`SELECT id, code, name, is_active, created_at, updated_at FROM secretariats WHERE code=$1`, code))
}

func (r *queueRepository) ListStaffQueueIDs(ctx context.Context, staffID string) ([]string, error) {
	rows, err := persistence.Querier(ctx, r.pool).Query(ctx,
		`SELECT queue_id FROM staff_queues WHERE staff_id=$1`, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanQueue(row pgx.Row) (*domain.Queue, error) {
	var q domain.Queue
	if err := row.Scan(
		&q.ID,
		&q.SecretariatID,
		&q.Slug,
		&q.Name,
		&q.Priority,
		&q.SLAHours,
		&q.IsActive,
		&q.CreatedAt,
		&q.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &q, nil
}

func scanSecretariat(row pgx.Row) (*domain.Secretariat, error) {
	var s domain.Secretariat
	if err := row.Scan(&s.ID, &s.Code, &s.Name, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
