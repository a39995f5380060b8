package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/persistence"
)

// AuditCursor marks the position after which the next page starts.
type AuditCursor struct {
	CreatedAt time.Time
	Seq       int64
}

// AuditRepository stores the immutable audit trail.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
	// ListByEntity returns entries newest first, strictly older than after when set.
	ListByEntity(ctx context.Context, entityType, entityID string, after *AuditCursor, limit int) ([]domain.AuditLog, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	const query = `
        INSERT INTO audit_logs (entity_type, entity_id, action, user_id, old_value, new_value, ip_address, user_agent)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, seq, created_at`
	return persistence.Querier(ctx, r.pool).QueryRow(ctx, query,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		entry.UserID,
		nullableJSON(entry.OldValue),
		nullableJSON(entry.NewValue),
		entry.IP,
		entry.UserAgent,
	).Scan(&entry.ID, &entry.Seq, &entry.CreatedAt)
}

func (r *auditRepository) ListByEntity(ctx context.Context, entityType, entityID string, after *AuditCursor, limit int) ([]domain.AuditLog, error) {
	query := `
        SELECT a.id, a.seq, a.entity_type, a.entity_id, a.action, a.user_id, s.name, s.role,
               a.old_value, a.new_value, a.ip_address, a.user_agent, a.created_at
        FROM audit_logs a
        LEFT JOIN staff_members s ON s.id = a.user_id
        WHERE a.entity_type=$1 AND a.entity_id=$2`
	args := []any{entityType, entityID}
	if after != nil {
		args = append(args, after.CreatedAt, after.Seq)
		query += fmt.Sprintf(" AND (a.created_at, a.seq) < ($%d, $%d)", len(args)-1, len(args))
	}
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY a.created_at DESC, a.seq DESC LIMIT %d", limit)

	rows, err := persistence.Querier(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditLog
	for rows.Next() {
		var entry domain.AuditLog
		var oldValue, newValue []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.Seq,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Action,
			&entry.UserID,
			&entry.UserName,
			&entry.UserRole,
			&oldValue,
			&newValue,
			&entry.IP,
			&entry.UserAgent,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.OldValue = oldValue
		entry.NewValue = newValue
		result = append(result, entry)
	}
	return result, rows.Err()
}

// nullableJSON keeps absent payloads as SQL NULL instead of an empty document.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
