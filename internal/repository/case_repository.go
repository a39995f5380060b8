package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/persistence"
)

// CaseFilter captures staff search parameters.
type CaseFilter struct {
	Statuses   []domain.CaseStatus
	Priorities []domain.CasePriority
	QueueID    *string
	Channel    *domain.Channel
	SearchTerm *string
	Scope      ScopeClause
	Limit      int
	Offset     int
}

// CaseSummary is the public, citizen-facing projection of a case.
type CaseSummary struct {
	Protocol        string
	Status          domain.CaseStatus
	Priority        domain.CasePriority
	CreatedAt       time.Time
	SLADueAt        *time.Time
	SLABreached     bool
	QueueName       *string
	SecretariatName *string
}

// CaseRepository encapsulates case persistence.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	GetByProtocol(ctx context.Context, protocol string) (*domain.Case, error)
	ProtocolExists(ctx context.Context, protocol string) (bool, error)
	Update(ctx context.Context, c *domain.Case) error
	UpdatePriority(ctx context.Context, id string, priority domain.CasePriority) error
	// SetSLADue replaces the deadline and clears any previous breach flag.
	SetSLADue(ctx context.Context, id string, due time.Time) error
	// MarkSLABreached flips the flag only for an open, unbreached case whose
	// deadline equals due; it reports whether a row changed.
	MarkSLABreached(ctx context.Context, id string, due time.Time) (bool, error)
	MirrorCitizen(ctx context.Context, citizen *domain.CitizenProfile) error
	List(ctx context.Context, filter CaseFilter) ([]domain.Case, error)
	PublicSummary(ctx context.Context, protocol string) (*CaseSummary, error)
}

type caseRepository struct {
	pool *pgxpool.Pool
}

// NewCaseRepository instantiates repository.
func NewCaseRepository(pool *pgxpool.Pool) CaseRepository {
	return &caseRepository{pool: pool}
}

const caseSelect = `
        SELECT c.id, c.protocol, c.citizen_id, c.citizen_name, c.citizen_email, c.citizen_phone,
               c.status, c.priority, c.source, c.channel, c.queue_id, q.secretariat_id, c.assigned_to,
               c.sla_due_at, c.sla_breached, c.metadata, c.resolved_at, c.closed_at, c.created_at, c.updated_at
        FROM cases c
        LEFT JOIN queues q ON q.id = c.queue_id`

func (r *caseRepository) Create(ctx context.Context, c *domain.Case) error {
	const query = `
        INSERT INTO cases (protocol, citizen_id, citizen_name, citizen_email, citizen_phone, status, priority, source, channel, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`
	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return persistence.Querier(ctx, r.pool).QueryRow(ctx, query,
		c.Protocol,
		c.CitizenID,
		c.CitizenName,
		c.CitizenEmail,
		c.CitizenPhone,
		c.Status,
		c.Priority,
		c.Source,
		c.Channel,
		metadata,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *caseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	return r.fetchSingle(ctx, caseSelect+` WHERE c.id=$1`, id)
}

func (r *caseRepository) GetByProtocol(ctx context.Context, protocol string) (*domain.Case, error) {
	return r.fetchSingle(ctx, caseSelect+` WHERE c.protocol=$1`, protocol)
}

func (r *caseRepository) ProtocolExists(ctx context.Context, protocol string) (bool, error) {
	var exists bool
	err := persistence.Querier(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM cases WHERE protocol=$1)`, protocol).Scan(&exists)
	return exists, err
}

func (r *caseRepository) Update(ctx context.Context, c *domain.Case) error {
	const query = `
        UPDATE cases SET status=$1, priority=$2, queue_id=$3, assigned_to=$4, sla_due_at=$5,
            resolved_at=$6, closed_at=$7, updated_at=NOW()
        WHERE id=$8`
	cmd, err := persistence.Querier(ctx, r.pool).Exec(ctx, query,
		c.Status,
		c.Priority,
		c.QueueID,
		c.AssignedTo,
		c.SLADueAt,
		c.ResolvedAt,
		c.ClosedAt,
		c.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *caseRepository) UpdatePriority(ctx context.Context, id string, priority domain.CasePriority) error {
	cmd, err := persistence.Querier(ctx, r.pool).Exec(ctx,
		`UPDATE cases SET priority=$1, updated_at=NOW() WHERE id=$2`, priority, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *caseRepository) SetSLADue(ctx context.Context, id string, due time.Time) error {
	cmd, err := persistence.Querier(ctx, r.pool).Exec(ctx,
		`UPDATE cases SET sla_due_at=$1, sla_breached=FALSE, updated_at=NOW() WHERE id=$2`, due, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *caseRepository) MarkSLABreached(ctx context.Context, id string, due time.Time) (bool, error) {
	const query = `
        UPDATE cases SET sla_breached=TRUE, updated_at=NOW()
        WHERE id=$1 AND sla_breached=FALSE AND sla_due_at=$2 AND status NOT IN ('resolved','closed')`
	cmd, err := persistence.Querier(ctx, r.pool).Exec(ctx, query, id, due)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *caseRepository) MirrorCitizen(ctx context.Context, citizen *domain.CitizenProfile) error {
	_, err := persistence.Querier(ctx, r.pool).Exec(ctx,
		`UPDATE cases SET citizen_name=$1, citizen_email=$2, citizen_phone=$3, updated_at=NOW() WHERE citizen_id=$4`,
		citizen.FullName, citizen.Email, citizen.PhoneE164, citizen.ID)
	return err
}

func (r *caseRepository) List(ctx context.Context, filter CaseFilter) ([]domain.Case, error) {
	clauses := []string{"1=1"}
	args := []any{}

	switch filter.Scope.Kind {
	case ScopeNone:
		clauses = append(clauses, "1=0")
	case ScopeIn:
		if len(filter.Scope.Values) == 0 {
			clauses = append(clauses, "1=0")
			break
		}
		placeholders := make([]string, len(filter.Scope.Values))
		for i, v := range filter.Scope.Values {
			args = append(args, v)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", filter.Scope.Column.sql(), strings.Join(placeholders, ",")))
	}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("c.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("c.priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.QueueID != nil {
		args = append(args, *filter.QueueID)
		clauses = append(clauses, fmt.Sprintf("c.queue_id=$%d", len(args)))
	}
	if filter.Channel != nil {
		args = append(args, *filter.Channel)
		clauses = append(clauses, fmt.Sprintf("c.channel=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(c.protocol) LIKE %s OR LOWER(COALESCE(c.citizen_name,'')) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY c.updated_at DESC LIMIT %d OFFSET %d`,
		caseSelect, strings.Join(clauses, " AND "), limit, offset)

	rows, err := persistence.Querier(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (r *caseRepository) PublicSummary(ctx context.Context, protocol string) (*CaseSummary, error) {
	const query = `
        SELECT c.protocol, c.status, c.priority, c.created_at, c.sla_due_at, c.sla_breached, q.name, s.name
        FROM cases c
        LEFT JOIN queues q ON q.id = c.queue_id
        LEFT JOIN secretariats s ON s.id = q.secretariat_id
        WHERE c.protocol=$1`
	var sum CaseSummary
	if err := persistence.Querier(ctx, r.pool).QueryRow(ctx, query, protocol).Scan(
		&sum.Protocol,
		&sum.Status,
		&sum.Priority,
		&sum.CreatedAt,
		&sum.SLADueAt,
		&sum.SLABreached,
		&sum.QueueName,
		&sum.SecretariatName,
	); err != nil {
		return nil, err
	}
	return &sum, nil
}

func (r *caseRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Case, error) {
	return scanCase(persistence.Querier(ctx, r.pool).QueryRow(ctx, query, arg))
}

func scanCase(row pgx.Row) (*domain.Case, error) {
	var c domain.Case
	if err := row.Scan(
		&c.ID,
		&c.Protocol,
		&c.CitizenID,
		&c.CitizenName,
		&c.CitizenEmail,
		&c.CitizenPhone,
		&c.Status,
		&c.Priority,
		&c.Source,
		&c.Channel,
		&c.QueueID,
		&c.SecretariatID,
		&c.AssignedTo,
		&c.SLADueAt,
		&c.SLABreached,
		&c.Metadata,
		&c.ResolvedAt,
		&c.ClosedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
