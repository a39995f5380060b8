package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/persistence"
)

// SLARuleRepository reads resolution deadline rules.
type SLARuleRepository interface {
	// GetActive finds an active rule by id or by name.
	GetActive(ctx context.Context, ref string) (*domain.SLARule, error)
	GetDefault(ctx context.Context) (*domain.SLARule, error)
}

// TagRepository manages case labels.
type TagRepository interface {
	FindByName(ctx context.Context, name string) (*domain.Tag, error)
	Create(ctx context.Context, name string) (*domain.Tag, error)
	// Attach links a tag to a case; attaching twice is a no-op.
	Attach(ctx context.Context, caseID, tagID string) error
	Detach(ctx context.Context, caseID, tagID string) error
	ListByCase(ctx context.Context, caseID string) ([]domain.Tag, error)
}

// MissingFieldRepository tracks citizen data still required per case.
type MissingFieldRepository interface {
	// Insert is idempotent per (case, field).
	Insert(ctx context.Context, caseID, fieldName string) error
	ListByCase(ctx context.Context, caseID string) ([]domain.MissingField, error)
}

type slaRuleRepository struct {
	pool *pgxpool.Pool
}

// NewSLARuleRepository builds repository.
func NewSLARuleRepository(pool *pgxpool.Pool) SLARuleRepository {
	return &slaRuleRepository{pool: pool}
}

func (r *slaRuleRepository) GetActive(ctx context.Context, ref string) (*domain.SLARule, error) {
	const query = `
        SELECT id, name, hours, is_default, is_active FROM sla_rules
        WHERE is_active AND (id::text=$1 OR name=$1) LIMIT 1`
	return scanSLARule(persistence.Querier(ctx, r.pool).QueryRow(ctx, query, ref))
}

func (r *slaRuleRepository) GetDefault(ctx context.Context) (*domain.SLARule, error) {
	const query = `SELECT id, name, hours, is_default, is_active FROM sla_rules WHERE is_default AND is_active LIMIT 1`
	return scanSLARule(persistence.Querier(ctx, r.pool).QueryRow(ctx, query))
}

func scanSLARule(row pgx.Row) (*domain.SLARule, error) {
	var rule domain.SLARule
	if err := row.Scan(&rule.ID, &rule.Name, &rule.Hours, &rule.IsDefault, &rule.IsActive); err != nil {
		return nil, err
	}
	return &rule, nil
}

type tagRepository struct {
	pool *pgxpool.Pool
}

// NewTagRepository builds repository.
func NewTagRepository(pool *pgxpool.Pool) TagRepository {
	return &tagRepository{pool: pool}
}

func (r *tagRepository) FindByName(ctx context.Context, name string) (*domain.Tag, error) {
	var tag domain.Tag
	if err := persistence.Querier(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name FROM tags WHERE name=$1`, name).Scan(&tag.ID, &tag.Name); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *tagRepository) Create(ctx context.Context, name string) (*domain.Tag, error) {
	const query = `
        INSERT INTO tags (name) VALUES ($1)
        ON CONFLICT (name) DO UPDATE SET name=EXCLUDED.name
        RETURNING id, name`
	var tag domain.Tag
	if err := persistence.Querier(ctx, r.pool).QueryRow(ctx, query, name).Scan(&tag.ID, &tag.Name); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *tagRepository) Attach(ctx context.Context, caseID, tagID string) error {
	_, err := persistence.Querier(ctx, r.pool).Exec(ctx,
		`INSERT INTO case_tags (case_id, tag_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, caseID, tagID)
	return err
}

func (r *tagRepository) Detach(ctx context.Context, caseID, tagID string) error {
	_, err := persistence.Querier(ctx, r.pool).Exec(ctx,
		`DELETE FROM case_tags WHERE case_id=$1 AND tag_id=$2`, caseID, tagID)
	return err
}

func (r *tagRepository) ListByCase(ctx context.Context, caseID string) ([]domain.Tag, error) {
	rows, err := persistence.Querier(ctx, r.pool).Query(ctx, `
        SELECT t.id, t.name FROM tags t
        JOIN case_tags ct ON ct.tag_id = t.id
        WHERE ct.case_id=$1 ORDER BY t.name`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Tag
	for rows.Next() {
		var tag domain.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		result = append(result, tag)
	}
	return result, rows.Err()
}

type missingFieldRepository struct {
	pool *pgxpool.Pool
}

// NewMissingFieldRepository builds repository.
func NewMissingFieldRepository(pool *pgxpool.Pool) MissingFieldRepository {
	return &missingFieldRepository{pool: pool}
}

func (r *missingFieldRepository) Insert(ctx context.Context, caseID, fieldName string) error {
	_, err := persistence.Querier(ctx, r.pool).Exec(ctx,
		`INSERT INTO missing_fields (case_id, field_name) VALUES ($1,$2) ON CONFLICT (case_id, field_name) DO NOTHING`,
		caseID, fieldName)
	return err
}

func (r *missingFieldRepository) ListByCase(ctx context.Context, caseID string) ([]domain.MissingField, error) {
	rows, err := persistence.Querier(ctx, r.pool).Query(ctx,
		`SELECT id, case_id, field_name, is_provided, created_at FROM missing_fields WHERE case_id=$1 ORDER BY created_at`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.MissingField
	for rows.Next() {
		var f domain.MissingField
		if err := rows.Scan(&f.ID, &f.CaseID, &f.FieldName, &f.IsProvided, &f.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}
