package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/persistence"
)

// StaffRepository handles persistence for staff members.
type StaffRepository interface {
	Create(ctx context.Context, staff *domain.StaffMember) error
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
	GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error)
	List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error)
}

// StaffFilter defines query params for staff listing.
type StaffFilter struct {
	Role          *domain.StaffRole
	SecretariatID *string
	Active        *bool
	Limit         int
	Offset        int
}

type staffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(pool *pgxpool.Pool) StaffRepository {
	return &staffRepository{pool: pool}
}

const staffColumns = `id, name, email, password_hash, role, secretariat_id, active, created_at, updated_at`

func (r *staffRepository) Create(ctx context.Context, staff *domain.StaffMember) error {
	const query = `
        INSERT INTO staff_members (name, email, password_hash, role, secretariat_id, active)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`

	return persistence.Querier(ctx, r.pool).QueryRow(ctx, query,
		staff.Name,
		staff.Email,
		staff.PasswordHash,
		staff.Role,
		staff.SecretariatID,
		staff.Active,
	).Scan(&staff.ID, &staff.CreatedAt, &staff.UpdatedAt)
}

func (r *staffRepository) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	return scanStaff(persistence.Querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+staffColumns+` FROM staff_members WHERE id=$1`, id))
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error) {
	return scanStaff(persistence.Querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+staffColumns+` FROM staff_members WHERE LOWER(email)=LOWER($1)`, email))
}

func (r *staffRepository) List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error) {
	query := `SELECT ` + staffColumns + ` FROM staff_members`
	args := []any{}
	clauses := []string{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.SecretariatID != nil {
		args = append(args, *filter.SecretariatID)
		clauses = append(clauses, fmt.Sprintf("secretariat_id=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := persistence.Querier(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffMember
	for rows.Next() {
		staff, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *staff)
	}
	return result, rows.Err()
}

func scanStaff(row pgx.Row) (*domain.StaffMember, error) {
	var staff domain.StaffMember
	if err := row.Scan(
		&staff.ID,
		&staff.Name,
		&staff.Email,
		&staff.PasswordHash,
		&staff.Role,
		&staff.SecretariatID,
		&staff.Active,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &staff, nil
}
