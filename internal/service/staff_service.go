package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ombudsman-service/internal/auth"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

// StaffService manages the staff directory.
type StaffService struct {
	staff      repository.StaffRepository
	queues     repository.QueueRepository
	audit      *AuditRecorder
	bcryptCost int
}

// StaffInput describes a new staff account.
type StaffInput struct {
	Name          string
	Email         string
	Password      string
	Role          domain.StaffRole
	SecretariatID *string
}

// StaffListFilters define listing parameters.
type StaffListFilters struct {
	Role          *domain.StaffRole
	SecretariatID *string
	Active        *bool
	Limit         int
	Offset        int
}

// NewStaffService constructs the service.
func NewStaffService(staff repository.StaffRepository, queues repository.QueueRepository, audit *AuditRecorder, bcryptCost int) *StaffService {
	return &StaffService{staff: staff, queues: queues, audit: audit, bcryptCost: bcryptCost}
}

var staffRoles = map[domain.StaffRole]bool{
	domain.StaffRoleAdmin:         true,
	domain.StaffRoleManager:       true,
	domain.StaffRoleOperator:      true,
	domain.StaffRoleViewer:        true,
	domain.StaffRoleSecretariat:   true,
	domain.StaffRoleGlobalViewer:  true,
	domain.StaffRoleGlobalManager: true,
}

func requireAdmin(caller domain.Caller) error {
	if caller.Role != domain.StaffRoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// CreateStaffMember adds a new staff account.
func (s *StaffService) CreateStaffMember(ctx context.Context, caller domain.Caller, in StaffInput) (*domain.StaffMember, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	email := NormalizeEmail(in.Email)
	details := map[string]any{}
	if strings.TrimSpace(in.Name) == "" {
		details["name"] = "required"
	}
	if email == nil {
		details["email"] = "invalid email"
	}
	if err := auth.ValidateStaffPassword(in.Password); err != nil {
		details["password"] = err.Error()
	}
	if !staffRoles[in.Role] {
		details["role"] = "unknown role"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid staff member", details)
	}

	if existing, err := s.staff.GetByEmail(ctx, *email); err == nil && existing != nil {
		return nil, apperrors.NewConflict("staff email already exists", map[string]any{"email": *email})
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	if in.SecretariatID != nil && *in.SecretariatID != "" {
		if _, err := s.queues.GetSecretariat(ctx, *in.SecretariatID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("secretariat", map[string]any{"secretariat_id": *in.SecretariatID})
			}
			return nil, apperrors.MapError(err)
		}
	} else {
		in.SecretariatID = nil
	}

	hash, err := auth.HashStaffPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	staff := &domain.StaffMember{
		Name:          strings.TrimSpace(in.Name),
		Email:         *email,
		PasswordHash:  hash,
		Role:          in.Role,
		SecretariatID: in.SecretariatID,
		Active:        true,
	}
	if err := s.staff.Create(ctx, staff); err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.NewConflict("staff email already exists", map[string]any{"email": *email})
		}
		return nil, apperrors.MapError(err)
	}

	s.audit.Record(ctx, AuditEntry{
		EntityType: domain.EntityStaff,
		EntityID:   staff.ID,
		Action:     "staff.create",
		Caller:     caller,
		New: map[string]any{
			"email":          staff.Email,
			"role":           staff.Role,
			"secretariat_id": staff.SecretariatID,
		},
	})
	return staff, nil
}

// ListStaffMembers lists staff. Admins and global roles see everyone;
// everybody else only sees their own secretariat.
func (s *StaffService) ListStaffMembers(ctx context.Context, caller domain.Caller, filters StaffListFilters) ([]domain.StaffMember, error) {
	switch caller.Role {
	case domain.StaffRoleAdmin, domain.StaffRoleGlobalManager, domain.StaffRoleGlobalViewer:
	default:
		if caller.SecretariatID == nil {
			return nil, apperrors.NewForbidden("no secretariat assigned")
		}
		filters.SecretariatID = caller.SecretariatID
	}
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	return s.staff.List(ctx, repository.StaffFilter{
		Role:          filters.Role,
		SecretariatID: filters.SecretariatID,
		Active:        filters.Active,
		Limit:         filters.Limit,
		Offset:        filters.Offset,
	})
}
