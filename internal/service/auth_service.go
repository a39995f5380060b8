package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ombudsman-service/internal/auth"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

// LoginRequest carries credentials plus the request origin for security logging.
type LoginRequest struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
	Path      string
}

// AuthService authenticates staff members.
type AuthService struct {
	staff    repository.StaffRepository
	tokenMgr *auth.TokenManager
	audit    *AuditRecorder
}

// NewAuthService builds the service.
func NewAuthService(tokens *auth.TokenManager, staff repository.StaffRepository, audit *AuditRecorder) *AuthService {
	return &AuthService{staff: staff, tokenMgr: tokens, audit: audit}
}

// LoginStaff authenticates staff and returns a role-bearing token. Every
// failure looks the same to the caller and is kept as a security event.
func (s *AuthService) LoginStaff(ctx context.Context, req LoginRequest) (*domain.StaffMember, string, time.Time, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, "", time.Time{}, apperrors.NewValidationError("email and password are required", nil)
	}

	staff, err := s.staff.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", time.Time{}, err
	}

	reason := ""
	switch {
	case staff == nil:
		reason = "unknown_email"
	case !staff.Active:
		reason = "inactive"
	case !auth.CheckStaffPassword(staff.PasswordHash, req.Password):
		reason = "bad_password"
	}
	if reason != "" {
		var userID *string
		if staff != nil {
			userID = &staff.ID
		}
		s.audit.RecordSecurity(ctx, SecurityEvent{
			Type:      "login_failed",
			UserID:    userID,
			IP:        req.IP,
			Path:      req.Path,
			UserAgent: req.UserAgent,
			Details:   map[string]any{"email": strings.ToLower(email), "reason": reason},
		})
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}

	token, exp, err := s.tokenMgr.GenerateToken(staff)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return staff, token, exp, nil
}

// TokenManager exposes the underlying token manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
