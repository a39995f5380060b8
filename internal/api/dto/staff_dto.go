package dto

import (
	"time"

	"github.com/spec-kit/ombudsman-service/internal/domain"
)

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries an issued access token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StaffCreateRequest payload for admins.
type StaffCreateRequest struct {
	Name          string           `json:"name"`
	Email         string           `json:"email"`
	Password      string           `json:"password"`
	Role          domain.StaffRole `json:"role"`
	SecretariatID *string          `json:"secretariat_id"`
}

// StaffResponse never includes the password hash.
type StaffResponse struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Email         string           `json:"email"`
	Role          domain.StaffRole `json:"role"`
	SecretariatID *string          `json:"secretariat_id"`
	Active        bool             `json:"active"`
}

// NewStaffResponse projects a staff member.
func NewStaffResponse(s *domain.StaffMember) StaffResponse {
	return StaffResponse{
		ID:            s.ID,
		Name:          s.Name,
		Email:         s.Email,
		Role:          s.Role,
		SecretariatID: s.SecretariatID,
		Active:        s.Active,
	}
}
