package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleAdmin         StaffRole = "admin"
	StaffRoleManager       StaffRole = "manager"
	StaffRoleOperator      StaffRole = "operator"
	StaffRoleViewer        StaffRole = "viewer"
	StaffRoleSecretariat   StaffRole = "secretariat"
	StaffRoleGlobalViewer  StaffRole = "GABINETE_VIEWER_GLOBAL"
	StaffRoleGlobalManager StaffRole = "GOVERNO_GESTOR_GLOBAL"
	StaffRoleSystem        StaffRole = "system"
)

// StaffMember models a secretariat employee or administrator.
type StaffMember struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  string
	Role          StaffRole
	SecretariatID *string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Caller builds the authorization context for this staff member.
func (s *StaffMember) Caller(ip, userAgent string) Caller {
	return Caller{
		StaffID:       s.ID,
		Role:          s.Role,
		SecretariatID: s.SecretariatID,
		IP:            ip,
		UserAgent:     userAgent,
	}
}
