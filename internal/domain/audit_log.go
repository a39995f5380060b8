package domain

import (
	"encoding/json"
	"time"
)

// Entity types used in the audit trail.
const (
	EntityCase        = "case"
	EntityCitizen     = "citizen"
	EntityMessage     = "message"
	EntityAgentRun    = "agent_run"
	EntityIntegration = "integration"
	EntityStaff       = "staff"
)

// AuditLog is an immutable audit trail entry.
type AuditLog struct {
	ID         string
	Seq        int64
	EntityType string
	EntityID   string
	Action     string
	UserID     *string
	UserName   *string
	UserRole   *string
	OldValue   json.RawMessage
	NewValue   json.RawMessage
	IP         *string
	UserAgent  *string
	CreatedAt  time.Time
}

// SecurityEvent captures auth and abuse signals independent of entity mutations.
type SecurityEvent struct {
	ID        string
	Type      string
	UserID    *string
	IP        *string
	Path      *string
	UserAgent *string
	Details   json.RawMessage
	CreatedAt time.Time
}
