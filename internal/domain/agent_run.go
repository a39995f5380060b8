package domain

import (
	"encoding/json"
	"time"
)

// AgentRunStatus tracks an automation agent invocation.
type AgentRunStatus string

const (
	AgentRunPending   AgentRunStatus = "pending"
	AgentRunCompleted AgentRunStatus = "completed"
)

// RiskLevel as reported by the automation agent.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AgentRun is one invocation of the automation agent for a case.
type AgentRun struct {
	ID           string
	CaseID       string
	MessageID    *string
	RequestJSON  json.RawMessage
	ResponseJSON json.RawMessage
	Confidence   *float64
	RiskLevel    *RiskLevel
	Status       AgentRunStatus
	CreatedAt    time.Time
	CompletedAt  *time.Time
}
