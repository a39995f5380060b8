package events

import "time"

// EventType enumerates supported event identifiers. Values double as the
// event_type sent to the automation collaborator.
type EventType string

const (
	EventCaseCreated       EventType = "case_created"
	EventInboundReceived   EventType = "inbound_message_received"
	EventAgentRunRequested EventType = "agent_run"
	EventSLABreached       EventType = "sla_breached"
	EventCaseStatusChanged EventType = "case_status_changed"
	EventOutboundFailed    EventType = "outbound_delivery_failed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    string  `json:"type"`
	StaffID *string `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	CaseID    string      `json:"case_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CaseCreatedPayload payload.
type CaseCreatedPayload struct {
	Protocol string  `json:"protocol"`
	Channel  string  `json:"channel"`
	QueueID  *string `json:"queue_id,omitempty"`
	Routed   bool    `json:"routed"`
}

// InboundReceivedPayload carries an unrouted message for automated triage.
type InboundReceivedPayload struct {
	CaseID  string `json:"case_id"`
	Message string `json:"message"`
	Sender  string `json:"sender"`
	Channel string `json:"channel"`
}

// AgentRunPayload asks the automation agent to work on a case.
type AgentRunPayload struct {
	RunID     string         `json:"agent_run_id"`
	CaseID    string         `json:"case_id"`
	MessageID *string        `json:"message_id,omitempty"`
	Context   map[string]any `json:"context"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	DueAt   time.Time `json:"due_at"`
	QueueID *string   `json:"queue_id,omitempty"`
}

// CaseStatusChangedPayload payload.
type CaseStatusChangedPayload struct {
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// OutboundFailedPayload payload.
type OutboundFailedPayload struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}
