package domain

import "time"

// CaseStatus enumerates lifecycle states for cases.
type CaseStatus string

const (
	CaseStatusNew            CaseStatus = "new"
	CaseStatusRouting        CaseStatus = "routing"
	CaseStatusAssigned       CaseStatus = "assigned"
	CaseStatusInProgress     CaseStatus = "in_progress"
	CaseStatusWaitingCitizen CaseStatus = "waiting_citizen"
	CaseStatusResolved       CaseStatus = "resolved"
	CaseStatusTriageHuman    CaseStatus = "triage_human"
	CaseStatusClosed         CaseStatus = "closed"
)

// IsTerminal reports whether SLA tracking no longer applies.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusResolved || s == CaseStatusClosed
}

// Valid reports whether s is a known status.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseStatusNew, CaseStatusRouting, CaseStatusAssigned, CaseStatusInProgress,
		CaseStatusWaitingCitizen, CaseStatusResolved, CaseStatusTriageHuman, CaseStatusClosed:
		return true
	}
	return false
}

// CasePriority enumerates SLA urgency.
type CasePriority string

const (
	CasePriorityLow    CasePriority = "low"
	CasePriorityNormal CasePriority = "normal"
	CasePriorityHigh   CasePriority = "high"
	CasePriorityUrgent CasePriority = "urgent"
)

// ParsePriority accepts only the four known priorities.
func ParsePriority(value string) (CasePriority, bool) {
	switch p := CasePriority(value); p {
	case CasePriorityLow, CasePriorityNormal, CasePriorityHigh, CasePriorityUrgent:
		return p, true
	}
	return "", false
}

// Channel identifies where a case came from.
type Channel string

const (
	ChannelWeb       Channel = "web"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelInstagram Channel = "instagram"
	ChannelPhone     Channel = "phone"
)

// Case is the aggregate for a citizen request.
type Case struct {
	ID            string
	Protocol      string
	CitizenID     string
	CitizenName   *string
	CitizenEmail  *string
	CitizenPhone  *string
	Status        CaseStatus
	Priority      CasePriority
	Source        string
	Channel       Channel
	QueueID       *string
	SecretariatID *string // derived through the queue, never stored on the case
	AssignedTo    *string
	SLADueAt      *time.Time
	SLABreached   bool
	Metadata      map[string]any
	ResolvedAt    *time.Time
	ClosedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MirrorCitizen copies the citizen snapshot onto the case.
func (c *Case) MirrorCitizen(citizen *CitizenProfile) {
	c.CitizenID = citizen.ID
	c.CitizenName = citizen.FullName
	c.CitizenEmail = citizen.Email
	c.CitizenPhone = citizen.PhoneE164
}

// Ownership projects the fields visibility rules look at.
func (c *Case) Ownership() CaseOwnership {
	return CaseOwnership{QueueID: c.QueueID, AssignedTo: c.AssignedTo, SecretariatID: c.SecretariatID}
}

// CaseOwnership is the minimal view needed for access decisions.
type CaseOwnership struct {
	QueueID       *string
	AssignedTo    *string
	SecretariatID *string
}

// MissingField records a citizen data point still required for the case's channel.
type MissingField struct {
	ID         string
	CaseID     string
	FieldName  string
	IsProvided bool
	CreatedAt  time.Time
}
