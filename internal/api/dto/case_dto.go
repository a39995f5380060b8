package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository"
	"github.com/spec-kit/ombudsman-service/internal/service"
)

// StatusRequest payload.
type StatusRequest struct {
	Status domain.CaseStatus `json:"status"`
}

// PriorityRequest payload.
type PriorityRequest struct {
	Priority string `json:"priority"`
}

// TagsRequest payload.
type TagsRequest struct {
	Tags []string `json:"tags"`
}

// TransferRequest payload.
type TransferRequest struct {
	QueueID string `json:"queue_id"`
}

// AssignRequest payload; a null staff_id unassigns.
type AssignRequest struct {
	StaffID *string `json:"staff_id"`
}

// TextRequest is used by replies and internal notes.
type TextRequest struct {
	Text string `json:"text"`
}

// AgentRunRequest payload.
type AgentRunRequest struct {
	MessageID *string `json:"message_id"`
}

// CitizenUpdateRequest carries the fields to overwrite.
type CitizenUpdateRequest struct {
	FullName          *string `json:"full_name"`
	Email             *string `json:"email"`
	PhoneE164         *string `json:"phone_e164"`
	InstagramUsername *string `json:"instagram_username"`
}

// SimulateRequest asks which rule would match.
type SimulateRequest struct {
	Channel domain.Channel `json:"channel"`
	Text    string         `json:"text"`
}

// CaseResponse is the staff view of a case.
type CaseResponse struct {
	ID            string              `json:"id"`
	Protocol      string              `json:"protocol"`
	CitizenID     string              `json:"citizen_id"`
	CitizenName   *string             `json:"citizen_name"`
	CitizenEmail  *string             `json:"citizen_email"`
	CitizenPhone  *string             `json:"citizen_phone"`
	Status        domain.CaseStatus   `json:"status"`
	Priority      domain.CasePriority `json:"priority"`
	Source        string              `json:"source"`
	Channel       domain.Channel      `json:"channel"`
	QueueID       *string             `json:"queue_id"`
	SecretariatID *string             `json:"secretariat_id"`
	AssignedTo    *string             `json:"assigned_to"`
	SLADueAt      *time.Time          `json:"sla_due_at"`
	SLABreached   bool                `json:"sla_breached"`
	Metadata      map[string]any      `json:"metadata,omitempty"`
	ResolvedAt    *time.Time          `json:"resolved_at"`
	ClosedAt      *time.Time          `json:"closed_at"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// CaseDetailResponse adds tags and outstanding citizen data.
type CaseDetailResponse struct {
	CaseResponse
	Tags          []string `json:"tags"`
	MissingFields []string `json:"missing_fields"`
}

// NewCaseResponse projects a case.
func NewCaseResponse(c *domain.Case) CaseResponse {
	return CaseResponse{
		ID:            c.ID,
		Protocol:      c.Protocol,
		CitizenID:     c.CitizenID,
		CitizenName:   c.CitizenName,
		CitizenEmail:  c.CitizenEmail,
		CitizenPhone:  c.CitizenPhone,
		Status:        c.Status,
		Priority:      c.Priority,
		Source:        c.Source,
		Channel:       c.Channel,
		QueueID:       c.QueueID,
		SecretariatID: c.SecretariatID,
		AssignedTo:    c.AssignedTo,
		SLADueAt:      c.SLADueAt,
		SLABreached:   c.SLABreached,
		Metadata:      c.Metadata,
		ResolvedAt:    c.ResolvedAt,
		ClosedAt:      c.ClosedAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// NewCaseDetailResponse projects a case with its tags and pending fields.
func NewCaseDetailResponse(d *service.CaseDetail) CaseDetailResponse {
	resp := CaseDetailResponse{
		CaseResponse:  NewCaseResponse(d.Case),
		Tags:          make([]string, 0, len(d.Tags)),
		MissingFields: []string{},
	}
	for _, t := range d.Tags {
		resp.Tags = append(resp.Tags, t.Name)
	}
	for _, f := range d.MissingFields {
		if !f.IsProvided {
			resp.MissingFields = append(resp.MissingFields, f.FieldName)
		}
	}
	return resp
}

// MessageResponse is one thread entry.
type MessageResponse struct {
	ID                string                  `json:"id"`
	CaseID            string                  `json:"case_id"`
	Direction         domain.MessageDirection `json:"direction"`
	Type              string                  `json:"type"`
	Content           string                  `json:"content"`
	IsInternal        bool                    `json:"is_internal"`
	AuthorID          *string                 `json:"author_id"`
	DeliveryStatus    domain.DeliveryStatus   `json:"delivery_status,omitempty"`
	LastError         *string                 `json:"last_error"`
	ExternalMessageID *string                 `json:"external_message_id"`
	IsProcessed       bool                    `json:"is_processed"`
	SentAt            *time.Time              `json:"sent_at"`
	CreatedAt         time.Time               `json:"created_at"`
}

// NewMessageResponse projects a message.
func NewMessageResponse(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:                m.ID,
		CaseID:            m.CaseID,
		Direction:         m.Direction,
		Type:              m.Type,
		Content:           m.Content,
		IsInternal:        m.IsInternal,
		AuthorID:          m.AuthorID,
		DeliveryStatus:    m.DeliveryStatus,
		LastError:         m.LastError,
		ExternalMessageID: m.ExternalMessageID,
		IsProcessed:       m.IsProcessed,
		SentAt:            m.SentAt,
		CreatedAt:         m.CreatedAt,
	}
}

// TimelineEntryResponse is one rendered audit row.
type TimelineEntryResponse struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	ActorType string          `json:"actor_type"`
	ActorID   *string         `json:"actor_id"`
	ActorName *string         `json:"actor_name"`
	ActorRole *string         `json:"actor_role"`
	Summary   string          `json:"summary"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// TimelineResponse is one page of the audit trail.
type TimelineResponse struct {
	Entries    []TimelineEntryResponse `json:"entries"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

// NewTimelineResponse projects a timeline page.
func NewTimelineResponse(p *service.TimelinePage) TimelineResponse {
	resp := TimelineResponse{Entries: make([]TimelineEntryResponse, 0, len(p.Entries)), NextCursor: p.NextCursor}
	for _, e := range p.Entries {
		resp.Entries = append(resp.Entries, TimelineEntryResponse(e))
	}
	return resp
}

// CitizenResponse is the staff view of a citizen profile.
type CitizenResponse struct {
	ID                string     `json:"id"`
	FullName          *string    `json:"full_name"`
	Email             *string    `json:"email"`
	PhoneE164         *string    `json:"phone_e164"`
	WhatsAppID        *string    `json:"whatsapp_wa_id"`
	InstagramUserID   *string    `json:"instagram_user_id"`
	InstagramUsername *string    `json:"instagram_username"`
	ConsentAt         *time.Time `json:"consent_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewCitizenResponse projects a citizen profile.
func NewCitizenResponse(p *domain.CitizenProfile) CitizenResponse {
	return CitizenResponse{
		ID:                p.ID,
		FullName:          p.FullName,
		Email:             p.Email,
		PhoneE164:         p.PhoneE164,
		WhatsAppID:        p.WhatsAppID,
		InstagramUserID:   p.InstagramUserID,
		InstagramUsername: p.InstagramUsername,
		ConsentAt:         p.ConsentAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

// PublicCaseRequest is the citizen web form.
type PublicCaseRequest struct {
	Name        string `json:"full_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone_e164"`
	Description string `json:"description"`
	Consent     bool   `json:"consent"`
}

// PublicCaseCreated acknowledges a web submission.
type PublicCaseCreated struct {
	Protocol string `json:"protocol"`
}

// PublicCaseStatus is what a citizen sees for a protocol.
type PublicCaseStatus struct {
	Protocol        string              `json:"protocol"`
	Status          domain.CaseStatus   `json:"status"`
	Priority        domain.CasePriority `json:"priority"`
	CreatedAt       time.Time           `json:"created_at"`
	SLADueAt        *time.Time          `json:"sla_due_at"`
	SLABreached     bool                `json:"sla_breached"`
	QueueName       *string             `json:"queue_name"`
	SecretariatName *string             `json:"secretariat_name"`
}

// NewPublicCaseStatus projects the public summary.
func NewPublicCaseStatus(s *repository.CaseSummary) PublicCaseStatus {
	return PublicCaseStatus(*s)
}
