package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/events"
	"github.com/spec-kit/ombudsman-service/internal/repository"
	"github.com/spec-kit/ombudsman-service/internal/routing"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

const intakeAttempts = 3

var (
	errDuplicateMessage  = errors.New("provider message already ingested")
	errProtocolCollision = errors.New("protocol collided on insert")
)

// InboundMessage is one provider message that may open a case.
type InboundMessage struct {
	Channel           domain.Channel
	Source            string
	Sender            CitizenHints
	Text              string
	ProviderMessageID string
	Metadata          map[string]any
}

// IntakeResult reports what Ingest did.
type IntakeResult struct {
	CaseID    string
	Protocol  string
	QueueID   *string
	Routed    bool
	Duplicate bool
	Conflict  bool
}

// IntakeService turns inbound messages into routed cases.
type IntakeService struct {
	tx         repository.Transactor
	cases      repository.CaseRepository
	messages   repository.MessageRepository
	missing    repository.MissingFieldRepository
	citizens   *CitizenResolver
	protocols  *ProtocolGenerator
	engine     *routing.Engine
	sla        *SLAScheduler
	audit      *AuditRecorder
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// IntakeDependencies bundles collaborators for intake.
type IntakeDependencies struct {
	Transactor       repository.Transactor
	CaseRepo         repository.CaseRepository
	MessageRepo      repository.MessageRepository
	MissingFieldRepo repository.MissingFieldRepository
	Citizens         *CitizenResolver
	Protocols        *ProtocolGenerator
	Engine           *routing.Engine
	SLA              *SLAScheduler
	Audit            *AuditRecorder
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// NewIntakeService constructs the pipeline.
func NewIntakeService(deps IntakeDependencies) *IntakeService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeService{
		tx:         deps.Transactor,
		cases:      deps.CaseRepo,
		messages:   deps.MessageRepo,
		missing:    deps.MissingFieldRepo,
		citizens:   deps.Citizens,
		protocols:  deps.Protocols,
		engine:     deps.Engine,
		sla:        deps.SLA,
		audit:      deps.Audit,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Ingest opens a case for a provider message. A message id seen before is
// skipped entirely and reported as Duplicate.
func (s *IntakeService) Ingest(ctx context.Context, in InboundMessage) (*IntakeResult, error) {
	in.ProviderMessageID = strings.TrimSpace(in.ProviderMessageID)
	if in.ProviderMessageID == "" {
		return nil, apperrors.NewValidationError("provider message id is required", nil)
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, apperrors.NewValidationError("message text is required", nil)
	}
	if in.Source == "" {
		in.Source = string(in.Channel)
	}

	seen, err := s.messages.ExistsByExternalID(ctx, in.ProviderMessageID)
	if err != nil {
		return nil, err
	}
	if seen {
		s.logger.Info("duplicate inbound message skipped", zap.String("provider_message_id", in.ProviderMessageID))
		return &IntakeResult{Duplicate: true}, nil
	}

	var (
		res *IntakeResult
		c   *domain.Case
	)
	for attempt := 0; attempt < intakeAttempts; attempt++ {
		res, c, err = s.ingestOnce(ctx, in)
		// A lost race on any unique index aborts the transaction; run it again.
		if !errors.Is(err, errProtocolCollision) && !apperrors.IsUniqueViolation(err) {
			break
		}
	}
	if errors.Is(err, errDuplicateMessage) {
		return &IntakeResult{Duplicate: true}, nil
	}
	if errors.Is(err, errProtocolCollision) {
		return nil, apperrors.NewExhausted("could not allocate a unique protocol", err)
	}
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, in, c, res)
	return res, nil
}

func (s *IntakeService) ingestOnce(ctx context.Context, in InboundMessage) (*IntakeResult, *domain.Case, error) {
	res := &IntakeResult{}
	var created *domain.Case

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		citizen, conflict, err := s.citizens.FindOrCreate(ctx, in.Channel, in.Sender)
		if err != nil {
			return fmt.Errorf("resolve citizen: %w", err)
		}
		res.Conflict = conflict

		protocol, err := s.protocols.Generate(ctx)
		if err != nil {
			return err
		}

		c := &domain.Case{
			Protocol: protocol,
			Status:   domain.CaseStatusNew,
			Priority: domain.CasePriorityNormal,
			Source:   in.Source,
			Channel:  in.Channel,
			Metadata: in.Metadata,
		}
		c.MirrorCitizen(citizen)
		if err := s.cases.Create(ctx, c); err != nil {
			if apperrors.IsUniqueViolation(err) {
				return errProtocolCollision
			}
			return fmt.Errorf("create case: %w", err)
		}

		for _, field := range MissingFieldsFor(in.Channel, citizen) {
			if err := s.missing.Insert(ctx, c.ID, field); err != nil {
				return fmt.Errorf("insert missing field: %w", err)
			}
		}

		externalID := in.ProviderMessageID
		inserted, err := s.messages.Create(ctx, &domain.Message{
			CaseID:            c.ID,
			Direction:         domain.DirectionInbound,
			Type:              "text",
			Content:           in.Text,
			DeliveryStatus:    domain.DeliverySent,
			ExternalMessageID: &externalID,
			Metadata:          in.Metadata,
		})
		if err != nil {
			return fmt.Errorf("store inbound message: %w", err)
		}
		if !inserted {
			return errDuplicateMessage
		}

		routed, err := s.engine.Route(ctx, c.ID, routing.Input{Channel: in.Channel, Text: in.Text})
		if err != nil {
			return fmt.Errorf("route case: %w", err)
		}
		if routed.Priority != nil {
			c.Priority = *routed.Priority
		}
		if routed.Routed() {
			c.Status = domain.CaseStatusAssigned
			c.QueueID = routed.QueueID
			c.SecretariatID = routed.SecretariatID
			if err := s.cases.Update(ctx, c); err != nil {
				return fmt.Errorf("assign case: %w", err)
			}
			due, err := s.sla.Deadline(ctx, c.ID, *routed.QueueID, routed.SLAHours)
			if err != nil {
				return fmt.Errorf("set sla deadline: %w", err)
			}
			c.SLADueAt = &due
		}

		res.CaseID = c.ID
		res.Protocol = c.Protocol
		res.QueueID = c.QueueID
		res.Routed = routed.Routed()
		created = c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res, created, nil
}

func (s *IntakeService) afterCommit(ctx context.Context, in InboundMessage, c *domain.Case, res *IntakeResult) {
	if res.Routed && c.SLADueAt != nil {
		// The case is committed; a lost timer is logged and counted.
		if err := s.sla.Schedule(ctx, *c.SLADueAt, c.ID, c.QueueID); err != nil {
			s.logger.Error("sla timer not scheduled", zap.String("case_id", c.ID), zap.Error(err))
		}
	}
	s.audit.Record(ctx, AuditEntry{
		EntityType: domain.EntityCase,
		EntityID:   c.ID,
		Action:     "created",
		Caller:     domain.SystemCaller(),
		New: map[string]any{
			"protocol": c.Protocol,
			"channel":  c.Channel,
			"routed":   res.Routed,
		},
	})

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:   events.EventCaseCreated,
		CaseID: c.ID,
		Actor:  events.Actor{Type: "system"},
		Payload: events.CaseCreatedPayload{
			Protocol: c.Protocol,
			Channel:  string(c.Channel),
			QueueID:  c.QueueID,
			Routed:   res.Routed,
		},
	})
	if !res.Routed {
		sender := in.Sender.Phone
		switch in.Channel {
		case domain.ChannelWhatsApp:
			sender = in.Sender.WhatsAppID
		case domain.ChannelInstagram:
			sender = in.Sender.InstagramUserID
		}
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:   events.EventInboundReceived,
			CaseID: c.ID,
			Actor:  events.Actor{Type: "system"},
			Payload: events.InboundReceivedPayload{
				CaseID:  c.ID,
				Message: in.Text,
				Sender:  sender,
				Channel: string(in.Channel),
			},
		})
	}
	s.logger.Info("case created",
		zap.String("case_id", c.ID),
		zap.String("protocol", c.Protocol),
		zap.String("channel", string(c.Channel)),
		zap.Bool("routed", res.Routed))
}

// WebForm is the public intake form.
type WebForm struct {
	Name        string
	Email       string
	Phone       string
	Description string
	Consent     bool
	IP          string
	UserAgent   string
}

// SubmitWebForm validates the public form and runs it through Ingest.
func (s *IntakeService) SubmitWebForm(ctx context.Context, form WebForm) (*IntakeResult, error) {
	details := map[string]any{}
	if strings.TrimSpace(form.Name) == "" {
		details["name"] = "required"
	}
	if strings.TrimSpace(form.Description) == "" {
		details["description"] = "required"
	}
	if NormalizeEmail(form.Email) == nil {
		details["email"] = "invalid email"
	}
	if NormalizePhone(form.Phone) == nil {
		details["phone"] = "invalid phone, expected E.164"
	}
	if !form.Consent {
		details["consent"] = "consent is required"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid form", details)
	}

	return s.Ingest(ctx, InboundMessage{
		Channel: domain.ChannelWeb,
		Source:  "web_form",
		Sender: CitizenHints{
			FullName:      form.Name,
			Email:         form.Email,
			Phone:         form.Phone,
			Consent:       true,
			ConsentSource: "web_form",
		},
		Text:              strings.TrimSpace(form.Description),
		ProviderMessageID: "web_" + uuid.NewString(),
		Metadata:          map[string]any{"ip": form.IP, "user_agent": form.UserAgent},
	})
}

// Lookup returns the public summary of a case by protocol.
func (s *IntakeService) Lookup(ctx context.Context, protocol string) (*repository.CaseSummary, error) {
	canonical := NormalizeProtocol(protocol)
	if canonical == "" {
		return nil, apperrors.NewValidationError("invalid protocol format", nil)
	}
	summary, err := s.cases.PublicSummary(ctx, canonical)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("protocol", nil)
	}
	return summary, err
}
