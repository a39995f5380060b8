package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/auth"
	"github.com/spec-kit/ombudsman-service/internal/channel"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/events"
	"github.com/spec-kit/ombudsman-service/internal/observability"
	"github.com/spec-kit/ombudsman-service/internal/repository"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

var allowedTransitions = map[domain.CaseStatus][]domain.CaseStatus{
	domain.CaseStatusNew:            {domain.CaseStatusRouting, domain.CaseStatusAssigned, domain.CaseStatusTriageHuman, domain.CaseStatusClosed},
	domain.CaseStatusRouting:        {domain.CaseStatusAssigned, domain.CaseStatusTriageHuman},
	domain.CaseStatusAssigned:       {domain.CaseStatusInProgress, domain.CaseStatusWaitingCitizen, domain.CaseStatusResolved, domain.CaseStatusTriageHuman},
	domain.CaseStatusInProgress:     {domain.CaseStatusWaitingCitizen, domain.CaseStatusResolved, domain.CaseStatusTriageHuman},
	domain.CaseStatusWaitingCitizen: {domain.CaseStatusInProgress, domain.CaseStatusResolved, domain.CaseStatusTriageHuman},
	domain.CaseStatusTriageHuman:    {domain.CaseStatusAssigned, domain.CaseStatusInProgress, domain.CaseStatusResolved, domain.CaseStatusClosed},
	domain.CaseStatusResolved:       {domain.CaseStatusInProgress, domain.CaseStatusClosed},
}

func isValidTransition(from, to domain.CaseStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CaseService holds the case mutations shared by staff endpoints and the
// agent policy. Every operation checks access and writes an audit row.
type CaseService struct {
	cases      repository.CaseRepository
	messages   repository.MessageRepository
	tags       repository.TagRepository
	missing    repository.MissingFieldRepository
	queues     repository.QueueRepository
	staff      repository.StaffRepository
	scopes     *auth.ScopeResolver
	sla        *SLAScheduler
	sender     channel.Sender
	audit      *AuditRecorder
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// CaseDependencies bundles collaborators for the case service.
type CaseDependencies struct {
	CaseRepo         repository.CaseRepository
	MessageRepo      repository.MessageRepository
	TagRepo          repository.TagRepository
	MissingFieldRepo repository.MissingFieldRepository
	QueueRepo        repository.QueueRepository
	StaffRepo        repository.StaffRepository
	Scopes           *auth.ScopeResolver
	SLA              *SLAScheduler
	Sender           channel.Sender
	Audit            *AuditRecorder
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
}

// NewCaseService constructs the service.
func NewCaseService(deps CaseDependencies) *CaseService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sender := deps.Sender
	if sender == nil {
		sender = channel.NewRouter()
	}
	return &CaseService{
		cases:      deps.CaseRepo,
		messages:   deps.MessageRepo,
		tags:       deps.TagRepo,
		missing:    deps.MissingFieldRepo,
		queues:     deps.QueueRepo,
		staff:      deps.StaffRepo,
		scopes:     deps.Scopes,
		sla:        deps.SLA,
		sender:     sender,
		audit:      deps.Audit,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// CaseDetail is a case with its tags and outstanding citizen data.
type CaseDetail struct {
	Case          *domain.Case
	Tags          []domain.Tag
	MissingFields []domain.MissingField
}

// Load fetches a case and checks the caller may see it. Not-found and
// forbidden stay distinct; the transport decides whether to mask them.
func (s *CaseService) Load(ctx context.Context, caller domain.Caller, caseID string) (*domain.Case, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("case", map[string]any{"id": caseID})
	}
	if err != nil {
		return nil, err
	}
	scope, err := s.scopes.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !auth.CanAccess(scope, c.Ownership()) {
		return nil, apperrors.NewForbidden("case not visible to caller")
	}
	return c, nil
}

// Get returns the case with tags and missing fields.
func (s *CaseService) Get(ctx context.Context, caller domain.Caller, caseID string) (*CaseDetail, error) {
	c, err := s.Load(ctx, caller, caseID)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	missing, err := s.missing.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return &CaseDetail{Case: c, Tags: tags, MissingFields: missing}, nil
}

// List returns the cases visible to the caller that match filter.
func (s *CaseService) List(ctx context.Context, caller domain.Caller, filter repository.CaseFilter) ([]domain.Case, error) {
	scope, err := s.scopes.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.cases.List(ctx, auth.ScopeQuery(scope, filter))
}

// SetStatus moves the case along the lifecycle.
func (s *CaseService) SetStatus(ctx context.Context, caller domain.Caller, caseID string, status domain.CaseStatus) (*domain.Case, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
	}
	c, err := s.Load(ctx, caller, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status == status {
		return c, nil
	}
	if !isValidTransition(c.Status, status) {
		return nil, apperrors.NewConflict("invalid status transition", map[string]any{"from": c.Status, "to": status})
	}
	return s.changeStatus(ctx, caller, c, status, nil)
}

// forceHandoff moves a case to human triage from any status, skipping the
// lifecycle table. Only the agent policy calls it.
func (s *CaseService) forceHandoff(ctx context.Context, caller domain.Caller, caseID string) (*domain.Case, error) {
	c, err := s.Load(ctx, caller, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.CaseStatusTriageHuman {
		return c, nil
	}
	return s.changeStatus(ctx, caller, c, domain.CaseStatusTriageHuman, map[string]any{"forced": true})
}

func (s *CaseService) changeStatus(ctx context.Context, caller domain.Caller, c *domain.Case, status domain.CaseStatus, extra map[string]any) (*domain.Case, error) {
	caseID := c.ID
	old := c.Status
	now := s.now().UTC()
	c.Status = status
	switch status {
	case domain.CaseStatusResolved:
		c.ResolvedAt = &now
	case domain.CaseStatusClosed:
		c.ClosedAt = &now
	}
	if err := s.cases.Update(ctx, c); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		EntityType: domain.EntityCase, EntityID: caseID, Action: "cases.set_status", Caller: caller,
		Old: map[string]any{"status": old},
		New: statusSnapshot(status, extra),
	})
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:    events.EventCaseStatusChanged,
		CaseID:  caseID,
		Actor:   actorOf(caller),
		Payload: events.CaseStatusChangedPayload{OldStatus: string(old), NewStatus: string(status)},
	})
	return c, nil
}

func statusSnapshot(status domain.CaseStatus, extra map[string]any) map[string]any {
	snap := map[string]any{"status": status}
	for k, v := range extra {
		snap[k] = v
	}
	return snap
}

// SetPriority changes the priority; only the four known values are accepted.
func (s *CaseService) SetPriority(ctx context.Context, caller domain.Caller, caseID, value string) (*domain.Case, error) {
	priority, ok := domain.ParsePriority(value)
	if !ok {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": value})
	}
	c, err := s.Load(ctx, caller, caseID)
	if err != nil {
		return nil, err
	}
	old := c.Priority
	if old == priority {
		return c, nil
	}
	if err := s.cases.UpdatePriority(ctx, caseID, priority); err != nil {
		return nil, err
	}
	c.Priority = priority
	s.audit.Record(ctx, AuditEntry{
		EntityType: domain.EntityCase, EntityID: caseID, Action: "cases.set_priority", Caller: caller,
		Old: map[string]any{"priority": old},
		New: map[string]any{"priority": priority},
	})
	return c, nil
}

// AttachTags attaches known tags by name. Unknown names and tags already on
// the case are skipped; the names actually attached are returned.
func (s *CaseService) AttachTags(ctx context.Context, caller domain.Caller, caseID string, names []string) ([]string, error) {
	if _, err := s.Load(ctx, caller, caseID); err != nil {
		return nil, err
	}
	current, err := s.tags.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	has := make(map[string]bool, len(current))
	for _, t := range current {
		has[t.ID] = true
	}

	var attached []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tag, err := s.tags.FindByName(ctx, name)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if has[tag.ID] {
			continue
		}
		if err := s.tags.Attach(ctx, caseID, tag.ID); err != nil {
			return nil, err
		}
		has[tag.ID] = true
		attached = append(attached, tag.Name)
	}
	if len(attached) > 0 {
		s.audit.Record(ctx, AuditEntry{
			EntityType: domain.EntityCase, EntityID: caseID, Action: "cases.add_tags", Caller: caller,
			New: map[string]any{"tags": attached},
		})
	}
	return attached, nil
}

// TransferQueue moves the case to another queue and re-arms its SLA.
func (s *CaseService) TransferQueue(ctx context.Context, caller domain.Caller, caseID, queueID string) (*domain.Case, error) {
	c, err := s.Load(ctx, caller, caseID)
	if err != nil {
		return nil, err
	}
	queue, err := s.queues.GetByID(ctx, queueID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("queue", map[string]any{"id": queueID})
	}
	if err != nil {
		return nil, err
	}
	if c.QueueID != nil && *c.QueueID == queue.ID {
		return c, nil
	}
	return s.moveToQueue(ctx, caller, c, queue)
}

func (s *CaseService) moveToQueue(ctx context.Context, caller domain.Caller, c *domain.Case, queue *domain.Queue) (*domain.Case, error) {
	oldQueue, oldSecretariat := c.QueueID, c.SecretariatID
	c.QueueID = &queue.ID
	if err := s.cases.Update(ctx, c); err != nil {
		return nil, err
	}
	if !c.Status.IsTerminal() && s.sla != nil {
		if _, err := s.sla.Arm(ctx, c.ID, queue.ID); err != nil {
			return nil, err
		}
	}

	s.audit.Record(ctx, AuditEntry{
		EntityType: domain.EntityCase, EntityID: c.ID, Action: "cases.transfer_queue", Caller: caller,
		Old: map[string]any{"queue_id": oldQueue},
		New: map[string]any{"queue_id": queue.ID},
	})
	if oldSecretariat == nil || *oldSecretariat != queue.SecretariatID {
		s.audit.Record(ctx, AuditEntry{
			EntityType: domain.EntityCase, EntityID: c.ID, Action: "cases.transfer_secretariat", Caller: caller,
			Old: map[string]any{"secretariat_id": oldSecretariat},
			New: map[string]any{"secretariat_id": queue.SecretariatID},
		})
	}
	return s.cases.GetByID(ctx, c.ID)
}

// Assign sets or clears the responsible staff member.
func (s *CaseService) Assign(ctx context.Context, caller domain.Caller, caseID string, staffID *string) (*domain.Case, error) {
	c, err := s.Load(ctx, caller, caseID)
	if err != nil {
		return nil, err
	}
	if staffID != nil {
		member, err := s.staff.GetByID(ctx, *staffID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("staff member", map[string]any{"id": *staffID})
		}
		if err != nil {
			return nil, err
		}
		if !member.Active {
			return nil, apperrors.NewValidationError("staff member inactive", nil)
		}
	}
	old := c.AssignedTo
	if sameRef(old, staffID) {
		return c, nil
	}
	c.AssignedTo = staffID
	if err := s.cases.Update(ctx, c); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, AuditEntry{
		EntityType: domain.EntityCase, EntityID: caseID, Action: "cases.assign_user", Caller: caller,
		Old: map[string]any{"assigned_to": old},
		New: map[string]any{"assigned_to": staffID},
	})
	return c, nil
}

// Reply stores an outbound message as pending, hands it to the channel and
// records the outcome. A failed delivery is not an error.
func (s *CaseService) Reply(ctx context.Context, caller domain.Caller, caseID, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("text is required", nil)
	}
	c, err := s.Load(ctx, caller, caseID)
	if err != nil {
		return nil, err
	}
	msg := &domain.Message{
		CaseID:         caseID,
		Direction:      domain.DirectionOutbound,
		Type:           "text",
		Content:        text,
		AuthorID:       caller.ActorID(),
		DeliveryStatus: domain.DeliveryPending,
	}
	if _, err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.deliver(ctx, c, msg); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, AuditEntry{
		EntityType: domain.EntityCase, EntityID: caseID, Action: "messages.send_external", Caller: caller,
		New: map[string]any{"message_id": msg.ID, "delivery_status": msg.DeliveryStatus},
	})
	return msg, nil
}

// AddNote stores an internal note; notes never leave the system.
func (s *CaseService) AddNote(ctx context.Context, caller domain.Caller, caseID, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("text is required", nil)
	}
	if _, err := s.Load(ctx, caller, caseID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	msg := &domain.Message{
		CaseID:         caseID,
		Direction:      domain.DirectionOutbound,
		Type:           "text",
		Content:        text,
		IsInternal:     true,
		AuthorID:       caller.ActorID(),
		DeliveryStatus: domain.DeliverySent,
		SentAt:         &now,
	}
	if _, err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, AuditEntry{
		EntityType: domain.EntityCase, EntityID: caseID, Action: "messages.add_internal_note", Caller: caller,
		New: map[string]any{"message_id": msg.ID},
	})
	return msg, nil
}

// Resend retries delivery of a failed outbound message.
func (s *CaseService) Resend(ctx context.Context, caller domain.Caller, messageID string) (*domain.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("message", map[string]any{"id": messageID})
	}
	if err != nil {
		return nil, err
	}
	c, err := s.Load(ctx, caller, msg.CaseID)
	if err != nil {
		return nil, err
	}
	if msg.IsInternal || msg.Direction != domain.DirectionOutbound || msg.DeliveryStatus != domain.DeliveryFailed {
		return nil, apperrors.NewValidationError("only failed outbound messages can be resent", nil)
	}
	if err := s.deliver(ctx, c, msg); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, AuditEntry{
		EntityType: domain.EntityMessage, EntityID: msg.ID, Action: "messages.resend", Caller: caller,
		New: map[string]any{"delivery_status": msg.DeliveryStatus},
	})
	return msg, nil
}

// MarkProcessed flags an inbound message as handled.
func (s *CaseService) MarkProcessed(ctx context.Context, caller domain.Caller, messageID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("message", map[string]any{"id": messageID})
	}
	if err != nil {
		return err
	}
	if _, err := s.Load(ctx, caller, msg.CaseID); err != nil {
		return err
	}
	return s.messages.MarkProcessed(ctx, messageID)
}

// Messages lists a case thread oldest first.
func (s *CaseService) Messages(ctx context.Context, caller domain.Caller, caseID string) ([]domain.Message, error) {
	if _, err := s.Load(ctx, caller, caseID); err != nil {
		return nil, err
	}
	return s.messages.ListByCase(ctx, caseID)
}

// Timeline returns the case's audit trail newest first.
func (s *CaseService) Timeline(ctx context.Context, caller domain.Caller, caseID, cursor string, limit int) (*TimelinePage, error) {
	if _, err := s.Load(ctx, caller, caseID); err != nil {
		return nil, err
	}
	return s.audit.Trail(ctx, domain.EntityCase, caseID, cursor, limit)
}

func (s *CaseService) deliver(ctx context.Context, c *domain.Case, msg *domain.Message) error {
	res := s.sender.Send(ctx, c, msg.Content)
	var (
		lastError *string
		sentAt    *time.Time
	)
	status := domain.DeliveryFailed
	if res.OK {
		status = domain.DeliverySent
		now := s.now().UTC()
		sentAt = &now
	} else {
		reason := res.Error
		if reason == "" {
			reason = "delivery failed"
		}
		lastError = &reason
		s.metrics.Inc(observability.CounterDeliveryFailures)
		s.logger.Warn("outbound delivery failed",
			zap.String("case_id", c.ID),
			zap.String("message_id", msg.ID),
			zap.String("channel", string(c.Channel)),
			zap.String("error", reason))
	}
	if err := s.messages.UpdateDelivery(ctx, msg.ID, status, lastError, sentAt); err != nil {
		return err
	}
	msg.DeliveryStatus, msg.LastError, msg.SentAt = status, lastError, sentAt
	if !res.OK {
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:    events.EventOutboundFailed,
			CaseID:  c.ID,
			Actor:   events.Actor{Type: "system"},
			Payload: events.OutboundFailedPayload{MessageID: msg.ID, Error: *lastError},
		})
	}
	return nil
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
