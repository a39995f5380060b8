package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/events"
	"github.com/spec-kit/ombudsman-service/internal/repository"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

// Agent action kinds.
const (
	ActionReplyExternal = "reply_external"
	ActionRequestInfo   = "request_info"
	ActionInternalNote  = "add_internal_note"
	ActionSetTags       = "set_tags"
	ActionSetPriority   = "set_priority"
	ActionSetStatus     = "set_status"
	ActionSuggestRoute  = "suggest_route"
)

// AgentAction is one proposed automation step. The set is closed.
type AgentAction interface {
	Kind() string
}

type (
	ReplyExternal   struct{ Text string }
	RequestInfo     struct{ Fields []string }
	AddInternalNote struct{ Text string }
	SetTags         struct{ Tags []string }
	SetPriority     struct{ Priority string }
	SetStatus       struct{ Status domain.CaseStatus }
	SuggestRoute    struct {
		SecretariatCode string
		QueueCode       string
	}
)

func (ReplyExternal) Kind() string   { return ActionReplyExternal }
func (RequestInfo) Kind() string     { return ActionRequestInfo }
func (AddInternalNote) Kind() string { return ActionInternalNote }
func (SetTags) Kind() string         { return ActionSetTags }
func (SetPriority) Kind() string     { return ActionSetPriority }
func (SetStatus) Kind() string       { return ActionSetStatus }
func (SuggestRoute) Kind() string    { return ActionSuggestRoute }

type agentActionPayload struct {
	Type            string   `json:"type"`
	Text            string   `json:"text"`
	Fields          []string `json:"fields"`
	Tags            []string `json:"tags"`
	Priority        string   `json:"priority"`
	Status          string   `json:"status"`
	SecretariatCode string   `json:"secretariat_code"`
	QueueCode       string   `json:"queue_code"`
}

// ParseAgentActions decodes proposed actions. Unknown kinds and actions
// missing their required field reject the whole list.
func ParseAgentActions(raw []json.RawMessage) ([]AgentAction, error) {
	actions := make([]AgentAction, 0, len(raw))
	for i, item := range raw {
		var p agentActionPayload
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		action, err := p.decode()
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func (p agentActionPayload) decode() (AgentAction, error) {
	switch p.Type {
	case ActionReplyExternal:
		if strings.TrimSpace(p.Text) == "" {
			return nil, errors.New("reply_external requires text")
		}
		return ReplyExternal{Text: p.Text}, nil
	case ActionRequestInfo:
		return RequestInfo{Fields: p.Fields}, nil
	case ActionInternalNote:
		if strings.TrimSpace(p.Text) == "" {
			return nil, errors.New("add_internal_note requires text")
		}
		return AddInternalNote{Text: p.Text}, nil
	case ActionSetTags:
		return SetTags{Tags: p.Tags}, nil
	case ActionSetPriority:
		if p.Priority == "" {
			return nil, errors.New("set_priority requires priority")
		}
		return SetPriority{Priority: p.Priority}, nil
	case ActionSetStatus:
		if p.Status == "" {
			return nil, errors.New("set_status requires status")
		}
		return SetStatus{Status: domain.CaseStatus(p.Status)}, nil
	case ActionSuggestRoute:
		if p.SecretariatCode == "" && p.QueueCode == "" {
			return nil, errors.New("suggest_route requires secretariat_code or queue_code")
		}
		return SuggestRoute{SecretariatCode: p.SecretariatCode, QueueCode: p.QueueCode}, nil
	case "":
		return nil, errors.New("missing action type")
	default:
		return nil, fmt.Errorf("unknown action type %q", p.Type)
	}
}

// AgentPolicy bounds what the agent may do without a human.
type AgentPolicy struct {
	AllowedActions        []string
	AutoSendEnabled       bool
	HandoffThreshold      float64
	EscalationSecretariat string
	EscalationQueue       string
}

// DroppedAction is a proposal the policy refused.
type DroppedAction struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Drop reasons.
const (
	DropNotAllowed  = "not_allowed"
	DropAutoSendOff = "auto_send_disabled"
	DropHandoff     = "handoff"
	DropRejected    = "rejected"
)

// AgentPlan is the policy's decision before anything is applied.
type AgentPlan struct {
	Actions []AgentAction
	Dropped []DroppedAction
	Handoff bool
}

// Plan applies the policy to proposed actions. Handoff prepends a status
// change to human triage and a route to the escalation queue; those two are
// not subject to the allow-list, and under handoff the agent's own status and
// route proposals are dropped so nothing can move the case out of triage.
func (p AgentPolicy) Plan(proposed []AgentAction, confidence *float64, risk *domain.RiskLevel) AgentPlan {
	plan := AgentPlan{
		Handoff: (risk != nil && *risk == domain.RiskHigh) || (confidence != nil && *confidence < p.HandoffThreshold),
	}
	if plan.Handoff {
		plan.Actions = append(plan.Actions,
			SetStatus{Status: domain.CaseStatusTriageHuman},
			SuggestRoute{SecretariatCode: p.EscalationSecretariat, QueueCode: p.EscalationQueue},
		)
	}

	for _, action := range proposed {
		kind := action.Kind()
		switch {
		case len(p.AllowedActions) > 0 && !containsString(p.AllowedActions, kind):
			plan.Dropped = append(plan.Dropped, DroppedAction{Type: kind, Reason: DropNotAllowed})
		case sendsExternally(kind) && !p.AutoSendEnabled:
			plan.Dropped = append(plan.Dropped, DroppedAction{Type: kind, Reason: DropAutoSendOff})
		case plan.Handoff && (sendsExternally(kind) || kind == ActionSetStatus || kind == ActionSuggestRoute):
			plan.Dropped = append(plan.Dropped, DroppedAction{Type: kind, Reason: DropHandoff})
		default:
			plan.Actions = append(plan.Actions, action)
		}
	}
	return plan
}

func sendsExternally(kind string) bool {
	return kind == ActionReplyExternal || kind == ActionRequestInfo
}

// AgentResult is what the automation engine reports for a run.
type AgentResult struct {
	Actions    []AgentAction
	Raw        json.RawMessage
	Confidence *float64
	RiskLevel  *domain.RiskLevel
}

// AgentOutcome reports what was applied.
type AgentOutcome struct {
	RunID   string          `json:"agent_run_id"`
	CaseID  string          `json:"case_id"`
	Applied []string        `json:"applied"`
	Dropped []DroppedAction `json:"dropped"`
	Handoff bool            `json:"needs_human"`
}

// AgentService dispatches agent runs and applies their results through the
// same case primitives staff use.
type AgentService struct {
	runs        repository.AgentRunRepository
	messages    repository.MessageRepository
	queues      repository.QueueRepository
	cases       *CaseService
	audit       *AuditRecorder
	dispatcher  events.Dispatcher
	policy      AgentPolicy
	triageQueue string
	logger      *zap.Logger
}

// AgentDependencies bundles collaborators for the agent service.
type AgentDependencies struct {
	AgentRunRepo    repository.AgentRunRepository
	MessageRepo     repository.MessageRepository
	QueueRepo       repository.QueueRepository
	Cases           *CaseService
	Audit           *AuditRecorder
	Dispatcher      events.Dispatcher
	Policy          AgentPolicy
	TriageQueueSlug string
	Logger          *zap.Logger
}

// NewAgentService constructs the service.
func NewAgentService(deps AgentDependencies) *AgentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentService{
		runs:        deps.AgentRunRepo,
		messages:    deps.MessageRepo,
		queues:      deps.QueueRepo,
		cases:       deps.Cases,
		audit:       deps.Audit,
		dispatcher:  deps.Dispatcher,
		policy:      deps.Policy,
		triageQueue: deps.TriageQueueSlug,
		logger:      logger,
	}
}

// RequestRun records a pending run and asks the automation engine to work on the case.
func (s *AgentService) RequestRun(ctx context.Context, caller domain.Caller, caseID string, messageID *string) (*domain.AgentRun, error) {
	c, err := s.cases.Load(ctx, caller, caseID)
	if err != nil {
		return nil, err
	}
	thread, err := s.messages.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	var lastInbound string
	for _, m := range thread {
		if m.Direction == domain.DirectionInbound && (messageID == nil || m.ID == *messageID) {
			lastInbound = m.Content
		}
	}

	request := map[string]any{
		"case_id":           c.ID,
		"protocol":          c.Protocol,
		"channel":           c.Channel,
		"status":            c.Status,
		"priority":          c.Priority,
		"message":           lastInbound,
		"allowed_actions":   s.policy.AllowedActions,
		"auto_send":         s.policy.AutoSendEnabled,
		"handoff_threshold": s.policy.HandoffThreshold,
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	run := &domain.AgentRun{CaseID: caseID, MessageID: messageID, RequestJSON: body, Status: domain.AgentRunPending}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		EntityType: domain.EntityCase, EntityID: caseID, Action: "agent.dispatch", Caller: caller,
		New: map[string]any{"agent_run_id": run.ID},
	})
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:   events.EventAgentRunRequested,
		CaseID: caseID,
		Actor:  actorOf(caller),
		Payload: events.AgentRunPayload{
			RunID:     run.ID,
			CaseID:    caseID,
			MessageID: messageID,
			Context:   request,
		},
	})
	return run, nil
}

// ApplyResult runs the policy over a run's proposed actions and applies the
// survivors as the system actor.
func (s *AgentService) ApplyResult(ctx context.Context, runID string, result AgentResult) (*AgentOutcome, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("agent run", map[string]any{"id": runID})
	}
	if err != nil {
		return nil, err
	}
	if run.Status == domain.AgentRunCompleted {
		return nil, apperrors.NewConflict("agent run already completed", map[string]any{"id": runID})
	}

	caller := domain.SystemCaller()
	c, err := s.cases.Load(ctx, caller, run.CaseID)
	if err != nil {
		return nil, err
	}

	plan := s.policy.Plan(result.Actions, result.Confidence, result.RiskLevel)
	outcome := &AgentOutcome{RunID: run.ID, CaseID: c.ID, Applied: []string{}, Dropped: plan.Dropped, Handoff: plan.Handoff}

	for _, action := range plan.Actions {
		applied, err := s.apply(ctx, caller, c, action, plan.Handoff)
		if err != nil {
			var domainErr *apperrors.DomainError
			if !errors.As(err, &domainErr) || domainErr.HTTPStatus >= 500 {
				return nil, fmt.Errorf("apply %s: %w", action.Kind(), err)
			}
			outcome.Dropped = append(outcome.Dropped, DroppedAction{Type: action.Kind(), Reason: DropRejected})
			continue
		}
		if applied {
			outcome.Applied = append(outcome.Applied, action.Kind())
		}
	}
	for _, d := range outcome.Dropped {
		s.logger.Info("agent action dropped", zap.String("run_id", run.ID), zap.String("type", d.Type), zap.String("reason", d.Reason))
	}

	response := result.Raw
	if len(response) == 0 {
		response, _ = json.Marshal(outcome)
	}
	run.ResponseJSON = response
	run.Confidence = result.Confidence
	run.RiskLevel = result.RiskLevel
	if err := s.runs.Complete(ctx, run); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		EntityType: domain.EntityCase, EntityID: c.ID, Action: "agent.result", Caller: caller,
		New: outcome,
	})
	return outcome, nil
}

func (s *AgentService) apply(ctx context.Context, caller domain.Caller, c *domain.Case, action AgentAction, handoff bool) (bool, error) {
	switch a := action.(type) {
	case ReplyExternal:
		_, err := s.cases.Reply(ctx, caller, c.ID, a.Text)
		return err == nil, err
	case RequestInfo:
		_, err := s.cases.Reply(ctx, caller, c.ID, requestInfoText(a.Fields, c.Channel))
		return err == nil, err
	case AddInternalNote:
		_, err := s.cases.AddNote(ctx, caller, c.ID, a.Text)
		return err == nil, err
	case SetTags:
		_, err := s.cases.AttachTags(ctx, caller, c.ID, a.Tags)
		return err == nil, err
	case SetPriority:
		_, err := s.cases.SetPriority(ctx, caller, c.ID, a.Priority)
		return err == nil, err
	case SetStatus:
		var updated *domain.Case
		var err error
		if handoff && a.Status == domain.CaseStatusTriageHuman {
			updated, err = s.cases.forceHandoff(ctx, caller, c.ID)
		} else {
			updated, err = s.cases.SetStatus(ctx, caller, c.ID, a.Status)
		}
		if err == nil {
			c.Status = updated.Status
		}
		return err == nil, err
	case SuggestRoute:
		queue, err := s.suggestedQueue(ctx, a)
		if err != nil || queue == nil {
			return false, err
		}
		updated, err := s.cases.TransferQueue(ctx, caller, c.ID, queue.ID)
		if err == nil {
			*c = *updated
		}
		return err == nil, err
	}
	return false, nil
}

// suggestedQueue tries the queue code, then the secretariat's best queue,
// then the triage queue.
func (s *AgentService) suggestedQueue(ctx context.Context, a SuggestRoute) (*domain.Queue, error) {
	lookups := []func() (*domain.Queue, error){
		func() (*domain.Queue, error) { return s.queues.FindBySlugOrName(ctx, a.QueueCode) },
		func() (*domain.Queue, error) { return s.queues.FirstBySecretariat(ctx, a.SecretariatCode) },
		func() (*domain.Queue, error) { return s.queues.FindActiveBySlug(ctx, s.triageQueue) },
	}
	refs := []string{a.QueueCode, a.SecretariatCode, s.triageQueue}
	for i, find := range lookups {
		if refs[i] == "" {
			continue
		}
		queue, err := find()
		if err == nil {
			return queue, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}
	s.logger.Warn("no queue for suggested route",
		zap.String("queue_code", a.QueueCode),
		zap.String("secretariat_code", a.SecretariatCode))
	return nil, nil
}

func requestInfoText(fields []string, ch domain.Channel) string {
	if len(fields) == 0 {
		return "We need a bit more information to continue with your request."
	}
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, "- "+fieldLabel(f, ch))
	}
	return "We need the following information:\n" + strings.Join(lines, "\n")
}

func fieldLabel(field string, ch domain.Channel) string {
	switch field {
	case "full_name":
		return "Full name"
	case "email":
		return "E-mail"
	case "phone_e164":
		if ch == domain.ChannelInstagram {
			return "Phone in the format +55DDXXXXXXXXX (e.g. +5586999999999)"
		}
		return "Phone"
	default:
		return field
	}
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
