package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/auth"
	"github.com/spec-kit/ombudsman-service/internal/channel"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/events"
	"github.com/spec-kit/ombudsman-service/internal/observability"
	"github.com/spec-kit/ombudsman-service/internal/repository/memory"
	"github.com/spec-kit/ombudsman-service/internal/routing"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type scheduled struct {
	due     time.Time
	caseID  string
	queueID *string
}

type recordingTimer struct {
	mu    sync.Mutex
	calls []scheduled
}

func (t *recordingTimer) ScheduleAt(_ context.Context, due time.Time, caseID string, queueID *string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, scheduled{due: due, caseID: caseID, queueID: queueID})
	return nil
}

type stubSender struct {
	mu     sync.Mutex
	result channel.Result
	sent   []string
}

func (s *stubSender) Send(_ context.Context, _ *domain.Case, text string) channel.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return s.result
}

func (s *stubSender) set(res channel.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = res
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) record(_ context.Context, evt events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
	return nil
}

func (l *eventLog) ofType(t events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, evt := range l.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

type harness struct {
	store      *memory.Store
	clock      *clock
	timer      *recordingTimer
	sender     *stubSender
	events     *eventLog
	metrics    *observability.Metrics
	auditRepo  *memory.Audit
	audit      *AuditRecorder
	citizens   *CitizenResolver
	protocols  *ProtocolGenerator
	engine     *routing.Engine
	sla        *SLAScheduler
	cases      *CaseService
	intake     *IntakeService
	agent      *AgentService
	secretaria string
	triage     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	h := &harness{
		store:   memory.NewStore(),
		clock:   &clock{now: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)},
		timer:   &recordingTimer{},
		sender:  &stubSender{result: channel.Result{OK: true}},
		events:  &eventLog{},
		metrics: observability.NewMetrics(),
	}
	h.store.SetClock(h.clock.Now)

	h.secretaria = h.store.AddSecretariat("OUVIDORIA_CENTRAL", "Ouvidoria")
	h.triage = h.store.AddQueue(domain.Queue{SecretariatID: h.secretaria, Slug: "triagem", Name: "Triagem", SLAHours: 48, IsActive: true})

	dispatcher := events.NewInMemoryDispatcher(logger)
	for _, et := range []events.EventType{
		events.EventCaseCreated, events.EventInboundReceived, events.EventAgentRunRequested,
		events.EventSLABreached, events.EventCaseStatusChanged, events.EventOutboundFailed,
	} {
		dispatcher.Subscribe(et, h.events.record)
	}

	h.auditRepo = h.store.Audit()
	h.audit = NewAuditRecorder(h.auditRepo, h.store.SecurityEventLog(), logger, h.metrics)
	h.citizens = NewCitizenResolver(h.store.Citizens(), h.store.Cases(), h.audit, logger)
	h.citizens.now = h.clock.Now
	h.protocols = NewProtocolGenerator(h.store.Cases())
	h.engine = routing.NewEngine(
		h.store.RoutingRules(), h.store.Queues(), h.store.SLARules(), h.store.Tags(),
		h.store.MissingFields(), h.store.Cases(),
		routing.Options{TriageQueueSlug: "triagem", DefaultSLAHours: 48},
		logger,
	)
	h.sla = NewSLAScheduler(SLADependencies{
		CaseRepo:     h.store.Cases(),
		QueueRepo:    h.store.Queues(),
		Timer:        h.timer,
		Audit:        h.audit,
		Dispatcher:   dispatcher,
		Metrics:      h.metrics,
		Logger:       logger,
		DefaultHours: 48,
		Clock:        h.clock.Now,
	})
	scopes := auth.NewScopeResolver(h.store.Queues(), nil, false, logger, h.metrics)
	h.cases = NewCaseService(CaseDependencies{
		CaseRepo:         h.store.Cases(),
		MessageRepo:      h.store.Messages(),
		TagRepo:          h.store.Tags(),
		MissingFieldRepo: h.store.MissingFields(),
		QueueRepo:        h.store.Queues(),
		StaffRepo:        h.store.Staff(),
		Scopes:           scopes,
		SLA:              h.sla,
		Sender:           h.sender,
		Audit:            h.audit,
		Dispatcher:       dispatcher,
		Metrics:          h.metrics,
		Logger:           logger,
	})
	h.cases.now = h.clock.Now
	h.intake = NewIntakeService(IntakeDependencies{
		Transactor:       h.store,
		CaseRepo:         h.store.Cases(),
		MessageRepo:      h.store.Messages(),
		MissingFieldRepo: h.store.MissingFields(),
		Citizens:         h.citizens,
		Protocols:        h.protocols,
		Engine:           h.engine,
		SLA:              h.sla,
		Audit:            h.audit,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	h.agent = NewAgentService(AgentDependencies{
		AgentRunRepo: h.store.AgentRuns(),
		MessageRepo:  h.store.Messages(),
		QueueRepo:    h.store.Queues(),
		Cases:        h.cases,
		Audit:        h.audit,
		Dispatcher:   dispatcher,
		Policy: AgentPolicy{
			HandoffThreshold:      0.7,
			EscalationSecretariat: "OUVIDORIA_CENTRAL",
			EscalationQueue:       "denuncias",
		},
		TriageQueueSlug: "triagem",
		Logger:          logger,
	})
	return h
}

func (h *harness) whatsapp(id, waID, name, text string) InboundMessage {
	return InboundMessage{
		Channel:           domain.ChannelWhatsApp,
		Sender:            CitizenHints{WhatsAppID: waID, FullName: name},
		Text:              text,
		ProviderMessageID: id,
	}
}

func (h *harness) mustIngest(t *testing.T, in InboundMessage) *IntakeResult {
	t.Helper()
	res, err := h.intake.Ingest(context.Background(), in)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return res
}

func (h *harness) auditActions(entityID string) []string {
	var out []string
	for _, e := range h.store.AuditEntries() {
		if e.EntityID == entityID {
			out = append(out, e.Action)
		}
	}
	return out
}

func admin() domain.Caller {
	return domain.Caller{StaffID: "admin-1", Role: domain.StaffRoleAdmin}
}

func strRef(v string) *string { return &v }
