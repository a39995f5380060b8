// Package memory keeps every repository in process memory. It backs local
// runs without a database and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository"
)

// Store is the shared state behind the in-memory repositories.
type Store struct {
	mu sync.RWMutex

	now func() time.Time

	citizens      map[string]domain.CitizenProfile
	cases         map[string]domain.Case
	messages      map[string]domain.Message
	missingFields map[string]domain.MissingField
	secretariats  map[string]domain.Secretariat
	queues        map[string]domain.Queue
	staffQueues   map[string][]string
	slaRules      map[string]domain.SLARule
	tags          map[string]domain.Tag
	caseTags      map[string]map[string]struct{}
	rules         map[string]domain.RoutingRule
	audit         []domain.AuditLog
	security      []domain.SecurityEvent
	agentRuns     map[string]domain.AgentRun
	staff         map[string]domain.StaffMember
	seq           int64
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{
		now:           time.Now,
		citizens:      map[string]domain.CitizenProfile{},
		cases:         map[string]domain.Case{},
		messages:      map[string]domain.Message{},
		missingFields: map[string]domain.MissingField{},
		secretariats:  map[string]domain.Secretariat{},
		queues:        map[string]domain.Queue{},
		staffQueues:   map[string][]string{},
		slaRules:      map[string]domain.SLARule{},
		tags:          map[string]domain.Tag{},
		caseTags:      map[string]map[string]struct{}{},
		rules:         map[string]domain.RoutingRule{},
		agentRuns:     map[string]domain.AgentRun{},
		staff:         map[string]domain.StaffMember{},
	}
}

// SetClock overrides the timestamp source used for created/updated columns.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// WithinTx runs fn directly. Writes are applied immediately, so a failing fn
// leaves earlier writes in place.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// AddSecretariat seeds a secretariat and returns its id.
func (s *Store) AddSecretariat(code, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	now := s.now()
	s.secretariats[id] = domain.Secretariat{ID: id, Code: code, Name: name, IsActive: true, CreatedAt: now, UpdatedAt: now}
	return id
}

// AddQueue seeds a queue. Zero ID gets a generated one.
func (s *Store) AddQueue(q domain.Queue) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	q.CreatedAt, q.UpdatedAt = s.now(), s.now()
	s.queues[q.ID] = q
	return q.ID
}

// AddSLARule seeds an SLA rule.
func (s *Store) AddSLARule(rule domain.SLARule) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	s.slaRules[rule.ID] = rule
	return rule.ID
}

// AddTag seeds a tag.
func (s *Store) AddTag(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.tags[id] = domain.Tag{ID: id, Name: name}
	return id
}

// AddRoutingRule seeds a routing rule.
func (s *Store) AddRoutingRule(rule domain.RoutingRule) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.CreatedAt, rule.UpdatedAt = s.now(), s.now()
	s.rules[rule.ID] = rule
	return rule.ID
}

// AddStaff seeds a staff member with its queue memberships.
func (s *Store) AddStaff(member domain.StaffMember, queueIDs ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	member.CreatedAt, member.UpdatedAt = s.now(), s.now()
	s.staff[member.ID] = member
	s.staffQueues[member.ID] = append([]string(nil), queueIDs...)
	return member.ID
}

// RoutingRule returns a snapshot of a stored rule.
func (s *Store) RoutingRule(id string) (domain.RoutingRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	return rule, ok
}

// AuditEntries returns all audit rows in insertion order.
func (s *Store) AuditEntries() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditLog(nil), s.audit...)
}

// SecurityEvents returns all recorded security events.
func (s *Store) SecurityEvents() []domain.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SecurityEvent(nil), s.security...)
}

// CountCases reports how many cases exist.
func (s *Store) CountCases() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}

// CountMessages reports how many messages exist.
func (s *Store) CountMessages() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func strPtr(v string) *string { return &v }

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	return strPtr(*p)
}

func eqStr(p *string, v string) bool {
	return p != nil && *p == v
}

var (
	_ repository.CitizenRepository       = (*Citizens)(nil)
	_ repository.CaseRepository          = (*Cases)(nil)
	_ repository.MessageRepository       = (*Messages)(nil)
	_ repository.QueueRepository         = (*Queues)(nil)
	_ repository.SLARuleRepository       = (*SLARules)(nil)
	_ repository.TagRepository           = (*Tags)(nil)
	_ repository.MissingFieldRepository  = (*MissingFields)(nil)
	_ repository.RoutingRuleRepository   = (*RoutingRules)(nil)
	_ repository.StaffRepository         = (*Staff)(nil)
	_ repository.AuditRepository         = (*Audit)(nil)
	_ repository.SecurityEventRepository = (*SecurityEvents)(nil)
	_ repository.AgentRunRepository      = (*AgentRuns)(nil)
	_ repository.Transactor              = (*Store)(nil)
)
