package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository"
)

// Audit implements repository.AuditRepository.
type Audit struct {
	s *Store
	// FailWith, when set, is returned by Create instead of storing the row.
	FailWith error
}

// Audit returns the audit repository view.
func (s *Store) Audit() *Audit { return &Audit{s: s} }

func (r *Audit) Create(_ context.Context, entry *domain.AuditLog) error {
	if r.FailWith != nil {
		return r.FailWith
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.seq++
	entry.ID = uuid.NewString()
	entry.Seq = r.s.seq
	entry.CreatedAt = r.s.now()
	r.s.audit = append(r.s.audit, *entry)
	return nil
}

func (r *Audit) ListByEntity(_ context.Context, entityType, entityID string, after *repository.AuditCursor, limit int) ([]domain.AuditLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.AuditLog
	for _, entry := range r.s.audit {
		if entry.EntityType != entityType || entry.EntityID != entityID {
			continue
		}
		if after != nil && !olderThan(entry, *after) {
			continue
		}
		if entry.UserID != nil {
			if member, ok := r.s.staff[*entry.UserID]; ok {
				entry.UserName = strPtr(member.Name)
				entry.UserRole = strPtr(string(member.Role))
			}
		}
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].Seq > result[j].Seq
	})
	if limit <= 0 {
		limit = 50
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func olderThan(entry domain.AuditLog, cursor repository.AuditCursor) bool {
	if entry.CreatedAt.Equal(cursor.CreatedAt) {
		return entry.Seq < cursor.Seq
	}
	return entry.CreatedAt.Before(cursor.CreatedAt)
}

// SecurityEvents implements repository.SecurityEventRepository.
type SecurityEvents struct{ s *Store }

// SecurityEventLog returns the security event repository view.
func (s *Store) SecurityEventLog() repository.SecurityEventRepository { return &SecurityEvents{s: s} }

func (r *SecurityEvents) Create(_ context.Context, event *domain.SecurityEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	event.ID = uuid.NewString()
	event.CreatedAt = r.s.now()
	r.s.security = append(r.s.security, *event)
	return nil
}

// AgentRuns implements repository.AgentRunRepository.
type AgentRuns struct{ s *Store }

// AgentRuns returns the agent run repository view.
func (s *Store) AgentRuns() repository.AgentRunRepository { return &AgentRuns{s: s} }

func (r *AgentRuns) Create(_ context.Context, run *domain.AgentRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	run.ID = uuid.NewString()
	run.CreatedAt = r.s.now()
	if run.Status == "" {
		run.Status = domain.AgentRunPending
	}
	r.s.agentRuns[run.ID] = *run
	return nil
}

func (r *AgentRuns) GetByID(_ context.Context, id string) (*domain.AgentRun, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	run, ok := r.s.agentRuns[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &run, nil
}

func (r *AgentRuns) Complete(_ context.Context, run *domain.AgentRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.agentRuns[run.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	now := r.s.now()
	run.Status = domain.AgentRunCompleted
	run.CompletedAt = &now
	stored.ResponseJSON = run.ResponseJSON
	stored.Confidence = run.Confidence
	stored.RiskLevel = run.RiskLevel
	stored.Status = run.Status
	stored.CompletedAt = run.CompletedAt
	r.s.agentRuns[run.ID] = stored
	return nil
}
