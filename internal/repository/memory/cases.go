package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository"
)

// Cases implements repository.CaseRepository.
type Cases struct{ s *Store }

// Cases returns the case repository view.
func (s *Store) Cases() repository.CaseRepository { return &Cases{s: s} }

func (r *Cases) Create(_ context.Context, c *domain.Case) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.cases {
		if other.Protocol == c.Protocol {
			return &pgconn.PgError{Code: "23505", Message: "duplicate protocol"}
		}
	}
	c.ID = uuid.NewString()
	c.CreatedAt = r.s.now()
	c.UpdatedAt = c.CreatedAt
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	stored := *c
	stored.SecretariatID = nil
	r.s.cases[c.ID] = stored
	return nil
}

func (r *Cases) GetByID(_ context.Context, id string) (*domain.Case, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.cases[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return r.withSecretariat(c), nil
}

func (r *Cases) GetByProtocol(_ context.Context, protocol string) (*domain.Case, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.cases {
		if c.Protocol == protocol {
			return r.withSecretariat(c), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *Cases) ProtocolExists(ctx context.Context, protocol string) (bool, error) {
	_, err := r.GetByProtocol(ctx, protocol)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *Cases) Update(_ context.Context, c *domain.Case) error {
	return r.mutate(c.ID, func(stored *domain.Case) {
		stored.Status = c.Status
		stored.Priority = c.Priority
		stored.QueueID = cloneStr(c.QueueID)
		stored.AssignedTo = cloneStr(c.AssignedTo)
		stored.SLADueAt = c.SLADueAt
		stored.ResolvedAt = c.ResolvedAt
		stored.ClosedAt = c.ClosedAt
	})
}

func (r *Cases) UpdatePriority(_ context.Context, id string, priority domain.CasePriority) error {
	return r.mutate(id, func(stored *domain.Case) { stored.Priority = priority })
}

func (r *Cases) SetSLADue(_ context.Context, id string, due time.Time) error {
	return r.mutate(id, func(stored *domain.Case) {
		stored.SLADueAt = &due
		stored.SLABreached = false
	})
}

func (r *Cases) MarkSLABreached(_ context.Context, id string, due time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.cases[id]
	if !ok || c.SLABreached || c.Status.IsTerminal() || c.SLADueAt == nil || !c.SLADueAt.Equal(due) {
		return false, nil
	}
	c.SLABreached = true
	c.UpdatedAt = r.s.now()
	r.s.cases[id] = c
	return true, nil
}

func (r *Cases) MirrorCitizen(_ context.Context, citizen *domain.CitizenProfile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, c := range r.s.cases {
		if c.CitizenID != citizen.ID {
			continue
		}
		c.MirrorCitizen(citizen)
		c.UpdatedAt = r.s.now()
		r.s.cases[id] = c
	}
	return nil
}

func (r *Cases) List(_ context.Context, filter repository.CaseFilter) ([]domain.Case, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.Case
	for _, stored := range r.s.cases {
		c := r.withSecretariat(stored)
		if !inScope(filter.Scope, c.Ownership()) || !matchesFilter(filter, c) {
			continue
		}
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (r *Cases) PublicSummary(_ context.Context, protocol string) (*repository.CaseSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.cases {
		if c.Protocol != protocol {
			continue
		}
		sum := &repository.CaseSummary{
			Protocol:    c.Protocol,
			Status:      c.Status,
			Priority:    c.Priority,
			CreatedAt:   c.CreatedAt,
			SLADueAt:    c.SLADueAt,
			SLABreached: c.SLABreached,
		}
		if c.QueueID != nil {
			if q, ok := r.s.queues[*c.QueueID]; ok {
				sum.QueueName = strPtr(q.Name)
				if sec, ok := r.s.secretariats[q.SecretariatID]; ok {
					sum.SecretariatName = strPtr(sec.Name)
				}
			}
		}
		return sum, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *Cases) mutate(id string, fn func(*domain.Case)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.cases[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(&c)
	c.UpdatedAt = r.s.now()
	r.s.cases[id] = c
	return nil
}

// withSecretariat fills the department through the queue, like the SQL join.
func (r *Cases) withSecretariat(c domain.Case) *domain.Case {
	c.SecretariatID = nil
	if c.QueueID != nil {
		if q, ok := r.s.queues[*c.QueueID]; ok {
			c.SecretariatID = strPtr(q.SecretariatID)
		}
	}
	return &c
}

func inScope(clause repository.ScopeClause, o domain.CaseOwnership) bool {
	switch clause.Kind {
	case repository.ScopeAll:
		return true
	case repository.ScopeIn:
		v := clause.Column.Value(o)
		if v == nil {
			return false
		}
		for _, allowed := range clause.Values {
			if allowed == *v {
				return true
			}
		}
	}
	return false
}

func matchesFilter(f repository.CaseFilter, c *domain.Case) bool {
	if len(f.Statuses) > 0 && !containsValue(f.Statuses, c.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsValue(f.Priorities, c.Priority) {
		return false
	}
	if f.QueueID != nil && !eqStr(c.QueueID, *f.QueueID) {
		return false
	}
	if f.Channel != nil && c.Channel != *f.Channel {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" {
			name := ""
			if c.CitizenName != nil {
				name = strings.ToLower(*c.CitizenName)
			}
			if !strings.Contains(strings.ToLower(c.Protocol), term) && !strings.Contains(name, term) {
				return false
			}
		}
	}
	return true
}

func containsValue[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
