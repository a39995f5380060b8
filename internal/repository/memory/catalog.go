package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository"
)

// Queues implements repository.QueueRepository.
type Queues struct{ s *Store }

// Queues returns the queue repository view.
func (s *Store) Queues() repository.QueueRepository { return &Queues{s: s} }

func (r *Queues) GetByID(_ context.Context, id string) (*domain.Queue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	q, ok := r.s.queues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &q, nil
}

func (r *Queues) FindActiveBySlug(_ context.Context, slug string) (*domain.Queue, error) {
	return r.best(func(q domain.Queue) bool { return q.IsActive && q.Slug == slug })
}

func (r *Queues) FindBySlugOrName(ctx context.Context, ref string) (*domain.Queue, error) {
	if q, err := r.FindActiveBySlug(ctx, ref); err == nil {
		return q, nil
	}
	return r.best(func(q domain.Queue) bool { return q.IsActive && strings.EqualFold(q.Name, ref) })
}

func (r *Queues) FirstBySecretariat(_ context.Context, ref string) (*domain.Queue, error) {
	r.s.mu.RLock()
	secID := ""
	for _, sec := range r.s.secretariats {
		if (sec.Code == ref || sec.ID == ref) && sec.IsActive {
			secID = sec.ID
		}
	}
	r.s.mu.RUnlock()
	if secID == "" {
		return nil, pgx.ErrNoRows
	}
	return r.best(func(q domain.Queue) bool { return q.IsActive && q.SecretariatID == secID })
}

func (r *Queues) GetSecretariat(_ context.Context, id string) (*domain.Secretariat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sec, ok := r.s.secretariats[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &sec, nil
}

func (r *Queues) FindSecretariatByCode(_ context.Context, code string) (*domain.Secretariat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, sec := range r.s.secretariats {
		if sec.Code == code {
			sec := sec
			return &sec, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *Queues) ListStaffQueueIDs(_ context.Context, staffID string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]string(nil), r.s.staffQueues[staffID]...), nil
}

// best picks the highest-priority queue that also sits in an active secretariat.
func (r *Queues) best(match func(domain.Queue) bool) (*domain.Queue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *domain.Queue
	for _, q := range r.s.queues {
		if !match(q) {
			continue
		}
		if sec, ok := r.s.secretariats[q.SecretariatID]; ok && !sec.IsActive {
			continue
		}
		if found == nil || q.Priority > found.Priority {
			q := q
			found = &q
		}
	}
	if found == nil {
		return nil, pgx.ErrNoRows
	}
	return found, nil
}

// SLARules implements repository.SLARuleRepository.
type SLARules struct{ s *Store }

// SLARules returns the SLA rule repository view.
func (s *Store) SLARules() repository.SLARuleRepository { return &SLARules{s: s} }

func (r *SLARules) GetActive(_ context.Context, ref string) (*domain.SLARule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, rule := range r.s.slaRules {
		if rule.IsActive && (rule.ID == ref || rule.Name == ref) {
			rule := rule
			return &rule, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *SLARules) GetDefault(_ context.Context) (*domain.SLARule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, rule := range r.s.slaRules {
		if rule.IsActive && rule.IsDefault {
			rule := rule
			return &rule, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// Tags implements repository.TagRepository.
type Tags struct{ s *Store }

// Tags returns the tag repository view.
func (s *Store) Tags() repository.TagRepository { return &Tags{s: s} }

func (r *Tags) FindByName(_ context.Context, name string) (*domain.Tag, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, tag := range r.s.tags {
		if tag.Name == name {
			tag := tag
			return &tag, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *Tags) Create(ctx context.Context, name string) (*domain.Tag, error) {
	if tag, err := r.FindByName(ctx, name); err == nil {
		return tag, nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tag := domain.Tag{ID: uuid.NewString(), Name: name}
	r.s.tags[tag.ID] = tag
	return &tag, nil
}

func (r *Tags) Attach(_ context.Context, caseID, tagID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.caseTags[caseID] == nil {
		r.s.caseTags[caseID] = map[string]struct{}{}
	}
	r.s.caseTags[caseID][tagID] = struct{}{}
	return nil
}

func (r *Tags) Detach(_ context.Context, caseID, tagID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.caseTags[caseID], tagID)
	return nil
}

func (r *Tags) ListByCase(_ context.Context, caseID string) ([]domain.Tag, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.Tag
	for tagID := range r.s.caseTags[caseID] {
		if tag, ok := r.s.tags[tagID]; ok {
			result = append(result, tag)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// MissingFields implements repository.MissingFieldRepository.
type MissingFields struct{ s *Store }

// MissingFields returns the missing field repository view.
func (s *Store) MissingFields() repository.MissingFieldRepository { return &MissingFields{s: s} }

func (r *MissingFields) Insert(_ context.Context, caseID, fieldName string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range r.s.missingFields {
		if f.CaseID == caseID && f.FieldName == fieldName {
			return nil
		}
	}
	id := uuid.NewString()
	r.s.missingFields[id] = domain.MissingField{ID: id, CaseID: caseID, FieldName: fieldName, CreatedAt: r.s.now()}
	return nil
}

func (r *MissingFields) ListByCase(_ context.Context, caseID string) ([]domain.MissingField, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.MissingField
	for _, f := range r.s.missingFields {
		if f.CaseID == caseID {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FieldName < result[j].FieldName })
	return result, nil
}

// RoutingRules implements repository.RoutingRuleRepository.
type RoutingRules struct{ s *Store }

// RoutingRules returns the routing rule repository view.
func (s *Store) RoutingRules() repository.RoutingRuleRepository { return &RoutingRules{s: s} }

func (r *RoutingRules) ListEnabled(_ context.Context) ([]domain.RoutingRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.RoutingRule
	for _, rule := range r.s.rules {
		if rule.Enabled && !rule.IsFallback {
			result = append(result, rule)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority > result[j].Priority
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *RoutingRules) GetFallback(_ context.Context) (*domain.RoutingRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, rule := range r.s.rules {
		if rule.Enabled && rule.IsFallback {
			rule := rule
			return &rule, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *RoutingRules) IncrementMatchCount(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule, ok := r.s.rules[id]
	if !ok {
		return nil
	}
	rule.MatchCount++
	r.s.rules[id] = rule
	return nil
}

// Staff implements repository.StaffRepository.
type Staff struct{ s *Store }

// Staff returns the staff repository view.
func (s *Store) Staff() repository.StaffRepository { return &Staff{s: s} }

func (r *Staff) Create(_ context.Context, member *domain.StaffMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	member.ID = uuid.NewString()
	member.CreatedAt, member.UpdatedAt = r.s.now(), r.s.now()
	r.s.staff[member.ID] = *member
	return nil
}

func (r *Staff) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	member, ok := r.s.staff[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &member, nil
}

func (r *Staff) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, member := range r.s.staff {
		if strings.EqualFold(member.Email, email) {
			member := member
			return &member, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *Staff) List(_ context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.StaffMember
	for _, member := range r.s.staff {
		if filter.Role != nil && member.Role != *filter.Role {
			continue
		}
		if filter.SecretariatID != nil && !eqStr(member.SecretariatID, *filter.SecretariatID) {
			continue
		}
		if filter.Active != nil && member.Active != *filter.Active {
			continue
		}
		result = append(result, member)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}
