package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository"
)

// Messages implements repository.MessageRepository.
type Messages struct{ s *Store }

// Messages returns the message repository view.
func (s *Store) Messages() repository.MessageRepository { return &Messages{s: s} }

func (r *Messages) Create(_ context.Context, msg *domain.Message) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if msg.ExternalMessageID != nil {
		for _, other := range r.s.messages {
			if eqStr(other.ExternalMessageID, *msg.ExternalMessageID) {
				return false, nil
			}
		}
	}
	if msg.Type == "" {
		msg.Type = "text"
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = r.s.now()
	r.s.messages[msg.ID] = *msg
	return true, nil
}

func (r *Messages) ExistsByExternalID(_ context.Context, externalID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.messages {
		if eqStr(m.ExternalMessageID, externalID) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Messages) GetByID(_ context.Context, id string) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &m, nil
}

func (r *Messages) UpdateDelivery(_ context.Context, id string, status domain.DeliveryStatus, lastError *string, sentAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return pgx.ErrNoRows
	}
	m.DeliveryStatus = status
	m.LastError = cloneStr(lastError)
	if sentAt != nil {
		m.SentAt = sentAt
	}
	r.s.messages[id] = m
	return nil
}

func (r *Messages) MarkProcessed(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return pgx.ErrNoRows
	}
	now := r.s.now()
	m.IsProcessed = true
	m.ProcessedAt = &now
	r.s.messages[id] = m
	return nil
}

func (r *Messages) ListByCase(_ context.Context, caseID string) ([]domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.Message
	for _, m := range r.s.messages {
		if m.CaseID == caseID {
			result = append(result, m)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}
