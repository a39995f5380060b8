package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository"
)

// Citizens implements repository.CitizenRepository.
type Citizens struct{ s *Store }

// Citizens returns the citizen repository view.
func (s *Store) Citizens() repository.CitizenRepository { return &Citizens{s: s} }

func (r *Citizens) GetByID(_ context.Context, id string) (*domain.CitizenProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.citizens[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

func (r *Citizens) FindByPhone(_ context.Context, phone string) (*domain.CitizenProfile, error) {
	return r.find(func(c domain.CitizenProfile) bool { return eqStr(c.PhoneE164, phone) })
}

func (r *Citizens) FindByEmail(_ context.Context, email string) (*domain.CitizenProfile, error) {
	return r.find(func(c domain.CitizenProfile) bool { return eqStr(c.Email, email) })
}

func (r *Citizens) FindByWhatsAppID(_ context.Context, waID string) (*domain.CitizenProfile, error) {
	return r.find(func(c domain.CitizenProfile) bool { return eqStr(c.WhatsAppID, waID) })
}

func (r *Citizens) FindByInstagramUserID(_ context.Context, igUserID string) (*domain.CitizenProfile, error) {
	return r.find(func(c domain.CitizenProfile) bool { return eqStr(c.InstagramUserID, igUserID) })
}

func (r *Citizens) Create(_ context.Context, fields domain.CitizenFields) (*domain.CitizenProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	c := domain.CitizenProfile{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	apply(&c, fields, true)
	if err := r.checkUnique(c); err != nil {
		return nil, err
	}
	r.s.citizens[c.ID] = c
	return &c, nil
}

func (r *Citizens) FillMissing(_ context.Context, id string, fields domain.CitizenFields) (*domain.CitizenProfile, error) {
	return r.update(id, fields, false)
}

func (r *Citizens) Overwrite(_ context.Context, id string, fields domain.CitizenFields) (*domain.CitizenProfile, error) {
	return r.update(id, fields, true)
}

func (r *Citizens) update(id string, fields domain.CitizenFields, overwrite bool) (*domain.CitizenProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.citizens[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	apply(&c, fields, overwrite)
	if err := r.checkUnique(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = r.s.now()
	r.s.citizens[id] = c
	return &c, nil
}

func (r *Citizens) find(match func(domain.CitizenProfile) bool) (*domain.CitizenProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.citizens {
		if match(c) {
			c := c
			return &c, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// checkUnique mirrors the unique indexes on citizen_profiles.
func (r *Citizens) checkUnique(c domain.CitizenProfile) error {
	for _, other := range r.s.citizens {
		if other.ID == c.ID {
			continue
		}
		if sameNonNil(other.Email, c.Email) || sameNonNil(other.PhoneE164, c.PhoneE164) ||
			sameNonNil(other.WhatsAppID, c.WhatsAppID) || sameNonNil(other.InstagramUserID, c.InstagramUserID) {
			return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
	}
	return nil
}

func sameNonNil(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func apply(c *domain.CitizenProfile, f domain.CitizenFields, overwrite bool) {
	set := func(dst **string, v *string) {
		if v != nil && (overwrite || *dst == nil) {
			*dst = cloneStr(v)
		}
	}
	set(&c.FullName, f.FullName)
	set(&c.Email, f.Email)
	set(&c.PhoneE164, f.PhoneE164)
	set(&c.WhatsAppID, f.WhatsAppID)
	set(&c.InstagramUserID, f.InstagramUserID)
	set(&c.InstagramUsername, f.InstagramUsername)
	set(&c.ConsentSource, f.ConsentSource)
	if f.ConsentAt != nil && (overwrite || c.ConsentAt == nil) {
		t := *f.ConsentAt
		c.ConsentAt = &t
	}
}
