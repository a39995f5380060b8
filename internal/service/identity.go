package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

var (
	phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneStrip   = strings.NewReplacer(" ", "", "(", "", ")", "", "-", "", "\t", "")
)

// NormalizePhone returns the E.164 form of value, or nil when it is not one.
// Only separators are stripped; a missing leading + is not guessed.
func NormalizePhone(value string) *string {
	normalized := phoneStrip.Replace(strings.TrimSpace(value))
	if !phonePattern.MatchString(normalized) {
		return nil
	}
	return &normalized
}

// NormalizeEmail lower-cases and validates an address, nil when invalid.
func NormalizeEmail(value string) *string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if !emailPattern.MatchString(normalized) {
		return nil
	}
	return &normalized
}

// MissingFieldsFor lists the profile fields a channel still needs.
func MissingFieldsFor(channel domain.Channel, profile *domain.CitizenProfile) []string {
	if channel != domain.ChannelWhatsApp && channel != domain.ChannelInstagram {
		return []string{}
	}
	var p domain.CitizenProfile
	if profile != nil {
		p = *profile
	}
	missing := []string{}
	if p.FullName == nil {
		missing = append(missing, "full_name")
	}
	if p.Email == nil {
		missing = append(missing, "email")
	}
	if channel == domain.ChannelInstagram && p.PhoneE164 == nil {
		missing = append(missing, "phone_e164")
	}
	return missing
}

// CitizenHints are the raw identity values a channel delivered. Email and
// phone are normalized by the resolver; invalid values are dropped.
type CitizenHints struct {
	FullName          string
	Email             string
	Phone             string
	WhatsAppID        string
	InstagramUserID   string
	InstagramUsername string
	Consent           bool
	ConsentSource     string
}

// CitizenResolver deduplicates citizen identities across channels.
type CitizenResolver struct {
	citizens repository.CitizenRepository
	cases    repository.CaseRepository
	audit    *AuditRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewCitizenResolver wires the resolver.
func NewCitizenResolver(citizens repository.CitizenRepository, cases repository.CaseRepository, audit *AuditRecorder, logger *zap.Logger) *CitizenResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CitizenResolver{citizens: citizens, cases: cases, audit: audit, logger: logger, now: time.Now}
}

// FindOrCreate returns the profile for a channel identity. conflict is true
// when a supplied email or phone already belongs to a different profile; the
// value is then left off and the two identities are never merged.
func (r *CitizenResolver) FindOrCreate(ctx context.Context, channel domain.Channel, hints CitizenHints) (*domain.CitizenProfile, bool, error) {
	var (
		profile  *domain.CitizenProfile
		conflict bool
		err      error
	)
	// A concurrent first contact can win the unique index; the second pass finds its row.
	for attempt := 0; attempt < 2; attempt++ {
		profile, conflict, err = r.findOrCreate(ctx, channel, hints)
		if err == nil || !apperrors.IsUniqueViolation(err) {
			break
		}
	}
	return profile, conflict, err
}

func (r *CitizenResolver) findOrCreate(ctx context.Context, channel domain.Channel, hints CitizenHints) (*domain.CitizenProfile, bool, error) {
	fields := r.fieldsFrom(channel, hints)

	switch channel {
	case domain.ChannelWhatsApp:
		if fields.WhatsAppID == nil {
			return nil, false, apperrors.NewValidationError("whatsapp id is required", nil)
		}
		existing, err := lookup(r.citizens.FindByWhatsAppID(ctx, *fields.WhatsAppID))
		if err != nil {
			return nil, false, err
		}
		return r.mergeOrCreate(ctx, existing, fields, false)

	case domain.ChannelInstagram:
		if fields.InstagramUserID == nil {
			return nil, false, apperrors.NewValidationError("instagram user id is required", nil)
		}
		existing, err := lookup(r.citizens.FindByInstagramUserID(ctx, *fields.InstagramUserID))
		if err != nil {
			return nil, false, err
		}
		return r.mergeOrCreate(ctx, existing, fields, false)
	}

	var existing *domain.CitizenProfile
	if fields.PhoneE164 != nil {
		found, err := lookup(r.citizens.FindByPhone(ctx, *fields.PhoneE164))
		if err != nil {
			return nil, false, err
		}
		existing = found
	}
	conflict := false
	if existing == nil && fields.Email != nil {
		found, err := lookup(r.citizens.FindByEmail(ctx, *fields.Email))
		if err != nil {
			return nil, false, err
		}
		if found != nil && fields.PhoneE164 != nil && found.PhoneE164 != nil && *found.PhoneE164 != *fields.PhoneE164 {
			r.logger.Info("citizen identity conflict", zap.String("citizen_id", found.ID), zap.String("channel", string(channel)))
			conflict = true
		} else {
			existing = found
		}
	}
	profile, claimConflict, err := r.mergeOrCreate(ctx, existing, fields, conflict)
	return profile, conflict || claimConflict, err
}

// mergeOrCreate backfills an existing profile or creates a new one. Unique
// values owned by another profile are dropped first.
func (r *CitizenResolver) mergeOrCreate(ctx context.Context, existing *domain.CitizenProfile, fields domain.CitizenFields, conflict bool) (*domain.CitizenProfile, bool, error) {
	selfID := ""
	if existing != nil {
		selfID = existing.ID
	}
	fields, dropped, err := r.claimable(ctx, selfID, fields)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		created, err := r.citizens.Create(ctx, fields)
		return created, conflict || dropped, err
	}
	if fields.Empty() {
		return existing, conflict || dropped, nil
	}
	merged, err := r.citizens.FillMissing(ctx, existing.ID, fields)
	return merged, conflict || dropped, err
}

func (r *CitizenResolver) claimable(ctx context.Context, selfID string, fields domain.CitizenFields) (domain.CitizenFields, bool, error) {
	dropped := false
	if fields.Email != nil {
		owner, err := lookup(r.citizens.FindByEmail(ctx, *fields.Email))
		if err != nil {
			return fields, false, err
		}
		if owner != nil && owner.ID != selfID {
			fields.Email = nil
			dropped = true
		}
	}
	if fields.PhoneE164 != nil {
		owner, err := lookup(r.citizens.FindByPhone(ctx, *fields.PhoneE164))
		if err != nil {
			return fields, false, err
		}
		if owner != nil && owner.ID != selfID {
			fields.PhoneE164 = nil
			dropped = true
		}
	}
	return fields, dropped, nil
}

func (r *CitizenResolver) fieldsFrom(channel domain.Channel, hints CitizenHints) domain.CitizenFields {
	fields := domain.CitizenFields{
		FullName:          nonEmpty(hints.FullName),
		Email:             NormalizeEmail(hints.Email),
		PhoneE164:         NormalizePhone(hints.Phone),
		WhatsAppID:        nonEmpty(hints.WhatsAppID),
		InstagramUserID:   nonEmpty(hints.InstagramUserID),
		InstagramUsername: nonEmpty(hints.InstagramUsername),
	}
	if channel == domain.ChannelWhatsApp && fields.PhoneE164 == nil && fields.WhatsAppID != nil {
		fields.PhoneE164 = NormalizePhone("+" + *fields.WhatsAppID)
	}
	source := hints.ConsentSource
	if source == "" {
		source = string(channel)
	}
	fields.ConsentSource = &source
	if hints.Consent {
		at := r.now().UTC()
		fields.ConsentAt = &at
	}
	return fields
}

// UpdateCitizen is the explicit staff edit: supplied fields overwrite stored
// ones and the snapshot is re-mirrored onto every case of the citizen.
func (r *CitizenResolver) UpdateCitizen(ctx context.Context, caller domain.Caller, id string, fields domain.CitizenFields) (*domain.CitizenProfile, error) {
	if fields.Email != nil {
		if fields.Email = NormalizeEmail(*fields.Email); fields.Email == nil {
			return nil, apperrors.NewValidationError("invalid email", map[string]any{"field": "email"})
		}
	}
	if fields.PhoneE164 != nil {
		if fields.PhoneE164 = NormalizePhone(*fields.PhoneE164); fields.PhoneE164 == nil {
			return nil, apperrors.NewValidationError("invalid phone, expected E.164", map[string]any{"field": "phone_e164"})
		}
	}

	before, err := r.citizens.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("citizen", map[string]any{"id": id})
	}
	if err != nil {
		return nil, err
	}
	if fields.Empty() {
		return before, nil
	}

	after, err := r.citizens.Overwrite(ctx, id, fields)
	if apperrors.IsUniqueViolation(err) {
		return nil, apperrors.NewConflict("email or phone already belongs to another citizen", nil)
	}
	if err != nil {
		return nil, err
	}
	if err := r.cases.MirrorCitizen(ctx, after); err != nil {
		return nil, err
	}

	r.audit.Record(ctx, AuditEntry{
		EntityType: domain.EntityCitizen,
		EntityID:   id,
		Action:     "citizens.update",
		Caller:     caller,
		Old:        citizenSnapshot(before),
		New:        citizenSnapshot(after),
	})
	return after, nil
}

func citizenSnapshot(p *domain.CitizenProfile) map[string]any {
	return map[string]any{
		"full_name":          p.FullName,
		"email":              p.Email,
		"phone_e164":         p.PhoneE164,
		"instagram_username": p.InstagramUsername,
	}
}

// lookup turns a not-found result into a nil profile.
func lookup(p *domain.CitizenProfile, err error) (*domain.CitizenProfile, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func nonEmpty(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
