package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/persistence"
)

// CitizenRepository persists citizen profiles. Lookups return pgx.ErrNoRows when absent.
type CitizenRepository interface {
	GetByID(ctx context.Context, id string) (*domain.CitizenProfile, error)
	FindByPhone(ctx context.Context, phone string) (*domain.CitizenProfile, error)
	FindByEmail(ctx context.Context, email string) (*domain.CitizenProfile, error)
	FindByWhatsAppID(ctx context.Context, waID string) (*domain.CitizenProfile, error)
	FindByInstagramUserID(ctx context.Context, igUserID string) (*domain.CitizenProfile, error)
	Create(ctx context.Context, fields domain.CitizenFields) (*domain.CitizenProfile, error)
	// FillMissing sets only the columns that are still NULL.
	FillMissing(ctx context.Context, id string, fields domain.CitizenFields) (*domain.CitizenProfile, error)
	// Overwrite replaces every supplied column regardless of its current value.
	Overwrite(ctx context.Context, id string, fields domain.CitizenFields) (*domain.CitizenProfile, error)
}

type citizenRepository struct {
	pool *pgxpool.Pool
}

// NewCitizenRepository instantiates repository.
func NewCitizenRepository(pool *pgxpool.Pool) CitizenRepository {
	return &citizenRepository{pool: pool}
}

const citizenColumns = `id, full_name, email, phone_e164, whatsapp_id, instagram_user_id, instagram_username,
               consent_at, consent_source, created_at, updated_at`

func (r *citizenRepository) GetByID(ctx context.Context, id string) (*domain.CitizenProfile, error) {
	return r.fetchSingle(ctx, `SELECT `+citizenColumns+` FROM citizen_profiles WHERE id=$1`, id)
}

func (r *citizenRepository) FindByPhone(ctx context.Context, phone string) (*domain.CitizenProfile, error) {
	return r.fetchSingle(ctx, `SELECT `+citizenColumns+` FROM citizen_profiles WHERE phone_e164=$1 LIMIT 1`, phone)
}

func (r *citizenRepository) FindByEmail(ctx context.Context, email string) (*domain.CitizenProfile, error) {
	return r.fetchSingle(ctx, `SELECT `+citizenColumns+` FROM citizen_profiles WHERE email=$1 LIMIT 1`, email)
}

func (r *citizenRepository) FindByWhatsAppID(ctx context.Context, waID string) (*domain.CitizenProfile, error) {
	return r.fetchSingle(ctx, `SELECT `+citizenColumns+` FROM citizen_profiles WHERE whatsapp_id=$1 LIMIT 1`, waID)
}

func (r *citizenRepository) FindByInstagramUserID(ctx context.Context, igUserID string) (*domain.CitizenProfile, error) {
	return r.fetchSingle(ctx, `SELECT `+citizenColumns+` FROM citizen_profiles WHERE instagram_user_id=$1 LIMIT 1`, igUserID)
}

func (r *citizenRepository) Create(ctx context.Context, fields domain.CitizenFields) (*domain.CitizenProfile, error) {
	query := `
        INSERT INTO citizen_profiles (full_name, email, phone_e164, whatsapp_id, instagram_user_id, instagram_username, consent_at, consent_source)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING ` + citizenColumns
	return r.fetchSingle(ctx, query,
		fields.FullName,
		fields.Email,
		fields.PhoneE164,
		fields.WhatsAppID,
		fields.InstagramUserID,
		fields.InstagramUsername,
		fields.ConsentAt,
		fields.ConsentSource,
	)
}

func (r *citizenRepository) FillMissing(ctx context.Context, id string, fields domain.CitizenFields) (*domain.CitizenProfile, error) {
	return r.update(ctx, id, fields, func(column, placeholder string) string {
		return fmt.Sprintf("%s=COALESCE(%s, %s)", column, column, placeholder)
	})
}

func (r *citizenRepository) Overwrite(ctx context.Context, id string, fields domain.CitizenFields) (*domain.CitizenProfile, error) {
	return r.update(ctx, id, fields, func(column, placeholder string) string {
		return fmt.Sprintf("%s=%s", column, placeholder)
	})
}

func (r *citizenRepository) update(ctx context.Context, id string, fields domain.CitizenFields, assign func(column, placeholder string) string) (*domain.CitizenProfile, error) {
	if fields.Empty() {
		return r.GetByID(ctx, id)
	}
	sets := []string{}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, assign(column, fmt.Sprintf("$%d", len(args))))
	}
	if fields.FullName != nil {
		add("full_name", *fields.FullName)
	}
	if fields.Email != nil {
		add("email", *fields.Email)
	}
	if fields.PhoneE164 != nil {
		add("phone_e164", *fields.PhoneE164)
	}
	if fields.WhatsAppID != nil {
		add("whatsapp_id", *fields.WhatsAppID)
	}
	if fields.InstagramUserID != nil {
		add("instagram_user_id", *fields.InstagramUserID)
	}
	if fields.InstagramUsername != nil {
		add("instagram_username", *fields.InstagramUsername)
	}
	if fields.ConsentAt != nil {
		add("consent_at", *fields.ConsentAt)
	}
	if fields.ConsentSource != nil {
		add("consent_source", *fields.ConsentSource)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE citizen_profiles SET %s, updated_at=NOW() WHERE id=$%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), citizenColumns)
	return r.fetchSingle(ctx, query, args...)
}

func (r *citizenRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.CitizenProfile, error) {
	var c domain.CitizenProfile
	if err := persistence.Querier(ctx, r.pool).QueryRow(ctx, query, args...).Scan(
		&c.ID,
		&c.FullName,
		&c.Email,
		&c.PhoneE164,
		&c.WhatsAppID,
		&c.InstagramUserID,
		&c.InstagramUsername,
		&c.ConsentAt,
		&c.ConsentSource,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

