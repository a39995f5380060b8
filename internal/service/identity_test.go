package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+55 (86) 99999-0000", "+5586999990000"},
		{"+5586999990000", "+5586999990000"},
		{"5586999990000", ""},
		{"+0123", ""},
		{"+1234567890123456", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got := NormalizePhone(tt.in)
		if tt.want == "" {
			assert.Nil(t, got, tt.in)
			continue
		}
		require.NotNil(t, got, tt.in)
		assert.Equal(t, tt.want, *got)
	}
}

func TestNormalizeEmail(t *testing.T) {
	got := NormalizeEmail("  Maria@Example.COM ")
	require.NotNil(t, got)
	assert.Equal(t, "maria@example.com", *got)
	assert.Nil(t, NormalizeEmail("maria@example"))
	assert.Nil(t, NormalizeEmail("ma ria@example.com"))
}

func TestMissingFieldsFor(t *testing.T) {
	name := "Ana"
	assert.Empty(t, MissingFieldsFor(domain.ChannelWeb, nil))
	assert.Equal(t, []string{"full_name", "email"}, MissingFieldsFor(domain.ChannelWhatsApp, nil))
	assert.Equal(t, []string{"email", "phone_e164"}, MissingFieldsFor(domain.ChannelInstagram, &domain.CitizenProfile{FullName: &name}))
}

func TestFindOrCreateWhatsAppIsStableAndBackfills(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, conflict, err := h.citizens.FindOrCreate(ctx, domain.ChannelWhatsApp, CitizenHints{WhatsAppID: "5586999990040"})
	require.NoError(t, err)
	assert.False(t, conflict)
	assert.Nil(t, first.FullName)
	require.NotNil(t, first.PhoneE164)
	assert.Equal(t, "+5586999990040", *first.PhoneE164)

	second, _, err := h.citizens.FindOrCreate(ctx, domain.ChannelWhatsApp, CitizenHints{WhatsAppID: "5586999990040", FullName: "Carla"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.FullName)
	assert.Equal(t, "Carla", *second.FullName)

	third, _, err := h.citizens.FindOrCreate(ctx, domain.ChannelWhatsApp, CitizenHints{WhatsAppID: "5586999990040", FullName: "Outro Nome"})
	require.NoError(t, err)
	assert.Equal(t, "Carla", *third.FullName, "set fields are never overwritten by a merge")
}

func TestFindOrCreateLinksWebContactByPhone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wa, _, err := h.citizens.FindOrCreate(ctx, domain.ChannelWhatsApp, CitizenHints{WhatsAppID: "5586999990041"})
	require.NoError(t, err)

	web, conflict, err := h.citizens.FindOrCreate(ctx, domain.ChannelWeb, CitizenHints{
		FullName: "Bia", Email: "bia@example.com", Phone: "+55 86 99999-0041", Consent: true,
	})
	require.NoError(t, err)
	assert.False(t, conflict)
	assert.Equal(t, wa.ID, web.ID)
	assert.Equal(t, "bia@example.com", *web.Email)
	assert.NotNil(t, web.ConsentAt)
}

func TestFindOrCreateRequiresChannelIdentity(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.citizens.FindOrCreate(context.Background(), domain.ChannelInstagram, CitizenHints{InstagramUsername: "bia"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestFindOrCreateInstagramDropsEmailOwnedElsewhere(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner, _, err := h.citizens.FindOrCreate(ctx, domain.ChannelWeb, CitizenHints{Email: "dono@example.com", Phone: "+5586999990042"})
	require.NoError(t, err)

	ig, conflict, err := h.citizens.FindOrCreate(ctx, domain.ChannelInstagram, CitizenHints{
		InstagramUserID: "ig-1", InstagramUsername: "dono", Email: "dono@example.com",
	})
	require.NoError(t, err)
	assert.True(t, conflict)
	assert.NotEqual(t, owner.ID, ig.ID)
	assert.Nil(t, ig.Email)
}

func TestUpdateCitizenOverwritesAndRemirrorsCases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.mustIngest(t, h.whatsapp("wamid.cit", "5586999990043", "Nome Antigo", "texto"))
	c, err := h.store.Cases().GetByID(ctx, res.CaseID)
	require.NoError(t, err)

	updated, err := h.citizens.UpdateCitizen(ctx, admin(), c.CitizenID, domain.CitizenFields{
		FullName: strRef("Nome Novo"),
		Email:    strRef("Novo@Example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Nome Novo", *updated.FullName)
	assert.Equal(t, "novo@example.com", *updated.Email)

	c, err = h.store.Cases().GetByID(ctx, res.CaseID)
	require.NoError(t, err)
	assert.Equal(t, "Nome Novo", *c.CitizenName)
	assert.Equal(t, "novo@example.com", *c.CitizenEmail)
	assert.Contains(t, h.auditActions(c.CitizenID), "citizens.update")

	_, err = h.citizens.UpdateCitizen(ctx, admin(), c.CitizenID, domain.CitizenFields{PhoneE164: strRef("123")})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = h.citizens.UpdateCitizen(ctx, admin(), "missing", domain.CitizenFields{FullName: strRef("x")})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
