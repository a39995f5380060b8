package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ombudsman-service/internal/auth"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/events"
	"github.com/spec-kit/ombudsman-service/internal/observability"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

func TestLoginStaffIssuesTokenAndRecordsFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	hash, err := auth.HashStaffPassword("s3cret-pass", bcrypt.MinCost)
	require.NoError(t, err)
	id := h.store.AddStaff(domain.StaffMember{Name: "Ops", Email: "ops@city.gov", PasswordHash: hash, Role: domain.StaffRoleManager, Active: true})
	h.store.AddStaff(domain.StaffMember{Name: "Gone", Email: "gone@city.gov", PasswordHash: hash, Role: domain.StaffRoleOperator})

	tokens := auth.NewTokenManager("test-secret", 30)
	svc := NewAuthService(tokens, h.store.Staff(), h.audit)

	staff, token, _, err := svc.LoginStaff(ctx, LoginRequest{Email: "OPS@city.gov", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, id, staff.ID)
	claims, err := svc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Subject)
	assert.Equal(t, domain.StaffRoleManager, claims.Role)

	for _, req := range []LoginRequest{
		{Email: "ops@city.gov", Password: "wrong", IP: "10.0.0.1"},
		{Email: "nobody@city.gov", Password: "x"},
		{Email: "gone@city.gov", Password: "s3cret-pass"},
	} {
		_, _, _, err := svc.LoginStaff(ctx, req)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized), req.Email)
	}

	recorded := h.store.SecurityEvents()
	require.Len(t, recorded, 3)
	for _, evt := range recorded {
		assert.Equal(t, "login_failed", evt.Type)
	}
	require.NotNil(t, recorded[0].IP)
	assert.Equal(t, "10.0.0.1", *recorded[0].IP)

	_, _, _, err = svc.LoginStaff(ctx, LoginRequest{Email: " "})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestStaffDirectory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := NewStaffService(h.store.Staff(), h.store.Queues(), h.audit, bcrypt.MinCost)

	in := StaffInput{Name: "Lia", Email: "Lia@City.gov", Password: "long-enough", Role: domain.StaffRoleOperator, SecretariatID: &h.secretaria}
	_, err := svc.CreateStaffMember(ctx, domain.Caller{StaffID: "m", Role: domain.StaffRoleManager}, in)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	member, err := svc.CreateStaffMember(ctx, admin(), in)
	require.NoError(t, err)
	assert.Equal(t, "lia@city.gov", member.Email)
	assert.True(t, auth.CheckStaffPassword(member.PasswordHash, "long-enough"))
	assert.Contains(t, h.auditActions(member.ID), "staff.create")

	_, err = svc.CreateStaffMember(ctx, admin(), in)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	_, err = svc.CreateStaffMember(ctx, admin(), StaffInput{Name: "X", Email: "x@city.gov", Password: "short", Role: "boss"})
	require.Error(t, err)
	assert.Contains(t, apperrors.ToDomainError(err).Details, "password")
	assert.Contains(t, apperrors.ToDomainError(err).Details, "role")

	h.store.AddStaff(domain.StaffMember{Name: "Elsewhere", Role: domain.StaffRoleOperator, Active: true, SecretariatID: strRef("other")})
	peer := domain.Caller{StaffID: member.ID, Role: domain.StaffRoleSecretariat, SecretariatID: &h.secretaria}
	list, err := svc.ListStaffMembers(ctx, peer, StaffListFilters{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, member.ID, list[0].ID)

	all, err := svc.ListStaffMembers(ctx, admin(), StaffListFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

type failingNotifier struct{ calls []string }

func (f *failingNotifier) Notify(_ context.Context, eventType string, _ any) error {
	f.calls = append(f.calls, eventType)
	return errors.New("automation down")
}

func TestNotificationServiceForwardsAndCountsFailures(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	notifier := &failingNotifier{}
	metrics := observability.NewMetrics()
	NewNotificationService(dispatcher, notifier, metrics, zap.NewNop()).RegisterHandlers()

	ctx := context.Background()
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventCaseCreated, CaseID: "c1"}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventSLABreached, CaseID: "c1"}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventCaseStatusChanged, CaseID: "c1"}))

	assert.Equal(t, []string{"case_created", "sla_breached"}, notifier.calls)
	assert.EqualValues(t, 2, metrics.Counter(observability.CounterAutomationFailures))
}
