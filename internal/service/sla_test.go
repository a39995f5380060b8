package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/events"
	"github.com/spec-kit/ombudsman-service/internal/observability"
)

func TestSLABreachFiresOnceAfterDeadline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.mustIngest(t, h.whatsapp("wamid.sla", "5586999990020", "Rita", "qualquer"))

	c, err := h.cases.TransferQueue(ctx, admin(), res.CaseID, h.triage)
	require.NoError(t, err)
	require.NotNil(t, c.SLADueAt)
	due := *c.SLADueAt
	assert.True(t, due.Equal(h.clock.Now().Add(48*time.Hour)))

	fired, err := h.sla.CheckBreach(ctx, res.CaseID, due)
	require.NoError(t, err)
	assert.False(t, fired, "deadline not reached yet")

	h.clock.Advance(49 * time.Hour)
	fired, err = h.sla.CheckBreach(ctx, res.CaseID, due)
	require.NoError(t, err)
	assert.True(t, fired)

	fired, err = h.sla.CheckBreach(ctx, res.CaseID, due)
	require.NoError(t, err)
	assert.False(t, fired, "redelivery is a no-op")

	c, err = h.store.Cases().GetByID(ctx, res.CaseID)
	require.NoError(t, err)
	assert.True(t, c.SLABreached)
	assert.EqualValues(t, 1, h.metrics.Counter(observability.CounterSLABreaches))

	breaches := h.events.ofType(events.EventSLABreached)
	require.Len(t, breaches, 1)
	payload := breaches[0].Payload.(events.SLABreachedPayload)
	assert.Equal(t, h.triage, *payload.QueueID)

	var audited int
	for _, action := range h.auditActions(res.CaseID) {
		if action == "sla_breached" {
			audited++
		}
	}
	assert.Equal(t, 1, audited)
}

func TestSLABreachIgnoresStaleDeadlineAndClosedCases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.mustIngest(t, h.whatsapp("wamid.sla2", "5586999990021", "", "texto"))

	first, err := h.sla.Arm(ctx, res.CaseID, h.triage)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	second, err := h.sla.ArmHours(ctx, res.CaseID, &h.triage, 72)
	require.NoError(t, err)
	require.Len(t, h.timer.calls, 2)

	h.clock.Advance(50 * time.Hour)
	fired, err := h.sla.CheckBreach(ctx, res.CaseID, first)
	require.NoError(t, err)
	assert.False(t, fired, "a re-armed case ignores the old deadline")

	_, err = h.cases.SetStatus(ctx, admin(), res.CaseID, domain.CaseStatusClosed)
	require.NoError(t, err)

	h.clock.Advance(100 * time.Hour)
	fired, err = h.sla.CheckBreach(ctx, res.CaseID, second)
	require.NoError(t, err)
	assert.False(t, fired, "closed cases never breach")
	assert.Empty(t, h.events.ofType(events.EventSLABreached))
}

func TestArmFallsBackToDefaultHoursForUnknownQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.mustIngest(t, h.whatsapp("wamid.sla3", "5586999990022", "", "texto"))

	due, err := h.sla.Arm(ctx, res.CaseID, "missing-queue")
	require.NoError(t, err)
	assert.True(t, due.Equal(h.clock.Now().Add(48*time.Hour)))
}
