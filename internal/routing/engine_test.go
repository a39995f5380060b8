package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository/memory"
)

type fixture struct {
	store  *memory.Store
	engine *Engine
	caseID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	engine := NewEngine(
		store.RoutingRules(),
		store.Queues(),
		store.SLARules(),
		store.Tags(),
		store.MissingFields(),
		store.Cases(),
		Options{TriageQueueSlug: "triagem"},
		nil,
	)
	c := &domain.Case{Protocol: "AAAA-BBBB-CCCC", CitizenID: "cit", Status: domain.CaseStatusNew, Priority: domain.CasePriorityNormal, Channel: domain.ChannelWhatsApp}
	require.NoError(t, store.Cases().Create(context.Background(), c))
	return &fixture{store: store, engine: engine, caseID: c.ID}
}

func containsRule(priority int, word string, actions string) domain.RoutingRule {
	return domain.RoutingRule{
		Name:       word,
		Priority:   priority,
		Enabled:    true,
		Conditions: []byte(`{"any":[{"field":"message.text","op":"contains","value":"` + word + `"}]}`),
		Actions:    []byte(actions),
	}
}

func TestRouteFirstMatchWinsByPriority(t *testing.T) {
	f := newFixture(t)
	low := f.store.AddRoutingRule(containsRule(5, "poste", `[{"type":"add_tag","value":"low"}]`))
	high := f.store.AddRoutingRule(containsRule(10, "poste", `[{"type":"add_tag","value":"high"}]`))

	res, err := f.engine.Route(context.Background(), f.caseID, Input{Channel: domain.ChannelWhatsApp, Text: "poste apagado"})
	require.NoError(t, err)
	require.NotNil(t, res.RuleID)
	assert.Equal(t, high, *res.RuleID)

	highRule, _ := f.store.RoutingRule(high)
	lowRule, _ := f.store.RoutingRule(low)
	assert.EqualValues(t, 1, highRule.MatchCount)
	assert.EqualValues(t, 0, lowRule.MatchCount)
}

func TestRouteQueueByMetaDerivesSecretariat(t *testing.T) {
	f := newFixture(t)
	sec := f.store.AddSecretariat("SEINFRA", "Infraestrutura")
	queue := f.store.AddQueue(domain.Queue{SecretariatID: sec, Slug: "iluminacao", Name: "Iluminacao", SLAHours: 24, IsActive: true})
	f.store.AddRoutingRule(containsRule(20, "poste", `[{"type":"set_queue_by_meta","target_queue_slug":"iluminacao"}]`))

	res, err := f.engine.Route(context.Background(), f.caseID, Input{Channel: domain.ChannelWhatsApp, Text: "poste"})
	require.NoError(t, err)
	assert.True(t, res.Routed())
	assert.Equal(t, queue, *res.QueueID)
	assert.Equal(t, sec, *res.SecretariatID)
}

func TestRouteQueueByMetaFallsBackToTriage(t *testing.T) {
	f := newFixture(t)
	sec := f.store.AddSecretariat("OUV", "Ouvidoria")
	triage := f.store.AddQueue(domain.Queue{SecretariatID: sec, Slug: "triagem", Name: "Triagem", SLAHours: 48, IsActive: true})
	f.store.AddRoutingRule(containsRule(1, "poste", `[{"type":"set_queue_by_meta","target_queue_slug":"missing"}]`))

	res, err := f.engine.Route(context.Background(), f.caseID, Input{Text: "poste"})
	require.NoError(t, err)
	assert.Equal(t, triage, *res.QueueID)
}

func TestRouteFallbackRuleOnlyWhenNothingMatches(t *testing.T) {
	f := newFixture(t)
	fallback := f.store.AddRoutingRule(domain.RoutingRule{
		Name:       "fallback",
		Enabled:    true,
		IsFallback: true,
		Conditions: []byte(`{}`),
		Actions:    []byte(`[{"type":"add_tag","value":"triagem"}]`),
	})
	f.store.AddRoutingRule(containsRule(3, "buraco", `[]`))

	res, err := f.engine.Route(context.Background(), f.caseID, Input{Text: "barulho"})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, fallback, *res.RuleID)
	assert.False(t, res.Routed())
}

func TestRouteNothingMatches(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.Route(context.Background(), f.caseID, Input{Text: "nada"})
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Nil(t, res.RuleID)
}

func TestRouteSkipsRuleWithUnknownAction(t *testing.T) {
	f := newFixture(t)
	bad := f.store.AddRoutingRule(containsRule(50, "poste", `[{"type":"launch_rocket"}]`))
	good := f.store.AddRoutingRule(containsRule(10, "poste", `[]`))

	res, err := f.engine.Route(context.Background(), f.caseID, Input{Text: "poste"})
	require.NoError(t, err)
	assert.Equal(t, good, *res.RuleID)
	badRule, _ := f.store.RoutingRule(bad)
	assert.EqualValues(t, 0, badRule.MatchCount)
}

func TestRouteActionsApplyInOrder(t *testing.T) {
	f := newFixture(t)
	f.store.AddTag("iluminacao")
	f.store.AddSLARule(domain.SLARule{Name: "sla_default", Hours: 72, IsDefault: true, IsActive: true})
	f.store.AddRoutingRule(containsRule(1, "poste", `[
		{"type":"add_tag","value":"iluminacao"},
		{"type":"add_tag","value":"unknown-tag"},
		{"type":"set_priority","value":"urgent"},
		{"type":"set_priority","value":"critical"},
		{"type":"set_sla_rule","value":"does-not-exist"},
		{"type":"require_fields","fields":["email","email"]}
	]`))

	ctx := context.Background()
	res, err := f.engine.Route(ctx, f.caseID, Input{Text: "poste"})
	require.NoError(t, err)

	assert.Equal(t, []string{"iluminacao"}, res.Tags)
	assert.Equal(t, domain.CasePriorityUrgent, *res.Priority)
	assert.Equal(t, 72, *res.SLAHours)

	c, err := f.store.Cases().GetByID(ctx, f.caseID)
	require.NoError(t, err)
	assert.Equal(t, domain.CasePriorityUrgent, c.Priority)

	fields, err := f.store.MissingFields().ListByCase(ctx, f.caseID)
	require.NoError(t, err)
	assert.Len(t, fields, 1)
}

func TestSLARuleHardDefault(t *testing.T) {
	f := newFixture(t)
	f.store.AddRoutingRule(containsRule(1, "x", `[{"type":"set_sla_rule","value":"nope"}]`))
	res, err := f.engine.Route(context.Background(), f.caseID, Input{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, DefaultSLAHours, *res.SLAHours)
}

func TestSimulateDoesNotPersist(t *testing.T) {
	f := newFixture(t)
	f.store.AddTag("t")
	id := f.store.AddRoutingRule(containsRule(1, "poste", `[{"type":"add_tag","value":"t"},{"type":"set_priority","value":"high"}]`))

	ctx := context.Background()
	res, err := f.engine.Simulate(ctx, Input{Text: "poste"})
	require.NoError(t, err)
	assert.Equal(t, id, *res.RuleID)

	rule, _ := f.store.RoutingRule(id)
	assert.EqualValues(t, 0, rule.MatchCount)
	tags, _ := f.store.Tags().ListByCase(ctx, f.caseID)
	assert.Empty(t, tags)
	c, _ := f.store.Cases().GetByID(ctx, f.caseID)
	assert.Equal(t, domain.CasePriorityNormal, c.Priority)
}

func TestRouteSetSecretariatPicksItsBestQueue(t *testing.T) {
	f := newFixture(t)
	sec := f.store.AddSecretariat("SEMAM", "Meio Ambiente")
	f.store.AddQueue(domain.Queue{SecretariatID: sec, Slug: "geral", Name: "Geral", Priority: 1, SLAHours: 72, IsActive: true})
	best := f.store.AddQueue(domain.Queue{SecretariatID: sec, Slug: "podas", Name: "Podas", Priority: 9, SLAHours: 24, IsActive: true})
	f.store.AddRoutingRule(containsRule(10, "arvore", `[{"type":"set_secretariat","value":"SEMAM"}]`))

	res, err := f.engine.Route(context.Background(), f.caseID, Input{Channel: domain.ChannelWhatsApp, Text: "arvore caida"})
	require.NoError(t, err)
	assert.True(t, res.Routed())
	assert.Equal(t, best, *res.QueueID)
	assert.Equal(t, sec, *res.SecretariatID)
}

func TestRouteSetSecretariatWithoutQueuesLeavesCaseUnrouted(t *testing.T) {
	f := newFixture(t)
	f.store.AddSecretariat("SEMAM", "Meio Ambiente")
	f.store.AddTag("meio-ambiente")
	f.store.AddRoutingRule(containsRule(10, "arvore",
		`[{"type":"set_secretariat","value":"SEMAM"},{"type":"add_tag","value":"meio-ambiente"}]`))

	res, err := f.engine.Route(context.Background(), f.caseID, Input{Channel: domain.ChannelWhatsApp, Text: "arvore caida"})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	require.NotNil(t, res.RuleID)
	assert.False(t, res.Routed(), "a secretariat is only ever derived from a queue")
	assert.Nil(t, res.QueueID)
	assert.Nil(t, res.SecretariatID)
	assert.Equal(t, []string{"meio-ambiente"}, res.Tags, "later actions still run")
}
