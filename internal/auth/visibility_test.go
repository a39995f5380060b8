package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/observability"
	"github.com/spec-kit/ombudsman-service/internal/repository"
	"github.com/spec-kit/ombudsman-service/internal/repository/memory"
)

type world struct {
	store     *memory.Store
	secA      string
	secB      string
	secGlobal string
	queueA1   string
	queueA2   string
	queueB1   string
	operator  string
	loner     string
}

func newWorld() *world {
	w := &world{store: memory.NewStore()}
	w.secA = w.store.AddSecretariat("SEINFRA", "Infraestrutura")
	w.secB = w.store.AddSecretariat("SAUDE", "Saude")
	w.secGlobal = w.store.AddSecretariat("GABINETE_PREFEITO", "Gabinete")
	w.queueA1 = w.store.AddQueue(domain.Queue{SecretariatID: w.secA, Slug: "iluminacao", Name: "Iluminacao", IsActive: true})
	w.queueA2 = w.store.AddQueue(domain.Queue{SecretariatID: w.secA, Slug: "buracos", Name: "Buracos", IsActive: true})
	w.queueB1 = w.store.AddQueue(domain.Queue{SecretariatID: w.secB, Slug: "ubs", Name: "UBS", IsActive: true})
	w.operator = w.store.AddStaff(domain.StaffMember{Name: "Op", Role: domain.StaffRoleOperator, Active: true}, w.queueA1)
	w.loner = w.store.AddStaff(domain.StaffMember{Name: "Loner", Role: domain.StaffRoleOperator, Active: true})
	return w
}

// seedCases creates one case per (queue, assignee) combination worth checking.
func (w *world) seedCases(t *testing.T) []domain.Case {
	t.Helper()
	ctx := context.Background()
	cases := w.store.Cases()
	fixtures := []struct {
		queue    *string
		assignee *string
	}{
		{nil, nil},
		{&w.queueA1, nil},
		{&w.queueA2, nil},
		{&w.queueB1, nil},
		{&w.queueB1, &w.loner},
		{nil, &w.loner},
		{&w.queueA2, &w.operator},
	}
	for i, f := range fixtures {
		c := &domain.Case{Protocol: string(rune('A'+i)) + "AAA-AAAA-AAAA", CitizenID: "cit", Status: domain.CaseStatusNew, Priority: domain.CasePriorityNormal}
		require.NoError(t, cases.Create(ctx, c))
		c.QueueID = f.queue
		c.AssignedTo = f.assignee
		require.NoError(t, cases.Update(ctx, c))
	}
	all, err := cases.List(ctx, repository.CaseFilter{Limit: 100})
	require.NoError(t, err)
	require.Len(t, all, len(fixtures))
	return all
}

func TestScopeQueryAndCanAccessAgree(t *testing.T) {
	w := newWorld()
	all := w.seedCases(t)
	ctx := context.Background()

	callers := map[string]domain.Caller{
		"admin":               {StaffID: "adm", Role: domain.StaffRoleAdmin},
		"manager":             {StaffID: "mgr", Role: domain.StaffRoleManager},
		"viewer":              {StaffID: "vw", Role: domain.StaffRoleViewer, SecretariatID: &w.secA},
		"operator with queue": {StaffID: w.operator, Role: domain.StaffRoleOperator},
		"operator no queue":   {StaffID: w.loner, Role: domain.StaffRoleOperator},
		"department":          {StaffID: "dep", Role: domain.StaffRoleSecretariat, SecretariatID: &w.secA},
		"department missing":  {StaffID: "dep2", Role: domain.StaffRoleSecretariat},
		"global viewer":       {StaffID: "gv", Role: domain.StaffRoleGlobalViewer},
		"global manager":      {StaffID: "gm", Role: domain.StaffRoleGlobalManager},
		"legacy global dept":  {StaffID: "lg", Role: domain.StaffRoleSecretariat, SecretariatID: &w.secGlobal},
	}

	resolver := NewScopeResolver(w.store.Queues(), []string{"GABINETE_PREFEITO"}, true, nil, observability.NewMetrics())

	for name, caller := range callers {
		t.Run(name, func(t *testing.T) {
			scope, err := resolver.Resolve(ctx, caller)
			require.NoError(t, err)

			listed, err := w.store.Cases().List(ctx, ScopeQuery(scope, repository.CaseFilter{Limit: 100}))
			require.NoError(t, err)
			visible := map[string]bool{}
			for _, c := range listed {
				visible[c.ID] = true
			}
			for _, c := range all {
				assert.Equal(t, visible[c.ID], CanAccess(scope, c.Ownership()), "case %s", c.ID)
			}
		})
	}
}

func TestResolveScopes(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	metrics := observability.NewMetrics()
	resolver := NewScopeResolver(w.store.Queues(), []string{"GABINETE_PREFEITO"}, true, nil, metrics)

	scope, err := resolver.Resolve(ctx, domain.Caller{StaffID: w.operator, Role: domain.StaffRoleOperator})
	require.NoError(t, err)
	assert.Equal(t, ScopeQueueSet, scope.Kind)
	assert.Equal(t, []string{w.queueA1}, scope.QueueIDs)

	scope, err = resolver.Resolve(ctx, domain.Caller{StaffID: w.loner, Role: domain.StaffRoleOperator})
	require.NoError(t, err)
	assert.Equal(t, ScopeOwnerOnly, scope.Kind)

	scope, err = resolver.Resolve(ctx, domain.Caller{Role: domain.StaffRoleViewer})
	require.NoError(t, err)
	assert.Equal(t, ScopeNone, scope.Kind)

	scope, err = resolver.Resolve(ctx, domain.SystemCaller())
	require.NoError(t, err)
	assert.Equal(t, ScopeUnrestricted, scope.Kind)

	scope, err = resolver.Resolve(ctx, domain.Caller{StaffID: "x", Role: domain.StaffRoleSecretariat, SecretariatID: &w.secGlobal})
	require.NoError(t, err)
	assert.Equal(t, ScopeUnrestricted, scope.Kind)
	assert.EqualValues(t, 1, metrics.Counter(observability.CounterDeprecatedRBACAccess))
}

func TestLegacyGlobalAccessCanBeDisabled(t *testing.T) {
	w := newWorld()
	resolver := NewScopeResolver(w.store.Queues(), []string{"GABINETE_PREFEITO"}, false, nil, nil)

	scope, err := resolver.Resolve(context.Background(), domain.Caller{StaffID: "x", Role: domain.StaffRoleSecretariat, SecretariatID: &w.secGlobal})
	require.NoError(t, err)
	assert.Equal(t, ScopeDepartmentOnly, scope.Kind)
	assert.Equal(t, w.secGlobal, scope.SecretariatID)
}

func TestCanAccessUnassignedCase(t *testing.T) {
	queue := "q1"
	owner := VisibilityScope{Kind: ScopeOwnerOnly, StaffID: "s1"}
	assert.False(t, CanAccess(owner, domain.CaseOwnership{QueueID: &queue}))
	assert.False(t, CanAccess(VisibilityScope{Kind: ScopeNone}, domain.CaseOwnership{QueueID: &queue}))
	assert.True(t, CanAccess(VisibilityScope{Kind: ScopeUnrestricted}, domain.CaseOwnership{}))
}
