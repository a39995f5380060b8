package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/observability"
	"github.com/spec-kit/ombudsman-service/internal/repository"
)

// ScopeKind tags a VisibilityScope.
type ScopeKind int

const (
	ScopeUnrestricted ScopeKind = iota
	ScopeNone
	ScopeQueueSet
	ScopeOwnerOnly
	ScopeDepartmentOnly
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeUnrestricted:
		return "unrestricted"
	case ScopeNone:
		return "none"
	case ScopeQueueSet:
		return "queue_set"
	case ScopeOwnerOnly:
		return "owner_only"
	case ScopeDepartmentOnly:
		return "department_only"
	}
	return "unknown"
}

// VisibilityScope is the single authorization decision for a caller. It is
// computed once and interpreted both as a listing filter and as a per-case check.
type VisibilityScope struct {
	Kind          ScopeKind
	QueueIDs      []string
	StaffID       string
	SecretariatID string
}

// Projection turns each scope variant into some result type.
type Projection[T any] struct {
	Unrestricted   func() T
	None           func() T
	QueueSet       func(queueIDs []string) T
	OwnerOnly      func(staffID string) T
	DepartmentOnly func(secretariatID string) T
}

// Interpret is the one place scope variants are branched on.
func Interpret[T any](scope VisibilityScope, p Projection[T]) T {
	switch scope.Kind {
	case ScopeUnrestricted:
		return p.Unrestricted()
	case ScopeQueueSet:
		return p.QueueSet(scope.QueueIDs)
	case ScopeOwnerOnly:
		return p.OwnerOnly(scope.StaffID)
	case ScopeDepartmentOnly:
		return p.DepartmentOnly(scope.SecretariatID)
	}
	return p.None()
}

// membership expresses every restricted variant as "column value in set".
func membership(scope VisibilityScope) repository.ScopeClause {
	return Interpret(scope, Projection[repository.ScopeClause]{
		Unrestricted: func() repository.ScopeClause { return repository.ScopeClause{Kind: repository.ScopeAll} },
		None:         func() repository.ScopeClause { return repository.ScopeClause{Kind: repository.ScopeNone} },
		QueueSet: func(ids []string) repository.ScopeClause {
			return repository.ScopeClause{Kind: repository.ScopeIn, Column: repository.ColumnQueueID, Values: ids}
		},
		OwnerOnly: func(staffID string) repository.ScopeClause {
			return repository.ScopeClause{Kind: repository.ScopeIn, Column: repository.ColumnAssignedTo, Values: []string{staffID}}
		},
		DepartmentOnly: func(secretariatID string) repository.ScopeClause {
			return repository.ScopeClause{Kind: repository.ScopeIn, Column: repository.ColumnSecretariatID, Values: []string{secretariatID}}
		},
	})
}

// ScopeQuery narrows a case listing to what the scope may see.
func ScopeQuery(scope VisibilityScope, filter repository.CaseFilter) repository.CaseFilter {
	filter.Scope = membership(scope)
	return filter
}

// CanAccess authorizes a single case. It evaluates the same clause ScopeQuery
// hands to storage, so the two cannot disagree.
func CanAccess(scope VisibilityScope, ownership domain.CaseOwnership) bool {
	clause := membership(scope)
	switch clause.Kind {
	case repository.ScopeAll:
		return true
	case repository.ScopeIn:
		value := clause.Column.Value(ownership)
		if value == nil {
			return false
		}
		for _, allowed := range clause.Values {
			if allowed == *value {
				return true
			}
		}
	}
	return false
}

// ScopeSource supplies the lookups scope resolution needs.
type ScopeSource interface {
	ListStaffQueueIDs(ctx context.Context, staffID string) ([]string, error)
	GetSecretariat(ctx context.Context, id string) (*domain.Secretariat, error)
}

// ScopeResolver computes a caller's VisibilityScope.
type ScopeResolver struct {
	source        ScopeSource
	globalCodes   map[string]struct{}
	legacyEnabled bool
	logger        *zap.Logger
	metrics       *observability.Metrics
}

// NewScopeResolver builds a resolver. globalCodes lists secretariat codes that
// still grant unrestricted access through the legacy path when legacyEnabled.
func NewScopeResolver(source ScopeSource, globalCodes []string, legacyEnabled bool, logger *zap.Logger, metrics *observability.Metrics) *ScopeResolver {
	codes := make(map[string]struct{}, len(globalCodes))
	for _, code := range globalCodes {
		codes[code] = struct{}{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScopeResolver{source: source, globalCodes: codes, legacyEnabled: legacyEnabled, logger: logger, metrics: metrics}
}

// Resolve maps role, department and queue membership onto a scope.
func (r *ScopeResolver) Resolve(ctx context.Context, caller domain.Caller) (VisibilityScope, error) {
	switch caller.Role {
	case domain.StaffRoleAdmin, domain.StaffRoleManager,
		domain.StaffRoleGlobalViewer, domain.StaffRoleGlobalManager, domain.StaffRoleSystem:
		return VisibilityScope{Kind: ScopeUnrestricted}, nil
	case domain.StaffRoleViewer:
		return VisibilityScope{Kind: ScopeNone}, nil
	}

	if global, err := r.legacyGlobal(ctx, caller); err != nil {
		return VisibilityScope{}, err
	} else if global {
		return VisibilityScope{Kind: ScopeUnrestricted}, nil
	}

	if caller.Role == domain.StaffRoleOperator {
		queueIDs, err := r.source.ListStaffQueueIDs(ctx, caller.StaffID)
		if err != nil {
			return VisibilityScope{}, fmt.Errorf("load staff queues: %w", err)
		}
		if len(queueIDs) > 0 {
			return VisibilityScope{Kind: ScopeQueueSet, QueueIDs: queueIDs}, nil
		}
		return VisibilityScope{Kind: ScopeOwnerOnly, StaffID: caller.StaffID}, nil
	}

	if caller.SecretariatID == nil || *caller.SecretariatID == "" {
		return VisibilityScope{Kind: ScopeNone}, nil
	}
	return VisibilityScope{Kind: ScopeDepartmentOnly, SecretariatID: *caller.SecretariatID}, nil
}

func (r *ScopeResolver) legacyGlobal(ctx context.Context, caller domain.Caller) (bool, error) {
	if !r.legacyEnabled || len(r.globalCodes) == 0 || caller.SecretariatID == nil {
		return false, nil
	}
	sec, err := r.source.GetSecretariat(ctx, *caller.SecretariatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load secretariat: %w", err)
	}
	if _, ok := r.globalCodes[sec.Code]; !ok {
		return false, nil
	}
	r.logger.Warn("deprecated global access via secretariat code",
		zap.String("staff_id", caller.StaffID),
		zap.String("secretariat_code", sec.Code))
	r.metrics.Inc(observability.CounterDeprecatedRBACAccess)
	return true, nil
}
