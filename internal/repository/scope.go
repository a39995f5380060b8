package repository

import "github.com/spec-kit/ombudsman-service/internal/domain"

// ScopeKind selects how a ScopeClause narrows a case listing.
type ScopeKind int

const (
	// ScopeAll applies no restriction.
	ScopeAll ScopeKind = iota
	// ScopeNone matches nothing.
	ScopeNone
	// ScopeIn keeps rows whose Column value is one of Values.
	ScopeIn
)

// CaseColumn names a case attribute a visibility clause can filter on.
type CaseColumn string

const (
	ColumnQueueID       CaseColumn = "queue_id"
	ColumnAssignedTo    CaseColumn = "assigned_to"
	ColumnSecretariatID CaseColumn = "secretariat_id"
)

// ScopeClause is the storage-level rendering of a visibility decision.
type ScopeClause struct {
	Kind   ScopeKind
	Column CaseColumn
	Values []string
}

// Value returns the case's value for a scope column.
func (c CaseColumn) Value(o domain.CaseOwnership) *string {
	switch c {
	case ColumnQueueID:
		return o.QueueID
	case ColumnAssignedTo:
		return o.AssignedTo
	case ColumnSecretariatID:
		return o.SecretariatID
	}
	return nil
}

func (c CaseColumn) sql() string {
	switch c {
	case ColumnSecretariatID:
		return "q.secretariat_id"
	case ColumnAssignedTo:
		return "c.assigned_to"
	default:
		return "c.queue_id"
	}
}
