package domain

import (
	"encoding/json"
	"time"
)

// RoutingRule is a stored condition/action mapping. Conditions and Actions
// stay raw here; the routing package decodes them into typed values.
type RoutingRule struct {
	ID          string
	Name        string
	Description *string
	Priority    int
	Enabled     bool
	IsFallback  bool
	Conditions  json.RawMessage
	Actions     json.RawMessage
	MatchCount  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
