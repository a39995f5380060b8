package routing

import (
	"encoding/json"
	"fmt"
)

// Action is one step of a rule's action list. The set of kinds is closed.
type Action interface {
	Kind() string
}

type (
	// AddTag attaches an existing tag by name.
	AddTag struct{ Tag string }
	// SetPriority sets the case priority; invalid values are ignored on apply.
	SetPriority struct{ Priority string }
	// SetSecretariat routes to the best queue of a secretariat (code or id).
	SetSecretariat struct{ Secretariat string }
	// SetQueue routes to a queue by id.
	SetQueue struct{ QueueID string }
	// SetQueueByMeta resolves a queue by slug with fallbacks.
	SetQueueByMeta struct {
		TargetQueueSlug string
		FallbackQueueID string
	}
	// SetSLARule overrides the deadline with a named SLA rule.
	SetSLARule struct{ Rule string }
	// RequireFields records citizen data still needed.
	RequireFields struct{ Fields []string }
)

func (AddTag) Kind() string         { return "add_tag" }
func (SetPriority) Kind() string    { return "set_priority" }
func (SetSecretariat) Kind() string { return "set_secretariat" }
func (SetQueue) Kind() string       { return "set_queue" }
func (SetQueueByMeta) Kind() string { return "set_queue_by_meta" }
func (SetSLARule) Kind() string     { return "set_sla_rule" }
func (RequireFields) Kind() string  { return "require_fields" }

type actionPayload struct {
	Type            string   `json:"type"`
	Value           string   `json:"value"`
	TargetQueueSlug string   `json:"target_queue_slug"`
	FallbackQueueID string   `json:"fallback_queue_id"`
	Fields          []string `json:"fields"`
}

// ParseActions decodes a stored action list. Unknown kinds and actions
// missing their required field are rejected.
func ParseActions(raw []byte) ([]Action, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var payloads []actionPayload
	if err := json.Unmarshal(raw, &payloads); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	actions := make([]Action, 0, len(payloads))
	for i, p := range payloads {
		a, err := p.decode()
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func (p actionPayload) decode() (Action, error) {
	requireValue := func() error {
		if p.Value == "" {
			return fmt.Errorf("%s requires value", p.Type)
		}
		return nil
	}
	switch p.Type {
	case "add_tag":
		return AddTag{Tag: p.Value}, requireValue()
	case "set_priority":
		return SetPriority{Priority: p.Value}, requireValue()
	case "set_secretariat":
		return SetSecretariat{Secretariat: p.Value}, requireValue()
	case "set_queue":
		return SetQueue{QueueID: p.Value}, requireValue()
	case "set_queue_by_meta":
		if p.TargetQueueSlug == "" {
			return nil, fmt.Errorf("set_queue_by_meta requires target_queue_slug")
		}
		return SetQueueByMeta{TargetQueueSlug: p.TargetQueueSlug, FallbackQueueID: p.FallbackQueueID}, nil
	case "set_sla_rule":
		return SetSLARule{Rule: p.Value}, requireValue()
	case "require_fields":
		if len(p.Fields) == 0 {
			return nil, fmt.Errorf("require_fields requires fields")
		}
		return RequireFields{Fields: p.Fields}, nil
	}
	return nil, fmt.Errorf("unknown action type %q", p.Type)
}
