// Package routing evaluates routing rules against inbound cases.
package routing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/spec-kit/ombudsman-service/internal/domain"
)

// Input is what conditions can look at.
type Input struct {
	Channel domain.Channel
	Text    string
}

// Field resolves a condition field. Only channel and message.text are known;
// anything else is absent.
func (in Input) Field(name string) (string, bool) {
	switch name {
	case "channel":
		return string(in.Channel), true
	case "message.text":
		return in.Text, true
	}
	return "", false
}

// Condition is a node of the boolean expression tree.
type Condition interface {
	Eval(in Input) bool
}

type allOf []Condition

func (c allOf) Eval(in Input) bool {
	for _, child := range c {
		if !child.Eval(in) {
			return false
		}
	}
	return true
}

type anyOf []Condition

func (c anyOf) Eval(in Input) bool {
	for _, child := range c {
		if child.Eval(in) {
			return true
		}
	}
	return false
}

type not struct{ inner Condition }

func (c not) Eval(in Input) bool { return !c.inner.Eval(in) }

type never struct{}

func (never) Eval(Input) bool { return false }

// Leaf compares one field against a value.
type Leaf struct {
	Field string
	Op    string
	Value string
}

// Eval applies the operator. Unknown operators never match.
func (l Leaf) Eval(in Input) bool {
	field, present := in.Field(l.Field)
	switch l.Op {
	case "eq":
		return present && field == l.Value
	case "ne":
		return !present || field != l.Value
	case "contains":
		return present && strings.Contains(strings.ToLower(field), strings.ToLower(l.Value))
	case "regex":
		if !present {
			return false
		}
		re, err := regexp.Compile("(?i)" + l.Value)
		if err != nil {
			return false
		}
		return re.MatchString(field)
	case "in":
		return present && inList(l.Value, field)
	case "not_in":
		return !present || !inList(l.Value, field)
	case "exists":
		return present
	case "gt", "gte", "lt", "lte":
		left := toNumber(field, present)
		right := toNumber(l.Value, true)
		if math.IsNaN(left) || math.IsNaN(right) {
			return false
		}
		switch l.Op {
		case "gt":
			return left > right
		case "gte":
			return left >= right
		case "lt":
			return left < right
		default:
			return left <= right
		}
	}
	return false
}

func inList(list, v string) bool {
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == v {
			return true
		}
	}
	return false
}

func toNumber(s string, present bool) float64 {
	if !present {
		return math.NaN()
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

type conditionNode struct {
	All   []json.RawMessage `json:"all"`
	Any   []json.RawMessage `json:"any"`
	Not   json.RawMessage   `json:"not"`
	Field string            `json:"field"`
	Op    string            `json:"op"`
	Value json.RawMessage   `json:"value"`
}

// ParseConditions decodes a stored expression tree. Groups may nest. An empty
// or unrecognised node becomes a condition that never matches.
func ParseConditions(raw []byte) (Condition, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return never{}, nil
	}
	var node conditionNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("decode condition: %w", err)
	}
	switch {
	case node.All != nil:
		children, err := parseList(node.All)
		return allOf(children), err
	case node.Any != nil:
		children, err := parseList(node.Any)
		return anyOf(children), err
	case len(node.Not) > 0:
		inner, err := ParseConditions(node.Not)
		if err != nil {
			return nil, err
		}
		return not{inner: inner}, nil
	case node.Field != "":
		value, err := stringifyValue(node.Value)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", node.Field, err)
		}
		return Leaf{Field: node.Field, Op: node.Op, Value: value}, nil
	}
	return never{}, nil
}

func parseList(raws []json.RawMessage) ([]Condition, error) {
	out := make([]Condition, 0, len(raws))
	for _, raw := range raws {
		c, err := ParseConditions(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// stringifyValue renders scalars the way they are compared: strings verbatim,
// numbers in shortest form, booleans as true/false.
func stringifyValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "null", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String(), nil
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("value must be a scalar")
}
