package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ombudsman-service/internal/domain"
)

// RuleFile is the on-disk format used by rule authoring tools.
type RuleFile struct {
	Rules []FileRule `yaml:"rules"`
}

// FileRule is one rule in a rule file. Conditions and actions use the same
// shape as the stored JSON.
type FileRule struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Priority    int    `yaml:"priority"`
	Enabled     *bool  `yaml:"enabled"`
	Fallback    bool   `yaml:"fallback"`
	Conditions  any    `yaml:"conditions"`
	Actions     any    `yaml:"actions"`
}

// FileSource serves rules loaded from a YAML file and keeps match counts in memory.
type FileSource struct {
	mu    sync.Mutex
	rules []domain.RoutingRule
}

// LoadRuleFile reads a YAML rule set.
func LoadRuleFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRuleFile(data)
}

// ParseRuleFile builds a source from YAML bytes.
func ParseRuleFile(data []byte) (*FileSource, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}
	src := &FileSource{}
	for i, fr := range file.Rules {
		conditions, err := json.Marshal(fr.Conditions)
		if err != nil {
			return nil, fmt.Errorf("rule %d conditions: %w", i, err)
		}
		actions, err := json.Marshal(fr.Actions)
		if err != nil {
			return nil, fmt.Errorf("rule %d actions: %w", i, err)
		}
		id := fr.ID
		if id == "" {
			id = fmt.Sprintf("rule-%d", i+1)
		}
		enabled := fr.Enabled == nil || *fr.Enabled
		rule := domain.RoutingRule{
			ID:         id,
			Name:       fr.Name,
			Priority:   fr.Priority,
			Enabled:    enabled,
			IsFallback: fr.Fallback,
			Conditions: conditions,
			Actions:    actions,
		}
		if fr.Description != "" {
			desc := fr.Description
			rule.Description = &desc
		}
		src.rules = append(src.rules, rule)
	}
	return src, nil
}

func (s *FileSource) ListEnabled(context.Context) ([]domain.RoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RoutingRule
	for _, rule := range s.rules {
		if rule.Enabled && !rule.IsFallback {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (s *FileSource) GetFallback(context.Context) (*domain.RoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rule := range s.rules {
		if rule.Enabled && rule.IsFallback {
			rule := rule
			return &rule, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *FileSource) IncrementMatchCount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules[i].MatchCount++
		}
	}
	return nil
}

// Rules returns a snapshot including match counts.
func (s *FileSource) Rules() []domain.RoutingRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RoutingRule(nil), s.rules...)
}
