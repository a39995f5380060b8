package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository"
)

// DefaultSLAHours applies when neither the named nor the default SLA rule exists.
const DefaultSLAHours = 48

// Result describes what routing decided for a case.
type Result struct {
	// Matched is true when a rule (possibly the fallback) applied.
	Matched       bool
	RuleID        *string
	QueueID       *string
	SecretariatID *string
	Priority      *domain.CasePriority
	Tags          []string
	// SLAHours is set only when a set_sla_rule action ran.
	SLAHours      *int
	MissingFields []string
}

// Routed reports whether the case ended up in a queue. A matched rule that
// yields no queue is not routed: the case stays in triage and automation is
// told about it, since secretariat and SLA both hang off the queue.
func (r *Result) Routed() bool {
	return r != nil && r.Matched && r.QueueID != nil
}

// Options tune engine defaults.
type Options struct {
	TriageQueueSlug string
	DefaultSLAHours int
}

// Engine evaluates rules in priority order, first match wins.
type Engine struct {
	rules    repository.RoutingRuleRepository
	queues   repository.QueueRepository
	slaRules repository.SLARuleRepository
	tags     repository.TagRepository
	missing  repository.MissingFieldRepository
	cases    repository.CaseRepository
	opts     Options
	logger   *zap.Logger
}

// NewEngine wires the engine. Rules are re-read on every evaluation.
func NewEngine(
	rules repository.RoutingRuleRepository,
	queues repository.QueueRepository,
	slaRules repository.SLARuleRepository,
	tags repository.TagRepository,
	missing repository.MissingFieldRepository,
	cases repository.CaseRepository,
	opts Options,
	logger *zap.Logger,
) *Engine {
	if opts.DefaultSLAHours <= 0 {
		opts.DefaultSLAHours = DefaultSLAHours
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		rules:    rules,
		queues:   queues,
		slaRules: slaRules,
		tags:     tags,
		missing:  missing,
		cases:    cases,
		opts:     opts,
		logger:   logger,
	}
}

type compiledRule struct {
	rule       domain.RoutingRule
	conditions Condition
	actions    []Action
}

// Route finds the first matching rule, bumps its match counter and applies
// its actions to the case.
func (e *Engine) Route(ctx context.Context, caseID string, in Input) (*Result, error) {
	matched, err := e.match(ctx, in)
	if err != nil {
		return nil, err
	}
	if matched == nil {
		return &Result{}, nil
	}
	if err := e.rules.IncrementMatchCount(ctx, matched.rule.ID); err != nil {
		return nil, fmt.Errorf("increment match count: %w", err)
	}
	res, err := e.apply(ctx, caseID, matched.actions)
	if err != nil {
		return nil, err
	}
	ruleID := matched.rule.ID
	res.RuleID = &ruleID
	return res, nil
}

// Simulate reports which rule would apply without touching any state.
func (e *Engine) Simulate(ctx context.Context, in Input) (*Result, error) {
	matched, err := e.match(ctx, in)
	if err != nil {
		return nil, err
	}
	if matched == nil {
		return &Result{}, nil
	}
	ruleID := matched.rule.ID
	return &Result{Matched: true, RuleID: &ruleID}, nil
}

func (e *Engine) match(ctx context.Context, in Input) (*compiledRule, error) {
	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list routing rules: %w", err)
	}
	for _, rule := range rules {
		compiled, ok := e.compile(rule)
		if !ok {
			continue
		}
		if compiled.conditions.Eval(in) {
			return compiled, nil
		}
	}

	fallback, err := e.rules.GetFallback(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load fallback rule: %w", err)
	}
	compiled, ok := e.compile(*fallback)
	if !ok {
		return nil, nil
	}
	return compiled, nil
}

// compile decodes a rule once; a rule that does not decode is skipped.
func (e *Engine) compile(rule domain.RoutingRule) (*compiledRule, bool) {
	conditions, err := ParseConditions(rule.Conditions)
	if err != nil {
		e.logger.Warn("skipping routing rule with invalid conditions", zap.String("rule_id", rule.ID), zap.Error(err))
		return nil, false
	}
	actions, err := ParseActions(rule.Actions)
	if err != nil {
		e.logger.Warn("skipping routing rule with invalid actions", zap.String("rule_id", rule.ID), zap.Error(err))
		return nil, false
	}
	return &compiledRule{rule: rule, conditions: conditions, actions: actions}, true
}

func (e *Engine) apply(ctx context.Context, caseID string, actions []Action) (*Result, error) {
	res := &Result{Matched: true}
	for _, action := range actions {
		if err := e.applyOne(ctx, caseID, action, res); err != nil {
			return nil, fmt.Errorf("apply %s: %w", action.Kind(), err)
		}
	}

	if res.QueueID != nil {
		queue, err := e.queues.GetByID(ctx, *res.QueueID)
		switch {
		case err == nil:
			secretariatID := queue.SecretariatID
			res.SecretariatID = &secretariatID
		case errors.Is(err, pgx.ErrNoRows):
			res.QueueID = nil
		default:
			return nil, err
		}
	}
	return res, nil
}

func (e *Engine) applyOne(ctx context.Context, caseID string, action Action, res *Result) error {
	switch a := action.(type) {
	case AddTag:
		tag, err := e.tags.FindByName(ctx, a.Tag)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := e.tags.Attach(ctx, caseID, tag.ID); err != nil {
			return err
		}
		res.Tags = append(res.Tags, a.Tag)

	case SetPriority:
		priority, ok := domain.ParsePriority(a.Priority)
		if !ok {
			return nil
		}
		if err := e.cases.UpdatePriority(ctx, caseID, priority); err != nil {
			return err
		}
		res.Priority = &priority

	case SetSecretariat:
		// The secretariat is reached through its best active queue so that
		// secretariat_id is always the queue's.
		queue, err := e.queues.FirstBySecretariat(ctx, a.Secretariat)
		if errors.Is(err, pgx.ErrNoRows) {
			e.logger.Warn("secretariat has no active queue", zap.String("secretariat", a.Secretariat))
			return nil
		}
		if err != nil {
			return err
		}
		res.QueueID = &queue.ID

	case SetQueue:
		queueID := a.QueueID
		res.QueueID = &queueID

	case SetQueueByMeta:
		queueID, err := e.resolveQueueByMeta(ctx, a)
		if err != nil {
			return err
		}
		res.QueueID = queueID

	case SetSLARule:
		hours, err := e.slaHours(ctx, a.Rule)
		if err != nil {
			return err
		}
		res.SLAHours = &hours

	case RequireFields:
		for _, field := range a.Fields {
			if err := e.missing.Insert(ctx, caseID, field); err != nil {
				return err
			}
		}
		res.MissingFields = append(res.MissingFields, a.Fields...)
	}
	return nil
}

func (e *Engine) resolveQueueByMeta(ctx context.Context, a SetQueueByMeta) (*string, error) {
	queue, err := e.queues.FindActiveBySlug(ctx, a.TargetQueueSlug)
	if err == nil {
		return &queue.ID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if a.FallbackQueueID != "" {
		fallback := a.FallbackQueueID
		return &fallback, nil
	}
	triage, err := e.queues.FindActiveBySlug(ctx, e.opts.TriageQueueSlug)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &triage.ID, nil
}

func (e *Engine) slaHours(ctx context.Context, ref string) (int, error) {
	rule, err := e.slaRules.GetActive(ctx, ref)
	if err == nil {
		return rule.Hours, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	rule, err = e.slaRules.GetDefault(ctx)
	if err == nil {
		return rule.Hours, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	return e.opts.DefaultSLAHours, nil
}
