package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/events"
	"github.com/spec-kit/ombudsman-service/internal/observability"
	"github.com/spec-kit/ombudsman-service/internal/repository"
)

// SLATimer is the delayed-delivery collaborator. Scheduling the same case
// again replaces its pending timer.
type SLATimer interface {
	ScheduleAt(ctx context.Context, due time.Time, caseID string, queueID *string) error
}

// SLAScheduler computes deadlines and handles breach checks.
type SLAScheduler struct {
	cases        repository.CaseRepository
	queues       repository.QueueRepository
	timer        SLATimer
	audit        *AuditRecorder
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger
	defaultHours int
	now          func() time.Time
}

// SLADependencies bundles collaborators for the scheduler.
type SLADependencies struct {
	CaseRepo     repository.CaseRepository
	QueueRepo    repository.QueueRepository
	Timer        SLATimer
	Audit        *AuditRecorder
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	DefaultHours int
	Clock        func() time.Time
}

// NewSLAScheduler constructs the scheduler.
func NewSLAScheduler(deps SLADependencies) *SLAScheduler {
	s := &SLAScheduler{
		cases:        deps.CaseRepo,
		queues:       deps.QueueRepo,
		timer:        deps.Timer,
		audit:        deps.Audit,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		defaultHours: deps.DefaultHours,
		now:          deps.Clock,
	}
	if s.defaultHours <= 0 {
		s.defaultHours = 48
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Arm sets the deadline from the queue's sla_hours and schedules its timer.
func (s *SLAScheduler) Arm(ctx context.Context, caseID, queueID string) (time.Time, error) {
	due, err := s.Deadline(ctx, caseID, queueID, nil)
	if err != nil {
		return time.Time{}, err
	}
	return due, s.Schedule(ctx, due, caseID, &queueID)
}

// ArmHours sets an explicit deadline, overwriting any previous one.
func (s *SLAScheduler) ArmHours(ctx context.Context, caseID string, queueID *string, hours int) (time.Time, error) {
	due, err := s.setDue(ctx, caseID, hours)
	if err != nil {
		return time.Time{}, err
	}
	return due, s.Schedule(ctx, due, caseID, queueID)
}

// Deadline persists sla_due_at without touching the timer. ruleHours wins
// over the queue's sla_hours. Inside a transaction, call Schedule only after
// the commit so a rollback leaves no timer behind.
func (s *SLAScheduler) Deadline(ctx context.Context, caseID, queueID string, ruleHours *int) (time.Time, error) {
	if ruleHours != nil {
		return s.setDue(ctx, caseID, *ruleHours)
	}
	hours := s.defaultHours
	queue, err := s.queues.GetByID(ctx, queueID)
	switch {
	case err == nil:
		hours = queue.SLAHours
	case !errors.Is(err, pgx.ErrNoRows):
		return time.Time{}, err
	}
	return s.setDue(ctx, caseID, hours)
}

// Schedule hands due to the timer collaborator, replacing any pending timer
// for the case.
func (s *SLAScheduler) Schedule(ctx context.Context, due time.Time, caseID string, queueID *string) error {
	if s.timer == nil {
		return nil
	}
	if err := s.timer.ScheduleAt(ctx, due, caseID, queueID); err != nil {
		s.metrics.Inc(observability.CounterSLAScheduleFailures)
		return fmt.Errorf("schedule sla timer: %w", err)
	}
	return nil
}

func (s *SLAScheduler) setDue(ctx context.Context, caseID string, hours int) (time.Time, error) {
	if hours <= 0 {
		hours = s.defaultHours
	}
	// Postgres keeps microseconds; the breach check compares for equality.
	due := s.now().UTC().Add(time.Duration(hours) * time.Hour).Truncate(time.Microsecond)
	if err := s.cases.SetSLADue(ctx, caseID, due); err != nil {
		return time.Time{}, err
	}
	return due, nil
}

// CheckBreach marks the case breached when due has passed and nothing has
// closed or re-armed it. Repeated deliveries are no-ops.
func (s *SLAScheduler) CheckBreach(ctx context.Context, caseID string, due time.Time) (bool, error) {
	if s.now().Before(due) {
		return false, nil
	}
	changed, err := s.cases.MarkSLABreached(ctx, caseID, due)
	if err != nil || !changed {
		return false, err
	}

	s.metrics.Inc(observability.CounterSLABreaches)
	s.logger.Info("sla breached", zap.String("case_id", caseID), zap.Time("due_at", due))
	s.audit.Record(ctx, AuditEntry{
		EntityType: domain.EntityCase,
		EntityID:   caseID,
		Action:     "sla_breached",
		Caller:     domain.SystemCaller(),
		New:        map[string]any{"sla_due_at": due, "sla_breached": true},
	})

	if s.dispatcher != nil {
		var queueID *string
		if c, err := s.cases.GetByID(ctx, caseID); err == nil {
			queueID = c.QueueID
		}
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:    events.EventSLABreached,
			CaseID:  caseID,
			Actor:   events.Actor{Type: "system"},
			Payload: events.SLABreachedPayload{DueAt: due, QueueID: queueID},
		})
	}
	return true, nil
}
