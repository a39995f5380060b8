package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const pollBatch = 100

// BreachChecker is satisfied by service.SLAScheduler.
type BreachChecker interface {
	CheckBreach(ctx context.Context, caseID string, due time.Time) (bool, error)
}

// SLAPoller delivers expired deadlines to the breach checker.
type SLAPoller struct {
	queue    TimerQueue
	checker  BreachChecker
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSLAPoller builds a poller that ticks every interval.
func NewSLAPoller(queue TimerQueue, checker BreachChecker, interval time.Duration, logger *zap.Logger) *SLAPoller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAPoller{queue: queue, checker: checker, interval: interval, logger: logger, now: time.Now}
}

// Run polls until ctx is cancelled.
func (p *SLAPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Info("sla poller started", zap.Duration("interval", p.interval))

	for {
		select {
		case <-ticker.C:
			if _, err := p.Tick(ctx); err != nil {
				p.logger.Warn("sla poll failed", zap.Error(err))
			}
		case <-ctx.Done():
			p.logger.Info("sla poller stopped")
			return
		}
	}
}

// Tick drains every deadline that has expired and returns how many cases
// were marked breached. A failed check is put back for the next tick.
func (p *SLAPoller) Tick(ctx context.Context) (int, error) {
	breached := 0
	for {
		failed := false
		due, err := p.queue.PopDue(ctx, p.now(), pollBatch)
		if err != nil {
			return breached, err
		}
		for _, t := range due {
			ok, err := p.checker.CheckBreach(ctx, t.CaseID, t.Due)
			if err != nil {
				p.logger.Warn("sla breach check failed", zap.String("case_id", t.CaseID), zap.Error(err))
				if rerr := p.queue.Restore(ctx, t); rerr != nil {
					p.logger.Error("sla timer restore failed", zap.String("case_id", t.CaseID), zap.Error(rerr))
				}
				failed = true
				continue
			}
			if ok {
				breached++
			}
		}
		if failed || len(due) < pollBatch {
			return breached, nil
		}
	}
}
