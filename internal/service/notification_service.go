package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/events"
	"github.com/spec-kit/ombudsman-service/internal/observability"
)

// Notifier delivers a domain event to the automation workflow.
type Notifier interface {
	Notify(ctx context.Context, eventType string, payload any) error
}

// NotificationService forwards selected domain events to automation.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   Notifier
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier Notifier, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || n.notifier == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventCaseCreated, n.forward)
	n.dispatcher.Subscribe(events.EventInboundReceived, n.forward)
	n.dispatcher.Subscribe(events.EventAgentRunRequested, n.forward)
	n.dispatcher.Subscribe(events.EventSLABreached, n.forward)
	n.dispatcher.Subscribe(events.EventOutboundFailed, n.forward)
}

// forward never fails the publisher; automation outages are counted and logged.
func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	if err := n.notifier.Notify(ctx, string(event.Type), event.Payload); err != nil {
		n.metrics.Inc(observability.CounterAutomationFailures)
		n.logger.Warn("automation notify failed",
			zap.String("event_type", string(event.Type)),
			zap.String("case_id", event.CaseID),
			zap.Error(err))
		return nil
	}
	n.logger.Debug("automation notified",
		zap.String("event_type", string(event.Type)),
		zap.String("case_id", event.CaseID))
	return nil
}
