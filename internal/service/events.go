package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/events"
)

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, evt events.Event) {
	if dispatcher == nil {
		return
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	_ = dispatcher.Publish(ctx, evt)
}

func actorOf(caller domain.Caller) events.Actor {
	if caller.IsSystem() {
		return events.Actor{Type: "system"}
	}
	return events.Actor{Type: "user", StaffID: caller.ActorID()}
}
