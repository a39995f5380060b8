package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var calls []string
	d.Subscribe(EventCaseCreated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventCaseCreated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventSLABreached, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventCaseCreated, CaseID: "c1"}))
	assert.Equal(t, []string{"first", "second"}, calls)
}
