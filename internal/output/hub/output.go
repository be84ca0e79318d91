// Package hub feeds relayed event rows into the in-process subscription hub,
// so subscribers also see events appended by other processes.
package hub

import (
	"context"
	"fmt"

	"dealtrail/internal/domain"
	"dealtrail/internal/eventlog"
	"dealtrail/internal/output"
)

type Output struct {
	hub         *eventlog.Hub
	eventsTable string
}

func NewOutput(hub *eventlog.Hub, eventsTable string) *Output {
	return &Output{
		hub:         hub,
		eventsTable: eventsTable,
	}
}

// PushChange publishes inserted events; task rows and updates are not
// subscription material and are dropped.
func (o *Output) PushChange(_ context.Context, change domain.ChangeRecord, channelName string) error {
	if channelName != o.eventsTable || change.Method != domain.InsertChange {
		return nil
	}
	ev, err := output.DecodeEvent(change)
	if err != nil {
		return fmt.Errorf("output.DecodeEvent: %w", err)
	}
	o.hub.Publish(ev.Aggregate(), []domain.Event{ev})
	return nil
}

func (o *Output) Close() error {
	return nil
}
