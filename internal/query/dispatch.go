package query

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/ragserve/internal/queue/streams"
	"github.com/mohammad-safakhou/ragserve/models"
)

// EventQuerySubmitted is the event type carried by async dispatches.
const EventQuerySubmitted = "query.submitted"

// StreamDispatcher publishes pending records onto a durable Redis stream
// for a worker to complete. The publish is fire-and-forget from the
// submitting caller's point of view, but the message itself is durable
// and replayable.
type StreamDispatcher struct {
	Publisher *streams.Publisher
	Stream    string
}

// Dispatch publishes the full record payload.
func (d *StreamDispatcher) Dispatch(ctx context.Context, q models.Query) error {
	if d.Stream == "" {
		return fmt.Errorf("dispatch stream not configured")
	}
	if _, err := d.Publisher.PublishRaw(ctx, d.Stream, EventQuerySubmitted, q); err != nil {
		return err
	}
	return nil
}

var _ Dispatcher = (*StreamDispatcher)(nil)
