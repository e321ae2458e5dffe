package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammad-safakhou/ragserve/internal/query"
	"github.com/mohammad-safakhou/ragserve/internal/queue/streams"
	"github.com/mohammad-safakhou/ragserve/models"
)

// Completer is the lifecycle entry point the worker drives.
type Completer interface {
	Complete(ctx context.Context, q models.Query) (models.Query, error)
}

// StreamReader is the consuming side of the queue.
type StreamReader interface {
	Read(ctx context.Context, stream string, opts ...streams.ConsumerOption) ([]streams.Message, error)
	Ack(ctx context.Context, stream string, ids ...string) error
}

// Processor consumes query.submitted events and runs the completion flow
// for each. A completion failure is logged and the record stays pending.
type Processor struct {
	Logger    *log.Logger
	Completer Completer
	Consumer  StreamReader
	Stream    string

	Processed prometheus.Counter
	Failed    prometheus.Counter
}

// Start blocks, continuously processing submitted queries until the
// context is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.Logger.Printf("worker processor starting; consuming stream %s", p.Stream)

	for {
		select {
		case <-ctx.Done():
			p.Logger.Printf("worker processor stopping: %v", ctx.Err())
			return nil
		default:
		}

		msgs, err := p.Consumer.Read(ctx, p.Stream, streams.WithBlock(5*time.Second), streams.WithCount(16))
		if err != nil {
			p.Logger.Printf("error reading stream: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			if err := p.handleSubmitted(ctx, msg); err != nil {
				p.Logger.Printf("error handling message %s: %v", msg.ID, err)
				if p.Failed != nil {
					p.Failed.Inc()
				}
			} else if p.Processed != nil {
				p.Processed.Inc()
			}
			// Ack either way: a permanently failing query should not wedge
			// the group, and the record observably stays pending.
			if err := p.Consumer.Ack(ctx, p.Stream, msg.ID); err != nil {
				p.Logger.Printf("warn: failed to ack message %s: %v", msg.ID, err)
			}
		}
	}
}

func (p *Processor) handleSubmitted(ctx context.Context, msg streams.Message) error {
	q, err := decodeSubmitted(msg.Envelope)
	if err != nil {
		return err
	}
	updated, err := p.Completer.Complete(ctx, q)
	if err != nil {
		return fmt.Errorf("complete query %s: %w", q.QueryID, err)
	}
	p.Logger.Printf("query %s completed (%d sources)", updated.QueryID, len(updated.Sources))
	return nil
}

// decodeSubmitted validates the payload before it reaches the pipeline:
// a record without its identifier or its question is rejected outright.
func decodeSubmitted(env streams.Envelope) (models.Query, error) {
	if env.EventType != query.EventQuerySubmitted {
		return models.Query{}, fmt.Errorf("unexpected event type %q", env.EventType)
	}
	var q models.Query
	if err := json.Unmarshal(env.Data, &q); err != nil {
		return models.Query{}, fmt.Errorf("unmarshal query payload: %w", err)
	}
	if q.QueryID == "" {
		return models.Query{}, fmt.Errorf("query payload missing query_id")
	}
	if q.QueryText == "" {
		return models.Query{}, fmt.Errorf("query payload missing query_text")
	}
	return q, nil
}
