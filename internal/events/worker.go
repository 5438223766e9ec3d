package events

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"baseproof/pkg/requestcontext"
)

// ChannelPublisher decouples the mutation path from sink latency: Emit
// enqueues and returns, a Worker drains into the real sink. The buffer is
// sized so a slow sink backpressures instead of dropping audit records.
type ChannelPublisher struct {
	inbox chan Event
}

func NewChannelPublisher(buffer int) *ChannelPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelPublisher{inbox: make(chan Event, buffer)}
}

func (p *ChannelPublisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == 0 {
		event.Timestamp = requestcontext.Now(ctx).Unix()
	}
	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inbox exposes the receive side for the worker.
func (p *ChannelPublisher) Inbox() <-chan Event {
	return p.inbox
}

// Worker consumes events from a channel and persists them to a sink.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run drains the inbox until ctx is cancelled, then flushes what is left.
// Sink failures are logged and retried once; the audit trail tolerates a
// lost event less well than a duplicate one.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return ctx.Err()
		case event := <-w.inbox:
			w.append(ctx, event)
		}
	}
}

func (w *Worker) flush() {
	for {
		select {
		case event := <-w.inbox:
			w.append(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) append(ctx context.Context, event Event) {
	if err := w.sink.Append(ctx, event); err != nil {
		w.logger.Error("event sink append failed, retrying",
			"action", string(event.Action),
			"event_id", event.ID,
			"error", err,
		)
		if err := w.sink.Append(ctx, event); err != nil {
			w.logger.Error("event dropped after retry",
				"action", string(event.Action),
				"event_id", event.ID,
				"error", err,
			)
		}
	}
}
