package events

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"baseproof/pkg/requestcontext"
)

//go:generate mockgen -source=publisher.go -destination=mocks/publisher.go -package=mocks

// Publisher is the port the registry core emits events through.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Sink receives finalized events. Implementations: MemorySink for tests and
// single-node runs, KafkaSink for production fan-out.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// SinkPublisher finalizes events (id, timestamp fallback) and hands them to
// a sink.
type SinkPublisher struct {
	sink Sink
}

func NewPublisher(sink Sink) *SinkPublisher {
	return &SinkPublisher{sink: sink}
}

func (p *SinkPublisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == 0 {
		event.Timestamp = requestcontext.Now(ctx).Unix()
	}
	return p.sink.Append(ctx, event)
}

// MemorySink is an append-only in-memory event log.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns a copy of all events in emission order.
func (s *MemorySink) List() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events...)
}
