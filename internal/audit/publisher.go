// Package audit emits structured records of issuance decisions. Events flow
// to a pluggable sink; production wires the kafka sink, tests use the memory
// sink, and a nil publisher drops everything.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink receives audit events. Append must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher stamps and forwards audit events. With an async buffer, events
// are queued and forwarded by a background goroutine so issuance latency
// never waits on the sink.
type Publisher struct {
	sink   Sink
	events chan Event
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool
	now    func() time.Time
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables background forwarding with the given queue size.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.forward()
	}
	return p
}

func (p *Publisher) forward() {
	defer p.wg.Done()
	for event := range p.events {
		if err := p.sink.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("failed to forward audit event",
				"error", err,
				"action", event.Action,
				"address", event.Address,
			)
		}
	}
}

// Close drains the async queue. Safe to call on a nil publisher.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

// Emit records one event, filling in ID and timestamp when absent. A nil
// publisher is a no-op so callers never need to branch on configuration.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}

	if p.async {
		select {
		case p.events <- event:
		default:
			if p.logger != nil {
				p.logger.Warn("audit queue full, dropping event", "action", event.Action)
			}
		}
		return nil
	}
	return p.sink.Append(ctx, event)
}

// MemorySink collects events in memory for tests and local runs.
type MemorySink struct {
	mu     sync.Mutex
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

// Events returns a copy of everything appended so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
