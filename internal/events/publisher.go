package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Publisher delivers lifecycle events to the host application.
//
// Publish never blocks the caller: processors invoke it while holding their
// lifecycle lock, so a slow consumer must shed events rather than stall the
// state machine.
type Publisher interface {
	Publish(event *Event)
	Close() error
}

// NoopPublisher discards all events. Useful when the host application only
// registers a handler for a subset of notifications.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that discards everything.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

func (p *NoopPublisher) Publish(*Event) {}

func (p *NoopPublisher) Close() error { return nil }

// LoggingPublisher logs every event at debug level.
type LoggingPublisher struct {
	logger *slog.Logger
}

// NewLoggingPublisher creates a publisher that logs events.
func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(event *Event) {
	p.logger.Debug("[Events] Published",
		"subject", event.Subject(),
		"type", string(event.Type),
		"call_guid", event.CallGUID)
}

func (p *LoggingPublisher) Close() error { return nil }

// ChannelPublisher buffers events on a channel for single-goroutine
// consumption. Events are dropped (and counted) when the buffer is full.
type ChannelPublisher struct {
	ch      chan *Event
	dropped atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewChannelPublisher creates a buffered channel publisher.
func NewChannelPublisher(bufferSize int) *ChannelPublisher {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &ChannelPublisher{ch: make(chan *Event, bufferSize)}
}

func (p *ChannelPublisher) Publish(event *Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- event:
	default:
		p.dropped.Add(1)
		slog.Warn("[Events] Buffer full, dropping event",
			"type", string(event.Type), "call_guid", event.CallGUID)
	}
}

// Events returns the consumption channel. Closed when the publisher closes.
func (p *ChannelPublisher) Events() <-chan *Event {
	return p.ch
}

// DroppedCount returns the number of events shed due to a full buffer.
func (p *ChannelPublisher) DroppedCount() int64 {
	return p.dropped.Load()
}

func (p *ChannelPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	return nil
}

// MultiPublisher fans out each event to several publishers.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher creates a fan-out publisher.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

func (p *MultiPublisher) Publish(event *Event) {
	for _, pub := range p.publishers {
		pub.Publish(event)
	}
}

func (p *MultiPublisher) Close() error {
	var firstErr error
	for _, pub := range p.publishers {
		if err := pub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
