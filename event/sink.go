package event

import "sync/atomic"

// Sink consumes lifecycle events. Implementations must not block; the
// engine emits and moves on.
type Sink interface {
	Emit(Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// ChannelSink buffers events on a bounded channel for an external
// consumer. When the buffer is full the event is dropped and counted,
// never queued synchronously.
type ChannelSink struct {
	ch      chan Event
	dropped atomic.Uint64
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Events returns the consumer side of the sink.
func (s *ChannelSink) Events() <-chan Event { return s.ch }

// Dropped returns how many events were discarded because the consumer
// fell behind.
func (s *ChannelSink) Dropped() uint64 { return s.dropped.Load() }
