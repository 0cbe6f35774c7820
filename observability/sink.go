// Package observability defines the event-emission boundary used by every
// core component. Each component is constructed with a Sink; components
// never know or care what the sink does with an event (log it, export a
// metric, push it to a UI over a websocket). This mirrors the "shared
// event-emitter inheritance" pattern the source used, re-modeled here as an
// interface passed in at construction rather than inherited.
package observability

import (
	"go.uber.org/zap"
)

// Sink receives named, structured events. Fields are plain values only — no
// references into live component state — so a sink can retain or ship them
// without synchronizing with the emitter.
//
// Recognized event names (spec.md §6): participant_subscribed,
// participant_unsubscribed, message_enqueued, message_delivered,
// message_delivery_failed, message_dead_lettered, control_message, plus the
// router/queue/cache analogues documented alongside each component.
type Sink interface {
	Emit(event string, fields map[string]any)
}

// NopSink discards every event. It is the zero value default wherever a
// caller does not supply a Sink.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(string, map[string]any) {}

// MultiSink fans a single event out to every member sink. A nil member is
// skipped, so a MultiSink can be built incrementally.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(event string, fields map[string]any) {
	for _, s := range m {
		if s != nil {
			s.Emit(event, fields)
		}
	}
}

// LogSink emits every event as a structured zap debug log line. Callers pass
// it in explicitly; components constructed without a sink use NopSink.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink. A nil logger is replaced with zap.NewNop().
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.With(zap.String("component", "observability"))}
}

// Emit implements Sink.
func (s *LogSink) Emit(event string, fields map[string]any) {
	zf := make([]zap.Field, 0, len(fields)+1)
	zf = append(zf, zap.String("event", event))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	s.logger.Debug("event", zf...)
}
