package notify

import "github.com/nerrad567/tracker-core/internal/infrastructure/metrics"

// Logger is the logging surface used by the outbox and dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher is what domain services hold to emit notifications.
// Enqueue must never block.
type Publisher interface {
	Enqueue(msg Message) bool
}

// DefaultBufferSize is the outbox capacity when none is configured.
const DefaultBufferSize = 256

// Outbox is a bounded in-memory queue between the services that produce
// notifications and the Dispatcher that delivers them. A full outbox drops
// the message instead of stalling the caller.
type Outbox struct {
	ch     chan Message
	logger Logger
}

// NewOutbox creates an outbox holding up to size pending messages.
func NewOutbox(size int) *Outbox {
	if size < 1 {
		size = DefaultBufferSize
	}
	return &Outbox{ch: make(chan Message, size), logger: noopLogger{}}
}

// SetLogger sets the logger used for dropped messages.
func (o *Outbox) SetLogger(logger Logger) {
	o.logger = logger
}

// Enqueue queues msg and reports whether it was accepted.
func (o *Outbox) Enqueue(msg Message) bool {
	if msg == nil {
		return false
	}
	select {
	case o.ch <- msg:
		return true
	default:
		o.logger.Warn("notification outbox full, dropping message",
			"kind", msg.Kind(),
			"serial", msg.DeviceSerial(),
		)
		metrics.IncNotification(string(msg.Kind()), metrics.ResultDropped)
		return false
	}
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	return len(o.ch)
}

// Cap returns the outbox capacity.
func (o *Outbox) Cap() int {
	return cap(o.ch)
}

// messages is drained by the Dispatcher and by tests.
func (o *Outbox) messages() <-chan Message {
	return o.ch
}

// Drain removes and returns every queued message without blocking.
func (o *Outbox) Drain() []Message {
	var out []Message
	for {
		select {
		case msg := <-o.ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// Discard is a Publisher that accepts and forgets every message.
type Discard struct{}

func (Discard) Enqueue(Message) bool { return true }
