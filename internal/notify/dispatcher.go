package notify

import (
	"context"
	"time"

	"github.com/nerrad567/tracker-core/internal/infrastructure/metrics"
)

// drainTimeout bounds delivery of messages still queued at shutdown.
const drainTimeout = 5 * time.Second

// Sink delivers a message to one external channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// Dispatcher moves messages from an Outbox to every Sink. Delivery errors
// are logged and counted; they never propagate back to the producer.
type Dispatcher struct {
	outbox *Outbox
	sinks  []Sink
	logger Logger
}

// NewDispatcher creates a dispatcher for outbox delivering to sinks in order.
func NewDispatcher(outbox *Outbox, sinks ...Sink) *Dispatcher {
	return &Dispatcher{outbox: outbox, sinks: sinks, logger: noopLogger{}}
}

// SetLogger sets the logger for delivery failures.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Run delivers messages until ctx is cancelled, then flushes whatever is
// still queued with a short deadline.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("notification dispatcher started", "sinks", len(d.sinks))
	for {
		select {
		case <-ctx.Done():
			d.flush()
			d.logger.Info("notification dispatcher stopped")
			return
		case msg := <-d.outbox.messages():
			d.Deliver(ctx, msg)
		}
	}
}

func (d *Dispatcher) flush() {
	pending := d.outbox.Drain()
	if len(pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for _, msg := range pending {
		d.Deliver(ctx, msg)
	}
}

// Deliver hands msg to every sink.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) {
	kind := string(msg.Kind())
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, msg); err != nil {
			d.logger.Warn("notification delivery failed",
				"sink", sink.Name(),
				"kind", kind,
				"serial", msg.DeviceSerial(),
				"error", err,
			)
			metrics.IncNotification(kind, metrics.ResultFailed)
			continue
		}
		metrics.IncNotification(kind, metrics.ResultSent)
	}
}
