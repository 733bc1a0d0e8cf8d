package notify

import (
	"context"
	"strings"

	"github.com/nerrad567/tracker-core/internal/infrastructure/influxdb"
)

// EventWriter is the part of *influxdb.Client the sink needs.
type EventWriter interface {
	WriteFleetEvent(e influxdb.FleetEvent)
}

// InfluxSink records every notification as a fleet_event point.
type InfluxSink struct {
	writer EventWriter
}

// NewInfluxSink creates a sink writing through writer.
func NewInfluxSink(writer EventWriter) *InfluxSink {
	return &InfluxSink{writer: writer}
}

func (s *InfluxSink) Name() string { return "influxdb" }

// Deliver never fails synchronously; write errors surface through the
// client's error callback.
func (s *InfluxSink) Deliver(_ context.Context, msg Message) error {
	s.writer.WriteFleetEvent(FleetEvent(msg))
	return nil
}

// FleetEvent maps a message onto its history point.
func FleetEvent(msg Message) influxdb.FleetEvent {
	e := influxdb.FleetEvent{
		Kind:   string(msg.Kind()),
		Serial: msg.DeviceSerial(),
		UserID: msg.Recipient(),
		At:     msg.OccurredAt(),
		Fields: map[string]any{},
	}

	switch m := msg.(type) {
	case ApprovalRequested:
		e.UserID = m.UserID
		e.Fields["admin_count"] = len(m.AdminEmails)
	case ApprovalAccepted:
		e.Fields["actor_id"] = m.ApprovedBy
	case ApprovalRejected:
		e.Fields["actor_id"] = m.RejectedBy
	case DeviceAddedToAccount:
		e.Fields["actor_id"] = m.AssignedBy
	case FirmwareSyncRequested:
		e.Fields["actor_id"] = m.RequestedBy
		e.Fields["firmware_version"] = m.Version
		e.Fields["sync_job_id"] = m.SyncJobID
		e.Fields["device_count"] = len(m.Serials)
		e.Fields["all_devices"] = m.AllDevices
	}
	return e
}

// LogSink writes each notification to the service log. It is used when no
// external transport is configured.
type LogSink struct {
	logger Logger
}

// NewLogSink creates a sink writing to logger.
func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, msg Message) error {
	args := []any{"kind", msg.Kind(), "at", msg.OccurredAt()}
	if serial := msg.DeviceSerial(); serial != "" {
		args = append(args, "serial", serial)
	}
	if recipient := msg.Recipient(); recipient != "" {
		args = append(args, "recipient", recipient)
	}
	if m, ok := msg.(ApprovalRequested); ok {
		args = append(args, "admins", strings.Join(m.AdminEmails, ","))
	}
	s.logger.Info("notification", args...)
	return nil
}
