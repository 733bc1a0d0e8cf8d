package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// FleetEventMeasurement is the measurement every fleet event is stored under.
const FleetEventMeasurement = "fleet_event"

// FleetEvent is one notification-worthy change in the fleet. Kind and Serial
// are tags; the remaining attributes are fields.
type FleetEvent struct {
	Kind   string
	Serial string
	UserID string
	Fields map[string]any
	At     time.Time
}

// NewFleetEventPoint builds the line-protocol point for an event.
func NewFleetEventPoint(e FleetEvent) *write.Point {
	tags := map[string]string{"kind": e.Kind}
	if e.Serial != "" {
		tags["serial"] = e.Serial
	}

	fields := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	if e.UserID != "" {
		fields["user_id"] = e.UserID
	}
	// A point needs at least one field.
	fields["count"] = 1

	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(FleetEventMeasurement, tags, fields, at)
}

// WriteFleetEvent queues an event point. Dropped silently when disconnected.
func (c *Client) WriteFleetEvent(e FleetEvent) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewFleetEventPoint(e))
}

// WritePoint queues an arbitrary point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
