package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/tracker-core/internal/infrastructure/mqtt"
)

// MQTTPublisher is the part of *mqtt.Client the sink needs.
type MQTTPublisher interface {
	PublishJSON(topic string, v any) error
	Topics() mqtt.Topics
}

// envelope is the JSON body published for every notification.
type envelope struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
	Data Message   `json:"data"`
}

// firmwareInstruction is what an individual device receives for a sync.
type firmwareInstruction struct {
	SyncJobID string `json:"sync_job_id"`
	Version   string `json:"version"`
	FileURL   string `json:"file_url"`
	ETag      string `json:"etag,omitempty"`
}

// MQTTSink publishes notifications to <prefix>/notifications/<kind>.
// Firmware syncs are additionally fanned out to each target device.
type MQTTSink struct {
	client MQTTPublisher
}

// NewMQTTSink creates a sink publishing through client.
func NewMQTTSink(client MQTTPublisher) *MQTTSink {
	return &MQTTSink{client: client}
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Deliver publishes msg. For a firmware sync every device publish is
// attempted and the failures are joined.
func (s *MQTTSink) Deliver(ctx context.Context, msg Message) error {
	topics := s.client.Topics()
	err := s.client.PublishJSON(topics.Notification(string(msg.Kind())), envelope{
		Kind: msg.Kind(),
		At:   msg.OccurredAt(),
		Data: msg,
	})
	if err != nil {
		return fmt.Errorf("publishing %s: %w", msg.Kind(), err)
	}

	sync, ok := msg.(FirmwareSyncRequested)
	if !ok {
		return nil
	}

	instruction := firmwareInstruction{
		SyncJobID: sync.SyncJobID,
		Version:   sync.Version,
		FileURL:   sync.FileURL,
		ETag:      sync.ETag,
	}
	var errs []error
	for _, serial := range sync.Serials {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := s.client.PublishJSON(topics.DeviceFirmware(serial), instruction); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", serial, err))
		}
	}
	return errors.Join(errs...)
}
