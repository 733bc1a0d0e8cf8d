package firmware

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/tracker-core/internal/infrastructure/mqtt"
)

// ackTimeout bounds the work done for one device acknowledgement.
const ackTimeout = 10 * time.Second

// ackPayload is what a device publishes after installing a firmware.
type ackPayload struct {
	SyncJobID string `json:"sync_job_id"`
}

// AckHandler returns an MQTT handler for <prefix>/devices/+/firmware/ack
// that confirms the device in its sync job.
func (s *Service) AckHandler(topics mqtt.Topics) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		serial, ok := topics.SerialFromAckTopic(topic)
		if !ok {
			return fmt.Errorf("unexpected firmware ack topic %q", topic)
		}

		var ack ackPayload
		if err := json.Unmarshal(payload, &ack); err != nil {
			return fmt.Errorf("decoding firmware ack from %s: %w", serial, err)
		}
		if ack.SyncJobID == "" {
			return fmt.Errorf("firmware ack from %s has no sync_job_id", serial)
		}

		ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
		defer cancel()

		_, err := s.ConfirmSync(ctx, ack.SyncJobID, serial)
		return err
	}
}
