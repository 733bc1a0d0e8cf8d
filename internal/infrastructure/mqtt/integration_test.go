//go:build integration

package mqtt

import (
	"testing"
	"time"
)

// Requires a broker at 127.0.0.1:1883:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func TestIntegration_FirmwareAckRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "tracker-it-sub"
	sub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	cfg.Broker.ClientID = "tracker-it-pub"
	pub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	topics := sub.Topics()
	received := make(chan string, 1)
	err = sub.Subscribe(topics.AllDeviceFirmwareAcks(), 1, func(topic string, _ []byte) error {
		serial, _ := topics.SerialFromAckTopic(topic)
		received <- serial
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !sub.HasSubscription(topics.AllDeviceFirmwareAcks()) {
		t.Fatal("subscription not tracked")
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishJSON(topics.DeviceFirmwareAck("VT-IT-1"), map[string]string{"sync_job_id": "job"}); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case serial := <-received:
		if serial != "VT-IT-1" {
			t.Errorf("serial = %q", serial)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for ack")
	}
}
