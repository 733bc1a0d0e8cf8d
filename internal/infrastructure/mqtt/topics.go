package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "tracker"

// Topics builds the tracker topic hierarchy under a configurable prefix.
//
//	<prefix>/system/status                 retained core presence
//	<prefix>/notifications/<kind>          outbound notifications
//	<prefix>/devices/<serial>/firmware     firmware sync instructions
//	<prefix>/devices/<serial>/firmware/ack device confirmations
type Topics struct {
	Prefix string
}

// NewTopics returns a Topics rooted at prefix, trimming stray slashes.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// SystemStatus is the retained online/offline topic for this core instance.
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// Notification is where messages of the given kind are published.
func (t Topics) Notification(kind string) string {
	return t.root() + "/notifications/" + kind
}

// DeviceFirmware carries firmware sync instructions for one device.
func (t Topics) DeviceFirmware(serial string) string {
	return t.root() + "/devices/" + serial + "/firmware"
}

// DeviceFirmwareAck is where a device confirms a firmware sync.
func (t Topics) DeviceFirmwareAck(serial string) string {
	return t.DeviceFirmware(serial) + "/ack"
}

// AllDeviceFirmwareAcks is the wildcard subscription for every device's acks.
func (t Topics) AllDeviceFirmwareAcks() string {
	return t.root() + "/devices/+/firmware/ack"
}

// SerialFromAckTopic extracts the device serial from a firmware ack topic.
func (t Topics) SerialFromAckTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.root()+"/devices/")
	if !ok {
		return "", false
	}
	serial, ok := strings.CutSuffix(rest, "/firmware/ack")
	if !ok || serial == "" || strings.Contains(serial, "/") {
		return "", false
	}
	return serial, true
}
