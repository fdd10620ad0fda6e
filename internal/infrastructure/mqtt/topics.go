package mqtt

import (
	"fmt"
	"strings"
)

// DefaultRoot is the topic root used when Topics.Root is empty.
const DefaultRoot = "feedsync"

// Topics builds FeedSync topic names under Root.
//
//	t := mqtt.Topics{}
//	t.DeviceCommand("pump-1", "vibrate") // "feedsync/devices/pump-1/vibrate/set"
type Topics struct {
	Root string
}

func (t Topics) root() string {
	if t.Root == "" {
		return DefaultRoot
	}
	return strings.TrimSuffix(t.Root, "/")
}

// Status is the retained online/offline topic.
func (t Topics) Status() string {
	return t.root() + "/system/status"
}

// FeedText is the default topic feed text is read from.
func (t Topics) FeedText() string {
	return t.root() + "/feed/text"
}

// EngineState carries the retained mapping state.
func (t Topics) EngineState() string {
	return t.root() + "/engine/state"
}

// DeviceCommand is where intensity vectors for one class of a device go.
func (t Topics) DeviceCommand(deviceID, class string) string {
	return fmt.Sprintf("%s/devices/%s/%s/set", t.root(), Segment(deviceID), Segment(class))
}

// AllDeviceCommands matches every DeviceCommand topic.
func (t Topics) AllDeviceCommands() string {
	return t.root() + "/devices/+/+/set"
}

// Segment makes s safe as a single topic level by replacing MQTT separators
// and wildcards.
func Segment(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
