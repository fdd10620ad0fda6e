package mqttdev

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/feedsync-core/internal/engine"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/config"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/mqtt"
)

// ErrUnknownDevice is returned when a command names an undeclared device.
var ErrUnknownDevice = errors.New("mqttdev: unknown device")

// Publisher publishes a payload. *mqtt.Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// CommandPayload is the JSON body of a command topic.
type CommandPayload struct {
	DeviceID string    `json:"device_id"`
	Class    string    `json:"class"`
	Indices  []int     `json:"indices"`
	Vector   []float64 `json:"vector"`
	TS       time.Time `json:"ts"`
}

// Channel is an engine.Channel over MQTT.
type Channel struct {
	pub     Publisher
	topics  mqtt.Topics
	qos     byte
	devices []engine.Device
	byID    map[string]engine.Device
	now     func() time.Time
}

var _ engine.Channel = (*Channel)(nil)

// New builds the inventory from the configured devices. Actuators with an
// unrecognised class are kept with class unknown so their indices stay
// stable; the engine skips them.
func New(pub Publisher, topics mqtt.Topics, qos byte, devices []config.MQTTDeviceConfig) *Channel {
	c := &Channel{
		pub:    pub,
		topics: topics,
		qos:    qos,
		byID:   make(map[string]engine.Device, len(devices)),
		now:    time.Now,
	}
	for _, dc := range devices {
		name := dc.Name
		if name == "" {
			name = dc.ID
		}
		d := engine.Device{ID: dc.ID, Name: name}
		for i, a := range dc.Actuators {
			d.Actuators = append(d.Actuators, engine.Actuator{
				Index:      i,
				Class:      engine.ParseActuatorClass(a.Class),
				Descriptor: a.Descriptor,
			})
		}
		c.devices = append(c.devices, d)
		c.byID[d.ID] = d
	}
	return c
}

// ListDevices returns the configured devices.
func (c *Channel) ListDevices(ctx context.Context) ([]engine.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]engine.Device(nil), c.devices...), nil
}

// Send publishes the vector to the device's class topic.
func (c *Channel) Send(ctx context.Context, cmd engine.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cmd.Class.Supported() {
		return fmt.Errorf("%w: %s", engine.ErrUnsupportedActuator, cmd.Class)
	}
	d, ok := c.byID[cmd.DeviceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, cmd.DeviceID)
	}
	for _, idx := range cmd.Indices {
		if idx < 0 || idx >= len(d.Actuators) {
			return fmt.Errorf("mqttdev: actuator %d out of range for %s", idx, d.ID)
		}
	}

	payload, err := json.Marshal(CommandPayload{
		DeviceID: cmd.DeviceID,
		Class:    cmd.Class.String(),
		Indices:  cmd.Indices,
		Vector:   cmd.Vector,
		TS:       c.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	return c.pub.Publish(c.topics.DeviceCommand(cmd.DeviceID, cmd.Class.String()), payload, c.qos, false)
}
