package mqttdev

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/feedsync-core/internal/engine"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/config"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/mqtt"
)

type message struct {
	topic   string
	payload []byte
	qos     byte
}

type fakePublisher struct {
	sent []message
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, _ bool) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message{topic: topic, payload: payload, qos: qos})
	return nil
}

func testDevices() []config.MQTTDeviceConfig {
	return []config.MQTTDeviceConfig{
		{ID: "pump-1", Name: "Pump", Actuators: []config.MQTTActuatorConfig{
			{Class: "vibrate"},
			{Class: "Rotate", Descriptor: "spindle"},
			{Class: "inflate"},
		}},
		{ID: "wand"},
	}
}

func TestListDevices(t *testing.T) {
	ch := New(&fakePublisher{}, mqtt.Topics{}, 1, testDevices())

	devices, err := ch.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len = %d, want 2", len(devices))
	}
	pump := devices[0]
	want := []engine.Actuator{
		{Index: 0, Class: engine.ClassVibrate},
		{Index: 1, Class: engine.ClassRotate, Descriptor: "spindle"},
		{Index: 2, Class: engine.ClassUnknown},
	}
	for i, a := range want {
		if pump.Actuators[i] != a {
			t.Errorf("Actuators[%d] = %+v, want %+v", i, pump.Actuators[i], a)
		}
	}
	if devices[1].Name != "wand" {
		t.Errorf("unnamed device Name = %q, want id", devices[1].Name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ch.ListDevices(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ListDevices(cancelled) error = %v", err)
	}
}

func TestSend(t *testing.T) {
	pub := &fakePublisher{}
	ch := New(pub, mqtt.Topics{Root: "lab"}, 1, testDevices())
	ch.now = func() time.Time { return time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC) }

	err := ch.Send(context.Background(), engine.Command{
		DeviceID: "pump-1",
		Class:    engine.ClassRotate,
		Indices:  []int{1},
		Vector:   []float64{0.4},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.sent))
	}
	msg := pub.sent[0]
	if msg.topic != "lab/devices/pump-1/rotate/set" || msg.qos != 1 {
		t.Errorf("topic = %q qos = %d", msg.topic, msg.qos)
	}

	var got CommandPayload
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.Class != "rotate" || len(got.Vector) != 1 || got.Vector[0] != 0.4 || got.Indices[0] != 1 {
		t.Errorf("payload = %+v", got)
	}
	if !got.TS.Equal(time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)) {
		t.Errorf("TS = %v", got.TS)
	}
}

func TestSend_Errors(t *testing.T) {
	brokerDown := errors.New("broker down")
	tests := []struct {
		name string
		cmd  engine.Command
		err  error
		want error
	}{
		{
			name: "unknown class",
			cmd:  engine.Command{DeviceID: "pump-1", Class: engine.ClassUnknown, Indices: []int{2}, Vector: []float64{1}},
			want: engine.ErrUnsupportedActuator,
		},
		{
			name: "unknown device",
			cmd:  engine.Command{DeviceID: "ghost", Class: engine.ClassVibrate, Indices: []int{0}, Vector: []float64{1}},
			want: ErrUnknownDevice,
		},
		{
			name: "publish failure",
			cmd:  engine.Command{DeviceID: "pump-1", Class: engine.ClassVibrate, Indices: []int{0}, Vector: []float64{1}},
			err:  brokerDown,
			want: brokerDown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := New(&fakePublisher{err: tt.err}, mqtt.Topics{}, 0, testDevices())
			if err := ch.Send(context.Background(), tt.cmd); !errors.Is(err, tt.want) {
				t.Errorf("Send() error = %v, want %v", err, tt.want)
			}
		})
	}

	ch := New(&fakePublisher{}, mqtt.Topics{}, 0, testDevices())
	err := ch.Send(context.Background(), engine.Command{DeviceID: "pump-1", Class: engine.ClassVibrate, Indices: []int{9}, Vector: []float64{1}})
	if err == nil {
		t.Error("Send() with out-of-range index succeeded")
	}
}
