package intiface

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/feedsync-core/internal/engine"
)

type featureKind int

const (
	kindScalar featureKind = iota
	kindRotate
	kindLinear
)

// feature is one protocol-level output of a device.
type feature struct {
	kind         featureKind
	index        int
	actuatorType string
	descriptor   string
}

func (f feature) class() engine.ActuatorClass {
	switch f.kind {
	case kindRotate:
		return engine.ClassRotate
	case kindLinear:
		return engine.ClassLinear
	}
	if strings.EqualFold(f.actuatorType, "Position") {
		return engine.ClassLinear
	}
	return engine.ParseActuatorClass(f.actuatorType)
}

type device struct {
	index    int
	name     string
	features []feature
}

func newDevice(e deviceEntry) *device {
	d := &device{index: e.DeviceIndex, name: e.DeviceName}
	add := func(kind featureKind, attrs []featureAttrs) {
		for i, a := range attrs {
			d.features = append(d.features, feature{
				kind:         kind,
				index:        i,
				actuatorType: a.ActuatorType,
				descriptor:   a.FeatureDescriptor,
			})
		}
	}
	add(kindScalar, e.DeviceMessages.ScalarCmd)
	add(kindRotate, e.DeviceMessages.RotateCmd)
	add(kindLinear, e.DeviceMessages.LinearCmd)
	return d
}

func (d *device) toEngine() engine.Device {
	out := engine.Device{ID: strconv.Itoa(d.index), Name: d.name}
	for i, f := range d.features {
		desc := f.descriptor
		if desc == "" {
			desc = f.actuatorType
		}
		out.Actuators = append(out.Actuators, engine.Actuator{Index: i, Class: f.class(), Descriptor: desc})
	}
	return out
}

// Devices returns the known devices ordered by device index.
func (c *Client) Devices() []engine.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]engine.Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d.toEngine())
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID) //nolint:errcheck // IDs are formatted ints
		b, _ := strconv.Atoi(out[j].ID) //nolint:errcheck // IDs are formatted ints
		return a < b
	})
	return out
}

// ListDevices scans for ScanWait, then replaces the inventory with the
// server's device list.
func (c *Client) ListDevices(ctx context.Context) ([]engine.Device, error) {
	idBody := func(id uint32) any { return idOnly{ID: id} }

	if _, err := c.request(ctx, msgStartScanning, idBody); err != nil {
		return nil, fmt.Errorf("start scanning: %w", err)
	}
	if c.cfg.ScanWait > 0 {
		timer := time.NewTimer(c.cfg.ScanWait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	// The server may already have finished scanning on its own.
	if _, err := c.request(ctx, msgStopScanning, idBody); err != nil {
		c.log().Debug("stop scanning", "error", err)
	}

	reply, err := c.request(ctx, msgRequestDeviceList, idBody)
	if err != nil {
		return nil, fmt.Errorf("request device list: %w", err)
	}
	var list deviceList
	if err := json.Unmarshal(reply.body, &list); err != nil {
		return nil, fmt.Errorf("decoding device list: %w", err)
	}

	devices := make(map[int]*device, len(list.Devices))
	for _, e := range list.Devices {
		d := newDevice(e)
		devices[d.index] = d
	}
	c.mu.Lock()
	c.devices = devices
	c.mu.Unlock()

	c.log().Info("intiface devices listed", "count", len(devices))
	return c.Devices(), nil
}
