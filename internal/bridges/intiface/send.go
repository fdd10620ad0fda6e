package intiface

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nerrad567/feedsync-core/internal/engine"
)

// scalarTypes is the per-class handler table. A class missing here cannot
// be driven; the value is the ScalarCmd ActuatorType used for scalar
// features that reported none.
var scalarTypes = map[engine.ActuatorClass]string{
	engine.ClassVibrate:   "Vibrate",
	engine.ClassOscillate: "Oscillate",
	engine.ClassRotate:    "Rotate",
	engine.ClassLinear:    "Position",
}

type target struct {
	feature feature
	value   float64
}

// Send delivers one intensity vector. Indices are split by protocol message;
// ScalarCmd is the fallback for every feature that is not a dedicated
// rotate or linear output.
func (c *Client) Send(ctx context.Context, cmd engine.Command) error {
	fallbackType, ok := scalarTypes[cmd.Class]
	if !ok {
		c.log().Warn("no handler for actuator class", "class", cmd.Class.String(), "device", cmd.DeviceID)
		return fmt.Errorf("%w: %s", engine.ErrUnsupportedActuator, cmd.Class)
	}
	if len(cmd.Indices) != len(cmd.Vector) {
		return fmt.Errorf("intiface: %d indices for %d values", len(cmd.Indices), len(cmd.Vector))
	}

	index, err := strconv.Atoi(cmd.DeviceID)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, cmd.DeviceID)
	}
	c.mu.RLock()
	dev := c.devices[index]
	c.mu.RUnlock()
	if dev == nil {
		return fmt.Errorf("%w: %d", ErrUnknownDevice, index)
	}

	byKind := make(map[featureKind][]target)
	for i, a := range cmd.Indices {
		if a < 0 || a >= len(dev.features) {
			return fmt.Errorf("%w: %d on %s", ErrUnknownActuator, a, dev.name)
		}
		f := dev.features[a]
		if f.kind == kindScalar && f.actuatorType == "" {
			f.actuatorType = fallbackType
		}
		byKind[f.kind] = append(byKind[f.kind], target{feature: f, value: clamp01(cmd.Vector[i])})
	}

	for _, kind := range []featureKind{kindScalar, kindRotate, kindLinear} {
		targets := byKind[kind]
		if len(targets) == 0 {
			continue
		}
		name, build := c.encoder(kind, dev.index, targets)
		if _, err := c.request(ctx, name, build); err != nil {
			return fmt.Errorf("%s to %s: %w", name, dev.name, err)
		}
	}
	return nil
}

func (c *Client) encoder(kind featureKind, deviceIndex int, targets []target) (string, func(id uint32) any) {
	switch kind {
	case kindRotate:
		return msgRotateCmd, func(id uint32) any {
			msg := rotateCmd{ID: id, DeviceIndex: deviceIndex}
			for _, t := range targets {
				msg.Rotations = append(msg.Rotations, rotation{Index: t.feature.index, Speed: t.value, Clockwise: true})
			}
			return msg
		}
	case kindLinear:
		// #nosec G115 -- durations are configured in milliseconds well below 2^32
		duration := uint32(c.cfg.LinearDuration.Milliseconds())
		return msgLinearCmd, func(id uint32) any {
			msg := linearCmd{ID: id, DeviceIndex: deviceIndex}
			for _, t := range targets {
				msg.Vectors = append(msg.Vectors, vector{Index: t.feature.index, Duration: duration, Position: t.value})
			}
			return msg
		}
	default:
		return msgScalarCmd, func(id uint32) any {
			msg := scalarCmd{ID: id, DeviceIndex: deviceIndex}
			for _, t := range targets {
				msg.Scalars = append(msg.Scalars, scalar{Index: t.feature.index, Scalar: t.value, ActuatorType: t.feature.actuatorType})
			}
			return msg
		}
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
