package engine

import (
	"fmt"
	"sort"
)

type groupKey struct {
	deviceID string
	class    ActuatorClass
}

// group is every row of one class on one device, ordered by actuator index.
type group struct {
	key  groupKey
	rows []*Row
}

// table is the built mapping: rows in position order plus their groups.
type table struct {
	rows     []*Row
	groups   map[string][]*group // by device ID, classes in first-seen order
	deviceID []string            // devices that own at least one row, in order
}

// DefaultAssignment is the assignment a row gets when none is configured:
// row n reads signal n, no oscillation.
func DefaultAssignment(position int) Assignment {
	return Assignment{SignalIndex: position, OscillationPercent: 0}
}

// CapDevices truncates the inventory to limit devices. A limit below 1 means no cap.
func CapDevices(devices []Device, limit int) []Device {
	if limit > 0 && len(devices) > limit {
		return devices[:limit]
	}
	return devices
}

// BuildRows creates one row per supported actuator, device-then-actuator
// order, with 1-based positions counting supported actuators only. Rows use
// assignments by position, falling back to DefaultAssignment.
func BuildRows(devices []Device, assignments map[int]Assignment, logger Logger) ([]*Row, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	var rows []*Row
	for _, d := range devices {
		actuators := append([]Actuator(nil), d.Actuators...)
		sort.SliceStable(actuators, func(i, j int) bool { return actuators[i].Index < actuators[j].Index })

		for _, a := range actuators {
			if !a.Class.Supported() {
				logger.Warn("skipping unsupported actuator",
					"device", d.Name, "actuator", a.Index, "descriptor", a.Descriptor)
				continue
			}
			pos := len(rows) + 1
			asg, ok := assignments[pos]
			if !ok {
				asg = DefaultAssignment(pos)
			}
			if err := asg.Validate(); err != nil {
				return nil, fmt.Errorf("row %d: %w", pos, err)
			}
			rows = append(rows, &Row{
				Position:           pos,
				DeviceID:           d.ID,
				DeviceName:         d.Name,
				ActuatorIndex:      a.Index,
				Class:              a.Class,
				Descriptor:         a.Descriptor,
				SignalIndex:        asg.SignalIndex,
				OscillationPercent: asg.OscillationPercent,
			})
		}
	}
	return rows, nil
}

func newTable(rows []*Row) *table {
	t := &table{
		rows:   rows,
		groups: make(map[string][]*group),
	}
	index := make(map[groupKey]*group)
	for _, r := range rows {
		key := groupKey{deviceID: r.DeviceID, class: r.Class}
		g, ok := index[key]
		if !ok {
			g = &group{key: key}
			index[key] = g
			if _, seen := t.groups[r.DeviceID]; !seen {
				t.deviceID = append(t.deviceID, r.DeviceID)
			}
			t.groups[r.DeviceID] = append(t.groups[r.DeviceID], g)
		}
		g.rows = append(g.rows, r)
	}
	for _, g := range index {
		sort.SliceStable(g.rows, func(i, j int) bool { return g.rows[i].ActuatorIndex < g.rows[j].ActuatorIndex })
	}
	return t
}

func (t *table) row(position int) (*Row, bool) {
	if position < 1 || position > len(t.rows) {
		return nil, false
	}
	return t.rows[position-1], true
}

// allGroups returns every group in device order.
func (t *table) allGroups() []*group {
	var out []*group
	for _, id := range t.deviceID {
		out = append(out, t.groups[id]...)
	}
	return out
}

// command builds the group's current vector.
func (g *group) command() Command {
	cmd := Command{
		DeviceID: g.key.deviceID,
		Class:    g.key.class,
		Indices:  make([]int, len(g.rows)),
		Vector:   make([]float64, len(g.rows)),
	}
	for i, r := range g.rows {
		cmd.Indices[i] = r.ActuatorIndex
		cmd.Vector[i] = clamp01(r.Intensity)
	}
	return cmd
}

// zeroCommand builds an all-zero vector for the group.
func (g *group) zeroCommand() Command {
	cmd := g.command()
	for i := range cmd.Vector {
		cmd.Vector[i] = 0
	}
	return cmd
}
