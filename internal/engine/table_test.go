package engine

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestBuildRows(t *testing.T) {
	devices := []Device{
		{ID: "1", Name: "Edge", Actuators: []Actuator{
			{Index: 1, Class: ClassVibrate},
			{Index: 0, Class: ClassVibrate},
			{Index: 2, Class: ClassUnknown, Descriptor: "constrict"},
		}},
		{ID: "2", Name: "Stroker", Actuators: []Actuator{
			{Index: 0, Class: ClassLinear},
		}},
	}

	rows, err := BuildRows(devices, map[int]Assignment{3: {SignalIndex: 1, OscillationPercent: 50}}, nil)
	if err != nil {
		t.Fatalf("BuildRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3 (unknown actuator skipped)", len(rows))
	}

	want := []struct {
		pos, device, actuator, signal, osc int
	}{
		{1, 1, 0, 1, 0},
		{2, 1, 1, 2, 0},
		{3, 2, 0, 1, 50},
	}
	for i, w := range want {
		r := rows[i]
		if r.Position != w.pos || r.ActuatorIndex != w.actuator || r.SignalIndex != w.signal || r.OscillationPercent != w.osc {
			t.Errorf("row %d = %+v, want %+v", i, r, w)
		}
	}
	if rows[2].Class != ClassLinear || rows[2].DeviceName != "Stroker" {
		t.Errorf("row 3 = %+v", rows[2])
	}
}

func TestBuildRows_InvalidAssignment(t *testing.T) {
	devices := []Device{{ID: "1", Actuators: []Actuator{{Class: ClassVibrate}}}}
	_, err := BuildRows(devices, map[int]Assignment{1: {SignalIndex: 1, OscillationPercent: -1}}, nil)
	if !errors.Is(err, ErrInvalidAssignment) {
		t.Errorf("BuildRows() error = %v, want ErrInvalidAssignment", err)
	}
}

func TestNewTable_GroupsByDeviceAndClass(t *testing.T) {
	rows, _ := BuildRows([]Device{
		{ID: "1", Actuators: []Actuator{
			{Index: 0, Class: ClassVibrate},
			{Index: 1, Class: ClassRotate},
			{Index: 2, Class: ClassVibrate},
		}},
	}, nil, nil)
	tbl := newTable(rows)

	groups := tbl.groups["1"]
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	rows[0].Intensity = 0.25
	rows[2].Intensity = 0.75

	cmd := groups[0].command()
	if cmd.Class != ClassVibrate || len(cmd.Vector) != 2 {
		t.Fatalf("vibrate command = %+v", cmd)
	}
	if cmd.Indices[0] != 0 || cmd.Indices[1] != 2 || cmd.Vector[0] != 0.25 || cmd.Vector[1] != 0.75 {
		t.Errorf("vibrate command = %+v, want indices [0 2] vector [0.25 0.75]", cmd)
	}
	zero := groups[0].zeroCommand()
	if zero.Vector[0] != 0 || zero.Vector[1] != 0 {
		t.Errorf("zero command = %v", zero.Vector)
	}
	if rows[0].Intensity != 0.25 {
		t.Error("zeroCommand modified row intensity")
	}
}

func TestActuatorClass_Text(t *testing.T) {
	tests := []struct {
		in   string
		want ActuatorClass
	}{
		{"Vibrate", ClassVibrate},
		{"oscillate", ClassOscillate},
		{" ROTATE ", ClassRotate},
		{"linear", ClassLinear},
		{"Constrict", ClassUnknown},
		{"", ClassUnknown},
	}
	for _, tt := range tests {
		if got := ParseActuatorClass(tt.in); got != tt.want {
			t.Errorf("ParseActuatorClass(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	data, err := json.Marshal(Actuator{Index: 1, Class: ClassRotate})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var back Actuator
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Class != ClassRotate {
		t.Errorf("class round trip = %v, json %s", back.Class, data)
	}
	if ClassUnknown.Supported() || !ClassLinear.Supported() {
		t.Error("Supported() misreports")
	}
}

func TestOscillatedIntensity(t *testing.T) {
	tests := []struct {
		name    string
		base    float64
		percent int
		elapsed time.Duration
		want    float64
	}{
		{"start equals base", 0.6, 40, 0, 0.6},
		{"half period back at base", 0.5, 20, time.Second, 0.5},
		{"quarter period peak", 0.5, 20, 500 * time.Millisecond, 0.6},
		{"three quarter trough", 0.5, 20, 1500 * time.Millisecond, 0.4},
		{"peak clamped", 0.9, 50, 500 * time.Millisecond, 1},
		{"zero base stays zero", 0, 50, 700 * time.Millisecond, 0},
		{"zero percent is flat", 0.3, 0, 300 * time.Millisecond, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OscillatedIntensity(tt.base, tt.percent, tt.elapsed, 0.5)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("OscillatedIntensity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOscillatedIntensity_AlwaysInRange(t *testing.T) {
	for base := 0.0; base <= 1.0; base += 0.05 {
		for pct := 0; pct <= MaxOscillationPercent; pct += 5 {
			for ms := 0; ms <= 4000; ms += 35 {
				got := OscillatedIntensity(base, pct, time.Duration(ms)*time.Millisecond, 0.5)
				if got < 0 || got > 1 {
					t.Fatalf("OscillatedIntensity(%v, %d, %dms) = %v out of [0,1]", base, pct, ms, got)
				}
			}
		}
	}
}

func TestClamp01(t *testing.T) {
	if clamp01(-0.1) != 0 || clamp01(1.2) != 1 || clamp01(math.NaN()) != 0 || clamp01(0.4) != 0.4 {
		t.Error("clamp01 misbehaves")
	}
}
