package intiface

import (
	"encoding/json"
	"fmt"
)

// messageVersion is the Buttplug protocol message version this client speaks.
const messageVersion = 3

// Message names used on the wire.
const (
	msgRequestServerInfo = "RequestServerInfo"
	msgServerInfo        = "ServerInfo"
	msgOk                = "Ok"
	msgError             = "Error"
	msgPing              = "Ping"
	msgStartScanning     = "StartScanning"
	msgStopScanning      = "StopScanning"
	msgScanningFinished  = "ScanningFinished"
	msgRequestDeviceList = "RequestDeviceList"
	msgDeviceList        = "DeviceList"
	msgDeviceAdded       = "DeviceAdded"
	msgDeviceRemoved     = "DeviceRemoved"
	msgStopAllDevices    = "StopAllDevices"
	msgScalarCmd         = "ScalarCmd"
	msgRotateCmd         = "RotateCmd"
	msgLinearCmd         = "LinearCmd"
)

// frame is one message inside a wire batch: {"Name": {...}}.
type frame struct {
	name string
	body json.RawMessage
}

type idOnly struct {
	ID uint32 `json:"Id"`
}

type requestServerInfo struct {
	ID             uint32 `json:"Id"`
	ClientName     string `json:"ClientName"`
	MessageVersion int    `json:"MessageVersion"`
}

type serverInfo struct {
	ID             uint32 `json:"Id"`
	ServerName     string `json:"ServerName"`
	MessageVersion int    `json:"MessageVersion"`
	MaxPingTime    int    `json:"MaxPingTime"`
}

type errorReply struct {
	ID           uint32 `json:"Id"`
	ErrorMessage string `json:"ErrorMessage"`
	ErrorCode    int    `json:"ErrorCode"`
}

type featureAttrs struct {
	FeatureDescriptor string `json:"FeatureDescriptor"`
	StepCount         int    `json:"StepCount"`
	ActuatorType      string `json:"ActuatorType,omitempty"`
}

type deviceMessages struct {
	ScalarCmd []featureAttrs `json:"ScalarCmd,omitempty"`
	RotateCmd []featureAttrs `json:"RotateCmd,omitempty"`
	LinearCmd []featureAttrs `json:"LinearCmd,omitempty"`
}

type deviceEntry struct {
	ID                uint32         `json:"Id,omitempty"`
	DeviceName        string         `json:"DeviceName"`
	DeviceIndex       int            `json:"DeviceIndex"`
	DeviceDisplayName string         `json:"DeviceDisplayName,omitempty"`
	DeviceMessages    deviceMessages `json:"DeviceMessages"`
}

type deviceList struct {
	ID      uint32        `json:"Id"`
	Devices []deviceEntry `json:"Devices"`
}

type deviceRemoved struct {
	ID          uint32 `json:"Id"`
	DeviceIndex int    `json:"DeviceIndex"`
}

type scalar struct {
	Index        int     `json:"Index"`
	Scalar       float64 `json:"Scalar"`
	ActuatorType string  `json:"ActuatorType"`
}

type scalarCmd struct {
	ID          uint32   `json:"Id"`
	DeviceIndex int      `json:"DeviceIndex"`
	Scalars     []scalar `json:"Scalars"`
}

type rotation struct {
	Index     int     `json:"Index"`
	Speed     float64 `json:"Speed"`
	Clockwise bool    `json:"Clockwise"`
}

type rotateCmd struct {
	ID          uint32     `json:"Id"`
	DeviceIndex int        `json:"DeviceIndex"`
	Rotations   []rotation `json:"Rotations"`
}

type vector struct {
	Index    int     `json:"Index"`
	Duration uint32  `json:"Duration"`
	Position float64 `json:"Position"`
}

type linearCmd struct {
	ID          uint32   `json:"Id"`
	DeviceIndex int      `json:"DeviceIndex"`
	Vectors     []vector `json:"Vectors"`
}

// encode wraps one message in a single-element batch.
func encode(name string, body any) ([]byte, error) {
	data, err := json.Marshal([]map[string]any{{name: body}})
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", name, err)
	}
	return data, nil
}

// decode splits a wire batch into frames.
func decode(data []byte) ([]frame, error) {
	var batch []map[string]json.RawMessage
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decoding batch: %w", err)
	}
	var frames []frame
	for _, m := range batch {
		for name, body := range m {
			frames = append(frames, frame{name: name, body: body})
		}
	}
	return frames, nil
}

func (f frame) id() uint32 {
	var v idOnly
	_ = json.Unmarshal(f.body, &v) //nolint:errcheck // events without Id decode to 0
	return v.ID
}
