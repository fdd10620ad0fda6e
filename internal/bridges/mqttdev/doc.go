// Package mqttdev drives devices declared in configuration over MQTT.
//
// Each device gets one command topic per actuator class:
//
//	feedsync/devices/{device_id}/{class}/set
//
// carrying the full intensity vector for that class as JSON:
//
//	{"device_id":"pump-1","class":"vibrate","indices":[0,2],"vector":[0.5,0],"ts":"2026-03-01T20:00:00Z"}
//
// Actuator indices are the positions in the configured actuator list.
// The inventory never changes at runtime.
package mqttdev
