// Package mqtt connects FeedSync Core to an MQTT broker.
//
// The broker is used in two optional places: as the device control channel
// for actuators that listen on MQTT (see bridges/mqttdev) and as a feed
// source where another process publishes the text to read signals from.
//
// Features:
//   - Auto-reconnect with subscriptions restored after every reconnect
//   - Retained online/offline status with a Last Will for crashes
//   - Panic recovery around message handlers
//   - Topic builders under a configurable root (default "feedsync")
//
// # Topic layout
//
//	feedsync/system/status                 retained online/offline status
//	feedsync/feed/text                     feed text in (default source topic)
//	feedsync/engine/state                  retained mapping state
//	feedsync/devices/{id}/{class}/set      intensity vectors out
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	err = client.Subscribe("feedsync/feed/text", 1, handler)
package mqtt
